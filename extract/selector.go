package extract

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// SelectText parses rawHTML and returns the trimmed text of every element
// matching selector, in document order.
func SelectText(rawHTML, selector string) ([]string, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	var out []string
	for _, node := range cascadia.QueryAll(doc, sel) {
		if t := strings.Join(strings.Fields(nodeText(node)), " "); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
