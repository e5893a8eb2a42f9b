package extract

import (
	"log/slog"
	nurl "net/url"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	readability "github.com/go-shiori/go-readability"

	"github.com/use-agent/carscout/models"
)

// minArticleLength is the shortest readability text worth scanning.
const minArticleLength = 50

// newMarkdownConverter creates a goroutine-safe converter. The base plugin
// drops script, style and head content; tables keep their row structure,
// which keeps a spec row's label and value on one line.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

var (
	priceRangeRe = regexp.MustCompile(`\$\s?([\d,]{4,9})\s*(?:-|–|to)\s*\$\s?([\d,]{4,9})`)
	msrpRe       = regexp.MustCompile(`(?i)(?:msrp|starting (?:at|price|from)|base price|priced from)[^$\n]{0,40}\$\s?([\d,]{4,9})`)
	hpRe         = regexp.MustCompile(`(?i)\b(\d{2,4})\s*-?\s*(?:hp|horsepower|bhp)\b`)
	torqueRe     = regexp.MustCompile(`(?i)\b(\d{2,4})\s*(?:lb-?ft|lb\.?-ft\.?|pound-feet)`)
	accelRe      = regexp.MustCompile(`(?i)0\s*-\s*60(?:\s*mph)?[^0-9\n]{0,20}(\d{1,2}(?:\.\d{1,2})?)\s*(?:s\b|sec|seconds)`)
	cityHwyRe    = regexp.MustCompile(`(?i)\b(\d{2,3})\s*(?:mpg\s*)?city\s*/\s*(\d{2,3})\s*(?:mpg\s*)?(?:highway|hwy)`)
	combinedRe   = regexp.MustCompile(`(?i)\b(\d{2,3})\s*mpg\s*combined|combined[^0-9\n]{0,15}(\d{2,3})\s*mpg`)
)

// scanText fills fragment fields still missing from free text.
func scanText(f *models.Fragment, text string) {
	if m := priceRangeRe.FindStringSubmatch(text); m != nil {
		setFloat(&f.StartingMSRP, firstFloat(m[1]))
		setFloat(&f.MaxPrice, firstFloat(m[2]))
	}
	if m := msrpRe.FindStringSubmatch(text); m != nil {
		setFloat(&f.StartingMSRP, firstFloat(m[1]))
	}
	if m := hpRe.FindStringSubmatch(text); m != nil {
		setInt(&f.Performance.Horsepower, firstInt(m[1]))
	}
	if m := torqueRe.FindStringSubmatch(text); m != nil {
		setInt(&f.Performance.Torque, firstInt(m[1]))
	}
	if m := accelRe.FindStringSubmatch(text); m != nil {
		setFloat(&f.Performance.Acceleration0To60, firstFloat(m[1]))
	}
	if m := cityHwyRe.FindStringSubmatch(text); m != nil {
		setFloat(&f.FuelEconomy.City, firstFloat(m[1]))
		setFloat(&f.FuelEconomy.Highway, firstFloat(m[2]))
	}
	if m := combinedRe.FindStringSubmatch(text); m != nil {
		v := m[1]
		if v == "" {
			v = m[2]
		}
		setFloat(&f.FuelEconomy.Combined, firstFloat(v))
	}
}

// markdownText renders rawHTML as Markdown for the text scan. Returns ""
// when conversion fails.
func (x *Extractor) markdownText(rawHTML, sourceURL string) string {
	opts := []converter.ConvertOptionFunc{}
	if u, err := nurl.Parse(sourceURL); err == nil && u.Host != "" {
		opts = append(opts, converter.WithDomain(u.Scheme+"://"+u.Host))
	}
	md, err := x.md.ConvertString(rawHTML, opts...)
	if err != nil {
		slog.Debug("extract: markdown conversion failed", "url", sourceURL, "error", err)
		return ""
	}
	return md
}

// articleText runs readability over rawHTML and returns the main prose, or
// "" when no article was found.
func articleText(rawHTML, sourceURL string) string {
	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		slog.Debug("extract: readability failed", "url", sourceURL, "error", err)
		return ""
	}
	if len(strings.TrimSpace(article.TextContent)) < minArticleLength {
		return ""
	}
	return article.TextContent
}
