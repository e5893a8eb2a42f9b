package extract

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// Words that follow a manufacturer name in search results but are not
// model names.
var notModels = map[string]struct{}{
	"models": {}, "model": {}, "lineup": {}, "cars": {}, "car": {}, "suvs": {},
	"trucks": {}, "dealer": {}, "dealers": {}, "dealership": {}, "price": {},
	"prices": {}, "pricing": {}, "reviews": {}, "review": {}, "news": {},
	"official": {}, "for": {}, "vs": {}, "and": {}, "usa": {}, "inventory": {},
	"deals": {}, "specs": {}, "near": {}, "new": {}, "used": {},
}

// ExtractModels scans result titles, links and headings for
// "<manufacturer> <model>" mentions and returns up to limit distinct model
// names in first-seen order.
func ExtractModels(rawHTML, manufacturer string, limit int) []string {
	if limit <= 0 || manufacturer == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	var out []string
	seen := map[string]struct{}{}
	doc.Find("a, h1, h2, h3, li, title").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, m := range modelsIn(cellText(s), manufacturer) {
			key := strings.ToLower(m)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, m)
			if len(out) >= limit {
				return false
			}
		}
		return true
	})
	return out
}

// modelsIn returns the word following each occurrence of manufacturer.
func modelsIn(text, manufacturer string) []string {
	words := strings.Fields(text)
	makeWords := strings.Fields(manufacturer)
	var out []string
	for i := 0; i+len(makeWords) < len(words); i++ {
		if !matchWords(words[i:i+len(makeWords)], makeWords) {
			continue
		}
		candidate := strings.TrimFunc(words[i+len(makeWords)], func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if plausibleModel(candidate) {
			out = append(out, candidate)
		}
	}
	return out
}

func matchWords(got, want []string) bool {
	for i := range want {
		g := strings.TrimFunc(got[i], func(r rune) bool { return unicode.IsPunct(r) && r != '-' })
		if !strings.EqualFold(g, want[i]) {
			return false
		}
	}
	return true
}

func plausibleModel(s string) bool {
	if len(s) < 2 || len(s) > 20 {
		return false
	}
	if _, stop := notModels[strings.ToLower(s)]; stop {
		return false
	}
	// Years are not models.
	if len(s) == 4 && strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		return false
	}
	r := []rune(s)[0]
	return unicode.IsUpper(r) || unicode.IsDigit(r)
}
