// Package extract turns fetched listing and specification pages into
// partial car records. Extraction is best effort: a page that yields
// nothing produces an empty fragment, never an error.
package extract

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/carscout/models"
)

// Hint narrows extraction for one page.
type Hint struct {
	Manufacturer string
	Model        string

	// Selectors maps a spec label (e.g. "price", "horsepower") to a CSS
	// selector whose text holds that value on this source's pages. Tried
	// before the generic strategies.
	Selectors map[string]string
}

// Extractor is goroutine-safe; the Markdown converter is built once.
type Extractor struct {
	md *converter.Converter
}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{md: newMarkdownConverter()}
}

var yearRe = regexp.MustCompile(`\b(19[89]\d|20\d{2})\b`)

// Extract runs, in order: per-source selectors, spec tables and definition
// lists, feature lists, dealer blocks, a Markdown text scan, and finally a
// readability scan of the main prose when price or horsepower is still
// missing. Earlier strategies win.
func (x *Extractor) Extract(rawHTML, sourceURL string, hint Hint) models.Fragment {
	f := models.Fragment{}

	for label, selector := range hint.Selectors {
		texts, err := SelectText(rawHTML, selector)
		if err != nil {
			slog.Debug("extract: bad selector", "label", label, "selector", selector, "error", err)
			continue
		}
		if len(texts) > 0 {
			applyLabel(&f, label, texts[0])
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		slog.Debug("extract: parse failed", "url", sourceURL, "error", err)
		return f
	}
	doc.Find("script, style, noscript").Remove()

	specRows(doc, &f)
	f.Features = features(doc)
	f.Dealer = dealer(doc)

	if f.Year == nil {
		heading := strings.TrimSpace(doc.Find("h1").First().Text())
		if heading == "" {
			heading = doc.Find("title").First().Text()
		}
		if mentions(heading, hint) {
			if m := yearRe.FindString(heading); m != "" {
				f.Year = firstInt(m)
			}
		}
	}

	if md := x.markdownText(rawHTML, sourceURL); md != "" {
		scanText(&f, md)
	}
	if f.StartingMSRP == nil || f.Performance.Horsepower == nil {
		if text := articleText(rawHTML, sourceURL); text != "" {
			scanText(&f, text)
		}
	}
	return f
}

// mentions reports whether text names the hinted model (or no model was
// hinted).
func mentions(text string, hint Hint) bool {
	if hint.Model == "" {
		return true
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(hint.Model))
}

// specRows reads two-cell table rows (th/td or td/td) and dt/dd pairs.
func specRows(doc *goquery.Document, f *models.Fragment) {
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return
		}
		applyLabel(f, cellText(cells.Eq(0)), cellText(cells.Eq(1)))
	})
	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		dd := dt.NextFiltered("dd")
		if dd.Length() == 0 {
			return
		}
		applyLabel(f, cellText(dt), cellText(dd))
	})
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// features collects list items under any element whose class or id names
// features, in document order without duplicates. Returns nil when the
// page has no such list.
func features(doc *goquery.Document) []string {
	var out []string
	seen := map[string]struct{}{}
	doc.Find(`[class*="feature"] li, [id*="feature"] li, [class*="equipment"] li`).Each(func(_ int, li *goquery.Selection) {
		t := cellText(li)
		if t == "" || len(t) > 120 {
			return
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, t)
	})
	return out
}

// dealer reads a dealer contact block, if the page has one.
func dealer(doc *goquery.Document) *models.Dealer {
	block := doc.Find(`[itemtype*="AutoDealer"], [class*="dealer"], [id*="dealer"]`).First()
	if block.Length() == 0 {
		return nil
	}

	d := &models.Dealer{}
	if name := block.Find(`[itemprop="name"], .name, h2, h3`).First(); name.Length() > 0 {
		d.Name = cellText(name)
	}
	if href, ok := block.Find(`a[href^="tel:"]`).First().Attr("href"); ok {
		d.Phone = strings.TrimPrefix(href, "tel:")
	} else if tel := block.Find(`[itemprop="telephone"]`).First(); tel.Length() > 0 {
		d.Phone = cellText(tel)
	}
	if href, ok := block.Find(`a[href^="mailto:"]`).First().Attr("href"); ok {
		d.Email = strings.TrimPrefix(href, "mailto:")
	}
	if addr := block.Find(`[itemprop="address"], address`).First(); addr.Length() > 0 {
		d.Address = cellText(addr)
	}
	if *d == (models.Dealer{}) {
		return nil
	}
	return d
}
