// Package source fetches car pages from an ordered list of sources,
// extracts fragments from them and merges the fragments into one record
// per model.
package source

import (
	"net/url"
	"strings"

	"github.com/use-agent/carscout/config"
)

// Source is one place to look for a model's details. URLTemplate may use
// the placeholders {make}, {model} (URL slugs), {query} (escaped search
// text) and {country}.
type Source struct {
	Name        string            `json:"name"`
	URLTemplate string            `json:"url"`
	Selectors   map[string]string `json:"selectors,omitempty"`
}

// DefaultSources are tried in order: research pages first, a search
// engine results page last.
var DefaultSources = []Source{
	{Name: "cars.com", URLTemplate: "https://www.cars.com/research/{make}-{model}/"},
	{Name: "edmunds", URLTemplate: "https://www.edmunds.com/{make}/{model}/"},
	{Name: "kbb", URLTemplate: "https://www.kbb.com/{make}/{model}/"},
	{Name: "bing", URLTemplate: "https://www.bing.com/search?q={query}&cc={country}"},
}

// DefaultDiscovery is the search page used to list a manufacturer's models.
var DefaultDiscovery = Source{
	Name:        "bing-discovery",
	URLTemplate: "https://www.bing.com/search?q={query}&cc={country}",
}

// FromConfig converts configured sources, skipping entries without a URL.
func FromConfig(cs []config.SourceConfig) []Source {
	var out []Source
	for _, c := range cs {
		if c.URL == "" {
			continue
		}
		name := c.Name
		if name == "" {
			if u, err := url.Parse(c.URL); err == nil && u.Host != "" {
				name = u.Host
			} else {
				name = c.URL
			}
		}
		out = append(out, Source{Name: name, URLTemplate: c.URL, Selectors: c.Selectors})
	}
	return out
}

// URL fills the template for one model.
func (s Source) URL(manufacturer, model, country string) string {
	return expand(s.URLTemplate, manufacturer, model, country,
		strings.TrimSpace(manufacturer+" "+model)+" specs price")
}

func (s Source) discoveryURL(manufacturer, vehicleType, country string) string {
	q := manufacturer
	if vehicleType != "" && vehicleType != "all" {
		q += " " + vehicleType
	}
	return expand(s.URLTemplate, manufacturer, "", country, q+" models")
}

func expand(tmpl, manufacturer, model, country, query string) string {
	return strings.NewReplacer(
		"{make}", slug(manufacturer),
		"{model}", slug(model),
		"{query}", url.QueryEscape(query),
		"{country}", url.QueryEscape(strings.ToLower(country)),
	).Replace(tmpl)
}

// slug lowercases s and joins its words with hyphens.
func slug(s string) string {
	return url.PathEscape(strings.Join(strings.Fields(strings.ToLower(s)), "-"))
}
