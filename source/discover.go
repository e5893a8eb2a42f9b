package source

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/use-agent/carscout/extract"
)

type catalogModel struct {
	name  string
	types []string
}

// catalog is the built-in model list used when discovery finds nothing.
var catalog = map[string][]catalogModel{
	"toyota": {
		{"Camry", []string{"sedan", "hybrid"}},
		{"Corolla", []string{"sedan", "hatchback"}},
		{"RAV4", []string{"suv", "hybrid"}},
		{"Tacoma", []string{"truck"}},
		{"Highlander", []string{"suv"}},
		{"Prius", []string{"hybrid", "hatchback"}},
		{"Sienna", []string{"minivan", "hybrid"}},
		{"GR86", []string{"coupe", "sports"}},
	},
	"honda": {
		{"Civic", []string{"sedan", "hatchback"}},
		{"Accord", []string{"sedan", "hybrid"}},
		{"CR-V", []string{"suv", "hybrid"}},
		{"Pilot", []string{"suv"}},
		{"Odyssey", []string{"minivan"}},
		{"Ridgeline", []string{"truck"}},
	},
	"ford": {
		{"F-150", []string{"truck"}},
		{"Mustang", []string{"coupe", "convertible", "sports"}},
		{"Explorer", []string{"suv"}},
		{"Escape", []string{"suv", "hybrid"}},
		{"Maverick", []string{"truck", "hybrid"}},
		{"Mustang Mach-E", []string{"electric", "suv"}},
	},
	"chevrolet": {
		{"Silverado", []string{"truck"}},
		{"Equinox", []string{"suv"}},
		{"Malibu", []string{"sedan"}},
		{"Tahoe", []string{"suv"}},
		{"Corvette", []string{"coupe", "convertible", "sports"}},
		{"Bolt EV", []string{"electric", "hatchback"}},
	},
	"tesla": {
		{"Model 3", []string{"electric", "sedan"}},
		{"Model Y", []string{"electric", "suv"}},
		{"Model S", []string{"electric", "sedan", "luxury"}},
		{"Model X", []string{"electric", "suv", "luxury"}},
		{"Cybertruck", []string{"electric", "truck"}},
	},
	"bmw": {
		{"3 Series", []string{"sedan", "luxury"}},
		{"5 Series", []string{"sedan", "luxury"}},
		{"X3", []string{"suv", "luxury"}},
		{"X5", []string{"suv", "luxury"}},
		{"M4", []string{"coupe", "sports", "luxury"}},
		{"i4", []string{"electric", "sedan", "luxury"}},
	},
	"mercedes-benz": {
		{"C-Class", []string{"sedan", "luxury"}},
		{"E-Class", []string{"sedan", "wagon", "luxury"}},
		{"GLC", []string{"suv", "luxury"}},
		{"GLE", []string{"suv", "luxury"}},
		{"EQS", []string{"electric", "sedan", "luxury"}},
	},
	"audi": {
		{"A4", []string{"sedan", "luxury"}},
		{"A6", []string{"sedan", "wagon", "luxury"}},
		{"Q5", []string{"suv", "luxury"}},
		{"Q7", []string{"suv", "luxury"}},
		{"e-tron GT", []string{"electric", "sports", "luxury"}},
	},
	"hyundai": {
		{"Elantra", []string{"sedan"}},
		{"Sonata", []string{"sedan", "hybrid"}},
		{"Tucson", []string{"suv", "hybrid"}},
		{"Santa Fe", []string{"suv"}},
		{"Ioniq 5", []string{"electric", "suv"}},
	},
	"kia": {
		{"Forte", []string{"sedan"}},
		{"K5", []string{"sedan"}},
		{"Sportage", []string{"suv", "hybrid"}},
		{"Telluride", []string{"suv"}},
		{"Carnival", []string{"minivan"}},
		{"EV6", []string{"electric", "suv"}},
	},
}

// DiscoverModels lists up to limit model names for a manufacturer. It
// searches the discovery source first and falls back to the built-in
// catalog when the search fails or yields nothing.
func (a *Aggregator) DiscoverModels(ctx context.Context, manufacturer, vehicleType, country string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	pageURL := a.discovery.discoveryURL(manufacturer, vehicleType, country)
	res, err := a.fetch(ctx, pageURL)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		a.sourceFailed(a.discovery.Name, pageURL, err)
	default:
		if found := extract.ExtractModels(res.HTML, manufacturer, limit); len(found) > 0 {
			return found, nil
		}
		slog.Debug("source: discovery found no models, using catalog", "manufacturer", manufacturer)
	}
	return CatalogModels(manufacturer, vehicleType, limit), nil
}

// CatalogModels returns up to limit built-in models of the given vehicle
// type. When the manufacturer has no model of that type, its whole list
// is used.
func CatalogModels(manufacturer, vehicleType string, limit int) []string {
	entries := catalog[strings.ToLower(strings.TrimSpace(manufacturer))]
	vt := strings.ToLower(vehicleType)

	var out []string
	if vt != "" && vt != "all" {
		for _, m := range entries {
			if slices.Contains(m.types, vt) {
				out = append(out, m.name)
			}
		}
	}
	if len(out) == 0 {
		for _, m := range entries {
			out = append(out, m.name)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
