package source

import (
	"strings"

	"github.com/use-agent/carscout/models"
)

// defaultEstimate is used for manufacturers missing from priceEstimates.
const defaultEstimate = 35000

// estimateSpread is the ratio of estimated max price to estimated MSRP.
const estimateSpread = 1.5

// priceEstimates holds typical starting MSRPs in USD, keyed by lowercase
// manufacturer.
var priceEstimates = map[string]float64{
	"toyota":        30000,
	"honda":         28000,
	"ford":          35000,
	"chevrolet":     33000,
	"tesla":         50000,
	"bmw":           55000,
	"mercedes-benz": 60000,
	"audi":          50000,
	"hyundai":       27000,
	"kia":           26000,
	"nissan":        29000,
	"subaru":        30000,
	"mazda":         29000,
	"volkswagen":    31000,
	"lexus":         50000,
	"porsche":       100000,
}

// EstimatePrice returns the fallback starting MSRP for a manufacturer.
func EstimatePrice(manufacturer string) float64 {
	if p, ok := priceEstimates[strings.ToLower(strings.TrimSpace(manufacturer))]; ok {
		return p
	}
	return defaultEstimate
}

// applyEstimate fills a missing starting MSRP from the table.
func applyEstimate(r *models.CarRecord) {
	if r.Price.StartingMSRP != nil {
		return
	}
	p := EstimatePrice(r.Manufacturer)
	r.Price.StartingMSRP = models.Ptr(p)
	if r.Price.MaxPrice == nil {
		r.Price.MaxPrice = models.Ptr(p * estimateSpread)
	}
	r.Price.IsEstimated = true
}

// ValueScore rates how much car a record offers for its price, from a
// baseline of 50, clamped to [0,100].
func ValueScore(r models.CarRecord) int {
	score := 50

	if p := r.Price.StartingMSRP; p != nil {
		switch {
		case *p < 25000:
			score += 15
		case *p < 40000:
			score += 10
		case *p < 60000:
			score += 5
		case *p >= 100000:
			score -= 10
		}
	}

	if hp := r.Performance.Horsepower; hp != nil {
		switch {
		case *hp >= 400:
			score += 15
		case *hp >= 300:
			score += 10
		case *hp >= 200:
			score += 5
		}
	}

	score += min(len(r.Features), 10)

	if mpg := r.FuelEconomy.Combined; mpg != nil {
		switch {
		case *mpg >= 40:
			score += 10
		case *mpg >= 30:
			score += 5
		case *mpg < 20:
			score -= 5
		}
	}

	return max(0, min(100, score))
}
