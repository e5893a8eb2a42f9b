package pipeline

import (
	"math"
	"sort"

	"github.com/use-agent/carscout/models"
)

// PriceBand partitions records by starting MSRP.
type PriceBand string

const (
	BandBudget   PriceBand = "budget"
	BandMidrange PriceBand = "midrange"
	BandPremium  PriceBand = "premium"
	BandLuxury   PriceBand = "luxury"
	bandUnpriced PriceBand = ""
)

const (
	maxCompetitors = 3
	maxPriceDelta  = 15000.0
)

// BandOf returns the band of a starting MSRP.
func BandOf(price float64) PriceBand {
	switch {
	case price < 30000:
		return BandBudget
	case price < 50000:
		return BandMidrange
	case price < 80000:
		return BandPremium
	default:
		return BandLuxury
	}
}

func bandOf(r models.CarRecord) PriceBand {
	if r.Price.StartingMSRP == nil {
		return bandUnpriced
	}
	return BandOf(*r.Price.StartingMSRP)
}

// AnalyzeCompetitors returns copies of records, each carrying up to three
// same-band rivals from other manufacturers within $15,000, nearest price
// first. Records without a price get no competitors.
func AnalyzeCompetitors(records []models.CarRecord) []models.CarRecord {
	bands := map[PriceBand][]int{}
	for i, r := range records {
		if b := bandOf(r); b != bandUnpriced {
			bands[b] = append(bands[b], i)
		}
	}

	out := make([]models.CarRecord, len(records))
	for i, r := range records {
		r.Competitors = []models.Competitor{}
		b := bandOf(r)
		if b == bandUnpriced {
			out[i] = r
			continue
		}

		price := *r.Price.StartingMSRP
		var rivals []models.Competitor
		for _, j := range bands[b] {
			other := records[j]
			if j == i || other.Manufacturer == r.Manufacturer {
				continue
			}
			diff := *other.Price.StartingMSRP - price
			if math.Abs(diff) > maxPriceDelta {
				continue
			}
			rivals = append(rivals, models.Competitor{
				Manufacturer:    other.Manufacturer,
				Model:           other.Model,
				Year:            other.Year,
				Price:           *other.Price.StartingMSRP,
				PriceDifference: diff,
				Advantages:      advantages(other, r),
			})
		}
		sort.SliceStable(rivals, func(a, b int) bool {
			return math.Abs(rivals[a].PriceDifference) < math.Abs(rivals[b].PriceDifference)
		})
		if len(rivals) > maxCompetitors {
			rivals = rivals[:maxCompetitors]
		}
		r.Competitors = append(r.Competitors, rivals...)
		out[i] = r
	}
	return out
}

// advantages lists where rival strictly beats subject. Unknown values
// never count as an advantage.
func advantages(rival, subject models.CarRecord) []string {
	adv := []string{}
	if hp, base := rival.Performance.Horsepower, subject.Performance.Horsepower; hp != nil && base != nil && *hp > *base {
		adv = append(adv, "more horsepower")
	}
	if len(rival.Features) > len(subject.Features) {
		adv = append(adv, "more features")
	}
	if mpg, base := rival.FuelEconomy.Combined, subject.FuelEconomy.Combined; mpg != nil && base != nil && *mpg > *base {
		adv = append(adv, "better fuel economy")
	}
	return adv
}
