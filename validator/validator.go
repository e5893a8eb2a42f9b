// Package validator checks run configurations and car records, sanitizes
// record content and scores its completeness.
package validator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/carscout/cache"
	"github.com/use-agent/carscout/models"
)

// Hard and soft bounds for record fields.
const (
	minYear          = 1990
	maxYearAhead     = 2
	realisticMinYear = 2000

	maxPrice          = 1_000_000
	realisticMinPrice = 5_000

	maxHorsepower = 2000
	maxTorque     = 2000
	maxMPG        = 100

	minAcceleration = 1.5
	maxAcceleration = 30
)

// Completeness weights. They sum to 100.
const (
	weightManufacturer   = 15
	weightModel          = 15
	weightYear           = 10
	weightPrice          = 20
	weightPerformance    = 15
	weightSpecifications = 10
	weightFeatures       = 10
	weightDimensions     = 5
)

// Validator is safe for concurrent use.
type Validator struct {
	results *cache.Memo[models.ValidationResult]
	now     func() time.Time
}

// Option customises a Validator.
type Option func(*Validator)

// WithClock replaces time.Now (used for the upper year bound).
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithCacheSize bounds the validation memo table.
func WithCacheSize(n int) Option {
	return func(v *Validator) { v.results = cache.New[models.ValidationResult](n) }
}

// New creates a Validator with an unbounded result cache.
func New(opts ...Option) *Validator {
	v := &Validator{
		results: cache.New[models.ValidationResult](0),
		now:     time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// ValidateRecord sanitizes and checks a record. Identical content always
// yields the identical result, served from the memo table after the first
// call.
func (v *Validator) ValidateRecord(r models.CarRecord) models.ValidationResult {
	key, err := cache.Key(r)
	if err == nil {
		if res, ok := v.results.Get(key); ok {
			return res
		}
	} else {
		slog.Warn("validator: record not hashable, skipping cache", "error", err)
	}

	data := sanitizeRecord(r)
	errs, warns := v.check(data)
	res := models.ValidationResult{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warns,
		Data:     data,
		Score:    CompletenessScore(data),
	}
	if err == nil {
		v.results.Set(key, res)
	}
	return res
}

// ClearCache purges memoized results.
func (v *Validator) ClearCache() {
	v.results.Clear()
}

// CacheStats reports the memo table size and hit counts.
func (v *Validator) CacheStats() (size, hits, misses int) {
	return v.results.Stats()
}

func (v *Validator) check(r models.CarRecord) (errs, warns []string) {
	errs, warns = []string{}, []string{}

	if r.Manufacturer == "" {
		errs = append(errs, "manufacturer is required")
	}
	if r.Model == "" {
		errs = append(errs, "model is required")
	}

	maxYear := v.now().Year() + maxYearAhead
	switch {
	case r.Year == 0:
		warns = append(warns, "year is missing")
	case r.Year < minYear || r.Year > maxYear:
		errs = append(errs, fmt.Sprintf("year %d outside %d..%d", r.Year, minYear, maxYear))
	case r.Year < realisticMinYear:
		warns = append(warns, fmt.Sprintf("year %d is unusually old", r.Year))
	}

	if !r.Price.Known() && r.Price.MaxPrice == nil {
		warns = append(warns, "price is missing")
	}
	for _, p := range []struct {
		name string
		val  *float64
	}{
		{"starting_msrp", r.Price.StartingMSRP},
		{"max_price", r.Price.MaxPrice},
	} {
		if p.val == nil {
			continue
		}
		switch {
		case *p.val < 0 || *p.val > maxPrice:
			errs = append(errs, fmt.Sprintf("price.%s %.0f outside 0..%d", p.name, *p.val, maxPrice))
		case *p.val < realisticMinPrice:
			warns = append(warns, fmt.Sprintf("price.%s %.0f is unusually low", p.name, *p.val))
		}
	}

	if hp := r.Performance.Horsepower; hp != nil && (*hp < 0 || *hp > maxHorsepower) {
		warns = append(warns, fmt.Sprintf("horsepower %d outside realistic range 0..%d", *hp, maxHorsepower))
	}
	if tq := r.Performance.Torque; tq != nil && (*tq < 0 || *tq > maxTorque) {
		warns = append(warns, fmt.Sprintf("torque %d outside realistic range 0..%d", *tq, maxTorque))
	}
	if a := r.Performance.Acceleration0To60; a != nil && (*a < minAcceleration || *a > maxAcceleration) {
		warns = append(warns, fmt.Sprintf("0-60 time %.1fs outside realistic range", *a))
	}
	if mpg := r.FuelEconomy.Combined; mpg != nil && (*mpg < 0 || *mpg > maxMPG) {
		warns = append(warns, fmt.Sprintf("combined fuel economy %.1f outside realistic range 0..%d", *mpg, maxMPG))
	}
	return errs, warns
}

// CompletenessScore weights the presence of each record section. A feature
// set counts as present whenever the record carries one, even empty.
func CompletenessScore(r models.CarRecord) int {
	score := 0
	if r.Manufacturer != "" {
		score += weightManufacturer
	}
	if r.Model != "" {
		score += weightModel
	}
	if r.Year != 0 {
		score += weightYear
	}
	if r.Price.StartingMSRP != nil || r.Price.MaxPrice != nil {
		score += weightPrice
	}
	if !r.Performance.Empty() {
		score += weightPerformance
	}
	if !r.Specifications.Empty() {
		score += weightSpecifications
	}
	if r.Features != nil {
		score += weightFeatures
	}
	if !r.Dimensions.Empty() {
		score += weightDimensions
	}
	return min(score, 100)
}
