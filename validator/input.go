package validator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/use-agent/carscout/models"
)

var (
	VehicleTypes = []string{
		"all", "sedan", "suv", "truck", "coupe", "convertible", "hatchback",
		"wagon", "minivan", "electric", "hybrid", "sports", "luxury",
	}
	Countries      = []string{"US", "UK", "CA", "AU", "DE", "JP", "IN", "FR", "IT", "ES"}
	SecurityLevels = []string{"minimal", "standard", "strict", "stealth"}
)

const (
	minResults        = 1
	maxResults        = 1000
	minRateLimitDelay = 500
	maxRateLimitDelay = 10000
)

// InputResult lists every problem found in a run configuration.
type InputResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidateInput checks cfg against the allowed option domains. It reports
// all violations, not just the first.
func (v *Validator) ValidateInput(cfg models.RunConfig) InputResult {
	errs := []string{}

	if !slices.Contains(VehicleTypes, cfg.VehicleType) {
		errs = append(errs, fmt.Sprintf("vehicleType %q must be one of: %s", cfg.VehicleType, strings.Join(VehicleTypes, ", ")))
	}
	if cfg.MaxResults < minResults || cfg.MaxResults > maxResults {
		errs = append(errs, fmt.Sprintf("maxResults %d must be between %d and %d", cfg.MaxResults, minResults, maxResults))
	}
	if !slices.Contains(Countries, cfg.Country) {
		errs = append(errs, fmt.Sprintf("country %q must be one of: %s", cfg.Country, strings.Join(Countries, ", ")))
	}
	if !slices.Contains(SecurityLevels, cfg.SecurityLevel) {
		errs = append(errs, fmt.Sprintf("securityLevel %q must be one of: %s", cfg.SecurityLevel, strings.Join(SecurityLevels, ", ")))
	}
	if cfg.RateLimitDelay < minRateLimitDelay || cfg.RateLimitDelay > maxRateLimitDelay {
		errs = append(errs, fmt.Sprintf("rateLimitDelay %d must be between %d and %d ms", cfg.RateLimitDelay, minRateLimitDelay, maxRateLimitDelay))
	}
	for i, m := range cfg.Manufacturers {
		if strings.TrimSpace(m) == "" {
			errs = append(errs, fmt.Sprintf("manufacturers[%d] is empty", i))
		}
	}

	return InputResult{Valid: len(errs) == 0, Errors: errs}
}
