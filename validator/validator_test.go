package validator

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/carscout/models"
)

var fixedNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestValidator() *Validator {
	return New(WithClock(func() time.Time { return fixedNow }))
}

func camry() models.CarRecord {
	r := models.NewCarRecord("Toyota", "Camry")
	r.Year = 2024
	r.Price.StartingMSRP = models.Ptr(28000.0)
	r.ScrapedAt = fixedNow
	return r
}

func TestValidateRecord_MinimalRecordIsValid(t *testing.T) {
	res := newTestValidator().ValidateRecord(camry())

	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.GreaterOrEqual(t, res.Score, 65)
	assert.Equal(t, 70, res.Score)
}

func TestValidateRecord_RequiredFields(t *testing.T) {
	r := camry()
	r.Manufacturer = "  "
	r.Model = "<>"

	res := newTestValidator().ValidateRecord(r)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, "manufacturer is required")
	assert.Contains(t, res.Errors, "model is required")
}

func TestValidateRecord_YearBounds(t *testing.T) {
	tests := []struct {
		year    int
		wantErr bool
		warn    string
	}{
		{1899, true, ""},
		{1989, true, ""},
		{1990, false, "unusually old"},
		{2028, false, ""},
		{2029, true, ""},
		{0, false, "year is missing"},
	}
	for _, tt := range tests {
		r := camry()
		r.Year = tt.year
		res := newTestValidator().ValidateRecord(r)
		assert.Equal(t, tt.wantErr, !res.Valid, "year %d", tt.year)
		if tt.warn != "" {
			assert.True(t, containsSubstring(res.Warnings, tt.warn), "year %d warnings %v", tt.year, res.Warnings)
		}
	}
}

func TestValidateRecord_HorsepowerIsSoft(t *testing.T) {
	r := camry()
	r.Performance.Horsepower = models.Ptr(5000)

	res := newTestValidator().ValidateRecord(r)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.True(t, containsSubstring(res.Warnings, "horsepower 5000"))
}

func TestValidateRecord_PriceBounds(t *testing.T) {
	r := camry()
	r.Price.StartingMSRP = models.Ptr(2_000_000.0)
	res := newTestValidator().ValidateRecord(r)
	assert.False(t, res.Valid)

	r = camry()
	r.Price.StartingMSRP = models.Ptr(-1.0)
	res = newTestValidator().ValidateRecord(r)
	assert.False(t, res.Valid)

	r = camry()
	r.Price.StartingMSRP = models.Ptr(3000.0)
	res = newTestValidator().ValidateRecord(r)
	assert.True(t, res.Valid)
	assert.True(t, containsSubstring(res.Warnings, "unusually low"))
}

func TestValidateRecord_SoftWarnings(t *testing.T) {
	r := camry()
	r.FuelEconomy.Combined = models.Ptr(140.0)
	r.Performance.Torque = models.Ptr(-5)
	r.Performance.Acceleration0To60 = models.Ptr(0.5)

	res := newTestValidator().ValidateRecord(r)
	assert.True(t, res.Valid)
	assert.Len(t, res.Warnings, 3)
}

func TestValidateRecord_SanitizesStrings(t *testing.T) {
	r := camry()
	r.Model = `  Camry <script>alert("x")</script> "XSE" `
	r.Performance.Engine = `2.5L onload=steal() I4`
	r.Specifications.Transmission = "javascript:void(0) 8-speed automatic"
	r.Features = []string{"Apple CarPlay", " Apple CarPlay ", "<b>", "data:text/html,hi", ""}
	r.Dealer = &models.Dealer{Name: `O'Brien Motors`}

	res := newTestValidator().ValidateRecord(r)
	require.True(t, res.Valid)
	assert.Equal(t, "Camry  XSE", res.Data.Model)
	assert.Equal(t, "2.5L steal() I4", res.Data.Performance.Engine)
	assert.Equal(t, "void(0) 8-speed automatic", res.Data.Specifications.Transmission)
	assert.Equal(t, []string{"Apple CarPlay", "b", "text/html,hi"}, res.Data.Features)
	assert.Equal(t, "OBrien Motors", res.Data.Dealer.Name)
}

func TestValidateRecord_LengthCap(t *testing.T) {
	r := camry()
	r.Model = strings.Repeat("x", 500)
	res := newTestValidator().ValidateRecord(r)
	assert.Len(t, res.Data.Model, 200)
}

func TestValidateRecord_Idempotent(t *testing.T) {
	v := newTestValidator()
	r := camry()
	r.Model = ` Camry "<i>SE</i>" javajavascript:script:x `
	r.Performance.Horsepower = models.Ptr(5000)
	r.Features = []string{"onclick=a Heated seats", "Heated seats"}
	r.Year = 1995

	first := v.ValidateRecord(r)
	second := v.ValidateRecord(first.Data)

	assert.Equal(t, first.Errors, second.Errors)
	assert.Equal(t, first.Warnings, second.Warnings)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Data, second.Data)
}

func TestValidateRecord_Memoized(t *testing.T) {
	v := newTestValidator()
	r := camry()

	first := v.ValidateRecord(r)
	second := v.ValidateRecord(camry())
	assert.Equal(t, first, second)

	size, hits, misses := v.CacheStats()
	assert.Equal(t, 1, size)
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)

	v.ClearCache()
	size, _, _ = v.CacheStats()
	assert.Zero(t, size)
}

func TestCompletenessScore(t *testing.T) {
	full := camry()
	full.Performance.Horsepower = models.Ptr(203)
	full.Specifications.Transmission = "automatic"
	full.Features = []string{"Apple CarPlay"}
	full.Dimensions.Length = models.Ptr(193.5)
	assert.Equal(t, 100, CompletenessScore(full))

	bare := models.CarRecord{Manufacturer: "Toyota"}
	assert.Equal(t, 15, CompletenessScore(bare))

	maxOnly := models.CarRecord{Price: models.Price{MaxPrice: models.Ptr(1.0)}}
	assert.Equal(t, 20, CompletenessScore(maxOnly))
}

func TestValidateInput(t *testing.T) {
	v := newTestValidator()

	cfg := models.RunConfig{}
	cfg.Defaults()
	res := v.ValidateInput(cfg)
	assert.True(t, res.Valid, res.Errors)

	bad := models.RunConfig{
		VehicleType:    "spaceship",
		MaxResults:     0,
		Country:        "XX",
		SecurityLevel:  "paranoid",
		RateLimitDelay: 100,
		Manufacturers:  []string{"Toyota", " "},
	}
	res = v.ValidateInput(bad)
	assert.False(t, res.Valid)
	assert.Len(t, res.Errors, 6)

	edge := cfg
	edge.MaxResults = 1000
	edge.RateLimitDelay = 10000
	assert.True(t, v.ValidateInput(edge).Valid)
	edge.MaxResults = 1001
	assert.False(t, v.ValidateInput(edge).Valid)
}

func TestCheckForPII(t *testing.T) {
	v := newTestValidator()

	clean := v.CheckForPII(camry())
	assert.False(t, clean.HasPII)
	assert.Zero(t, clean.Count)

	r := camry()
	r.Dealer = &models.Dealer{
		Email: "sales@example-motors.com",
		Phone: "(555) 123-4567",
	}
	r.Features = []string{"VIN 1HGCM82633A004352"}
	report := v.CheckForPII(r)
	assert.True(t, report.HasPII)
	assert.ElementsMatch(t, []string{"email", "phone", "vin"}, report.PIIFound)
	assert.Equal(t, 3, report.Count)
}

func TestSanitizeString_Idempotent(t *testing.T) {
	inputs := []string{
		"plain",
		`java<script:alert(1)`,
		"ononclick==x",
		`<SCRIPT src=x></SCRIPT>Visible`,
		strings.Repeat("a ", 150),
	}
	for _, in := range inputs {
		once := SanitizeString(in)
		assert.Equal(t, once, SanitizeString(once), "input %q", in)
	}
}

func containsSubstring(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
