package models

import "time"

// CarRecord is one accepted vehicle: manufacturer + model + the merged
// specification data collected from every source that contributed.
//
// Optional numeric values are pointers so that "unknown" is distinguishable
// from zero.
type CarRecord struct {
	Manufacturer   string         `json:"manufacturer"`
	Model          string         `json:"model"`
	Year           int            `json:"year,omitempty"`
	Price          Price          `json:"price"`
	Performance    Performance    `json:"performance"`
	Features       []string       `json:"features"`
	Specifications Specifications `json:"specifications"`
	Dimensions     Dimensions     `json:"dimensions"`
	FuelEconomy    FuelEconomy    `json:"fuel_economy"`
	ValueScore     int            `json:"value_score"`
	DataQuality    int            `json:"data_quality"`
	ScrapedAt      time.Time      `json:"scraped_at"`

	// Dealer carries listing contact details. Removed by anonymization.
	Dealer *Dealer `json:"dealer,omitempty"`

	// SourceURLs lists the pages that contributed a fragment.
	SourceURLs []string `json:"source_urls,omitempty"`

	// EncryptedPrice holds the sealed price when sensitive-data encryption
	// is enabled; Price is cleared in that case.
	EncryptedPrice string `json:"encrypted_price,omitempty"`

	// IntegrityHash is a hex SHA-256 over the record content.
	IntegrityHash string `json:"integrity_hash,omitempty"`

	// Competitors is populated only when competitor analysis is requested.
	Competitors []Competitor `json:"competitors,omitempty"`
}

// NewCarRecord returns the record template every source merges into.
// The feature set starts empty (not nil): a record always carries one.
func NewCarRecord(manufacturer, model string) CarRecord {
	return CarRecord{
		Manufacturer: manufacturer,
		Model:        model,
		Features:     []string{},
		ScrapedAt:    time.Now().UTC(),
	}
}

// Price is the MSRP range of a model.
type Price struct {
	StartingMSRP *float64 `json:"starting_msrp"`
	MaxPrice     *float64 `json:"max_price"`
	IsEstimated  bool     `json:"is_estimated"`
}

// Known reports whether a starting MSRP is available.
func (p Price) Known() bool { return p.StartingMSRP != nil }

type Performance struct {
	Horsepower        *int     `json:"horsepower,omitempty"`
	Torque            *int     `json:"torque,omitempty"`
	Acceleration0To60 *float64 `json:"acceleration_0_60,omitempty"`
	Engine            string   `json:"engine,omitempty"`
}

func (p Performance) Empty() bool {
	return p.Horsepower == nil && p.Torque == nil && p.Acceleration0To60 == nil && p.Engine == ""
}

type Specifications struct {
	Transmission string `json:"transmission,omitempty"`
	Drivetrain   string `json:"drivetrain,omitempty"`
	FuelType     string `json:"fuel_type,omitempty"`
}

func (s Specifications) Empty() bool {
	return s.Transmission == "" && s.Drivetrain == "" && s.FuelType == ""
}

// Dimensions are in inches.
type Dimensions struct {
	Length    *float64 `json:"length,omitempty"`
	Width     *float64 `json:"width,omitempty"`
	Height    *float64 `json:"height,omitempty"`
	Wheelbase *float64 `json:"wheelbase,omitempty"`
}

func (d Dimensions) Empty() bool {
	return d.Length == nil && d.Width == nil && d.Height == nil && d.Wheelbase == nil
}

// FuelEconomy is in miles per gallon (or MPGe for electric vehicles).
type FuelEconomy struct {
	City     *float64 `json:"city,omitempty"`
	Highway  *float64 `json:"highway,omitempty"`
	Combined *float64 `json:"combined,omitempty"`
}

func (f FuelEconomy) Empty() bool {
	return f.City == nil && f.Highway == nil && f.Combined == nil
}

// Dealer is the contact block found on listing pages.
type Dealer struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// Competitor is a same-band alternative to a record, seen from that record.
type Competitor struct {
	Manufacturer    string   `json:"manufacturer"`
	Model           string   `json:"model"`
	Year            int      `json:"year,omitempty"`
	Price           float64  `json:"price"`
	PriceDifference float64  `json:"price_difference"`
	Advantages      []string `json:"advantages"`
}

// Fragment is a partial extraction result from one source. Empty strings
// and nil pointers mean "not found on this page".
type Fragment struct {
	Manufacturer   string
	Model          string
	Year           *int
	StartingMSRP   *float64
	MaxPrice       *float64
	Performance    Performance
	Features       []string
	Specifications Specifications
	Dimensions     Dimensions
	FuelEconomy    FuelEconomy
	Dealer         *Dealer
}

// Empty reports whether the fragment carries no data at all.
func (f Fragment) Empty() bool {
	return f.Manufacturer == "" && f.Model == "" && f.Year == nil &&
		f.StartingMSRP == nil && f.MaxPrice == nil &&
		f.Performance.Empty() && len(f.Features) == 0 &&
		f.Specifications.Empty() && f.Dimensions.Empty() &&
		f.FuelEconomy.Empty() && f.Dealer == nil
}

// ValidationResult is the outcome of validating one record.
type ValidationResult struct {
	Valid    bool      `json:"valid"`
	Errors   []string  `json:"errors"`
	Warnings []string  `json:"warnings"`
	Data     CarRecord `json:"data"`
	Score    int       `json:"score"`
}

// Ptr returns a pointer to v. Convenient for optional record fields.
func Ptr[T any](v T) *T { return &v }
