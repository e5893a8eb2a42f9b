package source

import (
	"strings"

	"github.com/use-agent/carscout/models"
)

// Merge folds a fragment into a record. Non-empty scalars in f overwrite
// the record's, nested structs merge field by field, and features are
// unioned keeping first-seen order. r is not modified.
func Merge(r models.CarRecord, f models.Fragment) models.CarRecord {
	out := r

	if f.Manufacturer != "" {
		out.Manufacturer = f.Manufacturer
	}
	if f.Model != "" {
		out.Model = f.Model
	}
	if f.Year != nil {
		out.Year = *f.Year
	}
	if f.StartingMSRP != nil {
		out.Price.StartingMSRP = models.Ptr(*f.StartingMSRP)
		out.Price.IsEstimated = false
	}
	if f.MaxPrice != nil {
		out.Price.MaxPrice = models.Ptr(*f.MaxPrice)
	}

	mergeInt(&out.Performance.Horsepower, f.Performance.Horsepower)
	mergeInt(&out.Performance.Torque, f.Performance.Torque)
	mergeFloat(&out.Performance.Acceleration0To60, f.Performance.Acceleration0To60)
	mergeString(&out.Performance.Engine, f.Performance.Engine)

	mergeString(&out.Specifications.Transmission, f.Specifications.Transmission)
	mergeString(&out.Specifications.Drivetrain, f.Specifications.Drivetrain)
	mergeString(&out.Specifications.FuelType, f.Specifications.FuelType)

	mergeFloat(&out.Dimensions.Length, f.Dimensions.Length)
	mergeFloat(&out.Dimensions.Width, f.Dimensions.Width)
	mergeFloat(&out.Dimensions.Height, f.Dimensions.Height)
	mergeFloat(&out.Dimensions.Wheelbase, f.Dimensions.Wheelbase)

	mergeFloat(&out.FuelEconomy.City, f.FuelEconomy.City)
	mergeFloat(&out.FuelEconomy.Highway, f.FuelEconomy.Highway)
	mergeFloat(&out.FuelEconomy.Combined, f.FuelEconomy.Combined)

	out.Features = unionFeatures(r.Features, f.Features)

	if f.Dealer != nil {
		d := models.Dealer{}
		if r.Dealer != nil {
			d = *r.Dealer
		}
		mergeString(&d.Name, f.Dealer.Name)
		mergeString(&d.Phone, f.Dealer.Phone)
		mergeString(&d.Email, f.Dealer.Email)
		mergeString(&d.Address, f.Dealer.Address)
		out.Dealer = &d
	}
	return out
}

// unionFeatures never returns nil.
func unionFeatures(have, add []string) []string {
	out := make([]string, 0, len(have)+len(add))
	seen := make(map[string]struct{}, len(have)+len(add))
	for _, list := range [][]string{have, add} {
		for _, f := range list {
			key := strings.ToLower(strings.TrimSpace(f))
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

func mergeInt(dst **int, v *int) {
	if v != nil {
		*dst = models.Ptr(*v)
	}
}

func mergeFloat(dst **float64, v *float64) {
	if v != nil {
		*dst = models.Ptr(*v)
	}
}

func mergeString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
