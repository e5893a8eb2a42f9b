package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/use-agent/carscout/models"
)

var numRe = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)

// numbers returns every number in s, in order. Thousands separators are
// dropped.
func numbers(s string) []float64 {
	var out []float64
	for _, m := range numRe.FindAllString(s, -1) {
		f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
		if err == nil {
			out = append(out, f)
		}
	}
	return out
}

func firstFloat(s string) *float64 {
	if ns := numbers(s); len(ns) > 0 {
		return &ns[0]
	}
	return nil
}

func firstInt(s string) *int {
	if f := firstFloat(s); f != nil {
		return models.Ptr(int(*f))
	}
	return nil
}

// labelRule maps a spec-table label to a fragment field. Rules are tried
// in order and the first whose keyword occurs in the label wins.
type labelRule struct {
	keywords []string
	apply    func(f *models.Fragment, value string)
}

var labelRules = []labelRule{
	{[]string{"0-60", "0 to 60", "acceleration"}, func(f *models.Fragment, v string) {
		setFloat(&f.Performance.Acceleration0To60, firstFloat(v))
	}},
	{[]string{"price range"}, func(f *models.Fragment, v string) {
		ns := numbers(v)
		if len(ns) > 0 {
			setFloat(&f.StartingMSRP, &ns[0])
		}
		if len(ns) > 1 {
			setFloat(&f.MaxPrice, &ns[len(ns)-1])
		}
	}},
	{[]string{"max price", "top price", "fully loaded"}, func(f *models.Fragment, v string) {
		setFloat(&f.MaxPrice, firstFloat(v))
	}},
	{[]string{"msrp", "starting price", "base price", "price"}, func(f *models.Fragment, v string) {
		ns := numbers(v)
		if len(ns) > 0 {
			setFloat(&f.StartingMSRP, &ns[0])
		}
		if len(ns) > 1 && strings.ContainsAny(v, "-–") {
			setFloat(&f.MaxPrice, &ns[len(ns)-1])
		}
	}},
	{[]string{"horsepower", "hp", "power"}, func(f *models.Fragment, v string) {
		setInt(&f.Performance.Horsepower, firstInt(v))
	}},
	{[]string{"torque"}, func(f *models.Fragment, v string) {
		setInt(&f.Performance.Torque, firstInt(v))
	}},
	// Fuel economy needs the label as well as the value.
	{[]string{"mpg", "mpge", "fuel economy"}, nil},
	{[]string{"fuel type"}, func(f *models.Fragment, v string) {
		setString(&f.Specifications.FuelType, v)
	}},
	{[]string{"engine", "motor"}, func(f *models.Fragment, v string) {
		setString(&f.Performance.Engine, v)
	}},
	{[]string{"transmission", "gearbox"}, func(f *models.Fragment, v string) {
		setString(&f.Specifications.Transmission, v)
	}},
	{[]string{"drivetrain", "drive type", "driveline"}, func(f *models.Fragment, v string) {
		setString(&f.Specifications.Drivetrain, v)
	}},
	{[]string{"wheelbase"}, func(f *models.Fragment, v string) {
		setFloat(&f.Dimensions.Wheelbase, firstFloat(v))
	}},
	{[]string{"length"}, func(f *models.Fragment, v string) {
		setFloat(&f.Dimensions.Length, firstFloat(v))
	}},
	{[]string{"width"}, func(f *models.Fragment, v string) {
		setFloat(&f.Dimensions.Width, firstFloat(v))
	}},
	{[]string{"height"}, func(f *models.Fragment, v string) {
		setFloat(&f.Dimensions.Height, firstFloat(v))
	}},
	{[]string{"model year", "year"}, func(f *models.Fragment, v string) {
		if y := firstInt(v); y != nil && *y >= 1900 && *y <= 2100 && f.Year == nil {
			f.Year = y
		}
	}},
}

// applyFuelEconomy understands a labelled single value ("City MPG: 28") as
// well as slash-separated city/highway[/combined] triples.
func applyFuelEconomy(f *models.Fragment, label, value string) {
	l := strings.ToLower(label)
	ns := numbers(value)
	if len(ns) == 0 {
		return
	}
	switch {
	case strings.Contains(l, "city") && !strings.Contains(l, "/"):
		setFloat(&f.FuelEconomy.City, &ns[0])
	case (strings.Contains(l, "highway") || strings.Contains(l, "hwy")) && !strings.Contains(l, "/"):
		setFloat(&f.FuelEconomy.Highway, &ns[0])
	case len(ns) >= 3:
		setFloat(&f.FuelEconomy.City, &ns[0])
		setFloat(&f.FuelEconomy.Highway, &ns[1])
		setFloat(&f.FuelEconomy.Combined, &ns[2])
	case len(ns) == 2:
		setFloat(&f.FuelEconomy.City, &ns[0])
		setFloat(&f.FuelEconomy.Highway, &ns[1])
	default:
		setFloat(&f.FuelEconomy.Combined, &ns[0])
	}
}

// applyLabel routes one label/value pair. Reports whether a rule matched.
func applyLabel(f *models.Fragment, label, value string) bool {
	l := strings.ToLower(strings.TrimSpace(label))
	v := strings.TrimSpace(value)
	if l == "" || v == "" {
		return false
	}
	for _, r := range labelRules {
		for _, kw := range r.keywords {
			if !containsWord(l, kw) {
				continue
			}
			if r.apply == nil {
				applyFuelEconomy(f, l, v)
			} else {
				r.apply(f, v)
			}
			return true
		}
	}
	return false
}

// containsWord matches kw in label at word boundaries, so "hp" does not
// match inside "ship".
func containsWord(label, kw string) bool {
	idx := strings.Index(label, kw)
	for idx >= 0 {
		before := idx == 0 || !isWordByte(label[idx-1])
		end := idx + len(kw)
		after := end == len(label) || !isWordByte(label[end])
		if before && after {
			return true
		}
		next := strings.Index(label[idx+1:], kw)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// The setters never overwrite a value already found on the same page.

func setFloat(dst **float64, v *float64) {
	if *dst == nil && v != nil {
		*dst = v
	}
}

func setInt(dst **int, v *int) {
	if *dst == nil && v != nil {
		*dst = v
	}
}

func setString(dst *string, v string) {
	if *dst == "" {
		*dst = strings.TrimSpace(v)
	}
}
