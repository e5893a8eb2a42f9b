package validator

import (
	"encoding/json"
	"regexp"
)

// PIIReport is advisory; it never blocks acceptance.
type PIIReport struct {
	HasPII   bool     `json:"has_pii"`
	PIIFound []string `json:"pii_found"`
	Count    int      `json:"count"`
}

var piiPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{"email", regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{"phone", regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{"vin", regexp.MustCompile(`\b[A-HJ-NPR-Z0-9]{17}\b`)},
}

// CheckForPII scans the JSON form of data for emails, phone numbers and
// VINs.
func (v *Validator) CheckForPII(data any) PIIReport {
	b, err := json.Marshal(data)
	if err != nil {
		return PIIReport{PIIFound: []string{}}
	}
	text := string(b)

	report := PIIReport{PIIFound: []string{}}
	for _, p := range piiPatterns {
		n := len(p.re.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		report.PIIFound = append(report.PIIFound, p.kind)
		report.Count += n
	}
	report.HasPII = report.Count > 0
	return report
}
