package validator

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/use-agent/carscout/models"
)

// maxStringLength caps every sanitized string, in runes.
const maxStringLength = 200

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	scriptTagRe   = regexp.MustCompile(`(?i)</?script\b[^>]*>`)

	// Applied after angle brackets are gone, repeatedly until nothing
	// matches, so removals cannot splice a new match together.
	xssPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)javascript\s*:`),
		regexp.MustCompile(`(?i)vbscript\s*:`),
		regexp.MustCompile(`(?i)data\s*:`),
		regexp.MustCompile(`(?i)\bon\w+\s*=`),
	}

	dropChars = "<>\"'"
)

// SanitizeString strips script blocks, angle brackets and quotes, and
// script-bearing URI schemes and inline handlers, then trims and caps the
// result. It is idempotent.
func SanitizeString(s string) string {
	if s == "" {
		return s
	}
	s = scriptBlockRe.ReplaceAllString(s, "")
	s = scriptTagRe.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(dropChars, r) {
			return -1
		}
		return r
	}, s)
	for {
		next := s
		for _, re := range xssPatterns {
			next = re.ReplaceAllString(next, "")
		}
		if next == s {
			break
		}
		s = next
	}
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxStringLength {
		s = strings.TrimSpace(string([]rune(s)[:maxStringLength]))
	}
	return s
}

// sanitizeList sanitizes every entry, drops empties and duplicates, and
// keeps first-seen order. A nil list stays nil.
func sanitizeList(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = SanitizeString(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// sanitizeRecord returns a deep copy of r with every free-text string
// sanitized. Machine-generated fields (integrity hash, sealed price) are
// copied as-is.
func sanitizeRecord(r models.CarRecord) models.CarRecord {
	out := r
	out.Manufacturer = SanitizeString(r.Manufacturer)
	out.Model = SanitizeString(r.Model)
	out.Performance.Engine = SanitizeString(r.Performance.Engine)
	out.Specifications = models.Specifications{
		Transmission: SanitizeString(r.Specifications.Transmission),
		Drivetrain:   SanitizeString(r.Specifications.Drivetrain),
		FuelType:     SanitizeString(r.Specifications.FuelType),
	}
	out.Features = sanitizeList(r.Features)
	out.SourceURLs = sanitizeList(r.SourceURLs)

	if r.Dealer != nil {
		out.Dealer = &models.Dealer{
			Name:    SanitizeString(r.Dealer.Name),
			Phone:   SanitizeString(r.Dealer.Phone),
			Email:   SanitizeString(r.Dealer.Email),
			Address: SanitizeString(r.Dealer.Address),
		}
	}

	if r.Competitors != nil {
		out.Competitors = make([]models.Competitor, len(r.Competitors))
		for i, c := range r.Competitors {
			c.Manufacturer = SanitizeString(c.Manufacturer)
			c.Model = SanitizeString(c.Model)
			c.Advantages = sanitizeList(c.Advantages)
			out.Competitors[i] = c
		}
	}
	return out
}
