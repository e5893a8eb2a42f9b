package pipeline

import (
	"time"

	"github.com/use-agent/carscout/models"
)

// SecurityScore starts at 100, loses 5 per incident, 10 more when over
// 10% of requests were blocked and another 20 when over 30% were. It never
// goes below 0.
func SecurityScore(incidents, requests, blocked int) int {
	score := 100 - 5*incidents
	if requests > 0 {
		rate := float64(blocked) / float64(requests)
		if rate > 0.1 {
			score -= 10
		}
		if rate > 0.3 {
			score -= 20
		}
	}
	return max(0, score)
}

func qualityDistribution(records []models.CarRecord) models.DataQualitySummary {
	var s models.DataQualitySummary
	if len(records) == 0 {
		return s
	}
	total := 0
	for _, r := range records {
		total += r.DataQuality
		switch {
		case r.DataQuality >= 90:
			s.Distribution.Excellent++
		case r.DataQuality >= 70:
			s.Distribution.Good++
		case r.DataQuality >= 50:
			s.Distribution.Fair++
		default:
			s.Distribution.Poor++
		}
	}
	s.AverageScore = float64(total) / float64(len(records))
	return s
}

func priceStatistics(records []models.CarRecord) models.PriceStatistics {
	var s models.PriceStatistics
	sum := 0.0
	for _, r := range records {
		if r.Price.StartingMSRP == nil {
			continue
		}
		p := *r.Price.StartingMSRP
		if s.Count == 0 || p < s.Min {
			s.Min = p
		}
		if s.Count == 0 || p > s.Max {
			s.Max = p
		}
		sum += p
		s.Count++
	}
	if s.Count > 0 {
		s.Average = sum / float64(s.Count)
	}
	return s
}

// buildMetadata summarizes plaintext records; call it before encryption.
func buildMetadata(records []models.CarRecord, summary models.AuditSummary, elapsed time.Duration, now time.Time) models.RunMetadata {
	return models.RunMetadata{
		TotalRecords:     len(records),
		ProcessingTimeMs: elapsed.Milliseconds(),
		SuccessRate:      summary.SuccessRate,
		SecurityAudit: models.SecurityAuditInfo{
			Score:     SecurityScore(summary.SecurityIncidents, summary.TotalRequests, summary.BlockedRequests),
			Incidents: summary.SecurityIncidents,
			Requests:  summary.TotalRequests,
			Blocked:   summary.BlockedRequests,
		},
		DataQualitySummary: qualityDistribution(records),
		PriceStatistics:    priceStatistics(records),
		Timestamp:          now.UTC(),
		Version:            models.Version,
	}
}
