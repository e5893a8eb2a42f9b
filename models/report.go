package models

import "time"

// SecurityEvent is one entry of the audit log.
type SecurityEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Details   map[string]any `json:"details,omitempty"`
	Severity  int            `json:"severity"`
}

// AuditSummary is a point-in-time snapshot of the audit counters.
type AuditSummary struct {
	SessionID         string  `json:"session_id"`
	ProcessingTimeMs  int64   `json:"processing_time"`
	TotalRequests     int     `json:"total_requests"`
	BlockedRequests   int     `json:"blocked_requests"`
	RetryCount        int     `json:"retry_count"`
	SecurityIncidents int     `json:"security_incidents"`
	SuccessRate       float64 `json:"success_rate"`
}

// AuditTrail is the bounded export of the audit log bundled with a run.
type AuditTrail struct {
	SessionID   string          `json:"session_id"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
	TotalEvents int             `json:"total_events"`
	Events      []SecurityEvent `json:"events"`
	Incidents   []SecurityEvent `json:"incidents"`
}

// RunOutput is the final product of a pipeline run.
type RunOutput struct {
	Data     []CarRecord `json:"data"`
	Metadata RunMetadata `json:"metadata"`
	Security AuditTrail  `json:"security"`
}

// RunMetadata summarizes a run.
type RunMetadata struct {
	TotalRecords       int                `json:"total_records"`
	ProcessingTimeMs   int64              `json:"processing_time"`
	SuccessRate        float64            `json:"success_rate"`
	SecurityAudit      SecurityAuditInfo  `json:"security_audit"`
	DataQualitySummary DataQualitySummary `json:"data_quality_summary"`
	PriceStatistics    PriceStatistics    `json:"price_statistics"`
	Timestamp          time.Time          `json:"timestamp"`
	Version            string             `json:"version"`
}

type SecurityAuditInfo struct {
	Score     int `json:"score"`
	Incidents int `json:"incidents"`
	Requests  int `json:"requests"`
	Blocked   int `json:"blocked"`
}

type DataQualitySummary struct {
	AverageScore float64             `json:"average_score"`
	Distribution QualityDistribution `json:"distribution"`
}

// QualityDistribution buckets records by data quality:
// excellent ≥90, good 70–89, fair 50–69, poor <50.
type QualityDistribution struct {
	Excellent int `json:"excellent"`
	Good      int `json:"good"`
	Fair      int `json:"fair"`
	Poor      int `json:"poor"`
}

type PriceStatistics struct {
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Count   int     `json:"count"`
}

// Version is reported in run metadata and health checks.
const Version = "0.3.0"
