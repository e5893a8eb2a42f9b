package audit

// EventType names a kind of security event.
type EventType string

const (
	EventSessionStart      EventType = "session_start"
	EventRequestMade       EventType = "request_made"
	EventRequestBlocked    EventType = "request_blocked"
	EventRequestRetry      EventType = "request_retry"
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
	EventThresholdExceeded EventType = "security_threshold_exceeded"
	EventCaptchaDetected   EventType = "captcha_detected"
	EventIPBlocked         EventType = "ip_blocked"
	EventSourceFailed      EventType = "source_failed"
	EventValidationFailed  EventType = "validation_failed"
	EventRecordAccepted    EventType = "record_accepted"
	EventPIIDetected       EventType = "pii_detected"
	EventConfigInvalid     EventType = "config_invalid"
	EventCheckpointFailed  EventType = "checkpoint_failed"
	EventFinalAudit        EventType = "final_audit"
)

// AllEventTypes lists every declared event kind.
var AllEventTypes = []EventType{
	EventSessionStart,
	EventRequestMade,
	EventRequestBlocked,
	EventRequestRetry,
	EventRateLimitExceeded,
	EventThresholdExceeded,
	EventCaptchaDetected,
	EventIPBlocked,
	EventSourceFailed,
	EventValidationFailed,
	EventRecordAccepted,
	EventPIIDetected,
	EventConfigInvalid,
	EventCheckpointFailed,
	EventFinalAudit,
}

// IncidentSeverity is the lowest severity recorded as an incident.
const IncidentSeverity = 3

const defaultSeverity = 2

// Severity maps an event kind to 1 (informational) .. 5 (critical).
// Undeclared kinds get 2.
func (t EventType) Severity() int {
	if sev, ok := severityOf(t); ok {
		return sev
	}
	return defaultSeverity
}

func severityOf(t EventType) (int, bool) {
	switch t {
	case EventSessionStart, EventRequestMade, EventRecordAccepted, EventFinalAudit:
		return 1, true
	case EventRequestRetry, EventSourceFailed, EventValidationFailed,
		EventPIIDetected, EventCheckpointFailed:
		return 2, true
	case EventRequestBlocked, EventRateLimitExceeded, EventCaptchaDetected, EventConfigInvalid:
		return 3, true
	case EventIPBlocked:
		return 4, true
	case EventThresholdExceeded:
		return 5, true
	}
	return 0, false
}
