package audit

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carscout", Subsystem: "audit", Name: "events_total", Help: "Security events logged, by type and severity."},
		[]string{"type", "severity"},
	)
	incidentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "carscout", Subsystem: "audit", Name: "incidents_total", Help: "Security events at incident severity."},
	)
)

func init() {
	_ = prometheus.Register(eventsTotal)
	_ = prometheus.Register(incidentsTotal)
}

func observe(t EventType, severity int) {
	eventsTotal.WithLabelValues(string(t), strconv.Itoa(severity)).Inc()
	if severity >= IncidentSeverity {
		incidentsTotal.Inc()
	}
}
