package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
)

// Resolution outcomes.
const (
	OutcomeFound          = "found"
	OutcomeNotFound       = "not_found"
	OutcomeTransportError = "transport_error"
	OutcomeStale          = "stale"
)

// Metrics holds all Prometheus metrics for CampusConnect.
//
// Recorder methods are safe on a nil *Metrics so components run unmetered.
type Metrics struct {
	// Session controller metrics
	CredentialEvents   *prometheus.CounterVec
	Resolutions        *prometheus.CounterVec
	ResolutionDuration prometheus.Histogram
	TenantAssignments  *prometheus.CounterVec
	Logouts            *prometheus.CounterVec

	// Router guard metrics
	Redirects *prometheus.CounterVec

	// Profile service metrics
	ProfileRequests        *prometheus.CounterVec
	ProfileRequestDuration *prometheus.HistogramVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		CredentialEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campusconnect_credential_events_total",
				Help: "Credential events received from the identity provider",
			},
			[]string{"kind"},
		),
		Resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campusconnect_resolutions_total",
				Help: "Profile resolutions by outcome",
			},
			[]string{"outcome"},
		),
		ResolutionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "campusconnect_resolution_duration_seconds",
				Help:    "Time from credential event to committed or discarded resolution",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		TenantAssignments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campusconnect_tenant_assignments_total",
				Help: "Tenant assignments by outcome of the remote merge",
			},
			[]string{"outcome"},
		),
		Logouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campusconnect_logouts_total",
				Help: "Logouts by outcome of provider invalidation",
			},
			[]string{"outcome"},
		),
		Redirects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campusconnect_redirects_total",
				Help: "Redirects issued by the router guard",
			},
			[]string{"target"},
		),
		ProfileRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campusconnect_profile_requests_total",
				Help: "Requests served by the profile service",
			},
			[]string{"method", "status"},
		),
		ProfileRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campusconnect_profile_request_duration_seconds",
				Help:    "Profile service request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campusconnect_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}

// RecordCredentialEvent counts a present or absent credential event.
func (m *Metrics) RecordCredentialEvent(present bool) {
	if m == nil {
		return
	}
	kind := "absent"
	if present {
		kind = "present"
	}
	m.CredentialEvents.WithLabelValues(kind).Inc()
}

// RecordResolution counts a resolution outcome and its duration.
func (m *Metrics) RecordResolution(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(outcome).Inc()
	m.ResolutionDuration.Observe(d.Seconds())
}

// RecordTenantAssignment counts an assignment; err is the merge result.
func (m *Metrics) RecordTenantAssignment(err error) {
	if m == nil {
		return
	}
	m.TenantAssignments.WithLabelValues(outcome(err)).Inc()
}

// RecordLogout counts a logout; err is the invalidation result.
func (m *Metrics) RecordLogout(err error) {
	if m == nil {
		return
	}
	m.Logouts.WithLabelValues(outcome(err)).Inc()
}

// RecordRedirect counts a guard redirect to target.
func (m *Metrics) RecordRedirect(target string) {
	if m == nil {
		return
	}
	m.Redirects.WithLabelValues(target).Inc()
}

// RecordProfileRequest counts a profile service request.
func (m *Metrics) RecordProfileRequest(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProfileRequests.WithLabelValues(method, status).Inc()
	m.ProfileRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordError counts err by its structured code; uncoded errors count as "unknown".
func (m *Metrics) RecordError(component string, err error) {
	if m == nil || err == nil {
		return
	}
	code := string(errors.CodeOf(err))
	if code == "" {
		code = "unknown"
	}
	m.Errors.WithLabelValues(code, component).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.IsTransport(err):
		return OutcomeTransportError
	default:
		return "error"
	}
}
