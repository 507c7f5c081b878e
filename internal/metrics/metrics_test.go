package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m == nil {
		t.Fatal("expected metrics, got nil")
	}

	tests := []struct {
		name   string
		metric interface{}
	}{
		{"CredentialEvents", m.CredentialEvents},
		{"Resolutions", m.Resolutions},
		{"ResolutionDuration", m.ResolutionDuration},
		{"TenantAssignments", m.TenantAssignments},
		{"Logouts", m.Logouts},
		{"Redirects", m.Redirects},
		{"ProfileRequests", m.ProfileRequests},
		{"ProfileRequestDuration", m.ProfileRequestDuration},
		{"Errors", m.Errors},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("expected %s to be initialized", tt.name)
			}
		})
	}
}

func TestRecorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	transport := errors.NewTransportError(errors.ErrCodeProfileTransport, "merge profile", fmt.Errorf("503"))

	m.RecordCredentialEvent(true)
	m.RecordCredentialEvent(true)
	m.RecordCredentialEvent(false)
	m.RecordResolution(OutcomeFound, 20*time.Millisecond)
	m.RecordResolution(OutcomeStale, 5*time.Millisecond)
	m.RecordTenantAssignment(nil)
	m.RecordTenantAssignment(transport)
	m.RecordLogout(fmt.Errorf("boom"))
	m.RecordRedirect("/select-college")
	m.RecordProfileRequest("GET", "404", time.Millisecond)
	m.RecordError("session", transport)
	m.RecordError("session", fmt.Errorf("plain"))

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"present events", testutil.ToFloat64(m.CredentialEvents.WithLabelValues("present")), 2},
		{"absent events", testutil.ToFloat64(m.CredentialEvents.WithLabelValues("absent")), 1},
		{"found", testutil.ToFloat64(m.Resolutions.WithLabelValues(OutcomeFound)), 1},
		{"stale", testutil.ToFloat64(m.Resolutions.WithLabelValues(OutcomeStale)), 1},
		{"assign success", testutil.ToFloat64(m.TenantAssignments.WithLabelValues("success")), 1},
		{"assign transport", testutil.ToFloat64(m.TenantAssignments.WithLabelValues(OutcomeTransportError)), 1},
		{"logout error", testutil.ToFloat64(m.Logouts.WithLabelValues("error")), 1},
		{"redirect", testutil.ToFloat64(m.Redirects.WithLabelValues("/select-college")), 1},
		{"profile request", testutil.ToFloat64(m.ProfileRequests.WithLabelValues("GET", "404")), 1},
		{"coded error", testutil.ToFloat64(m.Errors.WithLabelValues("PROFILE-002", "session")), 1},
		{"uncoded error", testutil.ToFloat64(m.Errors.WithLabelValues("unknown", "session")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if n := testutil.CollectAndCount(m.ResolutionDuration); n != 1 {
		t.Errorf("expected one resolution histogram, got %d", n)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.RecordCredentialEvent(true)
	m.RecordResolution(OutcomeFound, time.Second)
	m.RecordTenantAssignment(nil)
	m.RecordLogout(nil)
	m.RecordRedirect("/feed")
	m.RecordProfileRequest("GET", "200", time.Second)
	m.RecordError("session", fmt.Errorf("x"))
}
