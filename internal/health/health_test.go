package health

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
	"github.com/felixgeelhaar/campusconnect/internal/profile"
)

type stubChecker struct {
	name   string
	result *Result
	delay  time.Duration
}

func (s *stubChecker) Name() string { return s.name }

func (s *stubChecker) Check(ctx context.Context) *Result {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Unhealthy("check cancelled").WithDetail("error", ctx.Err().Error())
		}
	}
	return s.result
}

func TestManagerCheck(t *testing.T) {
	m := NewManager()
	m.AddChecker(&stubChecker{name: "a", result: Healthy("ok")})
	m.AddChecker(&stubChecker{name: "b", result: Degraded("slow")})

	results := m.Check(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusHealthy, results["a"].Status)
	assert.Equal(t, StatusDegraded, results["b"].Status)
	assert.Equal(t, []string{"a", "b"}, m.CheckNames())
}

func TestManagerTimeout(t *testing.T) {
	m := NewManager().WithTimeout(10 * time.Millisecond)
	m.AddChecker(&stubChecker{name: "slow", result: Healthy("late"), delay: time.Second})
	m.AddChecker(&stubChecker{name: "nil"})

	results := m.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
	assert.Equal(t, StatusUnhealthy, results["nil"].Status)
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name    string
		results map[string]*Result
		want    Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", map[string]*Result{"a": Healthy(""), "b": Healthy("")}, StatusHealthy},
		{"one degraded", map[string]*Result{"a": Healthy(""), "b": Degraded("")}, StatusDegraded},
		{"one unhealthy", map[string]*Result{"a": Degraded(""), "b": Unhealthy("")}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OverallStatus(tt.results))
		})
	}
}

func TestProbeManager(t *testing.T) {
	pm := NewProbeManager("1.2.3")
	pm.AddChecker(&stubChecker{name: "store", result: Healthy("ok")})

	live := pm.CheckLiveness(context.Background())
	assert.Equal(t, StatusHealthy, live.Status)
	assert.Equal(t, "1.2.3", live.Version)

	ready := pm.CheckReadiness(context.Background())
	assert.Equal(t, StatusHealthy, ready.Status)
	assert.Contains(t, ready.Checks, "store")

	pm.MarkShutdown()
	assert.True(t, pm.IsShuttingDown())
	assert.Equal(t, StatusDegraded, pm.CheckLiveness(context.Background()).Status)
	ready = pm.CheckReadiness(context.Background())
	assert.Equal(t, StatusUnhealthy, ready.Status)
	assert.Empty(t, ready.Checks)
}

type failingStore struct {
	profile.Store
	err error
}

func (f failingStore) Get(context.Context, string) (*profile.Profile, error) { return nil, f.err }

func TestStoreChecker(t *testing.T) {
	tests := []struct {
		name  string
		store profile.Store
		want  Status
	}{
		{"not found is reachable", profile.NewMemoryStore(), StatusHealthy},
		{"transport failure", failingStore{err: errors.NewTransportError(errors.ErrCodeProfileTransport, "fetch profile", fmt.Errorf("refused"))}, StatusUnhealthy},
		{"invalid answer", failingStore{err: errors.New(errors.ErrCodeProfileInvalid, "bad").WithKind(errors.KindInvalid)}, StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewStoreChecker(tt.store, "test")
			assert.Equal(t, "profile-store", c.Name())
			r := c.Check(context.Background())
			assert.Equal(t, tt.want, r.Status)
			assert.Equal(t, "test", r.Details["backend"])
		})
	}
}
