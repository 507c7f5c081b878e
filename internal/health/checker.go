// Package health reports whether the profile service can serve requests.
//
// Checkers probe one dependency each; Manager runs them in parallel with a
// per-check timeout and ProbeManager turns the results into liveness and
// readiness answers.
package health

import (
	"context"
	"time"
)

// Checker probes a single dependency.
type Checker interface {
	// Name is lowercase with hyphens, e.g. "profile-store".
	Name() string
	// Check must respect ctx's deadline.
	Check(ctx context.Context) *Result
}

// Status is the health of a dependency.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) String() string {
	return string(s)
}

// Result is the outcome of one check.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Latency time.Duration  `json:"latency_ns"`
}

// NewResult creates a result with the given status and message.
func NewResult(status Status, message string) *Result {
	return &Result{
		Status:  status,
		Message: message,
		Details: make(map[string]any),
	}
}

// WithDetail adds a detail and returns r.
func (r *Result) WithDetail(key string, value any) *Result {
	r.Details[key] = value
	return r
}

// Healthy creates a healthy result.
func Healthy(message string) *Result { return NewResult(StatusHealthy, message) }

// Degraded creates a degraded result.
func Degraded(message string) *Result { return NewResult(StatusDegraded, message) }

// Unhealthy creates an unhealthy result.
func Unhealthy(message string) *Result { return NewResult(StatusUnhealthy, message) }
