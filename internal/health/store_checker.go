package health

import (
	"context"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
	"github.com/felixgeelhaar/campusconnect/internal/profile"
)

// probeUserID is looked up by StoreChecker; it never exists.
const probeUserID = "health-probe"

// StoreChecker reads from a profile store. A not-found answer proves the
// store is reachable.
type StoreChecker struct {
	store   profile.Store
	backend string
}

// NewStoreChecker creates a checker for store; backend is reported in details.
func NewStoreChecker(store profile.Store, backend string) *StoreChecker {
	return &StoreChecker{store: store, backend: backend}
}

func (c *StoreChecker) Name() string { return "profile-store" }

func (c *StoreChecker) Check(ctx context.Context) *Result {
	_, err := c.store.Get(ctx, probeUserID)
	switch {
	case err == nil || errors.IsNotFound(err):
		return Healthy("profile store reachable").WithDetail("backend", c.backend)
	case errors.IsTransport(err):
		return Unhealthy("profile store unreachable").
			WithDetail("backend", c.backend).
			WithDetail("error", err.Error())
	default:
		return Degraded("profile store answered with an error").
			WithDetail("backend", c.backend).
			WithDetail("error_code", string(errors.CodeOf(err)))
	}
}
