package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/campusconnect/internal/cache"
	"github.com/felixgeelhaar/campusconnect/internal/errors"
	"github.com/felixgeelhaar/campusconnect/internal/identity"
	"github.com/felixgeelhaar/campusconnect/internal/log"
	"github.com/felixgeelhaar/campusconnect/internal/metrics"
	"github.com/felixgeelhaar/campusconnect/internal/profile"
	"github.com/felixgeelhaar/campusconnect/internal/telemetry"
)

// assignment records a tenant chosen while a resolution was in flight.
type assignment struct {
	set      bool
	tenantID string
	// saved is set once the remote merge for tenantID succeeded.
	saved bool
}

type listenerEntry struct {
	fn       Listener
	lastSeen uint64
}

// Controller owns the session state. Create one with New and Close it when done.
//
// Listeners are called synchronously and in version order. They must not call
// AssignTenant or Logout from inside the callback.
type Controller struct {
	provider  identity.Provider
	store     profile.Store
	cache     cache.Cache
	directory Directory

	logger  *log.Logger
	metrics *metrics.Metrics
	router  LoginRouter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    State
	seq      uint64
	assigned assignment
	settled  chan struct{}
	closed   bool

	unsubscribe func()
	closeOnce   sync.Once

	// emitMu serializes listener delivery.
	emitMu       sync.Mutex
	listeners    map[int]*listenerEntry
	nextListener int
}

// New creates a controller and subscribes it to provider. The provider's
// current credential is processed before New returns.
func New(provider identity.Provider, store profile.Store, c cache.Cache, directory Directory, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	ctl := &Controller{
		provider:  provider,
		store:     store,
		cache:     c,
		directory: directory,
		ctx:       ctx,
		cancel:    cancel,
		state:     State{Resolving: true},
		settled:   make(chan struct{}),
		listeners: make(map[int]*listenerEntry),
	}
	for _, opt := range opts {
		opt(ctl)
	}
	ctl.logger = log.Or(ctl.logger).With("component", "session")

	unsubscribe := provider.Subscribe(ctl.handleCredential)
	ctl.mu.Lock()
	ctl.unsubscribe = unsubscribe
	ctl.mu.Unlock()
	return ctl
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// OnChange registers l and immediately delivers the current state to it.
// The returned func unregisters l.
func (c *Controller) OnChange(l Listener) func() {
	c.emitMu.Lock()
	id := c.nextListener
	c.nextListener++
	entry := &listenerEntry{fn: l}
	c.listeners[id] = entry

	st := c.Snapshot()
	entry.lastSeen = st.Version
	l(st)
	c.emitMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.emitMu.Lock()
			delete(c.listeners, id)
			c.emitMu.Unlock()
		})
	}
}

// Settled blocks until no resolution is pending or ctx is done.
func (c *Controller) Settled(ctx context.Context) error {
	c.mu.Lock()
	ch := c.settled
	c.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commitLocked stamps a new version on the state and returns a copy to publish.
func (c *Controller) commitLocked() State {
	c.state.Version++
	if c.state.Resolving {
		if c.settled == nil {
			c.settled = make(chan struct{})
		}
	} else if c.settled != nil {
		close(c.settled)
		c.settled = nil
	}
	return c.state.Clone()
}

// publish delivers st to every listener that has not yet seen a newer state.
func (c *Controller) publish(st State) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	for _, entry := range c.listeners {
		if st.Version <= entry.lastSeen {
			continue
		}
		entry.lastSeen = st.Version
		entry.fn(st.Clone())
	}
}

func (c *Controller) handleCredential(cred *identity.Credential) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.seq++
	token := c.seq
	c.assigned = assignment{}
	c.metrics.RecordCredentialEvent(cred != nil)

	if cred == nil {
		c.state = State{Version: c.state.Version}
		c.cache.Remove(cache.TenantKey)
		st := c.commitLocked()
		c.mu.Unlock()

		c.logger.Debug("credential absent", "token", token)
		c.publish(st)
		return
	}

	if c.state.Credential != nil && c.state.Credential.UserID != cred.UserID {
		c.state.Profile = nil
		c.state.TenantID = ""
	}
	c.state.Credential = cred.Clone()
	c.state.Resolving = true
	if c.state.TenantID == "" {
		if hint, ok := c.cache.Get(cache.TenantKey); ok && c.directory.Contains(hint) {
			c.state.TenantID = hint
		}
	}
	st := c.commitLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Debug("credential present", "user_id", cred.UserID, "token", token)
	c.publish(st)
	go c.resolve(token, cred.Clone(), time.Now())
}

// resolve fetches the profile for cred and commits it if token is still current.
func (c *Controller) resolve(token uint64, cred *identity.Credential, started time.Time) {
	defer c.wg.Done()

	attemptID := uuid.NewString()
	logger := c.logger.With("user_id", cred.UserID, "token", token, "attempt_id", attemptID)
	ctx, span := telemetry.StartSpan(c.ctx, "session", "session.resolve",
		attribute.String(telemetry.AttrUserID, cred.UserID),
		attribute.Int64(telemetry.AttrToken, int64(token)),
		attribute.String("session.attempt_id", attemptID),
	)
	defer span.End()

	p, err := c.store.Get(ctx, cred.UserID)

	c.mu.Lock()
	if token != c.seq || c.closed {
		latest := c.seq
		c.mu.Unlock()
		logger.WithError(errors.NewStaleResolutionError(token, latest)).Debug("discarding stale resolution")
		c.metrics.RecordResolution(metrics.OutcomeStale, time.Since(started))
		span.SetAttributes(attribute.String(telemetry.AttrOutcome, metrics.OutcomeStale))
		return
	}

	var outcome string
	switch {
	case err == nil:
		outcome = metrics.OutcomeFound
		p = p.Clone()
		p.UserID = cred.UserID
		c.state.TenantID = p.TenantID
		if c.assigned.set {
			c.state.TenantID = c.assigned.tenantID
			if c.assigned.saved {
				p.TenantID = c.assigned.tenantID
			}
		}
		c.state.Profile = p

	case errors.IsNotFound(err):
		outcome = metrics.OutcomeNotFound
		p = &profile.Profile{UserID: cred.UserID, Email: cred.Email, FullName: cred.DisplayName}
		c.state.TenantID = ""
		if c.assigned.set {
			c.state.TenantID = c.assigned.tenantID
			if c.assigned.saved {
				p.TenantID = c.assigned.tenantID
			}
		}
		c.state.Profile = p

	default:
		outcome = metrics.OutcomeTransportError
		c.state.Profile = nil
		c.state.TenantID = ""
		if c.assigned.set {
			c.state.TenantID = c.assigned.tenantID
		}
	}

	if c.state.Profile != nil {
		c.state.Profile.TenantName = c.directory.DisplayName(c.state.Profile.TenantID)
		if c.state.TenantID != "" {
			c.cache.Set(cache.TenantKey, c.state.TenantID)
		} else {
			c.cache.Remove(cache.TenantKey)
		}
	}
	c.state.Resolving = false
	c.assigned = assignment{}
	st := c.commitLocked()
	c.mu.Unlock()

	elapsed := time.Since(started)
	c.metrics.RecordResolution(outcome, elapsed)
	span.SetAttributes(attribute.String(telemetry.AttrOutcome, outcome))
	if outcome == metrics.OutcomeTransportError {
		c.metrics.RecordError("session", err)
		telemetry.RecordError(span, err)
		logger.LogError("profile resolution failed", err)
	} else {
		telemetry.RecordSuccess(span, attribute.String(telemetry.AttrTenantID, st.TenantID))
		logger.Debug("profile resolved", "outcome", outcome, "tenant_id", st.TenantID, "duration", elapsed)
	}
	c.publish(st)
}

// AssignTenant selects tenantID ("" clears it). The cache and state are
// updated before the remote merge starts, and stay updated if it fails; in
// that case a TransportError-kind error is returned. The profile takes the
// new tenant only once the merge succeeds.
func (c *Controller) AssignTenant(ctx context.Context, tenantID string) error {
	if tenantID != "" && !c.directory.Contains(tenantID) {
		return errors.NewTenantUnknownError(tenantID)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New(errors.ErrCodeSessionClosed, "session controller is closed")
	}
	if tenantID == "" {
		c.cache.Remove(cache.TenantKey)
	} else {
		c.cache.Set(cache.TenantKey, tenantID)
	}
	c.state.TenantID = tenantID
	cred := c.state.Credential.Clone()
	if cred == nil || tenantID == "" {
		c.setProfileTenantLocked(tenantID)
	}
	if c.state.Resolving {
		c.assigned = assignment{set: true, tenantID: tenantID, saved: tenantID == ""}
	}
	st := c.commitLocked()
	c.mu.Unlock()

	c.publish(st)

	if cred == nil || tenantID == "" {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "session", "session.assign_tenant",
		attribute.String(telemetry.AttrUserID, cred.UserID),
		attribute.String(telemetry.AttrTenantID, tenantID),
	)
	defer span.End()

	logger := c.logger.With("user_id", cred.UserID, "tenant_id", tenantID)
	err := c.store.Merge(ctx, cred.UserID, profile.Update{TenantID: profile.StringPtr(tenantID)})
	c.metrics.RecordTenantAssignment(err)
	if err != nil {
		c.metrics.RecordError("session", err)
		logger.LogErrorContext(ctx, "tenant selection may not have saved", err)
		notSaved := errors.NewTenantNotSavedError(tenantID, err)
		telemetry.RecordError(span, notSaved)
		return notSaved
	}
	telemetry.RecordSuccess(span)
	logger.DebugContext(ctx, "tenant saved")
	c.confirmTenant(cred.UserID, tenantID)
	return nil
}

// confirmTenant applies a saved tenant to the profile if userID is still
// signed in and tenantID is still the selection.
func (c *Controller) confirmTenant(userID, tenantID string) {
	c.mu.Lock()
	if c.closed || c.state.UserID() != userID || c.state.TenantID != tenantID {
		c.mu.Unlock()
		return
	}
	if c.assigned.set && c.assigned.tenantID == tenantID {
		c.assigned.saved = true
	}
	if !c.setProfileTenantLocked(tenantID) {
		c.mu.Unlock()
		return
	}
	st := c.commitLocked()
	c.mu.Unlock()
	c.publish(st)
}

func (c *Controller) setProfileTenantLocked(tenantID string) bool {
	if c.state.Profile == nil || c.state.Profile.TenantID == tenantID {
		return false
	}
	p := c.state.Profile.Clone()
	p.TenantID = tenantID
	p.TenantName = c.directory.DisplayName(tenantID)
	c.state.Profile = p
	return true
}

// Logout invalidates the provider session and clears local state and cache.
// Local state is cleared even when invalidation fails; the failure is returned.
func (c *Controller) Logout(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "session", "session.logout")
	defer span.End()

	invalidateErr := c.provider.Invalidate(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New(errors.ErrCodeSessionClosed, "session controller is closed")
	}
	c.seq++
	c.assigned = assignment{}
	c.cache.Remove(cache.TenantKey)
	var st State
	changed := c.state.Credential != nil || c.state.Profile != nil || c.state.TenantID != "" || c.state.Resolving
	if changed {
		c.state = State{Version: c.state.Version}
		st = c.commitLocked()
	}
	c.mu.Unlock()

	if changed {
		c.publish(st)
	}
	c.metrics.RecordLogout(invalidateErr)
	if c.router != nil {
		c.router.RequestLogin()
	}

	if invalidateErr != nil {
		c.logger.LogErrorContext(ctx, "sign out did not complete", invalidateErr)
		err := errors.Wrap(errors.ErrCodeSessionLogoutFailed, "sign out did not complete", invalidateErr).
			WithKind(errors.KindTransport).
			WithSuggestion("You have been signed out on this device")
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.RecordSuccess(span)
	c.logger.InfoContext(ctx, "signed out")
	return nil
}

// Close unsubscribes from the provider and waits for in-flight resolutions,
// whose results are discarded.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.seq++
		unsubscribe := c.unsubscribe
		c.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		c.cancel()
		c.wg.Wait()
	})
}
