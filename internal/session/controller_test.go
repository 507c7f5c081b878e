package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/campusconnect/internal/cache"
	"github.com/felixgeelhaar/campusconnect/internal/errors"
	"github.com/felixgeelhaar/campusconnect/internal/identity"
	"github.com/felixgeelhaar/campusconnect/internal/log"
	"github.com/felixgeelhaar/campusconnect/internal/metrics"
	"github.com/felixgeelhaar/campusconnect/internal/profile"
	"github.com/felixgeelhaar/campusconnect/internal/tenant"
)

type fakeProvider struct {
	identity.Emitter
	invalidateErr error
	invalidations atomic.Int32
}

func (p *fakeProvider) Invalidate(ctx context.Context) error {
	p.invalidations.Add(1)
	if p.invalidateErr != nil {
		return p.invalidateErr
	}
	p.Emit(nil)
	return nil
}

// gatedStore wraps a MemoryStore; Get for a gated user blocks until released,
// and so does Merge once gateMerge was called.
type gatedStore struct {
	*profile.MemoryStore

	mu           sync.Mutex
	gates        map[string]chan struct{}
	mergeGate    chan struct{}
	mergeStarted chan struct{}
	getErr       error
	mergeErr     error
}

func newGatedStore() *gatedStore {
	return &gatedStore{MemoryStore: profile.NewMemoryStore(), gates: make(map[string]chan struct{})}
}

func (s *gatedStore) gate(userID string) func() {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gates[userID] = ch
	s.mu.Unlock()
	return sync.OnceFunc(func() { close(ch) })
}

// gateMerge blocks every Merge until release is called. started receives
// once a Merge is waiting.
func (s *gatedStore) gateMerge() (started <-chan struct{}, release func()) {
	gate := make(chan struct{})
	ready := make(chan struct{}, 1)
	s.mu.Lock()
	s.mergeGate, s.mergeStarted = gate, ready
	s.mu.Unlock()
	return ready, sync.OnceFunc(func() { close(gate) })
}

func (s *gatedStore) Get(ctx context.Context, userID string) (*profile.Profile, error) {
	s.mu.Lock()
	ch, err := s.gates[userID], s.getErr
	s.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, errors.NewTransportError(errors.ErrCodeProfileTransport, "fetch profile", ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	return s.MemoryStore.Get(ctx, userID)
}

func (s *gatedStore) Merge(ctx context.Context, userID string, u profile.Update) error {
	s.mu.Lock()
	err, gate, started := s.mergeErr, s.mergeGate, s.mergeStarted
	s.mu.Unlock()
	if gate != nil {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return errors.NewTransportError(errors.ErrCodeProfileTransport, "merge profile", ctx.Err())
		}
	}
	if err != nil {
		return err
	}
	return s.MemoryStore.Merge(ctx, userID, u)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) listen(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type countingRouter struct{ calls atomic.Int32 }

func (r *countingRouter) RequestLogin() { r.calls.Add(1) }

type fixture struct {
	provider *fakeProvider
	store    *gatedStore
	cache    *cache.MemoryCache
	dir      *tenant.Directory
	metrics  *metrics.Metrics
	router   *countingRouter
	ctl      *Controller
}

func credential(userID string) *identity.Credential {
	return &identity.Credential{UserID: userID, Email: userID + "@example.edu", DisplayName: "User " + userID}
}

func seed(t interface{ Fatalf(string, ...any) }, s *gatedStore, userID, tenantID string) {
	p := &profile.Profile{UserID: userID, Email: userID + "@example.edu", FullName: "User " + userID, TenantID: tenantID}
	if err := s.Put(context.Background(), p); err != nil {
		t.Fatalf("seed %s: %v", userID, err)
	}
}

// newFixture builds a controller whose provider starts with cred. setup runs
// before the controller is created.
func newFixture(t *testing.T, cred *identity.Credential, setup ...func(*fixture)) *fixture {
	t.Helper()
	f := &fixture{
		provider: &fakeProvider{},
		store:    newGatedStore(),
		cache:    cache.NewMemoryCache(),
		dir:      tenant.Builtin(),
		metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
		router:   &countingRouter{},
	}
	f.provider.Emit(cred)
	for _, fn := range setup {
		fn(f)
	}
	f.ctl = New(f.provider, f.store, f.cache, f.dir,
		WithLogger(log.Nop()),
		WithMetrics(f.metrics),
		WithLoginRouter(f.router),
	)
	t.Cleanup(f.ctl.Close)
	return f
}

func (f *fixture) settle(t *testing.T) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.ctl.Settled(ctx))
	return f.ctl.Snapshot()
}

func (f *fixture) resolutions(outcome string) float64 {
	return testutil.ToFloat64(f.metrics.Resolutions.WithLabelValues(outcome))
}

func TestControllerWithoutCredential(t *testing.T) {
	f := newFixture(t, nil, func(f *fixture) {
		f.cache.Set(cache.TenantKey, "mit")
	})

	st := f.settle(t)
	assert.False(t, st.Authenticated())
	assert.False(t, st.Resolving)
	assert.Nil(t, st.Profile)
	assert.Empty(t, st.TenantID)

	_, ok := f.cache.Get(cache.TenantKey)
	assert.False(t, ok, "absent credential clears the cached tenant")
}

func TestControllerResolvesExistingProfile(t *testing.T) {
	f := newFixture(t, credential("alice"), func(f *fixture) {
		seed(t, f.store, "alice", "stanford")
	})

	st := f.settle(t)
	require.NotNil(t, st.Profile)
	assert.Equal(t, "alice", st.UserID())
	assert.Equal(t, "stanford", st.TenantID)
	assert.Equal(t, "Stanford University", st.TenantName())
	assert.False(t, st.Resolving)

	hint, ok := f.cache.Get(cache.TenantKey)
	assert.True(t, ok)
	assert.Equal(t, "stanford", hint)
	assert.Equal(t, 1.0, f.resolutions(metrics.OutcomeFound))
}

func TestControllerSynthesizesMissingProfile(t *testing.T) {
	f := newFixture(t, credential("bob"), func(f *fixture) {
		f.cache.Set(cache.TenantKey, "mit")
	})

	st := f.settle(t)
	require.NotNil(t, st.Profile)
	assert.Equal(t, "bob", st.Profile.UserID)
	assert.Equal(t, "bob@example.edu", st.Profile.Email)
	assert.Equal(t, "User bob", st.Profile.FullName)
	assert.Empty(t, st.TenantID)

	_, ok := f.cache.Get(cache.TenantKey)
	assert.False(t, ok)
	assert.Equal(t, 1.0, f.resolutions(metrics.OutcomeNotFound))
}

func TestControllerTransportFailure(t *testing.T) {
	f := newFixture(t, credential("alice"), func(f *fixture) {
		f.cache.Set(cache.TenantKey, "mit")
		f.store.getErr = errors.NewTransportError(errors.ErrCodeProfileTransport, "fetch profile", fmt.Errorf("connection refused"))
	})

	st := f.settle(t)
	assert.True(t, st.Authenticated())
	assert.Nil(t, st.Profile)
	assert.Empty(t, st.TenantID)
	assert.False(t, st.Resolving)

	hint, ok := f.cache.Get(cache.TenantKey)
	assert.True(t, ok, "transport failure keeps the cached tenant")
	assert.Equal(t, "mit", hint)
	assert.Equal(t, 1.0, f.resolutions(metrics.OutcomeTransportError))
}

func TestControllerSeedsTenantFromCacheWhileResolving(t *testing.T) {
	var release func()
	f := newFixture(t, credential("alice"), func(f *fixture) {
		seed(t, f.store, "alice", "stanford")
		f.cache.Set(cache.TenantKey, "mit")
		release = f.store.gate("alice")
	})

	st := f.ctl.Snapshot()
	assert.True(t, st.Resolving)
	assert.Equal(t, "mit", st.TenantID)

	release()
	st = f.settle(t)
	assert.Equal(t, "stanford", st.TenantID)
}

func TestControllerIgnoresUnknownCacheHint(t *testing.T) {
	var release func()
	f := newFixture(t, credential("alice"), func(f *fixture) {
		f.cache.Set(cache.TenantKey, "atlantis")
		release = f.store.gate("alice")
	})
	defer release()

	st := f.ctl.Snapshot()
	assert.True(t, st.Resolving)
	assert.Empty(t, st.TenantID)
}

func TestControllerDiscardsStaleResolution(t *testing.T) {
	var releaseAlice func()
	f := newFixture(t, credential("alice"), func(f *fixture) {
		seed(t, f.store, "alice", "stanford")
		seed(t, f.store, "bob", "mit")
		releaseAlice = f.store.gate("alice")
	})

	f.provider.Emit(credential("bob"))
	st := f.settle(t)
	require.Equal(t, "bob", st.UserID())
	require.Equal(t, "mit", st.TenantID)

	releaseAlice()
	require.Eventually(t, func() bool {
		return f.resolutions(metrics.OutcomeStale) == 1
	}, 2*time.Second, 5*time.Millisecond)

	st = f.ctl.Snapshot()
	assert.Equal(t, "bob", st.UserID())
	assert.Equal(t, "mit", st.TenantID)
	assert.Equal(t, "bob", st.Profile.UserID)
	hint, _ := f.cache.Get(cache.TenantKey)
	assert.Equal(t, "mit", hint)
}

func TestControllerSignOutDuringResolution(t *testing.T) {
	var release func()
	f := newFixture(t, credential("alice"), func(f *fixture) {
		seed(t, f.store, "alice", "stanford")
		release = f.store.gate("alice")
	})

	f.provider.Emit(nil)
	release()
	require.Eventually(t, func() bool {
		return f.resolutions(metrics.OutcomeStale) == 1
	}, 2*time.Second, 5*time.Millisecond)

	st := f.settle(t)
	assert.False(t, st.Authenticated())
	assert.Nil(t, st.Profile)
	assert.Empty(t, st.TenantID)
	_, ok := f.cache.Get(cache.TenantKey)
	assert.False(t, ok)
}

func TestControllerSwitchingUsersDropsPreviousProfile(t *testing.T) {
	var release func()
	f := newFixture(t, credential("alice"), func(f *fixture) {
		seed(t, f.store, "alice", "stanford")
	})
	f.settle(t)
	f.cache.Remove(cache.TenantKey)

	release = f.store.gate("bob")
	defer release()
	f.provider.Emit(credential("bob"))

	st := f.ctl.Snapshot()
	assert.Equal(t, "bob", st.UserID())
	assert.True(t, st.Resolving)
	assert.Nil(t, st.Profile)
	assert.Empty(t, st.TenantID)
}

func TestAssignTenant(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown tenant is rejected", func(t *testing.T) {
		f := newFixture(t, credential("alice"), func(f *fixture) {
			seed(t, f.store, "alice", "stanford")
		})
		before := f.settle(t)

		err := f.ctl.AssignTenant(ctx, "atlantis")
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeTenantUnknown, errors.CodeOf(err))
		assert.Equal(t, before, f.ctl.Snapshot())
	})

	t.Run("known tenant updates state cache and store", func(t *testing.T) {
		f := newFixture(t, credential("alice"), func(f *fixture) {
			seed(t, f.store, "alice", "stanford")
		})
		f.settle(t)

		require.NoError(t, f.ctl.AssignTenant(ctx, "mit"))

		st := f.ctl.Snapshot()
		assert.Equal(t, "mit", st.TenantID)
		assert.Equal(t, "mit", st.Profile.TenantID)
		assert.Equal(t, "Massachusetts Institute of Technology", st.TenantName())
		hint, _ := f.cache.Get(cache.TenantKey)
		assert.Equal(t, "mit", hint)

		stored, err := f.store.MemoryStore.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "mit", stored.TenantID)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TenantAssignments.WithLabelValues("success")))
	})

	t.Run("failed merge keeps the optimistic selection", func(t *testing.T) {
		f := newFixture(t, credential("alice"), func(f *fixture) {
			seed(t, f.store, "alice", "stanford")
			f.store.mergeErr = errors.NewTransportError(errors.ErrCodeProfileTransport, "merge profile", fmt.Errorf("503"))
		})
		f.settle(t)

		err := f.ctl.AssignTenant(ctx, "harvard")
		require.Error(t, err)
		assert.True(t, errors.IsTransport(err))
		assert.Equal(t, errors.ErrCodeTenantNotSaved, errors.CodeOf(err))

		st := f.ctl.Snapshot()
		assert.Equal(t, "harvard", st.TenantID)
		hint, _ := f.cache.Get(cache.TenantKey)
		assert.Equal(t, "harvard", hint)

		assert.Equal(t, "stanford", st.Profile.TenantID)
		assert.Equal(t, "Stanford University", st.TenantName())
		stored, err := f.store.MemoryStore.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "stanford", stored.TenantID)
	})

	t.Run("empty id clears the selection", func(t *testing.T) {
		f := newFixture(t, credential("alice"), func(f *fixture) {
			seed(t, f.store, "alice", "stanford")
		})
		f.settle(t)

		require.NoError(t, f.ctl.AssignTenant(ctx, ""))
		assert.Empty(t, f.ctl.Snapshot().TenantID)
		_, ok := f.cache.Get(cache.TenantKey)
		assert.False(t, ok)
	})

	t.Run("signed out assignment only touches local state", func(t *testing.T) {
		f := newFixture(t, nil)
		f.settle(t)

		require.NoError(t, f.ctl.AssignTenant(ctx, "vit"))
		assert.Equal(t, "vit", f.ctl.Snapshot().TenantID)
		assert.Equal(t, 0, f.store.Count())
	})
}

func TestAssignTenantDuringResolutionWins(t *testing.T) {
	var release func()
	f := newFixture(t, credential("alice"), func(f *fixture) {
		seed(t, f.store, "alice", "stanford")
		release = f.store.gate("alice")
		f.store.mergeErr = errors.NewTransportError(errors.ErrCodeProfileTransport, "merge profile", fmt.Errorf("timeout"))
	})

	err := f.ctl.AssignTenant(context.Background(), "mit")
	require.Error(t, err)

	release()
	st := f.settle(t)
	assert.Equal(t, "mit", st.TenantID)
	assert.Equal(t, "stanford", st.Profile.TenantID)
	hint, _ := f.cache.Get(cache.TenantKey)
	assert.Equal(t, "mit", hint)
}

func TestSavedAssignmentDuringResolutionReachesProfile(t *testing.T) {
	var release func()
	f := newFixture(t, credential("alice"), func(f *fixture) {
		seed(t, f.store, "alice", "stanford")
		release = f.store.gate("alice")
	})

	require.NoError(t, f.ctl.AssignTenant(context.Background(), "mit"))

	release()
	st := f.settle(t)
	assert.Equal(t, "mit", st.TenantID)
	assert.Equal(t, "mit", st.Profile.TenantID)
	assert.Equal(t, "Massachusetts Institute of Technology", st.TenantName())
}

func TestAssignTenantCachesBeforeMergeCompletes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.json")
	fc, err := cache.OpenFile(path, log.Nop())
	require.NoError(t, err)

	provider := &fakeProvider{}
	provider.Emit(credential("alice"))
	store := newGatedStore()
	seed(t, store, "alice", "stanford")

	ctl := New(provider, store, fc, tenant.Builtin(), WithLogger(log.Nop()))
	t.Cleanup(ctl.Close)
	settleCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, ctl.Settled(settleCtx))

	merging, releaseMerge := store.gateMerge()
	t.Cleanup(releaseMerge)

	done := make(chan error, 1)
	go func() { done <- ctl.AssignTenant(ctx, "mit") }()

	select {
	case <-merging:
	case <-time.After(2 * time.Second):
		t.Fatal("merge never started")
	}

	reloaded, err := cache.OpenFile(path, log.Nop())
	require.NoError(t, err)
	hint, ok := reloaded.Get(cache.TenantKey)
	require.True(t, ok)
	assert.Equal(t, "mit", hint)

	st := ctl.Snapshot()
	assert.Equal(t, "mit", st.TenantID)
	assert.Equal(t, "stanford", st.Profile.TenantID)

	releaseMerge()
	require.NoError(t, <-done)
	assert.Equal(t, "mit", ctl.Snapshot().Profile.TenantID)
}

func TestLogout(t *testing.T) {
	t.Run("clears state and routes to login", func(t *testing.T) {
		f := newFixture(t, credential("alice"), func(f *fixture) {
			seed(t, f.store, "alice", "stanford")
		})
		f.settle(t)

		require.NoError(t, f.ctl.Logout(context.Background()))

		st := f.ctl.Snapshot()
		assert.False(t, st.Authenticated())
		assert.Nil(t, st.Profile)
		assert.Empty(t, st.TenantID)
		_, ok := f.cache.Get(cache.TenantKey)
		assert.False(t, ok)
		assert.Equal(t, int32(1), f.provider.invalidations.Load())
		assert.Equal(t, int32(1), f.router.calls.Load())
	})

	t.Run("invalidate failure still clears local state", func(t *testing.T) {
		f := newFixture(t, credential("alice"), func(f *fixture) {
			seed(t, f.store, "alice", "stanford")
			f.provider.invalidateErr = fmt.Errorf("token revocation unavailable")
		})
		f.settle(t)

		err := f.ctl.Logout(context.Background())
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeSessionLogoutFailed, errors.CodeOf(err))
		assert.True(t, errors.IsTransport(err))

		st := f.ctl.Snapshot()
		assert.False(t, st.Authenticated())
		assert.Empty(t, st.TenantID)
		_, ok := f.cache.Get(cache.TenantKey)
		assert.False(t, ok)
		assert.Equal(t, int32(1), f.router.calls.Load())
	})

	t.Run("discards in-flight resolution", func(t *testing.T) {
		var release func()
		f := newFixture(t, credential("alice"), func(f *fixture) {
			seed(t, f.store, "alice", "stanford")
			release = f.store.gate("alice")
			f.provider.invalidateErr = fmt.Errorf("offline")
		})

		_ = f.ctl.Logout(context.Background())
		release()
		require.Eventually(t, func() bool {
			return f.resolutions(metrics.OutcomeStale) == 1
		}, 2*time.Second, 5*time.Millisecond)
		assert.False(t, f.ctl.Snapshot().Authenticated())
	})
}

func TestOnChange(t *testing.T) {
	f := newFixture(t, credential("alice"), func(f *fixture) {
		seed(t, f.store, "alice", "stanford")
	})
	f.settle(t)

	rec := &stateRecorder{}
	unsubscribe := f.ctl.OnChange(rec.listen)

	states := rec.all()
	require.Len(t, states, 1, "registration delivers the current state")
	assert.Equal(t, "stanford", states[0].TenantID)

	require.NoError(t, f.ctl.AssignTenant(context.Background(), "mit"))
	require.Len(t, rec.all(), 2)

	unsubscribe()
	unsubscribe()
	require.NoError(t, f.ctl.AssignTenant(context.Background(), "harvard"))
	assert.Len(t, rec.all(), 2)
}

func TestListenersObserveIncreasingVersions(t *testing.T) {
	f := newFixture(t, nil)
	rec := &stateRecorder{}
	f.ctl.OnChange(rec.listen)

	for i := 0; i < 20; i++ {
		f.provider.Emit(credential(fmt.Sprintf("user-%d", i%3)))
		if i%4 == 0 {
			f.provider.Emit(nil)
		}
	}
	f.settle(t)

	states := rec.all()
	require.NotEmpty(t, states)
	for i := 1; i < len(states); i++ {
		assert.Greater(t, states[i].Version, states[i-1].Version)
	}
	assert.Equal(t, f.ctl.Snapshot().Version, states[len(states)-1].Version)
}

func TestSettledHonorsContext(t *testing.T) {
	var release func()
	f := newFixture(t, credential("alice"), func(f *fixture) {
		release = f.store.gate("alice")
	})
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.ctl.Settled(ctx), context.DeadlineExceeded)
}

func TestClose(t *testing.T) {
	f := newFixture(t, credential("alice"), func(f *fixture) {
		seed(t, f.store, "alice", "stanford")
		f.store.gate("alice")
	})

	f.ctl.Close()
	f.ctl.Close()

	assert.Equal(t, 0, f.provider.Subscribers())
	assert.Equal(t, 1.0, f.resolutions(metrics.OutcomeStale))
	assert.True(t, f.ctl.Snapshot().Resolving)

	err := f.ctl.AssignTenant(context.Background(), "mit")
	assert.Equal(t, errors.ErrCodeSessionClosed, errors.CodeOf(err))
}
