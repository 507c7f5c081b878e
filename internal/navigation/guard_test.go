package navigation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/campusconnect/internal/cache"
	"github.com/felixgeelhaar/campusconnect/internal/identity"
	"github.com/felixgeelhaar/campusconnect/internal/log"
	"github.com/felixgeelhaar/campusconnect/internal/metrics"
	"github.com/felixgeelhaar/campusconnect/internal/profile"
	"github.com/felixgeelhaar/campusconnect/internal/session"
	"github.com/felixgeelhaar/campusconnect/internal/tenant"
)

type recordingRouter struct {
	mu        sync.Mutex
	redirects []Screen
}

func (r *recordingRouter) Redirect(to Screen) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirects = append(r.redirects, to)
}

func (r *recordingRouter) all() []Screen {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Screen(nil), r.redirects...)
}

func TestGuardRedirectsOnce(t *testing.T) {
	router := &recordingRouter{}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	g := NewGuard(router, Messages, WithGuardLogger(log.Nop()), WithGuardMetrics(m))

	assert.Equal(t, Decision{Kind: Loading}, g.Decision(), "no state yet")

	g.OnStateChange(anonymous())
	g.OnStateChange(anonymous())
	g.OnStateChange(session.State{Version: 7})

	assert.Equal(t, []Screen{Login}, router.all())
	assert.Equal(t, Login, g.Pending())
	assert.Equal(t, Messages, g.Current())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Redirects.WithLabelValues("/login")))

	g.Navigate(Login)
	assert.Equal(t, Login, g.Current())
	assert.Empty(t, g.Pending())
	assert.Equal(t, Decision{Kind: Stay}, g.Decision())
	assert.Len(t, router.all(), 1)
}

func TestGuardFollowsPhases(t *testing.T) {
	router := &recordingRouter{}
	g := NewGuard(router, Landing, WithGuardLogger(log.Nop()))

	g.OnStateChange(anonymous())
	assert.Empty(t, router.all(), "landing is public")

	g.Navigate(Login)
	g.OnStateChange(resolving())
	assert.Empty(t, router.all(), "resolving never redirects")

	g.OnStateChange(noTenant())
	assert.Empty(t, router.all(), "login stays reachable without a tenant")

	g.Navigate(Feed)
	assert.Equal(t, []Screen{TenantSelection}, router.all())

	g.Navigate(TenantSelection)
	g.OnStateChange(withTenant("mit"))
	assert.Equal(t, []Screen{TenantSelection, Feed}, router.all())
}

func TestGuardNavigateReevaluates(t *testing.T) {
	router := &recordingRouter{}
	g := NewGuard(router, Feed, WithGuardLogger(log.Nop()))
	g.OnStateChange(withTenant("stanford"))
	require.Empty(t, router.all())

	g.Navigate(Signup)
	assert.Equal(t, []Screen{Feed}, router.all())
	g.Navigate(Feed)
	assert.Equal(t, Decision{Kind: Stay}, g.Decision())
}

func TestGuardRequestLogin(t *testing.T) {
	router := &recordingRouter{}
	g := NewGuard(router, Feed, WithGuardLogger(log.Nop()))

	g.RequestLogin()
	g.RequestLogin()
	assert.Equal(t, []Screen{Login}, router.all())

	g.Navigate(Login)
	g.RequestLogin()
	assert.Len(t, router.all(), 1, "already on login")
}

func TestRouterFunc(t *testing.T) {
	var got Screen
	RouterFunc(func(to Screen) { got = to }).Redirect(Feed)
	assert.Equal(t, Feed, got)
}

type guardHarness struct {
	emitter *fakeIdentity
	store   *profile.MemoryStore
	cache   *cache.MemoryCache
	router  *recordingRouter
	guard   *Guard
	ctl     *session.Controller
}

type fakeIdentity struct{ identity.Emitter }

func (f *fakeIdentity) Invalidate(context.Context) error {
	f.Emit(nil)
	return nil
}

func newGuardHarness(t *testing.T, start Screen, cred *identity.Credential, profiles ...*profile.Profile) *guardHarness {
	t.Helper()
	h := &guardHarness{
		emitter: &fakeIdentity{},
		store:   profile.NewMemoryStore(),
		cache:   cache.NewMemoryCache(),
		router:  &recordingRouter{},
	}
	for _, p := range profiles {
		require.NoError(t, h.store.Put(context.Background(), p))
	}
	h.emitter.Emit(cred)

	h.guard = NewGuard(h.router, start, WithGuardLogger(log.Nop()))
	h.ctl = session.New(h.emitter, h.store, h.cache, tenant.Builtin(),
		session.WithLogger(log.Nop()),
		session.WithLoginRouter(h.guard),
	)
	t.Cleanup(h.ctl.Close)
	h.ctl.OnChange(h.guard.OnStateChange)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.ctl.Settled(ctx))
	return h
}

func TestScenarioAnonymousOnMessages(t *testing.T) {
	h := newGuardHarness(t, Messages, nil)
	assert.Equal(t, []Screen{Login}, h.router.all())
}

func TestScenarioProfileWithoutTenant(t *testing.T) {
	h := newGuardHarness(t, Feed, alice, &profile.Profile{UserID: "alice", Email: "alice@example.edu"})
	assert.Equal(t, []Screen{TenantSelection}, h.router.all())
}

func TestScenarioTenantOnLogin(t *testing.T) {
	h := newGuardHarness(t, Login, alice, &profile.Profile{UserID: "alice", TenantID: "stanford"})

	assert.Equal(t, []Screen{Feed}, h.router.all())
	hint, ok := h.cache.Get(cache.TenantKey)
	require.True(t, ok)
	assert.Equal(t, "stanford", hint)
}

func TestScenarioLogoutRoutesToLogin(t *testing.T) {
	h := newGuardHarness(t, Feed, alice, &profile.Profile{UserID: "alice", TenantID: "mit"})
	require.Empty(t, h.router.all())

	require.NoError(t, h.ctl.Logout(context.Background()))
	assert.Equal(t, []Screen{Login}, h.router.all())
	assert.Equal(t, Unauthenticated, PhaseOf(h.ctl.Snapshot()))
}
