package navigation

import (
	"sync"

	"github.com/felixgeelhaar/campusconnect/internal/log"
	"github.com/felixgeelhaar/campusconnect/internal/metrics"
	"github.com/felixgeelhaar/campusconnect/internal/session"
)

// Router performs navigation. Redirect must not call back into the Guard
// synchronously; report arrival with Guard.Navigate instead.
type Router interface {
	Redirect(to Screen)
}

// RouterFunc adapts a function to Router.
type RouterFunc func(to Screen)

// Redirect calls f(to).
func (f RouterFunc) Redirect(to Screen) { f(to) }

// Guard re-evaluates Decide on every state change and screen navigation and
// issues each redirect at most once while it is pending.
type Guard struct {
	router  Router
	logger  *log.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	state   session.State
	current Screen
	pending Screen
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithGuardLogger sets the guard's logger.
func WithGuardLogger(l *log.Logger) GuardOption {
	return func(g *Guard) { g.logger = l }
}

// WithGuardMetrics counts redirects.
func WithGuardMetrics(m *metrics.Metrics) GuardOption {
	return func(g *Guard) { g.metrics = m }
}

// NewGuard creates a guard positioned on start. Until the first state
// arrives the guard treats the session as resolving.
func NewGuard(router Router, start Screen, opts ...GuardOption) *Guard {
	g := &Guard{router: router, current: start, state: session.State{Resolving: true}}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = log.Or(g.logger).With("component", "navigation")
	return g
}

// OnStateChange is a session.Listener.
func (g *Guard) OnStateChange(st session.State) {
	g.mu.Lock()
	g.state = st
	g.mu.Unlock()
	g.evaluate()
}

// Navigate records arrival on screen and re-evaluates. Arrival anywhere
// settles the pending redirect.
func (g *Guard) Navigate(screen Screen) {
	g.mu.Lock()
	g.current = screen
	g.pending = ""
	g.mu.Unlock()
	g.evaluate()
}

// RequestLogin implements session.LoginRouter.
func (g *Guard) RequestLogin() {
	g.mu.Lock()
	issue := g.current != Login && g.pending != Login
	if issue {
		g.pending = Login
	}
	g.mu.Unlock()
	if issue {
		g.redirect(Login, "logout")
	}
}

// Current returns the screen the user is on.
func (g *Guard) Current() Screen {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Pending returns the redirect not yet confirmed by Navigate, or "".
func (g *Guard) Pending() Screen {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// Decision returns the decision for the current screen and last seen state.
func (g *Guard) Decision() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Decide(g.state, g.current)
}

func (g *Guard) evaluate() {
	g.mu.Lock()
	d := Decide(g.state, g.current)
	issue := d.Kind == Redirect && d.Target != g.current && d.Target != g.pending
	if issue {
		g.pending = d.Target
	}
	phase := PhaseOf(g.state)
	from := g.current
	g.mu.Unlock()

	if issue {
		g.redirect(d.Target, phase.String(), "from", from)
	}
}

func (g *Guard) redirect(to Screen, reason string, args ...any) {
	g.logger.Debug("redirect", append([]any{"to", to.String(), "reason", reason}, args...)...)
	g.metrics.RecordRedirect(to.String())
	if g.router != nil {
		g.router.Redirect(to)
	}
}
