package cmd

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/campusconnect/internal/cache"
	"github.com/felixgeelhaar/campusconnect/internal/config"
	"github.com/felixgeelhaar/campusconnect/internal/errors"
	"github.com/felixgeelhaar/campusconnect/internal/identity"
	"github.com/felixgeelhaar/campusconnect/internal/log"
	"github.com/felixgeelhaar/campusconnect/internal/metrics"
	"github.com/felixgeelhaar/campusconnect/internal/navigation"
	"github.com/felixgeelhaar/campusconnect/internal/platform"
	"github.com/felixgeelhaar/campusconnect/internal/profile"
	"github.com/felixgeelhaar/campusconnect/internal/session"
	"github.com/felixgeelhaar/campusconnect/internal/telemetry"
	"github.com/felixgeelhaar/campusconnect/internal/tenant"
	"github.com/felixgeelhaar/campusconnect/internal/version"
)

const (
	// maxHops bounds how many redirects a single command follows.
	maxHops = 10
	// redirectBuffer bounds redirects queued before a command follows them.
	redirectBuffer = 16
)

// app holds the components a command works with. Create it with loadApp,
// then startSession for commands that need the session controller.
type app struct {
	ctx       *CommandContext
	cfg       *config.Config
	logger    *log.Logger
	directory *tenant.Directory
	registry  *prometheus.Registry
	metrics   *metrics.Metrics

	provider identity.Provider
	local    *identity.LocalProvider
	oidc     *identity.OIDCProvider

	store      profile.Store
	closeStore func() error

	session   *session.Controller
	guard     *navigation.Guard
	redirects chan navigation.Screen

	span trace.Span

	mu   sync.Mutex
	hops []navigation.Screen
}

// loadApp reads configuration and opens the provider and profile store.
func loadApp(cmd *cobra.Command) (*app, error) {
	cctx, err := NewCommandContext(cmd)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(config.Options{ConfigFile: cctx.ConfigFile, Home: cctx.Home})
	if err != nil {
		return nil, err
	}
	if cctx.LogLevel != "" {
		cfg.Logging.Level = cctx.LogLevel
	}
	if cctx.LogFormat != "" {
		cfg.Logging.Format = cctx.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logCfg := log.FromSettings(cfg.Logging.Level, cfg.Logging.Format, version.GetInfo().Short())
	logCfg.Output = log.NewOutput(cmd.ErrOrStderr())
	logger := log.New(logCfg)
	log.SetDefaultLogger(logger)

	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create home directory", err)
	}

	directory, err := tenant.Load(cfg.Tenants.File)
	if err != nil {
		return nil, err
	}

	if err := startTracing(cmd, cfg, logger); err != nil {
		return nil, err
	}

	registry, m := metrics.NewRegistry()
	a := &app{
		ctx:       cctx,
		cfg:       cfg,
		logger:    logger,
		directory: directory,
		registry:  registry,
		metrics:   m,
	}

	ctx, span := telemetry.StartCommandSpan(cmd.Context(), cmd.Name())
	cmd.SetContext(ctx)
	a.span = span

	if err := a.openProvider(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openStore(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// startTracing installs the tracer provider when telemetry is enabled.
func startTracing(cmd *cobra.Command, cfg *config.Config, logger *log.Logger) error {
	if !cfg.Telemetry.Enabled {
		return nil
	}
	tcfg := telemetry.DefaultConfig()
	tcfg.Enabled = true
	tcfg.Endpoint = cfg.Telemetry.Endpoint
	tcfg.Insecure = cfg.Telemetry.Insecure
	tcfg.SampleRate = cfg.Telemetry.SampleRate
	tcfg.Environment = cfg.Telemetry.Environment
	if _, err := telemetry.InitProvider(cmd.Context(), tcfg); err != nil {
		return errors.NewConfigInvalidError("telemetry", err.Error())
	}
	logger.Debug("tracing enabled", "endpoint", tcfg.Endpoint, "sample_rate", tcfg.SampleRate)
	return nil
}

func (a *app) openProvider(ctx context.Context) error {
	switch a.cfg.Identity.Backend {
	case config.IdentityOIDC:
		p, err := identity.NewOIDCProvider(ctx, identity.OIDCConfig{
			Issuer:    a.cfg.Identity.OIDC.Issuer,
			ClientID:  a.cfg.Identity.OIDC.ClientID,
			JWKSURL:   a.cfg.Identity.OIDC.JWKSURL,
			TokenPath: a.cfg.TokenPath(),
			Logger:    a.logger,
		})
		if err != nil {
			return err
		}
		a.oidc = p
		a.provider = p
	default:
		p, err := identity.NewLocalProvider(identity.LocalConfig{
			AccountsPath:   a.cfg.AccountsPath(),
			TokenPath:      a.cfg.TokenPath(),
			SigningKeyPath: a.cfg.SigningKeyPath(),
			Issuer:         a.cfg.Identity.Issuer,
			TokenTTL:       a.cfg.Identity.TokenTTL,
			Logger:         a.logger,
		})
		if err != nil {
			return err
		}
		a.local = p
		a.provider = p
	}
	return nil
}

func (a *app) openStore() error {
	switch a.cfg.Profiles.Backend {
	case config.ProfilesHTTP:
		client := platform.NewClient(a.cfg.Profiles.BaseURL, a.cfg.Profiles.Timeout)
		if ts, ok := a.provider.(identity.TokenSource); ok {
			client.Token = ts.Token
		}
		a.store = platform.NewProfileStore(client)
	case config.ProfilesMemory:
		a.store = profile.NewMemoryStore()
	default:
		s, err := profile.OpenSQLite(a.cfg.Profiles.Path)
		if err != nil {
			return err
		}
		a.store = s
		a.closeStore = s.Close
	}
	return nil
}

// startSession builds the guard on start and the session controller feeding
// it. A nil router queues redirects for follow.
func (a *app) startSession(start navigation.Screen, router navigation.Router) error {
	c, err := cache.OpenFile(a.cfg.Cache.Path, a.logger)
	if err != nil {
		return err
	}

	if router == nil {
		a.redirects = make(chan navigation.Screen, redirectBuffer)
		router = navigation.RouterFunc(a.queueRedirect)
	}
	a.guard = navigation.NewGuard(router, start,
		navigation.WithGuardLogger(a.logger),
		navigation.WithGuardMetrics(a.metrics),
	)
	a.session = session.New(a.provider, a.store, c, a.directory,
		session.WithLogger(a.logger),
		session.WithMetrics(a.metrics),
		session.WithLoginRouter(a.guard),
	)
	a.session.OnChange(a.guard.OnStateChange)
	return nil
}

func (a *app) queueRedirect(to navigation.Screen) {
	select {
	case a.redirects <- to:
	default:
		a.logger.Warn("redirect dropped", "to", to.String())
	}
}

// screen parses the --screen flag.
func (a *app) screen() (navigation.Screen, error) {
	return navigation.ParseScreen(a.ctx.Screen)
}

// follow waits for the session to settle and then lands on every queued
// redirect, the way a router would.
func (a *app) follow(ctx context.Context) error {
	for i := 0; i < maxHops; i++ {
		if err := a.session.Settled(ctx); err != nil {
			return err
		}
		select {
		case to := <-a.redirects:
			a.land(to)
		default:
			return nil
		}
	}
	a.logger.Warn("redirect limit reached", "limit", maxHops, "screen", a.guard.Current().String())
	return nil
}

// navigate lands on screen and follows any redirect it causes.
func (a *app) navigate(ctx context.Context, screen navigation.Screen) error {
	a.land(screen)
	return a.follow(ctx)
}

func (a *app) land(screen navigation.Screen) {
	a.mu.Lock()
	a.hops = append(a.hops, screen)
	a.mu.Unlock()
	a.guard.Navigate(screen)
}

// followed returns the screens landed on so far.
func (a *app) followed() []navigation.Screen {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]navigation.Screen(nil), a.hops...)
}

func (a *app) requireLocal() (*identity.LocalProvider, error) {
	if a.local == nil {
		return nil, errors.NewConfigInvalidError("identity.backend",
			"email and password accounts need the "+config.IdentityLocal+" backend")
	}
	return a.local, nil
}

// Close releases the controller and the profile store, then flushes spans.
func (a *app) Close() {
	defer a.stopTracing()
	if a.session != nil {
		a.session.Close()
	}
	if a.closeStore != nil {
		if err := a.closeStore(); err != nil {
			a.logger.LogError("failed to close profile store", err)
		}
	}
}

func (a *app) stopTracing() {
	if a.span != nil {
		a.span.End()
	}
	if !a.cfg.Telemetry.Enabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := telemetry.Shutdown(ctx); err != nil {
		a.logger.LogError("failed to flush traces", err)
	}
}
