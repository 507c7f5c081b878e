// Package config handles CampusConnect configuration using Viper.
package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
)

// EnvPrefix is prepended to every environment override, e.g. CAMPUS_PROFILES_BACKEND.
const EnvPrefix = "CAMPUS"

// Identity backends.
const (
	IdentityLocal = "local"
	IdentityOIDC  = "oidc"
)

// Profile store backends.
const (
	ProfilesSQLite = "sqlite"
	ProfilesHTTP   = "http"
	ProfilesMemory = "memory"
)

// Config holds the application configuration.
type Config struct {
	Home      string          `mapstructure:"home"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Profiles  ProfilesConfig  `mapstructure:"profiles"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Tenants   TenantsConfig   `mapstructure:"tenants"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// File is the config file that was read, empty when only defaults applied.
	File string `mapstructure:"-"`
}

// IdentityConfig selects and configures the identity provider.
type IdentityConfig struct {
	Backend  string        `mapstructure:"backend"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	OIDC     OIDCConfig    `mapstructure:"oidc"`
}

// OIDCConfig configures ID-token sign-in.
type OIDCConfig struct {
	Issuer   string `mapstructure:"issuer"`
	ClientID string `mapstructure:"client_id"`
	JWKSURL  string `mapstructure:"jwks_url"`
}

// ProfilesConfig selects and configures the profile store.
type ProfilesConfig struct {
	Backend string        `mapstructure:"backend"`
	Path    string        `mapstructure:"path"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig locates the local tenant cache.
type CacheConfig struct {
	Path string `mapstructure:"path"`
}

// TenantsConfig optionally replaces the built-in college directory.
type TenantsConfig struct {
	File string `mapstructure:"file"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the Prometheus endpoint served by `watch`.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ServerConfig configures `campusconnect profiles serve`.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RequireAuth makes the service verify bearer tokens with the identity provider.
	RequireAuth bool `mapstructure:"require_auth"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

// Options control where configuration is read from.
type Options struct {
	// ConfigFile is an explicit config file; when empty, config.yaml is looked up in the home directory.
	ConfigFile string
	// Home overrides the home directory from file and environment.
	Home string
}

// DefaultHome returns ~/.campusconnect.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".campusconnect"
	}
	return filepath.Join(home, ".campusconnect")
}

// Load reads configuration from file and environment.
func Load(opts Options) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	home := resolveHome(opts.Home)
	if opts.ConfigFile != "" {
		file := expandHome(opts.ConfigFile)
		if _, err := os.Stat(file); err != nil {
			return nil, errors.NewFileNotFoundError(file)
		}
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(home)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, errors.NewFileUnmarshalError(v.ConfigFileUsed(), "YAML", err)
		}
	}

	if opts.Home != "" {
		v.Set("home", opts.Home)
	} else if !v.IsSet("home") || v.GetString("home") == "" {
		v.Set("home", home)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "failed to decode configuration", err).
			WithKind(errors.KindInvalid)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.fillPaths()

	return &cfg, nil
}

func resolveHome(override string) string {
	if override != "" {
		return expandHome(override)
	}
	if env := os.Getenv(EnvPrefix + "_HOME"); env != "" {
		return expandHome(env)
	}
	return DefaultHome()
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// fillPaths expands ~ and places unset file paths under Home.
func (c *Config) fillPaths() {
	c.Home = expandHome(c.Home)
	if c.Profiles.Path == "" {
		c.Profiles.Path = filepath.Join(c.Home, "profiles.db")
	}
	if c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(c.Home, "cache.json")
	}
	c.Profiles.Path = expandHome(c.Profiles.Path)
	c.Cache.Path = expandHome(c.Cache.Path)
	c.Tenants.File = expandHome(c.Tenants.File)
}

// AccountsPath is where the local identity provider keeps password hashes.
func (c *Config) AccountsPath() string {
	return filepath.Join(c.Home, "accounts.json")
}

// TokenPath is where the signed-in session token is kept between runs.
func (c *Config) TokenPath() string {
	return filepath.Join(c.Home, "session.jwt")
}

// SigningKeyPath is the local provider's token signing key.
func (c *Config) SigningKeyPath() string {
	return filepath.Join(c.Home, "signing.key")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("home", "")

	v.SetDefault("identity.backend", IdentityLocal)
	v.SetDefault("identity.issuer", "campusconnect")
	v.SetDefault("identity.token_ttl", 30*24*time.Hour)
	v.SetDefault("identity.oidc.issuer", "")
	v.SetDefault("identity.oidc.client_id", "")
	v.SetDefault("identity.oidc.jwks_url", "")

	v.SetDefault("profiles.backend", ProfilesSQLite)
	v.SetDefault("profiles.path", "")
	v.SetDefault("profiles.base_url", "")
	v.SetDefault("profiles.timeout", 10*time.Second)

	v.SetDefault("cache.path", "")
	v.SetDefault("tenants.file", "")

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "127.0.0.1:9464")

	v.SetDefault("server.addr", "127.0.0.1:8088")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.require_auth", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.sample_rate", 1.0)
	v.SetDefault("telemetry.environment", "development")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Identity.Backend {
	case IdentityLocal:
		if c.Identity.TokenTTL <= 0 {
			return errors.NewConfigInvalidError("identity.token_ttl", "must be positive")
		}
	case IdentityOIDC:
		if c.Identity.OIDC.Issuer == "" {
			return errors.NewConfigInvalidError("identity.oidc.issuer", "required for the oidc backend")
		}
		if c.Identity.OIDC.ClientID == "" {
			return errors.NewConfigInvalidError("identity.oidc.client_id", "required for the oidc backend")
		}
	default:
		return errors.NewConfigInvalidError("identity.backend",
			"must be one of: "+IdentityLocal+", "+IdentityOIDC)
	}

	switch c.Profiles.Backend {
	case ProfilesSQLite:
		if c.Profiles.Path == "" {
			return errors.NewConfigInvalidError("profiles.path", "required for the sqlite backend")
		}
	case ProfilesHTTP:
		if c.Profiles.BaseURL == "" {
			return errors.NewConfigInvalidError("profiles.base_url", "required for the http backend")
		}
		if c.Profiles.Timeout <= 0 {
			return errors.NewConfigInvalidError("profiles.timeout", "must be positive")
		}
	case ProfilesMemory:
	default:
		return errors.NewConfigInvalidError("profiles.backend",
			"must be one of: "+ProfilesSQLite+", "+ProfilesHTTP+", "+ProfilesMemory)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.NewConfigInvalidError("logging.level", "must be one of: debug, info, warn, error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "console", "json":
	default:
		return errors.NewConfigInvalidError("logging.format", "must be one of: text, json")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.NewConfigInvalidError("metrics.addr", "required when metrics are enabled")
	}
	if c.Server.ShutdownTimeout < 0 {
		return errors.NewConfigInvalidError("server.shutdown_timeout", "must not be negative")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return errors.NewConfigInvalidError("telemetry.sample_rate", "must be between 0 and 1")
	}
	return nil
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	v := viper.New()

	v.Set("home", cfg.Home)
	v.Set("identity.backend", cfg.Identity.Backend)
	v.Set("identity.issuer", cfg.Identity.Issuer)
	v.Set("identity.token_ttl", cfg.Identity.TokenTTL.String())
	v.Set("identity.oidc.issuer", cfg.Identity.OIDC.Issuer)
	v.Set("identity.oidc.client_id", cfg.Identity.OIDC.ClientID)
	v.Set("identity.oidc.jwks_url", cfg.Identity.OIDC.JWKSURL)
	v.Set("profiles.backend", cfg.Profiles.Backend)
	v.Set("profiles.path", cfg.Profiles.Path)
	v.Set("profiles.base_url", cfg.Profiles.BaseURL)
	v.Set("profiles.timeout", cfg.Profiles.Timeout.String())
	v.Set("cache.path", cfg.Cache.Path)
	v.Set("tenants.file", cfg.Tenants.File)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("logging.format", cfg.Logging.Format)
	v.Set("metrics.enabled", cfg.Metrics.Enabled)
	v.Set("metrics.addr", cfg.Metrics.Addr)
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("server.shutdown_timeout", cfg.Server.ShutdownTimeout.String())
	v.Set("server.require_auth", cfg.Server.RequireAuth)
	v.Set("telemetry.enabled", cfg.Telemetry.Enabled)
	v.Set("telemetry.endpoint", cfg.Telemetry.Endpoint)
	v.Set("telemetry.insecure", cfg.Telemetry.Insecure)
	v.Set("telemetry.sample_rate", cfg.Telemetry.SampleRate)
	v.Set("telemetry.environment", cfg.Telemetry.Environment)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create config directory", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write config file", err)
	}
	return nil
}
