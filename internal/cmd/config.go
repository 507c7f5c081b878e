package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/campusconnect/internal/config"
	"github.com/felixgeelhaar/campusconnect/internal/errors"
	"github.com/felixgeelhaar/campusconnect/internal/tui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create the configuration file",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file location",
	RunE:  runConfigPath,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var configInitForce bool

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")

	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads configuration without opening any store.
func loadConfig(cmd *cobra.Command) (*CommandContext, *config.Config, error) {
	cctx, err := NewCommandContext(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(config.Options{ConfigFile: cctx.ConfigFile, Home: cctx.Home})
	if err != nil {
		return nil, nil, err
	}
	return cctx, cfg, nil
}

// configPath is the file in use, or where init would write one.
func configPath(cctx *CommandContext, cfg *config.Config) string {
	switch {
	case cfg.File != "":
		return cfg.File
	case cctx.ConfigFile != "":
		return cctx.ConfigFile
	default:
		return filepath.Join(cfg.Home, "config.yaml")
	}
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	cctx, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), configPath(cctx, cfg))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cctx, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := configPath(cctx, cfg)
	if _, err := os.Stat(path); err == nil && !configInitForce {
		overwrite := false
		if tui.ShouldPrompt() {
			overwrite, err = tui.PromptForConfirmation("Overwrite "+path+"?", false)
			if err != nil {
				return err
			}
		}
		if !overwrite {
			return errors.New(errors.ErrCodeFileWriteFailed, "configuration file already exists: "+path).
				WithKind(errors.KindInvalid).
				WithSuggestion("Use --force to overwrite it")
		}
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Wrote "+path))
	return nil
}

// configView is the printed form of config.Config.
type configView struct {
	File     string `json:"file,omitempty" yaml:"file,omitempty"`
	Home     string `json:"home" yaml:"home"`
	Identity struct {
		Backend  string `json:"backend" yaml:"backend"`
		Issuer   string `json:"issuer" yaml:"issuer"`
		TokenTTL string `json:"token_ttl" yaml:"token_ttl"`
		OIDC     struct {
			Issuer   string `json:"issuer,omitempty" yaml:"issuer,omitempty"`
			ClientID string `json:"client_id,omitempty" yaml:"client_id,omitempty"`
			JWKSURL  string `json:"jwks_url,omitempty" yaml:"jwks_url,omitempty"`
		} `json:"oidc" yaml:"oidc"`
	} `json:"identity" yaml:"identity"`
	Profiles struct {
		Backend string `json:"backend" yaml:"backend"`
		Path    string `json:"path,omitempty" yaml:"path,omitempty"`
		BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
		Timeout string `json:"timeout" yaml:"timeout"`
	} `json:"profiles" yaml:"profiles"`
	Cache   string `json:"cache" yaml:"cache"`
	Tenants string `json:"tenants,omitempty" yaml:"tenants,omitempty"`
	Logging struct {
		Level  string `json:"level" yaml:"level"`
		Format string `json:"format" yaml:"format"`
	} `json:"logging" yaml:"logging"`
	Metrics struct {
		Enabled bool   `json:"enabled" yaml:"enabled"`
		Addr    string `json:"addr" yaml:"addr"`
	} `json:"metrics" yaml:"metrics"`
	Server struct {
		Addr            string `json:"addr" yaml:"addr"`
		ShutdownTimeout string `json:"shutdown_timeout" yaml:"shutdown_timeout"`
		RequireAuth     bool   `json:"require_auth" yaml:"require_auth"`
	} `json:"server" yaml:"server"`
	Telemetry struct {
		Enabled     bool    `json:"enabled" yaml:"enabled"`
		Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
		Insecure    bool    `json:"insecure" yaml:"insecure"`
		SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
		Environment string  `json:"environment" yaml:"environment"`
	} `json:"telemetry" yaml:"telemetry"`
}

func newConfigView(cfg *config.Config) configView {
	var v configView
	v.File = cfg.File
	v.Home = cfg.Home
	v.Identity.Backend = cfg.Identity.Backend
	v.Identity.Issuer = cfg.Identity.Issuer
	v.Identity.TokenTTL = cfg.Identity.TokenTTL.String()
	v.Identity.OIDC.Issuer = cfg.Identity.OIDC.Issuer
	v.Identity.OIDC.ClientID = cfg.Identity.OIDC.ClientID
	v.Identity.OIDC.JWKSURL = cfg.Identity.OIDC.JWKSURL
	v.Profiles.Backend = cfg.Profiles.Backend
	v.Profiles.Path = cfg.Profiles.Path
	v.Profiles.BaseURL = cfg.Profiles.BaseURL
	v.Profiles.Timeout = cfg.Profiles.Timeout.String()
	v.Cache = cfg.Cache.Path
	v.Tenants = cfg.Tenants.File
	v.Logging.Level = cfg.Logging.Level
	v.Logging.Format = cfg.Logging.Format
	v.Metrics.Enabled = cfg.Metrics.Enabled
	v.Metrics.Addr = cfg.Metrics.Addr
	v.Server.Addr = cfg.Server.Addr
	v.Server.ShutdownTimeout = cfg.Server.ShutdownTimeout.String()
	v.Server.RequireAuth = cfg.Server.RequireAuth
	v.Telemetry.Enabled = cfg.Telemetry.Enabled
	v.Telemetry.Endpoint = cfg.Telemetry.Endpoint
	v.Telemetry.Insecure = cfg.Telemetry.Insecure
	v.Telemetry.SampleRate = cfg.Telemetry.SampleRate
	v.Telemetry.Environment = cfg.Telemetry.Environment
	return v
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cctx, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format := cctx.Format
	if format == "" || format == "text" {
		format = "yaml"
	}
	_, err = writeStructured(cmd.OutOrStdout(), format, newConfigView(cfg))
	return err
}
