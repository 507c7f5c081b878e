package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/campusconnect/internal/config"
	"github.com/felixgeelhaar/campusconnect/internal/errors"
	"github.com/felixgeelhaar/campusconnect/internal/health"
	"github.com/felixgeelhaar/campusconnect/internal/identity"
	"github.com/felixgeelhaar/campusconnect/internal/server"
	"github.com/felixgeelhaar/campusconnect/internal/version"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Profile service commands",
}

var profilesServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the profile store over HTTP",
	Long: `Serve the configured profile store to other CampusConnect clients. Point
their profiles.backend at "http" and profiles.base_url at this address.

Endpoints:
  GET   /v1/profiles/{id}  read a profile
  PATCH /v1/profiles/{id}  merge fields into a profile
  PUT   /v1/profiles/{id}  replace a profile
  GET   /health/live       liveness probe
  GET   /health/ready      readiness probe, checks the profile store
  GET   /metrics           Prometheus metrics

With server.require_auth every profile request must carry a bearer token
issued by the configured identity provider for the same user.`,
	RunE: runProfilesServe,
}

var serveAddr string

func init() {
	profilesServeCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr)")

	profilesCmd.AddCommand(profilesServeCmd)
	rootCmd.AddCommand(profilesCmd)
}

func runProfilesServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Profiles.Backend == config.ProfilesHTTP {
		return errors.NewConfigInvalidError("profiles.backend",
			"the profile service needs a local store, not "+config.ProfilesHTTP)
	}

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	info := version.GetInfo()
	probes := health.NewProbeManager(info.Version)
	probes.AddChecker(health.NewStoreChecker(a.store, a.cfg.Profiles.Backend))

	opts := []server.Option{
		server.WithLogger(a.logger),
		server.WithMetrics(a.metrics, a.registry),
	}
	if a.cfg.Server.RequireAuth {
		v, ok := a.provider.(identity.Verifier)
		if !ok {
			return errors.NewConfigInvalidError("server.require_auth", "the identity backend cannot verify tokens")
		}
		opts = append(opts, server.WithVerifier(v))
	}

	srv := server.NewServer(a.store, probes, server.Config{
		Address:         addr,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}, opts...)

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.NewTransportError(errors.ErrCodeProfileTransport, "listen on "+addr, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("campusconnect profile service"), info.Short())
	printField(out, "Listening", "http://"+l.Addr().String())
	printField(out, "Store", a.cfg.Profiles.Backend)
	fmt.Fprintln(out, mutedStyle.Render("Press Ctrl+C to stop the server"))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Serve(l)
	}()

	ctx := cmd.Context()
	select {
	case err := <-serverErr:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		fmt.Fprintln(out, "Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		fmt.Fprintln(out, "Server stopped")
		return nil
	}
}
