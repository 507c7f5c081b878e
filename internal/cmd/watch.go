package cmd

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/campusconnect/internal/metrics"
	"github.com/felixgeelhaar/campusconnect/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the session live",
	Long: `Open a live view of the session state, the current screen and the
navigation decision. Move between screens with the arrow keys and enter;
the guard redirects you the way the app would.

With --metrics-addr (or metrics.enabled in the config) session metrics are
served on /metrics while the view is open.`,
	RunE: runWatch,
}

var watchMetricsAddr string

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	screen, err := a.screen()
	if err != nil {
		return err
	}

	events := tui.NewEvents()
	if err := a.startSession(screen, events); err != nil {
		return err
	}
	a.session.OnChange(events.OnState)

	addr := watchMetricsAddr
	if addr == "" && a.cfg.Metrics.Enabled {
		addr = a.cfg.Metrics.Addr
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if addr != "" {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		srv := &http.Server{
			Handler:           metrics.HandlerFor(a.registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		a.logger.Info("serving metrics", "addr", l.Addr().String())
		g.Go(func() error {
			if err := srv.Serve(l); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		model := tui.NewWatchModel(a.guard, events, a.session.Logout)
		p := tea.NewProgram(model,
			tea.WithContext(ctx),
			tea.WithAltScreen(),
			tea.WithOutput(cmd.OutOrStdout()),
		)
		_, err := p.Run()
		if err != nil && stderrors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	})

	return g.Wait()
}
