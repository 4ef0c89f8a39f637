package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"circuitsync/internal/handler"
	"circuitsync/internal/hub"
	"circuitsync/internal/watcher"
)

const serveCmdLong = `Serve the result API and the pass event stream.

Results of every pass are available over HTTP and progress is streamed as
Server-Sent Events on /api/events. Passes run on demand through
POST /api/circuits/{id}/reconcile and, with --interval, for every circuit on a
fixed schedule. When rules.watch is set the rule tables are reloaded between
passes whenever the rules file changes.`

func newServeCmd(g *globals) *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve the result API",
		Long:         serveCmdLong,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
	}

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd, g, addr, interval)
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default: http.addr from config)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "reconcile every circuit on this interval (0 disables)")

	return cmd
}

func runServe(cmd *cobra.Command, g *globals, addr string, interval time.Duration) error {
	cfg, path, err := g.loadConfig()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.HTTP.Addr = addr
	}

	a, err := newApp(cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	a.log.WithField("config", path).Info(cfg.Summary())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := a.newServer(ctx)

	if cfg.Rules.Path != "" && cfg.Rules.Watch && cfg.Capabilities.IsEnabled("rule_watcher", cfg.Mode) {
		reloader := watcher.NewRuleReloader(cfg.Rules.Path, a.service)
		go func() {
			if err := reloader.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.WithError(err).Warn("Rule watcher stopped")
			}
		}()
	}

	if interval > 0 {
		a.log.WithField("interval", interval).Info("Scheduled reconcile enabled")
		go a.schedule(ctx, interval)
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.WithField("addr", server.Addr).Info("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("server: %w", err)
	}

	a.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("Server shutdown error")
	}

	a.log.Info("Server stopped")
	return nil
}

// newServer wires the API and event stream; background work stops with ctx
func (a *app) newServer(ctx context.Context) *http.Server {
	mux := http.NewServeMux()

	results := handler.NewResultHandler(a.store, a.inventory, a.runner, a.cfg, a.opts)
	results.SetBackgroundContext(ctx)
	results.Register(mux)

	if a.cfg.Capabilities.IsEnabled("sse_events", a.cfg.Mode) {
		sseHub := hub.New()
		go sseHub.Run(ctx)
		go sseHub.Forward(ctx, a.bus)
		mux.Handle("GET /api/events", sseHub)
	}

	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	return &http.Server{
		Addr:        a.cfg.HTTP.Addr,
		Handler:     finalHandler,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}
