package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/komidabot/komida"
)

func runServe(ctx context.Context, cfg komida.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8080", "Listen address")
	schedule := fs.String("schedule", cfg.Schedule, `Refresh schedule (cron spec, "off" to disable)`)
	refreshOnStart := fs.Bool("refresh-on-start", true, "Refresh all campuses once at startup")
	fs.Parse(args)

	apiKey := os.Getenv("KOMIDA_API_KEY")
	corsOrigins := os.Getenv("KOMIDA_CORS_ORIGINS")

	engine, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	sched, err := newScheduler(ctx, engine, *schedule)
	if err != nil {
		return err
	}
	if sched != nil {
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
	}
	if *refreshOnStart {
		go refreshAll(ctx, engine)
	}

	// Middleware chain: recovery -> cors -> auth -> logging -> mux
	var handler http.Handler = newHandler(engine).routes()
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", *addr, "schedule", *schedule, "auth", apiKey != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

// newScheduler registers the periodic refresh. It returns nil when spec
// is empty or "off".
func newScheduler(ctx context.Context, engine komida.Engine, spec string) (*cron.Cron, error) {
	if spec == "" || spec == "off" {
		return nil, nil
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() { refreshAll(ctx, engine) }); err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", komida.ErrInvalidConfig, spec, err)
	}
	return c, nil
}

func refreshAll(ctx context.Context, engine komida.Engine) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	results, err := engine.Refresh(ctx)
	if err != nil {
		slog.Error("scheduled refresh", "error", err)
		return
	}
	inserted, failed := 0, 0
	for _, r := range results {
		inserted += r.Inserted
		if r.Err != nil {
			failed++
		}
	}
	slog.Info("scheduled refresh done", "campuses", len(results), "inserted", inserted, "failed", failed)
}

// cronLogger routes scheduler logs to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
