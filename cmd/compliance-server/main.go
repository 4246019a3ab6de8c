// Command compliance-server serves the Tier II compliance dashboard API.
package main

import (
	"compliancedash/internal/adapters/httpapi"
	"compliancedash/internal/blob"
	"compliancedash/internal/config"
	"compliancedash/internal/core"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stderr))
}

func cli(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("compliance-server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "listen address (overrides COMPLIANCE_HTTP_ADDR and PORT)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		logger.Error("listen", slog.String("addr", cfg.HTTPAddr), slog.Any("error", err))
		return 1
	}
	if err := run(ctx, cfg, logger, ln); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		return 1
	}
	return 0
}

// run wires the stores, service and HTTP handler and serves on ln until ctx
// is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, ln net.Listener) (err error) {
	store, err := core.OpenPersistentStore(ctx, cfg.Storage)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("open record store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close record store: %w", cerr)
		}
	}()

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("open blob store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("register metrics: %w", err)
	}

	svc := core.NewService(store, blobs,
		core.WithLogger(logger),
		core.WithAuditRecorder(core.NewLogAuditRecorder(logger)),
		core.WithMetricsRecorder(metrics),
		core.WithTracer(core.NewLogTracer(logger)),
		core.WithMaxFileBytes(cfg.MaxFileBytes),
		core.WithParticipants(cfg.Participants...),
	)
	if _, err := svc.ReconcileBlobs(ctx, cfg.RemoveOrphanBlobs); err != nil {
		logger.Warn("blob reconciliation failed", slog.Any("error", err))
	}
	handler, err := httpapi.NewHandler(svc, httpapi.Config{
		Logger:         logger,
		Registry:       reg,
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxFileBytes:   cfg.MaxFileBytes,
		StaticDir:      cfg.StaticDir,
	})
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("build handler: %w", err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info("server listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("storage", string(cfg.Storage.Driver)),
		slog.String("blob", string(blobs.Driver())),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", slog.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
