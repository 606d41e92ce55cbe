package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	authztls "github.com/polisai/polis-authz/internal/tls"
	"github.com/polisai/polis-authz/pkg/config"
	"github.com/polisai/polis-authz/pkg/extauthz"
	"github.com/polisai/polis-authz/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ext_authz gRPC service",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting polis-authz",
		"grpc_address", cfg.Server.GRPCAddress,
		"admin_address", cfg.Server.AdminAddress,
		"engine", cfg.Policy.Engine)

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing())
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("Failed to flush traces", "error", err)
		}
	}()

	pipeline, err := buildPipeline(ctx, cfg.Policy, logger)
	if err != nil {
		return fmt.Errorf("build policy pipeline: %w", err)
	}

	metrics := telemetry.NewCheckMetrics()
	authz, err := extauthz.NewServer(extauthz.ServerConfig{
		Evaluator: pipeline,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}

	opts, err := transportOptions(ctx, cfg.Server.TLS, logger)
	if err != nil {
		return err
	}
	grpcServer, healthServer := extauthz.NewGRPCServer(authz, opts...)

	grpcListener, err := net.Listen("tcp", cfg.Server.GRPCAddress)
	if err != nil {
		return fmt.Errorf("failed to bind grpc listener %s: %w", cfg.Server.GRPCAddress, err)
	}
	adminListener, err := net.Listen("tcp", cfg.Server.AdminAddress)
	if err != nil {
		_ = grpcListener.Close()
		return fmt.Errorf("failed to bind admin listener %s: %w", cfg.Server.AdminAddress, err)
	}

	adminServer := &http.Server{
		Handler:      newAdminHandler(metrics),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		if err := adminServer.Serve(adminListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()

	extauthz.MarkServing(healthServer)
	logger.Info("Server listening",
		"grpc_address", grpcListener.Addr().String(),
		"admin_address", adminListener.Addr().String())

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case serveErr = <-errCh:
		logger.Error("Server failed", "error", serveErr)
	}

	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Admin shutdown error", "error", err)
	}
	return serveErr
}

// transportOptions enables TLS on the gRPC listener when configured. The certificate
// is reloaded from disk until ctx is done.
func transportOptions(ctx context.Context, cfg *config.TLSConfig, logger *slog.Logger) ([]grpc.ServerOption, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	reloader, err := authztls.NewCertificateReloader(cfg.CertFile, cfg.KeyFile, logger)
	if err != nil {
		return nil, err
	}
	if err := reloader.Watch(ctx, nil); err != nil {
		return nil, err
	}

	tlsConfig := reloader.ServerConfig(cfg.Version().Uint16())
	return []grpc.ServerOption{grpc.Creds(credentials.NewTLS(tlsConfig))}, nil
}

// newAdminHandler serves liveness and the Prometheus registry.
func newAdminHandler(metrics *telemetry.CheckMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())
	return otelhttp.NewHandler(mux, "authz.admin")
}
