package extauthz

import (
	"context"
	"errors"
	"log/slog"
	"time"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/polisai/polis-authz/pkg/attributes"
	"github.com/polisai/polis-authz/pkg/domain"
	"github.com/polisai/polis-authz/pkg/policy"
	"github.com/polisai/polis-authz/pkg/telemetry"
)

// AuthorizationServiceName is the fully qualified gRPC service name used for health
// reporting.
const AuthorizationServiceName = "envoy.service.auth.v3.Authorization"

// Server implements the envoy ext_authz v3 Authorization service.
type Server struct {
	authv3.UnimplementedAuthorizationServer

	evaluator policy.Evaluator
	logger    *slog.Logger
	metrics   *telemetry.CheckMetrics
	tracer    trace.Tracer
}

// ServerConfig holds the collaborators of a Server.
type ServerConfig struct {
	Evaluator policy.Evaluator
	Logger    *slog.Logger
	// Metrics is optional.
	Metrics *telemetry.CheckMetrics
	// Tracer defaults to the global tracer provider.
	Tracer trace.Tracer
}

// NewServer constructs a Server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Evaluator == nil {
		return nil, errors.New("extauthz: evaluator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(telemetry.TracerName)
	}
	return &Server{
		evaluator: cfg.Evaluator,
		logger:    logger,
		metrics:   cfg.Metrics,
		tracer:    tracer,
	}, nil
}

// Check authorizes one request.
func (s *Server) Check(ctx context.Context, req *authv3.CheckRequest) (*authv3.CheckResponse, error) {
	start := time.Now()
	decisionID := uuid.NewString()

	ctx, span := s.tracer.Start(ctx, "authz.Check", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	ac, err := attributes.FromCheckRequest(req)
	if err != nil {
		telemetry.RecordFailure(span, err)
		if !domain.IsPrecondition(err) {
			s.metrics.ObserveCheck(telemetry.ResultInternal, time.Since(start))
			s.logger.Error("Failed to read check request", "decision_id", decisionID, "error", err)
			return nil, status.Error(codes.Internal, err.Error())
		}
		s.metrics.ObserveCheck(telemetry.ResultInvalidArgument, time.Since(start))
		s.logger.Warn("Rejected malformed check request", "decision_id", decisionID, "error", err)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	telemetry.RecordRequest(span, ac)
	s.logger.Debug("Request context", "decision_id", decisionID, "request", ac)

	decision, err := s.evaluator.Evaluate(ctx, ac)
	if err != nil {
		telemetry.RecordFailure(span, err)
		s.metrics.ObserveCheck(telemetry.ResultInternal, time.Since(start))
		s.logger.Error("Policy evaluation failed", "decision_id", decisionID, "error", err)
		return nil, status.Error(codes.Internal, "policy evaluation failed")
	}

	elapsed := time.Since(start)
	telemetry.RecordDecision(span, decisionID, decision)
	telemetry.RecordDecisionMetrics(ctx, decision, elapsed)

	result := telemetry.ResultAllowed
	if !decision.Allowed {
		result = telemetry.ResultDenied
	}
	s.metrics.ObserveCheck(result, elapsed)

	s.logger.Info("Authorization decision",
		"decision_id", decisionID,
		"allowed", decision.Allowed,
		"rule", decision.Rule,
		"reason", decision.Reason,
		"method", ac.Request.Method,
		"path", ac.Request.Path,
		"duration", elapsed,
	)

	return Translate(decision), nil
}

// NewGRPCServer builds a gRPC server with the Authorization, health, and reflection
// services registered. The health status starts as NOT_SERVING; callers flip it with
// the returned health server once the listener is up.
func NewGRPCServer(authz *Server, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(opts...)
	authv3.RegisterAuthorizationServer(srv, authz)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthSrv.SetServingStatus(AuthorizationServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, healthSrv)

	reflection.Register(srv)
	return srv, healthSrv
}

// MarkServing flips every registered health status to SERVING.
func MarkServing(healthSrv *health.Server) {
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(AuthorizationServiceName, healthpb.HealthCheckResponse_SERVING)
}
