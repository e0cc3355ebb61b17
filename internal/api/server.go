package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-proctor/internal/config"
)

// Server wraps the gRPC server implementation and lifecycle helpers.
type Server struct {
	cfg        config.ServerConfig
	grpcServer *grpc.Server
	listener   net.Listener
	health     *health.Server
}

// NewServer constructs a gRPC server bound to the configured address.
// Every ProctorEngine call is logged with its session id, and a panic in a
// handler fails only that call.
func NewServer(cfg config.ServerConfig, service ProctorEngineServer, logger *slog.Logger, opts ...grpc.ServerOption) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor, SessionInterceptor(logger)),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	if cfg.MaxMessageBytes > 0 {
		serverOpts = append(serverOpts, grpc.MaxRecvMsgSize(cfg.MaxMessageBytes), grpc.MaxSendMsgSize(cfg.MaxMessageBytes))
	}
	serverOpts = append(serverOpts, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	RegisterProctorEngineServer(grpcServer, service)
	grpc_prometheus.Register(grpcServer)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	reflection.Register(grpcServer)

	return &Server{
		cfg:        cfg,
		grpcServer: grpcServer,
		listener:   lis,
		health:     healthSrv,
	}, nil
}

// Drain reports the ProctorEngine service as NOT_SERVING so load balancers
// stop routing new sessions while open ones are being closed. The overall
// server status is left alone.
func (s *Server) Drain() {
	if s.health != nil {
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// Start serves incoming gRPC requests until Shutdown is invoked.
func (s *Server) Start() error {
	if s.grpcServer == nil || s.listener == nil {
		return fmt.Errorf("server not initialised")
	}
	return s.grpcServer.Serve(s.listener)
}

// Shutdown attempts a graceful shutdown, falling back to Stop after timeout.
func (s *Server) Shutdown(ctx context.Context) {
	if s.grpcServer == nil {
		return
	}

	if s.health != nil {
		s.health.Shutdown()
	}

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.grpcServer.Stop()
	case <-stopped:
	}
}

// Address exposes the bound listener address.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GracefulTimeout returns the configured graceful timeout duration.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}

// SessionInterceptor logs each ProctorEngine call with the session it
// targets, its status code and latency, and converts handler panics into
// Internal errors. Calls to other services pass through untouched.
func SessionInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		method, ok := methodName(info.FullMethod)
		if !ok {
			return handler(ctx, req)
		}
		attrs := []any{slog.String("method", method)}
		if in, ok := req.(*structpb.Struct); ok {
			if id := stringField(in, "session_id"); id != "" {
				attrs = append(attrs, slog.String("session", id))
			}
		}

		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("handler panic", append(attrs, slog.Any("panic", r))...)
				resp, err = nil, status.Errorf(codes.Internal, "%s failed", method)
			}
			code := status.Code(err)
			attrs = append(attrs, slog.String("code", code.String()), slog.Duration("elapsed", time.Since(start)))
			switch code {
			case codes.OK, codes.NotFound, codes.InvalidArgument, codes.FailedPrecondition:
				logger.Debug("rpc", attrs...)
			default:
				logger.Warn("rpc failed", append(attrs, slog.Any("error", err))...)
			}
		}()
		return handler(ctx, req)
	}
}

// methodName returns the bare method of a ProctorEngine full method name.
func methodName(fullMethod string) (string, bool) {
	prefix := "/" + ServiceName + "/"
	if len(fullMethod) <= len(prefix) || fullMethod[:len(prefix)] != prefix {
		return "", false
	}
	return fullMethod[len(prefix):], true
}
