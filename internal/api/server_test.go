package api

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-proctor/internal/config"
)

func TestServerDrainFlipsServiceHealth(t *testing.T) {
	srv, err := NewServer(config.ServerConfig{Address: "127.0.0.1:0", MaxMessageBytes: 1 << 20}, &fakeEngine{}, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	go srv.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient(srv.Address(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	health := healthpb.NewHealthClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("health check %q: %v", service, err)
		}
		return resp.GetStatus()
	}

	if got := check(ServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected serving before drain, got %v", got)
	}
	if _, err := NewClient(conn).StartSession(ctx, "Ada"); err != nil {
		t.Fatalf("start session: %v", err)
	}

	srv.Drain()
	if got := check(ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected not serving after drain, got %v", got)
	}
	if got := check(""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("overall status must stay serving while draining, got %v", got)
	}
}

func TestSessionInterceptorLogsAndRecovers(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	intercept := SessionInterceptor(logger)
	req, _ := structpb.NewStruct(map[string]any{"session_id": "s1"})
	info := &grpc.UnaryServerInfo{FullMethod: FullMethod(MethodIngest)}

	resp, err := intercept(context.Background(), req, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	if err != nil || resp != "ok" {
		t.Fatalf("unexpected result %v %v", resp, err)
	}
	line := buf.String()
	if !strings.Contains(line, "method=Ingest") || !strings.Contains(line, "session=s1") || !strings.Contains(line, "code=OK") {
		t.Fatalf("call not logged with its session: %s", line)
	}

	buf.Reset()
	_, err = intercept(context.Background(), req, info, func(context.Context, any) (any, error) {
		panic("renderer exploded")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected internal error from a panicking handler, got %v", err)
	}
	if !strings.Contains(buf.String(), "handler panic") {
		t.Fatalf("panic not logged: %s", buf.String())
	}

	buf.Reset()
	other := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	if _, err := intercept(context.Background(), req, other, func(context.Context, any) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("other services must not be logged: %s", buf.String())
	}
}
