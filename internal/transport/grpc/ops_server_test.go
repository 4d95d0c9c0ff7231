package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestTimeoutInterceptor(t *testing.T) {
	icpt := RequestTimeoutInterceptor(50 * time.Millisecond)
	info := &grpc.UnaryServerInfo{FullMethod: "/x/y"}

	t.Run("adds deadline", func(t *testing.T) {
		_, err := icpt(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
			if _, ok := ctx.Deadline(); !ok {
				return nil, errors.New("no deadline")
			}
			return nil, nil
		})
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
	})

	t.Run("keeps caller deadline", func(t *testing.T) {
		want := time.Now().Add(time.Hour)
		ctx, cancel := context.WithDeadline(context.Background(), want)
		defer cancel()
		_, err := icpt(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
			got, _ := ctx.Deadline()
			if !got.Equal(want) {
				return nil, errors.New("deadline replaced")
			}
			return nil, nil
		})
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
	})
}

func checkStatus(t *testing.T, hs *health.Server) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: BookingsService})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	return resp.GetStatus()
}

func TestWatchReadiness_FollowsProbe(t *testing.T) {
	_, hs := NewOpsServer(time.Second, discardLogger())
	if got := checkStatus(t, hs); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("initial status = %v, want NOT_SERVING", got)
	}

	var failing atomic.Bool
	probe := func(ctx context.Context) error {
		if failing.Load() {
			return errors.New("db down")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		WatchReadiness(ctx, hs, probe, 5*time.Millisecond, discardLogger())
		close(done)
	}()

	waitFor := func(want healthpb.HealthCheckResponse_ServingStatus) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if checkStatus(t, hs) == want {
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
		t.Fatalf("status never became %v", want)
	}

	waitFor(healthpb.HealthCheckResponse_SERVING)
	failing.Store(true)
	waitFor(healthpb.HealthCheckResponse_NOT_SERVING)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("WatchReadiness did not return after cancel")
	}
}

func TestShutdown_ReportsNotServingAndDrains(t *testing.T) {
	srv, hs := NewOpsServer(time.Second, discardLogger())
	hs.SetServingStatus(BookingsService, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(lis) }()

	if !Shutdown(discardLogger(), srv, hs, 2*time.Second) {
		t.Fatalf("Shutdown forced an idle server")
	}
	if got := checkStatus(t, hs); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status after shutdown = %v, want NOT_SERVING", got)
	}
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Serve did not return after Shutdown")
	}
}

func TestWithDefaultDeadline(t *testing.T) {
	ctx, cancel := withDefaultDeadline(context.Background(), 0)
	defer cancel()
	dl, ok := ctx.Deadline()
	if !ok || time.Until(dl) > 10*time.Second {
		t.Fatalf("default deadline = %v (%v)", dl, ok)
	}
}
