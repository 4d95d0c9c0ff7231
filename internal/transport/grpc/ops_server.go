package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// BookingsService is the health service name reported alongside the
// server-wide "" entry.
const BookingsService = "barbearia.Bookings"

// NewOpsServer builds the operations gRPC server exposing the standard
// health service. Callers drive readiness with WatchReadiness.
func NewOpsServer(requestTimeout time.Duration, log *slog.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RequestTimeoutInterceptor(requestTimeout),
			LoggingInterceptor(log),
		),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(BookingsService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// RequestTimeoutInterceptor bounds calls that arrive without a deadline.
func RequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, cancel := withDefaultDeadline(ctx, timeout)
		defer cancel()
		return handler(ctx, req)
	}
}

// withDefaultDeadline keeps a caller's deadline and otherwise applies d.
func withDefaultDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

func LoggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		attrs := []any{
			slog.String("method", info.FullMethod),
			slog.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			log.Warn("grpc call failed", append(attrs, slog.Any("err", err))...)
		} else {
			log.Debug("grpc call", attrs...)
		}
		return resp, err
	}
}

// WatchReadiness runs probe every interval and mirrors its outcome into hs
// until ctx is done. Transitions are logged.
func WatchReadiness(ctx context.Context, hs *health.Server, probe func(context.Context) error, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last healthpb.HealthCheckResponse_ServingStatus
	for {
		status := healthpb.HealthCheckResponse_SERVING
		probeCtx, cancel := withDefaultDeadline(ctx, interval)
		err := probe(probeCtx)
		cancel()
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}

		if status != last {
			hs.SetServingStatus("", status)
			hs.SetServingStatus(BookingsService, status)
			if err != nil {
				log.Warn("readiness probe failed", slog.Any("err", err))
			} else {
				log.Info("service ready")
			}
			last = status
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown reports NOT_SERVING first so load balancers stop routing, then
// drains s. It reports whether the drain finished before timeout.
func Shutdown(log *slog.Logger, s *grpc.Server, hs *health.Server, timeout time.Duration) bool {
	hs.Shutdown()
	log.Info("health set to NOT_SERVING; draining grpc server",
		slog.String("service", BookingsService),
		slog.Duration("timeout", timeout),
	)

	start := time.Now()
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server drained", slog.Duration("elapsed", time.Since(start)))
		return true
	case <-timer.C:
		log.Warn("grpc drain timed out; forcing stop", slog.Duration("elapsed", time.Since(start)))
		s.Stop()
		return false
	}
}
