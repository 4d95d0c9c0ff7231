package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"

	"barbearia/backend/internal/config"
	"barbearia/backend/internal/notify"
	"barbearia/backend/internal/service/bookings"
	"barbearia/backend/internal/service/replication"
	"barbearia/backend/internal/store"
	"barbearia/backend/internal/store/memory"
	"barbearia/backend/internal/store/postgres"
	redisstore "barbearia/backend/internal/store/redis"
	"barbearia/backend/internal/telemetry"
	grpcTransport "barbearia/backend/internal/transport/grpc"
	"barbearia/backend/internal/transport/httpapi"
)

const serviceName = "barbearia-api"

var version = "dev"

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	log := newLogger("info")
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	log.Info("starting",
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("grpc_addr", cfg.GRPCAddr),
		slog.String("log_level", cfg.LogLevel),
		slog.String("version", version),
	)

	policy := bookings.Policy{
		Open:        cfg.Open,
		Close:       cfg.Close,
		Step:        cfg.Step,
		MinDuration: cfg.MinDuration,
		MaxDuration: cfg.MaxDuration,
		Cancel:      bookings.CancelPolicy(cfg.CancelPolicy),
	}
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("booking policy: %w", err)
	}

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: serviceName,
		Version:     version,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
	})
	if err != nil {
		log.Warn("tracing disabled", slog.Any("err", err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("tracer shutdown failed", slog.Any("err", err))
		}
	}()

	deps := bookings.Deps{Logger: log}

	if cfg.DatabaseURL != "" {
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			return err
		}
		defer func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		}()
		deps.Journal = postgres.NewJournal(db)
	} else {
		log.Warn("database.url not set; bookings are kept in memory only")
	}

	if cfg.RabbitMQURL != "" {
		pub, err := notify.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			log.Warn("change publishing disabled", slog.Any("err", err))
		} else {
			defer func() { _ = pub.Close() }()
			deps.Publisher = pub
			log.Info("publishing changes", slog.String("exchange", cfg.RabbitMQExchange))
		}
	}

	var cursors store.CursorStore = memory.NewCursors()
	if cfg.RedisAddr != "" {
		client, err := redisstore.NewClient(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		cursors = redisstore.NewCursors(client, "")
	}

	svc := bookings.NewService(policy, deps)
	if err := svc.Hydrate(ctx); err != nil {
		return err
	}

	replicator := replication.NewService(svc, cursors, replication.Config{
		Secret:          cfg.BridgeSecret,
		DefaultLimit:    cfg.SyncDefaultLimit,
		MaxLimit:        cfg.SyncMaxLimit,
		DefaultConsumer: cfg.SyncDefaultConsumer,
	}, log)
	if cfg.BridgeSecret == "change-me" {
		log.Warn("bridge.secret is the default value; set BRIDGE_SECRET")
	}

	router := httpapi.NewRouter(svc, replicator, log.With(slog.String("component", "http")), httpapi.Options{
		ServiceName:    serviceName,
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.HTTPRequestTimeout,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, serviceName),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http server started", slog.String("http_addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var stopGRPC func()
	if cfg.GRPCAddr != "" {
		opsLog := log.With(slog.String("component", "grpc.ops"))
		grpcServer, hs := grpcTransport.NewOpsServer(cfg.HTTPRequestTimeout, opsLog)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen %s: %w", cfg.GRPCAddr, err)
		}
		go func() {
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
		go grpcTransport.WatchReadiness(ctx, hs, svc.Ping, cfg.ReadinessInterval, opsLog)
		log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr))
		stopGRPC = func() { grpcTransport.Shutdown(opsLog, grpcServer, hs, cfg.ShutdownTimeout) }
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	log.Info("shutting down http server", slog.Duration("timeout", cfg.ShutdownTimeout))
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http graceful shutdown failed", slog.Any("err", err))
	}
	if stopGRPC != nil {
		stopGRPC()
	}
	return runErr
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)})).With(
		slog.String("service", serviceName),
	)
}

// parseLogLevel accepts slog level names with offsets ("info", "DEBUG-2")
// plus the "warning" alias. Anything else falls back to info.
func parseLogLevel(level string) slog.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// databaseLogArgs describes the database target without credentials.
func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil || u.Host == "" {
		return []any{slog.String("db_url", "invalid")}
	}
	orDefault := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	args := []any{
		slog.String("db_host", u.Hostname()),
		slog.String("db_port", orDefault(u.Port(), "5432")),
		slog.String("db_name", orDefault(strings.TrimPrefix(u.Path, "/"), "postgres")),
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		args = append(args, slog.String("db_sslmode", mode))
	}
	return args
}
