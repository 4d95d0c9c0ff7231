package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"barbearia/backend/internal/domain"
)

type Config struct {
	HTTPAddr           string
	HTTPRequestTimeout time.Duration
	CORSOrigins        []string

	GRPCAddr          string
	ReadinessInterval time.Duration

	BridgeSecret string

	Open         domain.Clock
	Close        domain.Clock
	Step         int
	MinDuration  int
	MaxDuration  int
	CancelPolicy string

	SyncDefaultLimit    int
	SyncMaxLimit        int
	SyncDefaultConsumer string

	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RabbitMQURL      string
	RabbitMQExchange string

	OTelEndpoint string
	OTelInsecure bool

	ShutdownTimeout time.Duration
	LogLevel        string
}

func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BARBEARIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.addr", "")
	v.SetDefault("http.request_timeout", "10s")
	v.SetDefault("http.cors_origins", "*")
	v.SetDefault("grpc.addr", ":50051")
	v.SetDefault("grpc.readiness_interval", "5s")
	v.SetDefault("bridge.secret", "change-me")
	v.SetDefault("schedule.open", "09:00")
	v.SetDefault("schedule.close", "20:00")
	v.SetDefault("schedule.step", 5)
	v.SetDefault("schedule.min_duration", 15)
	v.SetDefault("schedule.max_duration", 240)
	v.SetDefault("schedule.cancel_policy", "upsert")
	v.SetDefault("sync.default_limit", 50)
	v.SetDefault("sync.max_limit", 500)
	v.SetDefault("sync.default_consumer", "bridge")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "barbearia.changes")
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.insecure", false)
	v.SetDefault("shutdown.timeout", "10s")
	v.SetDefault("log.level", "info")

	_ = v.BindEnv("http.addr", "BARBEARIA_HTTP_ADDR", "HTTP_ADDR")
	_ = v.BindEnv("http.port", "PORT")
	_ = v.BindEnv("bridge.secret", "BARBEARIA_BRIDGE_SECRET", "BRIDGE_SECRET")
	_ = v.BindEnv("database.url", "BARBEARIA_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "BARBEARIA_REDIS_ADDR", "REDIS_ADDR")
	_ = v.BindEnv("rabbitmq.url", "BARBEARIA_RABBITMQ_URL", "RABBITMQ_URL", "AMQP_URL")
	_ = v.BindEnv("otel.endpoint", "BARBEARIA_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = v.BindEnv("otel.insecure", "BARBEARIA_OTEL_INSECURE", "OTEL_EXPORTER_OTLP_INSECURE")
	_ = v.BindEnv("shutdown.timeout", "BARBEARIA_SHUTDOWN_TIMEOUT", "SHUTDOWN_TIMEOUT")
	_ = v.BindEnv("log.level", "BARBEARIA_LOG_LEVEL", "LOG_LEVEL")

	var parseErr error
	duration := func(key string) time.Duration {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil && parseErr == nil {
			parseErr = fmt.Errorf("%s: %w", key, err)
		}
		return d
	}
	clock := func(key string) domain.Clock {
		c, ok := domain.ParseTime(strings.TrimSpace(v.GetString(key)))
		if !ok && parseErr == nil {
			parseErr = fmt.Errorf("%s: %q is not HH:MM", key, v.GetString(key))
		}
		return c
	}

	httpAddr := strings.TrimSpace(v.GetString("http.addr"))
	if httpAddr == "" {
		// A bare PORT, as set by most hosting platforms.
		httpAddr = ":10000"
		if port := strings.TrimSpace(v.GetString("http.port")); port != "" {
			httpAddr = ":" + port
		}
	}
	closeAt := domain.Clock(domain.MinutesPerDay)
	if strings.TrimSpace(v.GetString("schedule.close")) != "24:00" {
		closeAt = clock("schedule.close")
	}

	cfg := Config{
		HTTPAddr:           httpAddr,
		HTTPRequestTimeout: duration("http.request_timeout"),
		CORSOrigins:        splitList(v.GetString("http.cors_origins")),

		GRPCAddr:          strings.TrimSpace(v.GetString("grpc.addr")),
		ReadinessInterval: duration("grpc.readiness_interval"),

		BridgeSecret: strings.TrimSpace(v.GetString("bridge.secret")),

		Open:         clock("schedule.open"),
		Close:        closeAt,
		Step:         v.GetInt("schedule.step"),
		MinDuration:  v.GetInt("schedule.min_duration"),
		MaxDuration:  v.GetInt("schedule.max_duration"),
		CancelPolicy: strings.ToLower(strings.TrimSpace(v.GetString("schedule.cancel_policy"))),

		SyncDefaultLimit:    v.GetInt("sync.default_limit"),
		SyncMaxLimit:        v.GetInt("sync.max_limit"),
		SyncDefaultConsumer: strings.TrimSpace(v.GetString("sync.default_consumer")),

		DatabaseURL:       strings.TrimSpace(v.GetString("database.url")),
		DBMaxOpenConns:    v.GetInt("database.max_open_conns"),
		DBMaxIdleConns:    v.GetInt("database.max_idle_conns"),
		DBConnMaxLifetime: duration("database.conn_max_lifetime"),
		DBConnMaxIdleTime: duration("database.conn_max_idle_time"),

		RedisAddr:     strings.TrimSpace(v.GetString("redis.addr")),
		RedisPassword: v.GetString("redis.password"),
		RedisDB:       v.GetInt("redis.db"),

		RabbitMQURL:      strings.TrimSpace(v.GetString("rabbitmq.url")),
		RabbitMQExchange: strings.TrimSpace(v.GetString("rabbitmq.exchange")),

		OTelEndpoint: strings.TrimSpace(v.GetString("otel.endpoint")),
		OTelInsecure: v.GetBool("otel.insecure"),

		ShutdownTimeout: duration("shutdown.timeout"),
		LogLevel:        v.GetString("log.level"),
	}
	if parseErr != nil {
		return Config{}, parseErr
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that do not belong to the booking policy.
func (c Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.BridgeSecret == "" {
		errs = append(errs, errors.New("bridge.secret is required"))
	}
	if c.SyncDefaultLimit <= 0 || c.SyncMaxLimit < c.SyncDefaultLimit {
		errs = append(errs, fmt.Errorf("sync limits [%d,%d] invalid", c.SyncDefaultLimit, c.SyncMaxLimit))
	}
	if c.RabbitMQURL != "" && c.RabbitMQExchange == "" {
		errs = append(errs, errors.New("rabbitmq.exchange is required when rabbitmq.url is set"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
