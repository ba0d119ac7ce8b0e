package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the backend process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Realtime layer.
	JWTSecret      string
	HandlerTimeout time.Duration // upper bound on verifier/store calls per event
	SendBuffer     int           // per-connection egress buffer, frames dropped beyond it
	ReadLimit      int64         // max inbound frame size in bytes

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string
	RevokedSetKey string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	// Fare estimation.
	BaseFare     float64
	MinimumFare  float64
	Currency     string
	ClassicPerKm float64
	ComfortPerKm float64
	ExpressPerKm float64

	// Delivery sinks, empty disables the sink.
	SMSEndpoint   string
	EmailEndpoint string

	StripeEnabled bool

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		HandlerTimeout:  5 * time.Second,
		SendBuffer:      32,
		ReadLimit:       1 << 16,
		RedisGeoKey:     "drivers_geo",
		RevokedSetKey:   "auth:revoked",
		KafkaTopic:      "driver-locations",
		BaseFare:        10,
		MinimumFare:     15,
		Currency:        "mad",
		ClassicPerKm:    3.50,
		ComfortPerKm:    5.00,
		ExpressPerKm:    4.00,
		LogLevel:        "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	setDurationFromEnv(&cfg.HandlerTimeout, "WS_HANDLER_TIMEOUT", &errs)
	setIntFromEnv(&cfg.SendBuffer, "WS_SEND_BUFFER", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")
	setStringFromEnv(&cfg.RevokedSetKey, "REDIS_REVOKED_SET_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setFloatFromEnv(&cfg.BaseFare, "BASE_FARE", &errs)
	setFloatFromEnv(&cfg.MinimumFare, "MINIMUM_RIDE_FARE", &errs)
	setStringFromEnv(&cfg.Currency, "FARE_CURRENCY")
	setFloatFromEnv(&cfg.ClassicPerKm, "CLASSIC_FARE_PER_KM", &errs)
	setFloatFromEnv(&cfg.ComfortPerKm, "COMFORT_FARE_PER_KM", &errs)
	setFloatFromEnv(&cfg.ExpressPerKm, "EXPRESS_FARE_PER_KM", &errs)

	setStringFromEnv(&cfg.SMSEndpoint, "SMS_ENDPOINT")
	setStringFromEnv(&cfg.EmailEndpoint, "EMAIL_ENDPOINT")
	cfg.StripeEnabled = os.Getenv("STRIPE_API_KEY") != ""

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be set"))
	}
	if cfg.HandlerTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WS_HANDLER_TIMEOUT must be > 0"))
	}
	if cfg.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("WS_SEND_BUFFER must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
