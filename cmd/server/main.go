package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-hail/internal/auth"
	"github.com/example/ride-hail/internal/config"
	"github.com/example/ride-hail/internal/geo"
	httpapi "github.com/example/ride-hail/internal/http"
	"github.com/example/ride-hail/internal/ingest"
	"github.com/example/ride-hail/internal/logging"
	"github.com/example/ride-hail/internal/notify"
	"github.com/example/ride-hail/internal/payments"
	"github.com/example/ride-hail/internal/pricing"
	"github.com/example/ride-hail/internal/realtime"
	"github.com/example/ride-hail/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage. Postgres when a DSN is configured, in-memory otherwise.
	var (
		users storage.UserStore
		rides storage.RideStore
		bids  storage.BidStore
	)
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if cfg.RunMigrations {
			if err := runMigrations(cfg.PGDSN); err != nil {
				logger.Error("migrations failed", "error", err)
				os.Exit(1)
			}
			logger.Info("migrations applied")
		}
		users, rides, bids = pg, pg, pg
		logger.Info("using postgres storage")
	} else {
		mem := storage.NewMemoryStore()
		users, rides, bids = mem, mem, mem
		logger.Warn("PG_DSN not set, using in-memory storage")
	}

	// One Redis client shared by the revocation set and the geo index.
	var (
		revoked auth.RevocationChecker
		g       geo.Geo = geo.NewIndex()
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		revoked = auth.NewRedisRevocations(rdb, cfg.RevokedSetKey)
		g = geo.NewRedisGeo(rdb, cfg.RedisGeoKey)
		logger.Info("redis connected", "addr", cfg.RedisAddr)
	} else {
		logger.Warn("REDIS_ADDR not set, revocation checks disabled")
	}

	var publisher realtime.LocationPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publisher = kp
		logger.Info("kafka producer ready", "topic", cfg.KafkaTopic)
	}

	var charger payments.Charger
	if cfg.StripeEnabled {
		charger = payments.NewStripeClient()
		logger.Info("stripe payments enabled")
	}

	var sms, email notify.Sender
	if cfg.SMSEndpoint != "" {
		sms = notify.NewHTTPSink(cfg.SMSEndpoint, "sms")
	}
	if cfg.EmailEndpoint != "" {
		email = notify.NewHTTPSink(cfg.EmailEndpoint, "email")
	}
	notifier := notify.NewNotifier(users, sms, email, logger)

	fares := pricing.NewEstimator(cfg.BaseFare, cfg.MinimumFare, cfg.Currency,
		cfg.ClassicPerKm, cfg.ComfortPerKm, cfg.ExpressPerKm)

	hub := realtime.NewHub(realtime.Config{
		Log:            logger,
		Users:          users,
		Rides:          rides,
		Bids:           bids,
		Fares:          fares,
		Publisher:      publisher,
		Charger:        charger,
		Notifier:       notifier,
		HandlerTimeout: cfg.HandlerTimeout,
		SendBuffer:     cfg.SendBuffer,
		ReadLimit:      cfg.ReadLimit,
	})
	verifier := auth.NewVerifier(cfg.JWTSecret, users, revoked, cfg.HandlerTimeout)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(logger, hub, verifier, g),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}
	logger.Info("server stopped")
}

func runMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	files, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		return err
	}
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := db.Exec(string(b)); err != nil {
			return err
		}
	}
	return nil
}
