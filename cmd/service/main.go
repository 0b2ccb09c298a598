// cmd/service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/itsrifathridoy/talenthium/internal/api"
	"github.com/itsrifathridoy/talenthium/internal/config"
	"github.com/itsrifathridoy/talenthium/internal/ghauth"
	"github.com/itsrifathridoy/talenthium/internal/github"
	"github.com/itsrifathridoy/talenthium/internal/queue"
	"github.com/itsrifathridoy/talenthium/internal/store"
	"github.com/itsrifathridoy/talenthium/internal/syncer"
	"github.com/itsrifathridoy/talenthium/internal/userevents"
	"github.com/itsrifathridoy/talenthium/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Initialize database connection and run migrations
	dbpool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()
	logger.Info("Database connection established")

	if err := runMigrations(cfg.DBURL); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")

	// 5. Initialize application components
	signer, err := ghauth.NewSigner(cfg.GithubAppID, cfg.GithubPrivateKey)
	if err != nil {
		return fmt.Errorf("failed to load app credentials: %w", err)
	}
	states := ghauth.NewStateSigner(cfg.StateTokenSecret)

	ghClient, err := github.NewClient(github.Options{
		BaseURL:           cfg.GithubAPIBaseURL,
		OAuthClientID:     cfg.OAuthClientID,
		OAuthClientSecret: cfg.OAuthClientSecret,
		OAuthRedirectURL:  cfg.OAuthRedirectURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create github client: %w", err)
	}

	st := store.NewPostgres(dbpool, logger)
	ingestor := webhook.NewIngestor(cfg.GithubWebhookSecret, st, logger)

	broker, err := queue.DialAMQP(cfg.AMQPURL, cfg.SyncQueue, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to message broker: %w", err)
	}
	defer broker.Close()
	logger.Info("Message broker connection established", "queue", cfg.SyncQueue)

	pipeline := syncer.NewPipeline(st, ghClient, signer, cfg.SyncWorkers, logger)
	router := api.NewRouter(cfg, st, ghClient, signer, states, ingestor, broker, logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6. Run the HTTP server and background consumers until shutdown
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return pipeline.Run(gctx, broker)
	})

	if len(cfg.KafkaBrokers) > 0 {
		consumer := userevents.NewConsumer(cfg.KafkaBrokers, cfg.KafkaUserTopic, cfg.KafkaGroupID, st, logger)
		defer consumer.Close()
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	} else {
		logger.Warn("No Kafka brokers configured, user event consumer disabled")
	}

	logger.Info("Application started. Waiting for shutdown signal...")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

func runMigrations(dbURL string) error {
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
