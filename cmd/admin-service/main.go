package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/monitorul/subjobs/internal/admin/handler"
	"github.com/monitorul/subjobs/internal/admin/router"
	"github.com/monitorul/subjobs/internal/billing"
	"github.com/monitorul/subjobs/internal/config"
	"github.com/monitorul/subjobs/internal/jobs/runner"
	"github.com/monitorul/subjobs/internal/jobs/storage"
	"github.com/monitorul/subjobs/internal/jobs/workflows"
	"github.com/monitorul/subjobs/internal/repository"
	"github.com/monitorul/subjobs/shared/logger"
	"github.com/monitorul/subjobs/shared/postgresql"
	"github.com/monitorul/subjobs/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("ADMIN_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/admin-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAdminConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting admin service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	var rabbitClient *rabbitmq.Client
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
	}

	db := dbClient.GetDB()
	states := storage.NewStateStore(db, appLogger.Logger, cfg.Jobs.StaleAfter)
	logs := storage.NewLogStore(db, appLogger.Logger)

	var alerts workflows.AlertPublisher
	if rabbitClient != nil {
		alerts = rabbitClient
	}

	registry := buildRegistry(cfg, appLogger.Logger, db, states, logs, alerts)
	jobRunner := runner.NewRunner(states, logs, registry, appLogger.Logger)

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:    appLogger.Logger,
		States:    states,
		Logs:      logs,
		Runner:    jobRunner,
		Retention: cfg.Jobs.Retention(),
	}, cfg.Server.InternalAPIKey)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Admin service is running",
		slog.String("address", addr),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// buildRegistry wires every workflow with its repositories and registers it.
func buildRegistry(cfg *config.Config, lg *slog.Logger, db *sqlx.DB, states *storage.StateStore, logs *storage.LogStore, alerts workflows.AlertPublisher) *runner.Registry {
	subs := repository.NewSubscriptionRepository(db, lg)
	orders := repository.NewOrderRepository(db, lg)
	ledger := repository.NewPaymentLogRepository(db, lg)
	profiles := repository.NewProfileRepository(db, lg)

	gateway := billing.NewNetopiaClient(&billing.Config{
		APIKey:     cfg.Gateway.APIKey,
		SecretKey:  cfg.Gateway.SecretKey,
		BaseURL:    cfg.Gateway.BaseURL,
		APIBaseURL: cfg.Gateway.APIBaseURL,
		Timeout:    cfg.Gateway.Timeout,
	}, lg)

	registry := runner.NewRegistry()
	registry.Register(workflows.NewRecurringBilling(subs, orders, ledger, gateway, lg, cfg.Jobs.DryRun))
	registry.Register(workflows.NewTrialProcessing(subs, orders, ledger, profiles, gateway, lg, cfg.Jobs.DryRun))
	registry.Register(workflows.NewPaymentRetries(ledger, gateway, cfg.Jobs.MaxRetryAttempts, lg, cfg.Jobs.DryRun))
	registry.Register(workflows.NewFullCleanup(logs, ledger, cfg.Jobs.Retention(), lg, cfg.Jobs.DryRun))
	registry.Register(workflows.NewMonitoring(states, alerts, cfg.Jobs.StaleAfter, lg))

	return registry
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ initializes the RabbitMQ alert client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}
