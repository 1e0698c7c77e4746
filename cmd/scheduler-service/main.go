package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/monitorul/subjobs/internal/billing"
	"github.com/monitorul/subjobs/internal/config"
	"github.com/monitorul/subjobs/internal/jobs/domain"
	"github.com/monitorul/subjobs/internal/jobs/runner"
	"github.com/monitorul/subjobs/internal/jobs/storage"
	"github.com/monitorul/subjobs/internal/jobs/workflows"
	"github.com/monitorul/subjobs/internal/repository"
	"github.com/monitorul/subjobs/shared/logger"
	"github.com/monitorul/subjobs/shared/postgresql"
	"github.com/monitorul/subjobs/shared/rabbitmq"
	"github.com/robfig/cron/v3"
)

// jobTimeout bounds a single job invocation. The longest workflow is the
// billing batch; an hour is generous even for a large renewal backlog.
const jobTimeout = 1 * time.Hour

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

	defaultConfigPath := os.Getenv("SCHEDULER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/scheduler-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateSchedulerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting scheduler service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.Bool("dry_run", cfg.Jobs.DryRun),
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

	sync, err := runner.NewScheduleSync(states, jobRunner, cfg.Jobs.Schedules, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to build schedule sync: %w", err)
	}

	c := cron.New()
	for name, spec := range cfg.Jobs.Schedules {
		if _, ok := registry.Lookup(name); !ok {
			appLogger.Warn("Schedule configured for unknown job, skipping",
				slog.String("job_name", name),
			)
			continue
		}

		entryID, err := c.AddFunc(spec, triggerFunc(sync, name, appLogger.Logger))
		if err != nil {
			return fmt.Errorf("failed to schedule job %s: %w", name, err)
		}

		appLogger.Info("Job scheduled",
			slog.String("job_name", name),
			slog.String("cron", spec),
			slog.Int("entry_id", int(entryID)),
		)
	}

	c.Start()
	appLogger.Info("Scheduler is running",
		slog.Int("jobs", len(c.Entries())),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down scheduler...")

	// Stop scheduling new runs, then wait for in-flight jobs to finish.
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
		appLogger.Info("All running jobs completed")
	case <-time.After(cfg.Server.ShutdownTimeout):
		appLogger.Warn("Shutdown timeout reached with jobs still running")
	}

	appLogger.Info("Scheduler shutdown complete")
	return nil
}

// triggerFunc binds one job name into a cron callback.
func triggerFunc(sync *runner.ScheduleSync, name string, lg *slog.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		result, err := sync.Sync(ctx, name)
		if err != nil {
			if errors.Is(err, domain.ErrJobAlreadyRunning) {
				lg.Warn("Job still running from a previous tick, skipping",
					slog.String("job_name", name),
				)
				return
			}
			lg.Error("Job run failed",
				slog.String("job_name", name),
				slog.Any("error", err),
			)
			return
		}

		if result.Skipped {
			lg.Info("Job skipped",
				slog.String("job_name", name),
			)
		}
	}
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
