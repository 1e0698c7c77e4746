package config

import (
	"fmt"
	"os"
	"time"

	"github.com/monitorul/subjobs/internal/jobs/domain"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Default job schedules, standard 5-field cron format. Overridable per job
// in the config file.
var defaultSchedules = map[string]string{
	domain.JobRecurringBilling: "0 */6 * * *",
	domain.JobTrialProcessing:  "0 * * * *",
	domain.JobPaymentRetries:   "0 */2 * * *",
	domain.JobFullCleanup:      "0 2 * * *",
	domain.JobMonitoring:       "*/15 * * * *",
}

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

// ServerConfig holds HTTP server configuration for the admin service
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	InternalAPIKey  string        `yaml:"internal_api_key"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds the alert broker connection and exchange settings
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// GatewayConfig holds the Netopia payment gateway credentials and endpoints
type GatewayConfig struct {
	APIKey     string        `yaml:"api_key"`
	SecretKey  string        `yaml:"secret_key"`
	BaseURL    string        `yaml:"base_url"`
	APIBaseURL string        `yaml:"api_base_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// JobsConfig holds job orchestration settings
type JobsConfig struct {
	Schedules        map[string]string `yaml:"schedules"`
	StaleAfter       time.Duration     `yaml:"stale_after"`
	RetentionDays    int               `yaml:"retention_days"`
	MaxRetryAttempts int               `yaml:"max_retry_attempts"`
	DryRun           bool              `yaml:"dry_run"`
}

// Retention returns the log retention window as a duration.
func (j *JobsConfig) Retention() time.Duration {
	return time.Duration(j.RetentionDays) * 24 * time.Hour
}

// Load reads and parses the configuration file and fills in defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// applyDefaults fills the orchestration settings a file may omit.
func (c *Config) applyDefaults() {
	if c.Jobs.Schedules == nil {
		c.Jobs.Schedules = map[string]string{}
	}
	for name, spec := range defaultSchedules {
		if _, ok := c.Jobs.Schedules[name]; !ok {
			c.Jobs.Schedules[name] = spec
		}
	}
	if c.Jobs.StaleAfter == 0 {
		c.Jobs.StaleAfter = 30 * time.Minute
	}
	if c.Jobs.RetentionDays == 0 {
		c.Jobs.RetentionDays = 30
	}
	if c.Jobs.MaxRetryAttempts == 0 {
		c.Jobs.MaxRetryAttempts = 3
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
}

// ValidateAdminConfig checks the settings the admin service needs.
func (c *Config) ValidateAdminConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Server.InternalAPIKey == "" {
		return fmt.Errorf("internal API key is required")
	}

	return c.validateShared()
}

// ValidateSchedulerConfig checks the settings the scheduler service needs.
func (c *Config) ValidateSchedulerConfig() error {
	if len(c.Jobs.Schedules) == 0 {
		return fmt.Errorf("at least one job schedule is required")
	}

	if c.Jobs.MaxRetryAttempts <= 0 {
		return fmt.Errorf("jobs max_retry_attempts must be greater than 0")
	}

	if c.Jobs.RetentionDays <= 0 {
		return fmt.Errorf("jobs retention_days must be greater than 0")
	}

	if c.Jobs.StaleAfter <= 0 {
		return fmt.Errorf("jobs stale_after must be greater than 0")
	}

	return c.validateShared()
}

func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}

		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}

		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
	}

	return nil
}
