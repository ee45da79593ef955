package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Environment variables that override the config file
const (
	EnvCallbackURL      = "RAILS_API_CALLBACK_URL"
	EnvHMACSecret       = "HMAC_SECRET"
	EnvRabbitMQHost     = "RABBITMQ_HOST"
	EnvRabbitMQPort     = "RABBITMQ_PORT"
	EnvRabbitMQUser     = "RABBITMQ_USER"
	EnvRabbitMQPassword = "RABBITMQ_PASSWORD"
	EnvDatabaseHost     = "DATABASE_HOST"
	EnvDatabasePassword = "DATABASE_PASSWORD"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Worker    WorkerConfig    `yaml:"worker"`
	Callback  CallbackConfig  `yaml:"callback"`
	Processor ProcessorConfig `yaml:"processor"`
	Installer InstallerConfig `yaml:"installer"`
}

// ServerConfig holds HTTP server configuration. A zero port disables the server.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
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

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
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
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration. An empty name uses the default exchange.
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration. Durable defaults to true when omitted.
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    *bool  `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// IsDurable reports whether the queue is declared durable
func (q QueueConfig) IsDurable() bool {
	return q.Durable == nil || *q.Durable
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryInterval     time.Duration `yaml:"retry_interval"`
	MaxRetryWait      time.Duration `yaml:"max_retry_wait"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int    `yaml:"prefetch_count"`
	TagPrefix     string `yaml:"tag_prefix"`
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

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Instances       int           `yaml:"instances"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CallbackConfig holds the result callback target. The secret is checked per message.
type CallbackConfig struct {
	URL     string        `yaml:"url"`
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
}

// ProcessorConfig holds settings for the inference step. A zero timeout means unbounded.
type ProcessorConfig struct {
	Delay   time.Duration `yaml:"delay"`
	Timeout time.Duration `yaml:"timeout"`
}

// InstallerConfig holds the model install pool settings
type InstallerConfig struct {
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	InstallDelay    time.Duration `yaml:"install_delay"`
	CallbackTimeout time.Duration `yaml:"callback_timeout"`
}

// Load reads and parses the configuration file, then applies environment overrides and defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	config.ApplyDefaults()

	return &config, nil
}

// ApplyEnv overrides file values with any environment variables that are set
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strOverrides := map[string]*string{
		EnvCallbackURL:      &c.Callback.URL,
		EnvHMACSecret:       &c.Callback.Secret,
		EnvRabbitMQHost:     &c.RabbitMQ.Host,
		EnvRabbitMQUser:     &c.RabbitMQ.User,
		EnvRabbitMQPassword: &c.RabbitMQ.Password,
		EnvDatabaseHost:     &c.Database.Host,
		EnvDatabasePassword: &c.Database.Password,
	}
	for key, field := range strOverrides {
		if v, ok := lookup(key); ok && v != "" {
			*field = v
		}
	}

	if v, ok := lookup(EnvRabbitMQPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvRabbitMQPort, v, err)
		}
		c.RabbitMQ.Port = port
	}

	return nil
}

// ApplyDefaults fills values that were left unset
func (c *Config) ApplyDefaults() {
	if c.RabbitMQ.Port == 0 {
		c.RabbitMQ.Port = 5672
	}
	if c.RabbitMQ.Queue.Name == "" {
		c.RabbitMQ.Queue.Name = "user_prompts"
	}
	if c.RabbitMQ.Queue.Durable == nil {
		durable := true
		c.RabbitMQ.Queue.Durable = &durable
	}
	if c.RabbitMQ.Connection.RetryInterval == 0 {
		c.RabbitMQ.Connection.RetryInterval = 5 * time.Second
	}
	if c.RabbitMQ.Consumer.PrefetchCount == 0 {
		c.RabbitMQ.Consumer.PrefetchCount = 1
	}
	if c.Worker.Instances == 0 {
		c.Worker.Instances = 1
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
	if c.Callback.Timeout == 0 {
		c.Callback.Timeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Installer.Workers == 0 {
		c.Installer.Workers = 2
	}
	if c.Installer.QueueSize == 0 {
		c.Installer.QueueSize = 16
	}
	if c.Installer.CallbackTimeout == 0 {
		c.Installer.CallbackTimeout = 10 * time.Second
	}
}

func validPort(port int) bool {
	return port >= MinPort && port <= MaxPort
}

// validateRabbitMQ checks the broker settings shared by every service
func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if !validPort(c.RabbitMQ.Port) {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if !c.RabbitMQ.Queue.IsDurable() {
		return fmt.Errorf("rabbitmq queue %q must be durable", c.RabbitMQ.Queue.Name)
	}

	if c.RabbitMQ.Connection.MaxRetryWait < 0 {
		return fmt.Errorf("rabbitmq max_retry_wait must not be negative")
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service needs.
// A missing HMAC secret is not a startup error: messages are rejected one by one instead.
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.Worker.Instances <= 0 {
		return fmt.Errorf("worker instances must be greater than 0")
	}

	if c.Callback.Timeout <= 0 {
		return fmt.Errorf("callback timeout must be greater than 0")
	}

	if c.Callback.URL != "" {
		if _, err := url.ParseRequestURI(c.Callback.URL); err != nil {
			return fmt.Errorf("invalid callback url: %w", err)
		}
	}

	if c.Processor.Timeout < 0 {
		return fmt.Errorf("processor timeout must not be negative")
	}

	if c.Server.Port != 0 && !validPort(c.Server.Port) {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	return nil
}

// ValidateInstallerConfig checks the settings the installer service needs
func (c *Config) ValidateInstallerConfig() error {
	if !validPort(c.Server.Port) {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Installer.Workers <= 0 {
		return fmt.Errorf("installer workers must be greater than 0")
	}

	if c.Installer.QueueSize <= 0 {
		return fmt.Errorf("installer queue_size must be greater than 0")
	}

	if !c.Database.Enabled {
		return nil
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if !validPort(c.Database.Port) {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

// ValidatePublisherConfig checks the settings the prompt publisher needs
func (c *Config) ValidatePublisherConfig() error {
	return c.validateRabbitMQ()
}
