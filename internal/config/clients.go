package config

import (
	"time"

	"github.com/cuongbtq/inference-worker/shared/logger"
	"github.com/cuongbtq/inference-worker/shared/postgresql"
	"github.com/cuongbtq/inference-worker/shared/rabbitmq"
)

// RabbitMQClientConfig maps the broker section onto the client settings
func (c *Config) RabbitMQClientConfig() *rabbitmq.Config {
	r := &c.RabbitMQ
	return &rabbitmq.Config{
		Host:               r.Host,
		Port:               r.Port,
		User:               r.User,
		Password:           r.Password,
		VHost:              r.VHost,
		ExchangeName:       r.Exchange.Name,
		ExchangeType:       r.Exchange.Type,
		ExchangeDurable:    r.Exchange.Durable,
		ExchangeAutoDelete: r.Exchange.AutoDelete,
		QueueName:          r.Queue.Name,
		QueueDurable:       r.Queue.IsDurable(),
		QueueAutoDelete:    r.Queue.AutoDelete,
		QueueExclusive:     r.Queue.Exclusive,
		RoutingKey:         r.RoutingKey,
		PrefetchCount:      r.Consumer.PrefetchCount,
		RetryInterval:      r.Connection.RetryInterval,
		MaxRetryWait:       r.Connection.MaxRetryWait,
		Heartbeat:          r.Connection.Heartbeat,
		ConnectionTimeout:  r.Connection.ConnectionTimeout,
		PublishRetries:     r.Publish.RetryAttempts,
		PublishRetryDelay:  r.Publish.RetryInterval,
		PublishBackoffMult: r.Publish.BackoffMultiplier,
	}
}

// PostgresClientConfig maps the database section onto the client settings
func (c *Config) PostgresClientConfig() *postgresql.Config {
	d := &c.Database
	return &postgresql.Config{
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Database,
		SSLMode:         d.SSLMode,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
	}
}

// LoggerConfig maps the logging section onto the logger settings for service
func (c *Config) LoggerConfig(service string) *logger.Config {
	return &logger.Config{
		Service:      service,
		Level:        c.Logging.Level,
		Format:       c.Logging.Format,
		Output:       c.Logging.Output,
		EnableSource: c.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
	}
}
