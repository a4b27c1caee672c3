// Package config loads the msgq YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jacklaaa89/msgq/rabbitmq"
)

// Backend the queue backend to use.
type Backend string

const (
	// BackendRabbitMQ the AMQP 0.9.1 broker backend, push delivery.
	BackendRabbitMQ Backend = "rabbitmq"
	// BackendSQS the SQS backend, poll delivery.
	BackendSQS Backend = "sqs"
)

// Config represents the complete application configuration.
type Config struct {
	Backend  Backend           `yaml:"backend" validate:"required,oneof=rabbitmq sqs"`
	RabbitMQ RabbitMQConfig    `yaml:"rabbitmq"`
	SQS      SQSConfig         `yaml:"sqs"`
	Queues   map[string]string `yaml:"queues"` // logical name -> backend queue name.
	Logger   LoggerConfig      `yaml:"logger"`
	Metrics  MetricsConfig     `yaml:"metrics"`
}

// RabbitMQConfig holds broker connection settings.
type RabbitMQConfig struct {
	Host        string `yaml:"host" validate:"required"`
	Port        int    `yaml:"port" validate:"required,min=1,max=65535"`
	Username    string `yaml:"username" validate:"required"`
	Password    string `yaml:"password"`
	VirtualHost string `yaml:"vhost" validate:"required"`
	Prefetch    int    `yaml:"prefetch" validate:"gte=0"`
}

// SQSConfig holds SQS settings, credentials come from the default AWS chain.
type SQSConfig struct {
	Region   string `yaml:"region" validate:"required"`
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// MetricsConfig holds the prometheus endpoint settings, an empty address disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// Default returns a configuration with only defaults applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from the specified YAML file path, applies
// defaults to unset values and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration, it is called by Load.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Backend == "" {
		cfg.Backend = BackendRabbitMQ
	}

	// RabbitMQ defaults
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}
	if cfg.RabbitMQ.Username == "" {
		cfg.RabbitMQ.Username = "guest"
		cfg.RabbitMQ.Password = "guest"
	}
	if cfg.RabbitMQ.VirtualHost == "" {
		cfg.RabbitMQ.VirtualHost = "/"
	}

	// SQS defaults
	if cfg.SQS.Region == "" {
		cfg.SQS.Region = "us-east-1"
	}

	// Logger defaults
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
	}
}

// Settings returns the broker connection settings.
func (c *RabbitMQConfig) Settings() rabbitmq.Settings {
	return rabbitmq.Settings{
		Host:        c.Host,
		Port:        c.Port,
		Username:    c.Username,
		Password:    c.Password,
		VirtualHost: c.VirtualHost,
	}
}

// URL returns the amqp:// URL of the broker.
func (c *RabbitMQConfig) URL() string {
	return c.Settings().URL()
}
