package config

import (
	"fmt"
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

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	App        AppConfig        `yaml:"app"`
	Session    SessionConfig    `yaml:"session"`
	Recipients RecipientsConfig `yaml:"recipients"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Events     EventsConfig     `yaml:"events"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	UI         UIConfig         `yaml:"ui"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	NoColor      bool   `yaml:"no_color"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// SessionConfig controls the WhatsApp session
type SessionConfig struct {
	Store          SessionStoreConfig `yaml:"store"`
	AutoReconnect  bool               `yaml:"auto_reconnect"`
	ReconnectDelay time.Duration      `yaml:"reconnect_delay"`
	QROnce         bool               `yaml:"qr_once"`
	PrintQR        bool               `yaml:"print_qr"`
	QRSize         int                `yaml:"qr_size"`
}

// SessionStoreConfig locates the device credential store
type SessionStoreConfig struct {
	Dialect string `yaml:"dialect"` // sqlite or postgres
	DSN     string `yaml:"dsn"`
}

// RecipientsConfig holds phone-number normalization rules
type RecipientsConfig struct {
	CountryCode      string `yaml:"country_code"`
	MinDigits        int    `yaml:"min_digits"`
	SheetColumn      string `yaml:"sheet_column"`
	SheetNumericOnly bool   `yaml:"sheet_numeric_only"`
}

// DispatchConfig holds send loop settings
type DispatchConfig struct {
	DefaultDelay  time.Duration `yaml:"default_delay"`
	MinDelay      time.Duration `yaml:"min_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	SendTimeout   time.Duration `yaml:"send_timeout"`
	MaxPerMinute  int           `yaml:"max_per_minute"`
	QueueSize     int           `yaml:"queue_size"`
	MessageFooter string        `yaml:"message_footer"`
	RequireReady  bool          `yaml:"require_ready"`
	StatusMax     int           `yaml:"status_max"`
	StatusTTL     time.Duration `yaml:"status_ttl"`
}

// StorageConfig selects the job history backend
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory or postgres
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

// RabbitMQConfig holds RabbitMQ connection and exchange configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
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

// EventsConfig holds progress fan-out settings
type EventsConfig struct {
	SubscriberBuffer  int            `yaml:"subscriber_buffer"`
	HeartbeatInterval time.Duration  `yaml:"heartbeat_interval"`
	AMQP              AMQPSinkConfig `yaml:"amqp"`
}

// AMQPSinkConfig toggles publishing progress events to RabbitMQ
type AMQPSinkConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// UIConfig locates the static browser UI
type UIConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0, // /ws and /events stream indefinitely
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxUploadBytes:  64 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		App: AppConfig{
			Name:        "bulksend",
			Version:     "dev",
			Environment: "development",
		},
		Session: SessionConfig{
			Store: SessionStoreConfig{
				Dialect: "sqlite",
				DSN:     "file:session.db?_pragma=foreign_keys(1)",
			},
			AutoReconnect:  true,
			ReconnectDelay: 5 * time.Second,
			PrintQR:        true,
			QRSize:         256,
		},
		Recipients: RecipientsConfig{
			CountryCode:      "91",
			MinDigits:        10,
			SheetNumericOnly: true,
		},
		Dispatch: DispatchConfig{
			DefaultDelay: 2000 * time.Millisecond,
			MinDelay:     1500 * time.Millisecond,
			SendTimeout:  60 * time.Second,
			QueueSize:    16,
			RequireReady: true,
			StatusMax:    200,
			StatusTTL:    24 * time.Hour,
		},
		Storage: StorageConfig{
			Driver: "memory",
		},
		Database: DatabaseConfig{
			Port:            5432,
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		RabbitMQ: RabbitMQConfig{
			Port:  5672,
			VHost: "/",
			Exchange: ExchangeConfig{
				Name:    "bulksend.events",
				Type:    "topic",
				Durable: true,
			},
			RoutingKey: "bulksend.progress",
			Connection: ConnectionConfig{
				RetryAttempts:     5,
				RetryInterval:     2 * time.Second,
				Heartbeat:         10 * time.Second,
				ConnectionTimeout: 10 * time.Second,
			},
			Publish: PublishConfig{
				RetryAttempts:     3,
				RetryInterval:     100 * time.Millisecond,
				BackoffMultiplier: 2,
			},
		},
		Events: EventsConfig{
			SubscriberBuffer:  64,
			HeartbeatInterval: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		UI: UIConfig{
			Dir: "public",
		},
	}
}

// Load reads and parses the configuration file on top of Default().
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides file values with environment variables. PORT is the
// only override the web UI deployments rely on; the rest exist for
// containers that keep secrets out of the yaml file.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("BULKSEND_SESSION_DSN"); ok && v != "" {
		c.Session.Store.DSN = v
	}
	if v, ok := lookup("BULKSEND_DB_PASSWORD"); ok && v != "" {
		c.Database.Password = v
	}
	if v, ok := lookup("BULKSEND_RABBITMQ_PASSWORD"); ok && v != "" {
		c.RabbitMQ.Password = v
	}
	if v, ok := lookup("BULKSEND_LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	switch c.Session.Store.Dialect {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid session store dialect: %q (must be sqlite or postgres)", c.Session.Store.Dialect)
	}

	if c.Session.Store.DSN == "" {
		return fmt.Errorf("session store dsn is required")
	}

	if c.Recipients.CountryCode == "" {
		return fmt.Errorf("recipients country_code is required")
	}

	for _, r := range c.Recipients.CountryCode {
		if r < '0' || r > '9' {
			return fmt.Errorf("recipients country_code must be digits only: %q", c.Recipients.CountryCode)
		}
	}

	if c.Recipients.MinDigits <= 0 {
		return fmt.Errorf("recipients min_digits must be greater than 0")
	}

	if err := c.validateDispatch(); err != nil {
		return err
	}

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	default:
		return fmt.Errorf("invalid storage driver: %q (must be memory or postgres)", c.Storage.Driver)
	}

	if c.Events.AMQP.Enabled {
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

func (c *Config) validateDispatch() error {
	d := c.Dispatch

	if d.MinDelay <= 0 {
		return fmt.Errorf("dispatch min_delay must be greater than 0")
	}

	if d.DefaultDelay < d.MinDelay {
		return fmt.Errorf("dispatch default_delay (%s) must not be below min_delay (%s)", d.DefaultDelay, d.MinDelay)
	}

	if d.MaxDelay != 0 && d.MaxDelay < d.MinDelay {
		return fmt.Errorf("dispatch max_delay (%s) must not be below min_delay (%s)", d.MaxDelay, d.MinDelay)
	}

	if d.SendTimeout <= 0 {
		return fmt.Errorf("dispatch send_timeout must be greater than 0")
	}

	if d.QueueSize <= 0 {
		return fmt.Errorf("dispatch queue_size must be greater than 0")
	}

	if d.MaxPerMinute < 0 {
		return fmt.Errorf("dispatch max_per_minute must not be negative")
	}

	return nil
}
