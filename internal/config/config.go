package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration. Values come from environment
// variables prefixed COURSEBOARD_ (dots become underscores), falling back
// to defaults that run a single local instance against SQLite.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	WebSocket WebSocketConfig
	Storage   StorageConfig
	Kafka     KafkaConfig
	JWT       JWTConfig
	Reminder  ReminderConfig
	DevProxy  DevProxyConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	// Driver is "sqlite" for local development and tests, "mysql" in
	// production.
	Driver string
	DSN    string
}

type WebSocketConfig struct {
	Path         string
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type JWTConfig struct {
	Secret string
	Expire time.Duration
}

type ReminderConfig struct {
	Lead time.Duration
	Poll time.Duration
}

type DevProxyConfig struct {
	Path   string
	Target string
}

// Load reads configuration from the environment over defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COURSEBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./courseboard.db")

	v.SetDefault("websocket.path", "/api/ws")
	v.SetDefault("websocket.ping_interval", 30*time.Second)
	v.SetDefault("websocket.read_timeout", 60*time.Second)
	v.SetDefault("websocket.write_timeout", 10*time.Second)
	v.SetDefault("websocket.send_buffer", 100)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.bucket", "courseboard")
	v.SetDefault("storage.use_ssl", false)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "courseboard.events")

	v.SetDefault("jwt.secret", "secret")
	v.SetDefault("jwt.expire", 24*time.Hour)

	v.SetDefault("reminder.lead", time.Hour)
	v.SetDefault("reminder.poll", time.Minute)

	v.SetDefault("devproxy.path", "")
	v.SetDefault("devproxy.target", "")

	cfg := &Config{
		Server: ServerConfig{
			Host:         v.GetString("server.host"),
			Port:         v.GetInt("server.port"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
			IdleTimeout:  v.GetDuration("server.idle_timeout"),
		},
		Database: DatabaseConfig{
			Driver: v.GetString("database.driver"),
			DSN:    v.GetString("database.dsn"),
		},
		WebSocket: WebSocketConfig{
			Path:         v.GetString("websocket.path"),
			PingInterval: v.GetDuration("websocket.ping_interval"),
			ReadTimeout:  v.GetDuration("websocket.read_timeout"),
			WriteTimeout: v.GetDuration("websocket.write_timeout"),
			SendBuffer:   v.GetInt("websocket.send_buffer"),
		},
		Storage: StorageConfig{
			Enabled:   v.GetBool("storage.enabled"),
			Endpoint:  v.GetString("storage.endpoint"),
			AccessKey: v.GetString("storage.access_key"),
			SecretKey: v.GetString("storage.secret_key"),
			Bucket:    v.GetString("storage.bucket"),
			UseSSL:    v.GetBool("storage.use_ssl"),
		},
		Kafka: KafkaConfig{
			Enabled: v.GetBool("kafka.enabled"),
			Brokers: v.GetStringSlice("kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Expire: v.GetDuration("jwt.expire"),
		},
		Reminder: ReminderConfig{
			Lead: v.GetDuration("reminder.lead"),
			Poll: v.GetDuration("reminder.poll"),
		},
		DevProxy: DevProxyConfig{
			Path:   v.GetString("devproxy.path"),
			Target: v.GetString("devproxy.target"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}

	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}

	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		return fmt.Errorf("websocket path must start with /")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket timeouts must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket send buffer must be positive")
	}

	if c.Storage.Enabled {
		if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
			return fmt.Errorf("storage endpoint and bucket are required when storage is enabled")
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required when the relay is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required when the relay is enabled")
		}
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret cannot be empty")
	}

	if c.Reminder.Lead <= 0 || c.Reminder.Poll <= 0 {
		return fmt.Errorf("reminder durations must be positive")
	}

	if c.DevProxy.Path != "" && c.DevProxy.Target == "" {
		return fmt.Errorf("devproxy target is required when devproxy path is set")
	}

	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
