// Package config loads service configuration from an optional config.yaml
// plus CHRONICLE_* environment overrides, so main stays lean.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig
	Audit    AuditConfig
	Postgres PostgresConfig
	SQLite   SQLiteConfig
	File     FileConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr          string
	JWTSigningKey string
}

// AuditConfig selects the default driver and capture mode.
type AuditConfig struct {
	Driver    string
	Threshold int
	// Workers > 0 enables deferred capture through the in-process worker.
	Workers int
	// EncryptionKey is a hex-encoded 32-byte key. When set, the "aead"
	// encoder is registered and available for entity modifier bindings.
	EncryptionKey string
}

type PostgresConfig struct {
	DSN string
}

type SQLiteConfig struct {
	Path string
}

// FileConfig configures the append-only CSV driver.
type FileConfig struct {
	Dir      string
	Basename string
	Rotation string
}

// RedisConfig configures the queue transport. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the post-write fan-out. Empty brokers disable it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads config.yaml from path (optional) and applies environment
// overrides like CHRONICLE_AUDIT_DRIVER or CHRONICLE_POSTGRES_DSN.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("CHRONICLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.jwt_signing_key", "dev-secret-key-change-in-production")
	v.SetDefault("audit.driver", "memory")
	v.SetDefault("audit.threshold", 0)
	v.SetDefault("audit.workers", 0)
	v.SetDefault("sqlite.path", "chronicle.db")
	v.SetDefault("file.dir", "audit-logs")
	v.SetDefault("file.basename", "audit")
	v.SetDefault("file.rotation", "single")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("kafka.topic", "chronicle.audit")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
		// No config file is fine; defaults plus env cover it.
	}

	return Config{
		Server: ServerConfig{
			Addr:          v.GetString("server.addr"),
			JWTSigningKey: v.GetString("server.jwt_signing_key"),
		},
		Audit: AuditConfig{
			Driver:        v.GetString("audit.driver"),
			Threshold:     v.GetInt("audit.threshold"),
			Workers:       v.GetInt("audit.workers"),
			EncryptionKey: v.GetString("audit.encryption_key"),
		},
		Postgres: PostgresConfig{
			DSN: v.GetString("postgres.dsn"),
		},
		SQLite: SQLiteConfig{
			Path: v.GetString("sqlite.path"),
		},
		File: FileConfig{
			Dir:      v.GetString("file.dir"),
			Basename: v.GetString("file.basename"),
			Rotation: v.GetString("file.rotation"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis.url"),
			PoolSize:     v.GetInt("redis.pool_size"),
			MinIdleConns: v.GetInt("redis.min_idle_conns"),
			DialTimeout:  v.GetDuration("redis.dial_timeout"),
			ReadTimeout:  v.GetDuration("redis.read_timeout"),
			WriteTimeout: v.GetDuration("redis.write_timeout"),
		},
		Kafka: KafkaConfig{
			Brokers: v.GetStringSlice("kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
		},
	}, nil
}
