package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Session  SessionConfig  `mapstructure:"session"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Seed     SeedConfig     `mapstructure:"seed"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// StorageConfig selects the repository backend: "memory" (default) or
// "postgres".
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// SessionConfig controls the durable session slot and the cosmetic
// login/signup latency.
type SessionConfig struct {
	SlotBackend        string `mapstructure:"slot_backend"` // "memory" or "redis"
	SlotKey            string `mapstructure:"slot_key"`
	SimulatedLatencyMS int    `mapstructure:"simulated_latency_ms"`
}

func (c SessionConfig) SimulatedLatency() time.Duration {
	return time.Duration(c.SimulatedLatencyMS) * time.Millisecond
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"` // "json" or "console"
	Output   string `mapstructure:"output"` // "stdout" or "file"
	FilePath string `mapstructure:"file_path"`
}

// KafkaConfig is optional; without brokers the event stream is disabled.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type SeedConfig struct {
	Demo bool `mapstructure:"demo"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")

	v.SetDefault("storage.backend", "memory")

	v.SetDefault("postgres.host", "127.0.0.1")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.max_idle_conns", 10)
	v.SetDefault("postgres.max_open_conns", 100)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("session.slot_backend", "memory")
	v.SetDefault("session.slot_key", "commonroom:session:active")
	v.SetDefault("session.simulated_latency_ms", 0)

	v.SetDefault("jwt.secret", "change-me-in-production")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("kafka.topic", "commonroom.events")

	v.SetDefault("seed.demo", false)
}
