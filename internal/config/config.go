package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// EngineConfig holds alert engine configuration
type EngineConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Lookback     time.Duration `yaml:"lookback"`
}

// KafkaConfig holds Kafka configuration. Empty brokers disable both the
// trade consumer and the notification producer.
type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	TradeTopic        string   `yaml:"trade_topic"`
	NotificationTopic string   `yaml:"notification_topic"`
	GroupID           string   `yaml:"group_id"`
}

// RedisConfig holds the cross-instance signal bridge configuration. An
// empty addr disables the bridge; single-instance deployments don't need
// it.
type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

// Load reads configuration from environment variables, optionally layered
// on top of a YAML file named by CONFIG_FILE. Environment variables win.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			DBName:  "journalalerts",
			SSLMode: "disable",
		},
		Engine: EngineConfig{
			PollInterval: 30 * time.Second,
			Lookback:     90 * 24 * time.Hour,
		},
		Kafka: KafkaConfig{
			TradeTopic:        "trade-events",
			NotificationTopic: "alert-notifications",
			GroupID:           "journal-alert-service",
		},
		Redis: RedisConfig{
			Channel: "journal-alerts",
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Engine.PollInterval <= 0 {
		return nil, fmt.Errorf("engine poll interval must be positive, got %s", cfg.Engine.PollInterval)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.Engine.PollInterval = getDurationEnv("ENGINE_POLL_INTERVAL", cfg.Engine.PollInterval)
	cfg.Engine.Lookback = getDurationEnv("ENGINE_LOOKBACK", cfg.Engine.Lookback)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	cfg.Kafka.TradeTopic = getEnv("KAFKA_TRADE_TOPIC", cfg.Kafka.TradeTopic)
	cfg.Kafka.NotificationTopic = getEnv("KAFKA_NOTIFICATION_TOPIC", cfg.Kafka.NotificationTopic)
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", cfg.Kafka.GroupID)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Channel = getEnv("REDIS_CHANNEL", cfg.Redis.Channel)
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// Bare numbers mean seconds.
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}
