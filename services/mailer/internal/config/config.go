package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location, overridable with MAILER_CONFIG.
var ConfigPath = envOr("MAILER_CONFIG", "config.yaml")

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port             string `yaml:"port"`
	LogLevel         string `yaml:"logLevel"`
	StoreDriver      string `yaml:"storeDriver"`
	DatabaseURL      string `yaml:"databaseURL"`
	MongoURI         string `yaml:"mongoURI"`
	MongoDatabase    string `yaml:"mongoDatabase"`
	RedisAddr        string `yaml:"redisAddr"`
	RedisPassword    string `yaml:"redisPassword"`
	MailStream       string `yaml:"mailStream"`
	QueueConcurrency int    `yaml:"queueConcurrency"`
	QueueMaxAttempts int    `yaml:"queueMaxAttempts"`
	SMTPHost         string `yaml:"smtpHost"`
	SMTPPort         int    `yaml:"smtpPort"`
	SMTPUsername     string `yaml:"smtpUsername"`
	SMTPPassword     string `yaml:"smtpPassword"`
	SMTPImplicitTLS  bool   `yaml:"smtpImplicitTLS"`
	MailFromName     string `yaml:"mailFromName"`
	MailFromAddress  string `yaml:"mailFromAddress"`
	AdminBcc         string `yaml:"adminBcc"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		cfg.MongoURI = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.SMTPPort = n
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.SMTPUsername = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.SMTPPassword = v
	}
	if v := os.Getenv("MAILER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.QueueConcurrency = n
		}
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = "postgres"
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = "neokudilonga"
	}
	if cfg.MailStream == "" {
		cfg.MailStream = "neokudilonga:mail"
	}
	if cfg.QueueConcurrency <= 0 {
		cfg.QueueConcurrency = 2
	}
	if cfg.MailFromName == "" {
		cfg.MailFromName = "Neokudilonga"
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for the postgres store")
		}
	case "mongo":
		if cfg.MongoURI == "" {
			return errors.New("config: mongoURI is required for the mongo store")
		}
	default:
		// The in-memory store is per process and cannot see the shop's orders.
		return fmt.Errorf("config: storeDriver must be postgres or mongo, got %q", cfg.StoreDriver)
	}
	if cfg.SMTPHost != "" && cfg.MailFromAddress == "" {
		return errors.New("config: mailFromAddress is required with smtpHost")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
