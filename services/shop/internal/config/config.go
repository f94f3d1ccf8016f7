package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location, overridable with SHOP_CONFIG.
var ConfigPath = envOr("SHOP_CONFIG", "config.yaml")

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                       string   `yaml:"port"`
	LogLevel                   string   `yaml:"logLevel"`
	StoreDriver                string   `yaml:"storeDriver"`
	DatabaseURL                string   `yaml:"databaseURL"`
	MongoURI                   string   `yaml:"mongoURI"`
	MongoDatabase              string   `yaml:"mongoDatabase"`
	RedisAddr                  string   `yaml:"redisAddr"`
	RedisPassword              string   `yaml:"redisPassword"`
	CacheNamespace             string   `yaml:"cacheNamespace"`
	CacheTTL                   string   `yaml:"cacheTTL"`
	RebandAids                 bool     `yaml:"rebandAids"`
	MinioEndpoint              string   `yaml:"minioEndpoint"`
	MinioAccessKey             string   `yaml:"minioAccessKey"`
	MinioSecretKey             string   `yaml:"minioSecretKey"`
	MinioBucket                string   `yaml:"minioBucket"`
	MinioUseSSL                bool     `yaml:"minioUseSSL"`
	MinioPublicBaseURL         string   `yaml:"minioPublicBaseURL"`
	MaxUploadBytes             int64    `yaml:"maxUploadBytes"`
	AdminEmail                 string   `yaml:"adminEmail"`
	AdminPasswordHash          string   `yaml:"adminPasswordHash"`
	AdminJWTSecret             string   `yaml:"adminJWTSecret"`
	AdminTokenTTL              string   `yaml:"adminTokenTTL"`
	TrustedProxyCIDRs          []string `yaml:"trustedProxyCidrs"`
	AllowedOrigins             []string `yaml:"allowedOrigins"`
	CheckoutRateLimitPerMinute int      `yaml:"checkoutRateLimitPerMinute"`
	LoginRateLimitPerMinute    int      `yaml:"loginRateLimitPerMinute"`
	ChatRateLimitPerMinute     int      `yaml:"chatRateLimitPerMinute"`
	LLMProvider                string   `yaml:"llmProvider"`
	LLMModel                   string   `yaml:"llmModel"`
	LLMAPIKey                  string   `yaml:"llmAPIKey"`
	LLMBaseURL                 string   `yaml:"llmBaseURL"`
	WhatsAppPhoneNumberID      string   `yaml:"whatsappPhoneNumberID"`
	WhatsAppAccessToken        string   `yaml:"whatsappAccessToken"`
	WhatsAppVerifyToken        string   `yaml:"whatsappVerifyToken"`
	WhatsAppAppSecret          string   `yaml:"whatsappAppSecret"`
	MailStream                 string   `yaml:"mailStream"`
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
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Secrets and endpoints usually come from the environment.
func applyEnv(cfg *FileConfig) {
	strs := map[string]*string{
		"SHOP_PORT":                  &cfg.Port,
		"SHOP_STORE_DRIVER":          &cfg.StoreDriver,
		"DATABASE_URL":               &cfg.DatabaseURL,
		"MONGO_URI":                  &cfg.MongoURI,
		"REDIS_ADDR":                 &cfg.RedisAddr,
		"REDIS_PASSWORD":             &cfg.RedisPassword,
		"MINIO_ENDPOINT":             &cfg.MinioEndpoint,
		"MINIO_ACCESS_KEY":           &cfg.MinioAccessKey,
		"MINIO_SECRET_KEY":           &cfg.MinioSecretKey,
		"MINIO_BUCKET":               &cfg.MinioBucket,
		"SHOP_ADMIN_EMAIL":           &cfg.AdminEmail,
		"SHOP_ADMIN_PASSWORD_HASH":   &cfg.AdminPasswordHash,
		"SHOP_ADMIN_JWT_SECRET":      &cfg.AdminJWTSecret,
		"GEMINI_API_KEY":             &cfg.LLMAPIKey,
		"WHATSAPP_ACCESS_TOKEN":      &cfg.WhatsAppAccessToken,
		"WHATSAPP_VERIFY_TOKEN":      &cfg.WhatsAppVerifyToken,
		"WHATSAPP_APP_SECRET":        &cfg.WhatsAppAppSecret,
		"WHATSAPP_PHONE_NUMBER_ID":   &cfg.WhatsAppPhoneNumberID,
	}
	for key, dst := range strs {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("SHOP_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("SHOP_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("SHOP_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = "memory"
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = "neokudilonga"
	}
	if cfg.CacheNamespace == "" {
		cfg.CacheNamespace = "nk_cache"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 << 20
	}
	if cfg.CheckoutRateLimitPerMinute <= 0 {
		cfg.CheckoutRateLimitPerMinute = 10
	}
	if cfg.LoginRateLimitPerMinute <= 0 {
		cfg.LoginRateLimitPerMinute = 5
	}
	if cfg.ChatRateLimitPerMinute <= 0 {
		cfg.ChatRateLimitPerMinute = 20
	}
	if cfg.MailStream == "" {
		cfg.MailStream = "neokudilonga:mail"
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.StoreDriver {
	case "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for the postgres store")
		}
	case "mongo":
		if cfg.MongoURI == "" {
			return errors.New("config: mongoURI is required for the mongo store")
		}
	default:
		return fmt.Errorf("config: unknown storeDriver %q", cfg.StoreDriver)
	}
	if cfg.AdminEmail == "" || cfg.AdminPasswordHash == "" {
		return errors.New("config: adminEmail and adminPasswordHash are required")
	}
	if len(cfg.AdminJWTSecret) < 32 {
		return errors.New("config: adminJWTSecret must be at least 32 characters (set in config.yaml or SHOP_ADMIN_JWT_SECRET)")
	}
	if _, err := ParseDuration(cfg.AdminTokenTTL); err != nil {
		return fmt.Errorf("config: adminTokenTTL: %w", err)
	}
	if _, err := ParseDuration(cfg.CacheTTL); err != nil {
		return fmt.Errorf("config: cacheTTL: %w", err)
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "") {
		return errors.New("config: minioAccessKey, minioSecretKey and minioBucket are required with minioEndpoint")
	}
	if cfg.WhatsAppAccessToken != "" && cfg.WhatsAppPhoneNumberID == "" {
		return errors.New("config: whatsappPhoneNumberID is required with whatsappAccessToken")
	}
	return nil
}

// ParseDuration parses an optional duration. Empty means zero, letting the
// component apply its own default.
func ParseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("must be non-negative")
	}
	return d, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
