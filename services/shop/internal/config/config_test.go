package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
port: "8080"
adminEmail: admin@neokudilonga.com
adminPasswordHash: "$2a$10$abcdefghijklmnopqrstuv"
adminJWTSecret: 0123456789abcdef0123456789abcdef
adminTokenTTL: 8h
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreDriver != "memory" || cfg.CacheNamespace != "nk_cache" || cfg.MailStream != "neokudilonga:mail" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.CheckoutRateLimitPerMinute != 10 || cfg.MaxUploadBytes != 5<<20 {
		t.Fatalf("limits = %d/%d", cfg.CheckoutRateLimitPerMinute, cfg.MaxUploadBytes)
	}
	if ttl, _ := ParseDuration(cfg.AdminTokenTTL); ttl != 8*time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SHOP_STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://shop@db/shop")
	t.Setenv("SHOP_ALLOWED_ORIGINS", "https://neokudilonga.com, https://www.neokudilonga.com")
	t.Setenv("MINIO_USE_SSL", "true")
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreDriver != "postgres" || cfg.DatabaseURL != "postgres://shop@db/shop" || !cfg.MinioUseSSL {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://www.neokudilonga.com" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		want  string
	}{
		{"unknown driver", "storeDriver: sqlite\n", "unknown storeDriver"},
		{"postgres without url", "storeDriver: postgres\n", "databaseURL"},
		{"mongo without uri", "storeDriver: mongo\n", "mongoURI"},
		{"bad ttl", "cacheTTL: soon\n", "cacheTTL"},
		{"partial minio", "minioEndpoint: minio:9000\n", "minioBucket"},
		{"whatsapp without phone id", "whatsappAccessToken: tok\n", "whatsappPhoneNumberID"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, validYAML+tc.extra))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestLoadRejectsShortSecret(t *testing.T) {
	t.Setenv("SHOP_ADMIN_JWT_SECRET", "short")
	if _, err := Load(writeConfig(t, validYAML)); err == nil || !strings.Contains(err.Error(), "adminJWTSecret") {
		t.Fatalf("err = %v", err)
	}
}
