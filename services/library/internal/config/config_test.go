package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("LIBRARY_LOGIN_RATE_LIMIT_PER_MINUTE", "3")
	t.Setenv("LIBRARY_CORS_ORIGINS", "https://a.test, https://b.test")

	path := writeConfig(t, `
databaseDriver: "mysql"
databaseURL: "biblioteca:secret@tcp(localhost:3306)/biblioteca?parseTime=true"
jwtSecret: "`+testSecret+`"
accessTokenTTL: "168h"
autoMigrate: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("port = %q, want env override", cfg.Port)
	}
	if cfg.DatabaseDriver != DriverMySQL || !cfg.AutoMigrate {
		t.Fatalf("unexpected database config: %+v", cfg)
	}
	if Duration(cfg.AccessTokenTTL) != 168*time.Hour {
		t.Fatalf("access ttl = %s", cfg.AccessTokenTTL)
	}
	if cfg.LoginRateLimitPerMinute != 3 || len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.test" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.BasePath != "/api" || cfg.TextPageSize != 1800 || Duration(cfg.RefreshTokenTTL) != 7*24*time.Hour {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadWithoutFileUsesEnvAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET="+testSecret+"\nDATABASE_DRIVER=memory\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("DATABASE_DRIVER")
	})

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DatabaseDriver != DriverMemory || cfg.JWTSecret != testSecret {
		t.Fatalf("expected .env values, got %+v", cfg)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := defaults()
	valid.DatabaseURL = "postgres://localhost/biblioteca"
	valid.JWTSecret = testSecret
	if err := validateConfig(valid); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*FileConfig)
		want   string
	}{
		{"short secret", func(c *FileConfig) { c.JWTSecret = "short" }, "jwtSecret"},
		{"rsa without public key", func(c *FileConfig) { c.JWTPrivateKeyPath = "k.pem" }, "jwtPublicKeyPath"},
		{"weak bcrypt", func(c *FileConfig) { c.BcryptCost = 10 }, "bcryptCost"},
		{"missing dsn", func(c *FileConfig) { c.DatabaseURL = "" }, "databaseURL"},
		{"unknown driver", func(c *FileConfig) { c.DatabaseDriver = "sqlite" }, "databaseDriver"},
		{"bad duration", func(c *FileConfig) { c.AccessTokenTTL = "forever" }, "accessTokenTTL"},
		{"zero refresh ttl", func(c *FileConfig) { c.RefreshTokenTTL = "0s" }, "refreshTokenTTL"},
		{"negative limit", func(c *FileConfig) { c.LoginRateLimitPerMinute = -1 }, "rate limits"},
		{"partial minio", func(c *FileConfig) { c.MinioEndpoint = "localhost:9000" }, "minioAccessKey"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := validateConfig(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("BCRYPT_COST", "strong")
	if _, err := Load("missing.yaml"); err == nil || !strings.Contains(err.Error(), "BCRYPT_COST") {
		t.Fatalf("expected BCRYPT_COST error, got %v", err)
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv("LIBRARY_CONFIG", "/etc/biblioteca.yaml")
	if got := ResolvePath(""); got != "/etc/biblioteca.yaml" {
		t.Fatalf("env path not used: %q", got)
	}
	if got := ResolvePath("local.yaml"); got != "local.yaml" {
		t.Fatalf("flag path not preferred: %q", got)
	}
}
