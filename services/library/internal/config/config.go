package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is used when neither --config nor LIBRARY_CONFIG is set.
const ConfigPath = "config.yaml"

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"

	minBcryptCost = 12
	maxBcryptCost = 31
	minJWTSecret  = 32
)

// FileConfig represents configuration loaded from YAML and the environment.
type FileConfig struct {
	Port            string   `yaml:"port"`
	LogLevel        string   `yaml:"logLevel"`
	LogFormat       string   `yaml:"logFormat"`
	BasePath        string   `yaml:"basePath"`
	CORSOrigins     []string `yaml:"corsOrigins"`
	MaxBodyBytes    int64    `yaml:"maxBodyBytes"`
	ShutdownTimeout string   `yaml:"shutdownTimeout"`

	DatabaseDriver    string `yaml:"databaseDriver"`
	DatabaseURL       string `yaml:"databaseURL"`
	DBMaxOpenConns    int    `yaml:"dbMaxOpenConns"`
	DBMaxIdleConns    int    `yaml:"dbMaxIdleConns"`
	DBConnMaxLifetime string `yaml:"dbConnMaxLifetime"`
	DBSlowThreshold   string `yaml:"dbSlowThreshold"`
	AutoMigrate       bool   `yaml:"autoMigrate"`

	JWTSecret           string            `yaml:"jwtSecret"`
	JWTPrivateKeyPath   string            `yaml:"jwtPrivateKeyPath"`
	JWTPublicKeyPath    string            `yaml:"jwtPublicKeyPath"`
	JWTKeyID            string            `yaml:"jwtKeyId"`
	JWTVerifyPublicKeys map[string]string `yaml:"jwtVerifyPublicKeys"`
	JWTIssuer           string            `yaml:"jwtIssuer"`
	JWTAudience         string            `yaml:"jwtAudience"`
	JWTLeeway           string            `yaml:"jwtLeeway"`
	AccessTokenTTL      string            `yaml:"accessTokenTTL"`
	RefreshTokenTTL     string            `yaml:"refreshTokenTTL"`
	BcryptCost          int               `yaml:"bcryptCost"`

	RedisAddr                  string   `yaml:"redisAddr"`
	RedisPassword              string   `yaml:"redisPassword"`
	TrustedProxyCIDRs          []string `yaml:"trustedProxyCidrs"`
	RegisterRateLimitPerMinute int      `yaml:"registerRateLimitPerMinute"`
	LoginRateLimitPerMinute    int      `yaml:"loginRateLimitPerMinute"`
	GoogleRateLimitPerMinute   int      `yaml:"googleRateLimitPerMinute"`
	RefreshRateLimitPerMinute  int      `yaml:"refreshRateLimitPerMinute"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	MinioRegion    string `yaml:"minioRegion"`
	DownloadURLTTL string `yaml:"downloadURLTTL"`

	TextPageSize int `yaml:"textPageSize"`
	ListPageSize int `yaml:"listPageSize"`
}

func defaults() FileConfig {
	return FileConfig{
		Port:                       "4000",
		LogLevel:                   "info",
		LogFormat:                  "json",
		BasePath:                   "/api",
		ShutdownTimeout:            "15s",
		DatabaseDriver:             DriverPostgres,
		DBMaxOpenConns:             20,
		DBMaxIdleConns:             5,
		DBConnMaxLifetime:          "30m",
		DBSlowThreshold:            "500ms",
		JWTIssuer:                  "biblioteca-auth",
		JWTAudience:                "biblioteca-api",
		JWTLeeway:                  "30s",
		AccessTokenTTL:             "15m",
		RefreshTokenTTL:            "168h",
		BcryptCost:                 minBcryptCost,
		RegisterRateLimitPerMinute: 5,
		LoginRateLimitPerMinute:    10,
		GoogleRateLimitPerMinute:   10,
		RefreshRateLimitPerMinute:  20,
		MinioBucket:                "biblioteca",
		DownloadURLTTL:             "15m",
		TextPageSize:               1800,
		ListPageSize:               20,
	}
}

// ResolvePath picks the config file: explicit flag, then LIBRARY_CONFIG, then
// ConfigPath.
func ResolvePath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("LIBRARY_CONFIG")); p != "" {
		return p
	}
	return ConfigPath
}

// Load reads .env (if present), the YAML file at path (if present) and the
// environment, in increasing precedence, then validates the result.
func Load(path string) (FileConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return FileConfig{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := defaults()
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = splitCSV(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s must be an integer", key))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s must be a boolean", key))
				return
			}
			*dst = b
		}
	}

	str("PORT", &cfg.Port)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("LIBRARY_BASE_PATH", &cfg.BasePath)
	list("LIBRARY_CORS_ORIGINS", &cfg.CORSOrigins)
	str("DATABASE_DRIVER", &cfg.DatabaseDriver)
	str("DATABASE_URL", &cfg.DatabaseURL)
	flag("LIBRARY_AUTO_MIGRATE", &cfg.AutoMigrate)
	str("JWT_SECRET", &cfg.JWTSecret)
	str("JWT_PRIVATE_KEY_PATH", &cfg.JWTPrivateKeyPath)
	str("JWT_PUBLIC_KEY_PATH", &cfg.JWTPublicKeyPath)
	str("JWT_KEY_ID", &cfg.JWTKeyID)
	str("JWT_ISSUER", &cfg.JWTIssuer)
	str("JWT_AUDIENCE", &cfg.JWTAudience)
	str("JWT_LEEWAY", &cfg.JWTLeeway)
	str("ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL)
	str("REFRESH_TOKEN_TTL", &cfg.RefreshTokenTTL)
	num("BCRYPT_COST", &cfg.BcryptCost)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	list("LIBRARY_TRUSTED_PROXY_CIDRS", &cfg.TrustedProxyCIDRs)
	num("LIBRARY_REGISTER_RATE_LIMIT_PER_MINUTE", &cfg.RegisterRateLimitPerMinute)
	num("LIBRARY_LOGIN_RATE_LIMIT_PER_MINUTE", &cfg.LoginRateLimitPerMinute)
	num("LIBRARY_GOOGLE_RATE_LIMIT_PER_MINUTE", &cfg.GoogleRateLimitPerMinute)
	num("LIBRARY_REFRESH_RATE_LIMIT_PER_MINUTE", &cfg.RefreshRateLimitPerMinute)
	str("MINIO_ENDPOINT", &cfg.MinioEndpoint)
	str("MINIO_ACCESS_KEY", &cfg.MinioAccessKey)
	str("MINIO_SECRET_KEY", &cfg.MinioSecretKey)
	str("MINIO_BUCKET", &cfg.MinioBucket)
	flag("MINIO_USE_SSL", &cfg.MinioUseSSL)
	str("MINIO_REGION", &cfg.MinioRegion)
	return errors.Join(errs...)
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required")
	}
	switch cfg.DatabaseDriver {
	case DriverPostgres, DriverMySQL:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unsupported databaseDriver %q", cfg.DatabaseDriver)
	}
	if cfg.JWTPrivateKeyPath == "" && len(cfg.JWTSecret) < minJWTSecret {
		return fmt.Errorf("config: jwtSecret must be at least %d bytes, or set jwtPrivateKeyPath", minJWTSecret)
	}
	if cfg.JWTPrivateKeyPath != "" && (cfg.JWTPublicKeyPath == "" || cfg.JWTKeyID == "") {
		return errors.New("config: jwtPublicKeyPath and jwtKeyId are required with jwtPrivateKeyPath")
	}
	if cfg.BcryptCost < minBcryptCost || cfg.BcryptCost > maxBcryptCost {
		return fmt.Errorf("config: bcryptCost must be between %d and %d", minBcryptCost, maxBcryptCost)
	}
	durations := map[string]string{
		"shutdownTimeout":   cfg.ShutdownTimeout,
		"dbConnMaxLifetime": cfg.DBConnMaxLifetime,
		"dbSlowThreshold":   cfg.DBSlowThreshold,
		"jwtLeeway":         cfg.JWTLeeway,
		"accessTokenTTL":    cfg.AccessTokenTTL,
		"refreshTokenTTL":   cfg.RefreshTokenTTL,
		"downloadURLTTL":    cfg.DownloadURLTTL,
	}
	for name, raw := range durations {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("config: invalid %s duration: %w", name, err)
		}
		if d < 0 || (d == 0 && (name == "accessTokenTTL" || name == "refreshTokenTTL")) {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	if cfg.RegisterRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 || cfg.GoogleRateLimitPerMinute < 0 || cfg.RefreshRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "") {
		return errors.New("config: minioAccessKey, minioSecretKey and minioBucket are required with minioEndpoint")
	}
	if cfg.TextPageSize < 0 || cfg.ListPageSize < 0 || cfg.MaxBodyBytes < 0 {
		return errors.New("config: sizes must be >= 0")
	}
	return nil
}

// Duration returns a validated duration field. Callers pass fields that
// Load has already parsed successfully.
func Duration(raw string) time.Duration {
	d, _ := time.ParseDuration(raw)
	return d
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
