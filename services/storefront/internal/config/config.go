package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location, overridable with STOREFRONT_CONFIG.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                    string   `yaml:"port"`
	LogLevel                string   `yaml:"logLevel"`
	APIBaseURL              string   `yaml:"apiBaseURL"`
	RequestTimeout          string   `yaml:"requestTimeout"`
	UserCheckPath           string   `yaml:"userCheckPath"`
	AdminCheckPath          string   `yaml:"adminCheckPath"`
	TokenExpiryLeeway       string   `yaml:"tokenExpiryLeeway"`
	ReconcileToleranceCents int64    `yaml:"reconcileToleranceCents"`
	AllowedOrigin           string   `yaml:"allowedOrigin"`
	SessionStorage          string   `yaml:"sessionStorage"`
	SessionPath             string   `yaml:"sessionPath"`
	SessionTTL              string   `yaml:"sessionTTL"`
	RedisAddr               string   `yaml:"redisAddr"`
	RedisPassword           string   `yaml:"redisPassword"`
	RedisPrefix             string   `yaml:"redisPrefix"`
	ImageCache              string   `yaml:"imageCache"`
	ImageCacheDir           string   `yaml:"imageCacheDir"`
	MinioEndpoint           string   `yaml:"minioEndpoint"`
	MinioAccessKey          string   `yaml:"minioAccessKey"`
	MinioSecretKey          string   `yaml:"minioSecretKey"`
	MinioBucket             string   `yaml:"minioBucket"`
	MinioUseSSL             bool     `yaml:"minioUseSSL"`
	MaxUploadBytes          int64    `yaml:"maxUploadBytes"`
	AllowedImageExtensions  []string `yaml:"allowedImageExtensions"`
	// LoginRateLimitPerMinute of zero uses 10; rateLimitStorage "off" disables throttling.
	LoginRateLimitPerMinute int      `yaml:"loginRateLimitPerMinute"`
	RateLimitStorage        string   `yaml:"rateLimitStorage"`
	TrustForwardedFor       bool     `yaml:"trustForwardedFor"`
}

// Path returns STOREFRONT_CONFIG when set, otherwise ConfigPath.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("STOREFRONT_CONFIG")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path (defaults to config.yaml), applies env
// overrides and defaults, then validates.
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

func applyEnv(cfg *FileConfig) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	str("STOREFRONT_PORT", &cfg.Port)
	str("STOREFRONT_LOG_LEVEL", &cfg.LogLevel)
	str("STOREFRONT_API_BASE_URL", &cfg.APIBaseURL)
	str("STOREFRONT_REQUEST_TIMEOUT", &cfg.RequestTimeout)
	str("STOREFRONT_TOKEN_EXPIRY_LEEWAY", &cfg.TokenExpiryLeeway)
	str("STOREFRONT_ALLOWED_ORIGIN", &cfg.AllowedOrigin)
	str("STOREFRONT_SESSION_STORAGE", &cfg.SessionStorage)
	str("STOREFRONT_SESSION_PATH", &cfg.SessionPath)
	str("STOREFRONT_SESSION_TTL", &cfg.SessionTTL)
	str("STOREFRONT_IMAGE_CACHE", &cfg.ImageCache)
	str("STOREFRONT_IMAGE_CACHE_DIR", &cfg.ImageCacheDir)
	str("STOREFRONT_RATE_LIMIT_STORAGE", &cfg.RateLimitStorage)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	str("MINIO_ENDPOINT", &cfg.MinioEndpoint)
	str("MINIO_ACCESS_KEY", &cfg.MinioAccessKey)
	str("MINIO_SECRET_KEY", &cfg.MinioSecretKey)
	str("MINIO_BUCKET", &cfg.MinioBucket)
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("STOREFRONT_RECONCILE_TOLERANCE_CENTS"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.ReconcileToleranceCents = n
		}
	}
	if v := os.Getenv("STOREFRONT_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("STOREFRONT_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("STOREFRONT_TRUST_FORWARDED_FOR"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.TrustForwardedFor = b
		}
	}
	if v := os.Getenv("STOREFRONT_ALLOWED_IMAGE_EXTENSIONS"); v != "" {
		cfg.AllowedImageExtensions = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.UserCheckPath == "" {
		cfg.UserCheckPath = "/auth/check"
	}
	if cfg.AdminCheckPath == "" {
		cfg.AdminCheckPath = "/admin/check"
	}
	if cfg.SessionStorage == "" {
		cfg.SessionStorage = "file"
	}
	if cfg.SessionStorage == "file" && cfg.SessionPath == "" {
		cfg.SessionPath = "data/session.json"
	}
	if cfg.ImageCache == "" {
		cfg.ImageCache = "memory"
	}
	if cfg.ImageCache == "file" && cfg.ImageCacheDir == "" {
		cfg.ImageCacheDir = "data/images"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 << 20
	}
	if cfg.LoginRateLimitPerMinute == 0 {
		cfg.LoginRateLimitPerMinute = 10
	}
	if cfg.RateLimitStorage == "" {
		cfg.RateLimitStorage = "memory"
		if cfg.SessionStorage == "redis" {
			cfg.RateLimitStorage = "redis"
		}
	}
	if len(cfg.AllowedImageExtensions) == 0 {
		cfg.AllowedImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return errors.New("config: apiBaseURL is required (set in config.yaml or STOREFRONT_API_BASE_URL)")
	}
	if u, err := url.Parse(cfg.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: apiBaseURL %q is not an absolute URL", cfg.APIBaseURL)
	}
	switch cfg.SessionStorage {
	case "memory", "file":
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required when sessionStorage is redis")
		}
	default:
		return fmt.Errorf("config: unknown sessionStorage %q (memory, file, redis)", cfg.SessionStorage)
	}
	switch cfg.ImageCache {
	case "none", "memory", "file":
	case "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint and minioBucket are required when imageCache is minio")
		}
	default:
		return fmt.Errorf("config: unknown imageCache %q (none, memory, file, minio)", cfg.ImageCache)
	}
	switch cfg.RateLimitStorage {
	case "off", "memory":
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required when rateLimitStorage is redis")
		}
	default:
		return fmt.Errorf("config: unknown rateLimitStorage %q (off, memory, redis)", cfg.RateLimitStorage)
	}
	if cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: loginRateLimitPerMinute must be >= 0")
	}
	if cfg.ReconcileToleranceCents < 0 {
		return errors.New("config: reconcileToleranceCents must be >= 0")
	}
	for name, value := range map[string]string{
		"requestTimeout":    cfg.RequestTimeout,
		"tokenExpiryLeeway": cfg.TokenExpiryLeeway,
		"sessionTTL":        cfg.SessionTTL,
	} {
		if _, err := ParseDuration(name, value); err != nil {
			return err
		}
	}
	if !strings.HasPrefix(cfg.UserCheckPath, "/") || !strings.HasPrefix(cfg.AdminCheckPath, "/") {
		return errors.New("config: check paths must start with /")
	}
	return nil
}

// ParseDuration parses an optional duration setting; empty means zero.
func ParseDuration(name, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must be >= 0", name)
	}
	return dur, nil
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
