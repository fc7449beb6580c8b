package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
port: "8090"
apiBaseURL: "http://localhost:5000/api"
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.UserCheckPath != "/auth/check" || cfg.AdminCheckPath != "/admin/check" {
		t.Fatalf("check paths = %q %q", cfg.UserCheckPath, cfg.AdminCheckPath)
	}
	if cfg.SessionStorage != "file" || cfg.SessionPath != "data/session.json" {
		t.Fatalf("session storage = %q %q", cfg.SessionStorage, cfg.SessionPath)
	}
	if cfg.ImageCache != "memory" {
		t.Fatalf("imageCache = %q", cfg.ImageCache)
	}
	if cfg.RateLimitStorage != "memory" || cfg.LoginRateLimitPerMinute != 10 {
		t.Fatalf("rate limit = %q %d", cfg.RateLimitStorage, cfg.LoginRateLimitPerMinute)
	}
	if got := strings.Join(cfg.AllowedImageExtensions, ","); got != ".jpg,.jpeg,.png,.webp" {
		t.Fatalf("allowed extensions = %q", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STOREFRONT_API_BASE_URL", "https://shop.example.com/api")
	t.Setenv("STOREFRONT_REQUEST_TIMEOUT", "3s")
	t.Setenv("STOREFRONT_SESSION_STORAGE", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("STOREFRONT_RECONCILE_TOLERANCE_CENTS", "2")
	t.Setenv("STOREFRONT_ALLOWED_IMAGE_EXTENSIONS", ".png, .gif")

	cfg, err := Load(writeConfig(t, `
port: "8090"
apiBaseURL: "http://localhost:5000/api"
requestTimeout: "20s"
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.APIBaseURL != "https://shop.example.com/api" {
		t.Fatalf("apiBaseURL = %q", cfg.APIBaseURL)
	}
	timeout, err := ParseDuration("requestTimeout", cfg.RequestTimeout)
	if err != nil || timeout != 3*time.Second {
		t.Fatalf("requestTimeout = %v err=%v", timeout, err)
	}
	if cfg.SessionStorage != "redis" || cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("redis settings = %q %q", cfg.SessionStorage, cfg.RedisAddr)
	}
	if cfg.RateLimitStorage != "redis" {
		t.Fatalf("rate limit storage should follow redis sessions, got %q", cfg.RateLimitStorage)
	}
	if cfg.ReconcileToleranceCents != 2 {
		t.Fatalf("tolerance = %d", cfg.ReconcileToleranceCents)
	}
	if got := strings.Join(cfg.AllowedImageExtensions, ","); got != ".png,.gif" {
		t.Fatalf("allowed extensions = %q", got)
	}
}

func TestZeroLoginLimitUsesDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
port: "8090"
apiBaseURL: "http://localhost:5000/api"
loginRateLimitPerMinute: 0
rateLimitStorage: "off"
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.LoginRateLimitPerMinute != 10 || cfg.RateLimitStorage != "off" {
		t.Fatalf("rate limit = %q %d", cfg.RateLimitStorage, cfg.LoginRateLimitPerMinute)
	}
}

func TestPathHonoursEnv(t *testing.T) {
	t.Setenv("STOREFRONT_CONFIG", "/etc/storefront/config.yaml")
	if got := Path(); got != "/etc/storefront/config.yaml" {
		t.Fatalf("path = %q", got)
	}
	t.Setenv("STOREFRONT_CONFIG", "")
	if got := Path(); got != ConfigPath {
		t.Fatalf("path = %q", got)
	}
}

func TestValidateConfigRejectsInvalidSettings(t *testing.T) {
	base := FileConfig{
		Port:             "8090",
		APIBaseURL:       "http://localhost:5000",
		SessionStorage:   "memory",
		ImageCache:       "none",
		UserCheckPath:    "/auth/check",
		AdminCheckPath:   "/admin/check",
		RateLimitStorage: "memory",
	}
	if err := validateConfig(base); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}
	cases := map[string]func(*FileConfig){
		"missing port":         func(c *FileConfig) { c.Port = "" },
		"relative base url":    func(c *FileConfig) { c.APIBaseURL = "localhost:5000" },
		"redis without addr":   func(c *FileConfig) { c.SessionStorage = "redis" },
		"unknown storage":      func(c *FileConfig) { c.SessionStorage = "cookie" },
		"minio without bucket": func(c *FileConfig) { c.ImageCache = "minio" },
		"negative tolerance":   func(c *FileConfig) { c.ReconcileToleranceCents = -1 },
		"bad timeout":          func(c *FileConfig) { c.RequestTimeout = "soon" },
		"relative check path":  func(c *FileConfig) { c.UserCheckPath = "auth/check" },
		"unknown rate limiter": func(c *FileConfig) { c.RateLimitStorage = "disk" },
		"limiter without addr": func(c *FileConfig) { c.RateLimitStorage = "redis" },
		"negative login limit": func(c *FileConfig) { c.LoginRateLimitPerMinute = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			if err := validateConfig(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}
