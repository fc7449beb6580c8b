package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/ratelimit"
	"storefront/internal/restclient"
	"storefront/internal/util"
	"storefront/pkg/domain"
	"storefront/pkg/session"
	"storefront/pkg/storage"
	"storefront/services/storefront/internal/adminclient"
	"storefront/services/storefront/internal/app"
	"storefront/services/storefront/internal/config"
	"storefront/services/storefront/internal/server"
	"storefront/services/storefront/internal/shopclient"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	requestTimeout, err := config.ParseDuration("requestTimeout", cfg.RequestTimeout)
	if err != nil {
		log.Fatalf("failed to parse request timeout: %v", err)
	}
	leeway, err := config.ParseDuration("tokenExpiryLeeway", cfg.TokenExpiryLeeway)
	if err != nil {
		log.Fatalf("failed to parse token expiry leeway: %v", err)
	}
	sessionTTL, err := config.ParseDuration("sessionTTL", cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.CheckDisjoint(session.UserKeys, session.AdminKeys); err != nil {
		log.Fatalf("invalid session keys: %v", err)
	}
	sessionStorage, closeStorage, err := openSessionStorage(cfg, sessionTTL)
	if err != nil {
		log.Fatalf("failed to open session storage: %v", err)
	}
	defer closeStorage()

	storeOpts := []session.Option{session.WithClassifier(app.ClassifyCheckError), session.WithLogger(logger)}
	userSession, err := session.New(ctx, session.DomainUser, session.UserKeys, sessionStorage, storeOpts...)
	if err != nil {
		log.Fatalf("failed to init user session: %v", err)
	}
	adminSession, err := session.New(ctx, session.DomainAdmin, session.AdminKeys, sessionStorage, storeOpts...)
	if err != nil {
		log.Fatalf("failed to init admin session: %v", err)
	}

	userREST := restclient.New(restclient.Config{BaseURL: cfg.APIBaseURL, Timeout: requestTimeout, Tokens: userSession, Name: "shop"})
	userREST.OnResponse(restclient.LogAuthRejections(logger, string(session.DomainUser)))
	adminREST := restclient.New(restclient.Config{BaseURL: cfg.APIBaseURL, Timeout: requestTimeout, Tokens: adminSession, Name: "admin"})
	adminREST.OnResponse(restclient.LogAuthRejections(logger, string(session.DomainAdmin)))

	images, err := openImageCache(cfg)
	if err != nil {
		log.Fatalf("failed to init image cache: %v", err)
	}

	appCore, err := app.New(app.Config{
		UserSession:            userSession,
		AdminSession:           adminSession,
		Shop:                   shopclient.New(userREST, cfg.UserCheckPath),
		Admin:                  adminclient.New(adminREST, cfg.AdminCheckPath),
		Images:                 images,
		TokenExpiryLeeway:      leeway,
		ReconcileTolerance:     domain.Money(cfg.ReconcileToleranceCents),
		MaxUploadBytes:         cfg.MaxUploadBytes,
		AllowedImageExtensions: cfg.AllowedImageExtensions,
		Logger:                 logger,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	fixedWindow, err := openLoginLimiter(cfg)
	if err != nil {
		log.Fatalf("failed to init login limiter: %v", err)
	}
	var loginLimiter ratelimit.Limiter
	var loginRetryAfter time.Duration
	if fixedWindow != nil {
		loginLimiter = fixedWindow
		loginRetryAfter = fixedWindow.Window()
	}

	httpServer, err := server.New(server.Config{
		App:               appCore,
		AllowedOrigin:     cfg.AllowedOrigin,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		LoginLimiter:      loginLimiter,
		LoginRetryAfter:   loginRetryAfter,
		TrustForwardedFor: cfg.TrustForwardedFor,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	// Protected endpoints answer 503 until both checks finish.
	go func() {
		if err := appCore.Bootstrap(ctx); err != nil {
			logger.Warn("startup auth check failed", "err", err)
			return
		}
		logger.Info("startup auth check complete")
	}()

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	}()

	slog.Info("server listening", "addr", addr, "backend", cfg.APIBaseURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}

func openSessionStorage(cfg config.FileConfig, ttl time.Duration) (session.Storage, func(), error) {
	switch cfg.SessionStorage {
	case "redis":
		rs := session.NewRedisStorage(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisPrefix, ttl)
		return rs, func() { _ = rs.Close() }, nil
	case "memory":
		return session.NewMemoryStorage(), func() {}, nil
	default:
		fs, err := session.NewFileStorage(cfg.SessionPath)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}
}

func openImageCache(cfg config.FileConfig) (storage.ImageCache, error) {
	switch cfg.ImageCache {
	case "none":
		return nil, nil
	case "file":
		return storage.NewFileStore(cfg.ImageCacheDir)
	case "minio":
		return storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	default:
		return storage.NewMemoryStore(), nil
	}
}

// openLoginLimiter returns nil when rateLimitStorage is off.
func openLoginLimiter(cfg config.FileConfig) (*ratelimit.FixedWindowLimiter, error) {
	switch cfg.RateLimitStorage {
	case "off":
		return nil, nil
	case "redis":
		return ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "storefront:ratelimit:login", cfg.LoginRateLimitPerMinute, time.Minute)
	default:
		return ratelimit.NewMemoryFixedWindowLimiter(cfg.LoginRateLimitPerMinute, time.Minute)
	}
}
