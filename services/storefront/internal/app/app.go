package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"storefront/internal/restclient"
	"storefront/internal/tokeninfo"
	"storefront/pkg/bootstrap"
	"storefront/pkg/domain"
	"storefront/pkg/guard"
	"storefront/pkg/session"
	"storefront/pkg/storage"
	"storefront/services/storefront/internal/adminclient"
	"storefront/services/storefront/internal/shopclient"
)

// ShopBackend is the user-domain backend.
type ShopBackend interface {
	Register(ctx context.Context, name, email, password string) (shopclient.AuthResult, error)
	Login(ctx context.Context, email, password string) (shopclient.AuthResult, error)
	Verify(ctx context.Context, token string) (domain.Identity, error)
	Products(ctx context.Context, section shopclient.Section) ([]domain.Product, error)
	Cart(ctx context.Context) (shopclient.Cart, error)
	AddToCart(ctx context.Context, productID string) error
	ReduceCartItem(ctx context.Context, productID string) error
	RemoveFromCart(ctx context.Context, productID string) error
	Wishlist(ctx context.Context) ([]domain.Product, error)
	AddToWishlist(ctx context.Context, productID string) error
	RemoveFromWishlist(ctx context.Context, productID string) error
	PlaceOrder(ctx context.Context) error
	Orders(ctx context.Context) ([]domain.OrderLine, error)
	Image(ctx context.Context, productID string) (restclient.Blob, error)
}

// AdminBackend is the admin-domain backend.
type AdminBackend interface {
	Login(ctx context.Context, email, password string) (adminclient.LoginResult, error)
	Verify(ctx context.Context, token string) (domain.Identity, error)
	Profile(ctx context.Context, id string) (domain.Identity, error)
	Users(ctx context.Context) ([]domain.Customer, error)
	CreateProduct(ctx context.Context, p adminclient.NewProduct) (domain.Product, error)
	Products(ctx context.Context) ([]domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	Image(ctx context.Context, id string) (restclient.Blob, error)
	AllOrders(ctx context.Context) ([]domain.Customer, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	UserSession  *session.Store
	AdminSession *session.Store
	Shop         ShopBackend
	Admin        AdminBackend
	// Images caches product images; nil disables caching.
	Images storage.ImageCache

	TokenExpiryLeeway      time.Duration
	ReconcileTolerance     domain.Money
	MaxUploadBytes         int64
	AllowedImageExtensions []string
	Logger                 *slog.Logger
}

// App is the storefront core: both session domains, their backends and the
// route guard over them.
type App struct {
	user    *session.Store
	admin   *session.Store
	shop    ShopBackend
	backend AdminBackend
	images  storage.ImageCache
	guard   *guard.Guard
	log     *slog.Logger

	checkers  []*bootstrap.Checker
	tolerance domain.Money
	maxUpload int64
	allowExt  map[string]bool

	profileMu sync.Mutex
	profile   *domain.Identity
}

const defaultMaxUpload = 5 << 20

// New wires the application. Both session stores and both backends are required.
func New(cfg Config) (*App, error) {
	if cfg.UserSession == nil || cfg.AdminSession == nil {
		return nil, fmt.Errorf("user and admin session stores required")
	}
	if cfg.UserSession == cfg.AdminSession {
		return nil, fmt.Errorf("user and admin domains need separate session stores")
	}
	if cfg.Shop == nil || cfg.Admin == nil {
		return nil, fmt.Errorf("shop and admin backends required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	exts := cfg.AllowedImageExtensions
	if len(exts) == 0 {
		exts = []string{".jpg", ".jpeg", ".png", ".webp"}
	}
	allow := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allow[ext] = true
	}

	a := &App{
		user:      cfg.UserSession,
		admin:     cfg.AdminSession,
		shop:      cfg.Shop,
		backend:   cfg.Admin,
		images:    cfg.Images,
		guard:     guard.New(cfg.UserSession, cfg.AdminSession),
		log:       logger,
		tolerance: cfg.ReconcileTolerance,
		maxUpload: maxUpload,
		allowExt:  allow,
	}

	expiry := tokeninfo.NewInspector(cfg.TokenExpiryLeeway)
	userChecker, err := bootstrap.NewChecker(a.user, cfg.Shop,
		bootstrap.WithExpiryCheck(expiry.Expired),
		bootstrap.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("user checker: %w", err)
	}
	adminChecker, err := bootstrap.NewChecker(a.admin, cfg.Admin,
		bootstrap.WithExpiryCheck(expiry.Expired),
		bootstrap.WithAfterResolve(a.loadProfile),
		bootstrap.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("admin checker: %w", err)
	}
	a.checkers = []*bootstrap.Checker{userChecker, adminChecker}
	return a, nil
}

// ClassifyCheckError labels a failed auth check for session.ErrorInfo.
func ClassifyCheckError(err error) string {
	if errors.Is(err, bootstrap.ErrTokenExpired) {
		return string(restclient.KindAuthRejected)
	}
	return restclient.ClassifyString(err)
}

// Bootstrap runs the start-up check of both domains concurrently. It returns
// once both stores are checked; failures are already recorded in the stores.
func (a *App) Bootstrap(ctx context.Context) error {
	return bootstrap.RunAll(ctx, a.checkers...)
}

// Ready reports whether both domains finished their start-up check.
func (a *App) Ready() bool {
	return a.guard.Ready()
}

// Route decides what to show for path p.
func (a *App) Route(p string) guard.Decision {
	return a.guard.Resolve(p)
}

// Sessions returns snapshots of the user and admin domains.
func (a *App) Sessions() (user, admin session.Snapshot) {
	return a.user.Snapshot(), a.admin.Snapshot()
}

// requireIdentity gates an action on the domain holding a checked identity.
// An identity loaded from storage is not trusted until the start-up check
// finished. It never touches the network.
func requireIdentity(s *session.Store) (domain.Identity, error) {
	snap := s.Snapshot()
	if !snap.Checked {
		return domain.Identity{}, ErrSessionPending
	}
	if snap.Identity == nil {
		return domain.Identity{}, ErrNotAuthenticated
	}
	return *snap.Identity, nil
}
