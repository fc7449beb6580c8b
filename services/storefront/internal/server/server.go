package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"storefront/internal/ratelimit"
	"storefront/internal/restclient"
	"storefront/internal/util"
	"storefront/pkg/session"
	"storefront/services/storefront/internal/app"
	"storefront/services/storefront/internal/shopclient"
)

const maxJSONBody = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	AllowedOrigin  string
	MaxUploadBytes int64

	// LoginLimiter throttles register and login attempts per client IP.
	// Nil disables throttling.
	LoginLimiter      ratelimit.Limiter
	LoginRetryAfter   time.Duration
	TrustForwardedFor bool
}

// Server exposes the storefront over HTTP.
type Server struct {
	app            *app.App
	router         chi.Router
	allowedOrigin  string
	maxUploadBytes int64

	loginLimiter   ratelimit.Limiter
	retryAfter     string
	trustForwarded bool
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 5 << 20
	}
	retryAfter := cfg.LoginRetryAfter
	if retryAfter <= 0 {
		retryAfter = time.Minute
	}
	s := &Server{
		app:            cfg.App,
		router:         chi.NewRouter(),
		allowedOrigin:  cfg.AllowedOrigin,
		maxUploadBytes: maxUpload,
		loginLimiter:   cfg.LoginLimiter,
		retryAfter:     strconv.Itoa(int(retryAfter.Seconds())),
		trustForwarded: cfg.TrustForwardedFor,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return otelhttp.NewHandler(s.router, "storefront")
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(util.WithRequestID)
	r.Use(util.RequestLog("storefront"))
	r.Use(util.SecurityHeaders(s.trustForwarded))
	r.Use(util.CORS(s.allowedOrigin))

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/route", s.handleRoute)
	r.Get("/api/session", s.handleSession)

	r.Route("/api/auth", func(r chi.Router) {
		r.With(s.throttled).Post("/register", s.handleRegister)
		r.With(s.throttled).Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.ready)
		r.Get("/api/products", s.handleProducts)
		r.Get("/api/products/{id}/image", s.handleCatalogImage)
		r.Get("/api/cart", s.handleCart)
		r.Post("/api/cart/{id}", s.handleAddToCart)
		r.Delete("/api/cart/{id}", s.handleRemoveFromCart)
		r.Post("/api/cart/{id}/reduce", s.handleReduceCartItem)
		r.Get("/api/wishlist", s.handleWishlist)
		r.Post("/api/wishlist/{id}", s.handleAddToWishlist)
		r.Delete("/api/wishlist/{id}", s.handleRemoveFromWishlist)
		r.Get("/api/orders", s.handleOrders)
		r.Post("/api/orders", s.handlePlaceOrder)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.With(s.throttled).Post("/login", s.handleAdminLogin)
		r.Post("/logout", s.handleAdminLogout)
		r.Group(func(r chi.Router) {
			r.Use(s.ready)
			r.Get("/profile", s.handleAdminProfile)
			r.Get("/products", s.handleAdminProducts)
			r.Post("/products", s.handleUploadProduct)
			r.Delete("/products/{id}", s.handleDeleteProduct)
			r.Get("/products/{id}/image", s.handleProductImage)
			r.Get("/orders", s.handleAllOrders)
			r.Get("/users", s.handleUsers)
		})
	})
}

// ready answers 503 until both start-up checks finished.
func (s *Server) ready(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.app.Ready() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "session check in progress")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// throttled answers 429 once a client exceeds the login attempt quota.
func (s *Server) throttled(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.loginLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		ip := util.ClientIP(r, s.trustForwarded)
		if !s.loginLimiter.Allow(r.Context(), r.URL.Path+"|"+ip) {
			util.LoggerFromContext(r.Context()).Warn("security_event",
				"event", "login_rate_limited",
				"path", r.URL.Path,
				"client_ip", ip,
			)
			w.Header().Set("Retry-After", s.retryAfter)
			writeError(w, http.StatusTooManyRequests, "too many attempts, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Route(r.URL.Query().Get("path")))
}

type sessionResponse struct {
	Ready bool             `json:"ready"`
	User  session.Snapshot `json:"user"`
	Admin session.Snapshot `json:"admin"`
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	user, admin := s.app.Sessions()
	writeJSON(w, http.StatusOK, sessionResponse{Ready: user.Checked && admin.Checked, User: user, Admin: admin})
}

type authRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := s.app.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.audit(r, session.DomainUser, "register", "fail", "kind", restclient.ClassifyString(err))
		writeAppError(w, err)
		return
	}
	s.audit(r, session.DomainUser, "register", "success", "identity_id", id.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"user": id})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, session.DomainUser, "login", "fail", "kind", restclient.ClassifyString(err))
		writeAppError(w, err)
		return
	}
	s.audit(r, session.DomainUser, "login", "success", "identity_id", id.ID)
	writeJSON(w, http.StatusOK, map[string]any{"user": id})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Logout(r.Context()); err != nil {
		// The in-memory session is already cleared.
		util.LoggerFromContext(r.Context()).Warn("logout storage clear failed", "err", err)
	}
	s.audit(r, session.DomainUser, "logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	section, err := shopclient.ParseSection(r.URL.Query().Get("section"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	products, err := s.app.Products(r.Context(), section)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	view, err := s.app.Cart(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	s.itemAction(w, r, s.app.AddToCart)
}

func (s *Server) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	s.itemAction(w, r, s.app.RemoveFromCart)
}

func (s *Server) handleReduceCartItem(w http.ResponseWriter, r *http.Request) {
	s.itemAction(w, r, s.app.ReduceCartItem)
}

func (s *Server) handleWishlist(w http.ResponseWriter, r *http.Request) {
	products, err := s.app.Wishlist(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wishlist": products})
}

func (s *Server) handleAddToWishlist(w http.ResponseWriter, r *http.Request) {
	s.itemAction(w, r, s.app.AddToWishlist)
}

func (s *Server) handleRemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	s.itemAction(w, r, s.app.RemoveFromWishlist)
}

func (s *Server) itemAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) error) {
	if err := fn(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.app.Orders(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var payment app.Payment
	if !decodeJSON(w, r, &payment) {
		return
	}
	if err := s.app.PlaceOrder(r.Context(), payment); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ordered"})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := s.app.AdminLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, session.DomainAdmin, "login", "fail", "kind", restclient.ClassifyString(err))
		writeAppError(w, err)
		return
	}
	s.audit(r, session.DomainAdmin, "login", "success", "identity_id", id.ID)
	writeJSON(w, http.StatusOK, map[string]any{"admin": id})
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.app.AdminLogout(r.Context()); err != nil {
		util.LoggerFromContext(r.Context()).Warn("admin logout storage clear failed", "err", err)
	}
	s.audit(r, session.DomainAdmin, "logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.app.AdminProfile(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"admin": profile})
}

func (s *Server) handleAdminProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.app.AdminProducts(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *Server) handleUploadProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+maxJSONBody)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	upload := app.ProductUpload{
		Name:         r.FormValue("name"),
		Price:        r.FormValue("price"),
		Discount:     r.FormValue("discount"),
		BgColor:      r.FormValue("bgColor"),
		PanelColor:   r.FormValue("panelColor"),
		TextColor:    r.FormValue("textColor"),
		IsNew:        formFlag(r.FormValue("isNew")),
		IsSale:       formFlag(r.FormValue("isSale")),
		IsCollection: formFlag(r.FormValue("isCollection")),
	}
	if file, header, err := r.FormFile("image"); err == nil {
		data, readErr := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
		file.Close()
		if readErr != nil {
			writeError(w, http.StatusBadRequest, "failed to read image")
			return
		}
		upload.ImageName = header.Filename
		upload.ImageContentType = header.Header.Get("Content-Type")
		upload.Image = data
	}
	created, err := s.app.UploadProduct(r.Context(), upload)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": created})
}

func formFlag(v string) bool {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "on") {
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProductImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.app.ProductImage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeImage(w, img)
}

func (s *Server) handleCatalogImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.app.CatalogImage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeImage(w, img)
}

func (s *Server) handleAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.app.AllOrders(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.app.Users(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) audit(r *http.Request, d session.Domain, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"domain", d,
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("session_event", logAttrs...)
		return
	}
	logger.Warn("session_event", logAttrs...)
}
