package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"neokudilonga/internal/admintoken"
	"neokudilonga/internal/ratelimit"
	"neokudilonga/internal/util"
	"neokudilonga/services/shop/internal/app"
)

const maxJSONBody = 1 << 20

// WhatsApp sends replies through the Cloud API.
type WhatsApp interface {
	SendText(ctx context.Context, to, body string) error
	MarkRead(ctx context.Context, messageID string) error
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App    *app.App
	Tokens *admintoken.Manager
	// Redis backs the rate limiters. Nil disables rate limiting.
	Redis                      redis.UniversalClient
	TrustedProxies             *util.TrustedProxies
	AllowedOrigins             []string
	MaxUploadBytes             int64
	CheckoutRateLimitPerMinute int
	LoginRateLimitPerMinute    int
	ChatRateLimitPerMinute     int
	WhatsApp                   WhatsApp
	WhatsAppVerifyToken        string
	WhatsAppAppSecret          string
}

// Server exposes the shop HTTP API.
type Server struct {
	app             *app.App
	tokens          *admintoken.Manager
	mux             *http.ServeMux
	trusted         *util.TrustedProxies
	allowedOrigins  []string
	maxUploadBytes  int64
	checkoutLimiter *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
	chatLimiter     *ratelimit.FixedWindowLimiter
	whatsapp        WhatsApp
	verifyToken     string
	appSecret       string
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil || cfg.Tokens == nil {
		return nil, errors.New("server requires app and token manager")
	}
	s := &Server{
		app:            cfg.App,
		tokens:         cfg.Tokens,
		mux:            http.NewServeMux(),
		trusted:        cfg.TrustedProxies,
		allowedOrigins: cfg.AllowedOrigins,
		maxUploadBytes: cfg.MaxUploadBytes,
		whatsapp:       cfg.WhatsApp,
		verifyToken:    cfg.WhatsAppVerifyToken,
		appSecret:      cfg.WhatsAppAppSecret,
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = 5 << 20
	}
	if cfg.Redis != nil {
		newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
			if limit <= 0 {
				limit = 10
			}
			return ratelimit.New(cfg.Redis, "neokudilonga:shop:ratelimit:"+name, limit, time.Minute)
		}
		var err error
		if s.checkoutLimiter, err = newLimiter("checkout", cfg.CheckoutRateLimitPerMinute); err != nil {
			return nil, err
		}
		if s.loginLimiter, err = newLimiter("login", cfg.LoginRateLimitPerMinute); err != nil {
			return nil, err
		}
		if s.chatLimiter, err = newLimiter("chat", cfg.ChatRateLimitPerMinute); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithCORS(s.allowedOrigins, h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog("shop", s.trusted, h)
	h = util.WithRequestID(h)
	return util.WithRecover(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// storefront
	s.mux.HandleFunc("GET /api/shop/schools", s.handleSchools)
	s.mux.HandleFunc("GET /api/shop/schools/{id}/plan", s.handleSchoolPlan)
	s.mux.HandleFunc("GET /api/shop/categories", s.handleCategories)
	s.mux.HandleFunc("GET /api/shop/publishers", s.handlePublishers)
	s.mux.HandleFunc("GET /api/shop/products", s.handleShopProducts)
	s.mux.HandleFunc("GET /api/shop/products/{id}", s.handleShopProduct)
	s.mux.HandleFunc("POST /api/orders", s.handleCheckout)
	s.mux.HandleFunc("GET /api/orders/{reference}", s.handleOrder)

	// whatsapp
	s.mux.HandleFunc("GET /api/whatsapp/webhook", s.handleWebhookVerify)
	s.mux.HandleFunc("POST /api/whatsapp/webhook", s.handleWebhook)

	// admin
	s.mux.HandleFunc("POST /api/admin/login", s.handleAdminLogin)
	s.mux.Handle("GET /api/admin/products", s.adminOnly(s.handleAdminProducts))
	s.mux.Handle("POST /api/admin/products", s.adminOnly(s.handleCreateProduct))
	s.mux.Handle("GET /api/admin/products/export", s.adminOnly(s.handleExportProducts))
	s.mux.Handle("POST /api/admin/products/import", s.adminOnly(s.handleImportProducts))
	s.mux.Handle("GET /api/admin/products/{id}", s.adminOnly(s.handleAdminProduct))
	s.mux.Handle("PUT /api/admin/products/{id}", s.adminOnly(s.handleUpdateProduct))
	s.mux.Handle("DELETE /api/admin/products/{id}", s.adminOnly(s.handleDeleteProduct))
	s.mux.Handle("POST /api/admin/products/{id}/images", s.adminOnly(s.handleUploadImage))
	s.mux.Handle("GET /api/admin/reading-plan", s.adminOnly(s.handleReadingPlan))
	s.mux.Handle("GET /api/admin/schools", s.adminOnly(s.handleSchools))
	s.mux.Handle("POST /api/admin/schools", s.adminOnly(s.handleCreateSchool))
	s.mux.Handle("POST /api/admin/schools/reorder", s.adminOnly(s.handleReorderSchools))
	s.mux.Handle("PUT /api/admin/schools/{id}", s.adminOnly(s.handleUpdateSchool))
	s.mux.Handle("DELETE /api/admin/schools/{id}", s.adminOnly(s.handleDeleteSchool))
	s.mux.Handle("GET /api/admin/categories", s.adminOnly(s.handleCategories))
	s.mux.Handle("POST /api/admin/categories", s.adminOnly(s.handleCreateCategory))
	s.mux.Handle("PUT /api/admin/categories/{id}", s.adminOnly(s.handleUpdateCategory))
	s.mux.Handle("DELETE /api/admin/categories/{id}", s.adminOnly(s.handleDeleteCategory))
	s.mux.Handle("GET /api/admin/publishers", s.adminOnly(s.handlePublishers))
	s.mux.Handle("POST /api/admin/publishers", s.adminOnly(s.handleCreatePublisher))
	s.mux.Handle("DELETE /api/admin/publishers/{name}", s.adminOnly(s.handleDeletePublisher))
	s.mux.Handle("GET /api/admin/orders", s.adminOnly(s.handleAdminOrders))
	s.mux.Handle("GET /api/admin/orders/{reference}", s.adminOnly(s.handleOrder))
	s.mux.Handle("PATCH /api/admin/orders/{reference}", s.adminOnly(s.handleUpdateOrder))
	s.mux.Handle("DELETE /api/admin/orders/{reference}", s.adminOnly(s.handleDeleteOrder))
	s.mux.Handle("GET /api/admin/chat-logs", s.adminOnly(s.handleChatLogs))
	s.mux.Handle("GET /api/admin/cache/stats", s.adminOnly(s.handleCacheStats))
	s.mux.Handle("POST /api/admin/cache/reset-stats", s.adminOnly(s.handleCacheResetStats))
	s.mux.Handle("POST /api/admin/cache/clear", s.adminOnly(s.handleCacheClear))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) adminOnly(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := admintoken.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			s.audit(r, "shop.admin.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		subject, err := s.tokens.Verify(token)
		if err != nil {
			s.audit(r, "shop.admin.authorize", "fail", "reason", "invalid_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("admin", subject))
		next(w, r.WithContext(ctx))
	})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

// allowRate applies limiter to the caller IP. A nil limiter allows.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
	if limiter.Allow(r.Context(), key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeFor(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

// writeAppError maps application errors onto HTTP statuses. Unexpected
// errors are logged and reported without detail.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, app.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, app.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, app.ErrStorageDisabled):
		writeError(w, http.StatusServiceUnavailable, "image storage not configured")
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func errorCodeFor(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "invalid credentials":
		return "AUTH_INVALID_CREDENTIALS"
	case message == "cart is empty":
		return "SHOP_CART_EMPTY"
	case message == "invalid json body":
		return "SHOP_INVALID_REQUEST"
	case message == "file too large":
		return "SHOP_FILE_TOO_LARGE"
	case message == "image storage not configured":
		return "SHOP_STORAGE_DISABLED"
	case message == "invalid signature":
		return "WHATSAPP_INVALID_SIGNATURE"
	case strings.HasPrefix(message, "too many"):
		return "SYSTEM_RATE_LIMITED"
	}

	switch status {
	case http.StatusBadRequest:
		return "SHOP_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "SYSTEM_FORBIDDEN"
	case http.StatusNotFound:
		return "SHOP_NOT_FOUND"
	case http.StatusConflict:
		return "SHOP_CONFLICT"
	case http.StatusTooManyRequests:
		return "SYSTEM_RATE_LIMITED"
	case http.StatusServiceUnavailable:
		return "SYSTEM_UNAVAILABLE"
	default:
		if status >= 500 {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "SYSTEM_ERROR"
	}
}

func logger(r *http.Request) *slog.Logger {
	return util.LoggerFromContext(r.Context())
}
