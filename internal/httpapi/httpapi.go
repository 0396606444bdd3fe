package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"dbella/pos/internal/domain"
	"dbella/pos/internal/metrics"
	"dbella/pos/internal/service"
	"dbella/pos/internal/store"
	"dbella/pos/internal/xid"
)

type Options struct {
	AllowedOrigin string
	AllowSignUp   bool
	Metrics       *metrics.Metrics
	// MediaDir is served under /media/ when images are stored locally.
	MediaDir string
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	allowSignUp   bool
	metrics       *metrics.Metrics
	mediaDir      string
	loginLimiter  *attemptLimiter
	signUpLimiter *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: opts.AllowedOrigin,
		allowSignUp:   opts.AllowSignUp,
		metrics:       opts.Metrics,
		mediaDir:      opts.MediaDir,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		signUpLimiter: newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (Unix time truncated to the hour), hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts the current and the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	current := time.Now().UTC().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current-3600)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/sign-up", a.handleSignUp)
	mux.HandleFunc("GET /api/v1/auth/csrf-token", a.handleCSRFToken)
	mux.HandleFunc("GET /catalog/products", a.handleCatalogProducts)
	mux.HandleFunc("GET /catalog/categories", a.handleCatalogCategories)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}
	if a.mediaDir != "" {
		mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(http.Dir(a.mediaDir))))
	}

	mux.HandleFunc("GET /api/v1/me", a.requireAuth(a.handleMe))
	mux.HandleFunc("GET /api/v1/dashboard", a.requireAuth(a.handleDashboard))

	mux.HandleFunc("POST /api/v1/checkout", a.requireAuth(a.handleCheckout, domain.CapSales))
	mux.HandleFunc("GET /api/v1/checkout/idempotency/{key}", a.requireAuth(a.handleCheckoutLookup, domain.CapSales))
	mux.HandleFunc("GET /api/v1/sales", a.requireAuth(a.handleSales, domain.CapSales))
	mux.HandleFunc("GET /api/v1/sales/export.csv", a.requireAuth(a.handleSalesCSV, domain.CapSales))
	mux.HandleFunc("GET /api/v1/sales/{id}", a.requireAuth(a.handleSale, domain.CapSales))
	mux.HandleFunc("GET /api/v1/sales/{id}/receipt.pdf", a.requireAuth(a.handleReceiptPDF, domain.CapSales))

	mux.HandleFunc("GET /api/v1/profits", a.requireAuth(a.handleProfits, domain.CapProfitability))
	mux.HandleFunc("GET /api/v1/profits/export.xlsx", a.requireAuth(a.handleProfitsXLSX, domain.CapProfitability))
	mux.HandleFunc("GET /api/v1/profits/{id}", a.requireAuth(a.handleProfitDetail, domain.CapProfitability))

	mux.HandleFunc("GET /api/v1/products", a.requireAuth(a.handleListProducts, domain.CapProducts, domain.CapSales))
	mux.HandleFunc("POST /api/v1/products", a.requireAuth(a.handleCreateProduct, domain.CapProducts))
	mux.HandleFunc("GET /api/v1/products/barcode/{code}", a.requireAuth(a.handleProductByBarcode, domain.CapProducts, domain.CapSales))
	mux.HandleFunc("GET /api/v1/products/{id}", a.requireAuth(a.handleGetProduct, domain.CapProducts, domain.CapSales))
	mux.HandleFunc("PATCH /api/v1/products/{id}", a.requireAuth(a.handleUpdateProduct, domain.CapProducts))
	mux.HandleFunc("DELETE /api/v1/products/{id}", a.requireAuth(a.handleDeleteProduct, domain.CapProducts))
	mux.HandleFunc("POST /api/v1/products/{id}/image", a.requireAuth(a.handleProductImage, domain.CapProducts))

	mux.HandleFunc("GET /api/v1/categories", a.requireAuth(a.handleListCategories, domain.CapCategories, domain.CapProducts))
	mux.HandleFunc("POST /api/v1/categories", a.requireAuth(a.handleCreateCategory, domain.CapCategories))
	mux.HandleFunc("PATCH /api/v1/categories/{id}", a.requireAuth(a.handleUpdateCategory, domain.CapCategories))
	mux.HandleFunc("DELETE /api/v1/categories/{id}", a.requireAuth(a.handleDeleteCategory, domain.CapCategories))

	mux.HandleFunc("GET /api/v1/batches", a.requireAuth(a.handleListBatches, domain.CapInventory))
	mux.HandleFunc("POST /api/v1/batches", a.requireAuth(a.handleCreateBatch, domain.CapInventory))
	mux.HandleFunc("GET /api/v1/batches/{id}", a.requireAuth(a.handleGetBatch, domain.CapInventory))
	mux.HandleFunc("PATCH /api/v1/batches/{id}", a.requireAuth(a.handleUpdateBatch, domain.CapInventory))
	mux.HandleFunc("DELETE /api/v1/batches/{id}", a.requireAuth(a.handleDeleteBatch, domain.CapInventory))
	mux.HandleFunc("GET /api/v1/inventory/movements", a.requireAuth(a.handleMovements, domain.CapInventory))
	mux.HandleFunc("GET /api/v1/inventory/low-stock", a.requireAuth(a.handleLowStock, domain.CapInventory))

	mux.HandleFunc("GET /api/v1/clients", a.requireAuth(a.handleListClients, domain.CapClients, domain.CapSales))
	mux.HandleFunc("POST /api/v1/clients", a.requireAuth(a.handleCreateClient, domain.CapClients))
	mux.HandleFunc("GET /api/v1/clients/{id}", a.requireAuth(a.handleGetClient, domain.CapClients, domain.CapSales))
	mux.HandleFunc("PATCH /api/v1/clients/{id}", a.requireAuth(a.handleUpdateClient, domain.CapClients))
	mux.HandleFunc("DELETE /api/v1/clients/{id}", a.requireAuth(a.handleDeleteClient, domain.CapClients))

	mux.HandleFunc("GET /api/v1/suppliers", a.requireAuth(a.handleListSuppliers, domain.CapSuppliers, domain.CapProducts, domain.CapInventory))
	mux.HandleFunc("POST /api/v1/suppliers", a.requireAuth(a.handleCreateSupplier, domain.CapSuppliers))
	mux.HandleFunc("GET /api/v1/suppliers/{id}", a.requireAuth(a.handleGetSupplier, domain.CapSuppliers, domain.CapProducts, domain.CapInventory))
	mux.HandleFunc("PATCH /api/v1/suppliers/{id}", a.requireAuth(a.handleUpdateSupplier, domain.CapSuppliers))
	mux.HandleFunc("DELETE /api/v1/suppliers/{id}", a.requireAuth(a.handleDeleteSupplier, domain.CapSuppliers))

	mux.HandleFunc("GET /api/v1/expenses", a.requireAuth(a.handleListExpenses, domain.CapExpenses))
	mux.HandleFunc("GET /api/v1/expenses/summary", a.requireAuth(a.handleExpenseSummary, domain.CapExpenses))
	mux.HandleFunc("POST /api/v1/expenses", a.requireAuth(a.handleCreateExpense, domain.CapExpenses))
	mux.HandleFunc("PATCH /api/v1/expenses/{id}", a.requireAuth(a.handleUpdateExpense, domain.CapExpenses))
	mux.HandleFunc("DELETE /api/v1/expenses/{id}", a.requireAuth(a.handleDeleteExpense, domain.CapExpenses))

	mux.HandleFunc("GET /api/v1/users", a.requireAuth(a.handleListUsers, domain.CapSettings))
	mux.HandleFunc("PATCH /api/v1/users/{id}/role", a.requireAuth(a.handleUpdateUserRole, domain.CapSettings))
	mux.HandleFunc("GET /api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, domain.CapSettings))

	return a.withMiddleware(mux)
}

// requireAuth resolves the bearer token to a Principal. With capabilities
// given, the caller must hold at least one of them.
func (a *API) requireAuth(next http.HandlerFunc, anyOf ...domain.Capability) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		userID, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		principal, err := a.auth.Resolve(r.Context(), userID)
		if err != nil {
			if errors.Is(err, errInvalidToken) || errors.Is(err, errInactiveAccount) {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		if len(anyOf) > 0 && !principal.Capabilities.HasAny(anyOf...) {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":    "forbidden",
				"redirect": "/dashboard",
			})
			return
		}

		ctx := service.WithPrincipal(r.Context(), principal)
		logger := log.Ctx(ctx).With().Str("user_id", principal.UserID).Str("role", string(principal.Role)).Logger()
		next(w, r.WithContext(logger.WithContext(ctx)))
	}
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
	"/api/v1/auth/sign-up",
}

// checkCSRF enforces the X-CSRF-Token header on state-changing methods.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	if !a.validateCSRFToken(strings.TrimSpace(r.Header.Get("X-CSRF-Token"))) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if !a.checkCSRF(w, r) {
			return
		}

		logger := log.With().Str("request_id", xid.New("req")).Logger()
		r = r.WithContext(logger.WithContext(r.Context()))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		startedAt := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(startedAt)

		a.metrics.ObserveRequest(r.Method, r.Pattern, rec.status, elapsed)
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", r.Pattern).
			Int("status", rec.status).
			Dur("duration", elapsed).
			Msg("request")
	})
}

// writeServiceError maps store sentinels onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var stockErr *store.StockError
	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      err.Error(),
			"product_id": stockErr.ProductID,
			"product":    stockErr.ProductName,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrBatchLocked),
		errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrInsufficientPayment):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx answers carry a generic message; the cause only goes to the log.
	msg := err.Error()
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
