package httpapi

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"dbella/pos/internal/cache"
	"dbella/pos/internal/domain"
	"dbella/pos/internal/metrics"
	"dbella/pos/internal/service"
	"dbella/pos/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded(memory.SeedUsers{})
	m := metrics.New()
	svc := service.New(repo, service.Options{
		Cache:   cache.NewMemoryDashboardCache(),
		Metrics: m,
	})
	auth := NewAuthManager(testSecret, time.Hour, repo)

	return New(svc, auth, Options{AllowedOrigin: "*", AllowSignUp: true, Metrics: m})
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

// tokenFor signs a token for a seeded user without going through login.
func tokenFor(t *testing.T, api *API, userID string) string {
	t.Helper()
	user, err := api.auth.users.GetUserByID(t.Context(), userID)
	require.NoError(t, err)
	token, err := api.auth.sign(user.ID, user.Role, time.Now().Add(time.Hour))
	require.NoError(t, err)
	return token
}

func do(t *testing.T, api *API, method string, target string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", api.generateCSRFToken())
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func decodeBody[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out), res.Body.String())
	return out
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	res := do(t, api, http.MethodGet, "/healthz", "", nil)

	require.Equal(t, http.StatusOK, res.Code)
	body := decodeBody[map[string]any](t, res)
	assert.Equal(t, true, body["ok"])
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "vendedor@dbella.co", "vendedor12345")

	res := do(t, api, http.MethodGet, "/api/v1/me", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	me := decodeBody[domain.MeResponse](t, res)
	assert.Equal(t, domain.RoleSeller, me.Role)
	assert.True(t, me.Permissions["ventas"])
	assert.True(t, me.Permissions["clientes"])
	assert.False(t, me.Permissions["rentabilidad"])
	assert.False(t, me.Permissions["configuracion"])
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	res := do(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Email: "admin@dbella.co", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	res := do(t, api, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = do(t, api, http.MethodGet, "/api/v1/products", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestCapabilityMatrix(t *testing.T) {
	api := newTestAPI(t)
	tokens := map[domain.Role]string{
		domain.RoleAdmin:   tokenFor(t, api, "usr_admin"),
		domain.RoleManager: tokenFor(t, api, "usr_gerente"),
		domain.RoleSeller:  tokenFor(t, api, "usr_vendedor"),
	}

	cases := []struct {
		path    string
		allowed map[domain.Role]bool
	}{
		{"/api/v1/products", map[domain.Role]bool{domain.RoleAdmin: true, domain.RoleManager: true, domain.RoleSeller: true}},
		{"/api/v1/clients", map[domain.Role]bool{domain.RoleAdmin: true, domain.RoleManager: true, domain.RoleSeller: true}},
		{"/api/v1/sales", map[domain.Role]bool{domain.RoleAdmin: true, domain.RoleManager: true, domain.RoleSeller: true}},
		{"/api/v1/batches", map[domain.Role]bool{domain.RoleAdmin: true, domain.RoleManager: true}},
		{"/api/v1/profits", map[domain.Role]bool{domain.RoleAdmin: true, domain.RoleManager: true}},
		{"/api/v1/expenses", map[domain.Role]bool{domain.RoleAdmin: true, domain.RoleManager: true}},
		{"/api/v1/suppliers", map[domain.Role]bool{domain.RoleAdmin: true, domain.RoleManager: true}},
		{"/api/v1/users", map[domain.Role]bool{domain.RoleAdmin: true}},
		{"/api/v1/audit-logs", map[domain.Role]bool{domain.RoleAdmin: true}},
	}
	for _, tc := range cases {
		for role, token := range tokens {
			res := do(t, api, http.MethodGet, tc.path, token, nil)
			if tc.allowed[role] {
				assert.Equal(t, http.StatusOK, res.Code, "%s as %s", tc.path, role)
				continue
			}
			require.Equal(t, http.StatusForbidden, res.Code, "%s as %s", tc.path, role)
			body := decodeBody[map[string]string](t, res)
			assert.Equal(t, "forbidden", body["error"])
			assert.Equal(t, "/dashboard", body["redirect"])
		}
	}
}

func TestCheckoutOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	seller := tokenFor(t, api, "usr_vendedor")
	admin := tokenFor(t, api, "usr_admin")

	req := domain.CheckoutRequest{
		ClientID:            "cli_general",
		PaymentMethod:       domain.PaymentCash,
		AmountReceivedCents: 5000000,
		IdempotencyKey:      "caja-1-0001",
		Items:               []domain.CartItem{{ProductID: "prd_brillo", Quantity: 2}},
	}
	res := do(t, api, http.MethodPost, "/api/v1/checkout", seller, req)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	created := decodeBody[domain.CheckoutResponse](t, res)
	assert.Equal(t, int64(4400000), created.TotalCents)
	assert.Equal(t, int64(600000), created.ChangeCents)
	assert.Nil(t, created.Profit)

	res = do(t, api, http.MethodPost, "/api/v1/checkout", seller, req)
	require.Equal(t, http.StatusOK, res.Code)
	replay := decodeBody[domain.CheckoutResponse](t, res)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, created.SaleID, replay.SaleID)

	res = do(t, api, http.MethodGet, "/api/v1/checkout/idempotency/caja-1-0001", seller, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.True(t, decodeBody[domain.CheckoutLookupResponse](t, res).Found)

	res = do(t, api, http.MethodGet, "/api/v1/sales", seller, nil)
	require.Equal(t, http.StatusOK, res.Code)
	sellerList := decodeBody[map[string]any](t, res)
	assert.NotContains(t, sellerList, "profit_cents")

	res = do(t, api, http.MethodGet, "/api/v1/sales", admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	adminList := decodeBody[domain.SaleListResponse](t, res)
	require.NotNil(t, adminList.ProfitCents)
	require.Len(t, adminList.Sales, 1)

	res = do(t, api, http.MethodGet, "/api/v1/sales/"+created.SaleID, admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	sale := decodeBody[domain.Sale](t, res)
	require.NotNil(t, sale.Profit)

	res = do(t, api, http.MethodGet, "/api/v1/profits/"+created.SaleID, seller, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestCheckoutErrorStatuses(t *testing.T) {
	api := newTestAPI(t)
	seller := tokenFor(t, api, "usr_vendedor")

	res := do(t, api, http.MethodPost, "/api/v1/checkout", seller, domain.CheckoutRequest{
		ClientID:      "cli_general",
		PaymentMethod: domain.PaymentCard,
		Items:         []domain.CartItem{{ProductID: "prd_serum", Quantity: 41}},
	})
	require.Equal(t, http.StatusConflict, res.Code)
	body := decodeBody[map[string]any](t, res)
	assert.Equal(t, "prd_serum", body["product_id"])
	assert.EqualValues(t, 40, body["available"])

	res = do(t, api, http.MethodPost, "/api/v1/checkout", seller, domain.CheckoutRequest{
		ClientID:            "cli_general",
		PaymentMethod:       domain.PaymentCash,
		AmountReceivedCents: 100,
		Items:               []domain.CartItem{{ProductID: "prd_serum", Quantity: 1}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)

	res = do(t, api, http.MethodPost, "/api/v1/checkout", seller, domain.CheckoutRequest{
		ClientID:      "cli_general",
		PaymentMethod: "cheque",
		Items:         []domain.CartItem{{ProductID: "prd_serum", Quantity: 1}},
	})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = do(t, api, http.MethodPost, "/api/v1/checkout", seller, map[string]any{"client_id": "cli_general", "surprise": true})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestBatchEditLockOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	manager := tokenFor(t, api, "usr_gerente")

	res := do(t, api, http.MethodPatch, "/api/v1/batches/bat_pestanina", manager, domain.BatchUpdateRequest{Quantity: 45, PurchasePriceCents: 2000000})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = do(t, api, http.MethodPost, "/api/v1/checkout", manager, domain.CheckoutRequest{
		ClientID:      "cli_general",
		PaymentMethod: domain.PaymentTransfer,
		Items:         []domain.CartItem{{ProductID: "prd_pestanina", Quantity: 1}},
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = do(t, api, http.MethodPatch, "/api/v1/batches/bat_pestanina", manager, domain.BatchUpdateRequest{Quantity: 50, PurchasePriceCents: 2000000})
	require.Equal(t, http.StatusConflict, res.Code)
	assert.Contains(t, res.Body.String(), "ya no puede ser modificado")

	res = do(t, api, http.MethodDelete, "/api/v1/batches/bat_pestanina", manager, nil)
	assert.Equal(t, http.StatusConflict, res.Code)

	res = do(t, api, http.MethodGet, "/api/v1/batches/bat_missing", manager, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestSalesCSVHidesProfitColumnsFromSellers(t *testing.T) {
	api := newTestAPI(t)
	seller := tokenFor(t, api, "usr_vendedor")
	admin := tokenFor(t, api, "usr_admin")

	res := do(t, api, http.MethodPost, "/api/v1/checkout", seller, domain.CheckoutRequest{
		ClientID:      "cli_general",
		PaymentMethod: domain.PaymentCard,
		Items:         []domain.CartItem{{ProductID: "prd_base", Quantity: 1}},
	})
	require.Equal(t, http.StatusCreated, res.Code)

	headerOf := func(token string) []string {
		res := do(t, api, http.MethodGet, "/api/v1/sales/export.csv", token, nil)
		require.Equal(t, http.StatusOK, res.Code)
		assert.Contains(t, res.Header().Get("Content-Disposition"), "ventas_")
		records, err := csv.NewReader(res.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		return records[0]
	}
	assert.Equal(t, []string{"Fecha", "Cliente", "Método de Pago", "Total"}, headerOf(seller))
	assert.Equal(t, []string{"Fecha", "Cliente", "Método de Pago", "Total", "Ganancia", "Margen %"}, headerOf(admin))
}

func TestProfitsXLSXAndReceiptPDF(t *testing.T) {
	api := newTestAPI(t)
	admin := tokenFor(t, api, "usr_admin")

	res := do(t, api, http.MethodPost, "/api/v1/checkout", admin, domain.CheckoutRequest{
		ClientID:      "cli_general",
		PaymentMethod: domain.PaymentCard,
		Items:         []domain.CartItem{{ProductID: "prd_polvo", Quantity: 3}},
	})
	require.Equal(t, http.StatusCreated, res.Code)
	sale := decodeBody[domain.CheckoutResponse](t, res)

	res = do(t, api, http.MethodGet, "/api/v1/profits/export.xlsx", admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Header().Get("Content-Disposition"), "rentabilidad_")
	book, err := excelize.OpenReader(res.Body)
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("Rentabilidad")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, sale.SaleID, rows[1][0])

	res = do(t, api, http.MethodGet, "/api/v1/sales/"+sale.SaleID+"/receipt.pdf", admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "application/pdf", res.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(res.Body.String(), "%PDF"))
}

func TestDashboardFieldsFollowCapabilities(t *testing.T) {
	api := newTestAPI(t)

	res := do(t, api, http.MethodGet, "/api/v1/dashboard", tokenFor(t, api, "usr_vendedor"), nil)
	require.Equal(t, http.StatusOK, res.Code)
	seller := decodeBody[map[string]any](t, res)
	assert.Contains(t, seller, "sales_count")
	assert.Contains(t, seller, "client_count")
	assert.NotContains(t, seller, "revenue_cents")
	assert.NotContains(t, seller, "low_stock_count")

	res = do(t, api, http.MethodGet, "/api/v1/dashboard", tokenFor(t, api, "usr_gerente"), nil)
	require.Equal(t, http.StatusOK, res.Code)
	manager := decodeBody[map[string]any](t, res)
	assert.Contains(t, manager, "revenue_cents")
	assert.Contains(t, manager, "profit_cents")
	assert.Contains(t, manager, "product_count")
}

func TestPublicCatalogNeedsNoToken(t *testing.T) {
	api := newTestAPI(t)
	admin := tokenFor(t, api, "usr_admin")
	hidden := false
	res := do(t, api, http.MethodPatch, "/api/v1/products/prd_serum", admin, domain.ProductUpdateRequest{IsPublic: &hidden})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = do(t, api, http.MethodGet, "/catalog/products", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	body := decodeBody[struct {
		Products []domain.CatalogProduct `json:"products"`
	}](t, res)
	assert.Len(t, body.Products, 5)
	for _, p := range body.Products {
		assert.NotEqual(t, "prd_serum", p.ID)
	}

	res = do(t, api, http.MethodGet, "/catalog/categories", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	categories := decodeBody[map[string][]string](t, res)
	assert.NotContains(t, categories["categories"], "Cuidado de la piel")
}

func TestUserRoleManagement(t *testing.T) {
	api := newTestAPI(t)
	admin := tokenFor(t, api, "usr_admin")
	seller := tokenFor(t, api, "usr_vendedor")

	res := do(t, api, http.MethodGet, "/api/v1/profits", seller, nil)
	require.Equal(t, http.StatusForbidden, res.Code)

	res = do(t, api, http.MethodPatch, "/api/v1/users/usr_admin/role", admin, domain.RoleUpdateRequest{Role: domain.RoleSeller})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = do(t, api, http.MethodPatch, "/api/v1/users/usr_vendedor/role", admin, domain.RoleUpdateRequest{Role: domain.RoleManager})
	require.Equal(t, http.StatusOK, res.Code)

	// the new role applies to the existing token on its next request
	res = do(t, api, http.MethodGet, "/api/v1/profits", seller, nil)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestMetricsRecordRoutePatterns(t *testing.T) {
	api := newTestAPI(t)
	admin := tokenFor(t, api, "usr_admin")

	res := do(t, api, http.MethodGet, "/api/v1/products/prd_brillo", admin, nil)
	require.Equal(t, http.StatusOK, res.Code)

	res = do(t, api, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `route="GET /api/v1/products/{id}"`)
}

func TestMustHashPassword(t *testing.T) {
	hash := mustHashPassword(t, "secret")
	if !isPasswordHash(hash) {
		t.Fatalf("expected bcrypt hash, got %q", hash)
	}
	if !verifyPassword(hash, "secret") {
		t.Fatal("expected hash to verify")
	}
}
