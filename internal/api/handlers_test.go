package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/example/grocery-delivery/internal/auth"
	"github.com/example/grocery-delivery/internal/domain/cart"
	"github.com/example/grocery-delivery/internal/domain/order"
	"github.com/example/grocery-delivery/internal/domain/product"
	"github.com/example/grocery-delivery/internal/domain/user"
	"github.com/example/grocery-delivery/internal/infrastructure/store/mocks"
	"github.com/example/grocery-delivery/internal/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	auth.Cost = bcrypt.MinCost
}

type keySet struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (k *keySet) Claim(ctx context.Context, key string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.keys[key] {
		return false, nil
	}
	k.keys[key] = true
	return true, nil
}

func (k *keySet) Release(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, key)
	return nil
}

type testServer struct {
	handler   http.Handler
	store     *mocks.MemoryStore
	publisher *mocks.MockPublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.Discard()
	store := mocks.NewMemoryStore()
	store.AddProduct(product.Product{ID: 1, Name: "Tomato", Description: "Fresh red tomatoes", Price: decimal.RequireFromString("3.5")})
	store.AddProduct(product.Product{ID: 3, Name: "Onion", Description: "White onions", Price: decimal.RequireFromString("1.5")})
	publisher := mocks.NewMockPublisher()

	catalog := product.NewCatalog(store.Products(), log)
	handler := NewRouter(RouterConfig{
		Handlers: NewHandlers(
			catalog,
			cart.NewService(store.Carts(), catalog, log),
			order.NewService(store.Orders(), publisher, log),
			log,
		),
		AuthHandlers: NewAuthHandlers(user.NewService(store.Users(), log), auth.NewJWTService("test-secret-key-for-testing-purposes", time.Hour), log),
		JWT:          auth.NewJWTService("test-secret-key-for-testing-purposes", time.Hour),
		Idempotency:  &keySet{keys: map[string]bool{}},
		Log:          log,
	})
	return &testServer{handler: handler, store: store, publisher: publisher}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// signup registers an account and returns its token.
func (s *testServer) signup(t *testing.T, email, role string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/register", "", RegisterRequest{Email: email, Password: "secret1", Role: role})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/login", "", LoginRequest{Email: email, Password: "secret1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	msg, _ := body["message"].(string)
	return msg
}

// ============================================
// Public Endpoint Tests
// ============================================

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"success"`)
}

func TestGetProducts(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/products", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var products []product.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Len(t, products, 2)
	assert.Equal(t, "Tomato", products[0].Name)
}

func TestGetProduct(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/products/3", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Onion")

	rec = s.do(t, http.MethodGet, "/products/42", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Product not found", message(t, rec))
}

func TestRegister_Errors(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "taken@example.com", "customer")

	tests := []struct {
		name     string
		req      RegisterRequest
		status   int
		expected string
	}{
		{"missing fields", RegisterRequest{Email: "a@example.com"}, http.StatusBadRequest, "Missing required fields"},
		{"bad email", RegisterRequest{Email: "nope", Password: "secret1", Role: "customer"}, http.StatusBadRequest, "Invalid email format"},
		{"short password", RegisterRequest{Email: "b@example.com", Password: "123", Role: "customer"}, http.StatusBadRequest, "Password must be at least 6 characters"},
		{"bad role", RegisterRequest{Email: "c@example.com", Password: "secret1", Role: "admin"}, http.StatusBadRequest, "Invalid role"},
		{"duplicate", RegisterRequest{Email: "taken@example.com", Password: "secret1", Role: "customer"}, http.StatusConflict, "Email already exists"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/register", "", tt.req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.expected, message(t, rec))
		})
	}
}

func TestLogin_Errors(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "known@example.com", "customer")

	rec := s.do(t, http.MethodPost, "/login", "", LoginRequest{Email: "known@example.com", Password: "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", message(t, rec))

	rec = s.do(t, http.MethodPost, "/login", "", LoginRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString("{not json"))
	raw := httptest.NewRecorder()
	s.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestLogin_SetsCookieAndMe(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/register", "", RegisterRequest{Email: "me@example.com", Password: "secret1", Role: "vendor"})

	rec := s.do(t, http.MethodPost, "/login", "", LoginRequest{Email: "me@example.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "access_token", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookies[0])
	me := httptest.NewRecorder()
	s.handler.ServeHTTP(me, req)

	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"email":"me@example.com"`)
	assert.NotContains(t, me.Body.String(), "password")
}

// ============================================
// Authorization Tests
// ============================================

func TestCustomerRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/cart"},
		{http.MethodGet, "/cart"},
		{http.MethodDelete, "/cart/1"},
		{http.MethodPost, "/order"},
		{http.MethodGet, "/orders"},
		{http.MethodPost, "/checkout"},
	} {
		rec := s.do(t, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
	}
}

func TestCustomerRoutes_RejectVendor(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "vendor@example.com", "vendor")

	rec := s.do(t, http.MethodPost, "/checkout", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Unauthorized", message(t, rec))

	rec = s.do(t, http.MethodGet, "/orders", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/nope", "", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, s.do(t, http.MethodDelete, "/products", "", nil).Code)
}

// ============================================
// Cart Endpoint Tests
// ============================================

func TestCart_AddMergeRemove(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "shopper@example.com", "customer")

	rec := s.do(t, http.MethodPost, "/cart", token, map[string]any{"product_id": 1, "quantity": 2})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Product added to cart", message(t, rec))

	rec = s.do(t, http.MethodPost, "/cart", token, map[string]any{"product_id": 1, "quantity": 1})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cart updated", message(t, rec))

	rec = s.do(t, http.MethodGet, "/cart", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var lines []cart.Line
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.True(t, lines[0].Price.Equal(decimal.RequireFromString("3.5")))

	rec = s.do(t, http.MethodDelete, "/cart/3", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Product not in cart", message(t, rec))

	rec = s.do(t, http.MethodDelete, "/cart/1", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/cart", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestCart_AddValidation(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "validate@example.com", "customer")

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"default quantity", map[string]any{"product_id": 3}, http.StatusCreated},
		{"zero quantity", map[string]any{"product_id": 1, "quantity": 0}, http.StatusBadRequest},
		{"negative quantity", map[string]any{"product_id": 1, "quantity": -2}, http.StatusBadRequest},
		{"missing product", map[string]any{"quantity": 1}, http.StatusBadRequest},
		{"unknown product", map[string]any{"product_id": 99, "quantity": 1}, http.StatusNotFound},
		{"wrong type", map[string]any{"product_id": "one", "quantity": 1}, http.StatusBadRequest},
		{"quantity above maximum", map[string]any{"product_id": 1, "quantity": cart.MaxQuantity + 1}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/cart", token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestCart_IncrementPastMaximumKeepsCartUsable(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "bulk@example.com", "customer")

	rec := s.do(t, http.MethodPost, "/cart", token, map[string]any{"product_id": 1, "quantity": cart.MaxQuantity})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/cart", token, map[string]any{"product_id": 1, "quantity": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, cart.ErrQuantityTooLarge.Message, message(t, rec))

	rec = s.do(t, http.MethodGet, "/cart", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ============================================
// Order Endpoint Tests
// ============================================

func TestOrder_EmptyCart(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "empty@example.com", "customer")

	rec := s.do(t, http.MethodPost, "/order", token, map[string]any{"cart_items": []any{}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Cart is empty", message(t, rec))
	assert.Empty(t, s.store.AllOrders())
}

func TestOrder_FromRequestItems(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "direct@example.com", "customer")

	rec := s.do(t, http.MethodPost, "/order", token, map[string]any{
		"cart_items": []map[string]any{{"product_id": 1, "quantity": 1}, {"product_id": 3, "quantity": 4}},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp placeOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Order placed successfully", resp.Message)
	assert.Len(t, resp.OrderIDs, 2)
	assert.Len(t, s.publisher.Calls(), 1)
}

func TestOrder_InvalidProductCreatesNothing(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "invalid@example.com", "customer")

	rec := s.do(t, http.MethodPost, "/order", token, map[string]any{
		"cart_items": []map[string]any{{"product_id": 1, "quantity": 1}, {"product_id": 77, "quantity": 1}},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid product in cart", message(t, rec))
	assert.Empty(t, s.store.AllOrders())
}

func TestOrder_IdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "retry@example.com", "customer")
	body := map[string]any{"cart_items": []map[string]any{{"product_id": 1, "quantity": 1}}}

	first := s.do(t, http.MethodPost, "/order", token, body, "Idempotency-Key", "k-1")
	second := s.do(t, http.MethodPost, "/order", token, body, "Idempotency-Key", "k-1")

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Len(t, s.store.AllOrders(), 1)
}

func TestCheckout_NothingToCheckout(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "idle@example.com", "customer")

	rec := s.do(t, http.MethodPost, "/checkout", token, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No orders to checkout", message(t, rec))
}

// TestFullScenario walks a customer from an empty cart to a delivery in
// transit.
func TestFullScenario(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "mama@mboga.co.ke", "customer")

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/cart", token, map[string]any{"product_id": 1, "quantity": 2}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/cart", token, map[string]any{"product_id": 1, "quantity": 1}).Code)

	rec := s.do(t, http.MethodPost, "/order", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/cart", token, nil)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = s.do(t, http.MethodGet, "/orders", token, nil)
	var views []order.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, order.StatusProcessing, views[0].Status)
	assert.Equal(t, 3, views[0].Quantity)
	assert.Equal(t, "pending", views[0].DeliveryStatus)

	rec = s.do(t, http.MethodPost, "/checkout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Checkout successful. Delivery has started.", message(t, rec))

	rec = s.do(t, http.MethodGet, "/orders", token, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, order.StatusCompleted, views[0].Status)
	assert.Equal(t, "Tomato", views[0].ProductName)
	assert.Equal(t, "in transit", views[0].DeliveryStatus)

	calls := s.publisher.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, order.EventOrderPlaced, calls[0].EventType)
	assert.Equal(t, order.EventOrdersCheckedOut, calls[1].EventType)
}
