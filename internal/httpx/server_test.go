package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-checkout/internal/address"
	"github.com/ariefcatur/go-storefront-checkout/internal/cart"
	"github.com/ariefcatur/go-storefront-checkout/internal/checkout"
	"github.com/ariefcatur/go-storefront-checkout/internal/inventory"
	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/pricing"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
)

type testAPI struct {
	srv   *httptest.Server
	auth  *Authenticator
	inv   *inventory.MemoryStore
	redis *miniredis.Miniredis
}

func newTestAPI(t *testing.T, limiter *RateLimiter) *testAPI {
	t.Helper()
	log := zerolog.Nop()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	inv := inventory.NewMemoryStore(10 * time.Minute)
	require.NoError(t, inv.Upsert(context.Background(), inventory.SKU{ID: "A", UnitPrice: 100, StockQuantity: 3, LowStockThreshold: 5}))
	require.NoError(t, inv.Upsert(context.Background(), inventory.SKU{ID: "B", UnitPrice: 250, StockQuantity: 0}))

	ord := orders.NewMemoryStore()
	book := address.NewMemoryBook()
	carts := &cart.Service{Store: &cart.RedisStore{Redis: rdb}, Catalog: inv}
	m := metrics.New("test", prometheus.NewRegistry())
	orch := &checkout.Orchestrator{
		Pricing: pricing.Engine{Policy: pricing.Policy{
			TaxRate:               decimal.RequireFromString("0.18"),
			FreeDeliveryThreshold: 500,
			DeliveryFee:           40,
			CODSurcharge:          25,
		}},
		Inventory: inv,
		Orders:    ord,
		Addresses: book,
		Carts:     carts,
		Attempts:  &checkout.RedisAttempts{Redis: rdb},
		Payments:  checkout.ApproveAll{},
		Metrics:   m,
		Log:       log,
		Service:   "test",
	}
	auth := &Authenticator{Secret: []byte("test-secret")}

	r := NewRouter(log, m)
	Mount(r, auth,
		&CheckoutHandler{Checkout: orch, Limiter: limiter, Log: log},
		&InventoryHandler{Store: inv, Log: log},
		&OrdersHandler{Orders: ord, Checkout: orch, Redis: rdb, Log: log},
		&CartHandler{Cart: carts, Log: log},
		&AddressHandler{Book: book, Log: log},
	)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, auth: auth, inv: inv, redis: mr}
}

func (a *testAPI) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := a.auth.Issue(userID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *testAPI) do(t *testing.T, token, method, path string, body any, out any) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

// shopper adds an address and cart lines for userID and returns the address id.
func (a *testAPI) shopper(t *testing.T, tok string, lines map[string]int) string {
	t.Helper()
	var addr address.Address
	code := a.do(t, tok, http.MethodPost, "/addresses", map[string]any{
		"name": "Asha Rao", "phone": "9876543210", "line1": "12 MG Road",
		"city": "Bengaluru", "state": "Karnataka", "pincode": "560001",
	}, &addr)
	require.Equal(t, http.StatusCreated, code)
	for sku, qty := range lines {
		require.Equal(t, http.StatusOK, a.do(t, tok, http.MethodPost, "/cart/items", map[string]any{"skuId": sku, "quantity": qty}, nil))
	}
	return addr.ID
}

func placeBody(attemptID, addrID string) map[string]any {
	return map[string]any{"attemptId": attemptID, "addressId": addrID, "paymentMethod": "upi", "termsAccepted": true}
}

func TestPublicEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)
	res, err := http.Get(api.srv.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(api.srv.URL + "/metrics")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var body errorBody
	assert.Equal(t, http.StatusUnauthorized, api.do(t, "", http.MethodGet, "/orders", nil, &body))
	assert.Equal(t, "unauthorized", body.Reason)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, "not-a-jwt", http.MethodGet, "/orders", nil, nil))

	other := &Authenticator{Secret: []byte("other")}
	forged, err := other.Issue("u1", RoleAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, forged, http.MethodGet, "/orders", nil, nil))
}

func TestPlaceAndReplay(t *testing.T) {
	api := newTestAPI(t, nil)
	tok := api.token(t, "u1", "")
	addr := api.shopper(t, tok, map[string]int{"A": 2})

	var placed placedResp
	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodPost, "/checkout/place", placeBody("att-1", addr), &placed))
	assert.Equal(t, "placed", placed.Status)
	assert.Equal(t, pricing.Totals{Subtotal: 200, Tax: 36, DeliveryCharge: 40, Total: 276}, placed.Totals)

	var again placedResp
	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodPost, "/checkout/place", placeBody("att-1", addr), &again))
	assert.Equal(t, placed.OrderID, again.OrderID)

	sku, err := api.inv.Get(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 1, sku.StockQuantity)

	var list []orders.Order
	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodGet, "/orders", nil, &list))
	require.Len(t, list, 1)

	var lines []pricing.LineItem
	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodGet, "/cart", nil, &lines))
	assert.Empty(t, lines)

	// someone else's order is invisible
	assert.Equal(t, http.StatusNotFound, api.do(t, api.token(t, "u2", ""), http.MethodGet, "/orders/"+placed.OrderID, nil, nil))
}

func TestPlaceOutOfStockNamesSKU(t *testing.T) {
	api := newTestAPI(t, nil)
	tok := api.token(t, "u1", "")
	addr := api.shopper(t, tok, map[string]int{"A": 1, "B": 1})

	var body map[string]any
	require.Equal(t, http.StatusConflict, api.do(t, tok, http.MethodPost, "/checkout/place", placeBody("att-1", addr), &body))
	assert.Equal(t, map[string]any{
		"status": "failed", "reason": "out_of_stock", "skuId": "B", "requested": float64(1), "available": float64(0),
	}, body)

	var a checkout.Attempt
	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodGet, "/checkout/attempts/att-1", nil, &a))
	assert.Equal(t, checkout.StateFailed, a.State)

	sku, err := api.inv.Get(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 3, sku.StockQuantity)
	assert.Empty(t, api.inv.Reservations("att-1"))
}

func TestStepwiseCheckout(t *testing.T) {
	api := newTestAPI(t, nil)
	tok := api.token(t, "u1", "")
	addr := api.shopper(t, tok, map[string]int{"A": 1})

	var a checkout.Attempt
	require.Equal(t, http.StatusCreated, api.do(t, tok, http.MethodPost, "/checkout/attempts", map[string]any{"attemptId": "att-9"}, &a))
	assert.Equal(t, checkout.StateAddressPending, a.State)

	var e errorBody
	require.Equal(t, http.StatusUnprocessableEntity, api.do(t, tok, http.MethodPut, "/checkout/attempts/att-9/payment", map[string]any{"paymentMethod": "card"}, &e))
	assert.Equal(t, "invalid_step", e.Reason)

	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodPut, "/checkout/attempts/att-9/address", map[string]any{"addressId": addr}, &a))
	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodPut, "/checkout/attempts/att-9/payment", map[string]any{"paymentMethod": "cod"}, &a))
	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodPut, "/checkout/attempts/att-9/review", map[string]any{"termsAccepted": true}, &a))
	assert.Equal(t, checkout.StateReviewPending, a.State)

	var placed placedResp
	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodPost, "/checkout/attempts/att-9/place", nil, &placed))
	assert.Equal(t, int64(65), placed.Totals.DeliveryCharge)

	require.Equal(t, http.StatusConflict, api.do(t, api.token(t, "u2", ""), http.MethodPost, "/checkout/attempts", map[string]any{"attemptId": "att-9"}, &e))
	assert.Equal(t, "duplicate_attempt", e.Reason)
}

func TestCancelAndStatusCache(t *testing.T) {
	api := newTestAPI(t, nil)
	tok := api.token(t, "u1", "")
	admin := api.token(t, "ops", RoleAdmin)
	addr := api.shopper(t, tok, map[string]int{"A": 2})

	var placed placedResp
	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodPost, "/checkout/place", placeBody("att-1", addr), &placed))

	var st statusView
	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodGet, "/orders/"+placed.OrderID+"/status", nil, &st))
	assert.Equal(t, orders.StatusPending, st.Status)
	key := fmt.Sprintf(redisx.KeyOrderStatus, placed.OrderID)
	assert.True(t, api.redis.Exists(key))

	assert.Equal(t, http.StatusForbidden, api.do(t, tok, http.MethodPut, "/orders/"+placed.OrderID+"/status", map[string]any{"status": "confirmed"}, nil))

	var o orders.Order
	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodPost, "/orders/"+placed.OrderID+"/cancel", nil, &o))
	assert.Equal(t, orders.StatusCancelled, o.Status)
	assert.False(t, api.redis.Exists(key))

	sku, err := api.inv.Get(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 3, sku.StockQuantity)

	var e errorBody
	require.Equal(t, http.StatusConflict, api.do(t, admin, http.MethodPut, "/orders/"+placed.OrderID+"/status", map[string]any{"status": "shipped"}, &e))
	assert.Equal(t, "illegal_transition", e.Reason)
	assert.Equal(t, "cancelled", e.From)

	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodGet, "/orders/"+placed.OrderID+"/status", nil, &st))
	assert.Equal(t, orders.StatusCancelled, st.Status)
}

func TestInventoryAdmin(t *testing.T) {
	api := newTestAPI(t, nil)
	tok := api.token(t, "u1", "")
	admin := api.token(t, "ops", RoleAdmin)

	assert.Equal(t, http.StatusForbidden, api.do(t, tok, http.MethodPut, "/inventory/A", map[string]any{"action": "add", "quantity": 1}, nil))

	var sku inventory.SKU
	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodGet, "/inventory/A", nil, &sku))
	assert.Equal(t, 3, sku.StockQuantity)

	var e errorBody
	require.Equal(t, http.StatusUnprocessableEntity, api.do(t, admin, http.MethodPut, "/inventory/A", map[string]any{"action": "subtract", "quantity": 4}, &e))
	assert.Equal(t, "negative_stock", e.Reason)

	require.Equal(t, http.StatusBadRequest, api.do(t, admin, http.MethodPut, "/inventory/A", map[string]any{"action": "double", "quantity": 4}, &e))

	require.Equal(t, http.StatusOK, api.do(t, admin, http.MethodPut, "/inventory/A", map[string]any{"action": "add", "quantity": 7}, &sku))
	assert.Equal(t, 10, sku.StockQuantity)

	require.Equal(t, http.StatusOK, api.do(t, admin, http.MethodPost, "/inventory", map[string]any{
		"sku_id": "C", "unit_price": 500, "stock_quantity": 2, "low_stock_threshold": 3,
	}, &sku))

	var skus []inventory.SKU
	require.Equal(t, http.StatusOK, api.do(t, admin, http.MethodGet, "/inventory/low-stock", nil, &skus))
	require.Len(t, skus, 1)
	assert.Equal(t, "C", skus[0].ID)

	require.Equal(t, http.StatusOK, api.do(t, admin, http.MethodGet, "/inventory/low-stock?threshold=20", nil, &skus))
	assert.Len(t, skus, 2)

	require.Equal(t, http.StatusOK, api.do(t, admin, http.MethodGet, "/inventory/out-of-stock", nil, &skus))
	require.Len(t, skus, 1)
	assert.Equal(t, "B", skus[0].ID)

	assert.Equal(t, http.StatusNotFound, api.do(t, tok, http.MethodGet, "/inventory/missing", nil, nil))
}

func TestAddressValidationAndOwnership(t *testing.T) {
	api := newTestAPI(t, nil)
	tok := api.token(t, "u1", "")

	var e errorBody
	require.Equal(t, http.StatusBadRequest, api.do(t, tok, http.MethodPost, "/addresses", map[string]any{
		"name": "Asha", "phone": "12345", "line1": "x", "city": "Pune", "state": "Maharashtra", "pincode": "411001",
	}, &e))
	assert.Equal(t, "invalid_address", e.Reason)
	assert.Equal(t, "phone", e.Field)

	addr := api.shopper(t, tok, nil)
	assert.Equal(t, http.StatusNotFound, api.do(t, api.token(t, "u2", ""), http.MethodDelete, "/addresses/"+addr, nil, nil))
	assert.Equal(t, http.StatusNoContent, api.do(t, tok, http.MethodPut, "/addresses/"+addr+"/default", nil, nil))

	var list []address.Address
	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodGet, "/addresses", nil, &list))
	require.Len(t, list, 1)
	assert.True(t, list[0].IsDefault)
}

func TestCartEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)
	tok := api.token(t, "u1", "")

	var lines []pricing.LineItem
	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodPost, "/cart/items", map[string]any{"skuId": "A", "quantity": 2}, &lines))
	assert.Equal(t, []pricing.LineItem{{SKUID: "A", Quantity: 2, UnitPriceAtAdd: 100}}, lines)

	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodPut, "/cart/items/A", map[string]any{"quantity": 5}, &lines))
	assert.Equal(t, 5, lines[0].Quantity)

	assert.Equal(t, http.StatusNotFound, api.do(t, tok, http.MethodPut, "/cart/items/Z", map[string]any{"quantity": 1}, nil))
	assert.Equal(t, http.StatusBadRequest, api.do(t, tok, http.MethodPost, "/cart/items", map[string]any{"skuId": "A", "quantity": 0}, nil))
	assert.Equal(t, http.StatusNotFound, api.do(t, tok, http.MethodPost, "/cart/items", map[string]any{"skuId": "nope", "quantity": 1}, nil))

	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodDelete, "/cart/items/A", nil, &lines))
	assert.Empty(t, lines)
}

func TestPlaceIsRateLimited(t *testing.T) {
	api := newTestAPI(t, NewRateLimiter(0.001, 1))
	tok := api.token(t, "u1", "")
	addr := api.shopper(t, tok, map[string]int{"A": 1})

	require.Equal(t, http.StatusOK, api.do(t, tok, http.MethodPost, "/checkout/place", placeBody("att-1", addr), nil))
	var e errorBody
	require.Equal(t, http.StatusTooManyRequests, api.do(t, tok, http.MethodPost, "/checkout/place", placeBody("att-1", addr), &e))
	assert.Equal(t, "rate_limited", e.Reason)

	// buckets are per user
	other := api.token(t, "u2", "")
	otherAddr := api.shopper(t, other, map[string]int{"A": 1})
	require.Equal(t, http.StatusOK, api.do(t, other, http.MethodPost, "/checkout/place", placeBody("att-2", otherAddr), nil))
}
