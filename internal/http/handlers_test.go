package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/address"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/cart"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/catalog"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/checkout"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/coupon"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/delivery"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/events"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/orders"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type MenuMock struct {
	items []*catalog.Item
	err   error
}

func (m MenuMock) ListItems(_ context.Context, category string) ([]*catalog.Item, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*catalog.Item
	for _, it := range m.items {
		if category == "" || it.Category == category {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m MenuMock) FindItem(_ context.Context, id string) (*catalog.Item, error) {
	for _, it := range m.items {
		if it.ID == id {
			return it, nil
		}
	}
	return nil, catalog.ErrItemNotFound
}

type CouponsMock struct {
	err error
}

func (m CouponsMock) Validate(_ context.Context, code string, amount money.Amount) (*coupon.Validation, error) {
	if m.err != nil {
		return nil, m.err
	}
	if code != "BIENVENUE5" {
		return &coupon.Validation{Code: code, Reason: coupon.ReasonNotFound, Message: coupon.ReasonNotFound.Message()}, nil
	}
	discount := money.MustParse("5.00")
	return &coupon.Validation{Valid: true, CouponID: uuid.NewString(), Code: code, DiscountAmount: discount, NewTotal: amount.Sub(discount)}, nil
}

func (m CouponsMock) Apply(context.Context, string, string) error {
	return m.err
}

type OrdersMock struct {
	mu    sync.Mutex
	byKey map[string]*orders.Record
	err   error
}

func newOrdersMock() *OrdersMock {
	return &OrdersMock{byKey: map[string]*orders.Record{}}
}

func (m *OrdersMock) CreateOrder(_ context.Context, order domain.Order, key string) (*domain.Confirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if rec, ok := m.byKey[key]; ok {
		return rec.Confirmation(true), nil
	}
	rec := &orders.Record{
		ID:        uuid.New(),
		Status:    orders.StatusConfirmed,
		Items:     order.Items,
		Totals:    order.Totals,
		Client:    order.Client,
		CreatedAt: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	m.byKey[key] = rec
	return rec.Confirmation(false), nil
}

func (m *OrdersMock) GetOrder(_ context.Context, id string) (*orders.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.byKey {
		if rec.ID.String() == id {
			return rec, nil
		}
	}
	return nil, orders.ErrOrderNotFound
}

// --- helpers ---

var testZone = time.FixedZone("CET", 3600)

type testAPI struct {
	handler http.Handler
	orders  *OrdersMock
}

func newTestAPI() *testAPI {
	menu := MenuMock{items: []*catalog.Item{
		{ID: "5", Name: "Confit de canard", Category: "plats", Price: money.MustParse("24.00"), Available: true},
		{ID: "7", Name: "Tarte Tatin", Category: "desserts", Price: money.MustParse("8.00"), Available: true},
	}}
	bus := events.NewBus()
	store := cart.NewStore(cart.NewMemoryStorage(), menu, bus, nil)
	zones := address.NewZoneValidator(map[string]float64{"69001": 1.2}, 5)
	ordersMock := newOrdersMock()
	coupons := CouponsMock{}

	ctrl := checkout.NewController(checkout.Deps{
		Cart:   store,
		States: checkout.NewMemoryStateStore(),
		Delivery: delivery.NewSelector(
			delivery.NewPickupStrategy(),
			delivery.NewHomeDeliveryStrategy(zones, money.MustParse("3.00")),
		),
		Pricing: pricing.NewVAT(decimal.RequireFromString("0.10")),
		Coupons: coupons,
		Orders:  ordersMock,
		Bus:     bus,
	}, checkout.Config{Timeout: time.Second, RetryBackoff: time.Millisecond, Location: testZone}, nil).
		WithClock(func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, testZone) })

	return &testAPI{
		handler: NewRouter(RouterConfig{
			RequestTimeout: 5 * time.Second,
			Menu:           NewMenuHandler(menu, time.Second),
			Cart:           NewCartHandler(store, time.Second),
			Checkout:       NewCheckoutHandler(ctrl),
			Address:        NewAddressHandler(zones, time.Second),
			Coupons:        NewCouponHandler(coupons, time.Second),
			Orders:         NewOrdersHandler(ordersMock, time.Second),
		}),
		orders: ordersMock,
	}
}

func (a *testAPI) do(t *testing.T, method, path, sessionID string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if sessionID != "" {
		req.Header.Set(HeaderSessionID, sessionID)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

// --- tests ---

func TestHealth(t *testing.T) {
	api := newTestAPI()
	rec, body := api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestHealth_Degraded(t *testing.T) {
	h := NewRouter(RouterConfig{HealthChecks: map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestMenu_FilterByCategory(t *testing.T) {
	api := newTestAPI()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/menu?category=desserts", nil)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var items []catalog.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Tarte Tatin", items[0].Name)
}

func TestSession_CookieIssued(t *testing.T) {
	api := newTestAPI()
	rec, _ := api.do(t, http.MethodGet, "/api/v1/cart/count", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieSessionID, cookies[0].Name)
	assert.Equal(t, cookies[0].Value, rec.Header().Get(HeaderSessionID))
}

func TestSession_CookieReused(t *testing.T) {
	api := newTestAPI()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", bytes.NewBufferString(`{"item_id":"5"}`))
	req.AddCookie(&http.Cookie{Name: CookieSessionID, Value: "from-cookie"})
	api.handler.ServeHTTP(httptest.NewRecorder(), req)

	rec, body := api.do(t, http.MethodGet, "/api/v1/cart/count", "from-cookie", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
}

func TestCart_AddUpdateRemove(t *testing.T) {
	api := newTestAPI()

	rec, body := api.do(t, http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ItemID: "5", Quantity: 2})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "48.00", body["total"])
	assert.Equal(t, float64(2), body["count"])

	rec, body = api.do(t, http.MethodPut, "/api/v1/cart/items/7", "s1", UpdateQuantityRequestDTO{Quantity: 3})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "72.00", body["total"])

	rec, body = api.do(t, http.MethodDelete, "/api/v1/cart/items/5", "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "48.00", body["total"])
	assert.Equal(t, float64(4), body["count"])

	// another session sees its own cart
	_, body = api.do(t, http.MethodGet, "/api/v1/cart", "s2", nil)
	assert.Equal(t, "0.00", body["total"])
}

func TestCart_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"bad json", http.MethodPost, "/api/v1/cart/items", "{", http.StatusBadRequest, "invalid_request"},
		{"missing item", http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{Quantity: 1}, http.StatusBadRequest, "invalid_item_id"},
		{"quantity too large", http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ItemID: "5", Quantity: 100}, http.StatusBadRequest, "invalid_quantity"},
		{"unknown item", http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ItemID: "404", Quantity: 1}, http.StatusNotFound, "not_found"},
		{"clear without confirm", http.MethodDelete, "/api/v1/cart", ClearCartRequestDTO{}, http.StatusBadRequest, "confirmation_required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI()
			rec, body := api.do(t, tt.method, tt.path, "s1", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestCart_ClearConfirmed(t *testing.T) {
	api := newTestAPI()
	api.do(t, http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ItemID: "5", Quantity: 1})

	rec, body := api.do(t, http.MethodDelete, "/api/v1/cart", "s1", ClearCartRequestDTO{Confirm: true})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["count"])
}

func TestCheckout_FullFlow(t *testing.T) {
	api := newTestAPI()
	api.do(t, http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ItemID: "5", Quantity: 1})

	rec, _ := api.do(t, http.MethodPost, "/api/v1/checkout/step", "s1", GoToStepRequestDTO{Target: 2})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = api.do(t, http.MethodPut, "/api/v1/checkout/delivery", "s1", checkout.DeliveryInput{Mode: "PICKUP", Date: "2026-03-14", Time: "19:30"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = api.do(t, http.MethodPost, "/api/v1/checkout/step", "s1", GoToStepRequestDTO{Target: 3})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = api.do(t, http.MethodPut, "/api/v1/checkout/payment", "s1", PaymentRequestDTO{Mode: "CARD"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, body := api.do(t, http.MethodPost, "/api/v1/checkout/step", "s1", GoToStepRequestDTO{Target: 4})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, body["summary"])

	rec, body = api.do(t, http.MethodGet, "/api/v1/checkout/summary", "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "24.00", body["totals"].(map[string]interface{})["total"])

	submit := checkout.SubmitRequest{TermsAccepted: true, Client: domain.ClientInfo{Name: "Camille", Phone: "0478000000"}, IdempotencyKey: "attempt-1"}
	rec, body = api.do(t, http.MethodPost, "/api/v1/checkout/submit", "s1", submit)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := body["confirmation"].(map[string]interface{})
	assert.Equal(t, false, first["replayed"])

	rec, body = api.do(t, http.MethodPost, "/api/v1/checkout/submit", "s1", submit)
	require.Equal(t, http.StatusOK, rec.Code)
	second := body["confirmation"].(map[string]interface{})
	assert.Equal(t, first["order_id"], second["order_id"])
	assert.Equal(t, true, second["replayed"])

	_, body = api.do(t, http.MethodGet, "/api/v1/cart/count", "s1", nil)
	assert.Equal(t, float64(0), body["count"])
}

func TestCheckout_Errors(t *testing.T) {
	api := newTestAPI()

	// empty cart blocks step 2
	rec, body := api.do(t, http.MethodPost, "/api/v1/checkout/step", "s1", GoToStepRequestDTO{Target: 2})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, false, body["result"].(map[string]interface{})["valid"])

	// skipping is refused
	api.do(t, http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ItemID: "5", Quantity: 1})
	rec, body = api.do(t, http.MethodPost, "/api/v1/checkout/step", "s1", GoToStepRequestDTO{Target: 3})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", body["code"])

	rec, _ = api.do(t, http.MethodPost, "/api/v1/checkout/step", "s1", GoToStepRequestDTO{Target: 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(t, http.MethodPost, "/api/v1/checkout/back", "s1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = api.do(t, http.MethodGet, "/api/v1/checkout/summary", "s1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = api.do(t, http.MethodPost, "/api/v1/checkout/submit", "s1", checkout.SubmitRequest{TermsAccepted: true})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCheckout_UnserviceableAddress(t *testing.T) {
	api := newTestAPI()
	api.do(t, http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ItemID: "5", Quantity: 1})
	api.do(t, http.MethodPost, "/api/v1/checkout/step", "s1", GoToStepRequestDTO{Target: 2})

	addr, zip := "1 place Bellecour", "75001"
	rec, body := api.do(t, http.MethodPut, "/api/v1/checkout/delivery", "s1",
		checkout.DeliveryInput{Mode: "DELIVERY", Date: "2026-03-14", Time: "19:30", Address: &addr, Zip: &zip})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	result := body["result"].(map[string]interface{})
	assert.Contains(t, result["message"], "we do not deliver to this postal code")
}

func TestCheckout_Coupon(t *testing.T) {
	api := newTestAPI()
	api.do(t, http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ItemID: "5", Quantity: 2})

	rec, body := api.do(t, http.MethodPost, "/api/v1/checkout/coupon", "s1", CouponRequestDTO{Code: "BIENVENUE5"})
	require.Equal(t, http.StatusOK, rec.Code)
	state := body["state"].(map[string]interface{})
	assert.Equal(t, "43.00", state["totals"].(map[string]interface{})["total"])

	rec, _ = api.do(t, http.MethodPost, "/api/v1/checkout/coupon", "s1", CouponRequestDTO{Code: "NOPE"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, body = api.do(t, http.MethodDelete, "/api/v1/checkout/coupon", "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state = body["state"].(map[string]interface{})
	assert.Equal(t, "48.00", state["totals"].(map[string]interface{})["total"])
}

func TestAddressEndpoints(t *testing.T) {
	api := newTestAPI()

	rec, body := api.do(t, http.MethodPost, "/api/v1/address/validate", "", AddressRequestDTO{Address: "12 rue de la République", Zip: "69001"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, 1.2, body["distance"])

	rec, body = api.do(t, http.MethodPost, "/api/v1/zip/validate", "", AddressRequestDTO{Zip: "6900"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["valid"])
}

func TestCouponEndpoints(t *testing.T) {
	api := newTestAPI()

	rec, body := api.do(t, http.MethodPost, "/api/v1/coupons/validate", "", CouponValidateRequestDTO{Code: "BIENVENUE5", Amount: money.MustParse("40.00")})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "35.00", body["new_total"])

	rec, _ = api.do(t, http.MethodPost, "/api/v1/coupons/apply", "", CouponApplyRequestDTO{CouponID: uuid.NewString()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrders_CreateAndGet(t *testing.T) {
	api := newTestAPI()
	order := domain.Order{Items: []domain.CartLine{{ItemID: "5", Name: "Confit de canard", UnitPrice: money.MustParse("24.00"), Quantity: 1}}}

	post := func(key string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(order))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", &buf)
		if key != "" {
			req.Header.Set(HeaderIdempotencyKey, key)
		}
		rec := httptest.NewRecorder()
		api.handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusBadRequest, post("").Code)

	rec := post("key-1")
	require.Equal(t, http.StatusCreated, rec.Code)
	var conf domain.Confirmation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conf))
	assert.False(t, conf.Replayed)

	rec = post("key-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var replay domain.Confirmation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &replay))
	assert.True(t, replay.Replayed)
	assert.Equal(t, conf.OrderID, replay.OrderID)

	getRec, body := api.do(t, http.MethodGet, "/api/v1/orders/"+conf.OrderID, "", nil)
	require.Equal(t, http.StatusOK, getRec.Code)
	assert.Equal(t, "CONFIRMED", body["status"])
	assert.Len(t, body["items"], 1)

	getRec, _ = api.do(t, http.MethodGet, "/api/v1/orders/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, getRec.Code)
}

func TestHandleError_Mapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&checkout.ValidationError{Result: domain.Invalid("phone", "phone number is required")}, http.StatusUnprocessableEntity, "validation_failed"},
		{&domain.ExternalServiceError{Service: "orders", Op: "create_order", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, "timeout"},
		{&domain.ExternalServiceError{Service: "orders", Op: "create_order", StatusCode: 503, Err: errors.New("down")}, http.StatusBadGateway, "service_unavailable"},
		{&delivery.ConfigurationError{Mode: domain.DeliveryModeDelivery}, http.StatusInternalServerError, "configuration_error"},
		{fmt.Errorf("wrapped: %w", checkout.ErrIllegalTransition), http.StatusConflict, "conflict"},
		{delivery.ErrSuperseded, http.StatusConflict, "conflict"},
		{orders.ErrOrderNotFound, http.StatusNotFound, "not_found"},
		{checkout.ErrTermsNotAccepted, http.StatusUnprocessableEntity, "validation_failed"},
		{fmt.Errorf("redeem coupon: %w", coupon.ErrCouponExhausted), http.StatusConflict, "conflict"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleError(context.Background(), rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestHandleError_SubmitErrorEchoesKey(t *testing.T) {
	err := &checkout.SubmitError{
		Key: "01J8Z6Q4N4V3J1M0X9R7K2B5C8",
		Err: fmt.Errorf("submit order: %w", &domain.ExternalServiceError{Service: "orders", Op: "create_order", StatusCode: 503, Err: errors.New("down")}),
	}
	rec := httptest.NewRecorder()
	handleError(context.Background(), rec, err)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "01J8Z6Q4N4V3J1M0X9R7K2B5C8", rec.Header().Get(HeaderIdempotencyKey))
}

func TestRequestIDMiddleware(t *testing.T) {
	api := newTestAPI()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}
