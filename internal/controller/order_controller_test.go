package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	paymentApp "github.com/cassiomorais/checkout/internal/application/payment"
	"github.com/cassiomorais/checkout/internal/checkout"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/order"
	"github.com/cassiomorais/checkout/internal/gateway"
	"github.com/cassiomorais/checkout/internal/infrastructure/config"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout/internal/repository/postgres"
	"github.com/cassiomorais/checkout/internal/testutil"
	"github.com/cassiomorais/checkout/pkg/retry"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret = "0123456789abcdef0123456789abcdef"
	testReturnURL = "https://shop.example/order-received/{order_id}"
)

type memoryIdempotency struct {
	mu      sync.Mutex
	entries map[string]*postgres.StoredResponse
}

func (m *memoryIdempotency) Get(_ context.Context, key string) (*postgres.StoredResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key], nil
}

func (m *memoryIdempotency) Save(_ context.Context, key string, status int, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &postgres.StoredResponse{Key: key, Status: status, Body: body}
	return nil
}

type testServer struct {
	router  http.Handler
	orders  *testutil.MockOrderRepository
	gateway *testutil.MockGateway
	queue   *testutil.MockRefundQueue[paymentApp.RefundRequest]
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	orders := testutil.NewMockOrderRepository()
	gw := testutil.NewMockGateway()
	queue := &testutil.MockRefundQueue[paymentApp.RefundRequest]{}
	orch := paymentApp.NewOrchestrator(gw, orders, paymentApp.WithReversalRetry(retry.Config{
		MaxAttempts:  1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
	}))
	ok := PingerFunc(func(context.Context) error { return nil })

	router := NewRouter(RouterDeps{
		DB:             ok,
		Redis:          ok,
		Orders:         orders,
		ProcessPayment: paymentApp.NewProcessPaymentUseCase(orders, orch, true, testReturnURL, zerolog.Nop()),
		ProcessRefund:  paymentApp.NewProcessRefundUseCase(orders, orch, true),
		EnqueueRefunds: paymentApp.NewEnqueueRefundsUseCase(queue),
		Idempotency:    &memoryIdempotency{entries: make(map[string]*postgres.StoredResponse)},
		Fields: checkout.Settings{
			Enabled:         true,
			TestMode:        true,
			TokenizingKey:   "tok-key",
			GatewayHost:     gateway.DefaultGatewayHost,
			TestGatewayHost: gateway.DefaultTestGatewayHost,
		},
		Metrics:     observability.NewMetrics("test", prometheus.NewRegistry()),
		Gatherer:    prometheus.NewRegistry(),
		ServiceName: "checkout-test",
		JWTSecret:   testJWTSecret,
		CORSConfig:  config.CORSConfig{AllowedOrigins: []string{"*"}},
	})

	return &testServer{router: router, orders: orders, gateway: gw, queue: queue}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func adminHeader(t *testing.T) map[string]string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "store-admin",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestOrderController_CreateAndGet(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/orders", CreateOrderRequest{Total: "25.5", Currency: "USD"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created OrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "25.50", created.Total)

	w = s.do(t, http.MethodGet, "/api/v1/orders/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/orders/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderController_Create_Invalid(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/orders", CreateOrderRequest{Total: "-3", Currency: "USD"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/orders", CreateOrderRequest{Total: "3", Currency: "usd"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderController_SubmitPayment_Success(t *testing.T) {
	s := newTestServer(t)
	o := testutil.NewTestOrder("19.99")
	s.orders.AddOrder(o)

	w := s.do(t, http.MethodPost, "/api/v1/orders/"+o.ID.String()+"/payment",
		SubmitPaymentRequest{Token: "tok_123", Address: "1 Main St", PostalCode: "12345"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp PaymentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, paymentApp.ResultSuccess, resp.Result)
	assert.Equal(t, "https://shop.example/order-received/"+o.ID.String(), resp.RedirectURL)
	assert.Equal(t, "tx-"+o.ID.String(), resp.TransactionID)

	require.Len(t, s.gateway.Charges, 1)
	assert.True(t, s.gateway.Charges[0].Test)
	assert.Equal(t, order.StatusPaid, s.orders.Order(o.ID).Status)

	w = s.do(t, http.MethodGet, "/api/v1/orders/"+o.ID.String(), nil, nil)
	var got OrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.NotEmpty(t, got.Notes)
	assert.True(t, strings.HasPrefix(got.Notes[len(got.Notes)-1].Body, "Payment approved."))
}

func TestOrderController_SubmitPayment_Declined(t *testing.T) {
	s := newTestServer(t)
	o := testutil.NewTestOrder("19.99")
	s.orders.AddOrder(o)
	s.gateway.ChargeFunc = func(ctx context.Context, req gateway.PaymentRequest) (*gateway.Response, error) {
		return testutil.DeclinedResponse("Insufficient funds"), nil
	}

	w := s.do(t, http.MethodPost, "/api/v1/orders/"+o.ID.String()+"/payment", SubmitPaymentRequest{Token: "tok"}, nil)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	var resp PaymentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, paymentApp.ResultFailure, resp.Result)
	assert.Equal(t, "declined", resp.Code)
	assert.Equal(t, "Insufficient funds", resp.Error)
	assert.Empty(t, resp.RedirectURL)
	assert.Equal(t, []string{"charge", "reverse"}, s.gateway.CallLog())
	assert.Equal(t, order.StatusFailed, s.orders.Order(o.ID).Status)
}

func TestOrderController_SubmitPayment_AVSMismatch(t *testing.T) {
	s := newTestServer(t)
	o := testutil.NewTestOrder("5.00")
	s.orders.AddOrder(o)
	s.gateway.ChargeFunc = func(ctx context.Context, req gateway.PaymentRequest) (*gateway.Response, error) {
		r := testutil.ApprovedResponse("tx-1", "5.00")
		r.AVSResponse = gateway.AVSNoMatch
		return r, nil
	}

	w := s.do(t, http.MethodPost, "/api/v1/orders/"+o.ID.String()+"/payment", SubmitPaymentRequest{Token: "tok"}, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "avs_mismatch")
}

func TestOrderController_SubmitPayment_Transport(t *testing.T) {
	s := newTestServer(t)
	o := testutil.NewTestOrder("5.00")
	s.orders.AddOrder(o)
	s.gateway.ChargeFunc = func(ctx context.Context, req gateway.PaymentRequest) (*gateway.Response, error) {
		return nil, domainErrors.NewTransportError(errors.New("boom"))
	}

	w := s.do(t, http.MethodPost, "/api/v1/orders/"+o.ID.String()+"/payment", SubmitPaymentRequest{Token: "tok"}, nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestOrderController_SubmitPayment_AlreadyPaid(t *testing.T) {
	s := newTestServer(t)
	o := testutil.NewPaidOrder("5.00", "tx-9")
	s.orders.AddOrder(o)

	w := s.do(t, http.MethodPost, "/api/v1/orders/"+o.ID.String()+"/payment", SubmitPaymentRequest{Token: "tok"}, nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, s.gateway.CallLog())
}

func TestOrderController_SubmitPayment_NotFound(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/orders/6f1c2d3e-4a5b-4c6d-8e7f-0a1b2c3d4e5f/payment", SubmitPaymentRequest{Token: "tok"}, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrderController_SubmitPayment_IdempotentReplay(t *testing.T) {
	s := newTestServer(t)
	o := testutil.NewTestOrder("19.99")
	s.orders.AddOrder(o)
	headers := map[string]string{"Idempotency-Key": "attempt-1"}
	path := "/api/v1/orders/" + o.ID.String() + "/payment"

	first := s.do(t, http.MethodPost, path, SubmitPaymentRequest{Token: "tok"}, headers)
	second := s.do(t, http.MethodPost, path, SubmitPaymentRequest{Token: "tok"}, headers)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Len(t, s.gateway.Charges, 1)
}

func TestOrderController_Refund(t *testing.T) {
	s := newTestServer(t)
	o := testutil.NewPaidOrder("30.00", "tx-42")
	s.orders.AddOrder(o)
	path := "/api/v1/orders/" + o.ID.String() + "/refunds"

	w := s.do(t, http.MethodPost, path, RefundOrderRequest{Amount: "10.00", Reason: "damaged"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, path, RefundOrderRequest{Amount: "10.00", Reason: "damaged"}, adminHeader(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"refunded":true}`, w.Body.String())
	require.Len(t, s.gateway.Refunds, 1)
	assert.Equal(t, "tx-42", s.gateway.Refunds[0].TransactionID)
	assert.Equal(t, "10.00", s.gateway.Refunds[0].Amount.StringFixed(2))
}

func TestOrderController_Refund_Declined(t *testing.T) {
	s := newTestServer(t)
	o := testutil.NewPaidOrder("30.00", "tx-42")
	s.orders.AddOrder(o)
	s.gateway.RefundFunc = func(ctx context.Context, req gateway.RefundRequest) (*gateway.Response, error) {
		return testutil.DeclinedResponse("Refund exceeds original"), nil
	}

	w := s.do(t, http.MethodPost, "/api/v1/orders/"+o.ID.String()+"/refunds", RefundOrderRequest{Amount: "40.00"}, adminHeader(t))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"refunded":false}`, w.Body.String())
	assert.Contains(t, s.orders.NoteBodies(o.ID), "Refund failed: Refund exceeds original")
}

func TestOrderController_BatchRefund(t *testing.T) {
	s := newTestServer(t)
	a := testutil.NewPaidOrder("10.00", "tx-a")
	b := testutil.NewPaidOrder("20.00", "tx-b")

	body := BatchRefundRequest{Refunds: []BatchRefundItem{
		{OrderID: a.ID.String(), Amount: "10.00"},
		{OrderID: b.ID.String(), Amount: "5.25", Reason: "late"},
	}}
	w := s.do(t, http.MethodPost, "/api/v1/refunds/batch", body, adminHeader(t))

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp BatchRefundResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Queued)
	require.Len(t, s.queue.Items, 2)
	assert.Equal(t, b.ID, s.queue.Items[1].OrderID)
	assert.Equal(t, "5.25", s.queue.Items[1].Amount.StringFixed(2))
	assert.Empty(t, s.gateway.CallLog())
}

func TestOrderController_BatchRefund_InvalidItem(t *testing.T) {
	s := newTestServer(t)

	body := BatchRefundRequest{Refunds: []BatchRefundItem{
		{OrderID: "6f1c2d3e-4a5b-4c6d-8e7f-0a1b2c3d4e5f", Amount: "1.00"},
		{OrderID: "6f1c2d3e-4a5b-4c6d-8e7f-0a1b2c3d4e5f", Amount: "0"},
	}}
	w := s.do(t, http.MethodPost, "/api/v1/refunds/batch", body, adminHeader(t))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "refunds[1].amount")
	assert.Empty(t, s.queue.Items)
}

func TestCheckoutController_Fields(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/checkout/fields", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var fields checkout.Fields
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fields))
	assert.True(t, fields.Test)
	assert.Equal(t, checkout.SecureInputID, fields.ElementID)
	assert.True(t, strings.HasPrefix(fields.ScriptURL, gateway.DefaultTestGatewayHost))
}

func TestCheckoutController_Fields_Disabled(t *testing.T) {
	h := NewCheckoutController(checkout.Settings{Enabled: false})
	w := httptest.NewRecorder()

	h.Fields(w, httptest.NewRequest(http.MethodGet, "/api/v1/checkout/fields", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthController_Readiness(t *testing.T) {
	ok := PingerFunc(func(context.Context) error { return nil })
	down := PingerFunc(func(context.Context) error { return errors.New("down") })

	tests := []struct {
		name   string
		db     Pinger
		redis  Pinger
		status int
		reason string
	}{
		{"ready", ok, ok, http.StatusOK, ""},
		{"db down", down, ok, http.StatusServiceUnavailable, "database unavailable"},
		{"redis down", ok, down, http.StatusServiceUnavailable, "redis unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthController(tt.db, tt.redis)
			w := httptest.NewRecorder()
			h.Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.status, w.Code)
			if tt.reason != "" {
				assert.Contains(t, w.Body.String(), tt.reason)
			}
		})
	}
}

func TestRouter_GatewayDisabled(t *testing.T) {
	orders := testutil.NewMockOrderRepository()
	o := testutil.NewTestOrder("5.00")
	orders.AddOrder(o)
	gw := testutil.NewMockGateway()

	router := NewRouter(RouterDeps{
		Orders:         orders,
		ProcessPayment: paymentApp.NewProcessPaymentUseCase(orders, paymentApp.NewOrchestrator(gw, orders), false, testReturnURL, zerolog.Nop()),
		Idempotency:    &memoryIdempotency{entries: make(map[string]*postgres.StoredResponse)},
		Fields:         checkout.Settings{Enabled: false},
		Metrics:        observability.NewMetrics("test", prometheus.NewRegistry()),
		JWTSecret:      testJWTSecret,
	})

	s := &testServer{router: router, orders: orders, gateway: gw}
	w := s.do(t, http.MethodPost, "/api/v1/orders/"+o.ID.String()+"/payment", SubmitPaymentRequest{Token: "tok"}, nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "gateway_disabled")
	assert.Empty(t, gw.CallLog())
}
