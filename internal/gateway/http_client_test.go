package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "0a1b2c3d4e5f60718293a4b5c6d7e8f9"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewHTTPClient(Settings{
		Credentials: Credentials{
			APIKey:      "api-key",
			BearerToken: "bearer",
			SigningKey:  testSigningKey,
		},
		GatewayHost:     srv.URL,
		TestGatewayHost: srv.URL + "/sandbox",
		Timeout:         5 * time.Second,
	},
		WithHTTPClient(srv.Client()),
		WithClock(func() time.Time { return fixedNow }),
		WithNonce(func() string { return "nonce-1" }),
	)
	return c, srv
}

func TestHTTPClient_Charge_SendsSignedRequest(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	var gotHeaders http.Header

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeaders = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":          true,
			"approved":         true,
			"transactionId":    "tx-1",
			"authCode":         "A1",
			"paymentType":      "VISA",
			"maskedPan":        "************1111",
			"avsResponse":      "match",
			"authorizedAmount": "19.99",
		})
	})

	resp, err := c.Charge(context.Background(), PaymentRequest{
		Token:          "tok",
		Amount:         decimal.RequireFromString("19.99"),
		PostalCode:     "12345",
		Address:        "1 Main St",
		TransactionRef: "order-1",
	})
	require.NoError(t, err)

	assert.Equal(t, chargePath, gotPath)
	assert.Equal(t, "19.99", gotBody["amount"])
	assert.Equal(t, "order-1", gotBody["transactionRef"])
	assert.NotContains(t, gotBody, "paymentType")

	key, _ := hex.DecodeString(testSigningKey)
	ts := fixedNow.Format(time.RFC3339)
	assert.Equal(t, "nonce-1", gotHeaders.Get("Nonce"))
	assert.Equal(t, ts, gotHeaders.Get("Timestamp"))
	assert.Equal(t, "Dual bearer:api-key:"+Signature(key, "api-key", "bearer", ts, "nonce-1"), gotHeaders.Get("Authorization"))

	assert.True(t, resp.OK())
	assert.Equal(t, "tx-1", resp.TransactionID)
	assert.Equal(t, AVSMatch, resp.AVSResponse)
	assert.True(t, resp.AuthorizedAmount.Equal(decimal.RequireFromString("19.99")))
}

func TestHTTPClient_Charge_RejectsReversalMarker(t *testing.T) {
	called := false
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := c.Charge(context.Background(), PaymentRequest{Amount: decimal.NewFromInt(1)}.ForReversal())

	assert.ErrorIs(t, err, domainErrors.ErrInvalidRequest)
	assert.False(t, called)
}

func TestHTTPClient_Reverse_AlwaysCarriesMarker(t *testing.T) {
	var gotBody map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, reversePath, r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"success":true,"approved":true}`))
	})

	resp, err := c.Reverse(context.Background(), PaymentRequest{Amount: decimal.NewFromInt(5), TransactionRef: "order-2"})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, SkipReversalCache, gotBody["paymentType"])
}

func TestHTTPClient_TestModeUsesTestHost(t *testing.T) {
	var gotPath string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"success":true,"approved":true}`))
	})

	_, err := c.Refund(context.Background(), RefundRequest{TransactionID: "tx-1", Amount: decimal.NewFromInt(10), Test: true})
	require.NoError(t, err)
	assert.Equal(t, "/sandbox"+refundPath, gotPath)
}

func TestHTTPClient_DeclineIsNotAnError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"success":true,"approved":false,"responseDescription":"insufficient funds"}`))
	})

	resp, err := c.Charge(context.Background(), PaymentRequest{Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, "insufficient funds", resp.ResponseDescription)
}

func TestHTTPClient_TransportErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"server error", http.StatusBadGateway, `{"success":false}`},
		{"non json body", http.StatusOK, `<html>oops</html>`},
		{"bad credentials", http.StatusUnauthorized, `{"success":false,"responseDescription":"bad sig"}`},
		{"bad amount", http.StatusOK, `{"success":true,"approved":true,"authorizedAmount":"abc"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			})

			resp, err := c.Charge(context.Background(), PaymentRequest{Amount: decimal.NewFromInt(1)})
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, domainErrors.ErrGatewayTransport)
		})
	}
}

func TestHTTPClient_Refund_RequiresTransactionID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := c.Refund(context.Background(), RefundRequest{Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidRequest)
}

func TestSettings_Host_Defaults(t *testing.T) {
	var s Settings
	assert.Equal(t, DefaultGatewayHost, s.Host(false))
	assert.Equal(t, DefaultTestGatewayHost, s.Host(true))

	s.GatewayHost = "https://gw.example.com/"
	assert.Equal(t, "https://gw.example.com", s.Host(false))
}

func TestAVSResponse(t *testing.T) {
	assert.True(t, AVSNoMatch.Mismatch())
	for _, a := range []AVSResponse{AVSMatch, AVSAddressMatch, AVSPostalCodeMatch, AVSUnavailable, AVSNotSupported, ""} {
		assert.False(t, a.Mismatch(), string(a))
	}
	assert.Equal(t, "unavailable", AVSResponse("").String())
}
