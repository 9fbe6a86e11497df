package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultGatewayHost     = "https://api.blockchyp.com"
	DefaultTestGatewayHost = "https://test.blockchyp.com"

	chargePath  = "/api/charge"
	reversePath = "/api/reverse"
	refundPath  = "/api/refund"

	maxResponseBytes = 1 << 20
)

// Credentials identify and sign requests for one merchant account.
type Credentials struct {
	APIKey      string
	BearerToken string
	SigningKey  string // hex encoded
}

// Settings is the immutable client configuration, built once at startup.
type Settings struct {
	Credentials     Credentials
	GatewayHost     string
	TestGatewayHost string
	Timeout         time.Duration
}

// Host returns the base URL for live or test traffic.
func (s Settings) Host(test bool) string {
	if test {
		if s.TestGatewayHost != "" {
			return strings.TrimRight(s.TestGatewayHost, "/")
		}
		return DefaultTestGatewayHost
	}
	if s.GatewayHost != "" {
		return strings.TrimRight(s.GatewayHost, "/")
	}
	return DefaultGatewayHost
}

// HTTPClient talks to the gateway's JSON API with HMAC-signed requests.
type HTTPClient struct {
	settings Settings
	http     *http.Client
	now      func() time.Time
	nonce    func() string
}

// Option customises an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.http = c }
}

// WithClock overrides the timestamp source used for signing.
func WithClock(now func() time.Time) Option {
	return func(h *HTTPClient) { h.now = now }
}

// WithNonce overrides the nonce generator used for signing.
func WithNonce(nonce func() string) Option {
	return func(h *HTTPClient) { h.nonce = nonce }
}

// NewHTTPClient creates a gateway client for the given settings.
func NewHTTPClient(settings Settings, opts ...Option) *HTTPClient {
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &HTTPClient{
		settings: settings,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		now: time.Now,
		nonce: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type paymentBody struct {
	Token          string `json:"token,omitempty"`
	Amount         string `json:"amount"`
	Test           bool   `json:"test"`
	PostalCode     string `json:"postalCode,omitempty"`
	Address        string `json:"address,omitempty"`
	TransactionRef string `json:"transactionRef,omitempty"`
	PaymentType    string `json:"paymentType,omitempty"`
}

type refundBody struct {
	TransactionID string `json:"transactionId"`
	Amount        string `json:"amount"`
	Test          bool   `json:"test"`
}

type responseBody struct {
	Success             bool   `json:"success"`
	Approved            bool   `json:"approved"`
	ResponseDescription string `json:"responseDescription"`
	TransactionID       string `json:"transactionId"`
	TransactionRef      string `json:"transactionRef"`
	AuthCode            string `json:"authCode"`
	PaymentType         string `json:"paymentType"`
	MaskedPAN           string `json:"maskedPan"`
	AVSResponse         string `json:"avsResponse"`
	AuthorizedAmount    string `json:"authorizedAmount"`
}

// Charge authorizes and captures a tokenized card.
func (c *HTTPClient) Charge(ctx context.Context, req PaymentRequest) (*Response, error) {
	if req.IsReversal() {
		return nil, domainErrors.NewDomainError("invalid_request", "charge request must not carry the reversal marker", domainErrors.ErrInvalidRequest)
	}
	return c.post(ctx, req.Test, chargePath, toPaymentBody(req))
}

// Reverse voids a charge identified by its transaction ref.
func (c *HTTPClient) Reverse(ctx context.Context, req PaymentRequest) (*Response, error) {
	if !req.IsReversal() {
		req = req.ForReversal()
	}
	return c.post(ctx, req.Test, reversePath, toPaymentBody(req))
}

// Refund returns funds against a settled transaction.
func (c *HTTPClient) Refund(ctx context.Context, req RefundRequest) (*Response, error) {
	if req.TransactionID == "" {
		return nil, domainErrors.NewDomainError("invalid_request", "refund requires a transaction id", domainErrors.ErrInvalidRequest)
	}
	return c.post(ctx, req.Test, refundPath, refundBody{
		TransactionID: req.TransactionID,
		Amount:        req.Amount.StringFixed(2),
		Test:          req.Test,
	})
}

func toPaymentBody(req PaymentRequest) paymentBody {
	return paymentBody{
		Token:          req.Token,
		Amount:         req.Amount.StringFixed(2),
		Test:           req.Test,
		PostalCode:     req.PostalCode,
		Address:        req.Address,
		TransactionRef: req.TransactionRef,
		PaymentType:    req.PaymentType,
	}
}

func (c *HTTPClient) post(ctx context.Context, test bool, path string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.settings.Host(test)+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	if err := c.sign(httpReq); err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, domainErrors.NewTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domainErrors.NewTransportError(fmt.Errorf("read gateway response: %w", err))
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, domainErrors.NewTransportError(fmt.Errorf("gateway returned status %d", resp.StatusCode))
	}

	var rb responseBody
	if err := json.Unmarshal(raw, &rb); err != nil {
		return nil, domainErrors.NewTransportError(fmt.Errorf("malformed gateway response (status %d): %w", resp.StatusCode, err))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, domainErrors.NewTransportError(fmt.Errorf("gateway rejected credentials: %s", rb.ResponseDescription))
	}

	return rb.toResponse()
}

func (rb responseBody) toResponse() (*Response, error) {
	amount := decimal.Zero
	if rb.AuthorizedAmount != "" {
		d, err := decimal.NewFromString(rb.AuthorizedAmount)
		if err != nil {
			return nil, domainErrors.NewTransportError(fmt.Errorf("malformed authorized amount %q: %w", rb.AuthorizedAmount, err))
		}
		amount = d
	}
	return &Response{
		Success:             rb.Success,
		Approved:            rb.Approved,
		ResponseDescription: rb.ResponseDescription,
		TransactionID:       rb.TransactionID,
		TransactionRef:      rb.TransactionRef,
		AuthCode:            rb.AuthCode,
		PaymentType:         rb.PaymentType,
		MaskedPAN:           rb.MaskedPAN,
		AVSResponse:         AVSResponse(rb.AVSResponse),
		AuthorizedAmount:    amount,
	}, nil
}

// sign sets the Nonce, Timestamp and Authorization headers.
// signature = HMAC-SHA256(hex-decoded signing key, apiKey + bearerToken + timestamp + nonce)
func (c *HTTPClient) sign(req *http.Request) error {
	key, err := hex.DecodeString(c.settings.Credentials.SigningKey)
	if err != nil {
		return fmt.Errorf("decode signing key: %w", err)
	}
	ts := c.now().UTC().Format(time.RFC3339)
	nonce := c.nonce()

	sig := Signature(key, c.settings.Credentials.APIKey, c.settings.Credentials.BearerToken, ts, nonce)

	req.Header.Set("Nonce", nonce)
	req.Header.Set("Timestamp", ts)
	req.Header.Set("Authorization", fmt.Sprintf("Dual %s:%s:%s",
		c.settings.Credentials.BearerToken, c.settings.Credentials.APIKey, sig))
	return nil
}

// Signature computes the hex request signature.
func Signature(key []byte, apiKey, bearerToken, timestamp, nonce string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(apiKey + bearerToken + timestamp + nonce))
	return hex.EncodeToString(mac.Sum(nil))
}
