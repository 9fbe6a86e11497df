// Package gateway holds the typed contract with the card-payment gateway and
// its HTTP implementation.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// SkipReversalCache is the payment type override sent on every reversal so the
// gateway does not answer it from its duplicate-request cache.
const SkipReversalCache = "skip-reversal-cache"

// AVSResponse is the gateway's address verification outcome.
type AVSResponse string

const (
	AVSMatch           AVSResponse = "match"
	AVSAddressMatch    AVSResponse = "address_match"
	AVSPostalCodeMatch AVSResponse = "postal_code_match"
	AVSNoMatch         AVSResponse = "no_match"
	AVSUnavailable     AVSResponse = "unavailable"
	AVSNotApplicable   AVSResponse = "not_applicable"
	AVSNotSupported    AVSResponse = "not_supported"
	AVSNoResponse      AVSResponse = "no_response"
)

// Mismatch reports whether the issuer rejected the billing address outright.
// Partial matches and "could not check" outcomes are not mismatches.
func (a AVSResponse) Mismatch() bool {
	return a == AVSNoMatch
}

// String returns the wire value, or "unavailable" when the gateway sent none.
func (a AVSResponse) String() string {
	if a == "" {
		return string(AVSUnavailable)
	}
	return string(a)
}

// PaymentRequest is a charge or reversal request. It is a value type: build a
// fresh one per attempt and derive the reversal with ForReversal.
type PaymentRequest struct {
	Token          string
	Amount         decimal.Decimal
	Test           bool
	PostalCode     string
	Address        string
	TransactionRef string
	PaymentType    string
}

// ForReversal returns a copy of the request marked to bypass the gateway's reversal cache.
func (r PaymentRequest) ForReversal() PaymentRequest {
	r.PaymentType = SkipReversalCache
	return r
}

// IsReversal reports whether the request carries the reversal marker.
func (r PaymentRequest) IsReversal() bool {
	return r.PaymentType == SkipReversalCache
}

// RefundRequest refunds part or all of a settled transaction.
type RefundRequest struct {
	TransactionID string
	Amount        decimal.Decimal
	Test          bool
}

// Response is the gateway's answer to any of the three operations.
type Response struct {
	Success             bool
	Approved            bool
	ResponseDescription string
	TransactionID       string
	TransactionRef      string
	AuthCode            string
	PaymentType         string
	MaskedPAN           string
	AVSResponse         AVSResponse
	AuthorizedAmount    decimal.Decimal
}

// OK reports whether the gateway both processed and approved the request.
func (r *Response) OK() bool {
	return r != nil && r.Success && r.Approved
}

// Client is the gateway operations the orchestrator depends on. An error means
// no usable response was obtained; declines come back as a Response with OK() false.
type Client interface {
	Charge(ctx context.Context, req PaymentRequest) (*Response, error)
	Reverse(ctx context.Context, req PaymentRequest) (*Response, error)
	Refund(ctx context.Context, req RefundRequest) (*Response, error)
}
