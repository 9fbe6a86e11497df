package controller

import (
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/order"
	"github.com/shopspring/decimal"
)

// --- Request DTOs ---
// Money travels as decimal strings; validation tags catch malformed input
// before it is parsed into decimal.Decimal.

// CreateOrderRequest stands in for the host platform creating an order.
type CreateOrderRequest struct {
	Total    string `json:"total" validate:"required,numeric"`
	Currency string `json:"currency" validate:"required,len=3,uppercase"`
}

// SubmitPaymentRequest is what the checkout page posts once the card has been tokenized.
type SubmitPaymentRequest struct {
	Token      string `json:"token" validate:"required,max=512"`
	Address    string `json:"address" validate:"max=256"`
	PostalCode string `json:"postal_code" validate:"max=16"`
}

type RefundOrderRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
	Reason string `json:"reason" validate:"max=255"`
}

type BatchRefundItem struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
	Amount  string `json:"amount" validate:"required,numeric"`
	Reason  string `json:"reason" validate:"max=255"`
}

type BatchRefundRequest struct {
	Refunds []BatchRefundItem `json:"refunds" validate:"required,min=1,max=100,dive"`
}

// --- Response DTOs ---

type NoteResponse struct {
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type OrderResponse struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Total         string         `json:"total"`
	Currency      string         `json:"currency"`
	TransactionID *string        `json:"transaction_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	PaidAt        *time.Time     `json:"paid_at,omitempty"`
	Notes         []NoteResponse `json:"notes,omitempty"`
}

// PaymentResponse follows the order-completion contract: result plus where to send the shopper.
type PaymentResponse struct {
	Result        string `json:"result"`
	RedirectURL   string `json:"redirect_url,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
	Code          string `json:"code,omitempty"`
}

type RefundResponse struct {
	Refunded bool `json:"refunded"`
}

type BatchRefundResponse struct {
	Queued     int      `json:"queued"`
	MessageIDs []string `json:"message_ids"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

func FromOrder(o *order.Order, notes []*order.Note) *OrderResponse {
	resp := &OrderResponse{
		ID:            o.ID.String(),
		Status:        string(o.Status),
		Total:         o.Total.StringFixed(2),
		Currency:      o.Currency,
		TransactionID: o.TransactionID,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		PaidAt:        o.PaidAt,
	}
	for _, n := range notes {
		resp.Notes = append(resp.Notes, NoteResponse{Body: n.Body, CreatedAt: n.CreatedAt})
	}
	return resp
}

// parseAmount parses a validated numeric string and requires it to be positive.
func parseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, domainErrors.NewValidationError(field, "must be a decimal number")
	}
	if !d.IsPositive() {
		return decimal.Zero, domainErrors.NewValidationError(field, "must be greater than 0")
	}
	if d.Exponent() < -2 {
		return decimal.Zero, domainErrors.NewValidationError(field, "must have at most 2 decimal places")
	}
	return d, nil
}
