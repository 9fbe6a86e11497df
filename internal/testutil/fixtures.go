package testutil

import (
	"time"

	"github.com/cassiomorais/checkout/internal/domain/order"
	"github.com/cassiomorais/checkout/internal/gateway"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewTestOrder returns a pending order for total (e.g. "19.99").
func NewTestOrder(total string) *order.Order {
	now := time.Now()
	return &order.Order{
		ID:        uuid.New(),
		Status:    order.StatusPending,
		Total:     decimal.RequireFromString(total),
		Currency:  "USD",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewPaidOrder returns an order already settled under transactionID.
func NewPaidOrder(total, transactionID string) *order.Order {
	o := NewTestOrder(total)
	o.Status = order.StatusPaid
	o.TransactionID = &transactionID
	paidAt := time.Now()
	o.PaidAt = &paidAt
	return o
}

// ApprovedResponse is a successful charge with AVS unavailable.
func ApprovedResponse(transactionID, amount string) *gateway.Response {
	return &gateway.Response{
		Success:             true,
		Approved:            true,
		ResponseDescription: "approved",
		TransactionID:       transactionID,
		AuthCode:            "AUTH01",
		PaymentType:         "VISA",
		MaskedPAN:           "************1111",
		AVSResponse:         gateway.AVSUnavailable,
		AuthorizedAmount:    decimal.RequireFromString(amount),
	}
}

// DeclinedResponse is a processed but unapproved charge.
func DeclinedResponse(description string) *gateway.Response {
	return &gateway.Response{
		Success:             true,
		Approved:            false,
		ResponseDescription: description,
	}
}
