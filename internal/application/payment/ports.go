package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Charger runs a single checkout attempt. Implemented by Orchestrator.
type Charger interface {
	Charge(ctx context.Context, in ChargeInput) (*ChargeResult, error)
}

// Refunder refunds a paid order. Implemented by Orchestrator.
type Refunder interface {
	Refund(ctx context.Context, in RefundInput) bool
}

// RefundRequest is a queued refund for the batch worker.
type RefundRequest struct {
	OrderID uuid.UUID       `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason,omitempty"`
}

// RefundQueue hands refunds to the background worker.
type RefundQueue interface {
	Enqueue(ctx context.Context, req RefundRequest) (string, error)
}
