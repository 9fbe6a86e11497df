package payment

import (
	"context"
	"fmt"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/order"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProcessRefundUseCase is the admin refund entry point.
type ProcessRefundUseCase struct {
	orders   order.Repository
	refunder Refunder
	testMode bool
}

// NewProcessRefundUseCase creates a new ProcessRefundUseCase.
func NewProcessRefundUseCase(orders order.Repository, refunder Refunder, testMode bool) *ProcessRefundUseCase {
	return &ProcessRefundUseCase{orders: orders, refunder: refunder, testMode: testMode}
}

// Execute refunds amount on the order. Only a missing order or an invalid
// amount are errors; gateway outcomes are reported through the boolean.
func (uc *ProcessRefundUseCase) Execute(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, reason string) (bool, error) {
	if !amount.IsPositive() {
		return false, domainErrors.NewValidationError("amount", "must be positive")
	}
	o, err := uc.orders.GetByID(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("load order: %w", err)
	}
	if o == nil {
		return false, domainErrors.ErrOrderNotFound
	}

	return uc.refunder.Refund(ctx, RefundInput{
		OrderID: o.ID,
		Amount:  amount,
		Reason:  reason,
		Test:    uc.testMode,
	}), nil
}

// EnqueueRefundsUseCase queues refunds for the batch worker.
type EnqueueRefundsUseCase struct {
	queue RefundQueue
}

func NewEnqueueRefundsUseCase(queue RefundQueue) *EnqueueRefundsUseCase {
	return &EnqueueRefundsUseCase{queue: queue}
}

// Execute enqueues every request and returns the message ids in order.
// It stops at the first queue error.
func (uc *EnqueueRefundsUseCase) Execute(ctx context.Context, reqs []RefundRequest) ([]string, error) {
	ids := make([]string, 0, len(reqs))
	for i, r := range reqs {
		if r.OrderID == uuid.Nil {
			return ids, domainErrors.NewValidationError(fmt.Sprintf("refunds[%d].order_id", i), "is required")
		}
		if !r.Amount.IsPositive() {
			return ids, domainErrors.NewValidationError(fmt.Sprintf("refunds[%d].amount", i), "must be positive")
		}
	}
	for _, r := range reqs {
		id, err := uc.queue.Enqueue(ctx, r)
		if err != nil {
			return ids, fmt.Errorf("enqueue refund for order %s: %w", r.OrderID, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
