package order

import (
	"time"

	"github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the payment state of an order
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// Order is the host platform's order record as seen by the checkout service.
type Order struct {
	ID            uuid.UUID
	Status        Status
	Total         decimal.Decimal
	Currency      string
	TransactionID *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PaidAt        *time.Time
}

// Note is one append-only entry in an order's audit trail.
type Note struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Body      string
	CreatedAt time.Time
}

// NewOrder creates a pending order
func NewOrder(total decimal.Decimal, currency string) (*Order, error) {
	if !total.IsPositive() {
		return nil, errors.NewValidationError("total", "must be greater than 0")
	}
	if len(currency) != 3 {
		return nil, errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}

	now := time.Now()
	return &Order{
		ID:        uuid.New(),
		Status:    StatusPending,
		Total:     total,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewNote creates a note for the given order
func NewNote(orderID uuid.UUID, body string) *Note {
	return &Note{
		ID:        uuid.New(),
		OrderID:   orderID,
		Body:      body,
		CreatedAt: time.Now(),
	}
}

var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusFailed},
	StatusFailed:  {StatusPaid},
	StatusPaid:    {},
}

// CanTransitionTo checks if the order can move to the given status
func (o *Order) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[o.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the order to a new status
func (o *Order) TransitionTo(next Status) error {
	if !o.CanTransitionTo(next) {
		return errors.NewDomainError(
			errors.CodeInvalidTransition,
			"cannot transition order from "+string(o.Status)+" to "+string(next),
			errors.ErrInvalidStateTransition,
		)
	}
	o.Status = next
	o.UpdatedAt = time.Now()
	return nil
}

// MarkPaid records settlement with the gateway-assigned transaction id.
func (o *Order) MarkPaid(transactionID string) error {
	if o.Status == StatusPaid {
		return errors.ErrOrderAlreadyPaid
	}
	if transactionID == "" {
		return errors.NewValidationError("transaction_id", "cannot be empty")
	}
	if err := o.TransitionTo(StatusPaid); err != nil {
		return err
	}
	o.TransactionID = &transactionID
	now := o.UpdatedAt
	o.PaidAt = &now
	return nil
}

// MarkFailed flags the order after an unsuccessful checkout attempt.
func (o *Order) MarkFailed() error {
	return o.TransitionTo(StatusFailed)
}

// IsPaid reports whether the order has settled.
func (o *Order) IsPaid() bool {
	return o.Status == StatusPaid
}

// CanCharge reports whether a checkout attempt may run against the order.
func (o *Order) CanCharge() bool {
	return o.Status == StatusPending || o.Status == StatusFailed
}
