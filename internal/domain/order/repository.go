package order

import (
	"context"

	"github.com/google/uuid"
)

// Ledger is the order bookkeeping the payment orchestrator writes to.
// Implementations must be safe for concurrent use across orders.
type Ledger interface {
	// AddNote appends a note to the order's audit trail
	AddNote(ctx context.Context, orderID uuid.UUID, body string) error

	// MarkPaid transitions the order to paid and stores the gateway transaction id
	MarkPaid(ctx context.Context, orderID uuid.UUID, transactionID string) error

	// GetTransactionID returns the stored gateway transaction id, or "" if none
	GetTransactionID(ctx context.Context, orderID uuid.UUID) (string, error)
}

// Repository defines order persistence beyond the ledger operations
type Repository interface {
	Ledger

	// Create inserts a new order
	Create(ctx context.Context, o *Order) error

	// GetByID retrieves an order by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// GetNotes returns the order's notes, oldest first
	GetNotes(ctx context.Context, orderID uuid.UUID) ([]*Note, error)

	// MarkFailed records a failed charge attempt. Already failed orders are left as is.
	MarkFailed(ctx context.Context, orderID uuid.UUID) error
}
