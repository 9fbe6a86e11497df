package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/order"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `id, status, total::text, currency, transaction_id, created_at, updated_at, paid_at`

// OrderRepository implements order.Repository using PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
	tx   *TxManager
}

var _ order.Repository = (*OrderRepository)(nil)

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(pool *pgxpool.Pool, tx *TxManager) *OrderRepository {
	return &OrderRepository{pool: pool, tx: tx}
}

func (r *OrderRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO orders (id, status, total, currency, transaction_id, created_at, updated_at, paid_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, string(o.Status), decimalToNumeric(o.Total), o.Currency, o.TransactionID,
		o.CreatedAt, o.UpdatedAt, o.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID retrieves an order by its ID.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return scanOrder(r.db(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// AddNote appends a note to the order's audit trail.
func (r *OrderRepository) AddNote(ctx context.Context, orderID uuid.UUID, body string) error {
	n := order.NewNote(orderID, body)
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO order_notes (id, order_id, body, created_at) VALUES ($1, $2, $3, $4)`,
		n.ID, n.OrderID, n.Body, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order note: %w", err)
	}
	return nil
}

// GetNotes returns the order's notes, oldest first.
func (r *OrderRepository) GetNotes(ctx context.Context, orderID uuid.UUID) ([]*order.Note, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, order_id, body, created_at
		 FROM order_notes WHERE order_id = $1 ORDER BY created_at ASC, seq ASC`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list order notes: %w", err)
	}
	defer rows.Close()

	var notes []*order.Note
	for rows.Next() {
		n := &order.Note{}
		if err := rows.Scan(&n.ID, &n.OrderID, &n.Body, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// MarkPaid locks the order row, applies the state transition and stores the transaction id.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID uuid.UUID, transactionID string) error {
	return r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		o, err := scanOrder(r.db(ctx).QueryRow(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
		if err != nil {
			return err
		}
		if err := o.MarkPaid(transactionID); err != nil {
			return err
		}
		return r.update(ctx, o)
	})
}

// MarkFailed moves a pending order to failed. Failed and paid orders are left untouched.
func (r *OrderRepository) MarkFailed(ctx context.Context, orderID uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(order.StatusFailed), time.Now(), orderID, string(order.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("mark order failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db(ctx).QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
			return fmt.Errorf("check order: %w", err)
		}
		if !exists {
			return domainErrors.ErrOrderNotFound
		}
	}
	return nil
}

// GetTransactionID returns the gateway transaction id stored at settlement, or "" if none.
func (r *OrderRepository) GetTransactionID(ctx context.Context, orderID uuid.UUID) (string, error) {
	var txID *string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT transaction_id FROM orders WHERE id = $1`, orderID).Scan(&txID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domainErrors.ErrOrderNotFound
		}
		return "", fmt.Errorf("get transaction id: %w", err)
	}
	if txID == nil {
		return "", nil
	}
	return *txID, nil
}

func (r *OrderRepository) update(ctx context.Context, o *order.Order) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE orders SET status = $1, transaction_id = $2, updated_at = $3, paid_at = $4 WHERE id = $5`,
		string(o.Status), o.TransactionID, o.UpdatedAt, o.PaidAt, o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrOrderNotFound
	}
	return nil
}

func scanOrder(s scanner) (*order.Order, error) {
	o := &order.Order{}
	var (
		status   string
		totalStr string
	)
	err := s.Scan(&o.ID, &status, &totalStr, &o.Currency, &o.TransactionID, &o.CreatedAt, &o.UpdatedAt, &o.PaidAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	total, err := numericToDecimal(totalStr)
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	o.Total = total
	o.Status = order.Status(status)
	return o, nil
}
