package testutil

import (
	"context"
	"sync"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/order"
	"github.com/cassiomorais/checkout/internal/gateway"
	"github.com/google/uuid"
)

// --- Order Repository Mock ---

// MockOrderRepository is an in-memory order.Repository.
type MockOrderRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*order.Order
	notes  map[uuid.UUID][]*order.Note

	CreateFunc           func(ctx context.Context, o *order.Order) error
	GetByIDFunc          func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	AddNoteFunc          func(ctx context.Context, orderID uuid.UUID, body string) error
	MarkPaidFunc         func(ctx context.Context, orderID uuid.UUID, transactionID string) error
	MarkFailedFunc       func(ctx context.Context, orderID uuid.UUID) error
	GetTransactionIDFunc func(ctx context.Context, orderID uuid.UUID) (string, error)
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[uuid.UUID]*order.Order),
		notes:  make(map[uuid.UUID][]*order.Note),
	}
}

// AddOrder seeds the repository.
func (m *MockOrderRepository) AddOrder(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *MockOrderRepository) Create(ctx context.Context, o *order.Order) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, o)
	}
	m.AddOrder(o)
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *MockOrderRepository) AddNote(ctx context.Context, orderID uuid.UUID, body string) error {
	if m.AddNoteFunc != nil {
		return m.AddNoteFunc(ctx, orderID, body)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[orderID] = append(m.notes[orderID], order.NewNote(orderID, body))
	return nil
}

func (m *MockOrderRepository) GetNotes(ctx context.Context, orderID uuid.UUID) ([]*order.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*order.Note(nil), m.notes[orderID]...), nil
}

func (m *MockOrderRepository) MarkPaid(ctx context.Context, orderID uuid.UUID, transactionID string) error {
	if m.MarkPaidFunc != nil {
		return m.MarkPaidFunc(ctx, orderID, transactionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return domainErrors.ErrOrderNotFound
	}
	return o.MarkPaid(transactionID)
}

func (m *MockOrderRepository) MarkFailed(ctx context.Context, orderID uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return domainErrors.ErrOrderNotFound
	}
	if o.Status == order.StatusFailed {
		return nil
	}
	return o.MarkFailed()
}

func (m *MockOrderRepository) GetTransactionID(ctx context.Context, orderID uuid.UUID) (string, error) {
	if m.GetTransactionIDFunc != nil {
		return m.GetTransactionIDFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return "", domainErrors.ErrOrderNotFound
	}
	if o.TransactionID == nil {
		return "", nil
	}
	return *o.TransactionID, nil
}

// NoteBodies returns the note texts for an order, oldest first.
func (m *MockOrderRepository) NoteBodies(orderID uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.notes[orderID]))
	for _, n := range m.notes[orderID] {
		out = append(out, n.Body)
	}
	return out
}

// Order returns the stored order without copying.
func (m *MockOrderRepository) Order(id uuid.UUID) *order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

// --- Gateway Mock ---

// MockGateway is a scripted gateway.Client that records every request.
type MockGateway struct {
	mu sync.Mutex

	Charges   []gateway.PaymentRequest
	Reversals []gateway.PaymentRequest
	Refunds   []gateway.RefundRequest
	// Calls lists operations in call order: "charge", "reverse", "refund".
	Calls []string

	ChargeFunc  func(ctx context.Context, req gateway.PaymentRequest) (*gateway.Response, error)
	ReverseFunc func(ctx context.Context, req gateway.PaymentRequest) (*gateway.Response, error)
	RefundFunc  func(ctx context.Context, req gateway.RefundRequest) (*gateway.Response, error)
}

var _ gateway.Client = (*MockGateway)(nil)

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) Charge(ctx context.Context, req gateway.PaymentRequest) (*gateway.Response, error) {
	m.mu.Lock()
	m.Charges = append(m.Charges, req)
	m.Calls = append(m.Calls, "charge")
	m.mu.Unlock()
	if m.ChargeFunc != nil {
		return m.ChargeFunc(ctx, req)
	}
	return ApprovedResponse("tx-"+req.TransactionRef, req.Amount.String()), nil
}

func (m *MockGateway) Reverse(ctx context.Context, req gateway.PaymentRequest) (*gateway.Response, error) {
	m.mu.Lock()
	m.Reversals = append(m.Reversals, req)
	m.Calls = append(m.Calls, "reverse")
	m.mu.Unlock()
	if m.ReverseFunc != nil {
		return m.ReverseFunc(ctx, req)
	}
	return &gateway.Response{Success: true, Approved: true, ResponseDescription: "approved"}, nil
}

func (m *MockGateway) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.Response, error) {
	m.mu.Lock()
	m.Refunds = append(m.Refunds, req)
	m.Calls = append(m.Calls, "refund")
	m.mu.Unlock()
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, req)
	}
	return &gateway.Response{Success: true, Approved: true, AuthCode: "RF1234", TransactionID: req.TransactionID}, nil
}

// CallLog returns a copy of Calls.
func (m *MockGateway) CallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

// --- Refund Queue Mock ---

// MockRefundQueue collects enqueued refunds.
type MockRefundQueue[T any] struct {
	mu    sync.Mutex
	Items []T

	EnqueueFunc func(ctx context.Context, item T) (string, error)
}

func (m *MockRefundQueue[T]) Enqueue(ctx context.Context, item T) (string, error) {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, item)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Items = append(m.Items, item)
	return uuid.NewString(), nil
}
