package redis

import (
	"testing"
	"time"

	paymentApp "github.com/cassiomorais/checkout/internal/application/payment"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRefund(t *testing.T) {
	req := paymentApp.RefundRequest{
		OrderID: uuid.New(),
		Amount:  decimal.RequireFromString("10.5"),
		Reason:  "damaged",
	}
	at := time.Unix(1700000000, 0)

	values := EncodeRefund(req, at)
	assert.Equal(t, "10.50", values["amount"])
	assert.Equal(t, int64(1700000000), values["enqueued_at"])

	// Redis hands every field back as a string.
	msg := redis.XMessage{ID: "1-0", Values: map[string]any{
		"order_id": values["order_id"],
		"amount":   values["amount"],
		"reason":   values["reason"],
	}}
	got, err := DecodeRefund(msg)
	require.NoError(t, err)
	assert.Equal(t, req.OrderID, got.OrderID)
	assert.True(t, got.Amount.Equal(req.Amount))
	assert.Equal(t, "damaged", got.Reason)
}

func TestDecodeRefund_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		want   string
	}{
		{"missing order", map[string]any{"amount": "1.00"}, "invalid order_id"},
		{"bad order", map[string]any{"order_id": "nope", "amount": "1.00"}, "invalid order_id"},
		{"bad amount", map[string]any{"order_id": uuid.NewString(), "amount": "ten"}, "invalid amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRefund(redis.XMessage{ID: "9-0", Values: tt.values})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "9-0")
		})
	}
}

func TestOrderLockKey(t *testing.T) {
	id := uuid.MustParse("6f1c2d3e-4a5b-4c6d-8e7f-0a1b2c3d4e5f")
	l := NewDistributedLock(nil, OrderLockKey(id), time.Second)
	assert.Equal(t, "lock:order:6f1c2d3e-4a5b-4c6d-8e7f-0a1b2c3d4e5f", l.Key())
	assert.False(t, l.IsAcquired())
}
