package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	paymentApp "github.com/cassiomorais/checkout/internal/application/payment"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	RefundStream    = "refunds:requests"
	RefundDLQStream = "refunds:dlq"
)

// RefundProducer publishes refund requests for the worker.
type RefundProducer struct {
	client redis.Cmdable
	now    func() time.Time
}

var _ paymentApp.RefundQueue = (*RefundProducer)(nil)

func NewRefundProducer(client redis.Cmdable) *RefundProducer {
	return &RefundProducer{client: client, now: time.Now}
}

// Enqueue adds the refund to the stream and returns its message id.
func (p *RefundProducer) Enqueue(ctx context.Context, req paymentApp.RefundRequest) (string, error) {
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: RefundStream,
		Values: EncodeRefund(req, p.now()),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish refund request: %w", err)
	}
	return id, nil
}

// PublishToDLQ parks a message the worker could not decode.
func (p *RefundProducer) PublishToDLQ(ctx context.Context, msg redis.XMessage, reason string) error {
	values := make(map[string]any, len(msg.Values)+2)
	for k, v := range msg.Values {
		values[k] = v
	}
	values["original_id"] = msg.ID
	values["reason"] = reason

	if err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: RefundDLQStream, Values: values}).Err(); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}
	return nil
}

// EncodeRefund flattens a refund request into stream fields.
func EncodeRefund(req paymentApp.RefundRequest, at time.Time) map[string]any {
	return map[string]any{
		"order_id":    req.OrderID.String(),
		"amount":      req.Amount.StringFixed(2),
		"reason":      req.Reason,
		"enqueued_at": at.Unix(),
	}
}

// DecodeRefund is the inverse of EncodeRefund.
func DecodeRefund(msg redis.XMessage) (paymentApp.RefundRequest, error) {
	var req paymentApp.RefundRequest

	rawID, _ := msg.Values["order_id"].(string)
	id, err := uuid.Parse(rawID)
	if err != nil {
		return req, fmt.Errorf("message %s: invalid order_id %q: %w", msg.ID, rawID, err)
	}
	rawAmount, _ := msg.Values["amount"].(string)
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return req, fmt.Errorf("message %s: invalid amount %q: %w", msg.ID, rawAmount, err)
	}
	reason, _ := msg.Values["reason"].(string)

	req.OrderID = id
	req.Amount = amount
	req.Reason = reason
	return req, nil
}

type StreamConsumer struct {
	client        redis.Cmdable
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client redis.Cmdable,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read returns up to batchSize new messages, or nil after blockDuration.
func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// ClaimStale takes over messages another consumer read but never acked.
func (c *StreamConsumer) ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error) {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}
	return msgs, nil
}
