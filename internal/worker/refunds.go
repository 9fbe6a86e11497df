package worker

import (
	"context"
	"time"

	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/checkout/internal/infrastructure/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Outcome labels for the worker metrics.
const (
	StatusRefunded = "refunded"
	StatusDeclined = "declined"
	StatusError    = "error"
	StatusInvalid  = "invalid"
	StatusLocked   = "locked"
)

// MessageSource is a consumer-group view of a stream. Implemented by the Redis StreamConsumer.
type MessageSource interface {
	Read(ctx context.Context) ([]redis.XMessage, error)
	Ack(ctx context.Context, messageID string) error
	ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error)
}

// DeadLetter parks messages that can never be processed.
type DeadLetter interface {
	PublishToDLQ(ctx context.Context, msg redis.XMessage, reason string) error
}

// Locker is a single-owner lock. Implemented by the Redis DistributedLock.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RefundExecutor runs one refund. Implemented by *payment.ProcessRefundUseCase.
type RefundExecutor interface {
	Execute(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, reason string) (bool, error)
}

// RefundWorker drains the refund stream. Each message is processed under a
// per-order lock so a refund never races a checkout or another refund on the same order.
type RefundWorker struct {
	source  MessageSource
	dlq     DeadLetter
	refunds RefundExecutor
	lock    func(key string) Locker
	metrics *observability.Metrics
	logger  zerolog.Logger

	refundTimeout time.Duration
	claimMinIdle  time.Duration
	readBackoff   time.Duration
}

type Config struct {
	RefundTimeout time.Duration
	// ClaimMinIdle is how long a message may sit unacked before another consumer takes it over.
	ClaimMinIdle time.Duration
}

func NewRefundWorker(
	source MessageSource,
	dlq DeadLetter,
	refunds RefundExecutor,
	lock func(key string) Locker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	cfg Config,
) *RefundWorker {
	if cfg.RefundTimeout <= 0 {
		cfg.RefundTimeout = 45 * time.Second
	}
	if cfg.ClaimMinIdle <= 0 {
		cfg.ClaimMinIdle = 2 * cfg.RefundTimeout
	}
	return &RefundWorker{
		source:        source,
		dlq:           dlq,
		refunds:       refunds,
		lock:          lock,
		metrics:       metrics,
		logger:        logger,
		refundTimeout: cfg.RefundTimeout,
		claimMinIdle:  cfg.ClaimMinIdle,
		readBackoff:   time.Second,
	}
}

// Run reads and processes messages until ctx is cancelled.
func (w *RefundWorker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := w.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error().Err(err).Msg("Failed to read from stream")
			if !sleep(ctx, w.readBackoff) {
				return nil
			}
			continue
		}

		for _, msg := range msgs {
			w.Handle(ctx, msg)
		}
	}
}

// RunReclaimer periodically takes over messages left pending by a crashed or stuck consumer.
func (w *RefundWorker) RunReclaimer(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		msgs, err := w.source.ClaimStale(ctx, w.claimMinIdle)
		if err != nil {
			w.logger.Error().Err(err).Msg("Failed to claim stale messages")
			continue
		}
		if len(msgs) > 0 {
			w.logger.Info().Int("count", len(msgs)).Msg("Reclaimed stale refund messages")
		}
		for _, msg := range msgs {
			w.Handle(ctx, msg)
		}
	}
}

// Handle processes one message and reports its outcome. A refund that fails
// is still acked: the order note records why, and the batch moves on.
func (w *RefundWorker) Handle(ctx context.Context, msg redis.XMessage) string {
	start := time.Now()
	status := w.handle(ctx, msg)

	if w.metrics != nil {
		w.metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.RefundStream, status).Inc()
		w.metrics.WorkerProcessingDuration.WithLabelValues(infraRedis.RefundStream).Observe(time.Since(start).Seconds())
	}
	return status
}

func (w *RefundWorker) handle(ctx context.Context, msg redis.XMessage) string {
	logger := w.logger.With().Str("message_id", msg.ID).Logger()

	req, err := infraRedis.DecodeRefund(msg)
	if err != nil {
		logger.Error().Err(err).Msg("Undecodable refund message, moving to DLQ")
		if dlqErr := w.dlq.PublishToDLQ(ctx, msg, err.Error()); dlqErr != nil {
			// Leave it pending; the reclaimer will retry the DLQ publish.
			logger.Error().Err(dlqErr).Msg("Failed to publish to DLQ")
			return StatusInvalid
		}
		w.ack(ctx, logger, msg.ID)
		return StatusInvalid
	}
	logger = logger.With().Str("order_id", req.OrderID.String()).Logger()

	lock := w.lock(infraRedis.OrderLockKey(req.OrderID))
	acquired, err := lock.Acquire(ctx)
	if err != nil || !acquired {
		logger.Warn().Err(err).Msg("Order is locked, leaving refund pending")
		return StatusLocked
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("Failed to release order lock")
		}
	}()

	rctx, cancel := context.WithTimeout(ctx, w.refundTimeout)
	refunded, err := w.refunds.Execute(rctx, req.OrderID, req.Amount, req.Reason)
	cancel()

	status := StatusDeclined
	switch {
	case err != nil:
		status = StatusError
		logger.Error().Err(err).Msg("Refund could not be processed")
	case refunded:
		status = StatusRefunded
		logger.Info().Str("amount", req.Amount.StringFixed(2)).Msg("Refund approved")
	default:
		logger.Warn().Msg("Refund not approved")
	}

	w.ack(ctx, logger, msg.ID)
	return status
}

func (w *RefundWorker) ack(ctx context.Context, logger zerolog.Logger, id string) {
	if err := w.source.Ack(context.WithoutCancel(ctx), id); err != nil {
		logger.Error().Err(err).Msg("Failed to ack message")
	}
}

// Cleaner removes expired rows. Implemented by *postgres.IdempotencyRepository.
type Cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// RunCleanup calls c.Cleanup every interval until ctx is cancelled.
func RunCleanup(ctx context.Context, c Cleaner, every time.Duration, logger zerolog.Logger) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		n, err := c.Cleanup(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Idempotency cleanup failed")
			continue
		}
		if n > 0 {
			logger.Info().Int64("deleted", n).Msg("Expired idempotency keys removed")
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
