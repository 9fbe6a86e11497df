package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/order"
	"github.com/cassiomorais/checkout/internal/gateway"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout/pkg/retry"
	"github.com/cassiomorais/checkout/pkg/saga"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ChargeInput is one checkout attempt against an existing order.
type ChargeInput struct {
	OrderID    uuid.UUID
	Token      string
	Amount     decimal.Decimal
	Address    string
	PostalCode string
	Test       bool
}

// ChargeResult is returned when the charge settled.
type ChargeResult struct {
	TransactionID    string
	AuthCode         string
	PaymentType      string
	MaskedPAN        string
	AVSResponse      gateway.AVSResponse
	AuthorizedAmount decimal.Decimal
}

// RefundInput refunds part or all of a paid order.
type RefundInput struct {
	OrderID uuid.UUID
	Amount  decimal.Decimal
	Reason  string
	Test    bool
}

// Orchestrator sequences charge, conditional reversal and refund calls against
// the gateway and records every outcome on the order ledger.
//
// It keeps no per-order state; concurrent calls for different orders are safe
// as long as the ledger is.
type Orchestrator struct {
	client        gateway.Client
	ledger        order.Ledger
	logger        zerolog.Logger
	metrics       *observability.Metrics
	tracer        trace.Tracer
	reversalRetry retry.Config
	// compensationTimeout bounds the reversal, which outlives the caller's context.
	compensationTimeout time.Duration
}

// noteTimeout bounds a single ledger note write.
const noteTimeout = 5 * time.Second

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the base logger; per-order fields are added on each call.
func WithLogger(l zerolog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics records charge, reversal, refund and gateway latency metrics.
func WithMetrics(m *observability.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer sets the tracer for orchestrator and gateway spans. Defaults to a no-op tracer.
func WithTracer(t trace.Tracer) OrchestratorOption {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithReversalRetry sets how transport failures on reversal are retried.
func WithReversalRetry(cfg retry.Config) OrchestratorOption {
	return func(o *Orchestrator) { o.reversalRetry = cfg }
}

// WithCompensationTimeout bounds how long a reversal, retries included, may run
// after the charge's own context is gone.
func WithCompensationTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.compensationTimeout = d
		}
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(client gateway.Client, ledger order.Ledger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client: client,
		ledger: ledger,
		logger: zerolog.Nop(),
		tracer: noop.NewTracerProvider().Tracer("checkout"),
		reversalRetry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
		compensationTimeout: 90 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Charge authorizes the order total. Any outcome other than settlement
// triggers a reversal before the error is returned; the returned error is
// always the one that aborted the charge, never the reversal's.
func (o *Orchestrator) Charge(ctx context.Context, in ChargeInput) (*ChargeResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.charge",
		trace.WithAttributes(attribute.String("order.id", in.OrderID.String())))
	defer span.End()

	start := time.Now()
	logger := observability.WithFields(o.logger, map[string]any{
		"order_id":  in.OrderID.String(),
		"operation": "charge",
	})

	req := gateway.PaymentRequest{
		Token:          in.Token,
		Amount:         in.Amount,
		Test:           in.Test,
		PostalCode:     in.PostalCode,
		Address:        in.Address,
		TransactionRef: in.OrderID.String(),
	}

	var resp *gateway.Response

	s := saga.New("charge").
		AddStep(saga.Step{
			Name: "charge",
			Execute: func(ctx context.Context) error {
				r, err := o.timed(ctx, "charge", func(ctx context.Context) (*gateway.Response, error) {
					return o.client.Charge(ctx, req)
				})
				if err != nil {
					o.note(ctx, logger, in.OrderID, fmt.Sprintf("Gateway transaction failed: %s", domainErrors.Description(err)))
					return err
				}
				if !r.OK() {
					o.note(ctx, logger, in.OrderID, fmt.Sprintf("Gateway transaction failed: %s", r.ResponseDescription))
					return domainErrors.NewDeclinedError(r.ResponseDescription)
				}
				resp = r
				return nil
			},
			// Detached from the caller: a cancelled checkout is still voided.
			Compensate: func(ctx context.Context, cause error) error {
				ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.compensationTimeout)
				defer cancel()
				return o.reverse(ctx, logger, in.OrderID, req, cause)
			},
			CompensateOnFailure: true,
		}).
		AddStep(saga.Step{
			Name: "verify-address",
			Execute: func(ctx context.Context) error {
				if resp.AVSResponse.Mismatch() {
					o.note(ctx, logger, in.OrderID, fmt.Sprintf("Transaction reversed due to AVS failure: %s", resp.AVSResponse))
					return domainErrors.NewAVSMismatchError()
				}
				return nil
			},
		}).
		AddStep(saga.Step{
			Name: "settle",
			Execute: func(ctx context.Context) error {
				if err := o.ledger.MarkPaid(ctx, in.OrderID, resp.TransactionID); err != nil {
					return domainErrors.NewSettlementError(err)
				}
				return nil
			},
		})

	if _, err := s.Execute(ctx); err != nil {
		var sagaErr *saga.Error
		if errors.As(err, &sagaErr) {
			err = sagaErr.Err
		}
		outcome := chargeOutcome(err)
		o.recordCharge(outcome, start)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		logger.Warn().Err(err).Str("outcome", outcome).Msg("charge failed")
		return nil, err
	}

	o.note(ctx, logger, in.OrderID, successNote(resp))
	o.recordCharge("approved", start)
	span.SetAttributes(attribute.String("gateway.transaction_id", resp.TransactionID))
	logger.Info().Str("transaction_id", resp.TransactionID).Msg("charge settled")

	return &ChargeResult{
		TransactionID:    resp.TransactionID,
		AuthCode:         resp.AuthCode,
		PaymentType:      resp.PaymentType,
		MaskedPAN:        resp.MaskedPAN,
		AVSResponse:      resp.AVSResponse,
		AuthorizedAmount: resp.AuthorizedAmount,
	}, nil
}

// reverse voids the charge described by req. Its failure is recorded and
// returned to the saga for logging only.
func (o *Orchestrator) reverse(ctx context.Context, logger zerolog.Logger, orderID uuid.UUID, req gateway.PaymentRequest, cause error) error {
	o.note(ctx, logger, orderID, fmt.Sprintf("Reversing transaction: %s", domainErrors.Description(cause)))

	reversal := req.ForReversal()
	resp, err := retry.DoWithResult(ctx, o.reversalRetry, func() (*gateway.Response, error) {
		return o.timed(ctx, "reverse", func(ctx context.Context) (*gateway.Response, error) {
			return o.client.Reverse(ctx, reversal)
		})
	},
		retry.If(func(err error) bool { return errors.Is(err, domainErrors.ErrGatewayTransport) }),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn().Err(err).Uint("attempt", n+1).Msg("retrying reversal")
			if o.metrics != nil {
				o.metrics.GatewayRetries.WithLabelValues("reverse").Inc()
			}
		}),
	)

	var reversalErr error
	switch {
	case err != nil:
		reversalErr = domainErrors.NewReversalFailedError(domainErrors.Description(err))
	case !resp.OK():
		reversalErr = domainErrors.NewReversalFailedError(resp.ResponseDescription)
	}

	if reversalErr != nil {
		o.note(ctx, logger, orderID, fmt.Sprintf("Transaction reversal failed: %s", domainErrors.Description(reversalErr)))
		o.recordReversal("failed")
		logger.Error().Err(reversalErr).Msg("reversal failed")
		return reversalErr
	}

	o.note(ctx, logger, orderID, "Transaction reversed")
	o.recordReversal("reversed")
	return nil
}

// Refund refunds amount against the order's stored transaction. It never
// returns an error: the outcome is the boolean and the note it leaves.
func (o *Orchestrator) Refund(ctx context.Context, in RefundInput) bool {
	ctx, span := o.tracer.Start(ctx, "orchestrator.refund",
		trace.WithAttributes(attribute.String("order.id", in.OrderID.String())))
	defer span.End()

	logger := observability.WithFields(o.logger, map[string]any{
		"order_id":  in.OrderID.String(),
		"operation": "refund",
	})

	txID, err := o.ledger.GetTransactionID(ctx, in.OrderID)
	if err == nil && txID == "" {
		err = domainErrors.ErrMissingTransactionID
	}
	if err != nil {
		o.note(ctx, logger, in.OrderID, fmt.Sprintf("Exception processing refund: %s", domainErrors.Description(err)))
		o.recordRefund("error")
		span.RecordError(err)
		return false
	}

	resp, err := o.timed(ctx, "refund", func(ctx context.Context) (*gateway.Response, error) {
		return o.client.Refund(ctx, gateway.RefundRequest{
			TransactionID: txID,
			Amount:        in.Amount,
			Test:          in.Test,
		})
	})
	if err != nil {
		o.note(ctx, logger, in.OrderID, fmt.Sprintf("Exception processing refund: %s", domainErrors.Description(err)))
		o.recordRefund("error")
		span.RecordError(err)
		logger.Error().Err(err).Msg("refund errored")
		return false
	}

	if !resp.OK() {
		declined := domainErrors.NewRefundDeclinedError(resp.ResponseDescription)
		o.note(ctx, logger, in.OrderID, fmt.Sprintf("Refund failed: %s", resp.ResponseDescription))
		o.recordRefund("declined")
		span.SetStatus(codes.Error, "declined")
		logger.Warn().Err(declined).Msg("refund declined")
		return false
	}

	o.note(ctx, logger, in.OrderID, refundNote(in, resp))
	o.recordRefund("approved")
	logger.Info().Str("amount", in.Amount.StringFixed(2)).Msg("refund approved")
	return true
}

func (o *Orchestrator) timed(ctx context.Context, op string, fn func(context.Context) (*gateway.Response, error)) (*gateway.Response, error) {
	ctx, span := o.tracer.Start(ctx, "gateway."+op)
	defer span.End()

	start := time.Now()
	resp, err := fn(ctx)
	if o.metrics != nil {
		o.metrics.GatewayDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

// note appends to the order log, even after ctx is cancelled. A ledger failure
// is logged and never changes the outcome being reported.
func (o *Orchestrator) note(ctx context.Context, logger zerolog.Logger, orderID uuid.UUID, body string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), noteTimeout)
	defer cancel()
	if err := o.ledger.AddNote(ctx, orderID, body); err != nil {
		logger.Error().Err(err).Str("note", body).Msg("failed to append order note")
	}
}

func (o *Orchestrator) recordCharge(outcome string, start time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.ChargesTotal.WithLabelValues(outcome).Inc()
	o.metrics.ChargeDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func (o *Orchestrator) recordReversal(outcome string) {
	if o.metrics != nil {
		o.metrics.ReversalsTotal.WithLabelValues(outcome).Inc()
	}
}

func (o *Orchestrator) recordRefund(outcome string) {
	if o.metrics != nil {
		o.metrics.RefundsTotal.WithLabelValues(outcome).Inc()
	}
}

func chargeOutcome(err error) string {
	var de *domainErrors.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return "error"
}
