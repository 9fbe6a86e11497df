package gateway

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the per-operation circuit breakers.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
	// OnStateChange is called with the operation name ("charge", "reverse", "refund").
	OnStateChange func(operation string, from, to gobreaker.State)
}

// DefaultBreakerSettings mirrors the thresholds used for the payment providers.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  10,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// BreakerClient decorates a Client with one circuit breaker per operation, so
// an outage on charges does not block reversals of charges already in flight.
// Only transport failures count against a breaker; declines are successes.
type BreakerClient struct {
	next    Client
	charge  *gobreaker.CircuitBreaker[*Response]
	reverse *gobreaker.CircuitBreaker[*Response]
	refund  *gobreaker.CircuitBreaker[*Response]
}

var _ Client = (*BreakerClient)(nil)

func NewBreakerClient(next Client, s BreakerSettings) *BreakerClient {
	return &BreakerClient{
		next:    next,
		charge:  newBreaker("charge", s),
		reverse: newBreaker("reverse", s),
		refund:  newBreaker("refund", s),
	}
}

func newBreaker(op string, s BreakerSettings) *gobreaker.CircuitBreaker[*Response] {
	st := gobreaker.Settings{
		Name:        "gateway_" + op,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && failureRatio >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domainErrors.ErrGatewayTransport)
		},
	}
	if s.OnStateChange != nil {
		st.OnStateChange = func(_ string, from, to gobreaker.State) {
			s.OnStateChange(op, from, to)
		}
	}
	return gobreaker.NewCircuitBreaker[*Response](st)
}

func (b *BreakerClient) Charge(ctx context.Context, req PaymentRequest) (*Response, error) {
	return execute(b.charge, func() (*Response, error) { return b.next.Charge(ctx, req) })
}

func (b *BreakerClient) Reverse(ctx context.Context, req PaymentRequest) (*Response, error) {
	return execute(b.reverse, func() (*Response, error) { return b.next.Reverse(ctx, req) })
}

func (b *BreakerClient) Refund(ctx context.Context, req RefundRequest) (*Response, error) {
	return execute(b.refund, func() (*Response, error) { return b.next.Refund(ctx, req) })
}

// State returns the breaker state for an operation.
func (b *BreakerClient) State(operation string) gobreaker.State {
	switch operation {
	case "charge":
		return b.charge.State()
	case "reverse":
		return b.reverse.State()
	default:
		return b.refund.State()
	}
}

func execute(cb *gobreaker.CircuitBreaker[*Response], fn func() (*Response, error)) (*Response, error) {
	resp, err := cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domainErrors.NewDomainError(domainErrors.CodeTransport, cb.Name()+": "+err.Error(), domainErrors.ErrGatewayOpen)
	}
	return resp, err
}
