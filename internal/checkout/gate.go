// Package checkout holds the card-entry side of the checkout: the submission
// gate that tokenizes the card before the order form is allowed through, and
// the payment-fields renderer.
package checkout

import (
	"context"
	"strings"
	"sync"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/rs/zerolog"
)

// Form field names shared with the rendered markup.
const (
	FieldToken          = "payment_token"
	FieldCardholderName = "cardholder_name"
	FieldPostalCode     = "payment_postal_code"
	FieldBillingPostal  = "billing_postcode"
)

// Decision tells the host page what to do with a submission.
type Decision int

const (
	// Proceed lets the submission continue to the server.
	Proceed Decision = iota
	// Suspended holds the submission until tokenization finishes.
	Suspended
)

func (d Decision) String() string {
	if d == Proceed {
		return "proceed"
	}
	return "suspended"
}

// Form is the host checkout page as seen by the gate.
type Form interface {
	// GatewaySelected reports whether this gateway is the chosen payment method.
	GatewaySelected() bool
	// Value returns a field's value; ok is false when the field is not on the page.
	Value(field string) (value string, ok bool)
	SetValue(field, value string)
	// Submit re-submits the form, which calls back into HandleSubmit.
	Submit()
	// CheckoutError shows the generic checkout error.
	CheckoutError(err error)
}

type TokenizeRequest struct {
	Test           bool
	CardholderName string
	PostalCode     string
}

type TokenizeResponse struct {
	Success bool
	Token   string
	Error   string
}

// Tokenizer exchanges the card captured by the secure input for a token.
type Tokenizer interface {
	Tokenize(ctx context.Context, tokenizingKey string, req TokenizeRequest) (*TokenizeResponse, error)
}

// Gate intercepts checkout submissions until the card has been tokenized.
//
// A submission with no validated token starts one asynchronous tokenization
// and is suspended. Its continuation runs exactly once: on success it stores
// the token, marks the session enrolled and re-submits; otherwise it clears
// the token, reports a checkout error and leaves the session unenrolled.
type Gate struct {
	form          Form
	tokenizer     Tokenizer
	tokenizingKey string
	test          bool
	logger        zerolog.Logger

	mu       sync.Mutex
	enrolled bool
	pending  bool
	wg       sync.WaitGroup
}

// NewGate creates a Gate for one checkout page session.
func NewGate(form Form, tokenizer Tokenizer, tokenizingKey string, test bool, logger zerolog.Logger) *Gate {
	return &Gate{
		form:          form,
		tokenizer:     tokenizer,
		tokenizingKey: tokenizingKey,
		test:          test,
		logger:        logger,
	}
}

// HandleSubmit decides whether a submission may proceed.
func (g *Gate) HandleSubmit(ctx context.Context) Decision {
	if !g.form.GatewaySelected() {
		return Proceed
	}

	g.mu.Lock()
	token, _ := g.form.Value(FieldToken)
	if token != "" && g.enrolled {
		g.mu.Unlock()
		return Proceed
	}
	if g.pending {
		g.mu.Unlock()
		return Suspended
	}
	g.pending = true
	g.enrolled = false
	g.mu.Unlock()

	req := TokenizeRequest{
		Test:           g.test,
		CardholderName: g.value(FieldCardholderName),
		PostalCode:     g.postalCode(),
	}

	g.wg.Add(1)
	go g.tokenize(ctx, req)
	return Suspended
}

// Enrolled reports whether the current token has been validated.
func (g *Gate) Enrolled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enrolled
}

// Wait blocks until in-flight tokenizations have run their continuation.
func (g *Gate) Wait() {
	g.wg.Wait()
}

func (g *Gate) tokenize(ctx context.Context, req TokenizeRequest) {
	defer g.wg.Done()

	resp, err := g.tokenizer.Tokenize(ctx, g.tokenizingKey, req)
	switch {
	case err != nil:
		err = domainErrors.NewDomainError("tokenization_failed", err.Error(), domainErrors.ErrTokenizationFailed)
	case resp == nil || !resp.Success:
		msg := "tokenizer rejected the card"
		if resp != nil && resp.Error != "" {
			msg = resp.Error
		}
		err = domainErrors.NewDomainError("tokenization_failed", msg, domainErrors.ErrTokenizationFailed)
	case resp.Token == "":
		err = domainErrors.ErrTokenizationEmpty
	}

	if err != nil {
		g.mu.Lock()
		g.form.SetValue(FieldToken, "")
		g.enrolled = false
		g.pending = false
		g.mu.Unlock()

		g.logger.Warn().Err(err).Msg("card tokenization failed")
		g.form.CheckoutError(err)
		return
	}

	g.mu.Lock()
	g.form.SetValue(FieldToken, resp.Token)
	g.enrolled = true
	g.pending = false
	g.mu.Unlock()

	g.form.Submit()
}

func (g *Gate) value(field string) string {
	v, _ := g.form.Value(field)
	return strings.TrimSpace(v)
}

// postalCode prefers the dedicated field and falls back to the billing
// postcode only when that field is not rendered. ZIP+4 is cut to ZIP5.
func (g *Gate) postalCode() string {
	v, ok := g.form.Value(FieldPostalCode)
	if !ok {
		v, _ = g.form.Value(FieldBillingPostal)
	}
	v = strings.TrimSpace(v)
	if i := strings.Index(v, "-"); i >= 0 {
		v = v[:i]
	}
	return v
}
