package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/order"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Result values reported to the checkout page.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

const markFailedTimeout = 5 * time.Second

// PaymentDetails is what the checkout page submits with the order.
type PaymentDetails struct {
	Token      string
	Address    string
	PostalCode string
}

// ProcessPaymentResult mirrors the platform's order-completion contract.
type ProcessPaymentResult struct {
	Result        string
	RedirectURL   string
	TransactionID string
}

// ProcessPaymentUseCase is the order-completion entry point: it charges the
// order total and tells the page where to go next.
type ProcessPaymentUseCase struct {
	orders    order.Repository
	charger   Charger
	testMode  bool
	returnURL string
	logger    zerolog.Logger
}

// NewProcessPaymentUseCase creates a new ProcessPaymentUseCase. returnURL may
// contain an {order_id} placeholder.
func NewProcessPaymentUseCase(orders order.Repository, charger Charger, testMode bool, returnURL string, logger zerolog.Logger) *ProcessPaymentUseCase {
	return &ProcessPaymentUseCase{
		orders:    orders,
		charger:   charger,
		testMode:  testMode,
		returnURL: returnURL,
		logger:    logger,
	}
}

// Execute charges the order. Charge failures are returned as errors after the
// order has been flagged failed; the result is only non-nil on success.
func (uc *ProcessPaymentUseCase) Execute(ctx context.Context, orderID uuid.UUID, details PaymentDetails) (*ProcessPaymentResult, error) {
	o, err := uc.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if o == nil {
		return nil, domainErrors.ErrOrderNotFound
	}
	if o.IsPaid() {
		return nil, domainErrors.NewDomainError(domainErrors.CodeInvalidTransition, "order already paid", domainErrors.ErrOrderAlreadyPaid)
	}
	if !o.CanCharge() {
		return nil, domainErrors.NewDomainError(
			domainErrors.CodeInvalidTransition,
			fmt.Sprintf("cannot charge order in status %s", o.Status),
			domainErrors.ErrInvalidStateTransition,
		)
	}

	res, err := uc.charger.Charge(ctx, ChargeInput{
		OrderID:    o.ID,
		Token:      details.Token,
		Amount:     o.Total,
		Address:    details.Address,
		PostalCode: details.PostalCode,
		Test:       uc.testMode,
	})
	if err != nil {
		// The checkout may have been abandoned; the order is still flagged.
		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markFailedTimeout)
		markErr := uc.orders.MarkFailed(markCtx, o.ID)
		cancel()
		if markErr != nil {
			uc.logger.Error().Err(markErr).Str("order_id", o.ID.String()).Msg("failed to flag order as failed")
		}
		return nil, err
	}

	return &ProcessPaymentResult{
		Result:        ResultSuccess,
		RedirectURL:   uc.redirectURL(o.ID),
		TransactionID: res.TransactionID,
	}, nil
}

func (uc *ProcessPaymentUseCase) redirectURL(orderID uuid.UUID) string {
	return strings.ReplaceAll(uc.returnURL, "{order_id}", orderID.String())
}
