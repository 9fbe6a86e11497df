package errors

import (
	"errors"
	"fmt"
)

var (
	// Order errors
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrOrderAlreadyPaid       = errors.New("order already paid")
	ErrMissingTransactionID   = errors.New("order has no gateway transaction id")

	// Gateway errors
	ErrGatewayTransport   = errors.New("gateway transport failure")
	ErrGatewayOpen        = errors.New("gateway circuit open")
	ErrGatewayDisabled    = errors.New("payment gateway disabled")
	ErrInvalidRequest     = errors.New("invalid gateway request")
	ErrDeclined           = errors.New("payment declined")
	ErrAVSMismatch        = errors.New("address verification failed")
	ErrReversalFailed     = errors.New("transaction reversal failed")
	ErrRefundDeclined     = errors.New("refund declined")
	ErrSettlementFailed   = errors.New("payment settlement failed")
	ErrTokenizationEmpty  = errors.New("tokenization returned no token")
	ErrTokenizationFailed = errors.New("tokenization failed")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// Error codes carried by DomainError.
const (
	CodeTransport         = "gateway_transport"
	CodeDeclined          = "declined"
	CodeAVSMismatch       = "avs_mismatch"
	CodeReversalFailed    = "reversal_failed"
	CodeRefundDeclined    = "refund_declined"
	CodeSettlement        = "settlement_failed"
	CodeInvalidTransition = "invalid_transition"
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewTransportError reports a gateway call that failed before a usable response came back.
func NewTransportError(err error) *DomainError {
	msg := "gateway unreachable"
	if err != nil {
		msg = err.Error()
	}
	return NewDomainError(CodeTransport, msg, ErrGatewayTransport)
}

// NewDeclinedError reports a charge the gateway refused; description is the gateway's own text.
func NewDeclinedError(description string) *DomainError {
	return NewDomainError(CodeDeclined, description, ErrDeclined)
}

// NewAVSMismatchError reports an approved charge that was reversed because the billing address did not match.
func NewAVSMismatchError() *DomainError {
	return NewDomainError(CodeAVSMismatch, "unable to verify billing address", ErrAVSMismatch)
}

// NewReversalFailedError reports a failed attempt to undo a charge.
func NewReversalFailedError(reason string) *DomainError {
	return NewDomainError(CodeReversalFailed, reason, ErrReversalFailed)
}

// NewRefundDeclinedError reports a refund the gateway did not approve.
func NewRefundDeclinedError(description string) *DomainError {
	return NewDomainError(CodeRefundDeclined, description, ErrRefundDeclined)
}

// NewSettlementError reports an approved charge the ledger could not record as paid.
func NewSettlementError(err error) *DomainError {
	return NewDomainError(CodeSettlement, "unable to record payment", fmt.Errorf("%w: %w", ErrSettlementFailed, err))
}

// Description returns the human-readable message of a DomainError, or err.Error() otherwise.
func Description(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
