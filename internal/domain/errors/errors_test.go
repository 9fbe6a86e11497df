package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name: "with wrapped error",
			err: &DomainError{
				Code:    "declined",
				Message: "insufficient funds",
				Err:     errors.New("payment declined"),
			},
			expected: "insufficient funds: payment declined",
		},
		{
			name: "without wrapped error",
			err: &DomainError{
				Code:    "invalid_state",
				Message: "cannot settle order in current state",
				Err:     nil,
			},
			expected: "cannot settle order in current state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	domainErr := &DomainError{
		Code:    "test",
		Message: "test message",
		Err:     originalErr,
	}

	unwrapped := domainErr.Unwrap()
	assert.Equal(t, originalErr, unwrapped)
}

func TestNewDomainError(t *testing.T) {
	originalErr := errors.New("underlying error")
	err := NewDomainError("test_code", "test message", originalErr)

	assert.NotNil(t, err)
	assert.Equal(t, "test_code", err.Code)
	assert.Equal(t, "test message", err.Message)
	assert.Equal(t, originalErr, err.Err)
}

func TestNewDomainError_NilWrappedError(t *testing.T) {
	err := NewDomainError("test_code", "test message", nil)

	assert.NotNil(t, err)
	assert.Equal(t, "test_code", err.Code)
	assert.Equal(t, "test message", err.Message)
	assert.Nil(t, err.Err)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Field:   "email",
		Message: "must be a valid email address",
	}

	expected := "validation failed for field email: must be a valid email address"
	assert.Equal(t, expected, err.Error())
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("username", "cannot be empty")

	assert.NotNil(t, err)
	assert.Equal(t, "username", err.Field)
	assert.Equal(t, "cannot be empty", err.Message)
}

func TestErrorConstants(t *testing.T) {
	// Order errors
	assert.NotNil(t, ErrOrderNotFound)
	assert.NotNil(t, ErrInvalidAmount)
	assert.NotNil(t, ErrInvalidStateTransition)
	assert.NotNil(t, ErrOrderAlreadyPaid)
	assert.NotNil(t, ErrMissingTransactionID)

	// Gateway errors
	assert.NotNil(t, ErrGatewayTransport)
	assert.NotNil(t, ErrGatewayOpen)
	assert.NotNil(t, ErrDeclined)
	assert.NotNil(t, ErrAVSMismatch)
	assert.NotNil(t, ErrReversalFailed)
	assert.NotNil(t, ErrRefundDeclined)
	assert.NotNil(t, ErrSettlementFailed)

	// Lock errors
	assert.NotNil(t, ErrLockAcquisitionFailed)
	assert.NotNil(t, ErrLockNotHeld)
}

func TestErrorUnwrapping(t *testing.T) {
	wrappedErr := NewDomainError("gateway_error", "gateway call failed", ErrGatewayTransport)

	assert.True(t, errors.Is(wrappedErr, ErrGatewayTransport))
	assert.ErrorIs(t, wrappedErr, ErrGatewayTransport)
}

func TestNewDeclinedError(t *testing.T) {
	err := NewDeclinedError("insufficient funds")

	assert.ErrorIs(t, err, ErrDeclined)
	assert.Equal(t, CodeDeclined, err.Code)
	assert.Equal(t, "insufficient funds", err.Message)
	assert.NotErrorIs(t, err, ErrAVSMismatch)
}

func TestNewAVSMismatchError(t *testing.T) {
	err := NewAVSMismatchError()

	assert.ErrorIs(t, err, ErrAVSMismatch)
	assert.Equal(t, "unable to verify billing address", err.Message)
}

func TestNewTransportError(t *testing.T) {
	err := NewTransportError(errors.New("dial tcp: connection refused"))
	assert.ErrorIs(t, err, ErrGatewayTransport)
	assert.Equal(t, "dial tcp: connection refused", err.Message)

	err = NewTransportError(nil)
	assert.Equal(t, "gateway unreachable", err.Message)
}

func TestDescription(t *testing.T) {
	wrapped := fmt.Errorf("charge order: %w", NewDeclinedError("do not honor"))
	assert.Equal(t, "do not honor", Description(wrapped))
	assert.Equal(t, "plain", Description(errors.New("plain")))
}
