package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

const maxBodySize = 64 << 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names so clients see the field they sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domainErrors.ErrOrderNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrOrderAlreadyPaid, http.StatusConflict, "already_paid"},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{domainErrors.ErrDuplicateIdempotencyKey, http.StatusConflict, "duplicate_request"},
	{domainErrors.ErrDeclined, http.StatusPaymentRequired, "declined"},
	{domainErrors.ErrAVSMismatch, http.StatusUnprocessableEntity, "avs_mismatch"},
	{domainErrors.ErrGatewayOpen, http.StatusBadGateway, "gateway_unavailable"},
	{domainErrors.ErrGatewayTransport, http.StatusBadGateway, "gateway_transport"},
	{domainErrors.ErrSettlementFailed, http.StatusInternalServerError, "settlement_failed"},
	{domainErrors.ErrGatewayDisabled, http.StatusServiceUnavailable, "gateway_disabled"},
	{domainErrors.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{domainErrors.ErrLockAcquisitionFailed, http.StatusConflict, "busy"},
	{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps an error to its HTTP status, code and client-facing message.
func statusFor(err error) (int, string, string) {
	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, "validation_error", err.Error()
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code, domainErrors.Description(err)
		}
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		return http.StatusUnprocessableEntity, domainErr.Code, domainErr.Message
	}

	return http.StatusInternalServerError, "internal_error", "internal server error"
}

func writeError(w http.ResponseWriter, err error) {
	status, code, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("unhandled error in handler")
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return domainErrors.NewValidationError(fieldPath(ve[0]), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}

// fieldPath drops the top-level struct name from the validator namespace,
// e.g. "BatchRefundRequest.refunds[0].amount" becomes "refunds[0].amount".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}
