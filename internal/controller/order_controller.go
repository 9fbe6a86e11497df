package controller

import (
	"net/http"
	"strconv"

	paymentApp "github.com/cassiomorais/checkout/internal/application/payment"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/order"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// OrderController handles order, payment and refund requests.
type OrderController struct {
	orders  order.Repository
	payment *paymentApp.ProcessPaymentUseCase
	refund  *paymentApp.ProcessRefundUseCase
	batch   *paymentApp.EnqueueRefundsUseCase
}

func NewOrderController(
	orders order.Repository,
	payment *paymentApp.ProcessPaymentUseCase,
	refund *paymentApp.ProcessRefundUseCase,
	batch *paymentApp.EnqueueRefundsUseCase,
) *OrderController {
	return &OrderController{
		orders:  orders,
		payment: payment,
		refund:  refund,
		batch:   batch,
	}
}

// Create handles POST /api/v1/orders
func (h *OrderController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	total, err := parseAmount("total", req.Total)
	if err != nil {
		writeError(w, err)
		return
	}

	o, err := order.NewOrder(total, req.Currency)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.orders.Create(r.Context(), o); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromOrder(o, nil))
}

// Get handles GET /api/v1/orders/{id}
func (h *OrderController) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if o == nil {
		writeError(w, domainErrors.ErrOrderNotFound)
		return
	}
	notes, err := h.orders.GetNotes(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromOrder(o, notes))
}

// SubmitPayment handles POST /api/v1/orders/{id}/payment
func (h *OrderController) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req SubmitPaymentRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.payment.Execute(r.Context(), id, paymentApp.PaymentDetails{
		Token:      req.Token,
		Address:    req.Address,
		PostalCode: req.PostalCode,
	})
	if err != nil {
		status, code, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Str("order_id", id.String()).Msg("payment failed")
		}
		writeJSON(w, status, PaymentResponse{Result: paymentApp.ResultFailure, Error: msg, Code: code})
		return
	}

	writeJSON(w, http.StatusOK, PaymentResponse{
		Result:        res.Result,
		RedirectURL:   res.RedirectURL,
		TransactionID: res.TransactionID,
	})
}

// Refund handles POST /api/v1/orders/{id}/refunds
func (h *OrderController) Refund(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req RefundOrderRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	refunded, err := h.refund.Execute(r.Context(), id, amount, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	// The outcome and the gateway's reason are on the order notes.
	writeJSON(w, http.StatusOK, RefundResponse{Refunded: refunded})
}

// BatchRefund handles POST /api/v1/refunds/batch
func (h *OrderController) BatchRefund(w http.ResponseWriter, r *http.Request) {
	var req BatchRefundRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	reqs := make([]paymentApp.RefundRequest, 0, len(req.Refunds))
	for i, item := range req.Refunds {
		amount, err := parseAmount(refundField(i, "amount"), item.Amount)
		if err != nil {
			writeError(w, err)
			return
		}
		reqs = append(reqs, paymentApp.RefundRequest{
			OrderID: uuid.MustParse(item.OrderID),
			Amount:  amount,
			Reason:  item.Reason,
		})
	}

	ids, err := h.batch.Execute(r.Context(), reqs)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, BatchRefundResponse{Queued: len(ids), MessageIDs: ids})
}

func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid order id", Code: "invalid_id"})
		return uuid.Nil, false
	}
	return id, true
}

func refundField(i int, name string) string {
	return "refunds[" + strconv.Itoa(i) + "]." + name
}
