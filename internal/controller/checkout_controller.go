package controller

import (
	"net/http"

	"github.com/cassiomorais/checkout/internal/checkout"
)

// CheckoutController serves the card-entry widget for the checkout page.
type CheckoutController struct {
	settings checkout.Settings
}

func NewCheckoutController(settings checkout.Settings) *CheckoutController {
	return &CheckoutController{settings: settings}
}

// Fields handles GET /api/v1/checkout/fields
func (h *CheckoutController) Fields(w http.ResponseWriter, r *http.Request) {
	fields, err := checkout.RenderFields(h.settings)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}
