package payment

import (
	"fmt"
	"strings"

	"github.com/cassiomorais/checkout/internal/gateway"
)

func successNote(r *gateway.Response) string {
	var b strings.Builder
	b.WriteString("Payment approved.\n")
	fmt.Fprintf(&b, "Transaction ID: %s\n", r.TransactionID)
	fmt.Fprintf(&b, "Auth Code: %s\n", r.AuthCode)
	fmt.Fprintf(&b, "Payment Type: %s (%s)\n", r.PaymentType, r.MaskedPAN)
	fmt.Fprintf(&b, "AVS Response: %s\n", r.AVSResponse)
	fmt.Fprintf(&b, "Authorized Amount: %s", r.AuthorizedAmount.StringFixed(2))
	return b.String()
}

func refundNote(in RefundInput, r *gateway.Response) string {
	var b strings.Builder
	b.WriteString("Refund approved.\n")
	fmt.Fprintf(&b, "Amount: %s\n", in.Amount.StringFixed(2))
	fmt.Fprintf(&b, "Auth Code: %s", r.AuthCode)
	if in.Reason != "" {
		fmt.Fprintf(&b, "\nReason: %s", in.Reason)
	}
	return b.String()
}
