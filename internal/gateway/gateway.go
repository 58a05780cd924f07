package gateway

import (
	"context"

	"github.com/opsgrid/opsgrid/internal/types"
	"github.com/shopspring/decimal"
)

// PaymentIntent is the gateway-side representation of a charge
type PaymentIntent struct {
	ID           string                    `json:"id"`
	Status       types.PaymentIntentStatus `json:"status"`
	Amount       decimal.Decimal           `json:"amount"`
	Currency     string                    `json:"currency"`
	Metadata     types.Metadata            `json:"metadata"`
	ErrorMessage string                    `json:"error_message,omitempty"`
}

// Succeeded reports whether the intent confirmed successfully
func (p *PaymentIntent) Succeeded() bool {
	return p.Status == types.PaymentIntentStatusSucceeded
}

// CardDetails carries raw card data for interactive confirmation. Off-session
// charges (renewal, dunning) confirm against the stored payment method and
// pass nil.
type CardDetails struct {
	Number   string `json:"number"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
	CVC      string `json:"cvc"`
}

// CreateIntentRequest describes a charge to be created
type CreateIntentRequest struct {
	TenantID string          `json:"tenant_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Metadata types.Metadata  `json:"metadata"`
}

// Gateway is the external payment processor capability. Two interchangeable
// implementations exist: the Stripe-backed one and a fake for development
// and tests, selected by configuration.
type Gateway interface {
	// CreatePaymentIntent registers a charge with the gateway and returns
	// the pending intent.
	CreatePaymentIntent(ctx context.Context, req *CreateIntentRequest) (*PaymentIntent, error)

	// ConfirmPayment confirms a previously created intent. Card data is
	// optional; nil confirms off-session against the stored payment method.
	// A declined charge is reported through the intent status, not an error;
	// errors are reserved for transport failures.
	ConfirmPayment(ctx context.Context, intentID string, card *CardDetails) (*PaymentIntent, error)
}
