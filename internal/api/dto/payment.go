package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/opsgrid/opsgrid/internal/domain/payment"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/gateway"
	"github.com/opsgrid/opsgrid/internal/types"
)

// CheckoutRequest starts a paid checkout for a plan change. UserLimit is
// the number of licenses being purchased; when omitted the snapshot pins
// it to the tenant's current active headcount.
type CheckoutRequest struct {
	PlanTier  types.PlanTier `json:"plan_tier" validate:"required"`
	UserLimit *int           `json:"user_limit,omitempty" validate:"omitempty,min=1"`
	Addons    []types.Addon  `json:"addons,omitempty"`
}

func (r *CheckoutRequest) Validate() error {
	if err := r.PlanTier.Validate(); err != nil {
		return err
	}
	if r.PlanTier == types.PlanTierStarter {
		return ierr.NewError("starter plan does not require checkout").
			WithHint("The starter plan is free and cannot be purchased").
			Mark(ierr.ErrValidation)
	}
	for _, a := range r.Addons {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

type CheckoutResponse struct {
	PaymentID       string          `json:"payment_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

type ConfirmCheckoutRequest struct {
	PaymentIntentID string               `json:"payment_intent_id" validate:"required"`
	Card            *gateway.CardDetails `json:"card,omitempty"`
}

func (r *ConfirmCheckoutRequest) Validate() error {
	if r.PaymentIntentID == "" {
		return ierr.NewError("payment_intent_id is required").
			WithHint("Payment intent ID is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

type ConfirmCheckoutResponse struct {
	Payment      *PaymentResponse      `json:"payment"`
	Subscription *SubscriptionResponse `json:"subscription,omitempty"`
}

type PaymentResponse struct {
	ID              string              `json:"id"`
	PaymentNumber   string              `json:"payment_number"`
	TenantID        string              `json:"tenant_id"`
	PlanTier        types.PlanTier      `json:"plan_tier"`
	UserLimit       *int                `json:"user_limit,omitempty"`
	Addons          []types.Addon       `json:"addons"`
	Amount          decimal.Decimal     `json:"amount"`
	Currency        string              `json:"currency"`
	CycleStart      time.Time           `json:"cycle_start"`
	CycleEnd        time.Time           `json:"cycle_end"`
	PaymentIntentID string              `json:"payment_intent_id"`
	PaymentStatus   types.PaymentStatus `json:"payment_status"`
	SucceededAt     *time.Time          `json:"succeeded_at,omitempty"`
	AppliedAt       *time.Time          `json:"applied_at,omitempty"`
	ErrorMessage    *string             `json:"error_message,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

func NewPaymentResponse(snap *payment.Snapshot) *PaymentResponse {
	if snap == nil {
		return nil
	}
	return &PaymentResponse{
		ID:              snap.ID,
		PaymentNumber:   snap.PaymentNumber,
		TenantID:        snap.TenantID,
		PlanTier:        snap.PlanTier,
		UserLimit:       snap.UserLimit,
		Addons:          snap.Addons,
		Amount:          snap.Amount,
		Currency:        snap.Currency,
		CycleStart:      snap.CycleStart,
		CycleEnd:        snap.CycleEnd,
		PaymentIntentID: snap.PaymentIntentID,
		PaymentStatus:   snap.PaymentStatus,
		SucceededAt:     snap.SucceededAt,
		AppliedAt:       snap.AppliedAt,
		ErrorMessage:    snap.ErrorMessage,
		CreatedAt:       snap.CreatedAt,
	}
}

type PaymentFailureResponse struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Reason        string     `json:"reason"`
	AttemptNumber int        `json:"attempt_number"`
	Resolved      bool       `json:"resolved"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func NewPaymentFailureResponse(f *payment.Failure) *PaymentFailureResponse {
	if f == nil {
		return nil
	}
	return &PaymentFailureResponse{
		ID:            f.ID,
		TenantID:      f.TenantID,
		Reason:        f.Reason,
		AttemptNumber: f.AttemptNumber,
		Resolved:      f.Resolved,
		ResolvedAt:    f.ResolvedAt,
		CreatedAt:     f.CreatedAt,
	}
}

type ListPaymentsResponse struct {
	Items []*PaymentResponse `json:"items"`
	Total int                `json:"total"`
}
