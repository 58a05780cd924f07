package types

import (
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/samber/lo"
)

// PaymentStatus is the lifecycle status of a payment snapshot
type PaymentStatus string

const (
	// PaymentStatusPending is the initial state at checkout time
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid means the gateway confirmed the charge
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed means the gateway rejected the charge
	PaymentStatusFailed PaymentStatus = "failed"
)

func (s PaymentStatus) String() string {
	return string(s)
}

func (s PaymentStatus) Validate() error {
	allowed := []PaymentStatus{
		PaymentStatusPending,
		PaymentStatusPaid,
		PaymentStatusFailed,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid payment status").
			WithHint("Invalid payment status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PaymentIntentStatus is the status a gateway reports for a payment intent
type PaymentIntentStatus string

const (
	PaymentIntentStatusPending   PaymentIntentStatus = "pending"
	PaymentIntentStatusSucceeded PaymentIntentStatus = "succeeded"
	PaymentIntentStatusFailed    PaymentIntentStatus = "failed"
)

func (s PaymentIntentStatus) String() string {
	return string(s)
}
