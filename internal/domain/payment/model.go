package payment

import (
	"time"

	"github.com/opsgrid/opsgrid/internal/types"
	"github.com/shopspring/decimal"
)

// Snapshot is an immutable record of exactly what a tenant is buying at
// checkout time, decoupled from later subscription mutations. It doubles as
// the invoice/audit trail and is never deleted.
type Snapshot struct {
	// ID is the unique identifier for the payment snapshot
	ID string `db:"id" json:"id"`

	// PaymentNumber is the short human-facing reference, e.g. PAY-XY12A8Q
	PaymentNumber string `db:"payment_number" json:"payment_number"`

	// PlanTier / UserLimit / Addons capture the TARGET values being
	// purchased, not whatever happens to be live on the subscription row
	PlanTier  types.PlanTier `db:"plan_tier" json:"plan_tier"`
	UserLimit *int           `db:"user_limit" json:"user_limit"`
	Addons    []types.Addon  `db:"-" json:"addons"`

	// Amount / Currency is the charged price
	Amount   decimal.Decimal `db:"amount" json:"amount"`
	Currency string          `db:"currency" json:"currency"`

	// CycleStart / CycleEnd bound the billing window being paid for
	CycleStart time.Time `db:"cycle_start" json:"cycle_start"`
	CycleEnd   time.Time `db:"cycle_end" json:"cycle_end"`

	// PaymentIntentID references the gateway object
	PaymentIntentID string `db:"payment_intent_id" json:"payment_intent_id"`

	// PaymentStatus tracks pending -> paid/failed
	PaymentStatus types.PaymentStatus `db:"payment_status" json:"payment_status"`

	// SucceededAt is when the gateway confirmed the charge
	SucceededAt *time.Time `db:"succeeded_at" json:"succeeded_at"`

	// AppliedAt is when the snapshot was copied onto the subscription;
	// guards against double application
	AppliedAt *time.Time `db:"applied_at" json:"applied_at"`

	// ErrorMessage carries the gateway failure reason, if any
	ErrorMessage *string `db:"error_message" json:"error_message"`

	Metadata types.Metadata `db:"-" json:"metadata"`

	types.BaseModel
}

// Applied reports whether the snapshot has already been copied onto the
// subscription
func (s *Snapshot) Applied() bool {
	return s.AppliedAt != nil
}

// HasAddon reports whether the addon is part of the purchased set
func (s *Snapshot) HasAddon(addon types.Addon) bool {
	for _, a := range s.Addons {
		if a == addon {
			return true
		}
	}
	return false
}

// Failure records a failed charge attempt for a tenant. Failures stay
// pending until a successful charge resolves them.
type Failure struct {
	ID            string     `db:"id" json:"id"`
	Reason        string     `db:"reason" json:"reason"`
	AttemptNumber int        `db:"attempt_number" json:"attempt_number"`
	Resolved      bool       `db:"resolved" json:"resolved"`
	ResolvedAt    *time.Time `db:"resolved_at" json:"resolved_at"`

	types.BaseModel
}
