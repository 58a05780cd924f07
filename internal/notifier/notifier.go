package notifier

import (
	"context"
	"time"

	"github.com/opsgrid/opsgrid/internal/types"
	"github.com/shopspring/decimal"
)

// EventType names a billing lifecycle notification
type EventType string

const (
	// EventRetryWarning is sent after a failed recovery charge with attempts remaining
	EventRetryWarning EventType = "billing.retry_warning"
	// EventFinalWarning is sent after the last failed recovery charge
	EventFinalWarning EventType = "billing.final_warning"
	// EventRecovered is sent when a past-due subscription recovers
	EventRecovered EventType = "billing.recovered"
	// EventCancelled is sent when a subscription is cancelled after the grace period
	EventCancelled EventType = "billing.cancelled"
	// EventTrialEnded is sent when an expired trial is downgraded to starter
	EventTrialEnded EventType = "billing.trial_ended"
)

// Event is one billing notification. Fields beyond Type and TenantID are
// populated when they apply to the event.
type Event struct {
	Type             EventType       `json:"type"`
	TenantID         string          `json:"tenant_id"`
	PlanTier         types.PlanTier  `json:"plan_tier,omitempty"`
	Amount           decimal.Decimal `json:"amount,omitempty"`
	Currency         string          `json:"currency,omitempty"`
	AttemptNumber    int             `json:"attempt_number,omitempty"`
	GracePeriodUntil *time.Time      `json:"grace_period_until,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// Notifier delivers billing lifecycle notifications. Delivery is
// fire-and-forget from the billing jobs' perspective: a failed send is
// logged by the caller and never aborts processing.
type Notifier interface {
	Send(ctx context.Context, event *Event) error
}
