package types

import (
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/samber/lo"
)

// SubscriptionStatus is the status of a subscription
// Taking inspiration from Stripe's subscription statuses
// https://stripe.com/docs/api/subscriptions/object#subscription_object-status
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusTrialing  SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusUnpaid    SubscriptionStatus = "unpaid"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

func (s SubscriptionStatus) Validate() error {
	allowed := []SubscriptionStatus{
		SubscriptionStatusActive,
		SubscriptionStatusTrialing,
		SubscriptionStatusPastDue,
		SubscriptionStatusCancelled,
		SubscriptionStatusPaused,
		SubscriptionStatusUnpaid,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid subscription status").
			WithHint("Invalid subscription status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// StatusEvent names the trigger behind a subscription status transition
type StatusEvent string

const (
	StatusEventRenewalSucceeded StatusEvent = "renewal_succeeded"
	StatusEventRenewalFailed    StatusEvent = "renewal_failed"
	StatusEventDunningRecovered StatusEvent = "dunning_recovered"
	StatusEventDunningCancelled StatusEvent = "dunning_cancelled"
	StatusEventCheckoutPaid     StatusEvent = "checkout_paid"
	StatusEventManualUpdate     StatusEvent = "manual_update"
	StatusEventForcedUpdate     StatusEvent = "forced_update"
)

func (e StatusEvent) String() string {
	return string(e)
}

// Forced reports whether the event must be persisted even when the status
// value itself is unchanged
func (e StatusEvent) Forced() bool {
	return e == StatusEventForcedUpdate
}

// HealthLevel is the computed billing health of a tenant
type HealthLevel string

const (
	HealthLevelHealthy  HealthLevel = "healthy"
	HealthLevelWarning  HealthLevel = "warning"
	HealthLevelCritical HealthLevel = "critical"
	HealthLevelUnknown  HealthLevel = "unknown"
)

func (h HealthLevel) String() string {
	return string(h)
}

// RequiresAction reports whether the tenant has to act to keep full access
func (h HealthLevel) RequiresAction() bool {
	return h == HealthLevelWarning || h == HealthLevelCritical
}
