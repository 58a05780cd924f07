package subscription

import (
	"time"

	"github.com/opsgrid/opsgrid/internal/types"
	"github.com/samber/lo"
)

// Subscription is the per-tenant billing aggregate. Exactly one non-deleted
// subscription exists per tenant; every plan mutation, renewal and dunning
// decision reads and writes this row.
type Subscription struct {
	// ID is the unique identifier for the subscription
	ID string `db:"id" json:"id"`

	// PlanTier is the currently effective billing tier
	PlanTier types.PlanTier `db:"plan_tier" json:"plan_tier"`

	// SubscriptionStatus governs access restrictions
	SubscriptionStatus types.SubscriptionStatus `db:"subscription_status" json:"subscription_status"`

	// IsTrial marks a time-boxed enterprise-level trial
	IsTrial bool `db:"is_trial" json:"is_trial"`

	// TrialEndsAt is when the trial window closes
	TrialEndsAt *time.Time `db:"trial_ends_at" json:"trial_ends_at"`

	// UserLimit is the purchased license count; nil means unlimited and is
	// only expected during a trial
	UserLimit *int `db:"user_limit" json:"user_limit"`

	// Addons is the set of purchased addons; only meaningful on the team tier
	Addons []types.Addon `db:"-" json:"addons"`

	// BillingPeriodStartedAt / BillingPeriodEndsAt bound the currently
	// paid-for window
	BillingPeriodStartedAt *time.Time `db:"billing_period_started_at" json:"billing_period_started_at"`
	BillingPeriodEndsAt    *time.Time `db:"billing_period_ends_at" json:"billing_period_ends_at"`

	// NextRenewalAt is when the next charge attempt occurs
	NextRenewalAt *time.Time `db:"next_renewal_at" json:"next_renewal_at"`

	// SubscriptionStartDate is set the first time a paid tier is entered and
	// never changes afterwards; it anchors renewal dates to a consistent
	// day of month
	SubscriptionStartDate *time.Time `db:"subscription_start_date" json:"subscription_start_date"`

	// PendingPlanTier / PendingUserLimit are non-nil only while a downgrade
	// is scheduled but not yet effective
	PendingPlanTier  *types.PlanTier `db:"pending_plan_tier" json:"pending_plan_tier"`
	PendingUserLimit *int            `db:"pending_user_limit" json:"pending_user_limit"`

	// FailedRenewalAttempts counts consecutive failed charges, reset on any
	// successful charge
	FailedRenewalAttempts int `db:"failed_renewal_attempts" json:"failed_renewal_attempts"`

	// GracePeriodUntil is set on the first renewal failure and cleared on
	// recovery or cancellation
	GracePeriodUntil *time.Time `db:"grace_period_until" json:"grace_period_until"`

	// LastRenewalAt is the timestamp of the most recent successful renewal
	LastRenewalAt *time.Time `db:"last_renewal_at" json:"last_renewal_at"`

	// LastStatusEvent / StatusChangedAt record what caused the most recent
	// status transition and when it happened
	LastStatusEvent types.StatusEvent `db:"last_status_event" json:"last_status_event"`
	StatusChangedAt *time.Time        `db:"status_changed_at" json:"status_changed_at"`

	// Version guards concurrent writers through optimistic locking
	Version int `db:"version" json:"version"`

	types.BaseModel
}

// HasPendingDowngrade reports whether a downgrade is scheduled but not applied
func (s *Subscription) HasPendingDowngrade() bool {
	return s.PendingPlanTier != nil
}

// HasAddon reports whether the addon is part of the purchased set
func (s *Subscription) HasAddon(addon types.Addon) bool {
	return lo.Contains(s.Addons, addon)
}

// ToggleAddon flips membership of the addon in the purchased set and
// reports whether it is enabled afterwards
func (s *Subscription) ToggleAddon(addon types.Addon) bool {
	if s.HasAddon(addon) {
		s.Addons = lo.Without(s.Addons, addon)
		return false
	}
	s.Addons = append(s.Addons, addon)
	return true
}

// ClearPendingDowngrade drops the scheduled downgrade fields
func (s *Subscription) ClearPendingDowngrade() {
	s.PendingPlanTier = nil
	s.PendingUserLimit = nil
}

// Features resolves the feature flag set for the current plan state
func (s *Subscription) Features() types.FeatureSet {
	return types.Features(s.PlanTier, s.IsTrial, s.Addons)
}

// TrialExpired reports whether an active trial has run out at the given time
func (s *Subscription) TrialExpired(now time.Time) bool {
	return s.IsTrial && s.TrialEndsAt != nil && !s.TrialEndsAt.After(now)
}

// DueForRenewal reports whether the paid-for window has lapsed
func (s *Subscription) DueForRenewal(now time.Time) bool {
	return s.SubscriptionStatus == types.SubscriptionStatusActive &&
		!s.IsTrial &&
		s.BillingPeriodEndsAt != nil &&
		!s.BillingPeriodEndsAt.After(now)
}

// GraceExpired reports whether the dunning grace window has lapsed
func (s *Subscription) GraceExpired(now time.Time) bool {
	return s.GracePeriodUntil != nil && s.GracePeriodUntil.Before(now)
}
