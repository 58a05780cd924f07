package dto

import (
	"time"

	"github.com/opsgrid/opsgrid/internal/domain/subscription"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/types"
)

type UpdatePlanRequest struct {
	PlanTier  types.PlanTier `json:"plan_tier" validate:"required"`
	UserLimit *int           `json:"user_limit,omitempty" validate:"omitempty,min=1"`
	Addons    []types.Addon  `json:"addons,omitempty"`
}

func (r *UpdatePlanRequest) Validate() error {
	if err := r.PlanTier.Validate(); err != nil {
		return err
	}
	for _, a := range r.Addons {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

type ToggleAddonRequest struct {
	Addon types.Addon `json:"addon" validate:"required"`
}

func (r *ToggleAddonRequest) Validate() error {
	return r.Addon.Validate()
}

// ToggleAddonResponse reports what the toggle actually did. Action is
// "enabled", "disabled" or "no_change".
type ToggleAddonResponse struct {
	Action string        `json:"action"`
	Addons []types.Addon `json:"addons"`
}

type ScheduleDowngradeRequest struct {
	TargetPlan      types.PlanTier `json:"target_plan" validate:"required"`
	TargetUserLimit *int           `json:"target_user_limit,omitempty" validate:"omitempty,min=1"`
}

func (r *ScheduleDowngradeRequest) Validate() error {
	return r.TargetPlan.Validate()
}

// ScheduleDowngradeResponse distinguishes an immediate trial conversion
// from a downgrade deferred to the end of the billing period.
type ScheduleDowngradeResponse struct {
	Immediate    bool                  `json:"immediate"`
	Subscription *SubscriptionResponse `json:"subscription"`
}

type SubscriptionResponse struct {
	ID                    string                    `json:"id"`
	TenantID              string                    `json:"tenant_id"`
	PlanTier              types.PlanTier            `json:"plan_tier"`
	SubscriptionStatus    types.SubscriptionStatus  `json:"subscription_status"`
	IsTrial               bool                      `json:"is_trial"`
	TrialEndsAt           *time.Time                `json:"trial_ends_at,omitempty"`
	UserLimit             *int                      `json:"user_limit,omitempty"`
	Addons                []types.Addon             `json:"addons"`
	Features              types.FeatureSet          `json:"features"`
	BillingPeriodStartedAt *time.Time               `json:"billing_period_started_at,omitempty"`
	BillingPeriodEndsAt   *time.Time                `json:"billing_period_ends_at,omitempty"`
	NextRenewalAt         *time.Time                `json:"next_renewal_at,omitempty"`
	SubscriptionStartDate *time.Time                `json:"subscription_start_date,omitempty"`
	PendingPlanTier       *types.PlanTier           `json:"pending_plan_tier,omitempty"`
	PendingUserLimit      *int                      `json:"pending_user_limit,omitempty"`
	FailedRenewalAttempts int                       `json:"failed_renewal_attempts"`
	GracePeriodUntil      *time.Time                `json:"grace_period_until,omitempty"`
	LastRenewalAt         *time.Time                `json:"last_renewal_at,omitempty"`
	LastStatusEvent       types.StatusEvent         `json:"last_status_event,omitempty"`
	StatusChangedAt       *time.Time                `json:"status_changed_at,omitempty"`
	CreatedAt             time.Time                 `json:"created_at"`
	UpdatedAt             time.Time                 `json:"updated_at"`
}

func NewSubscriptionResponse(sub *subscription.Subscription) *SubscriptionResponse {
	if sub == nil {
		return nil
	}
	return &SubscriptionResponse{
		ID:                     sub.ID,
		TenantID:               sub.TenantID,
		PlanTier:               sub.PlanTier,
		SubscriptionStatus:     sub.SubscriptionStatus,
		IsTrial:                sub.IsTrial,
		TrialEndsAt:            sub.TrialEndsAt,
		UserLimit:              sub.UserLimit,
		Addons:                 sub.Addons,
		Features:               sub.Features(),
		BillingPeriodStartedAt: sub.BillingPeriodStartedAt,
		BillingPeriodEndsAt:    sub.BillingPeriodEndsAt,
		NextRenewalAt:          sub.NextRenewalAt,
		SubscriptionStartDate:  sub.SubscriptionStartDate,
		PendingPlanTier:        sub.PendingPlanTier,
		PendingUserLimit:       sub.PendingUserLimit,
		FailedRenewalAttempts:  sub.FailedRenewalAttempts,
		GracePeriodUntil:       sub.GracePeriodUntil,
		LastRenewalAt:          sub.LastRenewalAt,
		LastStatusEvent:        sub.LastStatusEvent,
		StatusChangedAt:        sub.StatusChangedAt,
		CreatedAt:              sub.CreatedAt,
		UpdatedAt:              sub.UpdatedAt,
	}
}

type UpdateStatusRequest struct {
	Status types.SubscriptionStatus `json:"status" validate:"required"`
	Event  types.StatusEvent        `json:"event,omitempty"`
	Reason string                   `json:"reason,omitempty"`
}

func (r *UpdateStatusRequest) Validate() error {
	if err := r.Status.Validate(); err != nil {
		return err
	}
	if r.Event == "" {
		r.Event = types.StatusEventManualUpdate
	}
	return nil
}

// Health summarizes how much attention a subscription needs.
type Health struct {
	Level          types.HealthLevel `json:"level"`
	Message        string            `json:"message"`
	RequiresAction bool              `json:"requires_action"`
}

// AccessRestriction tells the product surface whether tenant access
// should be blocked or merely flagged.
type AccessRestriction struct {
	Restricted bool   `json:"restricted"`
	Warning    bool   `json:"warning"`
	Reason     string `json:"reason,omitempty"`
}

type SubscriptionStatusResponse struct {
	Subscription    *SubscriptionResponse     `json:"subscription"`
	Health          Health                    `json:"health"`
	Access          AccessRestriction         `json:"access"`
	PendingFailures []*PaymentFailureResponse `json:"pending_failures"`
	RecentPayments  []*PaymentResponse        `json:"recent_payments"`
}

type TrialExpiryResponse struct {
	Total  int `json:"total"`
	Ended  int `json:"ended"`
	Failed int `json:"failed"`
}

func ValidateTenantID(tenantID string) error {
	if tenantID == "" {
		return ierr.NewError("tenant_id is required").
			WithHint("Tenant ID is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}
