package service

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/opsgrid/opsgrid/internal/api/dto"
	"github.com/opsgrid/opsgrid/internal/domain/planchange"
	"github.com/opsgrid/opsgrid/internal/domain/subscription"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/notifier"
	"github.com/opsgrid/opsgrid/internal/pricing"
	"github.com/opsgrid/opsgrid/internal/types"
)

// renewalPeriodDays is how far out the next renewal is pushed after an
// immediate (mid-cycle) plan change
const renewalPeriodDays = 30

// downgradeCancellationWindow is the minimum time before the next renewal
// during which a scheduled downgrade can no longer be cancelled
const downgradeCancellationWindow = 24 * time.Hour

// PlanService owns every plan-tier mutation: trials, upgrades, addon
// toggles and the scheduled-downgrade lifecycle. It is the single writer
// of tenant feature flags.
type PlanService interface {
	StartTrial(ctx context.Context, tenantID string) (*subscription.Subscription, error)
	EndTrial(ctx context.Context, tenantID string) (*subscription.Subscription, error)
	UpdatePlan(ctx context.Context, tenantID string, tier types.PlanTier, userLimit *int, addons []types.Addon) (*subscription.Subscription, error)
	ToggleAddon(ctx context.Context, tenantID string, addon types.Addon) (*dto.ToggleAddonResponse, error)
	ScheduleDowngrade(ctx context.Context, tenantID string, target types.PlanTier, targetUserLimit *int) (*dto.ScheduleDowngradeResponse, error)
	ApplyPendingDowngrade(ctx context.Context, tenantID string) (*subscription.Subscription, error)
	CancelScheduledDowngrade(ctx context.Context, tenantID string) (*subscription.Subscription, error)
	CanCancelDowngrade(sub *subscription.Subscription) bool
	ExpireDueTrials(ctx context.Context) (*dto.TrialExpiryResponse, error)
	ListPlanChanges(ctx context.Context, tenantID string, limit int) ([]*planchange.Entry, error)
}

type planService struct {
	ServiceParams
}

func NewPlanService(params ServiceParams) PlanService {
	return &planService{ServiceParams: params}
}

// StartTrial puts the tenant on a time-boxed enterprise-level trial with
// unlimited seats. An existing subscription is reset into the trial state;
// a missing one is created.
func (s *planService) StartTrial(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	if err := dto.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	trialEnd := now.AddDate(0, 0, s.Config.Billing.TrialPeriodDays)

	var result *subscription.Subscription
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		sub, err := s.SubRepo.GetByTenant(ctx, tenantID)
		if err != nil && !ierr.IsNotFound(err) {
			return err
		}

		create := sub == nil
		if create {
			sub = &subscription.Subscription{
				ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
				BaseModel: types.GetDefaultBaseModel(ctx),
			}
			sub.TenantID = tenantID
		}

		sub.PlanTier = types.PlanTierEnterprise
		sub.SubscriptionStatus = types.SubscriptionStatusTrialing
		sub.IsTrial = true
		sub.TrialEndsAt = &trialEnd
		sub.UserLimit = nil
		sub.Addons = nil
		sub.ClearPendingDowngrade()
		sub.FailedRenewalAttempts = 0
		sub.GracePeriodUntil = nil

		if create {
			if err := s.SubRepo.Create(ctx, sub); err != nil {
				return err
			}
		} else {
			if err := s.SubRepo.Update(ctx, sub); err != nil {
				return err
			}
		}

		if err := s.syncFeatures(ctx, sub); err != nil {
			return err
		}

		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("started trial", "tenant_id", tenantID, "trial_ends_at", trialEnd)
	return result, nil
}

// EndTrial converts an expired trial to the starter plan. It is a no-op on
// tenants without a subscription, without an active trial, or whose trial
// window has not closed yet.
func (s *planService) EndTrial(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	if err := dto.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.GetByTenant(ctx, tenantID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	now := time.Now().UTC()
	if !sub.IsTrial || (sub.TrialEndsAt != nil && sub.TrialEndsAt.After(now)) {
		return sub, nil
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		return s.endTrial(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// endTrial performs the actual trial-to-starter downgrade. The caller has
// already established that the trial is over.
func (s *planService) endTrial(ctx context.Context, sub *subscription.Subscription) error {
	prevTier := sub.PlanTier
	prevLimit := sub.UserLimit

	sub.PlanTier = types.PlanTierStarter
	sub.SubscriptionStatus = types.SubscriptionStatusActive
	sub.IsTrial = false
	sub.TrialEndsAt = nil
	sub.UserLimit = lo.ToPtr(types.StarterUserLimit)
	sub.Addons = nil
	sub.ClearPendingDowngrade()

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}
	if err := s.syncFeatures(ctx, sub); err != nil {
		return err
	}
	if err := s.logPlanChange(ctx, sub.TenantID, &prevTier, sub.PlanTier, prevLimit, sub.UserLimit, "trial expired, downgraded to starter"); err != nil {
		return err
	}

	s.Logger.Infow("ended trial", "tenant_id", sub.TenantID)
	return nil
}

// UpdatePlan applies a plan change immediately: tier, seat count and addons
// take effect right away and a fresh renewal date is set. nil userLimit
// keeps the current value except on starter, which is always capped.
func (s *planService) UpdatePlan(ctx context.Context, tenantID string, tier types.PlanTier, userLimit *int, addons []types.Addon) (*subscription.Subscription, error) {
	if err := dto.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if err := tier.Validate(); err != nil {
		return nil, err
	}
	for _, a := range addons {
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}

	var result *subscription.Subscription
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		sub, err := s.SubRepo.GetByTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		if err := s.applyPlan(ctx, sub, tier, userLimit, addons, "plan updated"); err != nil {
			return err
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyPlan mutates the subscription into the given plan state, persists it,
// syncs feature flags and records the change. It is the shared core behind
// immediate updates, scheduled downgrades and trial conversion.
func (s *planService) applyPlan(ctx context.Context, sub *subscription.Subscription, tier types.PlanTier, userLimit *int, addons []types.Addon, reason string) error {
	now := time.Now().UTC()
	prevTier := sub.PlanTier
	prevLimit := sub.UserLimit

	sub.PlanTier = tier
	sub.SubscriptionStatus = types.SubscriptionStatusActive
	sub.IsTrial = false
	sub.TrialEndsAt = nil
	sub.ClearPendingDowngrade()

	switch tier {
	case types.PlanTierStarter:
		sub.UserLimit = lo.ToPtr(types.StarterUserLimit)
		sub.Addons = nil
	default:
		if userLimit != nil {
			sub.UserLimit = sanitizeUserLimit(userLimit)
		} else if sub.UserLimit == nil {
			// a paid tier never keeps a trial's unlimited seats; pin the
			// license count to the current team size
			count, err := s.TenantRepo.ActiveUserCount(ctx, sub.TenantID)
			if err != nil {
				return err
			}
			sub.UserLimit = lo.ToPtr(pricing.BillableSeats(nil, count))
		}
		// addons only carry meaning on the team tier; enterprise includes
		// everything and starter includes nothing
		if tier == types.PlanTierTeam {
			if addons != nil {
				sub.Addons = lo.Uniq(addons)
			}
		} else {
			sub.Addons = nil
		}
	}

	renewal := now.AddDate(0, 0, renewalPeriodDays)
	sub.NextRenewalAt = &renewal

	if sub.SubscriptionStartDate == nil && tier != types.PlanTierStarter {
		sub.SubscriptionStartDate = &now
	}

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}
	if err := s.syncFeatures(ctx, sub); err != nil {
		return err
	}
	if err := s.logPlanChange(ctx, sub.TenantID, &prevTier, sub.PlanTier, prevLimit, sub.UserLimit, reason); err != nil {
		return err
	}

	s.Logger.Infow("applied plan change",
		"tenant_id", sub.TenantID,
		"previous_tier", prevTier,
		"new_tier", tier,
		"user_limit", sub.UserLimit)
	return nil
}

// ToggleAddon flips one addon on the team tier. Starter rejects addons and
// enterprise already includes everything, so both report no change.
func (s *planService) ToggleAddon(ctx context.Context, tenantID string, addon types.Addon) (*dto.ToggleAddonResponse, error) {
	if err := dto.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if err := addon.Validate(); err != nil {
		return nil, err
	}

	var resp *dto.ToggleAddonResponse
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		sub, err := s.SubRepo.GetByTenant(ctx, tenantID)
		if err != nil {
			return err
		}

		switch sub.PlanTier {
		case types.PlanTierStarter:
			return ierr.NewError("addons are not available on the starter plan").
				WithHint("Upgrade to the team plan to purchase addons").
				Mark(ierr.ErrInvalidOperation)
		case types.PlanTierEnterprise:
			resp = &dto.ToggleAddonResponse{Action: "no_change", Addons: sub.Addons}
			return nil
		}

		enabled := sub.ToggleAddon(addon)
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}
		if err := s.syncFeatures(ctx, sub); err != nil {
			return err
		}

		action := "disabled"
		if enabled {
			action = "enabled"
		}
		resp = &dto.ToggleAddonResponse{Action: action, Addons: sub.Addons}

		s.Logger.Infow("toggled addon", "tenant_id", tenantID, "addon", addon, "action", action)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ScheduleDowngrade records a downgrade to take effect at the end of the
// current billing period. A trial tenant converts immediately instead: there
// is no paid period to protect. Capacity is validated up front so the later
// automatic application cannot strand the tenant over its new limits.
func (s *planService) ScheduleDowngrade(ctx context.Context, tenantID string, target types.PlanTier, targetUserLimit *int) (*dto.ScheduleDowngradeResponse, error) {
	if err := dto.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if sub.IsTrial {
		updated, err := s.UpdatePlan(ctx, tenantID, target, targetUserLimit, nil)
		if err != nil {
			return nil, err
		}
		return &dto.ScheduleDowngradeResponse{
			Immediate:    true,
			Subscription: dto.NewSubscriptionResponse(updated),
		}, nil
	}

	if sub.HasPendingDowngrade() {
		return nil, ierr.NewError("a downgrade is already scheduled").
			WithHint("Cancel the scheduled downgrade before scheduling another one").
			WithReportableDetails(map[string]any{
				"pending_plan_tier": *sub.PendingPlanTier,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	if target.Hierarchy() >= sub.PlanTier.Hierarchy() {
		return nil, ierr.NewError("target plan is not a downgrade").
			WithHint("The target plan must be lower than the current plan").
			WithReportableDetails(map[string]any{
				"current_plan": sub.PlanTier,
				"target_plan":  target,
			}).
			Mark(ierr.ErrValidation)
	}

	if err := s.validateDowngradeCapacity(ctx, sub, target, targetUserLimit); err != nil {
		return nil, err
	}

	pendingLimit := sanitizeUserLimit(targetUserLimit)
	if target == types.PlanTierStarter {
		pendingLimit = lo.ToPtr(types.StarterUserLimit)
	} else if pendingLimit == nil {
		pendingLimit = sub.UserLimit
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		sub.PendingPlanTier = &target
		sub.PendingUserLimit = pendingLimit
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}
		return s.logPlanChange(ctx, sub.TenantID, &sub.PlanTier, target, sub.UserLimit, pendingLimit, "downgrade scheduled for end of billing period")
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("scheduled downgrade",
		"tenant_id", tenantID,
		"current_tier", sub.PlanTier,
		"target_tier", target,
		"effective_at", sub.NextRenewalAt)
	return &dto.ScheduleDowngradeResponse{
		Immediate:    false,
		Subscription: dto.NewSubscriptionResponse(sub),
	}, nil
}

// validateDowngradeCapacity rejects downgrades the tenant does not fit into:
// active users against the starter cap, purchased licenses against the team
// and enterprise ceilings.
func (s *planService) validateDowngradeCapacity(ctx context.Context, sub *subscription.Subscription, target types.PlanTier, targetUserLimit *int) error {
	switch target {
	case types.PlanTierStarter:
		activeUsers, err := s.TenantRepo.ActiveUserCount(ctx, sub.TenantID)
		if err != nil {
			return err
		}
		if activeUsers > types.StarterUserLimit {
			return ierr.NewError("too many active users for the starter plan").
				WithHint("Deactivate users before downgrading to starter").
				WithReportableDetails(map[string]any{
					"active_users": activeUsers,
					"starter_cap":  types.StarterUserLimit,
				}).
				Mark(ierr.ErrInvalidOperation)
		}
	case types.PlanTierTeam, types.PlanTierEnterprise:
		max := types.TeamMaxLicenses
		if target == types.PlanTierEnterprise {
			max = types.EnterpriseMaxLicenses
		}
		licenses := targetUserLimit
		if licenses == nil {
			licenses = sub.UserLimit
		}
		if licenses != nil && *licenses > max {
			return ierr.NewError("license count exceeds the target plan ceiling").
				WithHint("Reduce the license count before downgrading").
				WithReportableDetails(map[string]any{
					"licenses": *licenses,
					"ceiling":  max,
				}).
				Mark(ierr.ErrInvalidOperation)
		}
	}
	return nil
}

// ApplyPendingDowngrade copies the scheduled downgrade onto the live plan
// fields and clears it. Tenants without a pending downgrade are a no-op.
func (s *planService) ApplyPendingDowngrade(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	if err := dto.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !sub.HasPendingDowngrade() {
		return sub, nil
	}
	if sub.IsTrial {
		// trials convert immediately at scheduling time and never hold a
		// pending downgrade; reaching this state means corrupt data
		return nil, ierr.NewError("trial subscription holds a pending downgrade").
			WithHint("Contact support, the subscription is in an inconsistent state").
			Mark(ierr.ErrInvalidOperation)
	}

	target := *sub.PendingPlanTier
	targetLimit := sub.PendingUserLimit

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		return s.applyPlan(ctx, sub, target, targetLimit, nil, "scheduled downgrade applied")
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// CancelScheduledDowngrade drops a scheduled downgrade while the
// cancellation window is still open.
func (s *planService) CancelScheduledDowngrade(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	if err := dto.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !sub.HasPendingDowngrade() {
		return nil, ierr.NewError("no downgrade is scheduled").
			WithHint("There is no scheduled downgrade to cancel").
			Mark(ierr.ErrInvalidOperation)
	}
	if !s.CanCancelDowngrade(sub) {
		return nil, ierr.NewError("too close to the renewal date to cancel").
			WithHint("Scheduled downgrades lock in 24 hours before renewal").
			WithReportableDetails(map[string]any{
				"next_renewal_at": sub.NextRenewalAt,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	target := *sub.PendingPlanTier
	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		sub.ClearPendingDowngrade()
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}
		return s.logPlanChange(ctx, sub.TenantID, &target, sub.PlanTier, sub.UserLimit, sub.UserLimit, "scheduled downgrade cancelled")
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("cancelled scheduled downgrade", "tenant_id", tenantID, "target_tier", target)
	return sub, nil
}

// CanCancelDowngrade reports whether the scheduled downgrade is still more
// than the cancellation window away from taking effect.
func (s *planService) CanCancelDowngrade(sub *subscription.Subscription) bool {
	if sub == nil || !sub.HasPendingDowngrade() {
		return false
	}
	if sub.NextRenewalAt == nil {
		return true
	}
	return time.Until(*sub.NextRenewalAt) > downgradeCancellationWindow
}

// ExpireDueTrials downgrades every trial whose window has closed. One tenant
// failing does not stop the batch.
func (s *planService) ExpireDueTrials(ctx context.Context) (*dto.TrialExpiryResponse, error) {
	now := time.Now().UTC()
	subs, err := s.SubRepo.ListExpiredTrials(ctx, now)
	if err != nil {
		return nil, err
	}

	resp := &dto.TrialExpiryResponse{Total: len(subs)}
	for _, sub := range subs {
		tenantCtx := types.SetTenantID(ctx, sub.TenantID)
		err := s.DB.WithTx(tenantCtx, func(ctx context.Context) error {
			return s.endTrial(ctx, sub)
		})
		if err != nil {
			s.Logger.Errorw("failed to expire trial", "tenant_id", sub.TenantID, "error", err)
			resp.Failed++
			continue
		}

		if err := s.Notifier.Send(tenantCtx, &notifier.Event{
			Type:       notifier.EventTrialEnded,
			TenantID:   sub.TenantID,
			PlanTier:   sub.PlanTier,
			OccurredAt: now,
		}); err != nil {
			s.Logger.Warnw("failed to send trial ended notification", "tenant_id", sub.TenantID, "error", err)
		}
		resp.Ended++
	}

	s.Logger.Infow("expired due trials", "total", resp.Total, "ended", resp.Ended, "failed", resp.Failed)
	return resp, nil
}

// ListPlanChanges returns the tenant's plan change audit trail, newest
// first.
func (s *planService) ListPlanChanges(ctx context.Context, tenantID string, limit int) ([]*planchange.Entry, error) {
	if err := dto.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	return s.PlanChangeRepo.ListByTenant(ctx, tenantID, limit)
}

// syncFeatures reconciles the tenant's feature flags with the plan state.
func (s *planService) syncFeatures(ctx context.Context, sub *subscription.Subscription) error {
	fs := sub.Features()
	for _, f := range types.AllFeatures {
		var err error
		if fs.Enabled(f) {
			err = s.FeatureFlags.Activate(ctx, sub.TenantID, f)
		} else {
			err = s.FeatureFlags.Deactivate(ctx, sub.TenantID, f)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// logPlanChange appends an audit entry for a plan transition.
func (s *planService) logPlanChange(ctx context.Context, tenantID string, prevTier *types.PlanTier, newTier types.PlanTier, prevLimit, newLimit *int, reason string) error {
	actor := types.GetUserID(ctx)
	if actor == "" {
		actor = "system"
	}

	entry := &planchange.Entry{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN_CHANGE),
		PreviousPlanTier:  prevTier,
		NewPlanTier:       newTier,
		PreviousUserLimit: prevLimit,
		NewUserLimit:      newLimit,
		Actor:             actor,
		Reason:            reason,
		BaseModel:         types.GetDefaultBaseModel(ctx),
	}
	entry.TenantID = tenantID
	return s.PlanChangeRepo.Create(ctx, entry)
}

// sanitizeUserLimit treats absurd seat counts as a data error and maps them
// to unlimited rather than billing a tenant for thousands of seats.
func sanitizeUserLimit(userLimit *int) *int {
	if userLimit == nil {
		return nil
	}
	if *userLimit > types.MaxReasonableSeats {
		return nil
	}
	return lo.ToPtr(*userLimit)
}
