package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opsgrid/opsgrid/internal/api/dto"
	"github.com/opsgrid/opsgrid/internal/domain/payment"
	"github.com/opsgrid/opsgrid/internal/domain/subscription"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/gateway"
	"github.com/opsgrid/opsgrid/internal/pricing"
	"github.com/opsgrid/opsgrid/internal/types"
)

// RenewalService runs the recurring monthly billing batch: it charges every
// subscription whose paid-for window has lapsed and advances the billing
// period on success.
type RenewalService interface {
	// RunForDueSubscriptions processes every due subscription. One tenant
	// failing never aborts the batch.
	RunForDueSubscriptions(ctx context.Context) (*dto.BillingRunResponse, error)

	// ProcessRenewal charges and advances a single subscription.
	ProcessRenewal(ctx context.Context, sub *subscription.Subscription) error
}

type renewalService struct {
	ServiceParams
	planService   PlanService
	statusService StatusService
}

func NewRenewalService(params ServiceParams) RenewalService {
	return &renewalService{
		ServiceParams: params,
		planService:   NewPlanService(params),
		statusService: NewStatusService(params),
	}
}

func (s *renewalService) RunForDueSubscriptions(ctx context.Context) (*dto.BillingRunResponse, error) {
	now := time.Now().UTC()
	subs, err := s.SubRepo.ListDueForRenewal(ctx, now)
	if err != nil {
		return nil, err
	}

	resp := &dto.BillingRunResponse{Total: len(subs), StartedAt: now}
	for _, sub := range subs {
		tenantCtx := types.SetTenantID(ctx, sub.TenantID)
		if err := s.ProcessRenewal(tenantCtx, sub); err != nil {
			s.Logger.Errorw("renewal failed", "tenant_id", sub.TenantID, "error", err)
			resp.Failed++
			continue
		}
		resp.Succeeded++
	}

	s.Logger.Infow("renewal run complete",
		"total", resp.Total,
		"succeeded", resp.Succeeded,
		"failed", resp.Failed)
	return resp, nil
}

// ProcessRenewal applies any pending downgrade whose effective time has
// passed, charges the (possibly downgraded) plan and advances the billing
// period. A failed charge moves the subscription to past_due and leaves the
// period untouched for dunning to retry.
func (s *renewalService) ProcessRenewal(ctx context.Context, sub *subscription.Subscription) error {
	now := time.Now().UTC()

	if _, err := s.TenantRepo.Get(ctx, sub.TenantID); err != nil {
		return err
	}

	if sub.HasPendingDowngrade() && downgradeEffective(sub, now) {
		updated, err := s.planService.ApplyPendingDowngrade(ctx, sub.TenantID)
		if err != nil {
			return err
		}
		// keep the original period bounds; applyPlan only touches plan fields
		updated.BillingPeriodStartedAt = sub.BillingPeriodStartedAt
		updated.BillingPeriodEndsAt = sub.BillingPeriodEndsAt
		sub = updated
	}

	amount, err := s.renewalAmount(ctx, sub)
	if err != nil {
		return err
	}

	// free tiers advance without touching the gateway
	if amount.IsZero() {
		return s.advancePeriod(ctx, sub, now, nil)
	}

	intent, err := s.charge(ctx, sub, amount)
	if err != nil || !intent.Succeeded() {
		reason := "payment gateway unreachable"
		if err == nil {
			reason = intent.ErrorMessage
		}
		if recordErr := s.recordRenewalFailure(ctx, sub, reason); recordErr != nil {
			return recordErr
		}
		if err != nil {
			return err
		}
		return ierr.NewError("renewal charge declined").
			WithHint("The renewal payment was declined").
			WithReportableDetails(map[string]any{
				"tenant_id": sub.TenantID,
				"reason":    reason,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	return s.advancePeriod(ctx, sub, now, s.paidSnapshot(ctx, sub, amount, intent))
}

// renewalAmount prices the upcoming cycle from the purchased license count,
// falling back to live headcount for unlimited seats.
func (s *renewalService) renewalAmount(ctx context.Context, sub *subscription.Subscription) (amount decimal.Decimal, err error) {
	activeUsers := 0
	if sub.UserLimit == nil {
		activeUsers, err = s.TenantRepo.ActiveUserCount(ctx, sub.TenantID)
		if err != nil {
			return amount, err
		}
	}
	seats := pricing.BillableSeats(sub.UserLimit, activeUsers)
	return s.PriceCalc.Amount(sub.PlanTier, seats, sub.Addons), nil
}

// charge creates and confirms an off-session gateway payment for the next
// cycle.
func (s *renewalService) charge(ctx context.Context, sub *subscription.Subscription, amount decimal.Decimal) (*gateway.PaymentIntent, error) {
	cycleStart, cycleEnd := upcomingCycle(sub, time.Now().UTC())
	md := gateway.BuildMetadata(&gateway.SubscriptionMetadata{
		TenantID:   sub.TenantID,
		PlanTier:   sub.PlanTier,
		UserLimit:  sub.UserLimit,
		Addons:     sub.Addons,
		CycleStart: cycleStart,
		CycleEnd:   cycleEnd,
	})

	intent, err := s.Gateway.CreatePaymentIntent(ctx, &gateway.CreateIntentRequest{
		TenantID: sub.TenantID,
		Amount:   amount,
		Currency: s.PriceCalc.Currency(),
		Metadata: md,
	})
	if err != nil {
		return nil, err
	}
	return s.Gateway.ConfirmPayment(ctx, intent.ID, nil)
}

// advancePeriod rolls the billing window forward one month from the old
// period end and persists the optional audit snapshot.
func (s *renewalService) advancePeriod(ctx context.Context, sub *subscription.Subscription, now time.Time, snap *payment.Snapshot) error {
	return s.DB.WithTx(ctx, func(ctx context.Context) error {
		start := now
		if sub.BillingPeriodEndsAt != nil {
			start = *sub.BillingPeriodEndsAt
		}
		end := types.NextBillingPeriod(start)

		sub.BillingPeriodStartedAt = &start
		sub.BillingPeriodEndsAt = &end
		sub.NextRenewalAt = &end
		sub.LastRenewalAt = &now
		sub.FailedRenewalAttempts = 0
		sub.GracePeriodUntil = nil

		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}

		if snap != nil {
			snap.CycleStart = start
			snap.CycleEnd = end
			if err := s.PaymentRepo.Create(ctx, snap); err != nil {
				return err
			}
		}

		if _, err := s.statusService.UpdateStatus(ctx, sub.TenantID, types.SubscriptionStatusActive, types.StatusEventRenewalSucceeded, types.Metadata{
			"billing_period_ends_at": end.Format(time.RFC3339),
		}); err != nil {
			return err
		}

		s.Logger.Infow("renewed subscription",
			"tenant_id", sub.TenantID,
			"plan_tier", sub.PlanTier,
			"billing_period_ends_at", end)
		return nil
	})
}

// recordRenewalFailure moves the subscription to past_due and files a
// failure record; the attempt counter stays untouched so dunning owns it.
func (s *renewalService) recordRenewalFailure(ctx context.Context, sub *subscription.Subscription, reason string) error {
	return s.DB.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.statusService.UpdateStatus(ctx, sub.TenantID, types.SubscriptionStatusPastDue, types.StatusEventRenewalFailed, types.Metadata{
			"reason": reason,
		}); err != nil {
			return err
		}

		failure := &payment.Failure{
			ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_FAILURE),
			Reason:        reason,
			AttemptNumber: 0,
			BaseModel:     types.GetDefaultBaseModel(ctx),
		}
		failure.TenantID = sub.TenantID
		if err := s.FailureRepo.Create(ctx, failure); err != nil {
			return err
		}

		s.Logger.Warnw("renewal charge failed",
			"tenant_id", sub.TenantID,
			"reason", reason)
		return nil
	})
}

// paidSnapshot builds the audit snapshot for a successful renewal charge.
func (s *renewalService) paidSnapshot(ctx context.Context, sub *subscription.Subscription, amount decimal.Decimal, intent *gateway.PaymentIntent) *payment.Snapshot {
	now := time.Now().UTC()
	snap := &payment.Snapshot{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		PaymentNumber:   types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_PAYMENT),
		PlanTier:        sub.PlanTier,
		UserLimit:       sub.UserLimit,
		Addons:          sub.Addons,
		Amount:          amount,
		Currency:        s.PriceCalc.Currency(),
		PaymentIntentID: intent.ID,
		PaymentStatus:   types.PaymentStatusPaid,
		SucceededAt:     &now,
		AppliedAt:       &now,
		BaseModel:       types.GetDefaultBaseModel(ctx),
	}
	snap.TenantID = sub.TenantID
	return snap
}

// downgradeEffective reports whether the scheduled downgrade's effective
// time has passed.
func downgradeEffective(sub *subscription.Subscription, now time.Time) bool {
	if sub.NextRenewalAt == nil {
		return true
	}
	return !sub.NextRenewalAt.After(now)
}

// upcomingCycle bounds the window a renewal charge pays for.
func upcomingCycle(sub *subscription.Subscription, now time.Time) (time.Time, time.Time) {
	start := now
	if sub.BillingPeriodEndsAt != nil {
		start = *sub.BillingPeriodEndsAt
	}
	return start, types.NextBillingPeriod(start)
}
