package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opsgrid/opsgrid/internal/api/dto"
	"github.com/opsgrid/opsgrid/internal/domain/payment"
	"github.com/opsgrid/opsgrid/internal/domain/subscription"
	"github.com/opsgrid/opsgrid/internal/gateway"
	"github.com/opsgrid/opsgrid/internal/notifier"
	"github.com/opsgrid/opsgrid/internal/pricing"
	"github.com/opsgrid/opsgrid/internal/types"
)

const (
	// MaxRetryAttempts is how many recovery charges are attempted before a
	// past-due subscription is left to ride out its grace period
	MaxRetryAttempts = 3

	// GracePeriodDays is how long a tenant keeps access after the first
	// failed renewal before automatic cancellation
	GracePeriodDays = 7
)

// DunningService recovers past-due subscriptions: it retries charges up to
// MaxRetryAttempts, warns the tenant along the way and cancels down to the
// starter plan once the grace period lapses.
type DunningService interface {
	// RunDunningProcess processes every past-due subscription. One tenant
	// failing never aborts the batch.
	RunDunningProcess(ctx context.Context) (*dto.DunningRunResponse, error)
}

type dunningService struct {
	ServiceParams
	planService   PlanService
	statusService StatusService
}

func NewDunningService(params ServiceParams) DunningService {
	return &dunningService{
		ServiceParams: params,
		planService:   NewPlanService(params),
		statusService: NewStatusService(params),
	}
}

func (s *dunningService) RunDunningProcess(ctx context.Context) (*dto.DunningRunResponse, error) {
	now := time.Now().UTC()
	subs, err := s.SubRepo.ListPastDue(ctx)
	if err != nil {
		return nil, err
	}

	resp := &dto.DunningRunResponse{TotalChecked: len(subs), StartedAt: now}
	for _, sub := range subs {
		tenantCtx := types.SetTenantID(ctx, sub.TenantID)
		outcome, err := s.processOne(tenantCtx, sub, now)
		if err != nil {
			s.Logger.Errorw("dunning failed for tenant", "tenant_id", sub.TenantID, "error", err)
			resp.Failed++
			continue
		}
		switch outcome {
		case outcomeRecovered:
			resp.Recovered++
		case outcomeCancelled:
			resp.Canceled++
		case outcomeChargeFailed:
			resp.Failed++
		}
	}

	s.Logger.Infow("dunning run complete",
		"total_checked", resp.TotalChecked,
		"recovered", resp.Recovered,
		"failed", resp.Failed,
		"canceled", resp.Canceled)
	return resp, nil
}

type dunningOutcome int

const (
	outcomeSkipped dunningOutcome = iota
	outcomeRecovered
	outcomeChargeFailed
	outcomeCancelled
)

// processOne decides the fate of one past-due subscription: cancel it when
// the grace period has lapsed, skip it when retries are exhausted, otherwise
// attempt one recovery charge.
func (s *dunningService) processOne(ctx context.Context, sub *subscription.Subscription, now time.Time) (dunningOutcome, error) {
	if _, err := s.TenantRepo.Get(ctx, sub.TenantID); err != nil {
		return outcomeSkipped, err
	}

	if sub.GraceExpired(now) {
		if err := s.cancelSubscription(ctx, sub, now); err != nil {
			return outcomeSkipped, err
		}
		return outcomeCancelled, nil
	}

	if sub.FailedRenewalAttempts >= MaxRetryAttempts {
		// retries exhausted; the subscription waits out its grace period
		return outcomeSkipped, nil
	}

	return s.attemptRecovery(ctx, sub, now)
}

// attemptRecovery runs one recovery charge. Success restores the
// subscription and advances the billing period; failure increments the
// attempt counter, opens the grace window on the first failure and warns the
// tenant. Gateway transport failures count as failed attempts like declines.
func (s *dunningService) attemptRecovery(ctx context.Context, sub *subscription.Subscription, now time.Time) (dunningOutcome, error) {
	attemptNumber := sub.FailedRenewalAttempts + 1

	amount, err := s.recoveryAmount(ctx, sub)
	if err != nil {
		return outcomeSkipped, err
	}

	intent, chargeErr := s.charge(ctx, sub, amount)
	if chargeErr == nil && intent.Succeeded() {
		if err := s.recover(ctx, sub, now, amount, intent); err != nil {
			return outcomeSkipped, err
		}
		return outcomeRecovered, nil
	}

	reason := "payment gateway unreachable"
	if chargeErr == nil {
		reason = intent.ErrorMessage
	}
	if err := s.recordFailedAttempt(ctx, sub, now, attemptNumber, reason); err != nil {
		return outcomeSkipped, err
	}
	return outcomeChargeFailed, nil
}

// recover restores a past-due subscription after a successful charge.
func (s *dunningService) recover(ctx context.Context, sub *subscription.Subscription, now time.Time, amount decimal.Decimal, intent *gateway.PaymentIntent) error {
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
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

		snap := &payment.Snapshot{
			ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
			PaymentNumber:   types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_PAYMENT),
			PlanTier:        sub.PlanTier,
			UserLimit:       sub.UserLimit,
			Addons:          sub.Addons,
			Amount:          amount,
			Currency:        s.PriceCalc.Currency(),
			CycleStart:      start,
			CycleEnd:        end,
			PaymentIntentID: intent.ID,
			PaymentStatus:   types.PaymentStatusPaid,
			SucceededAt:     &now,
			AppliedAt:       &now,
			BaseModel:       types.GetDefaultBaseModel(ctx),
		}
		snap.TenantID = sub.TenantID
		if err := s.PaymentRepo.Create(ctx, snap); err != nil {
			return err
		}

		_, err := s.statusService.UpdateStatus(ctx, sub.TenantID, types.SubscriptionStatusActive, types.StatusEventDunningRecovered, types.Metadata{
			"payment_intent_id": intent.ID,
		})
		return err
	})
	if err != nil {
		return err
	}

	if err := s.Notifier.Send(ctx, &notifier.Event{
		Type:       notifier.EventRecovered,
		TenantID:   sub.TenantID,
		PlanTier:   sub.PlanTier,
		Amount:     amount,
		Currency:   s.PriceCalc.Currency(),
		OccurredAt: now,
	}); err != nil {
		s.Logger.Warnw("failed to send recovery notification", "tenant_id", sub.TenantID, "error", err)
	}

	s.Logger.Infow("recovered past-due subscription", "tenant_id", sub.TenantID)
	return nil
}

// recordFailedAttempt bumps the attempt counter, opens the grace window on
// the first failure and files a failure record.
func (s *dunningService) recordFailedAttempt(ctx context.Context, sub *subscription.Subscription, now time.Time, attemptNumber int, reason string) error {
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		sub.FailedRenewalAttempts = attemptNumber
		if sub.GracePeriodUntil == nil {
			grace := now.AddDate(0, 0, GracePeriodDays)
			sub.GracePeriodUntil = &grace
		}
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}

		failure := &payment.Failure{
			ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_FAILURE),
			Reason:        reason,
			AttemptNumber: attemptNumber,
			BaseModel:     types.GetDefaultBaseModel(ctx),
		}
		failure.TenantID = sub.TenantID
		return s.FailureRepo.Create(ctx, failure)
	})
	if err != nil {
		return err
	}

	eventType := notifier.EventRetryWarning
	if attemptNumber >= MaxRetryAttempts {
		eventType = notifier.EventFinalWarning
	}
	if err := s.Notifier.Send(ctx, &notifier.Event{
		Type:             eventType,
		TenantID:         sub.TenantID,
		PlanTier:         sub.PlanTier,
		AttemptNumber:    attemptNumber,
		GracePeriodUntil: sub.GracePeriodUntil,
		OccurredAt:       now,
	}); err != nil {
		s.Logger.Warnw("failed to send dunning warning", "tenant_id", sub.TenantID, "error", err)
	}

	s.Logger.Warnw("recovery charge failed",
		"tenant_id", sub.TenantID,
		"attempt", attemptNumber,
		"reason", reason)
	return nil
}

// cancelSubscription downgrades the tenant to starter and marks the
// subscription cancelled after the grace period lapsed. The downgrade runs
// first so the tenant never sits cancelled on a paid tier, but a downgrade
// failure never keeps a delinquent subscription alive: the cancellation is
// persisted regardless.
func (s *dunningService) cancelSubscription(ctx context.Context, sub *subscription.Subscription, now time.Time) error {
	if _, err := s.planService.UpdatePlan(ctx, sub.TenantID, types.PlanTierStarter, nil, nil); err != nil {
		s.Logger.Errorw("downgrade to starter failed during cancellation",
			"tenant_id", sub.TenantID,
			"error", err)
	}

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		// re-read: the downgrade just rewrote the row
		fresh, err := s.SubRepo.GetByTenant(ctx, sub.TenantID)
		if err != nil {
			return err
		}

		fresh.FailedRenewalAttempts = 0
		fresh.GracePeriodUntil = nil
		fresh.NextRenewalAt = nil
		if err := s.SubRepo.Update(ctx, fresh); err != nil {
			return err
		}

		_, err = s.statusService.UpdateStatus(ctx, sub.TenantID, types.SubscriptionStatusCancelled, types.StatusEventDunningCancelled, types.Metadata{
			"grace_expired_at": now.Format(time.RFC3339),
		})
		return err
	})
	if err != nil {
		return err
	}

	if err := s.Notifier.Send(ctx, &notifier.Event{
		Type:       notifier.EventCancelled,
		TenantID:   sub.TenantID,
		PlanTier:   types.PlanTierStarter,
		OccurredAt: now,
	}); err != nil {
		s.Logger.Warnw("failed to send cancellation notification", "tenant_id", sub.TenantID, "error", err)
	}

	s.Logger.Infow("cancelled subscription after grace period", "tenant_id", sub.TenantID)
	return nil
}

// recoveryAmount prices the recovery charge the same way a renewal does.
func (s *dunningService) recoveryAmount(ctx context.Context, sub *subscription.Subscription) (amount decimal.Decimal, err error) {
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

// charge creates and confirms an off-session recovery payment.
func (s *dunningService) charge(ctx context.Context, sub *subscription.Subscription, amount decimal.Decimal) (*gateway.PaymentIntent, error) {
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
