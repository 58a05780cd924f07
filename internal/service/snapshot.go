package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/opsgrid/opsgrid/internal/api/dto"
	"github.com/opsgrid/opsgrid/internal/domain/payment"
	"github.com/opsgrid/opsgrid/internal/domain/subscription"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/gateway"
	"github.com/opsgrid/opsgrid/internal/pricing"
	"github.com/opsgrid/opsgrid/internal/types"
)

// SnapshotService owns the payment snapshot ledger and the checkout flow.
// A snapshot freezes exactly what was purchased at checkout time so that
// later subscription edits cannot change what a paid charge stood for.
type SnapshotService interface {
	// Checkout prices the requested plan, registers the charge with the
	// gateway and records a pending snapshot.
	Checkout(ctx context.Context, tenantID string, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error)

	// ConfirmCheckout confirms the gateway charge and, on success, applies
	// the snapshot onto the subscription.
	ConfirmCheckout(ctx context.Context, tenantID string, req *dto.ConfirmCheckoutRequest) (*dto.ConfirmCheckoutResponse, error)

	// CreateSnapshot records a pending snapshot for an externally created
	// charge. Target values default to the live subscription values.
	CreateSnapshot(ctx context.Context, tenantID string, amount decimal.Decimal, paymentIntentID string, targetTier *types.PlanTier, targetUserLimit *int, targetAddons []types.Addon) (*payment.Snapshot, error)

	// MarkPaid flags the snapshot behind the intent as paid.
	MarkPaid(ctx context.Context, paymentIntentID string) (*payment.Snapshot, error)

	// MarkFailed flags the snapshot behind the intent as failed.
	MarkFailed(ctx context.Context, paymentIntentID string, reason string) (*payment.Snapshot, error)

	// ApplySnapshot copies a paid snapshot onto the subscription. Applying
	// the same snapshot twice is a no-op.
	ApplySnapshot(ctx context.Context, paymentID string) (*subscription.Subscription, error)

	GetPayment(ctx context.Context, paymentID string) (*payment.Snapshot, error)
	ListPayments(ctx context.Context, tenantID string, limit int) ([]*payment.Snapshot, error)
}

type snapshotService struct {
	ServiceParams
	statusService StatusService
}

func NewSnapshotService(params ServiceParams) SnapshotService {
	return &snapshotService{
		ServiceParams: params,
		statusService: NewStatusService(params),
	}
}

func (s *snapshotService) Checkout(ctx context.Context, tenantID string, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	if err := dto.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	seats, err := s.billableSeats(ctx, tenantID, req.UserLimit)
	if err != nil {
		return nil, err
	}
	amount := s.PriceCalc.Amount(req.PlanTier, seats, req.Addons)

	cycleStart, cycleEnd := checkoutCycle(sub, time.Now().UTC())
	md := gateway.BuildMetadata(&gateway.SubscriptionMetadata{
		TenantID:   tenantID,
		PlanTier:   req.PlanTier,
		UserLimit:  req.UserLimit,
		Addons:     req.Addons,
		CycleStart: cycleStart,
		CycleEnd:   cycleEnd,
	})

	intent, err := s.Gateway.CreatePaymentIntent(ctx, &gateway.CreateIntentRequest{
		TenantID: tenantID,
		Amount:   amount,
		Currency: s.PriceCalc.Currency(),
		Metadata: md,
	})
	if err != nil {
		return nil, err
	}

	snap, err := s.CreateSnapshot(ctx, tenantID, amount, intent.ID, &req.PlanTier, req.UserLimit, req.Addons)
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("started checkout",
		"tenant_id", tenantID,
		"payment_id", snap.ID,
		"payment_intent_id", intent.ID,
		"amount", amount)
	return &dto.CheckoutResponse{
		PaymentID:       snap.ID,
		PaymentIntentID: intent.ID,
		Amount:          amount,
		Currency:        snap.Currency,
	}, nil
}

func (s *snapshotService) ConfirmCheckout(ctx context.Context, tenantID string, req *dto.ConfirmCheckoutRequest) (*dto.ConfirmCheckoutResponse, error) {
	if err := dto.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	snap, err := s.PaymentRepo.GetByPaymentIntentID(ctx, req.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	if snap.TenantID != tenantID {
		return nil, ierr.NewError("payment does not belong to tenant").
			WithHint("The payment was created for a different tenant").
			Mark(ierr.ErrPermissionDenied)
	}

	intent, err := s.Gateway.ConfirmPayment(ctx, req.PaymentIntentID, req.Card)
	if err != nil {
		return nil, err
	}

	if !intent.Succeeded() {
		failed, err := s.MarkFailed(ctx, req.PaymentIntentID, intent.ErrorMessage)
		if err != nil {
			return nil, err
		}
		return &dto.ConfirmCheckoutResponse{Payment: dto.NewPaymentResponse(failed)}, nil
	}

	if _, err := s.MarkPaid(ctx, req.PaymentIntentID); err != nil {
		return nil, err
	}
	sub, err := s.ApplySnapshot(ctx, snap.ID)
	if err != nil {
		return nil, err
	}

	// re-read for the applied timestamps
	snap, err = s.PaymentRepo.Get(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	return &dto.ConfirmCheckoutResponse{
		Payment:      dto.NewPaymentResponse(snap),
		Subscription: dto.NewSubscriptionResponse(sub),
	}, nil
}

func (s *snapshotService) CreateSnapshot(ctx context.Context, tenantID string, amount decimal.Decimal, paymentIntentID string, targetTier *types.PlanTier, targetUserLimit *int, targetAddons []types.Addon) (*payment.Snapshot, error) {
	if err := dto.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if paymentIntentID == "" {
		return nil, ierr.NewError("payment_intent_id is required").
			WithHint("A gateway payment intent must back every snapshot").
			Mark(ierr.ErrValidation)
	}
	if !amount.IsPositive() {
		return nil, ierr.NewError("amount must be positive").
			WithHint("Payment amount must be greater than zero").
			Mark(ierr.ErrValidation)
	}

	sub, err := s.SubRepo.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	tier := sub.PlanTier
	if targetTier != nil {
		tier = *targetTier
	}
	userLimit := sub.UserLimit
	if targetUserLimit != nil {
		userLimit = lo.ToPtr(*targetUserLimit)
	}
	if userLimit == nil {
		// checkout always lands on a paid tier; pin unlimited trial seats
		// to the current team size
		count, err := s.TenantRepo.ActiveUserCount(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		userLimit = lo.ToPtr(pricing.BillableSeats(nil, count))
	}
	addons := sub.Addons
	if targetAddons != nil {
		addons = lo.Uniq(targetAddons)
	}
	if tier != types.PlanTierTeam {
		addons = nil
	}

	cycleStart, cycleEnd := checkoutCycle(sub, time.Now().UTC())

	snap := &payment.Snapshot{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		PaymentNumber:   types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_PAYMENT),
		PlanTier:        tier,
		UserLimit:       userLimit,
		Addons:          addons,
		Amount:          amount,
		Currency:        s.PriceCalc.Currency(),
		CycleStart:      cycleStart,
		CycleEnd:        cycleEnd,
		PaymentIntentID: paymentIntentID,
		PaymentStatus:   types.PaymentStatusPending,
		BaseModel:       types.GetDefaultBaseModel(ctx),
	}
	snap.TenantID = tenantID

	if err := s.PaymentRepo.Create(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *snapshotService) MarkPaid(ctx context.Context, paymentIntentID string) (*payment.Snapshot, error) {
	snap, err := s.PaymentRepo.GetByPaymentIntentID(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if snap.PaymentStatus == types.PaymentStatusPaid {
		return snap, nil
	}

	now := time.Now().UTC()
	snap.PaymentStatus = types.PaymentStatusPaid
	snap.SucceededAt = &now
	snap.ErrorMessage = nil
	if err := s.PaymentRepo.Update(ctx, snap); err != nil {
		return nil, err
	}

	s.Logger.Infow("payment succeeded", "payment_id", snap.ID, "tenant_id", snap.TenantID)
	return snap, nil
}

func (s *snapshotService) MarkFailed(ctx context.Context, paymentIntentID string, reason string) (*payment.Snapshot, error) {
	snap, err := s.PaymentRepo.GetByPaymentIntentID(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}

	snap.PaymentStatus = types.PaymentStatusFailed
	if reason != "" {
		snap.ErrorMessage = &reason
	}
	if err := s.PaymentRepo.Update(ctx, snap); err != nil {
		return nil, err
	}

	s.Logger.Warnw("payment failed", "payment_id", snap.ID, "tenant_id", snap.TenantID, "reason", reason)
	return snap, nil
}

func (s *snapshotService) ApplySnapshot(ctx context.Context, paymentID string) (*subscription.Subscription, error) {
	snap, err := s.PaymentRepo.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if snap.PaymentStatus != types.PaymentStatusPaid {
		return nil, ierr.NewError("only paid snapshots can be applied").
			WithHint("The payment has not been confirmed yet").
			WithReportableDetails(map[string]any{
				"payment_id":     snap.ID,
				"payment_status": snap.PaymentStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	sub, err := s.SubRepo.GetByTenant(ctx, snap.TenantID)
	if err != nil {
		return nil, err
	}
	if snap.Applied() {
		return sub, nil
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()

		sub.PlanTier = snap.PlanTier
		sub.UserLimit = snap.UserLimit
		sub.Addons = snap.Addons
		sub.IsTrial = false
		sub.TrialEndsAt = nil
		sub.ClearPendingDowngrade()
		sub.BillingPeriodStartedAt = &snap.CycleStart
		sub.BillingPeriodEndsAt = &snap.CycleEnd
		sub.NextRenewalAt = &snap.CycleEnd
		sub.FailedRenewalAttempts = 0
		sub.GracePeriodUntil = nil
		if sub.SubscriptionStartDate == nil && snap.PlanTier != types.PlanTierStarter {
			sub.SubscriptionStartDate = &now
		}

		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}

		applied := now
		snap.AppliedAt = &applied
		if err := s.PaymentRepo.Update(ctx, snap); err != nil {
			return err
		}

		if _, err := s.statusService.UpdateStatus(ctx, snap.TenantID, types.SubscriptionStatusActive, types.StatusEventCheckoutPaid, types.Metadata{
			"payment_id": snap.ID,
		}); err != nil {
			return err
		}

		return s.syncFeaturesFor(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	// pick up the status write
	sub, err = s.SubRepo.GetByTenant(ctx, snap.TenantID)
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("applied payment snapshot",
		"payment_id", snap.ID,
		"tenant_id", snap.TenantID,
		"plan_tier", snap.PlanTier)
	return sub, nil
}

func (s *snapshotService) GetPayment(ctx context.Context, paymentID string) (*payment.Snapshot, error) {
	return s.PaymentRepo.Get(ctx, paymentID)
}

func (s *snapshotService) ListPayments(ctx context.Context, tenantID string, limit int) ([]*payment.Snapshot, error) {
	if err := dto.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	return s.PaymentRepo.ListByTenant(ctx, tenantID, limit)
}

// syncFeaturesFor reconciles feature flags after a snapshot application.
func (s *snapshotService) syncFeaturesFor(ctx context.Context, sub *subscription.Subscription) error {
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

// billableSeats resolves how many seats a charge should cover. A purchased
// license count wins; unlimited seats bill for the current active headcount.
func (s *snapshotService) billableSeats(ctx context.Context, tenantID string, userLimit *int) (int, error) {
	if userLimit != nil {
		return *userLimit, nil
	}
	activeUsers, err := s.TenantRepo.ActiveUserCount(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return pricing.BillableSeats(userLimit, activeUsers), nil
}

// checkoutCycle anchors the purchased window to the subscription's current
// cycle start, or to now when no cycle exists yet.
func checkoutCycle(sub *subscription.Subscription, now time.Time) (time.Time, time.Time) {
	start := now
	if sub.BillingPeriodStartedAt != nil {
		start = *sub.BillingPeriodStartedAt
	}
	return start, types.BillingCycleEnd(start)
}

// SnapshotMatchesSubscription is a pure consistency check between what a
// snapshot says was purchased and what is live on the subscription.
func SnapshotMatchesSubscription(snap *payment.Snapshot, sub *subscription.Subscription) bool {
	if snap == nil || sub == nil {
		return false
	}
	if snap.PlanTier != sub.PlanTier {
		return false
	}
	for _, addon := range types.AllAddons {
		if snap.HasAddon(addon) != sub.HasAddon(addon) {
			return false
		}
	}
	return true
}
