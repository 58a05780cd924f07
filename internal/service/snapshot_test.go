package service

import (
	"testing"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/opsgrid/opsgrid/internal/api/dto"
	"github.com/opsgrid/opsgrid/internal/domain/tenant"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/pricing"
	"github.com/opsgrid/opsgrid/internal/testutil"
	"github.com/opsgrid/opsgrid/internal/types"
)

type SnapshotServiceSuite struct {
	testutil.BaseServiceTestSuite
	service     SnapshotService
	planService PlanService
	testData    struct {
		tenant *tenant.Tenant
	}
}

func TestSnapshotService(t *testing.T) {
	suite.Run(t, new(SnapshotServiceSuite))
}

func (s *SnapshotServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.setupService()
	s.setupTestData()
}

func (s *SnapshotServiceSuite) setupService() {
	params := ServiceParams{
		Logger:         s.GetLogger(),
		Config:         s.GetConfig(),
		DB:             s.GetDB(),
		SubRepo:        s.GetStores().SubscriptionRepo,
		PaymentRepo:    s.GetStores().PaymentRepo,
		FailureRepo:    s.GetStores().FailureRepo,
		PlanChangeRepo: s.GetStores().PlanChangeRepo,
		TenantRepo:     s.GetStores().TenantRepo,
		FeatureFlags:   s.GetStores().FeatureFlags,
		Gateway:        s.GetGateway(),
		Notifier:       s.GetNotifier(),
		PriceCalc:      pricing.NewCalculator(s.GetConfig()),
	}
	s.service = NewSnapshotService(params)
	s.planService = NewPlanService(params)
}

func (s *SnapshotServiceSuite) setupTestData() {
	s.testData.tenant = &tenant.Tenant{ID: "tenant-1", Name: "Acme Field Services", Slug: "acme"}
	s.GetStores().TenantRepo.(*testutil.InMemoryTenantStore).Add(s.testData.tenant)
	s.GetStores().TenantRepo.(*testutil.InMemoryTenantStore).SetActiveUserCount(s.testData.tenant.ID, 4)

	_, err := s.planService.StartTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
}

func (s *SnapshotServiceSuite) TestCheckoutCreatesPendingSnapshot() {
	resp, err := s.service.Checkout(s.GetContext(), s.testData.tenant.ID, &dto.CheckoutRequest{
		PlanTier:  types.PlanTierTeam,
		UserLimit: lo.ToPtr(10),
		Addons:    []types.Addon{types.AddonPlanning},
	})
	s.NoError(err)
	s.NotEmpty(resp.PaymentIntentID)
	// 10 seats x 29 with a 10% planning surcharge
	s.True(decimal.NewFromFloat(319).Equal(resp.Amount), "got %s", resp.Amount)

	snap, err := s.service.GetPayment(s.GetContext(), resp.PaymentID)
	s.NoError(err)
	s.Equal(types.PaymentStatusPending, snap.PaymentStatus)
	s.Equal(types.PlanTierTeam, snap.PlanTier)
	s.Equal(10, *snap.UserLimit)
	s.True(snap.HasAddon(types.AddonPlanning))
	s.Contains(snap.PaymentNumber, "PAY-")
	s.True(snap.CycleEnd.After(snap.CycleStart))
}

func (s *SnapshotServiceSuite) TestCheckoutRejectsStarter() {
	_, err := s.service.Checkout(s.GetContext(), s.testData.tenant.ID, &dto.CheckoutRequest{
		PlanTier: types.PlanTierStarter,
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *SnapshotServiceSuite) TestCheckoutWithoutLimitPinsSeatsToHeadcount() {
	resp, err := s.service.Checkout(s.GetContext(), s.testData.tenant.ID, &dto.CheckoutRequest{
		PlanTier: types.PlanTierTeam,
	})
	s.NoError(err)

	snap, err := s.service.GetPayment(s.GetContext(), resp.PaymentID)
	s.NoError(err)
	s.NotNil(snap.UserLimit)
	s.Equal(4, *snap.UserLimit)
	// 4 seats x 29
	s.True(decimal.NewFromInt(116).Equal(resp.Amount), "got %s", resp.Amount)
}

func (s *SnapshotServiceSuite) TestCreateSnapshotRejectsNonPositiveAmount() {
	_, err := s.service.CreateSnapshot(s.GetContext(), s.testData.tenant.ID,
		decimal.Zero, "pi_manual_1", lo.ToPtr(types.PlanTierTeam), lo.ToPtr(10), nil)
	s.Error(err)
	s.True(ierr.IsValidation(err))

	_, err = s.service.CreateSnapshot(s.GetContext(), s.testData.tenant.ID,
		decimal.NewFromInt(-29), "pi_manual_2", lo.ToPtr(types.PlanTierTeam), lo.ToPtr(10), nil)
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *SnapshotServiceSuite) TestConfirmCheckoutAppliesSnapshot() {
	resp, err := s.service.Checkout(s.GetContext(), s.testData.tenant.ID, &dto.CheckoutRequest{
		PlanTier:  types.PlanTierTeam,
		UserLimit: lo.ToPtr(10),
		Addons:    []types.Addon{types.AddonAI},
	})
	s.NoError(err)

	confirm, err := s.service.ConfirmCheckout(s.GetContext(), s.testData.tenant.ID, &dto.ConfirmCheckoutRequest{
		PaymentIntentID: resp.PaymentIntentID,
	})
	s.NoError(err)
	s.Equal(types.PaymentStatusPaid, confirm.Payment.PaymentStatus)
	s.NotNil(confirm.Payment.SucceededAt)
	s.NotNil(confirm.Payment.AppliedAt)

	// checkout ends the trial and copies the snapshot onto the subscription
	sub := confirm.Subscription
	s.Equal(types.PlanTierTeam, sub.PlanTier)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.False(sub.IsTrial)
	s.Equal(10, *sub.UserLimit)
	s.Contains(sub.Addons, types.AddonAI)
	s.NotNil(sub.BillingPeriodEndsAt)
	s.NotNil(sub.SubscriptionStartDate)
}

func (s *SnapshotServiceSuite) TestConfirmCheckoutDecline() {
	resp, err := s.service.Checkout(s.GetContext(), s.testData.tenant.ID, &dto.CheckoutRequest{
		PlanTier:  types.PlanTierTeam,
		UserLimit: lo.ToPtr(5),
	})
	s.NoError(err)

	s.GetGateway().DeclineAll(true)
	confirm, err := s.service.ConfirmCheckout(s.GetContext(), s.testData.tenant.ID, &dto.ConfirmCheckoutRequest{
		PaymentIntentID: resp.PaymentIntentID,
	})
	s.NoError(err)
	s.Equal(types.PaymentStatusFailed, confirm.Payment.PaymentStatus)
	s.NotNil(confirm.Payment.ErrorMessage)
	s.Nil(confirm.Subscription)

	// subscription untouched
	sub, err := s.GetStores().SubscriptionRepo.GetByTenant(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	s.True(sub.IsTrial)
	s.Equal(types.PlanTierEnterprise, sub.PlanTier)
}

func (s *SnapshotServiceSuite) TestApplySnapshotRejectsUnpaid() {
	snap, err := s.service.CreateSnapshot(s.GetContext(), s.testData.tenant.ID,
		decimal.NewFromInt(290), "pi_test_1", lo.ToPtr(types.PlanTierTeam), lo.ToPtr(10), nil)
	s.NoError(err)

	_, err = s.service.ApplySnapshot(s.GetContext(), snap.ID)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *SnapshotServiceSuite) TestApplySnapshotIsIdempotent() {
	resp, err := s.service.Checkout(s.GetContext(), s.testData.tenant.ID, &dto.CheckoutRequest{
		PlanTier:  types.PlanTierTeam,
		UserLimit: lo.ToPtr(10),
	})
	s.NoError(err)
	_, err = s.service.ConfirmCheckout(s.GetContext(), s.testData.tenant.ID, &dto.ConfirmCheckoutRequest{
		PaymentIntentID: resp.PaymentIntentID,
	})
	s.NoError(err)

	before, err := s.GetStores().SubscriptionRepo.GetByTenant(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)

	// applying the same snapshot again must not advance anything
	sub, err := s.service.ApplySnapshot(s.GetContext(), resp.PaymentID)
	s.NoError(err)
	s.Equal(before.BillingPeriodEndsAt, sub.BillingPeriodEndsAt)
	s.Equal(before.Version, sub.Version)
}

func (s *SnapshotServiceSuite) TestSnapshotFreezesTargetValues() {
	// snapshot records what is being purchased, not the live trial state
	snap, err := s.service.CreateSnapshot(s.GetContext(), s.testData.tenant.ID,
		decimal.NewFromInt(290), "pi_test_2", lo.ToPtr(types.PlanTierTeam), lo.ToPtr(10),
		[]types.Addon{types.AddonPlanning})
	s.NoError(err)
	s.Equal(types.PlanTierTeam, snap.PlanTier)
	s.Equal(10, *snap.UserLimit)
	s.True(snap.HasAddon(types.AddonPlanning))

	// later subscription edits leave the snapshot untouched
	_, err = s.planService.UpdatePlan(s.GetContext(), s.testData.tenant.ID, types.PlanTierEnterprise, lo.ToPtr(100), nil)
	s.NoError(err)
	stored, err := s.service.GetPayment(s.GetContext(), snap.ID)
	s.NoError(err)
	s.Equal(types.PlanTierTeam, stored.PlanTier)
	s.Equal(10, *stored.UserLimit)
}

func (s *SnapshotServiceSuite) TestConfirmCheckoutWrongTenant() {
	resp, err := s.service.Checkout(s.GetContext(), s.testData.tenant.ID, &dto.CheckoutRequest{
		PlanTier:  types.PlanTierTeam,
		UserLimit: lo.ToPtr(5),
	})
	s.NoError(err)

	_, err = s.service.ConfirmCheckout(s.GetContext(), "tenant-other", &dto.ConfirmCheckoutRequest{
		PaymentIntentID: resp.PaymentIntentID,
	})
	s.Error(err)
}

func (s *SnapshotServiceSuite) TestSnapshotMatchesSubscription() {
	snap, err := s.service.CreateSnapshot(s.GetContext(), s.testData.tenant.ID,
		decimal.NewFromInt(290), "pi_test_3", lo.ToPtr(types.PlanTierTeam), lo.ToPtr(10),
		[]types.Addon{types.AddonAI})
	s.NoError(err)

	sub, err := s.GetStores().SubscriptionRepo.GetByTenant(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	s.False(SnapshotMatchesSubscription(snap, sub), "trial enterprise does not match a team snapshot")

	sub.PlanTier = types.PlanTierTeam
	sub.Addons = []types.Addon{types.AddonAI}
	s.True(SnapshotMatchesSubscription(snap, sub))

	sub.Addons = []types.Addon{types.AddonPlanning}
	s.False(SnapshotMatchesSubscription(snap, sub))
}
