package service

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"

	"github.com/opsgrid/opsgrid/internal/domain/subscription"
	"github.com/opsgrid/opsgrid/internal/domain/tenant"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/notifier"
	"github.com/opsgrid/opsgrid/internal/pricing"
	"github.com/opsgrid/opsgrid/internal/testutil"
	"github.com/opsgrid/opsgrid/internal/types"
)

type PlanServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  PlanService
	testData struct {
		tenant *tenant.Tenant
	}
}

func TestPlanService(t *testing.T) {
	suite.Run(t, new(PlanServiceSuite))
}

func (s *PlanServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.setupService()
	s.setupTestData()
}

func (s *PlanServiceSuite) setupService() {
	s.service = NewPlanService(ServiceParams{
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
	})
}

func (s *PlanServiceSuite) setupTestData() {
	s.testData.tenant = &tenant.Tenant{
		ID:   "tenant-1",
		Name: "Acme Field Services",
		Slug: "acme",
	}
	s.GetStores().TenantRepo.(*testutil.InMemoryTenantStore).Add(s.testData.tenant)
	s.GetStores().TenantRepo.(*testutil.InMemoryTenantStore).SetActiveUserCount(s.testData.tenant.ID, 5)
}

func (s *PlanServiceSuite) getSubscription(tenantID string) *subscription.Subscription {
	sub, err := s.GetStores().SubscriptionRepo.GetByTenant(s.GetContext(), tenantID)
	s.NoError(err)
	return sub
}

// forceUpdate rewrites subscription fields directly in the store, bypassing
// the service, to set up mid-lifecycle states.
func (s *PlanServiceSuite) forceUpdate(tenantID string, mutate func(*subscription.Subscription)) *subscription.Subscription {
	sub := s.getSubscription(tenantID)
	mutate(sub)
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), sub))
	return sub
}

func (s *PlanServiceSuite) TestStartTrial() {
	sub, err := s.service.StartTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	s.Equal(types.PlanTierEnterprise, sub.PlanTier)
	s.Equal(types.SubscriptionStatusTrialing, sub.SubscriptionStatus)
	s.True(sub.IsTrial)
	s.Nil(sub.UserLimit)
	s.NotNil(sub.TrialEndsAt)
	s.WithinDuration(s.GetNow().AddDate(0, 0, 15), *sub.TrialEndsAt, time.Minute)

	// trial unlocks everything
	flags, err := s.GetStores().FeatureFlags.List(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	for _, f := range types.AllFeatures {
		s.True(flags.Enabled(f), "feature %s should be enabled during trial", f)
	}
}

func (s *PlanServiceSuite) TestStartTrialResetsExistingSubscription() {
	_, err := s.service.UpdatePlan(s.GetContext(), s.testData.tenant.ID, types.PlanTierTeam, lo.ToPtr(10), nil)
	s.Error(err) // no subscription yet

	_, err = s.service.StartTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	_, err = s.service.StartTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)

	sub := s.getSubscription(s.testData.tenant.ID)
	s.True(sub.IsTrial)
	s.Equal(types.PlanTierEnterprise, sub.PlanTier)
}

func (s *PlanServiceSuite) TestEndTrialConvertsToStarter() {
	_, err := s.service.StartTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	s.forceUpdate(s.testData.tenant.ID, func(sub *subscription.Subscription) {
		expired := s.GetNow().AddDate(0, 0, -1)
		sub.TrialEndsAt = &expired
	})

	sub, err := s.service.EndTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	s.Equal(types.PlanTierStarter, sub.PlanTier)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.False(sub.IsTrial)
	s.Nil(sub.TrialEndsAt)
	s.Equal(types.StarterUserLimit, *sub.UserLimit)
	s.Empty(sub.Addons)

	flags, err := s.GetStores().FeatureFlags.List(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	s.True(flags.Enabled(types.FeatureTimesheets))
	s.True(flags.Enabled(types.FeatureExpenses))
	s.False(flags.Enabled(types.FeatureTravels))
	s.False(flags.Enabled(types.FeaturePlanning))
	s.False(flags.Enabled(types.FeatureAI))

	changes, err := s.GetStores().PlanChangeRepo.ListByTenant(s.GetContext(), s.testData.tenant.ID, 10)
	s.NoError(err)
	s.Len(changes, 1)
	s.Equal(types.PlanTierStarter, changes[0].NewPlanTier)
}

func (s *PlanServiceSuite) TestEndTrialWithoutSubscriptionIsNoop() {
	sub, err := s.service.EndTrial(s.GetContext(), "tenant-unknown")
	s.NoError(err)
	s.Nil(sub)
}

func (s *PlanServiceSuite) TestEndTrialBeforeExpiryIsNoop() {
	_, err := s.service.StartTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)

	sub, err := s.service.EndTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	s.True(sub.IsTrial)
	s.Equal(types.PlanTierEnterprise, sub.PlanTier)
}

func (s *PlanServiceSuite) TestUpdatePlanSeatSanitation() {
	tests := []struct {
		name      string
		userLimit *int
		expected  *int
	}{
		{"normal count preserved", lo.ToPtr(25), lo.ToPtr(25)},
		{"boundary kept", lo.ToPtr(types.MaxReasonableSeats), lo.ToPtr(types.MaxReasonableSeats)},
		{"over boundary becomes unlimited", lo.ToPtr(types.MaxReasonableSeats + 1), nil},
		{"absurd count becomes unlimited", lo.ToPtr(99999), nil},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.StartTrial(s.GetContext(), s.testData.tenant.ID)
			s.NoError(err)

			sub, err := s.service.UpdatePlan(s.GetContext(), s.testData.tenant.ID, types.PlanTierTeam, tt.userLimit, nil)
			s.NoError(err)
			if tt.expected == nil {
				s.Nil(sub.UserLimit)
			} else {
				s.Equal(*tt.expected, *sub.UserLimit)
			}
		})
	}
}

func (s *PlanServiceSuite) TestUpdatePlanFromTrialPinsSeatsToHeadcount() {
	_, err := s.service.StartTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	s.Nil(s.getSubscription(s.testData.tenant.ID).UserLimit)

	// no explicit license count on conversion; the trial's unlimited seats
	// must not carry over to the paid tier
	sub, err := s.service.UpdatePlan(s.GetContext(), s.testData.tenant.ID, types.PlanTierTeam, nil, nil)
	s.NoError(err)
	s.NotNil(sub.UserLimit)
	s.Equal(5, *sub.UserLimit)
}

func (s *PlanServiceSuite) TestUpdatePlanSetsRenewalDate() {
	_, err := s.service.StartTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)

	sub, err := s.service.UpdatePlan(s.GetContext(), s.testData.tenant.ID, types.PlanTierTeam, lo.ToPtr(10), nil)
	s.NoError(err)
	s.NotNil(sub.NextRenewalAt)
	s.WithinDuration(s.GetNow().AddDate(0, 0, 30), *sub.NextRenewalAt, time.Minute)
}

func (s *PlanServiceSuite) TestSubscriptionStartDateIsWriteOnce() {
	_, err := s.service.StartTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)

	sub, err := s.service.UpdatePlan(s.GetContext(), s.testData.tenant.ID, types.PlanTierTeam, lo.ToPtr(10), nil)
	s.NoError(err)
	s.NotNil(sub.SubscriptionStartDate)
	firstPaidEntry := *sub.SubscriptionStartDate

	sub, err = s.service.UpdatePlan(s.GetContext(), s.testData.tenant.ID, types.PlanTierEnterprise, lo.ToPtr(100), nil)
	s.NoError(err)
	s.Equal(firstPaidEntry, *sub.SubscriptionStartDate)
}

func (s *PlanServiceSuite) TestUpdatePlanStarterAlwaysCapped() {
	_, err := s.service.StartTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)

	sub, err := s.service.UpdatePlan(s.GetContext(), s.testData.tenant.ID, types.PlanTierStarter, lo.ToPtr(40), nil)
	s.NoError(err)
	s.Equal(types.StarterUserLimit, *sub.UserLimit)
	s.Empty(sub.Addons)
}

func (s *PlanServiceSuite) TestToggleAddon() {
	_, err := s.service.StartTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	_, err = s.service.UpdatePlan(s.GetContext(), s.testData.tenant.ID, types.PlanTierTeam, lo.ToPtr(10), nil)
	s.NoError(err)

	resp, err := s.service.ToggleAddon(s.GetContext(), s.testData.tenant.ID, types.AddonPlanning)
	s.NoError(err)
	s.Equal("enabled", resp.Action)
	s.Contains(resp.Addons, types.AddonPlanning)

	flags, err := s.GetStores().FeatureFlags.List(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	s.True(flags.Enabled(types.FeaturePlanning))
	s.False(flags.Enabled(types.FeatureAI))

	resp, err = s.service.ToggleAddon(s.GetContext(), s.testData.tenant.ID, types.AddonPlanning)
	s.NoError(err)
	s.Equal("disabled", resp.Action)
	s.NotContains(resp.Addons, types.AddonPlanning)
}

func (s *PlanServiceSuite) TestToggleAddonRejectedOnStarter() {
	_, err := s.service.StartTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	_, err = s.service.UpdatePlan(s.GetContext(), s.testData.tenant.ID, types.PlanTierStarter, nil, nil)
	s.NoError(err)

	_, err = s.service.ToggleAddon(s.GetContext(), s.testData.tenant.ID, types.AddonAI)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *PlanServiceSuite) TestToggleAddonNoChangeOnEnterprise() {
	_, err := s.service.StartTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	_, err = s.service.UpdatePlan(s.GetContext(), s.testData.tenant.ID, types.PlanTierEnterprise, lo.ToPtr(100), nil)
	s.NoError(err)

	resp, err := s.service.ToggleAddon(s.GetContext(), s.testData.tenant.ID, types.AddonAI)
	s.NoError(err)
	s.Equal("no_change", resp.Action)
}

// Trial tenants convert immediately when they pick a plan; nothing is
// deferred because there is no paid period to protect.
func (s *PlanServiceSuite) TestScheduleDowngradeOnTrialConvertsImmediately() {
	_, err := s.service.StartTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)

	resp, err := s.service.ScheduleDowngrade(s.GetContext(), s.testData.tenant.ID, types.PlanTierTeam, lo.ToPtr(5))
	s.NoError(err)
	s.True(resp.Immediate)

	sub := s.getSubscription(s.testData.tenant.ID)
	s.Equal(types.PlanTierTeam, sub.PlanTier)
	s.False(sub.IsTrial)
	s.Nil(sub.TrialEndsAt)
	s.Equal(5, *sub.UserLimit)
	s.False(sub.HasPendingDowngrade())

	flags, err := s.GetStores().FeatureFlags.List(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	s.True(flags.Enabled(types.FeatureTravels))
	s.False(flags.Enabled(types.FeaturePlanning))
}

func (s *PlanServiceSuite) TestScheduleDowngradeOnPaidPlanIsDeferred() {
	s.setupPaidSubscription(types.PlanTierEnterprise, lo.ToPtr(30))

	resp, err := s.service.ScheduleDowngrade(s.GetContext(), s.testData.tenant.ID, types.PlanTierTeam, lo.ToPtr(20))
	s.NoError(err)
	s.False(resp.Immediate)

	sub := s.getSubscription(s.testData.tenant.ID)
	s.Equal(types.PlanTierEnterprise, sub.PlanTier, "current plan must stay untouched")
	s.Equal(30, *sub.UserLimit)
	s.Equal(types.PlanTierTeam, *sub.PendingPlanTier)
	s.Equal(20, *sub.PendingUserLimit)
}

func (s *PlanServiceSuite) TestScheduleDowngradeRejectsUpgrade() {
	s.setupPaidSubscription(types.PlanTierTeam, lo.ToPtr(10))

	_, err := s.service.ScheduleDowngrade(s.GetContext(), s.testData.tenant.ID, types.PlanTierEnterprise, nil)
	s.Error(err)
	s.True(ierr.IsValidation(err))

	_, err = s.service.ScheduleDowngrade(s.GetContext(), s.testData.tenant.ID, types.PlanTierTeam, lo.ToPtr(5))
	s.Error(err, "same tier is not a downgrade")
}

func (s *PlanServiceSuite) TestScheduleDowngradeRejectsSecondPending() {
	s.setupPaidSubscription(types.PlanTierEnterprise, lo.ToPtr(30))

	_, err := s.service.ScheduleDowngrade(s.GetContext(), s.testData.tenant.ID, types.PlanTierTeam, lo.ToPtr(20))
	s.NoError(err)
	_, err = s.service.ScheduleDowngrade(s.GetContext(), s.testData.tenant.ID, types.PlanTierStarter, nil)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *PlanServiceSuite) TestScheduleDowngradeStarterCapacity() {
	s.setupPaidSubscription(types.PlanTierTeam, lo.ToPtr(10))
	s.GetStores().TenantRepo.(*testutil.InMemoryTenantStore).SetActiveUserCount(s.testData.tenant.ID, 10)

	_, err := s.service.ScheduleDowngrade(s.GetContext(), s.testData.tenant.ID, types.PlanTierStarter, nil)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))

	s.GetStores().TenantRepo.(*testutil.InMemoryTenantStore).SetActiveUserCount(s.testData.tenant.ID, 2)
	resp, err := s.service.ScheduleDowngrade(s.GetContext(), s.testData.tenant.ID, types.PlanTierStarter, nil)
	s.NoError(err)
	s.False(resp.Immediate)

	sub := s.getSubscription(s.testData.tenant.ID)
	s.Equal(types.PlanTierStarter, *sub.PendingPlanTier)
	s.Equal(types.StarterUserLimit, *sub.PendingUserLimit)
}

func (s *PlanServiceSuite) TestScheduleDowngradeTeamLicenseCeiling() {
	s.setupPaidSubscription(types.PlanTierEnterprise, lo.ToPtr(60))

	// current purchased licenses exceed the team ceiling
	_, err := s.service.ScheduleDowngrade(s.GetContext(), s.testData.tenant.ID, types.PlanTierTeam, nil)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))

	// an explicit target under the ceiling passes
	_, err = s.service.ScheduleDowngrade(s.GetContext(), s.testData.tenant.ID, types.PlanTierTeam, lo.ToPtr(40))
	s.NoError(err)
}

func (s *PlanServiceSuite) TestApplyPendingDowngrade() {
	s.setupPaidSubscription(types.PlanTierEnterprise, lo.ToPtr(30))
	_, err := s.service.ScheduleDowngrade(s.GetContext(), s.testData.tenant.ID, types.PlanTierTeam, lo.ToPtr(20))
	s.NoError(err)

	sub, err := s.service.ApplyPendingDowngrade(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	s.Equal(types.PlanTierTeam, sub.PlanTier)
	s.Equal(20, *sub.UserLimit)
	s.False(sub.HasPendingDowngrade())
}

func (s *PlanServiceSuite) TestApplyPendingDowngradeWithoutPendingIsNoop() {
	s.setupPaidSubscription(types.PlanTierTeam, lo.ToPtr(10))

	sub, err := s.service.ApplyPendingDowngrade(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	s.Equal(types.PlanTierTeam, sub.PlanTier)
	s.False(sub.HasPendingDowngrade())
}

func (s *PlanServiceSuite) TestCancelScheduledDowngrade() {
	s.setupPaidSubscription(types.PlanTierEnterprise, lo.ToPtr(30))
	_, err := s.service.ScheduleDowngrade(s.GetContext(), s.testData.tenant.ID, types.PlanTierTeam, lo.ToPtr(20))
	s.NoError(err)

	sub, err := s.service.CancelScheduledDowngrade(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	s.False(sub.HasPendingDowngrade())
}

func (s *PlanServiceSuite) TestCancelScheduledDowngradeLockedNearRenewal() {
	s.setupPaidSubscription(types.PlanTierEnterprise, lo.ToPtr(30))
	_, err := s.service.ScheduleDowngrade(s.GetContext(), s.testData.tenant.ID, types.PlanTierTeam, lo.ToPtr(20))
	s.NoError(err)

	s.forceUpdate(s.testData.tenant.ID, func(sub *subscription.Subscription) {
		soon := s.GetNow().Add(12 * time.Hour)
		sub.NextRenewalAt = &soon
	})

	_, err = s.service.CancelScheduledDowngrade(s.GetContext(), s.testData.tenant.ID)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *PlanServiceSuite) TestCancelWithoutScheduledDowngrade() {
	s.setupPaidSubscription(types.PlanTierTeam, lo.ToPtr(10))

	_, err := s.service.CancelScheduledDowngrade(s.GetContext(), s.testData.tenant.ID)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *PlanServiceSuite) TestExpireDueTrials() {
	_, err := s.service.StartTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	s.forceUpdate(s.testData.tenant.ID, func(sub *subscription.Subscription) {
		expired := s.GetNow().AddDate(0, 0, -2)
		sub.TrialEndsAt = &expired
	})

	other := &tenant.Tenant{ID: "tenant-2", Name: "Fresh Co", Slug: "fresh"}
	s.GetStores().TenantRepo.(*testutil.InMemoryTenantStore).Add(other)
	_, err = s.service.StartTrial(s.GetContext(), other.ID)
	s.NoError(err)

	resp, err := s.service.ExpireDueTrials(s.GetContext())
	s.NoError(err)
	s.Equal(1, resp.Total)
	s.Equal(1, resp.Ended)
	s.Equal(0, resp.Failed)

	sub := s.getSubscription(s.testData.tenant.ID)
	s.Equal(types.PlanTierStarter, sub.PlanTier)
	s.False(sub.IsTrial)

	untouched := s.getSubscription(other.ID)
	s.True(untouched.IsTrial)

	events := s.GetNotifier().EventsOfType(notifier.EventTrialEnded)
	s.Len(events, 1)
	s.Equal(s.testData.tenant.ID, events[0].TenantID)
}

// setupPaidSubscription creates an active paid subscription with a renewal
// far enough out that downgrade scheduling and cancellation are unrestricted.
func (s *PlanServiceSuite) setupPaidSubscription(tier types.PlanTier, userLimit *int) {
	_, err := s.service.StartTrial(s.GetContext(), s.testData.tenant.ID)
	s.NoError(err)
	_, err = s.service.UpdatePlan(s.GetContext(), s.testData.tenant.ID, tier, userLimit, nil)
	s.NoError(err)
}
