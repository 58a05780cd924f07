package service

import (
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"

	"github.com/opsgrid/opsgrid/internal/domain/payment"
	"github.com/opsgrid/opsgrid/internal/domain/subscription"
	"github.com/opsgrid/opsgrid/internal/domain/tenant"
	"github.com/opsgrid/opsgrid/internal/notifier"
	"github.com/opsgrid/opsgrid/internal/pricing"
	"github.com/opsgrid/opsgrid/internal/testutil"
	"github.com/opsgrid/opsgrid/internal/types"
)

type DunningServiceSuite struct {
	testutil.BaseServiceTestSuite
	service     DunningService
	planService PlanService
}

func TestDunningService(t *testing.T) {
	suite.Run(t, new(DunningServiceSuite))
}

func (s *DunningServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
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
	s.service = NewDunningService(params)
	s.planService = NewPlanService(params)
}

// setupPastDueSubscription creates a past_due team subscription with the
// given attempt counter and grace deadline.
func (s *DunningServiceSuite) setupPastDueSubscription(tenantID string, attempts int, graceUntil *time.Time) {
	s.GetStores().TenantRepo.(*testutil.InMemoryTenantStore).Add(&tenant.Tenant{
		ID: tenantID, Name: tenantID, Slug: tenantID,
	})
	s.GetStores().TenantRepo.(*testutil.InMemoryTenantStore).SetActiveUserCount(tenantID, 5)

	_, err := s.planService.StartTrial(s.GetContext(), tenantID)
	s.NoError(err)
	_, err = s.planService.UpdatePlan(s.GetContext(), tenantID, types.PlanTierTeam, lo.ToPtr(10), nil)
	s.NoError(err)

	sub := s.getSubscription(tenantID)
	start := s.GetNow().AddDate(0, -1, 0)
	end := s.GetNow().AddDate(0, 0, -2)
	sub.SubscriptionStatus = types.SubscriptionStatusPastDue
	sub.BillingPeriodStartedAt = &start
	sub.BillingPeriodEndsAt = &end
	sub.FailedRenewalAttempts = attempts
	sub.GracePeriodUntil = graceUntil
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), sub))
}

func (s *DunningServiceSuite) getSubscription(tenantID string) *subscription.Subscription {
	sub, err := s.GetStores().SubscriptionRepo.GetByTenant(s.GetContext(), tenantID)
	s.NoError(err)
	return sub
}

func (s *DunningServiceSuite) TestRecoveryOnSuccessfulCharge() {
	grace := s.GetNow().AddDate(0, 0, 5)
	s.setupPastDueSubscription("tenant-1", 1, &grace)

	resp, err := s.service.RunDunningProcess(s.GetContext())
	s.NoError(err)
	s.Equal(1, resp.TotalChecked)
	s.Equal(1, resp.Recovered)
	s.Equal(0, resp.Failed)
	s.Equal(0, resp.Canceled)

	sub := s.getSubscription("tenant-1")
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.Equal(0, sub.FailedRenewalAttempts)
	s.Nil(sub.GracePeriodUntil)
	s.True(sub.BillingPeriodEndsAt.After(s.GetNow()))

	events := s.GetNotifier().EventsOfType(notifier.EventRecovered)
	s.Len(events, 1)
}

func (s *DunningServiceSuite) TestRecoveryResolvesPendingFailures() {
	grace := s.GetNow().AddDate(0, 0, 5)
	s.setupPastDueSubscription("tenant-1", 2, &grace)
	s.NoError(s.GetStores().FailureRepo.Create(s.GetContext(), failureFor("tenant-1", 1)))
	s.NoError(s.GetStores().FailureRepo.Create(s.GetContext(), failureFor("tenant-1", 2)))

	_, err := s.service.RunDunningProcess(s.GetContext())
	s.NoError(err)

	pending, err := s.GetStores().FailureRepo.ListPending(s.GetContext(), "tenant-1")
	s.NoError(err)
	s.Empty(pending)
}

func (s *DunningServiceSuite) TestFirstFailureOpensGraceWindow() {
	s.setupPastDueSubscription("tenant-1", 0, nil)
	s.GetGateway().DeclineAll(true)

	resp, err := s.service.RunDunningProcess(s.GetContext())
	s.NoError(err)
	s.Equal(1, resp.Failed)

	sub := s.getSubscription("tenant-1")
	s.Equal(1, sub.FailedRenewalAttempts)
	s.NotNil(sub.GracePeriodUntil)
	s.WithinDuration(s.GetNow().AddDate(0, 0, GracePeriodDays), *sub.GracePeriodUntil, time.Minute)

	events := s.GetNotifier().EventsOfType(notifier.EventRetryWarning)
	s.Len(events, 1)
	s.Equal(1, events[0].AttemptNumber)
}

func (s *DunningServiceSuite) TestLaterFailuresKeepGraceDeadline() {
	grace := s.GetNow().AddDate(0, 0, 4)
	s.setupPastDueSubscription("tenant-1", 1, &grace)
	s.GetGateway().DeclineAll(true)

	_, err := s.service.RunDunningProcess(s.GetContext())
	s.NoError(err)

	sub := s.getSubscription("tenant-1")
	s.Equal(2, sub.FailedRenewalAttempts)
	s.WithinDuration(grace, *sub.GracePeriodUntil, time.Second)
}

func (s *DunningServiceSuite) TestFinalWarningOnLastAttempt() {
	grace := s.GetNow().AddDate(0, 0, 3)
	s.setupPastDueSubscription("tenant-1", MaxRetryAttempts-1, &grace)
	s.GetGateway().DeclineAll(true)

	_, err := s.service.RunDunningProcess(s.GetContext())
	s.NoError(err)

	sub := s.getSubscription("tenant-1")
	s.Equal(MaxRetryAttempts, sub.FailedRenewalAttempts)

	events := s.GetNotifier().EventsOfType(notifier.EventFinalWarning)
	s.Len(events, 1)
	s.Equal(MaxRetryAttempts, events[0].AttemptNumber)
}

func (s *DunningServiceSuite) TestExhaustedRetriesAreSkippedInsideGrace() {
	grace := s.GetNow().AddDate(0, 0, 2)
	s.setupPastDueSubscription("tenant-1", MaxRetryAttempts, &grace)

	resp, err := s.service.RunDunningProcess(s.GetContext())
	s.NoError(err)
	s.Equal(1, resp.TotalChecked)
	s.Equal(0, resp.Recovered)
	s.Equal(0, resp.Failed)
	s.Equal(0, resp.Canceled)
	s.Equal(0, s.GetGateway().ConfirmCalls, "no charge is attempted once retries are exhausted")

	sub := s.getSubscription("tenant-1")
	s.Equal(types.SubscriptionStatusPastDue, sub.SubscriptionStatus)
}

func (s *DunningServiceSuite) TestCancellationAfterGraceExpiry() {
	expired := s.GetNow().AddDate(0, 0, -1)
	s.setupPastDueSubscription("tenant-1", MaxRetryAttempts, &expired)

	resp, err := s.service.RunDunningProcess(s.GetContext())
	s.NoError(err)
	s.Equal(1, resp.Canceled)

	sub := s.getSubscription("tenant-1")
	s.Equal(types.SubscriptionStatusCancelled, sub.SubscriptionStatus)
	s.Equal(types.PlanTierStarter, sub.PlanTier)
	s.Equal(types.StarterUserLimit, *sub.UserLimit)
	s.Equal(0, sub.FailedRenewalAttempts)
	s.Nil(sub.GracePeriodUntil)

	// starter features only
	flags, err := s.GetStores().FeatureFlags.List(s.GetContext(), "tenant-1")
	s.NoError(err)
	s.True(flags.Enabled(types.FeatureTimesheets))
	s.False(flags.Enabled(types.FeatureTravels))

	events := s.GetNotifier().EventsOfType(notifier.EventCancelled)
	s.Len(events, 1)
}

func (s *DunningServiceSuite) TestCancellationWinsOverRecovery() {
	// grace expired and a charge would succeed; cancellation still runs
	expired := s.GetNow().Add(-time.Hour)
	s.setupPastDueSubscription("tenant-1", 1, &expired)

	resp, err := s.service.RunDunningProcess(s.GetContext())
	s.NoError(err)
	s.Equal(1, resp.Canceled)
	s.Equal(0, resp.Recovered)
	s.Equal(0, s.GetGateway().ConfirmCalls)
}

func (s *DunningServiceSuite) TestMixedBatch() {
	grace := s.GetNow().AddDate(0, 0, 5)
	expired := s.GetNow().AddDate(0, 0, -1)
	s.setupPastDueSubscription("tenant-recover", 1, &grace)
	s.setupPastDueSubscription("tenant-decline", 1, &grace)
	s.setupPastDueSubscription("tenant-cancel", MaxRetryAttempts, &expired)
	s.GetGateway().DeclineTenant("tenant-decline")

	resp, err := s.service.RunDunningProcess(s.GetContext())
	s.NoError(err)
	s.Equal(3, resp.TotalChecked)
	s.Equal(1, resp.Recovered)
	s.Equal(1, resp.Failed)
	s.Equal(1, resp.Canceled)
}

func (s *DunningServiceSuite) TestCancellationPersistsWhenDowngradeFails() {
	expired := s.GetNow().AddDate(0, 0, -1)
	s.setupPastDueSubscription("tenant-1", MaxRetryAttempts, &expired)

	// break the flag store so the starter downgrade inside the
	// cancellation fails
	s.GetStores().FeatureFlags.(*testutil.InMemoryFeatureFlagStore).SetError(errors.New("flag store unavailable"))

	resp, err := s.service.RunDunningProcess(s.GetContext())
	s.NoError(err)
	s.Equal(1, resp.Canceled)
	s.Equal(0, resp.Failed)

	sub := s.getSubscription("tenant-1")
	s.Equal(types.SubscriptionStatusCancelled, sub.SubscriptionStatus)
	s.Equal(0, sub.FailedRenewalAttempts)
	s.Nil(sub.GracePeriodUntil)
	s.Nil(sub.NextRenewalAt)
}

func failureFor(tenantID string, attempt int) *payment.Failure {
	f := &payment.Failure{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_FAILURE),
		Reason:        "card_declined",
		AttemptNumber: attempt,
	}
	f.TenantID = tenantID
	return f
}
