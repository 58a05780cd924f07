package service

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"

	"github.com/opsgrid/opsgrid/internal/domain/subscription"
	"github.com/opsgrid/opsgrid/internal/domain/tenant"
	"github.com/opsgrid/opsgrid/internal/pricing"
	"github.com/opsgrid/opsgrid/internal/testutil"
	"github.com/opsgrid/opsgrid/internal/types"
)

type StatusServiceSuite struct {
	testutil.BaseServiceTestSuite
	service     StatusService
	planService PlanService
}

func TestStatusService(t *testing.T) {
	suite.Run(t, new(StatusServiceSuite))
}

func (s *StatusServiceSuite) SetupTest() {
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
	s.service = NewStatusService(params)
	s.planService = NewPlanService(params)

	s.GetStores().TenantRepo.(*testutil.InMemoryTenantStore).Add(&tenant.Tenant{
		ID: "tenant-1", Name: "Acme", Slug: "acme",
	})
	_, err := s.planService.StartTrial(s.GetContext(), "tenant-1")
	s.NoError(err)
	_, err = s.planService.UpdatePlan(s.GetContext(), "tenant-1", types.PlanTierTeam, lo.ToPtr(10), nil)
	s.NoError(err)
}

func (s *StatusServiceSuite) getSubscription(tenantID string) *subscription.Subscription {
	sub, err := s.GetStores().SubscriptionRepo.GetByTenant(s.GetContext(), tenantID)
	s.NoError(err)
	return sub
}

func (s *StatusServiceSuite) TestUpdateStatus() {
	sub, err := s.service.UpdateStatus(s.GetContext(), "tenant-1", types.SubscriptionStatusPastDue, types.StatusEventRenewalFailed, nil)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusPastDue, sub.SubscriptionStatus)
}

func (s *StatusServiceSuite) TestUpdateStatusPersistsEventAndTimestamp() {
	_, err := s.service.UpdateStatus(s.GetContext(), "tenant-1", types.SubscriptionStatusPastDue, types.StatusEventRenewalFailed, nil)
	s.NoError(err)

	// the transition cause survives a re-read, not just the response
	sub := s.getSubscription("tenant-1")
	s.Equal(types.StatusEventRenewalFailed, sub.LastStatusEvent)
	s.NotNil(sub.StatusChangedAt)
	s.WithinDuration(s.GetNow(), *sub.StatusChangedAt, time.Minute)

	// a same-status no-op leaves both untouched
	_, err = s.service.UpdateStatus(s.GetContext(), "tenant-1", types.SubscriptionStatusPastDue, types.StatusEventManualUpdate, nil)
	s.NoError(err)
	sub = s.getSubscription("tenant-1")
	s.Equal(types.StatusEventRenewalFailed, sub.LastStatusEvent)
}

func (s *StatusServiceSuite) TestUpdateStatusSameValueIsNoop() {
	before := s.getSubscription("tenant-1")

	sub, err := s.service.UpdateStatus(s.GetContext(), "tenant-1", types.SubscriptionStatusActive, types.StatusEventManualUpdate, nil)
	s.NoError(err)
	s.Equal(before.Version, sub.Version, "no write happened")
}

func (s *StatusServiceSuite) TestUpdateStatusForcedEventWrites() {
	before := s.getSubscription("tenant-1")

	sub, err := s.service.UpdateStatus(s.GetContext(), "tenant-1", types.SubscriptionStatusActive, types.StatusEventForcedUpdate, nil)
	s.NoError(err)
	s.Equal(before.Version+1, sub.Version)
}

func (s *StatusServiceSuite) TestUpdateStatusRejectsUnknownStatus() {
	_, err := s.service.UpdateStatus(s.GetContext(), "tenant-1", types.SubscriptionStatus("limbo"), types.StatusEventManualUpdate, nil)
	s.Error(err)
}

func (s *StatusServiceSuite) TestTransitionToActiveResolvesFailures() {
	_, err := s.service.UpdateStatus(s.GetContext(), "tenant-1", types.SubscriptionStatusPastDue, types.StatusEventRenewalFailed, nil)
	s.NoError(err)
	s.NoError(s.GetStores().FailureRepo.Create(s.GetContext(), failureFor("tenant-1", 1)))

	_, err = s.service.UpdateStatus(s.GetContext(), "tenant-1", types.SubscriptionStatusActive, types.StatusEventDunningRecovered, nil)
	s.NoError(err)

	pending, err := s.GetStores().FailureRepo.ListPending(s.GetContext(), "tenant-1")
	s.NoError(err)
	s.Empty(pending)
}

func (s *StatusServiceSuite) TestGetStatus() {
	s.NoError(s.GetStores().FailureRepo.Create(s.GetContext(), failureFor("tenant-1", 1)))

	resp, err := s.service.GetStatus(s.GetContext(), "tenant-1")
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, resp.Subscription.SubscriptionStatus)
	s.Equal(types.HealthLevelWarning, resp.Health.Level)
	s.True(resp.Health.RequiresAction)
	s.Len(resp.PendingFailures, 1)
	s.False(resp.Access.Restricted)
}

func (s *StatusServiceSuite) TestCalculateHealth() {
	tests := []struct {
		name            string
		status          types.SubscriptionStatus
		pendingFailures bool
		expected        types.HealthLevel
	}{
		{"active clean", types.SubscriptionStatusActive, false, types.HealthLevelHealthy},
		{"active with failures", types.SubscriptionStatusActive, true, types.HealthLevelWarning},
		{"trialing", types.SubscriptionStatusTrialing, false, types.HealthLevelHealthy},
		{"past due", types.SubscriptionStatusPastDue, false, types.HealthLevelWarning},
		{"cancelled", types.SubscriptionStatusCancelled, false, types.HealthLevelCritical},
		{"unpaid", types.SubscriptionStatusUnpaid, false, types.HealthLevelCritical},
		{"paused", types.SubscriptionStatusPaused, false, types.HealthLevelWarning},
		{"unknown", types.SubscriptionStatus("limbo"), false, types.HealthLevelUnknown},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			health := CalculateHealth(tt.status, tt.pendingFailures)
			s.Equal(tt.expected, health.Level)
			s.NotEmpty(health.Message)
		})
	}
}

func (s *StatusServiceSuite) TestAccessRestrictions() {
	tests := []struct {
		name            string
		status          types.SubscriptionStatus
		pausedRestricts bool
		restricted      bool
		warning         bool
	}{
		{"active", types.SubscriptionStatusActive, false, false, false},
		{"trialing", types.SubscriptionStatusTrialing, false, false, false},
		{"past due warns", types.SubscriptionStatusPastDue, false, false, true},
		{"cancelled blocks", types.SubscriptionStatusCancelled, false, true, false},
		{"unpaid blocks", types.SubscriptionStatusUnpaid, false, true, false},
		{"paused warns by default", types.SubscriptionStatusPaused, false, false, true},
		{"paused blocks when configured", types.SubscriptionStatusPaused, true, true, false},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			access := AccessRestrictions(tt.status, tt.pausedRestricts)
			s.Equal(tt.restricted, access.Restricted)
			s.Equal(tt.warning, access.Warning)
		})
	}
}

func (s *StatusServiceSuite) TestCheckAccessRestrictionsMissingTenant() {
	access, err := s.service.CheckAccessRestrictions(s.GetContext(), "tenant-unknown")
	s.NoError(err)
	s.True(access.Restricted)
}
