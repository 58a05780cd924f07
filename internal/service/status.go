package service

import (
	"context"
	"fmt"
	"time"

	"github.com/opsgrid/opsgrid/internal/api/dto"
	"github.com/opsgrid/opsgrid/internal/domain/subscription"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/types"
)

// recentPaymentsLimit bounds the payment history embedded in a status report
const recentPaymentsLimit = 5

// StatusService is the single writer of the subscription_status column.
// Renewal, dunning and checkout all route status transitions through it so
// side effects (failure resolution, audit logging) happen exactly once.
type StatusService interface {
	UpdateStatus(ctx context.Context, tenantID string, status types.SubscriptionStatus, event types.StatusEvent, metadata types.Metadata) (*subscription.Subscription, error)
	GetStatus(ctx context.Context, tenantID string) (*dto.SubscriptionStatusResponse, error)
	CheckAccessRestrictions(ctx context.Context, tenantID string) (*dto.AccessRestriction, error)
}

type statusService struct {
	ServiceParams
}

func NewStatusService(params ServiceParams) StatusService {
	return &statusService{ServiceParams: params}
}

// UpdateStatus transitions the subscription into the given status. Setting
// the current status again is a no-op unless the event forces a write.
// Transitioning into active resolves every pending payment failure.
func (s *statusService) UpdateStatus(ctx context.Context, tenantID string, status types.SubscriptionStatus, event types.StatusEvent, metadata types.Metadata) (*subscription.Subscription, error) {
	if err := dto.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if err := status.Validate(); err != nil {
		return nil, err
	}

	var result *subscription.Subscription
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		sub, err := s.SubRepo.GetByTenant(ctx, tenantID)
		if err != nil {
			return err
		}

		previous := sub.SubscriptionStatus
		if previous == status && !event.Forced() {
			result = sub
			return nil
		}

		now := time.Now().UTC()
		sub.SubscriptionStatus = status
		sub.LastStatusEvent = event
		sub.StatusChangedAt = &now
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}

		if status == types.SubscriptionStatusActive &&
			(previous == types.SubscriptionStatusPastDue || previous == types.SubscriptionStatusUnpaid) {
			resolved, err := s.FailureRepo.ResolveAllForTenant(ctx, tenantID)
			if err != nil {
				return err
			}
			if resolved > 0 {
				s.Logger.Infow("resolved payment failures", "tenant_id", tenantID, "count", resolved)
			}
		}

		s.Logger.Infow("subscription status changed",
			"tenant_id", tenantID,
			"previous_status", previous,
			"new_status", status,
			"event", event,
			"metadata", metadata)
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetStatus assembles the full billing health picture for one tenant:
// subscription state, derived health level, access restrictions, pending
// failures and recent payments.
func (s *statusService) GetStatus(ctx context.Context, tenantID string) (*dto.SubscriptionStatusResponse, error) {
	if err := dto.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	failures, err := s.FailureRepo.ListPending(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	payments, err := s.PaymentRepo.ListByTenant(ctx, tenantID, recentPaymentsLimit)
	if err != nil {
		return nil, err
	}

	resp := &dto.SubscriptionStatusResponse{
		Subscription: dto.NewSubscriptionResponse(sub),
		Health:       CalculateHealth(sub.SubscriptionStatus, len(failures) > 0),
		Access:       AccessRestrictions(sub.SubscriptionStatus, s.Config.Billing.PausedRestrictsAccess),
	}
	for _, f := range failures {
		resp.PendingFailures = append(resp.PendingFailures, dto.NewPaymentFailureResponse(f))
	}
	for _, p := range payments {
		resp.RecentPayments = append(resp.RecentPayments, dto.NewPaymentResponse(p))
	}
	return resp, nil
}

// CheckAccessRestrictions resolves whether the tenant's product access should
// be blocked or flagged, based on the stored subscription status.
func (s *statusService) CheckAccessRestrictions(ctx context.Context, tenantID string) (*dto.AccessRestriction, error) {
	if err := dto.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.GetByTenant(ctx, tenantID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return &dto.AccessRestriction{
				Restricted: true,
				Reason:     "no subscription found",
			}, nil
		}
		return nil, err
	}

	access := AccessRestrictions(sub.SubscriptionStatus, s.Config.Billing.PausedRestrictsAccess)
	return &access, nil
}

// CalculateHealth maps subscription status and pending failures to a health
// level. Pure, no I/O.
func CalculateHealth(status types.SubscriptionStatus, hasPendingFailures bool) dto.Health {
	var level types.HealthLevel
	var message string

	switch status {
	case types.SubscriptionStatusActive, types.SubscriptionStatusTrialing:
		if hasPendingFailures {
			level = types.HealthLevelWarning
			message = "subscription is active but has unresolved payment failures"
		} else {
			level = types.HealthLevelHealthy
			message = "subscription is in good standing"
		}
	case types.SubscriptionStatusPastDue:
		level = types.HealthLevelWarning
		message = "payment is past due, automatic retries are in progress"
	case types.SubscriptionStatusCancelled, types.SubscriptionStatusUnpaid:
		level = types.HealthLevelCritical
		message = fmt.Sprintf("subscription is %s", status)
	case types.SubscriptionStatusPaused:
		level = types.HealthLevelWarning
		message = "subscription is paused"
	default:
		level = types.HealthLevelUnknown
		message = "subscription status could not be interpreted"
	}

	return dto.Health{
		Level:          level,
		Message:        message,
		RequiresAction: level.RequiresAction(),
	}
}

// AccessRestrictions maps subscription status to product access. Pure, no
// I/O; pausedRestricts comes from configuration.
func AccessRestrictions(status types.SubscriptionStatus, pausedRestricts bool) dto.AccessRestriction {
	switch status {
	case types.SubscriptionStatusCancelled:
		return dto.AccessRestriction{Restricted: true, Reason: "subscription is cancelled"}
	case types.SubscriptionStatusUnpaid:
		return dto.AccessRestriction{Restricted: true, Reason: "subscription is unpaid"}
	case types.SubscriptionStatusPaused:
		if pausedRestricts {
			return dto.AccessRestriction{Restricted: true, Reason: "subscription is paused"}
		}
		return dto.AccessRestriction{Warning: true, Reason: "subscription is paused"}
	case types.SubscriptionStatusPastDue:
		return dto.AccessRestriction{Warning: true, Reason: "payment is past due"}
	default:
		return dto.AccessRestriction{}
	}
}
