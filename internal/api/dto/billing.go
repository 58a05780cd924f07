package dto

import (
	"time"

	"github.com/opsgrid/opsgrid/internal/domain/planchange"
	"github.com/opsgrid/opsgrid/internal/types"
)

// BillingRunResponse summarizes one renewal batch run.
type BillingRunResponse struct {
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"started_at"`
}

// DunningRunResponse summarizes one dunning batch run.
type DunningRunResponse struct {
	TotalChecked int       `json:"total_checked"`
	Recovered    int       `json:"recovered"`
	Failed       int       `json:"failed"`
	Canceled     int       `json:"canceled"`
	StartedAt    time.Time `json:"started_at"`
}

type PlanChangeResponse struct {
	ID                string          `json:"id"`
	TenantID          string          `json:"tenant_id"`
	PreviousPlanTier  *types.PlanTier `json:"previous_plan_tier,omitempty"`
	NewPlanTier       types.PlanTier  `json:"new_plan_tier"`
	PreviousUserLimit *int            `json:"previous_user_limit,omitempty"`
	NewUserLimit      *int            `json:"new_user_limit,omitempty"`
	Actor             string          `json:"actor"`
	Reason            string          `json:"reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

func NewPlanChangeResponse(e *planchange.Entry) *PlanChangeResponse {
	if e == nil {
		return nil
	}
	return &PlanChangeResponse{
		ID:                e.ID,
		TenantID:          e.TenantID,
		PreviousPlanTier:  e.PreviousPlanTier,
		NewPlanTier:       e.NewPlanTier,
		PreviousUserLimit: e.PreviousUserLimit,
		NewUserLimit:      e.NewUserLimit,
		Actor:             e.Actor,
		Reason:            e.Reason,
		CreatedAt:         e.CreatedAt,
	}
}

type ListPlanChangesResponse struct {
	Items []*PlanChangeResponse `json:"items"`
	Total int                   `json:"total"`
}
