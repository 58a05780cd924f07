package planchange

import (
	"github.com/opsgrid/opsgrid/internal/types"
)

// Entry is one record in the append-only plan change log. Entries are never
// mutated or deleted; they exist purely for audit.
type Entry struct {
	ID string `db:"id" json:"id"`

	PreviousPlanTier  *types.PlanTier `db:"previous_plan_tier" json:"previous_plan_tier"`
	NewPlanTier       types.PlanTier  `db:"new_plan_tier" json:"new_plan_tier"`
	PreviousUserLimit *int            `db:"previous_user_limit" json:"previous_user_limit"`
	NewUserLimit      *int            `db:"new_user_limit" json:"new_user_limit"`

	// Actor identifies who or what triggered the change, e.g. a user id or
	// a job name
	Actor string `db:"actor" json:"actor"`

	// Reason is free text describing the transition
	Reason string `db:"reason" json:"reason"`

	types.BaseModel
}
