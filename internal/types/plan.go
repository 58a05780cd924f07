package types

import (
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/samber/lo"
)

// PlanTier is the billing tier of a tenant subscription
type PlanTier string

const (
	// PlanTierStarter is the free base tier, capped at 2 users, no addons
	PlanTierStarter PlanTier = "starter"
	// PlanTierTeam is the mid tier with purchasable addons
	PlanTierTeam PlanTier = "team"
	// PlanTierEnterprise is the full tier, all addons included
	PlanTierEnterprise PlanTier = "enterprise"
)

// StarterUserLimit is the fixed seat cap of the starter tier
const StarterUserLimit = 2

// MaxReasonableSeats is the sanity ceiling for a requested license count;
// anything above it is treated as a data error and stored as unlimited
const MaxReasonableSeats = 500

// Downgrade capacity ceilings per target tier, validated against purchased
// licenses (team, enterprise) or active users (starter).
const (
	TeamMaxLicenses       = 50
	EnterpriseMaxLicenses = 150
)

func (p PlanTier) String() string {
	return string(p)
}

// Hierarchy returns the ordering of the tier for upgrade/downgrade
// comparisons: starter < team < enterprise.
func (p PlanTier) Hierarchy() int {
	switch p {
	case PlanTierStarter:
		return 1
	case PlanTierTeam:
		return 2
	case PlanTierEnterprise:
		return 3
	default:
		return 0
	}
}

func (p PlanTier) Validate() error {
	allowed := []PlanTier{
		PlanTierStarter,
		PlanTierTeam,
		PlanTierEnterprise,
	}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid plan tier").
			WithHint("Invalid plan tier").
			WithReportableDetails(map[string]any{
				"plan":          p,
				"allowed_plans": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Addon is an optional feature toggle purchasable on the team tier
type Addon string

const (
	AddonPlanning Addon = "planning"
	AddonAI       Addon = "ai"
)

// AllAddons lists every purchasable addon
var AllAddons = []Addon{AddonPlanning, AddonAI}

func (a Addon) String() string {
	return string(a)
}

func (a Addon) Validate() error {
	allowed := []Addon{AddonPlanning, AddonAI}
	if !lo.Contains(allowed, a) {
		return ierr.NewError("invalid addon").
			WithHint("Invalid addon").
			WithReportableDetails(map[string]any{
				"addon":          a,
				"allowed_addons": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Feature is a tenant-level feature flag controlled by the plan state
type Feature string

const (
	FeatureTimesheets Feature = "timesheets"
	FeatureExpenses   Feature = "expenses"
	FeatureTravels    Feature = "travels"
	FeaturePlanning   Feature = "planning"
	FeatureAI         Feature = "ai"
)

// AllFeatures lists every feature flag the billing core controls
var AllFeatures = []Feature{
	FeatureTimesheets,
	FeatureExpenses,
	FeatureTravels,
	FeaturePlanning,
	FeatureAI,
}

func (f Feature) String() string {
	return string(f)
}

// FeatureSet is the resolved on/off state of every feature flag
type FeatureSet map[Feature]bool

// Enabled reports whether the feature is on in the set
func (fs FeatureSet) Enabled(f Feature) bool {
	return fs[f]
}

// Features derives the feature set from the plan state. This is the single
// source of truth mapping (tier, trial, addons) to feature flags:
//
//	starter:            timesheets, expenses
//	team:               timesheets, expenses, travels + purchased addons
//	enterprise / trial: everything
//
// A trial overrides the tier and grants the full enterprise set.
func Features(tier PlanTier, isTrial bool, addons []Addon) FeatureSet {
	if isTrial || tier == PlanTierEnterprise {
		return FeatureSet{
			FeatureTimesheets: true,
			FeatureExpenses:   true,
			FeatureTravels:    true,
			FeaturePlanning:   true,
			FeatureAI:         true,
		}
	}

	switch tier {
	case PlanTierTeam:
		return FeatureSet{
			FeatureTimesheets: true,
			FeatureExpenses:   true,
			FeatureTravels:    true,
			FeaturePlanning:   lo.Contains(addons, AddonPlanning),
			FeatureAI:         lo.Contains(addons, AddonAI),
		}
	default:
		// starter and anything unrecognized fall back to the base set
		return FeatureSet{
			FeatureTimesheets: true,
			FeatureExpenses:   true,
			FeatureTravels:    false,
			FeaturePlanning:   false,
			FeatureAI:         false,
		}
	}
}
