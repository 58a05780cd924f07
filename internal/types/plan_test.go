package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanTierHierarchy(t *testing.T) {
	assert.Equal(t, 1, PlanTierStarter.Hierarchy())
	assert.Equal(t, 2, PlanTierTeam.Hierarchy())
	assert.Equal(t, 3, PlanTierEnterprise.Hierarchy())
	assert.Equal(t, 0, PlanTier("mystery").Hierarchy())
}

func TestPlanTierValidate(t *testing.T) {
	assert.NoError(t, PlanTierStarter.Validate())
	assert.NoError(t, PlanTierTeam.Validate())
	assert.NoError(t, PlanTierEnterprise.Validate())
	assert.Error(t, PlanTier("premium").Validate())
	assert.Error(t, PlanTier("").Validate())
}

func TestAddonValidate(t *testing.T) {
	assert.NoError(t, AddonPlanning.Validate())
	assert.NoError(t, AddonAI.Validate())
	assert.Error(t, Addon("reporting").Validate())
}

func TestFeatures(t *testing.T) {
	tests := []struct {
		name    string
		tier    PlanTier
		isTrial bool
		addons  []Addon
		want    FeatureSet
	}{
		{
			name: "starter",
			tier: PlanTierStarter,
			want: FeatureSet{
				FeatureTimesheets: true,
				FeatureExpenses:   true,
				FeatureTravels:    false,
				FeaturePlanning:   false,
				FeatureAI:         false,
			},
		},
		{
			name: "team without addons",
			tier: PlanTierTeam,
			want: FeatureSet{
				FeatureTimesheets: true,
				FeatureExpenses:   true,
				FeatureTravels:    true,
				FeaturePlanning:   false,
				FeatureAI:         false,
			},
		},
		{
			name:   "team with planning",
			tier:   PlanTierTeam,
			addons: []Addon{AddonPlanning},
			want: FeatureSet{
				FeatureTimesheets: true,
				FeatureExpenses:   true,
				FeatureTravels:    true,
				FeaturePlanning:   true,
				FeatureAI:         false,
			},
		},
		{
			name:   "team with ai",
			tier:   PlanTierTeam,
			addons: []Addon{AddonAI},
			want: FeatureSet{
				FeatureTimesheets: true,
				FeatureExpenses:   true,
				FeatureTravels:    true,
				FeaturePlanning:   false,
				FeatureAI:         true,
			},
		},
		{
			name:   "team with both addons",
			tier:   PlanTierTeam,
			addons: []Addon{AddonPlanning, AddonAI},
			want: FeatureSet{
				FeatureTimesheets: true,
				FeatureExpenses:   true,
				FeatureTravels:    true,
				FeaturePlanning:   true,
				FeatureAI:         true,
			},
		},
		{
			name: "enterprise includes everything",
			tier: PlanTierEnterprise,
			want: FeatureSet{
				FeatureTimesheets: true,
				FeatureExpenses:   true,
				FeatureTravels:    true,
				FeaturePlanning:   true,
				FeatureAI:         true,
			},
		},
		{
			name:    "trial overrides starter",
			tier:    PlanTierStarter,
			isTrial: true,
			want: FeatureSet{
				FeatureTimesheets: true,
				FeatureExpenses:   true,
				FeatureTravels:    true,
				FeaturePlanning:   true,
				FeatureAI:         true,
			},
		},
		{
			name:    "trial overrides team regardless of addons",
			tier:    PlanTierTeam,
			isTrial: true,
			want: FeatureSet{
				FeatureTimesheets: true,
				FeatureExpenses:   true,
				FeatureTravels:    true,
				FeaturePlanning:   true,
				FeatureAI:         true,
			},
		},
		{
			name: "unknown tier falls back to base set",
			tier: PlanTier("mystery"),
			want: FeatureSet{
				FeatureTimesheets: true,
				FeatureExpenses:   true,
				FeatureTravels:    false,
				FeaturePlanning:   false,
				FeatureAI:         false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Features(tt.tier, tt.isTrial, tt.addons)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFeaturesAddonsIgnoredOutsideTeam(t *testing.T) {
	// addons on starter have no effect; the tier does not support them
	got := Features(PlanTierStarter, false, []Addon{AddonPlanning, AddonAI})
	assert.False(t, got.Enabled(FeaturePlanning))
	assert.False(t, got.Enabled(FeatureAI))
}
