package pricing

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"

	"github.com/opsgrid/opsgrid/internal/config"
	"github.com/opsgrid/opsgrid/internal/types"
)

func newTestCalculator() *Calculator {
	return NewCalculator(&config.Configuration{
		Billing: config.BillingConfig{
			Currency:            "usd",
			TeamSeatPrice:       29,
			EnterpriseSeatPrice: 49,
			PlanningSurcharge:   0.10,
			AISurcharge:         0.15,
		},
	})
}

func TestAmount(t *testing.T) {
	calc := newTestCalculator()

	tests := []struct {
		name   string
		tier   types.PlanTier
		seats  int
		addons []types.Addon
		want   string
	}{
		{"starter is free", types.PlanTierStarter, 2, nil, "0"},
		{"team base", types.PlanTierTeam, 10, nil, "290"},
		{"team with planning", types.PlanTierTeam, 10, []types.Addon{types.AddonPlanning}, "319"},
		{"team with ai", types.PlanTierTeam, 10, []types.Addon{types.AddonAI}, "333.5"},
		{"team with both addons", types.PlanTierTeam, 10, []types.Addon{types.AddonPlanning, types.AddonAI}, "362.5"},
		{"enterprise base", types.PlanTierEnterprise, 10, nil, "490"},
		{"enterprise ignores addons", types.PlanTierEnterprise, 10, []types.Addon{types.AddonPlanning, types.AddonAI}, "490"},
		{"single seat", types.PlanTierTeam, 1, nil, "29"},
		{"zero seats", types.PlanTierTeam, 0, nil, "0"},
		{"negative seats clamp to zero", types.PlanTierTeam, -3, nil, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.Amount(tt.tier, tt.seats, tt.addons)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestAmountRounding(t *testing.T) {
	calc := NewCalculator(&config.Configuration{
		Billing: config.BillingConfig{
			Currency:      "usd",
			TeamSeatPrice: 29.99,
			AISurcharge:   0.15,
		},
	})

	// 3 x 29.99 = 89.97, x1.15 = 103.4655 -> 103.47
	got := calc.Amount(types.PlanTierTeam, 3, []types.Addon{types.AddonAI})
	assert.Equal(t, "103.47", got.String())
}

func TestBillableSeats(t *testing.T) {
	// purchased licenses win over live headcount
	assert.Equal(t, 10, BillableSeats(lo.ToPtr(10), 3))
	assert.Equal(t, 10, BillableSeats(lo.ToPtr(10), 50))

	// unlimited seats bill the active user count, floored at one
	assert.Equal(t, 7, BillableSeats(nil, 7))
	assert.Equal(t, 1, BillableSeats(nil, 0))
	assert.Equal(t, 1, BillableSeats(nil, -2))
}

func TestCurrency(t *testing.T) {
	assert.Equal(t, "usd", newTestCalculator().Currency())
}
