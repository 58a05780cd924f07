package pricing

import (
	"github.com/opsgrid/opsgrid/internal/config"
	"github.com/opsgrid/opsgrid/internal/types"
	"github.com/shopspring/decimal"
)

// Calculator computes the current billing amount from plan tier, purchased
// seats and addons. It is pure: the same inputs always produce the same
// amount regardless of subscription state.
type Calculator struct {
	currency   string
	seatPrices map[types.PlanTier]decimal.Decimal
	surcharges map[types.Addon]decimal.Decimal
}

// NewCalculator builds a calculator from the configured rates
func NewCalculator(cfg *config.Configuration) *Calculator {
	return &Calculator{
		currency: cfg.Billing.Currency,
		seatPrices: map[types.PlanTier]decimal.Decimal{
			types.PlanTierStarter:    decimal.Zero,
			types.PlanTierTeam:       decimal.NewFromFloat(cfg.Billing.TeamSeatPrice),
			types.PlanTierEnterprise: decimal.NewFromFloat(cfg.Billing.EnterpriseSeatPrice),
		},
		surcharges: map[types.Addon]decimal.Decimal{
			types.AddonPlanning: decimal.NewFromFloat(cfg.Billing.PlanningSurcharge),
			types.AddonAI:       decimal.NewFromFloat(cfg.Billing.AISurcharge),
		},
	}
}

// Currency returns the billing currency as a lowercase ISO code
func (c *Calculator) Currency() string {
	return c.currency
}

// Amount returns seat price x seats plus addon surcharges. Surcharges are
// percentages of the base amount, summed, so two addons of 10% and 15%
// yield base x 1.25. The enterprise tier includes every addon in its seat
// price, so addons never add to it.
func (c *Calculator) Amount(tier types.PlanTier, seats int, addons []types.Addon) decimal.Decimal {
	if seats < 0 {
		seats = 0
	}

	base := c.seatPrices[tier].Mul(decimal.NewFromInt(int64(seats)))
	if tier != types.PlanTierTeam {
		return base.Round(2)
	}

	surcharge := decimal.Zero
	for _, addon := range addons {
		surcharge = surcharge.Add(c.surcharges[addon])
	}

	return base.Add(base.Mul(surcharge)).Round(2)
}

// BillableSeats resolves the seat count a charge is based on: the purchased
// license count when set, otherwise the tenant's active user count. Billing
// follows purchased licenses, never live headcount, so temporarily
// deactivated users do not silently reduce the bill.
func BillableSeats(userLimit *int, activeUsers int) int {
	if userLimit != nil {
		return *userLimit
	}
	if activeUsers < 1 {
		return 1
	}
	return activeUsers
}
