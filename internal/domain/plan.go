/**
 * @description
 * Static investment plan catalog. Plans are configured in code and versioned with
 * the service; changing a plan never retroactively affects existing investments,
 * which snapshot their rate and duration at creation time.
 */
package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrPlanNotFound is returned when an investment references an unknown plan name.
var ErrPlanNotFound = errors.New("plan not found")

// Plan defines one investment tier.
type Plan struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	MinAmount          decimal.Decimal `json:"min_amount"`
	MaxAmount          decimal.Decimal `json:"max_amount"` // zero = unbounded
	DailyProfitPercent decimal.Decimal `json:"daily_profit_percent"`
	DurationDays       int             `json:"duration_days"`
	TotalReturnPercent decimal.Decimal `json:"total_return_percent"`
}

// Unbounded reports whether the plan has no upper principal limit.
func (p Plan) Unbounded() bool {
	return p.MaxAmount.IsZero()
}

// AcceptsAmount reports whether a principal falls within the plan's range.
func (p Plan) AcceptsAmount(amount decimal.Decimal) bool {
	if amount.LessThan(p.MinAmount) {
		return false
	}
	if p.Unbounded() {
		return true
	}
	return amount.LessThanOrEqual(p.MaxAmount)
}

// Legacy records reference plans by display name, not id, so the catalog is
// keyed by name.
var plans = []Plan{
	{
		ID:                 "starter",
		Name:               "Starter Plan",
		MinAmount:          decimal.NewFromInt(50),
		MaxAmount:          decimal.NewFromInt(999),
		DailyProfitPercent: decimal.NewFromInt(2),
		DurationDays:       3,
		TotalReturnPercent: decimal.NewFromInt(106),
	},
	{
		ID:                 "premium",
		Name:               "Premium Plan",
		MinAmount:          decimal.NewFromInt(1000),
		MaxAmount:          decimal.NewFromInt(4999),
		DailyProfitPercent: decimal.NewFromFloat(3.5),
		DurationDays:       7,
		TotalReturnPercent: decimal.NewFromFloat(124.5),
	},
	{
		ID:                 "delux",
		Name:               "Delux Plan",
		MinAmount:          decimal.NewFromInt(5000),
		MaxAmount:          decimal.NewFromInt(19999),
		DailyProfitPercent: decimal.NewFromInt(5),
		DurationDays:       10,
		TotalReturnPercent: decimal.NewFromInt(150),
	},
	{
		ID:                 "luxury",
		Name:               "Luxury Plan",
		MinAmount:          decimal.NewFromInt(20000),
		MaxAmount:          decimal.Decimal{},
		DailyProfitPercent: decimal.NewFromFloat(7.5),
		DurationDays:       30,
		TotalReturnPercent: decimal.NewFromInt(325),
	},
}

// PlanByName looks up a plan by its display name.
func PlanByName(name string) (Plan, error) {
	for _, p := range plans {
		if p.Name == name {
			return p, nil
		}
	}
	return Plan{}, ErrPlanNotFound
}

// Plans returns the full catalog in tier order.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}
