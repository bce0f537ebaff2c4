package proration

import (
	"math"
	"time"

	"github.com/kimgyuhyun/ott-project-sub001/app/models"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/apperrors"
)

// ChangeType classifies a plan switch by price direction.
type ChangeType string

const (
	ChangeUpgrade   ChangeType = "UPGRADE"
	ChangeDowngrade ChangeType = "DOWNGRADE"
)

// Change is the calculator's verdict: when the switch takes effect and what
// it costs. Downgrades cost nothing and wait for the next renewal.
type Change struct {
	Type        ChangeType
	EffectiveAt time.Time
	Amount      models.Money
}

// ChangePlan computes cost and effective date for a mid-cycle plan switch.
// Upgrades are effective immediately at the day-prorated price difference,
// rounded to the nearest minor unit and never negative. Equal-price changes
// must be rejected by the caller before reaching the calculator.
func ChangePlan(sub *models.MembershipSubscription, currentPlan, newPlan *models.MembershipPlan, now time.Time) (*Change, error) {
	if sub == nil || currentPlan == nil || newPlan == nil {
		return nil, apperrors.Validation("subscription and both plans are required")
	}
	if currentPlan.PriceCurrency != newPlan.PriceCurrency {
		return nil, apperrors.Validation("cannot prorate across currencies %s and %s", currentPlan.PriceCurrency, newPlan.PriceCurrency)
	}

	periodEnd := periodEndOf(sub, currentPlan, now)

	if newPlan.PriceAmount < currentPlan.PriceAmount {
		zero, err := models.NewMoney(0, newPlan.PriceCurrency)
		if err != nil {
			return nil, err
		}
		return &Change{Type: ChangeDowngrade, EffectiveAt: periodEnd, Amount: zero}, nil
	}

	periodStart := periodEnd.AddDate(0, -monthsOf(currentPlan), 0)
	totalDays := daysBetween(periodStart, periodEnd)
	remainingDays := daysBetween(now, periodEnd)
	if remainingDays < 0 {
		remainingDays = 0
	}
	if totalDays <= 0 {
		totalDays = 1
	}

	diff := newPlan.PriceAmount - currentPlan.PriceAmount
	prorated := int64(math.Round(float64(diff) * remainingDays / totalDays))
	amount, err := models.NewMoney(prorated, newPlan.PriceCurrency)
	if err != nil {
		return nil, err
	}
	return &Change{Type: ChangeUpgrade, EffectiveAt: now, Amount: amount}, nil
}

// periodEndOf anchors the current billing period. NextBillingAt is
// authoritative; EndAt and a synthetic period from StartAt are fallbacks for
// legacy rows.
func periodEndOf(sub *models.MembershipSubscription, plan *models.MembershipPlan, now time.Time) time.Time {
	if sub.NextBillingAt != nil {
		return *sub.NextBillingAt
	}
	if sub.EndAt != nil {
		return *sub.EndAt
	}
	return plan.Period(now)
}

func monthsOf(plan *models.MembershipPlan) int {
	if plan.PeriodMonths <= 0 {
		return 1
	}
	return plan.PeriodMonths
}

func daysBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24
}
