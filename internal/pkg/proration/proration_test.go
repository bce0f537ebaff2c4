package proration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimgyuhyun/ott-project-sub001/app/models"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/apperrors"
)

var (
	basicPlan = &models.MembershipPlan{
		Code: models.PlanCodeBasic, PriceAmount: 7900, PriceCurrency: "KRW", PeriodMonths: 1,
	}
	premiumPlan = &models.MembershipPlan{
		Code: models.PlanCodePremium, PriceAmount: 12900, PriceCurrency: "KRW", PeriodMonths: 1,
	}
)

func subWithNextBilling(next time.Time) *models.MembershipSubscription {
	return &models.MembershipSubscription{
		UserID:        1,
		PlanCode:      models.PlanCodeBasic,
		Status:        models.SubscriptionStatusActive,
		NextBillingAt: &next,
	}
}

func TestChangePlanUpgradeProratesByDay(t *testing.T) {
	// 30-day period (April), 15 days remaining: round(5000 * 15/30) = 2500
	periodEnd := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	now := periodEnd.AddDate(0, 0, -15)

	change, err := ChangePlan(subWithNextBilling(periodEnd), basicPlan, premiumPlan, now)
	require.NoError(t, err)

	assert.Equal(t, ChangeUpgrade, change.Type)
	assert.Equal(t, now, change.EffectiveAt)
	assert.Equal(t, int64(2500), change.Amount.Amount)
	assert.Equal(t, "KRW", change.Amount.Currency)
}

func TestChangePlanUpgradeFullPeriodRemaining(t *testing.T) {
	periodEnd := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	now := periodEnd.AddDate(0, -1, 0)

	change, err := ChangePlan(subWithNextBilling(periodEnd), basicPlan, premiumPlan, now)
	require.NoError(t, err)

	assert.Equal(t, int64(5000), change.Amount.Amount)
}

func TestChangePlanUpgradeNothingRemaining(t *testing.T) {
	periodEnd := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	now := periodEnd.AddDate(0, 0, 3)

	change, err := ChangePlan(subWithNextBilling(periodEnd), basicPlan, premiumPlan, now)
	require.NoError(t, err)

	// Remaining time clamps at zero rather than going negative.
	assert.Equal(t, int64(0), change.Amount.Amount)
}

func TestChangePlanDowngradeWaitsForRenewal(t *testing.T) {
	periodEnd := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	now := periodEnd.AddDate(0, 0, -15)
	sub := subWithNextBilling(periodEnd)
	sub.PlanCode = models.PlanCodePremium

	change, err := ChangePlan(sub, premiumPlan, basicPlan, now)
	require.NoError(t, err)

	assert.Equal(t, ChangeDowngrade, change.Type)
	assert.Equal(t, periodEnd, change.EffectiveAt)
	assert.True(t, change.Amount.IsZero())
}

func TestChangePlanCrossCurrencyRejected(t *testing.T) {
	usdPlan := &models.MembershipPlan{Code: "GLOBAL", PriceAmount: 999, PriceCurrency: "USD", PeriodMonths: 1}
	now := time.Date(2026, 4, 16, 0, 0, 0, 0, time.UTC)

	_, err := ChangePlan(subWithNextBilling(now.AddDate(0, 0, 15)), basicPlan, usdPlan, now)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestChangePlanFallsBackToEndAt(t *testing.T) {
	periodEnd := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	now := periodEnd.AddDate(0, 0, -15)
	sub := &models.MembershipSubscription{
		UserID:   1,
		PlanCode: models.PlanCodeBasic,
		Status:   models.SubscriptionStatusActive,
		EndAt:    &periodEnd,
	}

	change, err := ChangePlan(sub, basicPlan, premiumPlan, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), change.Amount.Amount)
}
