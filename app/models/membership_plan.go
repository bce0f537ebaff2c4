package models

import "time"

// Quality tiers a plan may unlock. Ranking lives in internal/pkg/entitlements.
const (
	QualitySD  = "480p"
	QualityHD  = "720p"
	QualityFHD = "1080p"
	QualityUHD = "2160p"
)

// Well-known plan codes seeded by migration.
const (
	PlanCodeBasic   = "BASIC"
	PlanCodePremium = "PREMIUM"
)

// MembershipPlan is immutable reference data describing a purchasable tier.
// Rows are seeded by migration and never mutated at runtime.
type MembershipPlan struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Code              string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"code"`
	Name              string    `gorm:"type:varchar(100);not null" json:"name"`
	PriceAmount       int64     `gorm:"not null" json:"price_amount"`
	PriceCurrency     string    `gorm:"type:varchar(3);not null;default:'KRW'" json:"price_currency"`
	PeriodMonths      int       `gorm:"not null;default:1" json:"period_months"`
	ConcurrentStreams int       `gorm:"not null;default:1" json:"concurrent_streams"`
	MaxQuality        string    `gorm:"type:varchar(10);not null;default:'1080p'" json:"max_quality"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Price returns the plan price as a Money value object.
func (p *MembershipPlan) Price() (Money, error) {
	return NewMoney(p.PriceAmount, p.PriceCurrency)
}

// Period returns the billing period length applied from a given start instant.
func (p *MembershipPlan) Period(from time.Time) time.Time {
	months := p.PeriodMonths
	if months <= 0 {
		months = 1
	}
	return from.AddDate(0, months, 0)
}
