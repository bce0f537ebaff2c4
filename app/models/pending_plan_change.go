package models

import "time"

// PendingPlanChange defers a downgrade until the next renewal. The scheduler
// resolves due rows right before billing so "what plan is billed next" stays
// auditable instead of being an in-place field rewrite.
type PendingPlanChange struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	SubscriptionID uint       `gorm:"not null;index" json:"subscription_id"`
	NewPlanCode    string     `gorm:"type:varchar(50);not null" json:"new_plan_code"`
	EffectiveAt    time.Time  `gorm:"type:timestamp;not null;index" json:"effective_at"`
	AppliedAt      *time.Time `gorm:"type:timestamp;default:null" json:"applied_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
