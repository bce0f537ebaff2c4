package models

import "time"

// BillingDailyStat aggregates payment outcomes per day. Counters accumulate
// in Redis and are flushed here in batches by the scheduler tick.
type BillingDailyStat struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Day            time.Time `gorm:"type:date;not null;uniqueIndex" json:"day"`
	SucceededCount int64     `gorm:"not null;default:0" json:"succeeded_count"`
	FailedCount    int64     `gorm:"not null;default:0" json:"failed_count"`
	RefundedCount  int64     `gorm:"not null;default:0" json:"refunded_count"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
