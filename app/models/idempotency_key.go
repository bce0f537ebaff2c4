package models

import "time"

// Idempotency purposes. The same token may be claimed once per purpose.
const (
	IdempotencyPurposeCheckout = "checkout"
	IdempotencyPurposeCancel   = "cancel"
	IdempotencyPurposeWebhook  = "webhook"
	IdempotencyPurposeRenewal  = "renewal"
)

// IdempotencyKey is a write-once claim on a side-effecting operation.
// Existence of the (token, purpose) pair signals "already handled";
// ResponseJSON carries the original outcome so duplicates can replay it.
type IdempotencyKey struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Token        string    `gorm:"type:varchar(191);not null;index:ux_idempotency_keys_token_purpose,unique,priority:1" json:"token"`
	Purpose      string    `gorm:"type:varchar(30);not null;index:ux_idempotency_keys_token_purpose,unique,priority:2" json:"purpose"`
	ResponseJSON string    `gorm:"type:longtext" json:"response_json"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
