package models

import "time"

// Payment lifecycle states. Legal transitions are enforced by the ledger:
// PENDING->SUCCEEDED, PENDING->FAILED, PENDING->CANCELED, SUCCEEDED->REFUNDED.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusSucceeded = "SUCCEEDED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusCanceled  = "CANCELED"
	PaymentStatusRefunded  = "REFUNDED"
)

// Payment purposes distinguish first purchases, renewals and proration charges.
const (
	PaymentPurposeCheckout  = "checkout"
	PaymentPurposeRenewal   = "renewal"
	PaymentPurposeProration = "proration"
)

// Payment gateway provider identifiers.
const (
	PaymentProviderTossPayments = "tosspayments"
	PaymentProviderStripe       = "stripe"
)

// Payment is one row per checkout attempt. Rows are never deleted; state is
// mutated only through ledger transitions under a per-row exclusive lock.
type Payment struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	UserID            uint       `gorm:"not null;index" json:"user_id"`
	PlanCode          string     `gorm:"type:varchar(50);not null;index" json:"plan_code"`
	Provider          string     `gorm:"type:varchar(30);not null" json:"provider"`
	Purpose           string     `gorm:"type:varchar(20);not null;default:'checkout'" json:"purpose"`
	Amount            int64      `gorm:"not null" json:"amount"`
	Currency          string     `gorm:"type:varchar(3);not null" json:"currency"`
	Status            string     `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	ProviderSessionID string     `gorm:"type:varchar(191);not null;index" json:"provider_session_id"`
	ProviderPaymentID string     `gorm:"type:varchar(191);default:'';index" json:"provider_payment_id"`
	ReceiptURL        string     `gorm:"type:varchar(500);default:''" json:"receipt_url"`
	RefundedAmount    int64      `gorm:"not null;default:0" json:"refunded_amount"`
	PaidAt            *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	FailedAt          *time.Time `gorm:"type:timestamp;default:null" json:"failed_at,omitempty"`
	CanceledAt        *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	RefundedAt        *time.Time `gorm:"type:timestamp;default:null" json:"refunded_at,omitempty"`
	CompletedAt       *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Price returns the charged amount as a Money value object.
func (p *Payment) Price() (Money, error) {
	return NewMoney(p.Amount, p.Currency)
}

// IsTerminal reports whether no further transition except refund is possible.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentStatusFailed, PaymentStatusCanceled, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}
