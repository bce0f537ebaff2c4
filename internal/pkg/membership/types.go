package membership

import (
	"time"

	"github.com/kimgyuhyun/ott-project-sub001/app/models"
)

// View is the membership snapshot every consumer reads. It is derived from
// the subscription row at call time; EXPIRED is computed lazily from EndAt so
// no consumer ever trusts a stale status column.
type View struct {
	Status            string     `json:"status"`
	PlanCode          string     `json:"plan_code,omitempty"`
	AutoRenew         bool       `json:"auto_renew"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	StartAt           *time.Time `json:"start_at,omitempty"`
	EndAt             *time.Time `json:"end_at,omitempty"`
	GraceUntil        *time.Time `json:"grace_until,omitempty"`
	NextBillingAt     *time.Time `json:"next_billing_at,omitempty"`
	CanceledAt        *time.Time `json:"canceled_at,omitempty"`
}

// HasAccess reports whether playback above the free threshold is allowed.
// PAST_DUE keeps access (grace period after a failed renewal), and CANCELED
// keeps it too: the view already reads as EXPIRED once EndAt passes, so a
// CANCELED view means the paid period is still running.
func (v *View) HasAccess() bool {
	switch v.Status {
	case models.SubscriptionStatusActive, models.SubscriptionStatusPastDue, models.SubscriptionStatusCanceled:
		return true
	default:
		return false
	}
}

// PlanChangeResult is the outcome of a requested plan change.
type PlanChangeResult struct {
	ChangeType      string          `json:"change_type"`
	EffectiveDate   time.Time       `json:"effective_date"`
	ProrationAmount int64           `json:"proration_amount"`
	Currency        string          `json:"currency"`
	RedirectURL     string          `json:"redirect_url,omitempty"`
	PaymentID       uint            `json:"payment_id,omitempty"`
	Message         string          `json:"message"`
	Payment         *models.Payment `json:"-"`
}

// PlanResolver supplies immutable plan reference data.
type PlanResolver interface {
	GetByCode(code string) (*models.MembershipPlan, error)
}
