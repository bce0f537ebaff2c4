package models

import "time"

// Subscription states. Absence of any row reads as EXPIRED at the
// membership service's single read path.
const (
	SubscriptionStatusActive   = "ACTIVE"
	SubscriptionStatusPastDue  = "PAST_DUE"
	SubscriptionStatusCanceled = "CANCELED"
	SubscriptionStatusExpired  = "EXPIRED"
)

// MembershipSubscription tracks one user's paid membership over time. At most
// one row per user should be effective (ACTIVE and now within
// [StartAt, EndAt]) at any instant; that invariant is enforced at read time.
type MembershipSubscription struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	UserID            uint       `gorm:"not null;index:idx_membership_subscriptions_user_status,priority:1" json:"user_id"`
	PlanCode          string     `gorm:"type:varchar(50);not null;index" json:"plan_code"`
	Status            string     `gorm:"type:varchar(20);not null;default:'ACTIVE';index:idx_membership_subscriptions_user_status,priority:2" json:"status"`
	StartAt           time.Time  `gorm:"type:timestamp;not null" json:"start_at"`
	EndAt             *time.Time `gorm:"type:timestamp;default:null" json:"end_at,omitempty"`
	GraceUntil        *time.Time `gorm:"type:timestamp;default:null" json:"grace_until,omitempty"`
	AutoRenew         bool       `gorm:"not null;default:true" json:"auto_renew"`
	CancelAtPeriodEnd bool       `gorm:"not null;default:false" json:"cancel_at_period_end"`
	CanceledAt        *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	NextBillingAt     *time.Time `gorm:"type:timestamp;default:null;index" json:"next_billing_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEffective reports whether the row is a running, renewable subscription at
// the given instant. PAST_DUE counts: a failed renewal opens a grace period,
// it does not end the subscription.
func (s *MembershipSubscription) IsEffective(now time.Time) bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusPastDue:
	default:
		return false
	}
	return s.withinWindow(now)
}

// GrantsAccess additionally admits CANCELED rows until their period ends. A
// cancellation stops renewal, it does not revoke paid-for access.
func (s *MembershipSubscription) GrantsAccess(now time.Time) bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusPastDue, SubscriptionStatusCanceled:
	default:
		return false
	}
	return s.withinWindow(now)
}

// AccessUntil is the instant access actually stops: the period end, pushed
// out by the grace window when a failed renewal opened one. Grace time is
// not paid time; EndAt keeps the paid period boundary.
func (s *MembershipSubscription) AccessUntil() *time.Time {
	limit := s.EndAt
	if s.GraceUntil != nil && (limit == nil || s.GraceUntil.After(*limit)) {
		limit = s.GraceUntil
	}
	return limit
}

func (s *MembershipSubscription) withinWindow(now time.Time) bool {
	if now.Before(s.StartAt) {
		return false
	}
	if limit := s.AccessUntil(); limit != nil && !now.Before(*limit) {
		return false
	}
	return true
}
