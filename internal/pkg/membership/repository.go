package membership

import (
	"time"

	"github.com/kimgyuhyun/ott-project-sub001/app/models"
	"gorm.io/gorm"
)

// Repository provides DB operations used by the membership service and the
// billing scheduler.
type Repository interface {
	Create(sub *models.MembershipSubscription) error
	Save(sub *models.MembershipSubscription) error
	GetByID(id uint) (*models.MembershipSubscription, error)
	// GetLatestByUser returns the newest subscription row for a user,
	// regardless of status.
	GetLatestByUser(userID uint) (*models.MembershipSubscription, error)
	// ListDueForRenewal selects renewal candidates: ACTIVE or PAST_DUE,
	// auto-renewing, not flagged for period-end cancellation, with
	// next_billing_at at or before now.
	ListDueForRenewal(now time.Time, limit int) ([]models.MembershipSubscription, error)
	// ReserveNextBilling advances next_billing_at only when it still holds
	// the expected value. The conditional write is the scheduler's claim: of
	// two overlapping runs only one observes rows affected.
	ReserveNextBilling(id uint, expected, next time.Time) (bool, error)
	CreatePendingChange(change *models.PendingPlanChange) error
	// GetDuePendingChange returns the oldest unapplied change whose
	// effective_at has passed.
	GetDuePendingChange(subscriptionID uint, now time.Time) (*models.PendingPlanChange, error)
	MarkChangeApplied(changeID uint, at time.Time) error
	// ExpireOverdue persists the lazy EXPIRED derivation for rows whose
	// period ended without renewal.
	ExpireOverdue(now time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a membership repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(sub *models.MembershipSubscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) Save(sub *models.MembershipSubscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) GetByID(id uint) (*models.MembershipSubscription, error) {
	var sub models.MembershipSubscription
	if err := r.db.First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetLatestByUser(userID uint) (*models.MembershipSubscription, error) {
	var sub models.MembershipSubscription
	err := r.db.Where("user_id = ?", userID).
		Order("start_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) ListDueForRenewal(now time.Time, limit int) ([]models.MembershipSubscription, error) {
	var subs []models.MembershipSubscription
	err := r.db.
		Where("status IN ?", []string{models.SubscriptionStatusActive, models.SubscriptionStatusPastDue}).
		Where("auto_renew = ? AND cancel_at_period_end = ?", true, false).
		Where("next_billing_at IS NOT NULL AND next_billing_at <= ?", now).
		Order("next_billing_at ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ReserveNextBilling(id uint, expected, next time.Time) (bool, error) {
	tx := r.db.Model(&models.MembershipSubscription{}).
		Where("id = ? AND next_billing_at = ?", id, expected).
		Update("next_billing_at", next)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) CreatePendingChange(change *models.PendingPlanChange) error {
	return r.db.Create(change).Error
}

func (r *gormRepository) GetDuePendingChange(subscriptionID uint, now time.Time) (*models.PendingPlanChange, error) {
	var change models.PendingPlanChange
	err := r.db.
		Where("subscription_id = ? AND applied_at IS NULL AND effective_at <= ?", subscriptionID, now).
		Order("effective_at ASC").
		First(&change).Error
	if err != nil {
		return nil, err
	}
	return &change, nil
}

func (r *gormRepository) MarkChangeApplied(changeID uint, at time.Time) error {
	return r.db.Model(&models.PendingPlanChange{}).
		Where("id = ?", changeID).
		Update("applied_at", at).Error
}

func (r *gormRepository) ExpireOverdue(now time.Time) (int64, error) {
	tx := r.db.Model(&models.MembershipSubscription{}).
		Where("status IN ?", []string{models.SubscriptionStatusActive, models.SubscriptionStatusPastDue}).
		Where("end_at IS NOT NULL AND end_at <= ?", now).
		Where("grace_until IS NULL OR grace_until <= ?", now).
		Update("status", models.SubscriptionStatusExpired)
	return tx.RowsAffected, tx.Error
}
