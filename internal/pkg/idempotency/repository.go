package idempotency

import (
	"github.com/kimgyuhyun/ott-project-sub001/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the guard.
type Repository interface {
	CreateKeyIfNotExists(key *models.IdempotencyKey) (bool, *models.IdempotencyKey, error)
	SaveResponse(token, purpose, responseJSON string) error
	// DeleteUnfinished removes a claim only while no outcome is recorded on
	// it. Claims with a stored response are permanent.
	DeleteUnfinished(token, purpose string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an idempotency repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateKeyIfNotExists(key *models.IdempotencyKey) (bool, *models.IdempotencyKey, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "token"},
			{Name: "purpose"},
		},
		DoNothing: true,
	}).Create(key)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.IdempotencyKey
	if err := r.db.Where("token = ? AND purpose = ?", key.Token, key.Purpose).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) SaveResponse(token, purpose, responseJSON string) error {
	return r.db.Model(&models.IdempotencyKey{}).
		Where("token = ? AND purpose = ?", token, purpose).
		Update("response_json", responseJSON).Error
}

func (r *gormRepository) DeleteUnfinished(token, purpose string) error {
	return r.db.
		Where("token = ? AND purpose = ? AND response_json = ''", token, purpose).
		Delete(&models.IdempotencyKey{}).Error
}
