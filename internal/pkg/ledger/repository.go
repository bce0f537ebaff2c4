package ledger

import (
	"github.com/kimgyuhyun/ott-project-sub001/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the ledger service.
type Repository interface {
	Create(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetByProviderSessionID(sessionID string) (*models.Payment, error)
	// Transition loads the payment under an exclusive row lock, applies fn
	// and saves when fn reports a mutation. Concurrent webhook deliveries
	// for the same payment serialize here.
	Transition(id uint, fn func(payment *models.Payment) (bool, error)) (*models.Payment, bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ledger repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

func (r *gormRepository) GetByID(id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetByProviderSessionID(sessionID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("provider_session_id = ?", sessionID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) Transition(id uint, fn func(payment *models.Payment) (bool, error)) (*models.Payment, bool, error) {
	var payment models.Payment
	applied := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&payment, id).Error; err != nil {
			return err
		}
		changed, err := fn(&payment)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		applied = true
		return tx.Save(&payment).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &payment, applied, nil
}
