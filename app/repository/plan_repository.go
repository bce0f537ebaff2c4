package repository

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/kimgyuhyun/ott-project-sub001/app/models"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/cache"
)

const planCacheTTL = 10 * time.Minute

// planRepository implements the PlanRepository interface. Plans are immutable
// reference data, so a read-through Redis cache is safe here - unlike
// subscription status, which must never be served stale.
type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository instance
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

// GetByCode retrieves a plan by its unique code
func (r *planRepository) GetByCode(code string) (*models.MembershipPlan, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	cacheKey := "plan:" + c

	if cached, err := cache.Get(cacheKey); err == nil && cached != "" {
		var plan models.MembershipPlan
		if err := json.Unmarshal([]byte(cached), &plan); err == nil {
			return &plan, nil
		}
	}

	var plan models.MembershipPlan
	if err := r.db.Where("code = ?", c).First(&plan).Error; err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(&plan); err == nil {
		if err := cache.Set(cacheKey, string(payload), planCacheTTL); err != nil {
			log.Warnf("plan cache write failed for %s: %v", c, err)
		}
	}
	return &plan, nil
}

// List returns all plans ordered by price
func (r *planRepository) List() ([]models.MembershipPlan, error) {
	var plans []models.MembershipPlan
	err := r.db.Order("price_amount ASC").Find(&plans).Error
	return plans, err
}
