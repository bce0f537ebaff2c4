package repository

import (
	"github.com/kimgyuhyun/ott-project-sub001/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
}

// PlanRepository defines the interface for membership plan reference data
type PlanRepository interface {
	GetByCode(code string) (*models.MembershipPlan, error)
	List() ([]models.MembershipPlan, error)
}

// EpisodeRepository defines the interface for catalog episode lookups
type EpisodeRepository interface {
	GetByID(id uint) (*models.Episode, error)
}

// Repositories bundles all repository instances
type Repositories struct {
	User    UserRepository
	Plan    PlanRepository
	Episode EpisodeRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Plan:    NewPlanRepository(db),
		Episode: NewEpisodeRepository(db),
	}
}
