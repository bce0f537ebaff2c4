package repository

import (
	"github.com/kimgyuhyun/ott-project-sub001/app/models"
	"gorm.io/gorm"
)

// episodeRepository implements the EpisodeRepository interface
type episodeRepository struct {
	db *gorm.DB
}

// NewEpisodeRepository creates a new episode repository instance
func NewEpisodeRepository(db *gorm.DB) EpisodeRepository {
	return &episodeRepository{db: db}
}

// GetByID retrieves an episode by its ID
func (r *episodeRepository) GetByID(id uint) (*models.Episode, error) {
	var episode models.Episode
	if err := r.db.First(&episode, id).Error; err != nil {
		return nil, err
	}
	return &episode, nil
}
