package models

import (
	"fmt"
	"time"
)

// Episode is catalog collaborator data. The catalog service owns CRUD; this
// service only reads episode number and stream layout for playback gating.
type Episode struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	AnimeID         uint      `gorm:"not null;index" json:"anime_id"`
	EpisodeNumber   int       `gorm:"not null" json:"episode_number"`
	Title           string    `gorm:"type:varchar(200);not null" json:"title"`
	DurationSeconds int       `gorm:"not null;default:0" json:"duration_seconds"`
	StreamPath      string    `gorm:"type:varchar(500);default:''" json:"stream_path"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ManifestPath returns the HLS manifest path for a quality tier. When the
// catalog supplied no explicit stream path the conventional layout is used.
func (e *Episode) ManifestPath(quality string) string {
	if e.StreamPath != "" {
		return fmt.Sprintf("%s/%s/index.m3u8", e.StreamPath, quality)
	}
	return fmt.Sprintf("/streams/%d/%d/%s/index.m3u8", e.AnimeID, e.EpisodeNumber, quality)
}
