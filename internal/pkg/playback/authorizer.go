package playback

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/kimgyuhyun/ott-project-sub001/app/models"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/apperrors"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/entitlements"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/env"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/membership"
)

// StatusReader is the membership read path the authorizer consumes.
type StatusReader interface {
	GetEffectiveStatus(ctx context.Context, userID uint, now time.Time) (*membership.View, error)
}

// EpisodeResolver supplies catalog collaborator data.
type EpisodeResolver interface {
	GetByID(id uint) (*models.Episode, error)
}

// StreamGrant is a successful authorization: a signed, time-boxed URL for
// the resolved quality tier.
type StreamGrant struct {
	URL       string               `json:"url"`
	Quality   entitlements.Quality `json:"quality"`
	ExpiresAt time.Time            `json:"expires_at"`
}

// Authorizer decides per-episode access and issues signed stream URLs. It is
// read-only and safe for unlimited concurrent use.
type Authorizer struct {
	episodes  EpisodeResolver
	status    StatusReader
	plans     membership.PlanResolver
	secret    string
	ttl       time.Duration
	freeLimit int
}

// NewAuthorizer wires the authorizer with explicit configuration.
func NewAuthorizer(episodes EpisodeResolver, status StatusReader, plans membership.PlanResolver, secret string, ttl time.Duration, freeLimit int) *Authorizer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Authorizer{
		episodes:  episodes,
		status:    status,
		plans:     plans,
		secret:    secret,
		ttl:       ttl,
		freeLimit: freeLimit,
	}
}

// NewAuthorizerFromEnv reads secret, TTL and free threshold from env. The
// secret must be distributed identically to every process that signs or
// verifies links.
func NewAuthorizerFromEnv(episodes EpisodeResolver, status StatusReader, plans membership.PlanResolver) *Authorizer {
	ttl := 10 * time.Minute
	if v, err := strconv.Atoi(env.GetEnv("STREAM_URL_TTL_SECONDS", "")); err == nil && v > 0 {
		ttl = time.Duration(v) * time.Second
	}
	freeLimit := 3
	if v, err := strconv.Atoi(env.GetEnv("FREE_EPISODE_LIMIT", "")); err == nil && v >= 0 {
		freeLimit = v
	}
	return NewAuthorizer(episodes, status, plans, env.GetEnv("STREAM_SIGN_SECRET", ""), ttl, freeLimit)
}

// Authorize decides access for one episode and returns a signed URL capped at
// the viewer's entitled quality.
func (a *Authorizer) Authorize(ctx context.Context, userID, episodeID uint, requestedQuality string, now time.Time) (*StreamGrant, error) {
	episode, err := a.episodes.GetByID(episodeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("episode %d not found", episodeID)
		}
		return nil, err
	}

	requested := entitlements.NormalizeQuality(requestedQuality)

	// Free-threshold episodes play for everyone at the low tier; the
	// subscription is not consulted.
	if episode.EpisodeNumber <= a.freeLimit {
		return a.grant(episode, entitlements.MinQuality(requested, entitlements.FreeQuality), now), nil
	}

	view, err := a.status.GetEffectiveStatus(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if !view.HasAccess() {
		return nil, apperrors.Forbidden("a membership upgrade is required to watch episode %d", episode.EpisodeNumber)
	}

	plan, err := a.plans.GetByCode(view.PlanCode)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	maxQuality := entitlements.PlanMaxQuality(plan)
	return a.grant(episode, entitlements.MinQuality(requested, maxQuality), now), nil
}

func (a *Authorizer) grant(episode *models.Episode, quality entitlements.Quality, now time.Time) *StreamGrant {
	expiresAt := now.Add(a.ttl)
	path := episode.ManifestPath(string(quality))
	return &StreamGrant{
		URL:       SignPath(path, expiresAt.Unix(), a.secret),
		Quality:   quality,
		ExpiresAt: expiresAt,
	}
}
