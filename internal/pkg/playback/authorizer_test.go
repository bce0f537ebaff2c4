package playback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kimgyuhyun/ott-project-sub001/app/models"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/apperrors"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/entitlements"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/membership"
)

type fakeEpisodes struct {
	episodes map[uint]*models.Episode
}

func (f *fakeEpisodes) GetByID(id uint) (*models.Episode, error) {
	ep, ok := f.episodes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return ep, nil
}

type fakeStatus struct {
	view  *membership.View
	err   error
	calls int
}

func (f *fakeStatus) GetEffectiveStatus(ctx context.Context, userID uint, now time.Time) (*membership.View, error) {
	f.calls++
	return f.view, f.err
}

type fakePlans struct {
	plans map[string]*models.MembershipPlan
}

func (f *fakePlans) GetByCode(code string) (*models.MembershipPlan, error) {
	plan, ok := f.plans[code]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return plan, nil
}

func testAuthorizer(status *fakeStatus) *Authorizer {
	episodes := &fakeEpisodes{episodes: map[uint]*models.Episode{
		1: {ID: 1, AnimeID: 10, EpisodeNumber: 1},
		5: {ID: 5, AnimeID: 10, EpisodeNumber: 5},
	}}
	plans := &fakePlans{plans: map[string]*models.MembershipPlan{
		models.PlanCodeBasic:   {Code: models.PlanCodeBasic, MaxQuality: models.QualityFHD},
		models.PlanCodePremium: {Code: models.PlanCodePremium, MaxQuality: models.QualityUHD},
	}}
	return NewAuthorizer(episodes, status, plans, testSecret, 10*time.Minute, 3)
}

func TestAuthorizeFreeEpisodeSkipsMembership(t *testing.T) {
	status := &fakeStatus{}
	a := testAuthorizer(status)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	grant, err := a.Authorize(context.Background(), 7, 1, "2160p", now)
	require.NoError(t, err)

	// Free tier plays for everyone, capped at SD, without a status lookup.
	assert.Equal(t, entitlements.QualitySD, grant.Quality)
	assert.Equal(t, 0, status.calls)
	assert.Equal(t, now.Add(10*time.Minute), grant.ExpiresAt)
	assert.NoError(t, VerifySignedURL(grant.URL, testSecret, now))
}

func TestAuthorizeGatedEpisodeRequiresAccess(t *testing.T) {
	status := &fakeStatus{view: &membership.View{Status: models.SubscriptionStatusExpired}}
	a := testAuthorizer(status)

	_, err := a.Authorize(context.Background(), 7, 5, "1080p", time.Now())
	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))
	assert.Equal(t, 1, status.calls)
}

func TestAuthorizeCapsAtPlanQuality(t *testing.T) {
	status := &fakeStatus{view: &membership.View{
		Status:   models.SubscriptionStatusActive,
		PlanCode: models.PlanCodeBasic,
	}}
	a := testAuthorizer(status)

	grant, err := a.Authorize(context.Background(), 7, 5, "2160p", time.Now())
	require.NoError(t, err)
	assert.Equal(t, entitlements.QualityFHD, grant.Quality)
}

func TestAuthorizeHonorsLowerRequest(t *testing.T) {
	status := &fakeStatus{view: &membership.View{
		Status:   models.SubscriptionStatusActive,
		PlanCode: models.PlanCodePremium,
	}}
	a := testAuthorizer(status)

	grant, err := a.Authorize(context.Background(), 7, 5, "720p", time.Now())
	require.NoError(t, err)
	assert.Equal(t, entitlements.QualityHD, grant.Quality)
}

func TestAuthorizeGrantsDuringGracePeriod(t *testing.T) {
	status := &fakeStatus{view: &membership.View{
		Status:   models.SubscriptionStatusPastDue,
		PlanCode: models.PlanCodeBasic,
	}}
	a := testAuthorizer(status)

	_, err := a.Authorize(context.Background(), 7, 5, "1080p", time.Now())
	require.NoError(t, err)
}

func TestAuthorizeUnknownEpisode(t *testing.T) {
	a := testAuthorizer(&fakeStatus{})

	_, err := a.Authorize(context.Background(), 7, 99, "720p", time.Now())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}
