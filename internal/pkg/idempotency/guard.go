package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kimgyuhyun/ott-project-sub001/app/models"
)

// Claim is the outcome of a claim attempt. When Acquired is false a prior
// caller owns the operation and Stored carries its row, including any
// recorded response for replay.
type Claim struct {
	Acquired bool
	Stored   *models.IdempotencyKey
}

// Guard records side-effecting operations exactly once per (token, purpose).
type Guard struct {
	repo Repository
}

// NewGuard creates a guard from an injected repository.
func NewGuard(repo Repository) *Guard {
	return &Guard{repo: repo}
}

// Claim attempts an insert-if-absent on (token, purpose). A unique-constraint
// hit means the operation already ran; callers must not repeat side effects.
func (g *Guard) Claim(ctx context.Context, token, purpose string) (*Claim, error) {
	_ = ctx
	t := strings.TrimSpace(token)
	p := strings.ToLower(strings.TrimSpace(purpose))
	if t == "" || p == "" {
		return nil, errors.New("token and purpose are required")
	}

	created, stored, err := g.repo.CreateKeyIfNotExists(&models.IdempotencyKey{Token: t, Purpose: p})
	if err != nil {
		return nil, err
	}
	return &Claim{Acquired: created, Stored: stored}, nil
}

// Release drops an acquired claim whose operation never completed, so a
// retry can run it again. A claim that already holds a stored outcome is
// left in place; only the failed-before-outcome window is reopened.
func (g *Guard) Release(ctx context.Context, token, purpose string) error {
	_ = ctx
	t := strings.TrimSpace(token)
	p := strings.ToLower(strings.TrimSpace(purpose))
	if t == "" || p == "" {
		return errors.New("token and purpose are required")
	}
	return g.repo.DeleteUnfinished(t, p)
}

// SaveResult serializes the original outcome next to the key so duplicate
// requests can replay it instead of erroring.
func (g *Guard) SaveResult(ctx context.Context, token, purpose string, result any) error {
	_ = ctx
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return g.repo.SaveResponse(strings.TrimSpace(token), strings.ToLower(strings.TrimSpace(purpose)), string(payload))
}

// StoredResult decodes a previously saved outcome into out. It returns false
// when no outcome was recorded for the claim.
func (c *Claim) StoredResult(out any) (bool, error) {
	if c.Stored == nil || c.Stored.ResponseJSON == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(c.Stored.ResponseJSON), out); err != nil {
		return false, err
	}
	return true, nil
}

// RenewalKey derives the scheduler's per-period claim token so a subscription
// can be billed at most once per billing period start.
func RenewalKey(subscriptionID uint, periodStartUnix int64) string {
	return fmt.Sprintf("renewal:%d:%d", subscriptionID, periodStartUnix)
}
