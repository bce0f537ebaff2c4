package membership

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/kimgyuhyun/ott-project-sub001/app/models"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/apperrors"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/env"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/gateway"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/ledger"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/proration"
)

// Service derives and updates subscription state from payment outcomes and
// wall-clock time. It implements ledger.MembershipUpdater.
type Service struct {
	repo    Repository
	plans   PlanResolver
	ledger  *ledger.Service
	gateway gateway.Client
}

// NewService creates a membership service. Ledger and gateway may be nil for
// consumers that only read state (e.g. the playback authorizer).
func NewService(repo Repository, plans PlanResolver, ledgerSvc *ledger.Service, gw gateway.Client) *Service {
	return &Service{repo: repo, plans: plans, ledger: ledgerSvc, gateway: gw}
}

// OnPaymentSucceeded creates or extends the subscription for the paying user.
func (s *Service) OnPaymentSucceeded(ctx context.Context, payment *models.Payment) error {
	_ = ctx
	plan, err := s.plans.GetByCode(payment.PlanCode)
	if err != nil {
		return err
	}
	now := time.Now()
	if payment.PaidAt != nil {
		now = *payment.PaidAt
	}

	sub, err := s.repo.GetLatestByUser(payment.UserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	// Proration charges confirm an already-applied upgrade; they do not
	// extend the running period.
	if payment.Purpose == models.PaymentPurposeProration {
		if sub == nil {
			return apperrors.Conflict("proration payment %d without subscription", payment.ID)
		}
		sub.PlanCode = plan.Code
		sub.Status = models.SubscriptionStatusActive
		sub.GraceUntil = nil
		return s.repo.Save(sub)
	}

	if sub == nil || !sub.IsEffective(now) {
		end := plan.Period(now)
		next := plan.Period(now)
		created := &models.MembershipSubscription{
			UserID:        payment.UserID,
			PlanCode:      plan.Code,
			Status:        models.SubscriptionStatusActive,
			StartAt:       now,
			EndAt:         &end,
			AutoRenew:     true,
			NextBillingAt: &next,
		}
		return s.repo.Create(created)
	}

	// Renewal or repeat purchase: extend by one period and clear grace. The
	// anchor is the paid period end; a PAST_DUE row recovering inside grace
	// still extends from EndAt even though it already passed, because the
	// grace days were never paid for.
	base := now
	if sub.EndAt != nil && (sub.EndAt.After(now) || sub.Status == models.SubscriptionStatusPastDue) {
		base = *sub.EndAt
	}
	end := plan.Period(base)
	next := plan.Period(base)
	sub.PlanCode = plan.Code
	sub.Status = models.SubscriptionStatusActive
	sub.EndAt = &end
	sub.GraceUntil = nil
	sub.NextBillingAt = &next
	return s.repo.Save(sub)
}

// OnPaymentFailed opens the grace period. A renewal usually fails right at
// period end, so PAST_DUE alone would read as EXPIRED immediately; the access
// window is pushed out by the grace allowance to keep playback alive while
// the charge is retried.
func (s *Service) OnPaymentFailed(ctx context.Context, payment *models.Payment) error {
	_ = ctx
	sub, err := s.repo.GetLatestByUser(payment.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// First checkout failed before any subscription existed.
			return nil
		}
		return err
	}
	switch sub.Status {
	case models.SubscriptionStatusActive, models.SubscriptionStatusPastDue:
	default:
		// Not a renewable row; a failed one-off checkout changes nothing.
		return nil
	}
	now := time.Now()
	if payment.FailedAt != nil {
		now = *payment.FailedAt
	}
	graceEnd := now.AddDate(0, 0, graceDays())
	sub.Status = models.SubscriptionStatusPastDue
	if sub.GraceUntil == nil || sub.GraceUntil.Before(graceEnd) {
		sub.GraceUntil = &graceEnd
	}
	// EndAt is left alone: it marks paid time, and a later recovery extends
	// from it rather than from the grace window.
	return s.repo.Save(sub)
}

// graceDays is how long PAST_DUE access survives a failed renewal.
func graceDays() int {
	if v, err := strconv.Atoi(env.GetEnv("BILLING_GRACE_DAYS", "")); err == nil && v >= 0 {
		return v
	}
	return 7
}

// OnPaymentCanceled handles the provider's recurring-billing cancellation:
// access persists to period end, renewal stops.
func (s *Service) OnPaymentCanceled(ctx context.Context, payment *models.Payment) error {
	_ = ctx
	sub, err := s.repo.GetLatestByUser(payment.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Abandoned checkout with no subscription; nothing to update.
			return nil
		}
		return err
	}
	now := time.Now()
	if payment.CanceledAt != nil {
		now = *payment.CanceledAt
	}
	return s.repo.Save(applyCancelAtPeriodEnd(sub, now))
}

// OnPaymentRefunded revokes access immediately.
func (s *Service) OnPaymentRefunded(ctx context.Context, payment *models.Payment) error {
	_ = ctx
	sub, err := s.repo.GetLatestByUser(payment.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	now := time.Now()
	if payment.RefundedAt != nil {
		now = *payment.RefundedAt
	}
	sub.Status = models.SubscriptionStatusCanceled
	sub.AutoRenew = false
	sub.CancelAtPeriodEnd = false
	sub.CanceledAt = &now
	sub.EndAt = &now
	sub.GraceUntil = nil
	return s.repo.Save(sub)
}

// GetEffectiveStatus is the single read path for membership state. EXPIRED is
// derived from EndAt at call time; no consumer may infer status from cached
// or stale columns.
func (s *Service) GetEffectiveStatus(ctx context.Context, userID uint, now time.Time) (*View, error) {
	_ = ctx
	sub, err := s.repo.GetLatestByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &View{Status: models.SubscriptionStatusExpired, AutoRenew: false}, nil
		}
		return nil, err
	}
	return viewOf(sub, now), nil
}

// Cancel stops renewal at period end for the user's running subscription.
// Access persists until EndAt. Calling it again is a no-op returning the
// same view.
func (s *Service) Cancel(ctx context.Context, userID uint, now time.Time) (*View, error) {
	_ = ctx
	sub, err := s.repo.GetLatestByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("no subscription to cancel for user %d", userID)
		}
		return nil, err
	}
	if sub.CancelAtPeriodEnd {
		// Repeated cancel: same view, no further writes.
		return viewOf(sub, now), nil
	}
	if !sub.IsEffective(now) {
		return nil, apperrors.Conflict("subscription for user %d is not active", userID)
	}
	if err := s.repo.Save(applyCancelAtPeriodEnd(sub, now)); err != nil {
		return nil, err
	}
	return viewOf(sub, now), nil
}

// RequestPlanChange validates and applies a mid-cycle plan switch. Upgrades
// take effect immediately and open a prorated out-of-band payment; downgrades
// become a pending-change record the scheduler resolves at renewal.
func (s *Service) RequestPlanChange(ctx context.Context, userID uint, newPlanCode string, now time.Time) (*PlanChangeResult, error) {
	code := strings.ToUpper(strings.TrimSpace(newPlanCode))
	if code == "" {
		return nil, apperrors.Validation("new plan code is required")
	}

	sub, err := s.repo.GetLatestByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Conflict("no subscription to change for user %d", userID)
		}
		return nil, err
	}
	if !sub.IsEffective(now) {
		return nil, apperrors.Conflict("subscription for user %d is not active", userID)
	}
	if sub.PlanCode == code {
		return nil, apperrors.Validation("already subscribed to plan %s", code)
	}

	currentPlan, err := s.plans.GetByCode(sub.PlanCode)
	if err != nil {
		return nil, err
	}
	newPlan, err := s.plans.GetByCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("unknown plan %s", code)
		}
		return nil, err
	}
	// Equal-price switches are a no-op; reject before the calculator runs.
	if currentPlan.PriceAmount == newPlan.PriceAmount && currentPlan.PriceCurrency == newPlan.PriceCurrency {
		return nil, apperrors.Validation("plans %s and %s are priced identically", currentPlan.Code, newPlan.Code)
	}

	change, err := proration.ChangePlan(sub, currentPlan, newPlan, now)
	if err != nil {
		return nil, err
	}

	if change.Type == proration.ChangeDowngrade {
		pending := &models.PendingPlanChange{
			SubscriptionID: sub.ID,
			NewPlanCode:    newPlan.Code,
			EffectiveAt:    change.EffectiveAt,
		}
		if err := s.repo.CreatePendingChange(pending); err != nil {
			return nil, err
		}
		return &PlanChangeResult{
			ChangeType:    string(change.Type),
			EffectiveDate: change.EffectiveAt,
			Currency:      change.Amount.Currency,
			Message:       fmt.Sprintf("Plan switches to %s at the next renewal", newPlan.Code),
		}, nil
	}

	// Upgrade: charge the prorated difference out of band, switch now.
	session, err := s.gateway.CreateCheckoutSession(ctx, gateway.CheckoutRequest{
		UserID:   userID,
		PlanCode: newPlan.Code,
		Amount:   change.Amount.Amount,
		Currency: change.Amount.Currency,
	})
	if err != nil {
		return nil, apperrors.Gateway(err, "could not open proration checkout")
	}
	price := models.Money{Amount: change.Amount.Amount, Currency: change.Amount.Currency}
	payment, err := s.ledger.CreatePending(ctx, userID, newPlan, session.Provider, models.PaymentPurposeProration, session.SessionID, price)
	if err != nil {
		return nil, err
	}

	sub.PlanCode = newPlan.Code
	if err := s.repo.Save(sub); err != nil {
		return nil, err
	}
	log.Infof("[Membership] user %d upgraded %s -> %s, proration %s", userID, currentPlan.Code, newPlan.Code, price)

	return &PlanChangeResult{
		ChangeType:      string(change.Type),
		EffectiveDate:   change.EffectiveAt,
		ProrationAmount: price.Amount,
		Currency:        price.Currency,
		RedirectURL:     session.RedirectURL,
		PaymentID:       payment.ID,
		Payment:         payment,
		Message:         fmt.Sprintf("Upgraded to %s, prorated charge %s", newPlan.Code, price),
	}, nil
}

// SweepExpired persists the EXPIRED derivation for overdue rows.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	_ = ctx
	return s.repo.ExpireOverdue(now)
}

func applyCancelAtPeriodEnd(sub *models.MembershipSubscription, now time.Time) *models.MembershipSubscription {
	sub.Status = models.SubscriptionStatusCanceled
	sub.AutoRenew = false
	sub.CancelAtPeriodEnd = true
	sub.CanceledAt = &now
	// EndAt stays untouched: access persists until period end.
	return sub
}

func viewOf(sub *models.MembershipSubscription, now time.Time) *View {
	v := &View{
		Status:            sub.Status,
		PlanCode:          sub.PlanCode,
		AutoRenew:         sub.AutoRenew,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		StartAt:           &sub.StartAt,
		EndAt:             sub.EndAt,
		GraceUntil:        sub.GraceUntil,
		NextBillingAt:     sub.NextBillingAt,
		CanceledAt:        sub.CanceledAt,
	}
	limit := sub.AccessUntil()
	switch sub.Status {
	case models.SubscriptionStatusActive, models.SubscriptionStatusPastDue:
		if limit != nil && !now.Before(*limit) {
			v.Status = models.SubscriptionStatusExpired
			v.AutoRenew = false
		}
	case models.SubscriptionStatusCanceled:
		if limit != nil && !now.Before(*limit) {
			v.Status = models.SubscriptionStatusExpired
		}
	}
	return v
}
