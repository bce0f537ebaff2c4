package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/kimgyuhyun/ott-project-sub001/app/models"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/apperrors"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/metrics/counter"
)

// Service owns the payment state machine. Legal transitions:
// PENDING->SUCCEEDED, PENDING->FAILED, PENDING->CANCELED, SUCCEEDED->REFUNDED.
// Everything else is a Conflict, except a webhook retry that lands on the
// state it already produced, which is absorbed as a no-op.
type Service struct {
	repo    Repository
	updater MembershipUpdater
}

// NewService creates a ledger from an injected repository and membership sink.
func NewService(repo Repository, updater MembershipUpdater) *Service {
	if updater == nil {
		updater = NopUpdater{}
	}
	return &Service{repo: repo, updater: updater}
}

// NewServiceFromDB creates a ledger from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, updater MembershipUpdater) *Service {
	return NewService(NewRepository(db), updater)
}

// CreatePending records a new checkout attempt. It must be called after the
// gateway session exists; no DB lock is held during the network call.
func (s *Service) CreatePending(ctx context.Context, userID uint, plan *models.MembershipPlan, provider, purpose, providerSessionID string, price models.Money) (*models.Payment, error) {
	_ = ctx
	if userID == 0 || plan == nil {
		return nil, apperrors.Validation("user and plan are required")
	}
	p := strings.ToLower(strings.TrimSpace(provider))
	sessionID := strings.TrimSpace(providerSessionID)
	if p == "" || sessionID == "" {
		return nil, apperrors.Validation("provider and provider_session_id are required")
	}
	if price.Amount <= 0 {
		return nil, apperrors.Validation("price must be positive, got %s", price)
	}
	if purpose == "" {
		purpose = models.PaymentPurposeCheckout
	}

	payment := &models.Payment{
		UserID:            userID,
		PlanCode:          plan.Code,
		Provider:          p,
		Purpose:           purpose,
		Amount:            price.Amount,
		Currency:          price.Currency,
		Status:            models.PaymentStatusPending,
		ProviderSessionID: sessionID,
	}
	if err := s.repo.Create(payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// GetByID loads a payment row.
func (s *Service) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	_ = ctx
	p, err := s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("payment %d not found", id)
		}
		return nil, err
	}
	return p, nil
}

// GetBySessionID resolves a payment from the provider's checkout session.
// Webhook handlers use it to verify an event's session actually belongs to
// the payment it was addressed to.
func (s *Service) GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	_ = ctx
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return nil, apperrors.Validation("provider session id is required")
	}
	p, err := s.repo.GetByProviderSessionID(sid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("no payment for session %s", sid)
		}
		return nil, err
	}
	return p, nil
}

// MarkSucceeded moves PENDING->SUCCEEDED and notifies membership. A retry
// observing SUCCEEDED already in place is a silent no-op.
func (s *Service) MarkSucceeded(ctx context.Context, paymentID uint, providerPaymentID, receiptURL string, paidAt time.Time) (*models.Payment, bool, error) {
	payment, applied, err := s.transition(paymentID, models.PaymentStatusSucceeded, func(p *models.Payment) {
		p.Status = models.PaymentStatusSucceeded
		p.ProviderPaymentID = strings.TrimSpace(providerPaymentID)
		if receiptURL != "" {
			p.ReceiptURL = strings.TrimSpace(receiptURL)
		}
		p.PaidAt = &paidAt
		p.CompletedAt = &paidAt
	})
	if err != nil || !applied {
		return payment, applied, err
	}
	counter.AddPaymentSucceeded()
	return payment, true, s.updater.OnPaymentSucceeded(ctx, payment)
}

// MarkFailed moves PENDING->FAILED and opens the grace period downstream.
func (s *Service) MarkFailed(ctx context.Context, paymentID uint, failedAt time.Time) (*models.Payment, bool, error) {
	payment, applied, err := s.transition(paymentID, models.PaymentStatusFailed, func(p *models.Payment) {
		p.Status = models.PaymentStatusFailed
		p.FailedAt = &failedAt
		p.CompletedAt = &failedAt
	})
	if err != nil || !applied {
		return payment, applied, err
	}
	counter.AddPaymentFailed()
	return payment, true, s.updater.OnPaymentFailed(ctx, payment)
}

// MarkCanceled moves PENDING->CANCELED (checkout abandoned, or the provider's
// recurring-billing cancellation signal).
func (s *Service) MarkCanceled(ctx context.Context, paymentID uint, canceledAt time.Time) (*models.Payment, bool, error) {
	payment, applied, err := s.transition(paymentID, models.PaymentStatusCanceled, func(p *models.Payment) {
		p.Status = models.PaymentStatusCanceled
		p.CanceledAt = &canceledAt
		p.CompletedAt = &canceledAt
	})
	if err != nil || !applied {
		return payment, applied, err
	}
	return payment, true, s.updater.OnPaymentCanceled(ctx, payment)
}

// Refund moves SUCCEEDED->REFUNDED. Refunding anything else, or more than the
// original price, is a Conflict - never a silent success.
func (s *Service) Refund(ctx context.Context, paymentID uint, amount models.Money, refundedAt time.Time) (*models.Payment, error) {
	payment, applied, err := s.repo.Transition(paymentID, func(p *models.Payment) (bool, error) {
		if p.Status != models.PaymentStatusSucceeded {
			return false, apperrors.Conflict("cannot refund payment %d in state %s", p.ID, p.Status)
		}
		if amount.Currency != p.Currency {
			return false, apperrors.Validation("refund currency %s does not match payment currency %s", amount.Currency, p.Currency)
		}
		if amount.Amount <= 0 || amount.Amount > p.Amount {
			return false, apperrors.Conflict("refund amount %d out of range for payment %d (price %d)", amount.Amount, p.ID, p.Amount)
		}
		p.Status = models.PaymentStatusRefunded
		p.RefundedAmount = amount.Amount
		p.RefundedAt = &refundedAt
		return true, nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("payment %d not found", paymentID)
		}
		return nil, err
	}
	if !applied {
		return payment, nil
	}
	counter.AddPaymentRefunded()
	if err := s.updater.OnPaymentRefunded(ctx, payment); err != nil {
		return payment, err
	}
	return payment, nil
}

// transition applies a PENDING->target move under the row lock. Landing on a
// row already in the target state reports applied=false without error; any
// other non-PENDING state is a Conflict.
func (s *Service) transition(paymentID uint, target string, mutate func(p *models.Payment)) (*models.Payment, bool, error) {
	payment, applied, err := s.repo.Transition(paymentID, func(p *models.Payment) (bool, error) {
		if p.Status == target {
			log.Infof("[Ledger] payment %d already %s, ignoring duplicate transition", p.ID, target)
			return false, nil
		}
		if p.Status != models.PaymentStatusPending {
			return false, apperrors.Conflict("illegal transition %s->%s for payment %d", p.Status, target, p.ID)
		}
		mutate(p)
		return true, nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, apperrors.NotFound("payment %d not found", paymentID)
		}
		return nil, false, err
	}
	return payment, applied, nil
}
