package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kimgyuhyun/ott-project-sub001/app/models"
	"github.com/kimgyuhyun/ott-project-sub001/app/repository"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/apperrors"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/database"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/env"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/gateway"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/idempotency"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/ledger"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/membership"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/usercontext"
)

const gatewayCallTimeout = 20 * time.Second

type checkoutRequest struct {
	PlanCode       string `json:"planCode" validate:"required,min=2,max=50"`
	SuccessURL     string `json:"successUrl" validate:"omitempty,url"`
	CancelURL      string `json:"cancelUrl" validate:"omitempty,url"`
	IdempotencyKey string `json:"idempotencyKey" validate:"omitempty,min=8,max=191"`
}

type checkoutResponse struct {
	RedirectURL       string `json:"redirectUrl"`
	PaymentID         uint   `json:"paymentId"`
	ProviderSessionID string `json:"providerSessionId"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	Duplicate         bool   `json:"duplicate,omitempty"`
}

// webhookPayload is the gateway's typed event body. Structured decoding only;
// no field is ever scraped out of the raw JSON by hand.
type webhookPayload struct {
	EventID           string    `json:"eventId" validate:"required,min=4,max=191"`
	ProviderPaymentID string    `json:"providerPaymentId"`
	ProviderSessionID string    `json:"providerSessionId"`
	Status            string    `json:"status" validate:"required,oneof=SUCCEEDED FAILED CANCELED REFUNDED"`
	Amount            int64     `json:"amount" validate:"gte=0"`
	Currency          string    `json:"currency" validate:"omitempty,len=3"`
	ReceiptURL        string    `json:"receiptUrl"`
	OccurredAt        time.Time `json:"occurredAt"`
}

type webhookOutcome struct {
	OK            bool   `json:"ok"`
	PaymentID     uint   `json:"paymentId"`
	PaymentStatus string `json:"paymentStatus"`
	Applied       bool   `json:"applied"`
	Duplicate     bool   `json:"duplicate,omitempty"`
}

// billingServices wires the billing graph against the shared DB handle. It is
// a variable so handler tests can substitute in-memory fakes.
var billingServices = func() (*idempotency.Guard, *ledger.Service, *membership.Service, repository.PlanRepository) {
	db := database.GetDB()
	plans := repository.GetGlobalFactory().GetPlanRepository()
	members := membership.NewService(membership.NewRepository(db), plans, nil, nil)
	ledgerSvc := ledger.NewServiceFromDB(db, members)
	guard := idempotency.NewGuard(idempotency.NewRepository(db))
	return guard, ledgerSvc, members, plans
}

// releaseClaim reopens an idempotency claim whose operation failed before an
// outcome existed, so the client's retry is not absorbed as a duplicate.
func releaseClaim(ctx context.Context, guard *idempotency.Guard, token, purpose string) {
	if err := guard.Release(ctx, token, purpose); err != nil {
		log.Warnf("idempotency claim %s/%s not released: %v", purpose, token, err)
	}
}

// HandleCheckout opens a gateway checkout session and records the PENDING
// payment. Duplicate idempotency keys replay the original response.
func HandleCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return respondError(c, apperrors.Unauthorized("login required"))
	}

	var req checkoutRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	guard, ledgerSvc, _, plans := billingServices()
	plan, err := plans.GetByCode(req.PlanCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, apperrors.NotFound("unknown plan %s", req.PlanCode))
		}
		return respondError(c, err)
	}
	price, err := plan.Price()
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), gatewayCallTimeout)
	defer cancel()

	token := strings.TrimSpace(req.IdempotencyKey)
	if token == "" {
		token = uuid.NewString()
	}
	claim, err := guard.Claim(ctx, token, models.IdempotencyPurposeCheckout)
	if err != nil {
		return respondError(c, err)
	}
	if !claim.Acquired {
		var prior checkoutResponse
		if ok, err := claim.StoredResult(&prior); err == nil && ok {
			prior.Duplicate = true
			return c.Status(fiber.StatusOK).JSON(prior)
		}
		return respondError(c, apperrors.Duplicate("checkout already in progress for this key"))
	}

	// Gateway first: the network call happens before any row exists, so no
	// lock is ever held while waiting on the provider. Any failure past this
	// point reopens the claim; the key must stay usable for the retry.
	session, err := getGatewayClient().CreateCheckoutSession(ctx, gateway.CheckoutRequest{
		UserID:     userCtx.UserID,
		PlanCode:   plan.Code,
		Amount:     price.Amount,
		Currency:   price.Currency,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		releaseClaim(ctx, guard, token, models.IdempotencyPurposeCheckout)
		return respondError(c, apperrors.Gateway(err, "checkout session could not be created"))
	}

	payment, err := ledgerSvc.CreatePending(ctx, userCtx.UserID, plan, session.Provider, models.PaymentPurposeCheckout, session.SessionID, price)
	if err != nil {
		releaseClaim(ctx, guard, token, models.IdempotencyPurposeCheckout)
		return respondError(c, err)
	}

	resp := checkoutResponse{
		RedirectURL:       session.RedirectURL,
		PaymentID:         payment.ID,
		ProviderSessionID: session.SessionID,
		Amount:            price.Amount,
		Currency:          price.Currency,
	}
	if err := guard.SaveResult(ctx, token, models.IdempotencyPurposeCheckout, resp); err != nil {
		log.Warnf("checkout outcome not persisted for key %s: %v", token, err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// HandlePaymentWebhook applies a gateway event to the referenced payment.
// The signature gate runs before anything in the payload is trusted, and the
// eventId claim absorbs provider-level redeliveries.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	paymentID, err := paramUint(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Gateway-Signature"))
	secret := env.GetEnv("GATEWAY_WEBHOOK_SECRET", "")
	if !gateway.VerifyWebhookSignature(rawBody, signature, secret) {
		return respondError(c, apperrors.Unauthorized("invalid webhook signature"))
	}

	var payload webhookPayload
	if err := parseBody(c, &payload); err != nil {
		return respondError(c, err)
	}
	occurredAt := payload.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	guard, ledgerSvc, members, _ := billingServices()
	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	// A misrouted event must not touch the addressed payment: the session in
	// the payload has to resolve to the same row the URL names.
	if payload.ProviderSessionID != "" {
		bySession, err := ledgerSvc.GetBySessionID(ctx, payload.ProviderSessionID)
		if err != nil {
			return respondError(c, err)
		}
		if bySession.ID != paymentID {
			return respondError(c, apperrors.Conflict("session %s belongs to payment %d, not %d", payload.ProviderSessionID, bySession.ID, paymentID))
		}
	}

	claim, err := guard.Claim(ctx, payload.EventID, models.IdempotencyPurposeWebhook)
	if err != nil {
		return respondError(c, err)
	}
	if !claim.Acquired {
		var prior webhookOutcome
		if ok, err := claim.StoredResult(&prior); err == nil && ok {
			prior.Duplicate = true
			return c.Status(fiber.StatusOK).JSON(prior)
		}
		// Claimed but no stored outcome: a concurrent delivery is mid-flight.
		// Answering an error keeps the provider redelivering until one
		// delivery completes; a 200 here could swallow the event for good.
		return respondError(c, apperrors.Duplicate("event %s is being processed", payload.EventID))
	}

	outcome, err := applyWebhookEvent(ctx, ledgerSvc, members, paymentID, &payload, occurredAt)
	if err != nil {
		// The event was never applied; reopen the claim so the provider's
		// redelivery gets to run it instead of replaying a non-outcome.
		releaseClaim(ctx, guard, payload.EventID, models.IdempotencyPurposeWebhook)
		return respondError(c, err)
	}
	if err := guard.SaveResult(ctx, payload.EventID, models.IdempotencyPurposeWebhook, outcome); err != nil {
		log.Warnf("webhook outcome not persisted for event %s: %v", payload.EventID, err)
	}
	return c.Status(fiber.StatusOK).JSON(outcome)
}

// applyWebhookEvent dispatches one verified, deduplicated event onto the
// ledger state machine.
func applyWebhookEvent(ctx context.Context, ledgerSvc *ledger.Service, members *membership.Service, paymentID uint, payload *webhookPayload, occurredAt time.Time) (*webhookOutcome, error) {
	var (
		payment *models.Payment
		applied bool
		err     error
	)

	switch payload.Status {
	case models.PaymentStatusSucceeded:
		payment, applied, err = ledgerSvc.MarkSucceeded(ctx, paymentID, payload.ProviderPaymentID, payload.ReceiptURL, occurredAt)
	case models.PaymentStatusFailed:
		payment, applied, err = ledgerSvc.MarkFailed(ctx, paymentID, occurredAt)
	case models.PaymentStatusCanceled:
		payment, applied, err = applyCanceledEvent(ctx, ledgerSvc, members, paymentID, occurredAt)
	case models.PaymentStatusRefunded:
		payment, err = ledgerSvc.GetByID(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		amount := payload.Amount
		currency := payload.Currency
		if amount == 0 {
			amount = payment.Amount
		}
		if currency == "" {
			currency = payment.Currency
		}
		refund, merr := models.NewMoney(amount, currency)
		if merr != nil {
			return nil, apperrors.Wrap(apperrors.CodeValidation, merr, "invalid refund amount")
		}
		payment, err = ledgerSvc.Refund(ctx, paymentID, refund, occurredAt)
		applied = payment != nil && payment.Status == models.PaymentStatusRefunded
	default:
		return nil, apperrors.Validation("unsupported webhook status %s", payload.Status)
	}
	if err != nil {
		return nil, err
	}

	return &webhookOutcome{
		OK:            true,
		PaymentID:     payment.ID,
		PaymentStatus: payment.Status,
		Applied:       applied,
	}, nil
}

// applyCanceledEvent resolves the provider's overloaded CANCELED status: for
// a PENDING payment it is an abandoned checkout; for a settled payment it is
// the recurring-billing cancellation signal, which stops renewal while
// keeping access until period end.
func applyCanceledEvent(ctx context.Context, ledgerSvc *ledger.Service, members *membership.Service, paymentID uint, occurredAt time.Time) (*models.Payment, bool, error) {
	payment, err := ledgerSvc.GetByID(ctx, paymentID)
	if err != nil {
		return nil, false, err
	}
	if payment.Status == models.PaymentStatusPending || payment.Status == models.PaymentStatusCanceled {
		return ledgerSvc.MarkCanceled(ctx, paymentID, occurredAt)
	}
	if payment.Status == models.PaymentStatusSucceeded {
		if _, err := members.Cancel(ctx, payment.UserID, occurredAt); err != nil && !apperrors.IsNotFound(err) && !apperrors.IsConflict(err) {
			return nil, false, err
		}
		return payment, true, nil
	}
	return nil, false, apperrors.Conflict("cannot cancel payment %d in state %s", payment.ID, payment.Status)
}
