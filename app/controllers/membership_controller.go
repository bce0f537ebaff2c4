package controllers

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/kimgyuhyun/ott-project-sub001/app/models"
	"github.com/kimgyuhyun/ott-project-sub001/app/repository"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/apperrors"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/database"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/entitlements"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/idempotency"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/ledger"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/membership"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/usercontext"
)

type cancelRequest struct {
	IdempotencyKey string `json:"idempotencyKey" validate:"omitempty,min=8,max=191"`
}

type planChangeRequest struct {
	NewPlanCode string `json:"newPlanCode" validate:"required,min=2,max=50"`
}

type planItem struct {
	Code              string `json:"code"`
	Name              string `json:"name"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	PeriodMonths      int    `json:"periodMonths"`
	ConcurrentStreams int    `json:"concurrentStreams"`
	MaxQuality        string `json:"maxQuality"`
}

// membershipServices builds the full membership graph including the payment
// side, used by plan change which may need a checkout session.
func membershipServices() (*membership.Service, *idempotency.Guard) {
	db := database.GetDB()
	plans := repository.GetGlobalFactory().GetPlanRepository()
	repo := membership.NewRepository(db)

	// The updater and the outer service share the repository, so the ledger
	// callback path and the API path observe the same rows.
	updater := membership.NewService(repo, plans, nil, nil)
	ledgerSvc := ledger.NewServiceFromDB(db, updater)
	members := membership.NewService(repo, plans, ledgerSvc, getGatewayClient())
	guard := idempotency.NewGuard(idempotency.NewRepository(db))
	return members, guard
}

// HandleGetMembership returns the caller's effective membership view.
func HandleGetMembership(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return respondError(c, apperrors.Unauthorized("login required"))
	}

	members, _ := membershipServices()
	view, err := members.GetEffectiveStatus(c.UserContext(), userCtx.UserID, time.Now())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(view)
}

// HandleCancelMembership stops auto renewal while keeping access until the
// paid period ends. Repeating the call is harmless.
func HandleCancelMembership(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return respondError(c, apperrors.Unauthorized("login required"))
	}

	var req cancelRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return respondError(c, err)
		}
	}

	members, guard := membershipServices()
	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	token := req.IdempotencyKey
	if token == "" {
		token = uuid.NewString()
	}
	claim, err := guard.Claim(ctx, token, models.IdempotencyPurposeCancel)
	if err != nil {
		return respondError(c, err)
	}
	if !claim.Acquired {
		var prior membership.View
		if ok, err := claim.StoredResult(&prior); err == nil && ok {
			return c.Status(fiber.StatusOK).JSON(&prior)
		}
	}

	view, err := members.Cancel(ctx, userCtx.UserID, time.Now())
	if err != nil {
		if claim.Acquired {
			releaseClaim(ctx, guard, token, models.IdempotencyPurposeCancel)
		}
		return respondError(c, err)
	}
	if claim.Acquired {
		if err := guard.SaveResult(ctx, token, models.IdempotencyPurposeCancel, view); err != nil {
			log.Warnf("cancel outcome not persisted for key %s: %v", token, err)
		}
	}
	return c.Status(fiber.StatusOK).JSON(view)
}

// HandlePlanChange upgrades immediately with a prorated charge, or schedules
// a downgrade for the next billing date.
func HandlePlanChange(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return respondError(c, apperrors.Unauthorized("login required"))
	}

	var req planChangeRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	members, _ := membershipServices()
	ctx, cancel := context.WithTimeout(c.UserContext(), gatewayCallTimeout)
	defer cancel()

	result, err := members.RequestPlanChange(ctx, userCtx.UserID, req.NewPlanCode, time.Now())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

// HandleListPlans returns the purchasable plan catalog. Public; the page
// renders it before login.
func HandleListPlans(c *fiber.Ctx) error {
	plans, err := repository.GetGlobalFactory().GetPlanRepository().List()
	if err != nil {
		return respondError(c, err)
	}
	items := make([]planItem, 0, len(plans))
	for _, p := range plans {
		items = append(items, planItem{
			Code:              p.Code,
			Name:              p.Name,
			Amount:            p.PriceAmount,
			Currency:          p.PriceCurrency,
			PeriodMonths:      p.PeriodMonths,
			ConcurrentStreams: p.ConcurrentStreams,
			MaxQuality:        string(p.MaxQuality),
		})
	}
	// Catalog order is tier order, lowest first.
	sort.Slice(items, func(i, j int) bool {
		return entitlements.PlanRank(items[i].Code) < entitlements.PlanRank(items[j].Code)
	})
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"plans": items})
}
