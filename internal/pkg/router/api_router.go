package router

import (
	"github.com/kimgyuhyun/ott-project-sub001/app/controllers"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/constants"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIPrefix, limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group(constants.APIV1)

	// Public routes. The webhook authenticates with its HMAC signature, not a
	// session, so it stays outside the auth middleware.
	v1.Get(constants.PlanListRoute, controllers.HandleListPlans)
	v1.Post(constants.PaymentWebhookRoute, controllers.HandlePaymentWebhook)

	// Session-authenticated routes
	v1.Post(constants.CheckoutRoute, middleware.RequireAPISessionAuth, controllers.HandleCheckout)
	v1.Get(constants.MembershipRoute, middleware.RequireAPISessionAuth, controllers.HandleGetMembership)
	v1.Post(constants.CancelRoute, middleware.RequireAPISessionAuth, controllers.HandleCancelMembership)
	v1.Post(constants.PlanChangeRoute, middleware.RequireAPISessionAuth, controllers.HandlePlanChange)
	v1.Get(constants.StreamURLRoute, middleware.RequireAPISessionAuth, controllers.HandleStreamURL)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
