package router

import (
	"github.com/CreditFox/CreditFox/app/controllers"
	"github.com/CreditFox/CreditFox/internal/pkg/constants"
	"github.com/CreditFox/CreditFox/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes, all behind API key auth
	v1 := api.Group(constants.APIv1Route, middleware.APIKeyAuthMiddleware())
	v1.Get(constants.CreditsRoute, controllers.HandleGetCredits)
	v1.Get(constants.TransactionsRoute, controllers.HandleGetCreditTransactions)
	v1.Get(constants.AdminMetricsRoute, controllers.HandleGetWebhookMetrics)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
