package router

import (
	"github.com/CreditFox/CreditFox/app/controllers"
	"github.com/CreditFox/CreditFox/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Webhook ingestion is POST only. Signature verification happens inside
	// the controller, never through middleware, so the raw body stays intact.
	app.Post(constants.StripeWebhookRoute, controllers.HandleStripeWebhook)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
