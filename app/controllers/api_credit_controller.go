package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/CreditFox/CreditFox/internal/pkg/metrics/counter"
	"github.com/CreditFox/CreditFox/internal/pkg/usercontext"
)

// HandleGetCredits returns the authenticated user's balance and plan.
func HandleGetCredits(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bal, err := getBillingService().GetBalance(ctx, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load balance"})
	}

	return c.JSON(fiber.Map{
		"user_id":              bal.UserID,
		"balance":              bal.Balance,
		"plan":                 bal.Plan,
		"plan_credits_monthly": bal.PlanCreditsMonthly,
	})
}

// HandleGetCreditTransactions returns the newest ledger entries for the
// authenticated user.
func HandleGetCreditTransactions(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	limit := c.QueryInt("limit", 50)
	txns, err := getBillingService().ListTransactions(ctx, userCtx.UserID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load transactions"})
	}

	items := make([]fiber.Map, 0, len(txns))
	for _, txn := range txns {
		items = append(items, fiber.Map{
			"uuid":          txn.UUID,
			"amount":        txn.Amount,
			"description":   txn.Description,
			"balance_after": txn.BalanceAfter,
			"created_at":    txn.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{"transactions": items, "count": len(items)})
}

// HandleGetWebhookMetrics exposes the webhook processing counters to admins.
func HandleGetWebhookMetrics(c *fiber.Ctx) error {
	if !usercontext.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Admin access required"})
	}

	snapshot, err := counter.Snapshot()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load counters"})
	}
	return c.JSON(fiber.Map{"counters": snapshot})
}
