package controllers

import (
	"context"
	"time"

	"github.com/CreditFox/CreditFox/app/models"
	"github.com/CreditFox/CreditFox/internal/pkg/billing"
	"github.com/CreditFox/CreditFox/internal/pkg/database"
	"github.com/CreditFox/CreditFox/internal/pkg/env"
	"github.com/CreditFox/CreditFox/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

var billingService *billing.Service

// InitializeBillingController injects the billing service. Without an
// explicit injection the controller lazily builds the production service.
func InitializeBillingController(svc *billing.Service) {
	billingService = svc
}

func getBillingService() *billing.Service {
	if billingService == nil {
		billingService = billing.NewServiceFromDB(database.GetDB())
	}
	return billingService
}

// HandleStripeWebhook ingests Stripe webhook deliveries. The signature is
// verified before anything is persisted; unverifiable payloads leave no
// trace beyond a rejection counter.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	event, err := billing.ParseSignedEvent(rawBody, signature, secret)
	if err != nil {
		fiberlog.Warnf("[Webhook] rejected delivery: %v", err)
		_ = counter.AddWebhookRejected("invalid_signature")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	_ = counter.AddWebhookReceived(string(event.Type))

	svc := getBillingService()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	process, stored, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(rawBody),
	})
	if err != nil {
		fiberlog.Errorf("[Webhook] persisting event %s failed: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !process {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}

	procErr := svc.ProcessEvent(ctx, &event)
	if markErr := svc.MarkWebhookProcessed(ctx, stored, procErr); markErr != nil {
		fiberlog.Errorf("[Webhook] marking event %s processed failed: %v", event.ID, markErr)
	}
	if procErr != nil {
		fiberlog.Errorf("[Webhook] processing event %s (%s) failed: %v", event.ID, event.Type, procErr)
		_ = counter.AddWebhookFailed(string(event.Type))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_processing_failed"})
	}

	_ = counter.AddWebhookProcessed(string(event.Type))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}
