package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CreditFox/CreditFox/app/models"
	"github.com/CreditFox/CreditFox/internal/pkg/cache"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

// ProcessedMarks is an advisory fast path for already-processed event ids.
// The unique index on the webhook event table stays the source of truth.
type ProcessedMarks interface {
	Seen(provider, eventID string) bool
	Mark(provider, eventID string)
}

type redisMarks struct{}

func (redisMarks) Seen(provider, eventID string) bool { return cache.WasWebhookSeen(provider, eventID) }
func (redisMarks) Mark(provider, eventID string)      { _ = cache.MarkWebhookSeen(provider, eventID) }

// Service processes verified payment-provider events against the credit
// ledger.
type Service struct {
	repo     Repository
	provider ProviderAPI
	catalog  *Catalog
	marks    ProcessedMarks
}

// NewService creates a billing service from injected collaborators.
func NewService(repo Repository, provider ProviderAPI, catalog *Catalog) *Service {
	return &Service{repo: repo, provider: provider, catalog: catalog}
}

// NewServiceFromDB creates the production billing service from a GORM DB
// handle, wired to the live Stripe API and the Redis fast path.
func NewServiceFromDB(db *gorm.DB) *Service {
	s := NewService(NewRepository(db), NewStripeAPI(), GetCatalog())
	s.marks = redisMarks{}
	return s
}

// Minimal payload shapes decoded from event.Data.Raw. Everything beyond
// identifiers is re-fetched from the provider.
type checkoutSessionPayload struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

type invoicePayload struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

type subscriptionPayload struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// ProcessEvent routes a verified event to its handler. Unrecognized event
// types are a recognized outcome: logged and ignored so new provider event
// types never fail ingestion.
func (s *Service) ProcessEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return errors.New("event carries no payload")
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess checkoutSessionPayload
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("decode checkout.session: %w", err)
		}
		return s.HandleCheckoutCompleted(ctx, sess)
	case "invoice.payment_succeeded":
		var inv invoicePayload
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		return s.HandleInvoicePaymentSucceeded(ctx, inv)
	case "customer.subscription.updated":
		var sub subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.HandleSubscriptionUpdated(ctx, sub)
	case "customer.subscription.deleted":
		var sub subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.HandleSubscriptionDeleted(ctx, sub)
	default:
		fiberlog.Infof("[Billing] ignoring unhandled event type %s (%s)", event.Type, event.ID)
		return nil
	}
}

// HandleCheckoutCompleted grants the purchased line items. Linked customers
// are credited directly; customers without a local user accumulate onto the
// pending fields until account linkage.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, sess checkoutSessionPayload) error {
	if strings.TrimSpace(sess.Customer) == "" {
		return fmt.Errorf("checkout session %s missing customer", sess.ID)
	}

	pc, err := s.provider.GetCustomer(ctx, sess.Customer)
	if err != nil {
		return fmt.Errorf("fetch customer: %w", err)
	}
	cust, err := s.repo.GetOrCreateCustomer(models.BillingProviderStripe, pc.ID, pc.Email, pc.Name)
	if err != nil {
		return fmt.Errorf("resolve customer: %w", err)
	}

	items, err := s.provider.ListCheckoutLineItems(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("list line items: %w", err)
	}

	for _, item := range items {
		entry, ok := s.catalog.Lookup(item.PriceID)
		if !ok {
			fiberlog.Warnf("[Billing] checkout %s: unknown product %s, skipping", sess.ID, item.PriceID)
			continue
		}

		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		credits := entry.Credits * qty
		sourceID := sess.ID + ":" + item.PriceID

		if cust.UserID != nil {
			desc := fmt.Sprintf("Purchased %d credits", credits)
			if entry.Kind == ProductKindSubscription {
				desc = fmt.Sprintf("%s subscription: %d credits", planLabel(entry.Plan), credits)
			}
			if _, _, err := s.repo.CreditUser(ctx, *cust.UserID, credits, desc, sourceID); err != nil {
				return fmt.Errorf("credit user %d: %w", *cust.UserID, err)
			}
			if entry.Kind == ProductKindSubscription {
				if err := s.repo.SetPlan(*cust.UserID, normalizePlan(entry.Plan), entry.Credits); err != nil {
					return fmt.Errorf("set plan for user %d: %w", *cust.UserID, err)
				}
			}
		} else {
			pendingPlan := ""
			if entry.Kind == ProductKindSubscription {
				pendingPlan = normalizePlan(entry.Plan)
			}
			if err := s.repo.AddPendingCredits(cust.ID, credits, pendingPlan); err != nil {
				return fmt.Errorf("accumulate pending credits: %w", err)
			}
			fiberlog.Infof("[Billing] checkout %s: customer %s not linked yet, %d credits pending", sess.ID, pc.ID, credits)
		}

		if entry.Kind == ProductKindSubscription && strings.TrimSpace(sess.Subscription) != "" {
			if err := s.upsertCheckoutSubscription(ctx, cust, sess.Subscription, item.PriceID, entry); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *Service) upsertCheckoutSubscription(ctx context.Context, cust *models.BillingCustomer, subscriptionID, priceRef string, entry ProductEntry) error {
	sub := &models.BillingSubscription{
		CustomerID:             cust.ID,
		UserID:                 cust.UserID,
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: strings.TrimSpace(subscriptionID),
		ProviderPriceRef:       priceRef,
		Plan:                   normalizePlan(entry.Plan),
		Status:                 models.BillingStatusActive,
		CreditsMonthly:         entry.Credits,
	}

	// Periods come from the authoritative subscription object.
	ps, err := s.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", subscriptionID, err)
	}
	sub.CurrentPeriodStart = ps.CurrentPeriodStart
	sub.CurrentPeriodEnd = ps.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = ps.CancelAtPeriodEnd

	if err := s.repo.UpsertSubscription(sub); err != nil {
		return fmt.Errorf("upsert subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// HandleInvoicePaymentSucceeded is the recurring-billing renewal path. The
// grant is keyed on the invoice id, so a replayed invoice under a fresh
// event id cannot double-credit.
func (s *Service) HandleInvoicePaymentSucceeded(ctx context.Context, inv invoicePayload) error {
	if strings.TrimSpace(inv.Subscription) == "" {
		fiberlog.Infof("[Billing] invoice %s carries no subscription, ignoring", inv.ID)
		return nil
	}

	sub, err := s.provider.GetSubscription(ctx, inv.Subscription)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", inv.Subscription, err)
	}

	entry, ok := s.catalog.Lookup(sub.PriceID)
	if !ok {
		fiberlog.Warnf("[Billing] invoice %s: product %s not in catalog, skipping renewal", inv.ID, sub.PriceID)
		return nil
	}

	customerID := strings.TrimSpace(inv.Customer)
	if customerID == "" {
		customerID = sub.CustomerID
	}
	cust, err := s.repo.GetCustomerByProviderID(models.BillingProviderStripe, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fiberlog.Warnf("[Billing] invoice %s: no customer record for %s", inv.ID, customerID)
			return nil
		}
		return fmt.Errorf("lookup customer %s: %w", customerID, err)
	}
	if cust.UserID == nil {
		fiberlog.Infof("[Billing] invoice %s: customer %s not linked, skipping renewal credit", inv.ID, customerID)
		return nil
	}

	desc := fmt.Sprintf("%s renewal: %d credits", planLabel(entry.Plan), entry.Credits)
	_, granted, err := s.repo.CreditUser(ctx, *cust.UserID, entry.Credits, desc, inv.ID)
	if err != nil {
		return fmt.Errorf("credit renewal for user %d: %w", *cust.UserID, err)
	}
	if !granted {
		fiberlog.Infof("[Billing] invoice %s already credited, skipping", inv.ID)
	}
	return nil
}

// HandleSubscriptionUpdated syncs subscription state. A product that is no
// longer in the catalog degrades to plan "unknown" with zero credits; the
// handler never fails for that. Balances are not touched here.
func (s *Service) HandleSubscriptionUpdated(ctx context.Context, sub subscriptionPayload) error {
	priceID := ""
	up := SubscriptionUpdate{
		Status:            strings.TrimSpace(sub.Status),
		Plan:              models.PlanUnknown,
		CreditsMonthly:    0,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if len(sub.Items.Data) > 0 {
		priceID = sub.Items.Data[0].Price.ID
		if end := sub.Items.Data[0].CurrentPeriodEnd; end > 0 {
			t := time.Unix(end, 0)
			up.CurrentPeriodEnd = &t
		}
	}
	if entry, ok := s.catalog.Lookup(priceID); ok {
		up.Plan = normalizePlan(entry.Plan)
		up.CreditsMonthly = entry.Credits
	} else {
		fiberlog.Warnf("[Billing] subscription %s: product %s not in catalog, recording as unknown", sub.ID, priceID)
	}

	if err := s.repo.UpdateSubscriptionByProviderID(models.BillingProviderStripe, sub.ID, up); err != nil {
		return fmt.Errorf("update subscription %s: %w", sub.ID, err)
	}
	return nil
}

// HandleSubscriptionDeleted marks the subscription canceled (terminal) and
// resets the linked user's plan to free. Credits already granted remain.
func (s *Service) HandleSubscriptionDeleted(ctx context.Context, sub subscriptionPayload) error {
	rec, err := s.repo.GetSubscriptionByProviderID(models.BillingProviderStripe, sub.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fiberlog.Warnf("[Billing] subscription %s not found, nothing to cancel", sub.ID)
			return nil
		}
		return fmt.Errorf("lookup subscription %s: %w", sub.ID, err)
	}

	up := SubscriptionUpdate{
		Status:            models.BillingStatusCanceled,
		Plan:              rec.Plan,
		CreditsMonthly:    rec.CreditsMonthly,
		CancelAtPeriodEnd: true,
	}
	if err := s.repo.UpdateSubscriptionByProviderID(models.BillingProviderStripe, sub.ID, up); err != nil {
		return fmt.Errorf("cancel subscription %s: %w", sub.ID, err)
	}

	if rec.UserID != nil {
		if err := s.repo.SetPlan(*rec.UserID, models.PlanFree, 0); err != nil {
			return fmt.Errorf("downgrade user %d: %w", *rec.UserID, err)
		}
	}
	return nil
}

// RecordWebhookEvent persists the audit row for a verified event. The bool
// result reports whether this delivery should be processed: false means the
// event id was already seen and completed, so the caller acknowledges
// without running any handler. A previously failed attempt is processed
// again on redelivery.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	if s.marks != nil && s.marks.Seen(provider, eventID) {
		return false, nil, nil
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
	}
	created, stored, err := s.repo.CreateWebhookEventIfNotExists(event)
	if err != nil {
		return false, nil, err
	}
	if !created && stored.Processed() {
		return false, stored, nil
	}
	return true, stored, nil
}

// MarkWebhookProcessed finalizes the audit row and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, event *models.BillingWebhookEvent, processingErr error) error {
	if event == nil || event.ID == 0 {
		return errors.New("webhook event is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	if err := s.repo.MarkWebhookProcessed(event.ID, errMsg); err != nil {
		return err
	}
	if processingErr == nil && s.marks != nil {
		s.marks.Mark(event.Provider, event.ProviderEventID)
	}
	return nil
}

// GetBalance returns the user's balance, defaulting to an empty free-plan
// balance when no row exists yet.
func (s *Service) GetBalance(ctx context.Context, userID uint) (*models.CreditBalance, error) {
	bal, err := s.repo.GetBalance(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.CreditBalance{UserID: userID, Plan: models.PlanFree}, nil
		}
		return nil, err
	}
	return bal, nil
}

// ListTransactions returns the newest ledger rows for a user, bounded.
func (s *Service) ListTransactions(ctx context.Context, userID uint, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListTransactions(userID, limit)
}
