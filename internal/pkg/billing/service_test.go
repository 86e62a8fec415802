package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/CreditFox/CreditFox/app/models"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

type fakeRepo struct {
	customers map[string]*models.BillingCustomer
	balances  map[uint]*models.CreditBalance
	txns      []models.CreditTransaction
	subs      map[string]*models.BillingSubscription
	events    map[string]*models.BillingWebhookEvent
	nextID    uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		customers: make(map[string]*models.BillingCustomer),
		balances:  make(map[uint]*models.CreditBalance),
		subs:      make(map[string]*models.BillingSubscription),
		events:    make(map[string]*models.BillingWebhookEvent),
	}
}

func (f *fakeRepo) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) GetCustomerByProviderID(provider, providerCustomerID string) (*models.BillingCustomer, error) {
	c, ok := f.customers[provider+":"+providerCustomerID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (f *fakeRepo) GetOrCreateCustomer(provider, providerCustomerID, email, name string) (*models.BillingCustomer, error) {
	key := provider + ":" + providerCustomerID
	if c, ok := f.customers[key]; ok {
		return c, nil
	}
	c := &models.BillingCustomer{
		ID:                 f.id(),
		Provider:           provider,
		ProviderCustomerID: providerCustomerID,
		Email:              email,
		Name:               name,
	}
	f.customers[key] = c
	return c, nil
}

func (f *fakeRepo) AddPendingCredits(customerID uint, credits int64, plan string) error {
	for _, c := range f.customers {
		if c.ID == customerID {
			c.PendingCredits += credits
			if plan != "" {
				c.PendingPlan = plan
			}
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeRepo) CreditUser(ctx context.Context, userID uint, amount int64, description, sourcePaymentID string) (int64, bool, error) {
	if sourcePaymentID != "" {
		for _, txn := range f.txns {
			if txn.UserID == userID && txn.SourcePaymentID == sourcePaymentID {
				bal := f.balances[userID]
				if bal == nil {
					return 0, false, gorm.ErrRecordNotFound
				}
				return bal.Balance, false, nil
			}
		}
	}

	bal, ok := f.balances[userID]
	if !ok {
		bal = &models.CreditBalance{ID: f.id(), UserID: userID, Plan: models.PlanFree}
		f.balances[userID] = bal
	}
	bal.Balance += amount
	f.txns = append(f.txns, models.CreditTransaction{
		ID:              f.id(),
		UUID:            fmt.Sprintf("txn-%d", f.nextID),
		UserID:          userID,
		Amount:          amount,
		Description:     description,
		BalanceAfter:    bal.Balance,
		SourcePaymentID: sourcePaymentID,
	})
	return bal.Balance, true, nil
}

func (f *fakeRepo) SetPlan(userID uint, plan string, monthlyCredits int64) error {
	bal, ok := f.balances[userID]
	if !ok {
		bal = &models.CreditBalance{ID: f.id(), UserID: userID}
		f.balances[userID] = bal
	}
	bal.Plan = plan
	bal.PlanCreditsMonthly = monthlyCredits
	return nil
}

func (f *fakeRepo) GetBalance(userID uint) (*models.CreditBalance, error) {
	bal, ok := f.balances[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return bal, nil
}

func (f *fakeRepo) ListTransactions(userID uint, limit int) ([]models.CreditTransaction, error) {
	var out []models.CreditTransaction
	for i := len(f.txns) - 1; i >= 0 && len(out) < limit; i-- {
		if f.txns[i].UserID == userID {
			out = append(out, f.txns[i])
		}
	}
	return out, nil
}

func (f *fakeRepo) UpsertSubscription(sub *models.BillingSubscription) error {
	key := sub.Provider + ":" + sub.ProviderSubscriptionID
	if existing, ok := f.subs[key]; ok {
		sub.ID = existing.ID
	} else {
		sub.ID = f.id()
	}
	cp := *sub
	f.subs[key] = &cp
	return nil
}

func (f *fakeRepo) GetSubscriptionByProviderID(provider, providerSubscriptionID string) (*models.BillingSubscription, error) {
	sub, ok := f.subs[provider+":"+providerSubscriptionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return sub, nil
}

func (f *fakeRepo) UpdateSubscriptionByProviderID(provider, providerSubscriptionID string, up SubscriptionUpdate) error {
	sub, ok := f.subs[provider+":"+providerSubscriptionID]
	if !ok {
		// mirrors an UPDATE that matches no rows
		return nil
	}
	sub.Status = up.Status
	sub.Plan = up.Plan
	sub.CreditsMonthly = up.CreditsMonthly
	sub.CancelAtPeriodEnd = up.CancelAtPeriodEnd
	if up.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = up.CurrentPeriodEnd
	}
	return nil
}

func (f *fakeRepo) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	key := event.Provider + ":" + event.ProviderEventID
	if existing, ok := f.events[key]; ok {
		return false, existing, nil
	}
	event.ID = f.id()
	cp := *event
	f.events[key] = &cp
	return true, &cp, nil
}

func (f *fakeRepo) MarkWebhookProcessed(id uint, processingError string) error {
	for _, ev := range f.events {
		if ev.ID == id {
			now := time.Now()
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeProvider struct {
	customers map[string]ProviderCustomer
	lineItems map[string][]ProviderLineItem
	subs      map[string]ProviderSubscription
}

func (f *fakeProvider) GetCustomer(ctx context.Context, customerID string) (*ProviderCustomer, error) {
	c, ok := f.customers[customerID]
	if !ok {
		return nil, fmt.Errorf("customer %s not found", customerID)
	}
	return &c, nil
}

func (f *fakeProvider) ListCheckoutLineItems(ctx context.Context, sessionID string) ([]ProviderLineItem, error) {
	items, ok := f.lineItems[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	return items, nil
}

func (f *fakeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	s, ok := f.subs[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("subscription %s not found", subscriptionID)
	}
	return &s, nil
}

func testCatalog() *Catalog {
	return NewCatalog(map[string]ProductEntry{
		"price_starter_monthly": {Credits: 100, Plan: "starter", Kind: ProductKindSubscription},
		"price_pro_monthly":     {Credits: 500, Plan: "pro", Kind: ProductKindSubscription},
		"price_credits_100":     {Credits: 100, Kind: ProductKindCredits},
	})
}

func newTestService(repo *fakeRepo, provider *fakeProvider) *Service {
	return NewService(repo, provider, testCatalog())
}

func eventOf(id, eventType, raw string) *stripe.Event {
	return &stripe.Event{
		ID:   id,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	}
}

func linkUser(repo *fakeRepo, providerCustomerID string, userID uint) {
	c, _ := repo.GetOrCreateCustomer(models.BillingProviderStripe, providerCustomerID, "", "")
	c.UserID = &userID
}

func TestCheckoutCompletedCreditsLinkedUser(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{
		customers: map[string]ProviderCustomer{"cus_1": {ID: "cus_1", Email: "a@b.c"}},
		lineItems: map[string][]ProviderLineItem{"cs_1": {{PriceID: "price_starter_monthly", Quantity: 1}}},
		subs:      map[string]ProviderSubscription{"sub_1": {ID: "sub_1", CustomerID: "cus_1", PriceID: "price_starter_monthly", Status: "active"}},
	}
	linkUser(repo, "cus_1", 42)
	svc := newTestService(repo, provider)

	ev := eventOf("evt_1", "checkout.session.completed", `{"id":"cs_1","customer":"cus_1","subscription":"sub_1"}`)
	if err := svc.ProcessEvent(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bal := repo.balances[42]
	if bal == nil || bal.Balance != 100 {
		t.Fatalf("expected balance 100, got %+v", bal)
	}
	if bal.Plan != "starter" || bal.PlanCreditsMonthly != 100 {
		t.Fatalf("expected plan starter/100, got %s/%d", bal.Plan, bal.PlanCreditsMonthly)
	}
	if len(repo.txns) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(repo.txns))
	}
	if repo.txns[0].Description != "STARTER subscription: 100 credits" {
		t.Fatalf("unexpected description %q", repo.txns[0].Description)
	}
	sub := repo.subs["stripe:sub_1"]
	if sub == nil || sub.Status != models.BillingStatusActive || sub.Plan != "starter" {
		t.Fatalf("expected active starter subscription, got %+v", sub)
	}
}

func TestCheckoutCompletedCreditPack(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{
		customers: map[string]ProviderCustomer{"cus_1": {ID: "cus_1"}},
		lineItems: map[string][]ProviderLineItem{"cs_1": {{PriceID: "price_credits_100", Quantity: 3}}},
	}
	linkUser(repo, "cus_1", 7)
	svc := newTestService(repo, provider)

	ev := eventOf("evt_1", "checkout.session.completed", `{"id":"cs_1","customer":"cus_1"}`)
	if err := svc.ProcessEvent(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := repo.balances[7].Balance; got != 300 {
		t.Fatalf("expected quantity x credits = 300, got %d", got)
	}
	if repo.txns[0].Description != "Purchased 300 credits" {
		t.Fatalf("unexpected description %q", repo.txns[0].Description)
	}
	// credit packs never change the plan
	if repo.balances[7].Plan != models.PlanFree {
		t.Fatalf("expected plan to stay free, got %s", repo.balances[7].Plan)
	}
}

func TestCheckoutCompletedUnlinkedCustomerAccumulatesPending(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{
		customers: map[string]ProviderCustomer{"cus_9": {ID: "cus_9", Email: "x@y.z"}},
		lineItems: map[string][]ProviderLineItem{"cs_1": {{PriceID: "price_pro_monthly", Quantity: 1}}},
		subs:      map[string]ProviderSubscription{"sub_9": {ID: "sub_9", CustomerID: "cus_9", PriceID: "price_pro_monthly", Status: "active"}},
	}
	svc := newTestService(repo, provider)

	ev := eventOf("evt_1", "checkout.session.completed", `{"id":"cs_1","customer":"cus_9","subscription":"sub_9"}`)
	if err := svc.ProcessEvent(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cust := repo.customers["stripe:cus_9"]
	if cust == nil || cust.PendingCredits != 500 || cust.PendingPlan != "pro" {
		t.Fatalf("expected 500 pending credits on plan pro, got %+v", cust)
	}
	if len(repo.balances) != 0 || len(repo.txns) != 0 {
		t.Fatalf("expected no balance or ledger writes for unlinked customer")
	}
}

func TestCheckoutCompletedSkipsUnknownProduct(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{
		customers: map[string]ProviderCustomer{"cus_1": {ID: "cus_1"}},
		lineItems: map[string][]ProviderLineItem{"cs_1": {
			{PriceID: "price_not_in_catalog", Quantity: 1},
			{PriceID: "price_credits_100", Quantity: 1},
		}},
	}
	linkUser(repo, "cus_1", 5)
	svc := newTestService(repo, provider)

	ev := eventOf("evt_1", "checkout.session.completed", `{"id":"cs_1","customer":"cus_1"}`)
	if err := svc.ProcessEvent(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := repo.balances[5].Balance; got != 100 {
		t.Fatalf("expected only the known product credited, balance %d", got)
	}
	if len(repo.txns) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(repo.txns))
	}
}

func TestCheckoutCompletedReplayDoesNotDoubleCredit(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{
		customers: map[string]ProviderCustomer{"cus_1": {ID: "cus_1"}},
		lineItems: map[string][]ProviderLineItem{"cs_1": {{PriceID: "price_credits_100", Quantity: 1}}},
	}
	linkUser(repo, "cus_1", 5)
	svc := newTestService(repo, provider)

	raw := `{"id":"cs_1","customer":"cus_1"}`
	if err := svc.ProcessEvent(context.Background(), eventOf("evt_1", "checkout.session.completed", raw)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// same session under a fresh event id
	if err := svc.ProcessEvent(context.Background(), eventOf("evt_2", "checkout.session.completed", raw)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := repo.balances[5].Balance; got != 100 {
		t.Fatalf("expected single grant, balance %d", got)
	}
	if len(repo.txns) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(repo.txns))
	}
}

func TestInvoiceWithoutSubscriptionIsIgnored(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})

	ev := eventOf("evt_1", "invoice.payment_succeeded", `{"id":"in_1","customer":"cus_1"}`)
	if err := svc.ProcessEvent(context.Background(), ev); err != nil {
		t.Fatalf("expected one-off invoice to be a no-op, got %v", err)
	}
	if len(repo.txns) != 0 {
		t.Fatalf("expected no ledger writes")
	}
}

func TestInvoiceRenewalCreditsOncePerInvoice(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{
		subs: map[string]ProviderSubscription{"sub_1": {ID: "sub_1", CustomerID: "cus_1", PriceID: "price_pro_monthly", Status: "active"}},
	}
	linkUser(repo, "cus_1", 11)
	svc := newTestService(repo, provider)

	raw := `{"id":"in_42","customer":"cus_1","subscription":"sub_1"}`
	if err := svc.ProcessEvent(context.Background(), eventOf("evt_1", "invoice.payment_succeeded", raw)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := repo.balances[11].Balance; got != 500 {
		t.Fatalf("expected renewal grant of 500, got %d", got)
	}
	if repo.txns[0].Description != "PRO renewal: 500 credits" {
		t.Fatalf("unexpected description %q", repo.txns[0].Description)
	}

	// redelivered invoice under a new event id must not double-credit
	if err := svc.ProcessEvent(context.Background(), eventOf("evt_2", "invoice.payment_succeeded", raw)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := repo.balances[11].Balance; got != 500 {
		t.Fatalf("expected balance unchanged, got %d", got)
	}
	if len(repo.txns) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(repo.txns))
	}
}

func TestInvoiceForUnknownProductIsSkipped(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{
		subs: map[string]ProviderSubscription{"sub_1": {ID: "sub_1", CustomerID: "cus_1", PriceID: "price_retired", Status: "active"}},
	}
	linkUser(repo, "cus_1", 11)
	svc := newTestService(repo, provider)

	ev := eventOf("evt_1", "invoice.payment_succeeded", `{"id":"in_1","customer":"cus_1","subscription":"sub_1"}`)
	if err := svc.ProcessEvent(context.Background(), ev); err != nil {
		t.Fatalf("expected unknown product to be a no-op, got %v", err)
	}
	if len(repo.txns) != 0 {
		t.Fatalf("expected no ledger writes")
	}
}

func TestInvoiceForUnlinkedCustomerIsSkipped(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{
		subs: map[string]ProviderSubscription{"sub_1": {ID: "sub_1", CustomerID: "cus_1", PriceID: "price_pro_monthly", Status: "active"}},
	}
	// customer record exists but is not linked to a user
	repo.GetOrCreateCustomer(models.BillingProviderStripe, "cus_1", "", "")
	svc := newTestService(repo, provider)

	ev := eventOf("evt_1", "invoice.payment_succeeded", `{"id":"in_1","customer":"cus_1","subscription":"sub_1"}`)
	if err := svc.ProcessEvent(context.Background(), ev); err != nil {
		t.Fatalf("expected unlinked customer to be a no-op, got %v", err)
	}
	if len(repo.txns) != 0 {
		t.Fatalf("expected no ledger writes")
	}
}

func TestSubscriptionUpdatedSyncsRecord(t *testing.T) {
	repo := newFakeRepo()
	repo.subs["stripe:sub_1"] = &models.BillingSubscription{
		ID: 1, Provider: models.BillingProviderStripe, ProviderSubscriptionID: "sub_1",
		Plan: "starter", Status: models.BillingStatusActive, CreditsMonthly: 100,
	}
	svc := newTestService(repo, &fakeProvider{})

	raw := `{"id":"sub_1","customer":"cus_1","status":"past_due","cancel_at_period_end":true,
		"items":{"data":[{"current_period_end":1756600000,"price":{"id":"price_pro_monthly"}}]}}`
	if err := svc.ProcessEvent(context.Background(), eventOf("evt_1", "customer.subscription.updated", raw)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sub := repo.subs["stripe:sub_1"]
	if sub.Status != models.BillingStatusPastDue || sub.Plan != "pro" || sub.CreditsMonthly != 500 {
		t.Fatalf("unexpected subscription state: %+v", sub)
	}
	if !sub.CancelAtPeriodEnd {
		t.Fatalf("expected cancel_at_period_end to be set")
	}
	if sub.CurrentPeriodEnd == nil || sub.CurrentPeriodEnd.Unix() != 1756600000 {
		t.Fatalf("unexpected period end: %v", sub.CurrentPeriodEnd)
	}
}

func TestSubscriptionUpdatedUnknownProductDegradesToUnknownPlan(t *testing.T) {
	repo := newFakeRepo()
	repo.subs["stripe:sub_1"] = &models.BillingSubscription{
		ID: 1, Provider: models.BillingProviderStripe, ProviderSubscriptionID: "sub_1",
		Plan: "starter", Status: models.BillingStatusActive, CreditsMonthly: 100,
	}
	svc := newTestService(repo, &fakeProvider{})

	raw := `{"id":"sub_1","status":"active","items":{"data":[{"price":{"id":"price_retired"}}]}}`
	if err := svc.ProcessEvent(context.Background(), eventOf("evt_1", "customer.subscription.updated", raw)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sub := repo.subs["stripe:sub_1"]
	if sub.Plan != models.PlanUnknown || sub.CreditsMonthly != 0 {
		t.Fatalf("expected plan unknown with zero credits, got %s/%d", sub.Plan, sub.CreditsMonthly)
	}
}

func TestSubscriptionDeletedCancelsAndDowngrades(t *testing.T) {
	repo := newFakeRepo()
	userID := uint(42)
	repo.subs["stripe:sub_1"] = &models.BillingSubscription{
		ID: 1, Provider: models.BillingProviderStripe, ProviderSubscriptionID: "sub_1",
		UserID: &userID, Plan: "pro", Status: models.BillingStatusActive, CreditsMonthly: 500,
	}
	repo.balances[userID] = &models.CreditBalance{UserID: userID, Balance: 700, Plan: "pro", PlanCreditsMonthly: 500}
	svc := newTestService(repo, &fakeProvider{})

	raw := `{"id":"sub_1","status":"canceled"}`
	if err := svc.ProcessEvent(context.Background(), eventOf("evt_1", "customer.subscription.deleted", raw)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := repo.subs["stripe:sub_1"].Status; got != models.BillingStatusCanceled {
		t.Fatalf("expected canceled, got %s", got)
	}
	bal := repo.balances[userID]
	if bal.Plan != models.PlanFree || bal.PlanCreditsMonthly != 0 {
		t.Fatalf("expected downgrade to free/0, got %s/%d", bal.Plan, bal.PlanCreditsMonthly)
	}
	// credits already granted are kept
	if bal.Balance != 700 {
		t.Fatalf("expected balance untouched, got %d", bal.Balance)
	}

	// second delivery is idempotent
	if err := svc.ProcessEvent(context.Background(), eventOf("evt_2", "customer.subscription.deleted", raw)); err != nil {
		t.Fatalf("unexpected error on repeat delete: %v", err)
	}
}

func TestSubscriptionDeletedUnknownSubscriptionIsIgnored(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})

	raw := `{"id":"sub_missing","status":"canceled"}`
	if err := svc.ProcessEvent(context.Background(), eventOf("evt_1", "customer.subscription.deleted", raw)); err != nil {
		t.Fatalf("expected unknown subscription to be a no-op, got %v", err)
	}
}

func TestUnhandledEventTypeIsAccepted(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})

	ev := eventOf("evt_1", "customer.created", `{"id":"cus_1"}`)
	if err := svc.ProcessEvent(context.Background(), ev); err != nil {
		t.Fatalf("expected unhandled type to succeed, got %v", err)
	}
}

func TestRecordWebhookEventDeduplicates(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	ctx := context.Background()

	in := WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: "evt_1",
		EventType:       "checkout.session.completed",
		PayloadJSON:     "{}",
	}

	process, stored, err := svc.RecordWebhookEvent(ctx, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !process || stored == nil {
		t.Fatalf("expected first delivery to be processed")
	}

	// redelivery before completion is processed again
	process, _, err = svc.RecordWebhookEvent(ctx, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !process {
		t.Fatalf("expected unprocessed redelivery to be retried")
	}

	if err := svc.MarkWebhookProcessed(ctx, stored, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	process, _, err = svc.RecordWebhookEvent(ctx, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if process {
		t.Fatalf("expected processed redelivery to be a duplicate")
	}
}

func TestRecordWebhookEventRetriesAfterFailure(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	ctx := context.Background()

	in := WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: "evt_1",
		EventType:       "invoice.payment_succeeded",
		PayloadJSON:     "{}",
	}

	_, stored, err := svc.RecordWebhookEvent(ctx, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.MarkWebhookProcessed(ctx, stored, fmt.Errorf("provider unavailable")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	process, stored2, err := svc.RecordWebhookEvent(ctx, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !process {
		t.Fatalf("expected failed event to be retried on redelivery")
	}
	if stored2.ProcessingError == "" {
		t.Fatalf("expected stored error from the failed attempt")
	}
}

func TestRecordWebhookEventHashesMissingEventID(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	ctx := context.Background()

	in := WebhookEventInput{
		Provider:    models.BillingProviderStripe,
		EventType:   "checkout.session.completed",
		PayloadJSON: `{"id":"cs_1"}`,
	}

	_, stored, err := svc.RecordWebhookEvent(ctx, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(stored.ProviderEventID, "hash:") {
		t.Fatalf("expected hashed fallback id, got %q", stored.ProviderEventID)
	}

	// identical payload maps to the same synthetic id
	process, _, err := svc.RecordWebhookEvent(ctx, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !process {
		t.Fatalf("unprocessed event should still be retried")
	}
	if len(repo.events) != 1 {
		t.Fatalf("expected a single stored event, got %d", len(repo.events))
	}
}

func TestGetBalanceDefaultsToFreePlan(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})

	bal, err := svc.GetBalance(context.Background(), 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bal.Balance != 0 || bal.Plan != models.PlanFree {
		t.Fatalf("expected empty free balance, got %+v", bal)
	}
}
