package billing

import "time"

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
}

// ProviderCustomer is the authoritative customer state fetched from the
// payment provider.
type ProviderCustomer struct {
	ID    string
	Email string
	Name  string
}

// ProviderLineItem is one purchased line item of a checkout session.
type ProviderLineItem struct {
	PriceID  string
	Quantity int64
}

// ProviderSubscription is the authoritative subscription state fetched from
// the payment provider.
type ProviderSubscription struct {
	ID                 string
	CustomerID         string
	PriceID            string
	Status             string
	CancelAtPeriodEnd  bool
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
}

// SubscriptionUpdate carries the mutable fields of a subscription-updated
// event. Balances are never touched through this path.
type SubscriptionUpdate struct {
	Status            string
	Plan              string
	CreditsMonthly    int64
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
}
