package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CreditFox/CreditFox/internal/pkg/env"
	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
)

// ProviderAPI is the seam to the payment provider. Handlers re-fetch
// authoritative object state through it instead of trusting payload copies
// beyond identifiers.
type ProviderAPI interface {
	GetCustomer(ctx context.Context, customerID string) (*ProviderCustomer, error)
	ListCheckoutLineItems(ctx context.Context, sessionID string) ([]ProviderLineItem, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
}

type stripeAPI struct{}

// SetupStripe configures the global Stripe client key from the environment.
func SetupStripe() {
	stripe.Key = strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", ""))
}

// NewStripeAPI returns the live Stripe-backed provider API.
func NewStripeAPI() ProviderAPI {
	return stripeAPI{}
}

func (stripeAPI) GetCustomer(ctx context.Context, customerID string) (*ProviderCustomer, error) {
	id := strings.TrimSpace(customerID)
	if id == "" {
		return nil, errors.New("customer id is required")
	}

	params := &stripe.CustomerParams{}
	params.Context = ctx
	cust, err := customer.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe customer %s: %w", id, err)
	}

	return &ProviderCustomer{
		ID:    cust.ID,
		Email: cust.Email,
		Name:  cust.Name,
	}, nil
}

func (stripeAPI) ListCheckoutLineItems(ctx context.Context, sessionID string) ([]ProviderLineItem, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, errors.New("checkout session id is required")
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")
	sess, err := checkoutsession.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session %s: %w", id, err)
	}

	if sess.LineItems == nil {
		return nil, nil
	}
	items := make([]ProviderLineItem, 0, len(sess.LineItems.Data))
	for _, li := range sess.LineItems.Data {
		if li == nil || li.Price == nil {
			continue
		}
		items = append(items, ProviderLineItem{
			PriceID:  li.Price.ID,
			Quantity: li.Quantity,
		})
	}
	return items, nil
}

func (stripeAPI) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return nil, errors.New("subscription id is required")
	}

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscription.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe subscription %s: %w", id, err)
	}

	out := &ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	// Billing periods live on the subscription items.
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
		if item.CurrentPeriodStart > 0 {
			t := time.Unix(item.CurrentPeriodStart, 0)
			out.CurrentPeriodStart = &t
		}
		if item.CurrentPeriodEnd > 0 {
			t := time.Unix(item.CurrentPeriodEnd, 0)
			out.CurrentPeriodEnd = &t
		}
	}
	return out, nil
}
