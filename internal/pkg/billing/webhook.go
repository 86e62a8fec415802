package billing

import (
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ParseSignedEvent verifies the Stripe-Signature header against the raw
// request body and the shared signing secret, and returns the typed event.
// Verification runs before the event is parsed anywhere else; a failure here
// means the request is rejected without any audit write.
func ParseSignedEvent(payload []byte, signatureHeader, signingSecret string) (stripe.Event, error) {
	if strings.TrimSpace(signingSecret) == "" {
		return stripe.Event{}, errors.New("webhook signing secret is not configured")
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return stripe.Event{}, errors.New("missing Stripe-Signature header")
	}

	return webhook.ConstructEventWithOptions(payload, signatureHeader, signingSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
