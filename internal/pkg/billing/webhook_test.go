package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

func signStripePayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestParseSignedEvent(t *testing.T) {
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)
	secret := "whsec_test"

	event, err := ParseSignedEvent(payload, signStripePayload(payload, secret, time.Now()), secret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.ID != "evt_123" {
		t.Fatalf("event id = %q, want evt_123", event.ID)
	}
	if string(event.Type) != "checkout.session.completed" {
		t.Fatalf("event type = %q", event.Type)
	}
}

func TestParseSignedEventRejectsBadSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{}}}`)

	if _, err := ParseSignedEvent(payload, signStripePayload(payload, "whsec_other", time.Now()), "whsec_test"); err == nil {
		t.Fatalf("expected signature mismatch to fail")
	}
}

func TestParseSignedEventRejectsTamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{}}}`)
	secret := "whsec_test"
	header := signStripePayload(payload, secret, time.Now())

	tampered := []byte(`{"id":"evt_999","type":"checkout.session.completed","data":{"object":{}}}`)
	if _, err := ParseSignedEvent(tampered, header, secret); err == nil {
		t.Fatalf("expected tampered payload to fail")
	}
}

func TestParseSignedEventRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{}}}`)
	secret := "whsec_test"

	if _, err := ParseSignedEvent(payload, signStripePayload(payload, secret, time.Now().Add(-time.Hour)), secret); err == nil {
		t.Fatalf("expected stale timestamp to fail")
	}
}

func TestParseSignedEventRequiresConfiguration(t *testing.T) {
	payload := []byte(`{}`)

	if _, err := ParseSignedEvent(payload, "t=1,v1=abc", ""); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
	if _, err := ParseSignedEvent(payload, "", "whsec_test"); err == nil {
		t.Fatalf("expected missing header to fail")
	}
}
