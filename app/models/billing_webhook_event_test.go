package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBillingWebhookEventProcessed(t *testing.T) {
	var ev BillingWebhookEvent
	assert.False(t, ev.Processed())

	now := time.Now()
	ev.ProcessedAt = &now
	assert.True(t, ev.Processed())

	ev.ProcessingError = "provider unavailable"
	assert.False(t, ev.Processed(), "a stored error means the attempt failed")
}

func TestHashAPIKey(t *testing.T) {
	a := HashAPIKey("key-one")
	b := HashAPIKey("key-one")
	c := HashAPIKey("key-two")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
