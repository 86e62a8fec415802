package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/CreditFox/CreditFox/internal/pkg/env"
	"github.com/redis/go-redis/v9"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// SetupCache initializes the connection to the Redis cache server
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	// Test the connection
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to Redis cache: %v", err)
	} else {
		log.Printf("Successfully connected to Redis cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Set stores a value in the cache with the given key and expiration time
func Set(key string, value interface{}, expiration time.Duration) error {
	return GetClient().Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key
func Get(key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// Delete removes a value from the cache by key
func Delete(key string) error {
	return GetClient().Del(ctx, key).Err()
}

const webhookSeenTTL = 24 * time.Hour

// MarkWebhookSeen records a processed webhook event id. The database unique
// index stays the source of truth; this marker only short-circuits obvious
// redeliveries.
func MarkWebhookSeen(provider, eventID string) error {
	return Set(webhookSeenKey(provider, eventID), 1, webhookSeenTTL)
}

// WasWebhookSeen reports whether a webhook event id was recently processed.
// Cache errors count as a miss.
func WasWebhookSeen(provider, eventID string) bool {
	_, err := Get(webhookSeenKey(provider, eventID))
	return err == nil
}

func webhookSeenKey(provider, eventID string) string {
	return fmt.Sprintf("webhook:seen:%s:%s", provider, eventID)
}
