package billing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/CreditFox/CreditFox/internal/pkg/env"
)

type ProductKind string

const (
	ProductKindSubscription ProductKind = "subscription"
	ProductKindCredits      ProductKind = "credits"
)

// ProductEntry maps one provider price ID to the credits and plan it grants.
type ProductEntry struct {
	Credits int64       `json:"credits"`
	Plan    string      `json:"plan,omitempty"`
	Kind    ProductKind `json:"kind"`
}

// Catalog is the static product catalog. It is built once at startup and
// never mutated afterwards; unknown price IDs are a recognized miss, not an
// error.
type Catalog struct {
	entries map[string]ProductEntry
}

// defaultCatalog covers the stock price points; CREDIT_CATALOG_JSON replaces
// it in deployments with real price IDs.
var defaultCatalog = map[string]ProductEntry{
	"price_starter_monthly": {Credits: 100, Plan: "starter", Kind: ProductKindSubscription},
	"price_pro_monthly":     {Credits: 500, Plan: "pro", Kind: ProductKindSubscription},
	"price_credits_100":     {Credits: 100, Kind: ProductKindCredits},
	"price_credits_500":     {Credits: 500, Kind: ProductKindCredits},
}

var catalog *Catalog

// SetupCatalog loads the catalog from CREDIT_CATALOG_JSON, falling back to
// the compiled defaults. Called once from the application bootstrap.
func SetupCatalog() error {
	raw := strings.TrimSpace(env.GetEnv("CREDIT_CATALOG_JSON", ""))
	if raw == "" {
		catalog = NewCatalog(defaultCatalog)
		return nil
	}
	c, err := ParseCatalogJSON([]byte(raw))
	if err != nil {
		return fmt.Errorf("load CREDIT_CATALOG_JSON: %w", err)
	}
	catalog = c
	return nil
}

// GetCatalog returns the process-wide catalog.
func GetCatalog() *Catalog {
	if catalog == nil {
		catalog = NewCatalog(defaultCatalog)
	}
	return catalog
}

// NewCatalog copies the given entries into an immutable catalog.
func NewCatalog(entries map[string]ProductEntry) *Catalog {
	copied := make(map[string]ProductEntry, len(entries))
	for id, e := range entries {
		copied[id] = e
	}
	return &Catalog{entries: copied}
}

// ParseCatalogJSON decodes a catalog keyed by provider price ID and rejects
// entries that could corrupt the ledger (negative credits, unknown kinds).
func ParseCatalogJSON(data []byte) (*Catalog, error) {
	var entries map[string]ProductEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	for id, e := range entries {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("catalog entry with empty price id")
		}
		if e.Credits < 0 {
			return nil, fmt.Errorf("catalog entry %s: negative credits", id)
		}
		switch e.Kind {
		case ProductKindSubscription, ProductKindCredits:
		default:
			return nil, fmt.Errorf("catalog entry %s: unknown kind %q", id, e.Kind)
		}
	}
	return NewCatalog(entries), nil
}

// Lookup resolves a provider price ID. A miss means the product is not
// modeled; callers skip the item and continue.
func (c *Catalog) Lookup(priceID string) (ProductEntry, bool) {
	e, ok := c.entries[strings.TrimSpace(priceID)]
	return e, ok
}

// Len reports the number of configured entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}
