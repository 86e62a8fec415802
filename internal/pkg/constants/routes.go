package constants

// Static route constants
const (
	StripeWebhookRoute = "/webhooks/stripe"

	APIRoute           = "/api"
	APIv1Route         = "/v1"
	CreditsRoute       = "/credits"
	TransactionsRoute  = "/credits/transactions"
	AdminMetricsRoute  = "/admin/metrics/webhooks"
)
