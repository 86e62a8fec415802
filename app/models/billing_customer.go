package models

import "time"

// Billing provider constants used across billing-related models.
const (
	BillingProviderStripe = "stripe"
)

// BillingCustomer mirrors a payment-provider customer and its linkage to a
// local user. Credits observed before the customer is linked accumulate on
// the pending fields and wait for account linkage.
type BillingCustomer struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Provider           string    `gorm:"type:varchar(20);not null;index:ux_billing_customers_provider_customer,unique,priority:1" json:"provider"`
	ProviderCustomerID string    `gorm:"type:varchar(191);not null;index:ux_billing_customers_provider_customer,unique,priority:2" json:"provider_customer_id"`
	Email              string    `gorm:"type:varchar(200);default:''" json:"email"`
	Name               string    `gorm:"type:varchar(150);default:''" json:"name"`
	UserID             *uint     `gorm:"index" json:"user_id,omitempty"`
	PendingCredits     int64     `gorm:"not null;default:0" json:"pending_credits"`
	PendingPlan        string    `gorm:"type:varchar(50);default:''" json:"pending_plan"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
