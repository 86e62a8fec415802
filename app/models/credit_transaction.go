package models

import "time"

// CreditTransaction is one append-only ledger row. BalanceAfter records the
// balance the paired CreditBalance write produced, and SourcePaymentID ties
// the grant back to the provider payment object (checkout session or
// invoice) for duplicate detection.
type CreditTransaction struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UUID            string    `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	UserID          uint      `gorm:"not null;index;index:idx_credit_transactions_user_source,priority:1" json:"user_id"`
	Amount          int64     `gorm:"not null" json:"amount"`
	Description     string    `gorm:"type:varchar(255);not null;default:''" json:"description"`
	BalanceAfter    int64     `gorm:"not null" json:"balance_after"`
	SourcePaymentID string    `gorm:"type:varchar(191);not null;default:'';index:idx_credit_transactions_user_source,priority:2" json:"source_payment_id"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
