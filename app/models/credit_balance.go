package models

import "time"

const (
	PlanFree    = "free"
	PlanUnknown = "unknown"
)

// CreditBalance holds the current credit total and plan for one user. The
// balance is only ever written together with a matching CreditTransaction
// row inside one database transaction; it is never recomputed independently.
type CreditBalance struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UserID             uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	Balance            int64     `gorm:"not null;default:0" json:"balance"`
	Plan               string    `gorm:"type:varchar(50);not null;default:'free'" json:"plan"`
	PlanCreditsMonthly int64     `gorm:"not null;default:0" json:"plan_credits_monthly"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
