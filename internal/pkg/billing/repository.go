package billing

import (
	"context"
	"errors"
	"time"

	"github.com/CreditFox/CreditFox/app/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	GetCustomerByProviderID(provider, providerCustomerID string) (*models.BillingCustomer, error)
	GetOrCreateCustomer(provider, providerCustomerID, email, name string) (*models.BillingCustomer, error)
	AddPendingCredits(customerID uint, credits int64, plan string) error

	CreditUser(ctx context.Context, userID uint, amount int64, description, sourcePaymentID string) (int64, bool, error)
	SetPlan(userID uint, plan string, monthlyCredits int64) error
	GetBalance(userID uint) (*models.CreditBalance, error)
	ListTransactions(userID uint, limit int) ([]models.CreditTransaction, error)

	UpsertSubscription(sub *models.BillingSubscription) error
	GetSubscriptionByProviderID(provider, providerSubscriptionID string) (*models.BillingSubscription, error)
	UpdateSubscriptionByProviderID(provider, providerSubscriptionID string, up SubscriptionUpdate) error

	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetCustomerByProviderID(provider, providerCustomerID string) (*models.BillingCustomer, error) {
	var c models.BillingCustomer
	err := r.db.Where("provider = ? AND provider_customer_id = ?", provider, providerCustomerID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetOrCreateCustomer resolves a provider customer, creating the row on
// first sight. Email and name are attached on creation only and never
// overwritten by later events.
func (r *gormRepository) GetOrCreateCustomer(provider, providerCustomerID, email, name string) (*models.BillingCustomer, error) {
	var c models.BillingCustomer
	err := r.db.
		Where(models.BillingCustomer{Provider: provider, ProviderCustomerID: providerCustomerID}).
		Attrs(models.BillingCustomer{Email: email, Name: name}).
		FirstOrCreate(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) AddPendingCredits(customerID uint, credits int64, plan string) error {
	updates := map[string]interface{}{
		"pending_credits": gorm.Expr("pending_credits + ?", credits),
	}
	if plan != "" {
		updates["pending_plan"] = plan
	}
	return r.db.Model(&models.BillingCustomer{}).Where("id = ?", customerID).Updates(updates).Error
}

// CreditUser adds credits to a user's balance and appends the matching
// ledger row in one transaction. The balance row is locked for the duration,
// so concurrent grants to the same user serialize instead of racing the
// read-modify-write. A sourcePaymentID already present on a ledger row for
// that user makes the call a duplicate no-op; the bool result reports
// whether a grant was written.
func (r *gormRepository) CreditUser(ctx context.Context, userID uint, amount int64, description, sourcePaymentID string) (int64, bool, error) {
	var newBalance int64
	granted := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bal models.CreditBalance
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).First(&bal).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			bal = models.CreditBalance{UserID: userID, Plan: models.PlanFree}
			if err := tx.Create(&bal).Error; err != nil {
				return err
			}
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("user_id = ?", userID).First(&bal).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		// Duplicate detection happens under the balance row lock, as a
		// locking read. A concurrent grant for the same payment blocks on
		// the lock above and then sees the committed ledger row here; a
		// snapshot read taken before the lock would not.
		if sourcePaymentID != "" {
			var count int64
			if err := tx.Model(&models.CreditTransaction{}).
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("user_id = ? AND source_payment_id = ?", userID, sourcePaymentID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				newBalance = bal.Balance
				return nil
			}
		}

		bal.Balance += amount
		if err := tx.Model(&models.CreditBalance{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{"balance": bal.Balance, "updated_at": time.Now()}).Error; err != nil {
			return err
		}

		txn := models.CreditTransaction{
			UUID:            uuid.New().String(),
			UserID:          userID,
			Amount:          amount,
			Description:     description,
			BalanceAfter:    bal.Balance,
			SourcePaymentID: sourcePaymentID,
		}
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}

		newBalance = bal.Balance
		granted = true
		return nil
	})

	return newBalance, granted, err
}

// SetPlan overwrites the plan fields independent of the balance.
func (r *gormRepository) SetPlan(userID uint, plan string, monthlyCredits int64) error {
	var bal models.CreditBalance
	if err := r.db.
		Where(models.CreditBalance{UserID: userID}).
		FirstOrCreate(&bal).Error; err != nil {
		return err
	}
	return r.db.Model(&models.CreditBalance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"plan": plan, "plan_credits_monthly": monthlyCredits}).Error
}

func (r *gormRepository) GetBalance(userID uint) (*models.CreditBalance, error) {
	var bal models.CreditBalance
	err := r.db.Where("user_id = ?", userID).First(&bal).Error
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

func (r *gormRepository) ListTransactions(userID uint, limit int) ([]models.CreditTransaction, error) {
	var txns []models.CreditTransaction
	err := r.db.Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (r *gormRepository) UpsertSubscription(sub *models.BillingSubscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"customer_id",
			"user_id",
			"provider_price_ref",
			"plan",
			"status",
			"credits_monthly",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("provider = ? AND provider_subscription_id = ?", sub.Provider, sub.ProviderSubscriptionID).
		First(sub).Error
}

func (r *gormRepository) GetSubscriptionByProviderID(provider, providerSubscriptionID string) (*models.BillingSubscription, error) {
	var sub models.BillingSubscription
	err := r.db.Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) UpdateSubscriptionByProviderID(provider, providerSubscriptionID string, up SubscriptionUpdate) error {
	updates := map[string]interface{}{
		"status":               up.Status,
		"plan":                 up.Plan,
		"credits_monthly":      up.CreditsMonthly,
		"cancel_at_period_end": up.CancelAtPeriodEnd,
	}
	if up.CurrentPeriodEnd != nil {
		updates["current_period_end"] = up.CurrentPeriodEnd
	}
	return r.db.Model(&models.BillingSubscription{}).
		Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).
		Updates(updates).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
