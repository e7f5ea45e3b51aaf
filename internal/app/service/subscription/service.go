package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/reconciler/internal/models"
	"github.com/fatflowers/reconciler/pkg/tool"
	"github.com/fatflowers/reconciler/pkg/types"
)

// Service is the subscription activator. Every method that writes takes the
// caller's transaction handle; the notification handler owns the
// transaction boundary.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// FindActiveForUpdate loads the active subscription for (user, plan) inside
// tx holding a row lock. The lock makes the create-vs-renew decision safe
// under concurrent deliveries: the loser observes the winner's row and
// takes the renewal path. Returns (nil, nil) when none exists.
func (s *Service) FindActiveForUpdate(ctx context.Context, tx *gorm.DB, userID, planID string) (*models.Subscription, error) {
	q := tx
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var sub models.Subscription
	err := q.WithContext(ctx).
		Where("user_id = ? AND plan_id = ? AND status = ?", userID, planID, types.SubscriptionStatusActive).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active subscription: %w", err)
	}
	return &sub, nil
}

// Create opens a new ACTIVE subscription covering one plan period from now.
func (s *Service) Create(ctx context.Context, tx *gorm.DB, userID string, plan *types.Plan, processorTxnID string, now time.Time) (*models.Subscription, error) {
	sub := &models.Subscription{
		ID:                     tool.GenerateUUIDV7(),
		UserID:                 userID,
		PlanID:                 plan.ID,
		Status:                 types.SubscriptionStatusActive,
		CurrentPeriodStart:     now,
		CurrentPeriodEnd:       now.Add(planPeriod(plan)),
		ProcessorTransactionID: processorTxnID,
	}
	if err := tx.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return sub, nil
}

// Extend pushes the current period end out by one plan period. A lapsed
// subscription restarts from now rather than stacking onto the past.
func (s *Service) Extend(ctx context.Context, tx *gorm.DB, sub *models.Subscription, plan *types.Plan, processorTxnID string, now time.Time) error {
	base := sub.CurrentPeriodEnd
	if base.Before(now) {
		base = now
	}
	newEnd := base.Add(planPeriod(plan))

	cols := map[string]any{
		"current_period_end":       newEnd,
		"status":                   types.SubscriptionStatusActive,
		"processor_transaction_id": processorTxnID,
	}
	if err := tx.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(cols).Error; err != nil {
		return fmt.Errorf("failed to extend subscription %s: %w", sub.ID, err)
	}
	sub.CurrentPeriodEnd = newEnd
	sub.Status = types.SubscriptionStatusActive
	sub.ProcessorTransactionID = processorTxnID
	return nil
}

func planPeriod(plan *types.Plan) time.Duration {
	return time.Duration(plan.PeriodDays) * 24 * time.Hour
}
