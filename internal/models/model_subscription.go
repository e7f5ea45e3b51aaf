package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/reconciler/pkg/types"
)

// Subscription is a recurring-access grant tied to a user and a plan.
// Created only after a correlated payment succeeds; later successful
// payments for the same (user, plan) extend the period instead of creating
// a duplicate row.
type Subscription struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string `gorm:"column:user_id;type:varchar(64);not null;index:idx_sub_user_plan,priority:1" json:"user_id"`
	PlanID string `gorm:"column:plan_id;type:varchar(64);not null;index:idx_sub_user_plan,priority:2" json:"plan_id"`

	Status types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`

	CurrentPeriodStart time.Time `gorm:"column:current_period_start;not null" json:"current_period_start"`
	CurrentPeriodEnd   time.Time `gorm:"column:current_period_end;not null" json:"current_period_end"`

	// ProcessorTransactionID is the gateway transaction that created or
	// last renewed the subscription.
	ProcessorTransactionID string `gorm:"column:processor_transaction_id;type:varchar(128)" json:"processor_transaction_id"`

	Metadata datatypes.JSONMap `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Subscription) TableName() string { return "subscription" }

func (s *Subscription) Valid() bool {
	return s != nil &&
		s.Status == types.SubscriptionStatusActive &&
		s.CurrentPeriodEnd.After(time.Now())
}
