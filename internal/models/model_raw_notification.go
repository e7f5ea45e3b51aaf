package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/reconciler/pkg/types"
)

// RawNotification is the verbatim capture of one inbound gateway callback.
// The payload is written once at receipt and never updated; only the
// processing status, correlation ids and notes move afterwards. Rows are
// never deleted, they are the forensic trail.
type RawNotification struct {
	ID      string         `gorm:"column:id;type:uuid;primary_key" json:"id"`
	TraceID string         `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	Payload datatypes.JSON `gorm:"column:payload;type:jsonb;not null" json:"payload"`

	ReceivedAt       time.Time                `gorm:"column:received_at;not null" json:"received_at"`
	ProcessingStatus types.NotificationStatus `gorm:"column:processing_status;type:varchar(64);not null;index" json:"processing_status"`

	CorrelatedPaymentID      *string `gorm:"column:correlated_payment_id;type:uuid;index" json:"correlated_payment_id"`
	CorrelatedSubscriptionID *string `gorm:"column:correlated_subscription_id;type:uuid" json:"correlated_subscription_id"`
	ProcessingNotes          *string `gorm:"column:processing_notes;type:text" json:"processing_notes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RawNotification) TableName() string { return "raw_notification" }
