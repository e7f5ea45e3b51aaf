package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/reconciler/pkg/types"
)

// Payment is the authoritative record of one attempted charge. Rows are
// created by the payment-initiation flow and mutated exclusively by the
// notification handler.
type Payment struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`

	// Amount in minor currency units.
	Amount   int64  `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency string `gorm:"column:currency;type:varchar(8);not null" json:"currency"`

	Status types.PaymentStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`

	ProcessorName string `gorm:"column:processor_name;type:varchar(64);not null" json:"processor_name"`
	// ProcessorPaymentID is assigned by the gateway, unknown until the
	// first notification arrives.
	ProcessorPaymentID *string `gorm:"column:processor_payment_id;type:varchar(128)" json:"processor_payment_id"`
	// ProcessorResponse keeps the last raw payload received for this
	// payment, for forensics.
	ProcessorResponse datatypes.JSON `gorm:"column:processor_response;type:jsonb" json:"processor_response"`

	// MatchingKey is the correlation token embedded in the outbound request
	// and echoed back by the gateway.
	MatchingKey string `gorm:"column:matching_key;type:varchar(128);not null;uniqueIndex" json:"matching_key"`
	// StoredSignature is the fallback-recipe digest computed when the
	// payment was initiated; kept as verification input and forensic
	// reference.
	StoredSignature string `gorm:"column:stored_signature;type:varchar(128)" json:"stored_signature"`

	Metadata datatypes.JSONMap `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`

	PaidAt       *time.Time `gorm:"column:paid_at;default:null" json:"paid_at"`
	ErrorMessage *string    `gorm:"column:error_message;type:text" json:"error_message"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Payment) TableName() string { return "payment" }

// MetadataString returns a string-typed metadata value, "" when absent.
func (p *Payment) MetadataString(key string) string {
	if p == nil || p.Metadata == nil {
		return ""
	}
	if v, ok := p.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// MetadataKeyPlanID names the plan the payment purchases, set at initiation.
const MetadataKeyPlanID = "plan_id"

// MetadataKeySubscriptionAccount is the gateway-side recurring account id
// used as the fallback correlation path when the matching key is absent.
const MetadataKeySubscriptionAccount = "subscription_account"
