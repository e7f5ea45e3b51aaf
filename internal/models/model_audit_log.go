package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/reconciler/pkg/types"
)

// AuditLogEntry is one row of the append-only domain event trail. Entries
// spawned while processing a notification carry the id of that pass's
// "notification received" entry in ParentAuditLogID so the full causal
// chain can be reconstructed from the table alone.
type AuditLogEntry struct {
	ID     string  `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID *string `gorm:"column:user_id;type:varchar(64);index" json:"user_id"`

	Action types.AuditAction `gorm:"column:action;type:varchar(64);not null;index" json:"action"`
	Level  types.AuditLevel  `gorm:"column:level;type:varchar(16);not null" json:"level"`

	TargetType types.AuditTargetType `gorm:"column:target_type;type:varchar(64);not null" json:"target_type"`
	TargetID   string                `gorm:"column:target_id;type:varchar(128);not null;index" json:"target_id"`

	Details datatypes.JSON `gorm:"column:details;type:jsonb" json:"details"`

	ParentAuditLogID *string `gorm:"column:parent_audit_log_id;type:uuid;index" json:"parent_audit_log_id"`

	CreatedAt time.Time `json:"created_at"`
}

func (AuditLogEntry) TableName() string { return "audit_log" }
