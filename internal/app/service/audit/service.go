package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/reconciler/internal/models"
	"github.com/fatflowers/reconciler/pkg/tool"
	"github.com/fatflowers/reconciler/pkg/types"
)

// Service appends to the audit_log table. Entries that accompany a payment
// or subscription mutation must be written through the same transaction as
// that mutation; pass the tx handle for those.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

type Entry struct {
	Action     types.AuditAction
	Level      types.AuditLevel
	TargetType types.AuditTargetType
	TargetID   string
	UserID     *string
	// Details is serialized to jsonb; anything json.Marshal accepts.
	Details  any
	ParentID *string
}

// Record appends one entry. With a non-nil tx the write joins the caller's
// transaction and rolls back with it.
func (s *Service) Record(ctx context.Context, tx *gorm.DB, e Entry) (*models.AuditLogEntry, error) {
	db := tx
	if db == nil {
		db = s.db
	}
	var details datatypes.JSON
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize audit details: %w", err)
		}
		details = datatypes.JSON(b)
	}
	if e.Level == "" {
		e.Level = types.AuditLevelInfo
	}
	row := &models.AuditLogEntry{
		ID:               tool.GenerateUUIDV7(),
		UserID:           e.UserID,
		Action:           e.Action,
		Level:            e.Level,
		TargetType:       e.TargetType,
		TargetID:         e.TargetID,
		Details:          details,
		ParentAuditLogID: e.ParentID,
	}
	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to record audit entry %s: %w", e.Action, err)
	}
	return row, nil
}

type ScanRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanResponse struct {
	Items []*models.AuditLogEntry `json:"items"`
	Total int64                   `json:"total"`
}

// Scan lists audit entries for the admin API.
func (s *Service) Scan(ctx context.Context, req *ScanRequest) (*ScanResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.AuditLogEntry{})
	for _, f := range req.Filters {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{f}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count audit entries: %w", err)
	}

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if req.SortBy == "" {
		req.SortBy = "created_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}}})

	var rows []*models.AuditLogEntry
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return &ScanResponse{Items: rows, Total: total}, nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
