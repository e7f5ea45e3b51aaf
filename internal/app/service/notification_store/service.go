package notification_store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/reconciler/internal/models"
	"github.com/fatflowers/reconciler/internal/platform/processor"
	"github.com/fatflowers/reconciler/pkg/logctx"
	"github.com/fatflowers/reconciler/pkg/tool"
	"github.com/fatflowers/reconciler/pkg/types"
)

// Service owns the raw_notification table: verbatim capture before any
// business interpretation, then monotonic status updates.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// Capture persists one inbound delivery verbatim and synchronously. A
// failure here must abort the whole pass: an unrecorded notification is
// never acted upon.
func (s *Service) Capture(ctx context.Context, payload processor.Payload, traceID string) (*models.RawNotification, error) {
	row := &models.RawNotification{
		ID:               tool.GenerateUUIDV7(),
		TraceID:          traceID,
		Payload:          datatypes.JSON(payload.JSON()),
		ReceivedAt:       time.Now(),
		ProcessingStatus: types.NotificationStatusReceived,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to capture notification: %w", err)
	}
	return row, nil
}

// StatusUpdate is one status move plus whatever correlation the pass has
// resolved so far. Nil fields are left untouched.
type StatusUpdate struct {
	Status                   types.NotificationStatus
	CorrelatedPaymentID      *string
	CorrelatedSubscriptionID *string
	Notes                    *string
}

// Update advances a raw notification's processing status. The payload
// column is never touched and the status only moves forward. When tx is
// non-nil the write joins the caller's transaction.
func (s *Service) Update(ctx context.Context, tx *gorm.DB, id string, upd StatusUpdate) error {
	db := tx
	if db == nil {
		db = s.db
	}
	var row models.RawNotification
	if err := db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return fmt.Errorf("failed to load notification %s: %w", id, err)
	}
	if !row.ProcessingStatus.CanTransitionTo(upd.Status) {
		return fmt.Errorf("notification %s: illegal status move %s -> %s", id, row.ProcessingStatus, upd.Status)
	}

	cols := map[string]any{"processing_status": upd.Status}
	if upd.CorrelatedPaymentID != nil {
		cols["correlated_payment_id"] = *upd.CorrelatedPaymentID
	}
	if upd.CorrelatedSubscriptionID != nil {
		cols["correlated_subscription_id"] = *upd.CorrelatedSubscriptionID
	}
	if upd.Notes != nil {
		cols["processing_notes"] = *upd.Notes
	}
	if err := db.WithContext(ctx).Model(&models.RawNotification{}).Where("id = ?", id).Updates(cols).Error; err != nil {
		return fmt.Errorf("failed to update notification %s: %w", id, err)
	}
	return nil
}

// TryUpdate is Update with the error swallowed into a log line, for
// best-effort bookkeeping outside a failed transaction.
func (s *Service) TryUpdate(ctx context.Context, id string, upd StatusUpdate) {
	if err := s.Update(ctx, nil, id, upd); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("notification_status_update_failed", "id", id, "status", upd.Status, "err", err)
	}
}
