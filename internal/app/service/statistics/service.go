package statistics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/reconciler/internal/models"
)

// Service answers the admin dashboard's reconciliation questions: how many
// payments and notifications ended up in each state over a window.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

type Overview struct {
	From                  time.Time        `json:"from"`
	To                    time.Time        `json:"to"`
	PaymentsByStatus      map[string]int64 `json:"payments_by_status"`
	NotificationsByStatus map[string]int64 `json:"notifications_by_status"`
}

type statusCount struct {
	Status string
	Count  int64
}

// Overview aggregates status counts in [from, to). A zero window defaults
// to the last 24 hours.
func (s *Service) Overview(ctx context.Context, from, to time.Time) (*Overview, error) {
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("invalid window: from %s is not before to %s", from, to)
	}

	payments, err := s.countByStatus(ctx, &models.Payment{}, "status", "created_at", from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}
	notifications, err := s.countByStatus(ctx, &models.RawNotification{}, "processing_status", "received_at", from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	return &Overview{
		From:                  from,
		To:                    to,
		PaymentsByStatus:      payments,
		NotificationsByStatus: notifications,
	}, nil
}

func (s *Service) countByStatus(ctx context.Context, model any, statusCol, timeCol string, from, to time.Time) (map[string]int64, error) {
	var rows []statusCount
	err := s.db.WithContext(ctx).
		Model(model).
		Select(fmt.Sprintf("%s as status, count(*) as count", statusCol)).
		Where(fmt.Sprintf("%s >= ? AND %s < ?", timeCol, timeCol), from, to).
		Group(statusCol).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
