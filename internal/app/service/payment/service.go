package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/reconciler/internal/models"
	"github.com/fatflowers/reconciler/pkg/types"
)

// ErrTerminalTransition means a caller tried to move a payment out of a
// terminal status. The ledger never allows that; redelivery must take the
// no-op path instead.
var ErrTerminalTransition = errors.New("payment already in terminal status")

// Service is the payment ledger: correlation lookups and the one-way status
// transition. All mutations run inside a caller-supplied transaction so the
// paired audit entry commits or rolls back with them.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// FindByMatchingKey resolves a payment by the echoed correlation token.
// Returns (nil, nil) when no row matches.
func (s *Service) FindByMatchingKey(ctx context.Context, key string) (*models.Payment, error) {
	if key == "" {
		return nil, nil
	}
	var p models.Payment
	err := s.db.WithContext(ctx).Where("matching_key = ?", key).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment by matching key: %w", err)
	}
	return &p, nil
}

// FindBySubscriptionAccount is the fallback correlation path for callbacks
// without an ORDER field: the recurring-account id recorded in the payment
// metadata at initiation time. The newest match wins.
func (s *Service) FindBySubscriptionAccount(ctx context.Context, account string) (*models.Payment, error) {
	if account == "" {
		return nil, nil
	}
	var p models.Payment
	err := s.db.WithContext(ctx).
		Where(datatypes.JSONQuery("metadata").Equals(account, models.MetadataKeySubscriptionAccount)).
		Order("created_at desc").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment by subscription account: %w", err)
	}
	return &p, nil
}

// LockByID re-reads a payment inside tx holding a row lock, so two
// concurrent deliveries cannot both pass the terminal check.
func (s *Service) LockByID(ctx context.Context, tx *gorm.DB, id string) (*models.Payment, error) {
	var p models.Payment
	if err := forUpdate(tx).WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, fmt.Errorf("failed to lock payment %s: %w", id, err)
	}
	return &p, nil
}

// TransitionOpts carries the notification-derived columns stamped together
// with a status move.
type TransitionOpts struct {
	ProcessorPaymentID *string
	ProcessorResponse  datatypes.JSON
	PaidAt             *time.Time
	ErrorMessage       *string
}

// Transition moves a payment to a new status inside tx. pending->succeeded
// and pending->failed are one-way; a terminal source status is rejected.
func (s *Service) Transition(ctx context.Context, tx *gorm.DB, p *models.Payment, status types.PaymentStatus, opts TransitionOpts) error {
	if p.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminalTransition, p.ID, p.Status)
	}

	cols := map[string]any{"status": status}
	if opts.ProcessorPaymentID != nil {
		cols["processor_payment_id"] = *opts.ProcessorPaymentID
	}
	if opts.ProcessorResponse != nil {
		cols["processor_response"] = opts.ProcessorResponse
	}
	if opts.PaidAt != nil {
		cols["paid_at"] = *opts.PaidAt
	}
	if opts.ErrorMessage != nil {
		cols["error_message"] = *opts.ErrorMessage
	}
	if err := tx.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", p.ID).Updates(cols).Error; err != nil {
		return fmt.Errorf("failed to transition payment %s to %s: %w", p.ID, status, err)
	}

	p.Status = status
	if opts.ProcessorPaymentID != nil {
		p.ProcessorPaymentID = opts.ProcessorPaymentID
	}
	if opts.ProcessorResponse != nil {
		p.ProcessorResponse = opts.ProcessorResponse
	}
	if opts.PaidAt != nil {
		p.PaidAt = opts.PaidAt
	}
	if opts.ErrorMessage != nil {
		p.ErrorMessage = opts.ErrorMessage
	}
	return nil
}

// forUpdate adds SELECT ... FOR UPDATE on engines that support row locks.
// The sqlite driver used in tests serializes writing transactions anyway.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
