package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fatflowers/reconciler/internal/models"
	"github.com/fatflowers/reconciler/pkg/tool"
	"github.com/fatflowers/reconciler/pkg/types"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Payment{}))
	return NewService(db, zap.NewNop().Sugar()), db
}

func seed(t *testing.T, db *gorm.DB, matchingKey string, metadata datatypes.JSONMap) *models.Payment {
	t.Helper()
	p := &models.Payment{
		ID:            tool.GenerateUUIDV7(),
		UserID:        "user-1",
		Amount:        999,
		Currency:      "EUR",
		Status:        types.PaymentStatusPending,
		ProcessorName: "ecomm",
		MatchingKey:   matchingKey,
		Metadata:      metadata,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestFindByMatchingKey(t *testing.T) {
	svc, db := newTestService(t)
	seeded := seed(t, db, "MK1", nil)

	got, err := svc.FindByMatchingKey(context.Background(), "MK1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, seeded.ID, got.ID)

	got, err = svc.FindByMatchingKey(context.Background(), "MK-NONE")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = svc.FindByMatchingKey(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindBySubscriptionAccountPicksNewest(t *testing.T) {
	svc, db := newTestService(t)
	meta := datatypes.JSONMap{models.MetadataKeySubscriptionAccount: "SUB-9"}

	older := seed(t, db, "MK1", meta)
	require.NoError(t, db.Model(older).Update("created_at", time.Now().Add(-time.Hour)).Error)
	newer := seed(t, db, "MK2", meta)

	got, err := svc.FindBySubscriptionAccount(context.Background(), "SUB-9")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, got.ID)

	got, err = svc.FindBySubscriptionAccount(context.Background(), "SUB-NONE")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = svc.FindBySubscriptionAccount(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTransitionStampsColumns(t *testing.T) {
	svc, db := newTestService(t)
	p := seed(t, db, "MK1", nil)

	now := time.Now()
	err := svc.Transition(context.Background(), db, p, types.PaymentStatusSucceeded, TransitionOpts{
		ProcessorPaymentID: lo.ToPtr("RRN-1"),
		ProcessorResponse:  datatypes.JSON(`{"RC":"0"}`),
		PaidAt:             &now,
	})
	require.NoError(t, err)

	// in-memory struct is updated alongside the row
	assert.Equal(t, types.PaymentStatusSucceeded, p.Status)
	require.NotNil(t, p.PaidAt)

	var got models.Payment
	require.NoError(t, db.Where("id = ?", p.ID).First(&got).Error)
	assert.Equal(t, types.PaymentStatusSucceeded, got.Status)
	require.NotNil(t, got.ProcessorPaymentID)
	assert.Equal(t, "RRN-1", *got.ProcessorPaymentID)
	assert.JSONEq(t, `{"RC":"0"}`, string(got.ProcessorResponse))
	require.NotNil(t, got.PaidAt)
}

func TestTransitionOutOfTerminalIsRejected(t *testing.T) {
	svc, db := newTestService(t)
	p := seed(t, db, "MK1", nil)
	require.NoError(t, svc.Transition(context.Background(), db, p, types.PaymentStatusFailed, TransitionOpts{
		ErrorMessage: lo.ToPtr("charge declined: rc=6"),
	}))

	err := svc.Transition(context.Background(), db, p, types.PaymentStatusSucceeded, TransitionOpts{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTerminalTransition))

	var got models.Payment
	require.NoError(t, db.Where("id = ?", p.ID).First(&got).Error)
	assert.Equal(t, types.PaymentStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
}

func TestLockByID(t *testing.T) {
	svc, db := newTestService(t)
	p := seed(t, db, "MK1", nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		locked, err := svc.LockByID(context.Background(), tx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, locked.ID)
		return nil
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.LockByID(context.Background(), tx, "no-such-id")
		return err
	})
	require.Error(t, err)
}
