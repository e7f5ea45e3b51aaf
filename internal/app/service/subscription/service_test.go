package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fatflowers/reconciler/internal/models"
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
	require.NoError(t, db.AutoMigrate(&models.Subscription{}))
	return NewService(db, zap.NewNop().Sugar()), db
}

func monthlyPlan() *types.Plan {
	return &types.Plan{ID: "plan-x", Name: "Pro", Price: 999, Currency: "EUR", PeriodDays: 30, Active: true}
}

func TestCreateOpensOnePeriodFromNow(t *testing.T) {
	svc, db := newTestService(t)
	now := time.Now()

	sub, err := svc.Create(context.Background(), db, "user-1", monthlyPlan(), "RRN-1", now)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, now.Unix(), sub.CurrentPeriodStart.Unix())
	assert.Equal(t, now.Add(30*24*time.Hour).Unix(), sub.CurrentPeriodEnd.Unix())
	assert.Equal(t, "RRN-1", sub.ProcessorTransactionID)
	assert.True(t, sub.Valid())

	var got models.Subscription
	require.NoError(t, db.Where("id = ?", sub.ID).First(&got).Error)
	assert.Equal(t, "plan-x", got.PlanID)
}

func TestExtendStacksOntoCurrentPeriod(t *testing.T) {
	svc, db := newTestService(t)
	now := time.Now()
	sub, err := svc.Create(context.Background(), db, "user-1", monthlyPlan(), "RRN-1", now)
	require.NoError(t, err)
	firstEnd := sub.CurrentPeriodEnd

	// early renewal extends from the current end, no paid time is lost
	require.NoError(t, svc.Extend(context.Background(), db, sub, monthlyPlan(), "RRN-2", now.Add(24*time.Hour)))
	assert.Equal(t, firstEnd.Add(30*24*time.Hour).Unix(), sub.CurrentPeriodEnd.Unix())
	assert.Equal(t, "RRN-2", sub.ProcessorTransactionID)

	var got models.Subscription
	require.NoError(t, db.Where("id = ?", sub.ID).First(&got).Error)
	assert.Equal(t, sub.CurrentPeriodEnd.Unix(), got.CurrentPeriodEnd.Unix())
}

func TestExtendLapsedRestartsFromNow(t *testing.T) {
	svc, db := newTestService(t)
	past := time.Now().Add(-90 * 24 * time.Hour)
	sub, err := svc.Create(context.Background(), db, "user-1", monthlyPlan(), "RRN-1", past)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, svc.Extend(context.Background(), db, sub, monthlyPlan(), "RRN-2", now))
	assert.Equal(t, now.Add(30*24*time.Hour).Unix(), sub.CurrentPeriodEnd.Unix())
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
}

func TestFindActiveForUpdate(t *testing.T) {
	svc, db := newTestService(t)
	now := time.Now()
	created, err := svc.Create(context.Background(), db, "user-1", monthlyPlan(), "RRN-1", now)
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		got, err := svc.FindActiveForUpdate(context.Background(), tx, "user-1", "plan-x")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, created.ID, got.ID)

		got, err = svc.FindActiveForUpdate(context.Background(), tx, "user-2", "plan-x")
		require.NoError(t, err)
		assert.Nil(t, got)
		return nil
	})
	require.NoError(t, err)
}

func TestFindActiveForUpdateIgnoresNonActive(t *testing.T) {
	svc, db := newTestService(t)
	sub, err := svc.Create(context.Background(), db, "user-1", monthlyPlan(), "RRN-1", time.Now())
	require.NoError(t, err)
	require.NoError(t, db.Model(sub).Update("status", types.SubscriptionStatusCancelled).Error)

	err = db.Transaction(func(tx *gorm.DB) error {
		got, err := svc.FindActiveForUpdate(context.Background(), tx, "user-1", "plan-x")
		require.NoError(t, err)
		assert.Nil(t, got)
		return nil
	})
	require.NoError(t, err)
}
