package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fatflowers/reconciler/internal/app/service/audit"
	nh "github.com/fatflowers/reconciler/internal/app/service/notification_handler"
	notificationstore "github.com/fatflowers/reconciler/internal/app/service/notification_store"
	paymentsvc "github.com/fatflowers/reconciler/internal/app/service/payment"
	subscriptionsvc "github.com/fatflowers/reconciler/internal/app/service/subscription"
	"github.com/fatflowers/reconciler/internal/models"
	"github.com/fatflowers/reconciler/internal/platform/processor"
	"github.com/fatflowers/reconciler/pkg/config"
	"github.com/fatflowers/reconciler/pkg/tool"
	"github.com/fatflowers/reconciler/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB, *config.Config) {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.RawNotification{},
		&models.Payment{},
		&models.Subscription{},
		&models.AuditLogEntry{},
	))

	cfg := &config.Config{
		Processor: config.ProcessorConfig{
			Name:              "ecomm",
			MerchantCode:      "MER-001",
			Secret:            "s3cret",
			NotificationURL:   "https://merchant.example/api/v1/payment/notify",
			ConfiguredAmount:  "999",
			AckPositive:       "OK",
			AckNegative:       "ERR",
			ProcessingTimeout: 5 * time.Second,
		},
		Plans: []*types.Plan{
			{ID: "plan-x", Name: "Pro", Price: 999, Currency: "EUR", PeriodDays: 30, Active: true},
		},
	}

	log := zap.NewNop().Sugar()
	handler := nh.NewNotificationHandler(
		cfg,
		db,
		notificationstore.NewService(db, log),
		paymentsvc.NewService(db, log),
		subscriptionsvc.NewService(db, log),
		audit.NewService(db, log),
		processor.NewVerifier(cfg, log),
		log,
	)

	r := gin.New()
	RegisterNotificationRoutes(r, handler, cfg)
	return r, db, cfg
}

func seedPendingPayment(t *testing.T, db *gorm.DB, cfg *config.Config, matchingKey string) *models.Payment {
	t.Helper()
	p := &models.Payment{
		ID:              tool.GenerateUUIDV7(),
		UserID:          "user-1",
		Amount:          999,
		Currency:        "EUR",
		Status:          types.PaymentStatusPending,
		ProcessorName:   cfg.Processor.Name,
		MatchingKey:     matchingKey,
		StoredSignature: processor.StoredSignature(matchingKey, &cfg.Processor),
		Metadata:        datatypes.JSONMap{models.MetadataKeyPlanID: "plan-x"},
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func postForm(r *gin.Engine, form url.Values) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)
	return w
}

func TestNotifyFormSuccessAcksPositive(t *testing.T) {
	r, db, cfg := newTestRouter(t)
	pmt := seedPendingPayment(t, db, cfg, "MK1")

	form := url.Values{}
	form.Set(processor.FieldOrder, "MK1")
	form.Set(processor.FieldResponseCode, "0")
	form.Set(processor.FieldTransactionID, "RRN-1")
	form.Set(processor.FieldSignature, processor.StoredSignature("MK1", &cfg.Processor))

	w := postForm(r, form)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	var got models.Payment
	require.NoError(t, db.Where("id = ?", pmt.ID).First(&got).Error)
	assert.Equal(t, types.PaymentStatusSucceeded, got.Status)
}

func TestNotifyJSONBodyAccepted(t *testing.T) {
	r, db, cfg := newTestRouter(t)
	seedPendingPayment(t, db, cfg, "MK1")

	body := `{"ORDER":"MK1","RC":0,"RRN":"RRN-1","P_SIGN":"` +
		processor.StoredSignature("MK1", &cfg.Processor) + `"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestNotifyBadSignatureAcksNegative(t *testing.T) {
	r, db, cfg := newTestRouter(t)
	pmt := seedPendingPayment(t, db, cfg, "MK1")

	form := url.Values{}
	form.Set(processor.FieldOrder, "MK1")
	form.Set(processor.FieldResponseCode, "0")
	form.Set(processor.FieldSignature, "deadbeef")

	w := postForm(r, form)
	assert.Equal(t, http.StatusOK, w.Code, "gateway protocol never sees a non-200")
	assert.Equal(t, "ERR", w.Body.String())

	var got models.Payment
	require.NoError(t, db.Where("id = ?", pmt.ID).First(&got).Error)
	assert.Equal(t, types.PaymentStatusPending, got.Status)
}

func TestNotifyEmptyBodyAcksNegative(t *testing.T) {
	r, db, _ := newTestRouter(t)

	w := postForm(r, url.Values{})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ERR", w.Body.String())

	// nothing to act on, nothing captured
	var count int64
	require.NoError(t, db.Model(&models.RawNotification{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestNotifyMalformedJSONAcksNegative(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(`[1,2,3]`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ERR", w.Body.String())
}

func TestNotifyReplayStaysPositive(t *testing.T) {
	r, db, cfg := newTestRouter(t)
	seedPendingPayment(t, db, cfg, "MK1")

	form := url.Values{}
	form.Set(processor.FieldOrder, "MK1")
	form.Set(processor.FieldResponseCode, "0")
	form.Set(processor.FieldSignature, processor.StoredSignature("MK1", &cfg.Processor))

	assert.Equal(t, "OK", postForm(r, form).Body.String())
	assert.Equal(t, "OK", postForm(r, form).Body.String(), "redelivery must still stop retries")

	var subCount int64
	require.NoError(t, db.Model(&models.Subscription{}).Count(&subCount).Error)
	assert.EqualValues(t, 1, subCount)
}
