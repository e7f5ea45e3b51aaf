package notification_handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/reconciler/internal/app/service/audit"
	notificationstore "github.com/fatflowers/reconciler/internal/app/service/notification_store"
	paymentsvc "github.com/fatflowers/reconciler/internal/app/service/payment"
	subscriptionsvc "github.com/fatflowers/reconciler/internal/app/service/subscription"
	"github.com/fatflowers/reconciler/internal/models"
	"github.com/fatflowers/reconciler/internal/platform/processor"
	"github.com/fatflowers/reconciler/pkg/config"
	"github.com/fatflowers/reconciler/pkg/logctx"
	"github.com/fatflowers/reconciler/pkg/types"
)

// ErrPlanMissing means a succeeded payment carries no plan id in its
// metadata. That is an upstream configuration bug, not a gateway fault; the
// whole transaction rolls back so the payment stays pending.
var ErrPlanMissing = errors.New("plan id missing in payment metadata")

// ErrPlanUnknown means the plan id in the payment metadata is not in the
// configured catalog (or is inactive).
var ErrPlanUnknown = errors.New("plan not found in catalog")

// Outcome is the terminal result of one notification's processing pass.
// Ack decides which fixed acknowledgement token goes back to the gateway; a
// positive token is only ever sent for a durably committed outcome.
type Outcome struct {
	Ack            bool
	Status         types.NotificationStatus
	NotificationID string
	Err            error
}

// NotificationHandler is the coordinating state machine: capture, audit,
// correlate, verify, then one transaction applying the payment transition
// and subscription side effect.
type NotificationHandler struct {
	cfg      *config.Config
	db       *gorm.DB
	store    *notificationstore.Service
	payments *paymentsvc.Service
	subs     *subscriptionsvc.Service
	auditSvc *audit.Service
	verifier *processor.Verifier
	Logger   *zap.SugaredLogger
}

func NewNotificationHandler(
	cfg *config.Config,
	db *gorm.DB,
	store *notificationstore.Service,
	payments *paymentsvc.Service,
	subs *subscriptionsvc.Service,
	auditSvc *audit.Service,
	verifier *processor.Verifier,
	log *zap.SugaredLogger,
) *NotificationHandler {
	return &NotificationHandler{
		cfg:      cfg,
		db:       db,
		store:    store,
		payments: payments,
		subs:     subs,
		auditSvc: auditSvc,
		verifier: verifier,
		Logger:   log,
	}
}

// Process runs one notification pass end to end. It never panics outward
// and never returns a positive acknowledgement for an uncommitted outcome.
func (h *NotificationHandler) Process(ctx context.Context, payload processor.Payload, traceID string) Outcome {
	if h.cfg.Processor.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Processor.ProcessingTimeout)
		defer cancel()
	}
	log := logctx.FromCtx(ctx, h.Logger)

	// 1. Capture verbatim before anything else. No record, no processing.
	raw, err := h.store.Capture(ctx, payload, traceID)
	if err != nil {
		log.Errorw("notification_capture_failed", "err", err)
		return Outcome{Ack: false, Status: types.NotificationStatusError, Err: err}
	}

	// 2. The "received" entry anchors the pass; its id is the parent of
	// every audit entry that follows.
	received, err := h.auditSvc.Record(ctx, nil, audit.Entry{
		Action:     types.AuditActionNotificationReceived,
		Level:      types.AuditLevelInfo,
		TargetType: types.AuditTargetNotification,
		TargetID:   raw.ID,
		Details: map[string]any{
			"correlation_ref": payload.CorrelationRef(),
			"payload":         payload,
		},
	})
	if err != nil {
		log.Errorw("notification_received_audit_failed", "notification_id", raw.ID, "err", err)
		h.store.TryUpdate(ctx, raw.ID, notificationstore.StatusUpdate{
			Status: types.NotificationStatusError,
			Notes:  lo.ToPtr("failed to record receipt audit entry"),
		})
		return Outcome{Ack: false, Status: types.NotificationStatusError, NotificationID: raw.ID, Err: err}
	}
	parentID := &received.ID

	// 3. Correlate before verifying: the verifier needs the payment's
	// stored matching key, and the ordering keeps "unknown key" and "bad
	// signature" responses indistinguishable to the sender.
	pmt, err := h.correlate(ctx, payload)
	if err != nil {
		return h.fail(ctx, raw, parentID, types.NotificationStatusError, err,
			types.AuditActionNotificationError, types.AuditTargetNotification, raw.ID, nil, types.AuditLevelError)
	}
	if pmt == nil {
		notFoundErr := fmt.Errorf("payment record not found for correlation ref %q", payload.CorrelationRef())
		return h.fail(ctx, raw, parentID, types.NotificationStatusError, notFoundErr,
			types.AuditActionPaymentNotFound, types.AuditTargetNotification, raw.ID, nil, types.AuditLevelError)
	}

	// 4. Verify. The recipes digest over the payload's own correlation
	// token (ORDER, or SUBSC_ID when ORDER is absent), not the correlated
	// row's key. A forged notification must not flip payment state, not
	// even to failed, so both negative verdicts stop here.
	switch h.verifier.Verify(payload, payload.MatchingKey()) {
	case processor.VerifyMissing:
		return h.fail(ctx, raw, parentID, types.NotificationStatusSignatureMissing,
			errors.New("notification signature missing"),
			types.AuditActionSignatureMissing, types.AuditTargetPayment, pmt.ID, pmt, types.AuditLevelWarn)
	case processor.VerifyMismatch:
		return h.fail(ctx, raw, parentID, types.NotificationStatusSignatureFailed,
			errors.New("notification signature matched no recipe"),
			types.AuditActionSignatureRejected, types.AuditTargetPayment, pmt.ID, pmt, types.AuditLevelError)
	}

	// 5. Idempotency: redelivery for a terminal payment is a safe no-op.
	if pmt.Status.Terminal() {
		return h.replay(ctx, raw, parentID, pmt)
	}

	// 6. One transaction for payment + subscription + audit + raw status.
	var replayed bool
	var subID *string
	txErr := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := h.payments.LockByID(ctx, tx, pmt.ID)
		if err != nil {
			return err
		}
		if locked.Status.Terminal() {
			// concurrent delivery won the race; take the no-op path
			replayed = true
			pmt = locked
			return nil
		}

		code, codeOK := processor.ResultCode(payload)
		if codeOK && processor.IsSuccess(code, &h.cfg.Processor) {
			subID, err = h.applySuccess(ctx, tx, locked, payload, parentID)
		} else {
			err = h.applyFailure(ctx, tx, locked, payload, parentID)
		}
		if err != nil {
			return err
		}
		pmt = locked

		return h.store.Update(ctx, tx, raw.ID, notificationstore.StatusUpdate{
			Status:                   types.NotificationStatusProcessed,
			CorrelatedPaymentID:      &locked.ID,
			CorrelatedSubscriptionID: subID,
		})
	})
	if txErr != nil {
		// Bookkeeping happens outside the failed transaction, best effort.
		return h.fail(ctx, raw, parentID, types.NotificationStatusError, txErr,
			types.AuditActionPaymentProcessingError, types.AuditTargetPayment, pmt.ID, pmt, types.AuditLevelError)
	}
	if replayed {
		return h.replay(ctx, raw, parentID, pmt)
	}

	log.Infow("notification_processed",
		"notification_id", raw.ID,
		"payment_id", pmt.ID,
		"payment_status", pmt.Status,
		"subscription_id", lo.FromPtr(subID),
	)
	return Outcome{Ack: true, Status: types.NotificationStatusProcessed, NotificationID: raw.ID}
}

// correlate resolves the payment for a payload: matching key first, then
// the subscription-account fallback.
func (h *NotificationHandler) correlate(ctx context.Context, payload processor.Payload) (*models.Payment, error) {
	pmt, err := h.payments.FindByMatchingKey(ctx, payload.MatchingKey())
	if err != nil || pmt != nil {
		return pmt, err
	}
	return h.payments.FindBySubscriptionAccount(ctx, payload.SubscriptionAccount())
}

// applySuccess transitions the payment to succeeded and creates or renews
// the subscription named by the payment metadata. Runs inside tx.
func (h *NotificationHandler) applySuccess(ctx context.Context, tx *gorm.DB, pmt *models.Payment, payload processor.Payload, parentID *string) (*string, error) {
	now := time.Now()
	opts := paymentsvc.TransitionOpts{
		ProcessorResponse: datatypes.JSON(payload.JSON()),
		PaidAt:            &now,
	}
	if txnID := payload.TransactionID(); txnID != "" {
		opts.ProcessorPaymentID = &txnID
	}
	if err := h.payments.Transition(ctx, tx, pmt, types.PaymentStatusSucceeded, opts); err != nil {
		return nil, err
	}

	planID := pmt.MetadataString(models.MetadataKeyPlanID)
	if planID == "" {
		return nil, fmt.Errorf("%w: payment %s", ErrPlanMissing, pmt.ID)
	}
	plan := h.cfg.FindPlan(planID)
	if plan == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlanUnknown, planID)
	}

	sub, err := h.subs.FindActiveForUpdate(ctx, tx, pmt.UserID, planID)
	if err != nil {
		return nil, err
	}
	action := types.AuditActionSubscriptionCreated
	if sub != nil {
		action = types.AuditActionSubscriptionRenewed
		if err := h.subs.Extend(ctx, tx, sub, plan, payload.TransactionID(), now); err != nil {
			return nil, err
		}
	} else {
		sub, err = h.subs.Create(ctx, tx, pmt.UserID, plan, payload.TransactionID(), now)
		if err != nil {
			return nil, err
		}
	}
	if _, err := h.auditSvc.Record(ctx, tx, audit.Entry{
		Action:     action,
		Level:      types.AuditLevelInfo,
		TargetType: types.AuditTargetSubscription,
		TargetID:   sub.ID,
		UserID:     &pmt.UserID,
		Details: map[string]any{
			"plan_id":            planID,
			"current_period_end": sub.CurrentPeriodEnd,
			"payment_id":         pmt.ID,
		},
		ParentID: parentID,
	}); err != nil {
		return nil, err
	}

	if _, err := h.auditSvc.Record(ctx, tx, audit.Entry{
		Action:     types.AuditActionPaymentSucceeded,
		Level:      types.AuditLevelInfo,
		TargetType: types.AuditTargetPayment,
		TargetID:   pmt.ID,
		UserID:     &pmt.UserID,
		Details: map[string]any{
			"amount":               pmt.Amount,
			"currency":             pmt.Currency,
			"processor_payment_id": payload.TransactionID(),
		},
		ParentID: parentID,
	}); err != nil {
		return nil, err
	}
	return &sub.ID, nil
}

// applyFailure transitions the payment to failed with an error derived from
// the gateway's result fields. No subscription side effect. Runs inside tx.
func (h *NotificationHandler) applyFailure(ctx context.Context, tx *gorm.DB, pmt *models.Payment, payload processor.Payload, parentID *string) error {
	msg := processor.FailureMessage(payload)
	opts := paymentsvc.TransitionOpts{
		ProcessorResponse: datatypes.JSON(payload.JSON()),
		ErrorMessage:      &msg,
	}
	if txnID := payload.TransactionID(); txnID != "" {
		opts.ProcessorPaymentID = &txnID
	}
	if err := h.payments.Transition(ctx, tx, pmt, types.PaymentStatusFailed, opts); err != nil {
		return err
	}
	_, err := h.auditSvc.Record(ctx, tx, audit.Entry{
		Action:     types.AuditActionPaymentFailed,
		Level:      types.AuditLevelInfo,
		TargetType: types.AuditTargetPayment,
		TargetID:   pmt.ID,
		UserID:     &pmt.UserID,
		Details: map[string]any{
			"error":       msg,
			"result_code": payload.Get(processor.FieldResponseCode),
		},
		ParentID: parentID,
	})
	return err
}

// replay handles redelivery for an already-terminal payment: warning-level
// audit, processed_unhandled raw status, positive acknowledgement. This is
// a successful no-op, not an error.
func (h *NotificationHandler) replay(ctx context.Context, raw *models.RawNotification, parentID *string, pmt *models.Payment) Outcome {
	logctx.FromCtx(ctx, h.Logger).Warnw("notification_replayed",
		"notification_id", raw.ID,
		"payment_id", pmt.ID,
		"payment_status", pmt.Status,
	)
	if _, err := h.auditSvc.Record(ctx, nil, audit.Entry{
		Action:     types.AuditActionPaymentReplayed,
		Level:      types.AuditLevelWarn,
		TargetType: types.AuditTargetPayment,
		TargetID:   pmt.ID,
		UserID:     &pmt.UserID,
		Details:    map[string]any{"payment_status": pmt.Status, "notification_id": raw.ID},
		ParentID:   parentID,
	}); err != nil {
		logctx.FromCtx(ctx, h.Logger).Errorw("replay_audit_failed", "err", err)
	}
	h.store.TryUpdate(ctx, raw.ID, notificationstore.StatusUpdate{
		Status:              types.NotificationStatusProcessedUnhandled,
		CorrelatedPaymentID: &pmt.ID,
		Notes:               lo.ToPtr("payment already in terminal status, redelivery ignored"),
	})
	return Outcome{Ack: true, Status: types.NotificationStatusProcessedUnhandled, NotificationID: raw.ID}
}

// fail records a terminal negative outcome: audit entry (outside any failed
// transaction), raw status update, negative acknowledgement.
func (h *NotificationHandler) fail(
	ctx context.Context,
	raw *models.RawNotification,
	parentID *string,
	status types.NotificationStatus,
	cause error,
	action types.AuditAction,
	targetType types.AuditTargetType,
	targetID string,
	pmt *models.Payment,
	level types.AuditLevel,
) Outcome {
	logctx.FromCtx(ctx, h.Logger).Errorw("notification_rejected",
		"notification_id", raw.ID,
		"status", status,
		"action", action,
		"err", cause,
	)
	var userID *string
	if pmt != nil {
		userID = &pmt.UserID
	}
	if _, err := h.auditSvc.Record(ctx, nil, audit.Entry{
		Action:     action,
		Level:      level,
		TargetType: targetType,
		TargetID:   targetID,
		UserID:     userID,
		Details:    map[string]any{"error": cause.Error(), "notification_id": raw.ID},
		ParentID:   parentID,
	}); err != nil {
		logctx.FromCtx(ctx, h.Logger).Errorw("failure_audit_failed", "action", action, "err", err)
	}

	upd := notificationstore.StatusUpdate{Status: status, Notes: lo.ToPtr(cause.Error())}
	if pmt != nil {
		upd.CorrelatedPaymentID = &pmt.ID
	}
	h.store.TryUpdate(ctx, raw.ID, upd)

	return Outcome{Ack: false, Status: status, NotificationID: raw.ID, Err: cause}
}
