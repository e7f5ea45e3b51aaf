package types

type AuditAction string

const (
	AuditActionNotificationReceived   AuditAction = "notification_received"
	AuditActionSignatureMissing       AuditAction = "signature_missing"
	AuditActionSignatureRejected      AuditAction = "signature_rejected"
	AuditActionPaymentNotFound        AuditAction = "payment_not_found"
	AuditActionPaymentSucceeded       AuditAction = "payment_succeeded"
	AuditActionPaymentFailed          AuditAction = "payment_failed"
	AuditActionPaymentReplayed        AuditAction = "payment_replayed"
	AuditActionSubscriptionCreated    AuditAction = "subscription_created"
	AuditActionSubscriptionRenewed    AuditAction = "subscription_renewed"
	AuditActionPaymentProcessingError AuditAction = "payment_processing_error"
	AuditActionNotificationError      AuditAction = "notification_error"
)

type AuditLevel string

const (
	AuditLevelInfo  AuditLevel = "info"
	AuditLevelWarn  AuditLevel = "warn"
	AuditLevelError AuditLevel = "error"
)

type AuditTargetType string

const (
	AuditTargetNotification AuditTargetType = "raw_notification"
	AuditTargetPayment      AuditTargetType = "payment"
	AuditTargetSubscription AuditTargetType = "subscription"
)
