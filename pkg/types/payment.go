package types

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Terminal reports whether no further automatic transition may happen.
// Redelivered notifications for a terminal payment are no-ops.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusFailed
}

type NotificationStatus string

const (
	NotificationStatusReceived           NotificationStatus = "received"
	NotificationStatusProcessing         NotificationStatus = "processing"
	NotificationStatusProcessed          NotificationStatus = "processed"
	NotificationStatusProcessedUnhandled NotificationStatus = "processed_unhandled"
	NotificationStatusError              NotificationStatus = "error"
	NotificationStatusSignatureFailed    NotificationStatus = "signature_failed"
	NotificationStatusSignatureMissing   NotificationStatus = "signature_missing"
)

// rank orders statuses so a raw notification only moves forward. All
// non-received states share one rank: once a pass reached a verdict it is
// never rewound to received/processing.
func (s NotificationStatus) rank() int {
	switch s {
	case NotificationStatusReceived:
		return 0
	case NotificationStatusProcessing:
		return 1
	default:
		return 2
	}
}

// CanTransitionTo reports whether moving from s to next keeps the
// notification lifecycle monotonic.
func (s NotificationStatus) CanTransitionTo(next NotificationStatus) bool {
	return next.rank() >= s.rank()
}
