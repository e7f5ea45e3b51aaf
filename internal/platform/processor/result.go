package processor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatflowers/reconciler/pkg/config"
)

// ResultCode parses the RC field. ok is false when the field is absent or
// not numeric; callers must treat that as a failed charge.
func ResultCode(p Payload) (int, bool) {
	raw := strings.TrimSpace(p.Get(FieldResponseCode))
	if raw == "" {
		return 0, false
	}
	code, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return code, true
}

// IsSuccess applies the configured success range to a parsed result code.
func IsSuccess(code int, cfg *config.ProcessorConfig) bool {
	return code >= cfg.SuccessCodeMin && code <= cfg.SuccessCodeMax
}

// FailureMessage derives a human-readable error for the payment row from
// the callback's result fields.
func FailureMessage(p Payload) string {
	code := p.Get(FieldResponseCode)
	if code == "" {
		code = "absent"
	}
	if ref := p.TransactionID(); ref != "" {
		return fmt.Sprintf("charge declined: rc=%s rrn=%s", code, ref)
	}
	return fmt.Sprintf("charge declined: rc=%s", code)
}
