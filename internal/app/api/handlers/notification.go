package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	nh "github.com/fatflowers/reconciler/internal/app/service/notification_handler"
	"github.com/fatflowers/reconciler/internal/platform/processor"
	"github.com/fatflowers/reconciler/pkg/config"
	"github.com/fatflowers/reconciler/pkg/logctx"
	"github.com/fatflowers/reconciler/pkg/metrics"
)

// ApiProcessorNotification handles the gateway's asynchronous payment
// callbacks. The response is always HTTP 200 with exactly one of the two
// configured acknowledgement tokens in the body; the gateway retries on the
// negative token. Nothing else ever leaks into the response.
func ApiProcessorNotification(h *nh.NotificationHandler, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logctx.FromGin(c, h.Logger)

		payload, err := parseNotificationBody(c)
		if err != nil || len(payload) == 0 {
			// no recoverable structure: reject without a correlation attempt
			log.Warnw("notification_body_unreadable", "err", err)
			c.String(http.StatusOK, cfg.Processor.AckNegative)
			return
		}

		log.Infow("notification_received", "correlation_ref", payload.CorrelationRef())

		out := h.Process(c.Request.Context(), payload, c.GetString("traceID"))
		if out.Err != nil {
			log.Errorw("notification_process_rejected",
				"notification_id", out.NotificationID,
				"status", out.Status,
				"err", out.Err,
			)
		}

		metrics.ObserveNotificationOutcome(string(out.Status))

		token := cfg.Processor.AckNegative
		if out.Ack {
			token = cfg.Processor.AckPositive
		}
		c.String(http.StatusOK, token)
	}
}

// parseNotificationBody accepts the gateway's form-encoded default and its
// JSON variant, preserving every field verbatim either way.
func parseNotificationBody(c *gin.Context) (processor.Payload, error) {
	ct := c.ContentType()
	if strings.Contains(ct, "json") {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read notification body: %w", err)
		}
		return processor.FromJSON(body)
	}
	if err := c.Request.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse notification form: %w", err)
	}
	return processor.FromForm(c.Request.Form), nil
}

func RegisterNotificationRoutes(r gin.IRouter, h *nh.NotificationHandler, cfg *config.Config) {
	r.POST("/notify", ApiProcessorNotification(h, cfg))
}
