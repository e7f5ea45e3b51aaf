package notification_handler

import (
	"go.uber.org/fx"

	"github.com/fatflowers/reconciler/internal/platform/processor"
)

var Module = fx.Options(
	fx.Provide(processor.NewVerifier),
	fx.Provide(NewNotificationHandler),
)
