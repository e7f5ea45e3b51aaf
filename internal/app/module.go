package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/reconciler/internal/app/api/server"
	"github.com/fatflowers/reconciler/internal/app/service/audit"
	notificationhandler "github.com/fatflowers/reconciler/internal/app/service/notification_handler"
	notificationstore "github.com/fatflowers/reconciler/internal/app/service/notification_store"
	"github.com/fatflowers/reconciler/internal/app/service/payment"
	"github.com/fatflowers/reconciler/internal/app/service/statistics"
	"github.com/fatflowers/reconciler/internal/app/service/subscription"
	"github.com/fatflowers/reconciler/internal/platform/db"
	"github.com/fatflowers/reconciler/pkg/config"
	"github.com/fatflowers/reconciler/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	server.Module,
	notificationstore.Module,
	audit.Module,
	payment.Module,
	subscription.Module,
	statistics.Module,
	notificationhandler.Module,
)
