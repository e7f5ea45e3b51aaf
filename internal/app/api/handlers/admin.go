package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fatflowers/reconciler/internal/app/service/audit"
	notificationstore "github.com/fatflowers/reconciler/internal/app/service/notification_store"
	paymentsvc "github.com/fatflowers/reconciler/internal/app/service/payment"
	"github.com/fatflowers/reconciler/internal/app/service/statistics"
	"github.com/fatflowers/reconciler/pkg/response"
)

// Admin read surface over the reconciliation tables: payments,
// captured notifications, the audit trail, and status statistics.

func ApiListPayments(payments *paymentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paymentsvc.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := payments.Scan(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func ApiListNotifications(store *notificationstore.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req notificationstore.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := store.Scan(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func ApiListAuditLog(auditSvc *audit.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req audit.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := auditSvc.Scan(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type statisticsRequest struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func ApiStatisticsOverview(stats *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statisticsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := stats.Overview(c.Request.Context(), req.From, req.To)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, payments *paymentsvc.Service, store *notificationstore.Service, auditSvc *audit.Service, stats *statistics.Service) {
	r.POST("/list_payments", ApiListPayments(payments))
	r.POST("/list_notifications", ApiListNotifications(store))
	r.POST("/list_audit_log", ApiListAuditLog(auditSvc))
	r.POST("/statistics", ApiStatisticsOverview(stats))
}
