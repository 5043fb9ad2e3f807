package admin

import (
	"errors"

	"github.com/evdist-next/internal/http/handlers/shared"
	"github.com/evdist-next/internal/http/response"
	"github.com/evdist-next/internal/service"

	"github.com/gin-gonic/gin"
)

type reconcileRequest struct {
	DryRun      bool `json:"dry_run"`
	UserID      uint `json:"user_id"`
	Concurrency int  `json:"concurrency"`
}

// RunReconcile 执行对账/修复任务
func (h *Handler) RunReconcile(c *gin.Context) {
	var req reconcileRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.Concurrency <= 0 {
		req.Concurrency = h.Config.Binary.BatchMatchConcurrency
	}
	task := c.Param("task")
	report, err := h.ReconcileService.Run(c.Request.Context(), task, service.ReconcileOptions{
		DryRun:      req.DryRun,
		UserID:      req.UserID,
		Concurrency: req.Concurrency,
	})
	if err != nil {
		if errors.Is(err, service.ErrReconcileTaskUnknown) {
			respondError(c, response.CodeBadRequest, "error.reconcile_task", nil)
			return
		}
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	adminID, _ := c.Get("admin_id")
	shared.RequestLog(c).Infow("admin_reconcile_run",
		"task", task,
		"dry_run", req.DryRun,
		"user_id", req.UserID,
		"scanned", report.Scanned,
		"admin_id", adminID,
	)
	response.Success(c, gin.H{
		"task":    task,
		"dry_run": req.DryRun,
		"report":  report,
	})
}

// ListReconcileTasks 可用对账任务
func (h *Handler) ListReconcileTasks(c *gin.Context) {
	response.Success(c, service.ReconcileTasks())
}
