package admin

import (
	"github.com/evdist-next/internal/http/handlers/shared"
	"github.com/evdist-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetWallet 钱包汇总
func (h *Handler) GetWallet(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	summary, err := h.LedgerService.Summary(c.Request.Context(), userID)
	if err != nil {
		shared.RespondBinaryError(c, err)
		return
	}
	response.Success(c, summary)
}

// ListWalletTransactions 钱包流水
func (h *Handler) ListWalletTransactions(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	filter, ok := shared.WalletTransactionFilter(c, userID)
	if !ok {
		badRequest(c, nil)
		return
	}
	txns, total, err := h.LedgerService.ListTransactions(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	response.SuccessWithPage(c, txns, response.BuildPagination(filter.Page, filter.PageSize, total))
}

// RebuildWallet 由流水重建钱包投影
func (h *Handler) RebuildWallet(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	account, err := h.LedgerService.RebuildProjection(c.Request.Context(), userID)
	if err != nil {
		shared.RespondBinaryError(c, err)
		return
	}
	response.Success(c, account)
}
