package public

import (
	"strings"

	"github.com/evdist-next/internal/http/handlers/shared"
	"github.com/evdist-next/internal/http/response"
	"github.com/evdist-next/internal/repository"
	"github.com/evdist-next/internal/service"

	"github.com/gin-gonic/gin"
)

// GetMyNode 当前会员的节点与直接下级
func (h *Handler) GetMyNode(c *gin.Context) {
	memberID, ok := getMemberID(c)
	if !ok {
		return
	}
	node, err := h.TreeService.GetNode(memberID)
	if err != nil {
		shared.RespondBinaryError(c, err)
		return
	}
	children, err := h.TreeService.ListChildren(memberID)
	if err != nil {
		shared.RespondBinaryError(c, err)
		return
	}
	response.Success(c, gin.H{
		"node":     node,
		"children": children,
	})
}

// MatchMyPairs 会员主动触发自身配对
func (h *Handler) MatchMyPairs(c *gin.Context) {
	memberID, ok := getMemberID(c)
	if !ok {
		return
	}
	result, err := h.PairMatchingService.MatchPairs(c.Request.Context(), memberID)
	if err != nil {
		shared.RespondBinaryError(c, err)
		return
	}
	response.Success(c, result)
}

// ListMyPairs 当前会员的配对记录
func (h *Handler) ListMyPairs(c *gin.Context) {
	memberID, ok := getMemberID(c)
	if !ok {
		return
	}
	page, pageSize := shared.QueryPagination(c)
	pairs, total, err := h.PairMatchingService.ListPairs(repository.BinaryPairListFilter{
		Page:           page,
		PageSize:       pageSize,
		AncestorUserID: memberID,
		PairDate:       strings.TrimSpace(c.Query("pair_date")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	response.SuccessWithPage(c, pairs, response.BuildPagination(page, pageSize, total))
}

// GetMyWallet 当前会员钱包汇总
func (h *Handler) GetMyWallet(c *gin.Context) {
	memberID, ok := getMemberID(c)
	if !ok {
		return
	}
	summary, err := h.LedgerService.Summary(c.Request.Context(), memberID)
	if err != nil {
		shared.RespondBinaryError(c, err)
		return
	}
	response.Success(c, summary)
}

// ListMyWalletTransactions 当前会员钱包流水
func (h *Handler) ListMyWalletTransactions(c *gin.Context) {
	memberID, ok := getMemberID(c)
	if !ok {
		return
	}
	filter, ok := shared.WalletTransactionFilter(c, memberID)
	if !ok {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	txns, total, err := h.LedgerService.ListTransactions(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	response.SuccessWithPage(c, txns, response.BuildPagination(filter.Page, filter.PageSize, total))
}

type withdrawRequest struct {
	Amount    string `json:"amount" binding:"required"`
	RequestNo string `json:"request_no" binding:"required"`
	Remark    string `json:"remark"`
}

// Withdraw 提现（按 request_no 幂等）
func (h *Handler) Withdraw(c *gin.Context) {
	memberID, ok := getMemberID(c)
	if !ok {
		return
	}
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	amount, ok := shared.ParseAmount(req.Amount)
	if !ok {
		respondError(c, response.CodeBadRequest, "error.amount_invalid", nil)
		return
	}
	txn, err := h.LedgerService.Withdraw(c.Request.Context(), service.WithdrawInput{
		UserID:    memberID,
		Amount:    amount,
		RequestNo: req.RequestNo,
		Remark:    req.Remark,
	})
	if err != nil {
		shared.RespondBinaryError(c, err)
		return
	}
	shared.RequestLog(c).Infow("member_withdraw_created", "user_id", memberID, "amount", amount.String(), "request_no", req.RequestNo)
	response.Success(c, txn)
}

// ListMyBookings 当前会员预订与扣款
func (h *Handler) ListMyBookings(c *gin.Context) {
	memberID, ok := getMemberID(c)
	if !ok {
		return
	}
	page, pageSize := shared.QueryPagination(c)
	bookings, total, err := h.BookingService.ListBookings(repository.BookingListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   memberID,
		Status:   strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	response.SuccessWithPage(c, bookings, response.BuildPagination(page, pageSize, total))
}

// ListMyDeductions 当前会员预订余额扣款记录
func (h *Handler) ListMyDeductions(c *gin.Context) {
	memberID, ok := getMemberID(c)
	if !ok {
		return
	}
	items, err := h.BookingService.ListDeductions(memberID)
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	response.Success(c, items)
}
