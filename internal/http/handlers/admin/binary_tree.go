package admin

import (
	"strings"

	"github.com/evdist-next/internal/http/handlers/shared"
	"github.com/evdist-next/internal/http/response"
	"github.com/evdist-next/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListNodes 节点列表
func (h *Handler) ListNodes(c *gin.Context) {
	page, pageSize := shared.QueryPagination(c)
	sponsorUserID, ok := shared.ParseUintQuery(c, "sponsor_user_id")
	if !ok {
		respondError(c, response.CodeBadRequest, "error.user_id_invalid", nil)
		return
	}
	activated, ok := shared.ParseBoolQuery(c, "activated")
	if !ok {
		badRequest(c, nil)
		return
	}
	nodes, total, err := h.TreeService.ListNodes(repository.BinaryNodeListFilter{
		Page:          page,
		PageSize:      pageSize,
		SponsorUserID: sponsorUserID,
		Activated:     activated,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	response.SuccessWithPage(c, nodes, response.BuildPagination(page, pageSize, total))
}

// GetNode 节点详情
func (h *Handler) GetNode(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	node, err := h.TreeService.GetNode(userID)
	if err != nil {
		shared.RespondBinaryError(c, err)
		return
	}
	response.Success(c, node)
}

// ListNodeChildren 直接下级（左在前）
func (h *Handler) ListNodeChildren(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	children, err := h.TreeService.ListChildren(userID)
	if err != nil {
		shared.RespondBinaryError(c, err)
		return
	}
	response.Success(c, children)
}

// MatchNode 对单个祖先执行配对
func (h *Handler) MatchNode(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	result, err := h.PairMatchingService.MatchPairs(c.Request.Context(), userID)
	if err != nil {
		shared.RespondBinaryError(c, err)
		return
	}
	response.Success(c, result)
}

type matchAllRequest struct {
	Concurrency int `json:"concurrency"`
}

// MatchAll 全量批量配对
func (h *Handler) MatchAll(c *gin.Context) {
	var req matchAllRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.Concurrency <= 0 {
		req.Concurrency = h.Config.Binary.BatchMatchConcurrency
	}
	summary, err := h.PairMatchingService.MatchAll(c.Request.Context(), req.Concurrency)
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	response.Success(c, summary)
}

// ListPairs 配对记录
func (h *Handler) ListPairs(c *gin.Context) {
	page, pageSize := shared.QueryPagination(c)
	ancestorUserID, ok := shared.ParseUintQuery(c, "ancestor_user_id")
	if !ok {
		respondError(c, response.CodeBadRequest, "error.user_id_invalid", nil)
		return
	}
	blocked, ok := shared.ParseBoolQuery(c, "blocked")
	if !ok {
		badRequest(c, nil)
		return
	}
	pairs, total, err := h.PairMatchingService.ListPairs(repository.BinaryPairListFilter{
		Page:           page,
		PageSize:       pageSize,
		AncestorUserID: ancestorUserID,
		Status:         strings.TrimSpace(c.Query("status")),
		PairDate:       strings.TrimSpace(c.Query("pair_date")),
		Blocked:        blocked,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	response.SuccessWithPage(c, pairs, response.BuildPagination(page, pageSize, total))
}

// ListCarryForwards 结转记录
func (h *Handler) ListCarryForwards(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	items, err := h.PairMatchingService.ListCarryForwards(userID)
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	response.Success(c, items)
}

// ReleaseBlockedPairs 释放冻结佣金
func (h *Handler) ReleaseBlockedPairs(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	result, err := h.PairMatchingService.ReleaseBlockedPairs(c.Request.Context(), userID)
	if err != nil {
		shared.RespondBinaryError(c, err)
		return
	}
	response.Success(c, result)
}
