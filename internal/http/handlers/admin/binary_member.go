package admin

import (
	"strings"

	"github.com/evdist-next/internal/http/handlers/shared"
	"github.com/evdist-next/internal/http/response"
	"github.com/evdist-next/internal/repository"
	"github.com/evdist-next/internal/service"

	"github.com/gin-gonic/gin"
)

type registerMemberRequest struct {
	Username        string `json:"username" binding:"required"`
	SponsorUserID   uint   `json:"sponsor_user_id"`
	SponsorUsername string `json:"sponsor_username"`
}

// RegisterMember 注册会员并放置到二叉树
func (h *Handler) RegisterMember(c *gin.Context) {
	var req registerMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.RegistrationService.Register(c.Request.Context(), service.RegisterInput{
		Username:        req.Username,
		SponsorUserID:   req.SponsorUserID,
		SponsorUsername: req.SponsorUsername,
	})
	if err != nil {
		shared.RespondBinaryError(c, err)
		return
	}
	shared.RequestLog(c).Infow("admin_member_registered",
		"user_id", result.Member.ID,
		"parent_id", result.Node.ParentID,
		"side", result.Node.Side,
	)
	response.Success(c, result)
}

// ListMembers 会员列表
func (h *Handler) ListMembers(c *gin.Context) {
	page, pageSize := shared.QueryPagination(c)
	members, total, err := h.RegistrationService.ListMembers(repository.MemberListFilter{
		Page:     page,
		PageSize: pageSize,
		Keyword:  strings.TrimSpace(c.Query("keyword")),
		Status:   strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	response.SuccessWithPage(c, members, response.BuildPagination(page, pageSize, total))
}

// GetMember 会员详情
func (h *Handler) GetMember(c *gin.Context) {
	userID, ok := shared.ParseUintParam(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "error.user_id_invalid", nil)
		return
	}
	member, err := h.RegistrationService.GetMember(userID)
	if err != nil {
		shared.RespondBinaryError(c, err)
		return
	}
	response.Success(c, member)
}

type memberStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateMemberStatus 启用/禁用会员
func (h *Handler) UpdateMemberStatus(c *gin.Context) {
	userID, ok := shared.ParseUintParam(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "error.user_id_invalid", nil)
		return
	}
	var req memberStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	member, err := h.RegistrationService.SetMemberStatus(userID, strings.ToLower(strings.TrimSpace(req.Status)))
	if err != nil {
		shared.RespondBinaryError(c, err)
		return
	}
	response.Success(c, member)
}
