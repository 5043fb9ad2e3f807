package admin

import (
	"github.com/evdist-next/internal/authz"
	"github.com/evdist-next/internal/http/handlers/shared"
	"github.com/evdist-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

var authzErrorRules = []shared.MappedError{
	{Target: authz.ErrRoleRequired, Code: response.CodeBadRequest, Key: "error.role_invalid"},
	{Target: authz.ErrRoleReserved, Code: response.CodeBadRequest, Key: "error.role_invalid"},
	{Target: authz.ErrActionEmpty, Code: response.CodeBadRequest, Key: "error.bad_request"},
	{Target: authz.ErrAdminMissing, Code: response.CodeBadRequest, Key: "error.admin_id_invalid"},
	{Target: authz.ErrUnavailable, Code: response.CodeInternal, Key: "error.internal"},
}

func respondAuthzError(c *gin.Context, err error) {
	shared.RespondMappedError(c, err, authzErrorRules, response.CodeInternal, "error.internal")
}

// ListAuthzRoles 角色列表
func (h *Handler) ListAuthzRoles(c *gin.Context) {
	roles, err := h.AuthzService.ListRoles()
	if err != nil {
		respondAuthzError(c, err)
		return
	}
	response.Success(c, roles)
}

type createRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// CreateAuthzRole 创建角色
func (h *Handler) CreateAuthzRole(c *gin.Context) {
	var req createRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	role, err := h.AuthzService.EnsureRole(req.Role)
	if err != nil {
		respondAuthzError(c, err)
		return
	}
	response.Success(c, gin.H{"role": role})
}

// GetAuthzRolePolicies 角色策略
func (h *Handler) GetAuthzRolePolicies(c *gin.Context) {
	policies, err := h.AuthzService.GetRolePolicies(c.Param("role"))
	if err != nil {
		respondAuthzError(c, err)
		return
	}
	response.Success(c, policies)
}

type rolePolicyRequest struct {
	Object string `json:"object" binding:"required"`
	Action string `json:"action" binding:"required"`
}

// GrantAuthzRolePolicy 授予角色策略
func (h *Handler) GrantAuthzRolePolicy(c *gin.Context) {
	var req rolePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	role := c.Param("role")
	if err := h.AuthzService.GrantRolePolicy(role, req.Object, req.Action); err != nil {
		respondAuthzError(c, err)
		return
	}
	shared.RequestLog(c).Infow("admin_authz_policy_granted", "role", role, "object", req.Object, "action", req.Action)
	response.Success(c, nil)
}

// RevokeAuthzRolePolicy 撤销角色策略
func (h *Handler) RevokeAuthzRolePolicy(c *gin.Context) {
	var req rolePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	role := c.Param("role")
	if err := h.AuthzService.RevokeRolePolicy(role, req.Object, req.Action); err != nil {
		respondAuthzError(c, err)
		return
	}
	shared.RequestLog(c).Infow("admin_authz_policy_revoked", "role", role, "object", req.Object, "action", req.Action)
	response.Success(c, nil)
}

// GetAuthzAdminRoles 管理员角色
func (h *Handler) GetAuthzAdminRoles(c *gin.Context) {
	adminID, ok := shared.ParseUintParam(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "error.admin_id_invalid", nil)
		return
	}
	roles, err := h.AuthzService.GetAdminRoles(adminID)
	if err != nil {
		respondAuthzError(c, err)
		return
	}
	response.Success(c, roles)
}

type adminRolesRequest struct {
	Roles []string `json:"roles"`
}

// SetAuthzAdminRoles 覆盖管理员角色
func (h *Handler) SetAuthzAdminRoles(c *gin.Context) {
	adminID, ok := shared.ParseUintParam(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "error.admin_id_invalid", nil)
		return
	}
	var req adminRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.AuthzService.SetAdminRoles(adminID, req.Roles); err != nil {
		respondAuthzError(c, err)
		return
	}
	roles, err := h.AuthzService.GetAdminRoles(adminID)
	if err != nil {
		respondAuthzError(c, err)
		return
	}
	shared.RequestLog(c).Infow("admin_authz_roles_updated", "target_admin_id", adminID, "roles", roles)
	response.Success(c, gin.H{"admin_id": adminID, "roles": roles})
}
