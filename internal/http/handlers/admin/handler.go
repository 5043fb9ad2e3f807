package admin

import (
	"github.com/evdist-next/internal/http/handlers/shared"
	"github.com/evdist-next/internal/http/response"
	"github.com/evdist-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// Handler 后台管理接口处理器
type Handler struct {
	*provider.Container
}

// New 创建后台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

func respondError(c *gin.Context, code int, key string, err error) {
	shared.RespondError(c, code, key, err)
}

func badRequest(c *gin.Context, err error) {
	respondError(c, response.CodeBadRequest, "error.bad_request", err)
}

func getAdminID(c *gin.Context) (uint, bool) {
	return shared.GetContextUintWithKeys(c, "admin_id", "error.admin_id_invalid", "error.context_type_invalid")
}

func pathUserID(c *gin.Context) (uint, bool) {
	userID, ok := shared.ParseUintParam(c, "user_id")
	if !ok {
		respondError(c, response.CodeBadRequest, "error.user_id_invalid", nil)
	}
	return userID, ok
}
