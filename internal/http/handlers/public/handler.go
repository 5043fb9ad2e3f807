package public

import (
	"github.com/evdist-next/internal/http/handlers/shared"
	"github.com/evdist-next/internal/http/response"
	"github.com/evdist-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// Handler 会员端接口处理器
type Handler struct {
	*provider.Container
}

// New 创建会员端处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

func respondError(c *gin.Context, code int, key string, err error) {
	shared.RespondError(c, code, key, err)
}

func getMemberID(c *gin.Context) (uint, bool) {
	return shared.GetContextUintWithKeys(c, "member_id", "error.user_id_invalid", "error.context_type_invalid")
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}
