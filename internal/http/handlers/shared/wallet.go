package shared

import (
	"strings"

	"github.com/evdist-next/internal/repository"

	"github.com/gin-gonic/gin"
)

// WalletTransactionFilter 读取钱包流水查询参数
func WalletTransactionFilter(c *gin.Context, userID uint) (repository.WalletTransactionListFilter, bool) {
	page, pageSize := QueryPagination(c)
	from, ok := ParseTimeQuery(c, "created_from")
	if !ok {
		return repository.WalletTransactionListFilter{}, false
	}
	to, ok := ParseTimeQuery(c, "created_to")
	if !ok {
		return repository.WalletTransactionListFilter{}, false
	}
	return repository.WalletTransactionListFilter{
		Page:        page,
		PageSize:    pageSize,
		UserID:      userID,
		Type:        strings.TrimSpace(c.Query("type")),
		Direction:   strings.TrimSpace(c.Query("direction")),
		SourceType:  strings.TrimSpace(c.Query("source_type")),
		CreatedFrom: from,
		CreatedTo:   to,
	}, true
}
