package cache

import (
	"context"
	"fmt"
	"time"
)

func walletSummaryKey(userID uint) string {
	return fmt.Sprintf("binary:summary:%d", userID)
}

// GetWalletSummary 获取钱包汇总缓存
func GetWalletSummary(ctx context.Context, userID uint, dest interface{}) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	return GetJSON(ctx, walletSummaryKey(userID), dest)
}

// SetWalletSummary 写入钱包汇总缓存
func SetWalletSummary(ctx context.Context, userID uint, summary interface{}, ttl time.Duration) error {
	if userID == 0 || summary == nil {
		return nil
	}
	return SetJSON(ctx, walletSummaryKey(userID), summary, ttl)
}

// InvalidateWalletSummary 批量清理钱包汇总缓存
func InvalidateWalletSummary(ctx context.Context, userIDs ...uint) error {
	keys := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		if userID == 0 {
			continue
		}
		keys = append(keys, walletSummaryKey(userID))
	}
	return Del(ctx, keys...)
}
