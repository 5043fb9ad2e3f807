package cache

import (
	"context"
	"testing"
	"time"
)

func TestDisabledCacheIsNoop(t *testing.T) {
	UseClient(nil, "")
	ctx := context.Background()

	var dest map[string]string
	hit, err := GetWalletSummary(ctx, 7, &dest)
	if err != nil || hit {
		t.Fatalf("disabled cache should miss without error, hit=%v err=%v", hit, err)
	}
	if err := SetWalletSummary(ctx, 7, map[string]string{"balance": "1.00"}, time.Minute); err != nil {
		t.Fatalf("disabled cache set failed: %v", err)
	}
	if err := InvalidateWalletSummary(ctx, 7, 0, 8); err != nil {
		t.Fatalf("disabled cache invalidate failed: %v", err)
	}
	acquired, err := AcquireLock(ctx, "binary:batch_match", "worker-1", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("disabled cache lock should succeed, acquired=%v err=%v", acquired, err)
	}
	if err := ReleaseLock(ctx, "binary:batch_match", "worker-1"); err != nil {
		t.Fatalf("disabled cache release failed: %v", err)
	}
}

func TestBuildKeyUsesPrefix(t *testing.T) {
	UseClient(nil, "evtest")
	if got := buildKey(walletSummaryKey(12)); got != "evtest:binary:summary:12" {
		t.Fatalf("unexpected key: %s", got)
	}
	if got := buildKey("  "); got != "evtest" {
		t.Fatalf("blank key should fall back to prefix, got %s", got)
	}
}
