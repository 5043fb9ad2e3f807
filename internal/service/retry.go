package service

import (
	"context"
	"errors"
	"strings"

	"github.com/evdist-next/internal/config"
	"github.com/evdist-next/internal/logger"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// NewConflictRetryPolicy 创建并发冲突重试策略（锁等待、死锁、序列化失败、占位冲突）
func NewConflictRetryPolicy[T any](cfg config.RetryConfig) retrypolicy.RetryPolicy[T] {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retrypolicy.NewBuilder[T]().
		WithBackoff(cfg.RetryBaseDelay(), cfg.RetryMaxDelay()).
		WithMaxRetries(maxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ T, err error) bool {
			return isRetryableConflict(err)
		}).
		OnRetry(func(event failsafe.ExecutionEvent[T]) {
			logger.Debugw("binary_conflict_retry",
				"attempt", event.Attempts(),
				"error", event.LastError(),
			)
		}).
		ReturnLastFailure().
		Build()
}

// RetryConflicts 在冲突可重试时重新执行整个事务单元
func RetryConflicts[T any](ctx context.Context, cfg config.RetryConfig, fn func() (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return failsafe.With[T](NewConflictRetryPolicy[T](cfg)).WithContext(ctx).Get(fn)
}

// isRetryableConflict 判断错误是否属于可安全重试的并发冲突
func isRetryableConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// 业务错误（含幂等命中）不重试
	if errors.Is(err, ErrAlreadyProcessed) || errors.Is(err, ErrInsufficientFunds) {
		return false
	}
	if errors.Is(err, ErrPlacementSlotUnavailable) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"deadlock",
		"40001",
		"40p01",
		"could not serialize",
		"lock wait timeout",
		"database is locked",
		"database table is locked",
		"sqlite_busy",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
