package worker

import (
	"context"
	"errors"

	"github.com/evdist-next/internal/logger"
	"github.com/evdist-next/internal/provider"
	"github.com/evdist-next/internal/queue"
	"github.com/evdist-next/internal/service"

	"github.com/hibiken/asynq"
)

// PairMatcher 配对引擎
type PairMatcher interface {
	MatchPairs(ctx context.Context, ancestorUserID uint) (*service.PairMatchResult, error)
	MatchAll(ctx context.Context, concurrency int) (*service.BatchMatchSummary, error)
}

// DirectCommissionProcessor 直推佣金处理
type DirectCommissionProcessor interface {
	Process(ctx context.Context, memberUserID uint) (*service.DirectCommissionResult, error)
}

// Consumer 异步任务消费者
type Consumer struct {
	matcher PairMatcher
	direct  DirectCommissionProcessor
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	if c == nil {
		return &Consumer{}
	}
	consumer := &Consumer{}
	if c.PairMatchingService != nil {
		consumer.matcher = c.PairMatchingService
	}
	if c.DirectCommissionService != nil {
		consumer.direct = c.DirectCommissionService
	}
	return consumer
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskBinaryMatchPairs, c.handleMatchPairs)
	mux.HandleFunc(queue.TaskBinaryDirectCommission, c.handleDirectCommission)
}

func (c *Consumer) handleMatchPairs(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.matcher == nil || task == nil {
		logger.Debugw("worker_match_pairs_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseMatchPairsPayload(task)
	if err != nil {
		logger.Warnw("worker_match_pairs_unmarshal_failed", "error", err)
		return err
	}
	if payload.AncestorUserID == 0 {
		logger.Debugw("worker_match_pairs_skip_invalid_payload", "ancestor_user_id", payload.AncestorUserID)
		return nil
	}
	result, err := c.matcher.MatchPairs(ctx, payload.AncestorUserID)
	if err != nil {
		if errors.Is(err, service.ErrNodeNotFound) || errors.Is(err, service.ErrNodeNotActivated) {
			logger.Debugw("worker_match_pairs_skip_node", "ancestor_user_id", payload.AncestorUserID, "error", err)
			return nil
		}
		logger.Warnw("worker_match_pairs_failed", "ancestor_user_id", payload.AncestorUserID, "trigger", payload.Trigger, "error", err)
		return err
	}
	logger.Debugw("worker_match_pairs_done",
		"ancestor_user_id", payload.AncestorUserID,
		"trigger", payload.Trigger,
		"pairs", len(result.Pairs),
		"cap_reached", result.CapReached,
	)
	return nil
}

func (c *Consumer) handleDirectCommission(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.direct == nil || task == nil {
		logger.Debugw("worker_direct_commission_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseDirectCommissionPayload(task)
	if err != nil {
		logger.Warnw("worker_direct_commission_unmarshal_failed", "error", err)
		return err
	}
	if payload.MemberUserID == 0 {
		logger.Debugw("worker_direct_commission_skip_invalid_payload", "member_user_id", payload.MemberUserID)
		return nil
	}
	result, err := c.direct.Process(ctx, payload.MemberUserID)
	if err != nil {
		if errors.Is(err, service.ErrNodeNotFound) {
			logger.Debugw("worker_direct_commission_skip_node", "member_user_id", payload.MemberUserID)
			return nil
		}
		logger.Warnw("worker_direct_commission_failed", "member_user_id", payload.MemberUserID, "error", err)
		return err
	}
	logger.Debugw("worker_direct_commission_done",
		"member_user_id", payload.MemberUserID,
		"paid", result.Paid,
		"skipped", result.Skipped,
		"already_processed", result.AlreadyProcessed,
	)
	return nil
}
