package worker

import (
	"context"
	"errors"
	"time"

	"github.com/evdist-next/internal/cache"
	"github.com/evdist-next/internal/config"
	"github.com/evdist-next/internal/logger"
	"github.com/evdist-next/internal/queue"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	batchMatchLockKey = "lock:binary:batch_match"
)

// BatchOptions 周期批量配对参数
type BatchOptions struct {
	Interval    time.Duration
	Concurrency int
}

// BatchOptionsFromConfig 由二元配置生成批量参数，间隔为 0 时关闭
func BatchOptionsFromConfig(cfg config.BinaryConfig) BatchOptions {
	opts := BatchOptions{Concurrency: cfg.BatchMatchConcurrency}
	if cfg.BatchMatchIntervalSeconds > 0 {
		opts.Interval = time.Duration(cfg.BatchMatchIntervalSeconds) * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return opts
}

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
	batch    BatchOptions
	owner    string
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, batch BatchOptions, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
		batch:    batch,
		owner:    uuid.NewString(),
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.matcher != nil && s.batch.Interval > 0 {
		go s.runBatchMatchLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

func (s *Service) runBatchMatchLoop(ctx context.Context) {
	ticker := time.NewTicker(s.batch.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runBatchMatchOnce(ctx)
		}
	}
}

// runBatchMatchOnce 多实例部署下通过 Redis 租约保证同一时刻只有一个批量配对
func (s *Service) runBatchMatchOnce(ctx context.Context) {
	ttl := s.batch.Interval
	acquired, err := cache.AcquireLock(ctx, batchMatchLockKey, s.owner, ttl)
	if err != nil {
		logger.Warnw("worker_batch_match_lock_failed", "error", err)
		return
	}
	if !acquired {
		logger.Debugw("worker_batch_match_lock_busy")
		return
	}
	defer func() {
		if err := cache.ReleaseLock(context.Background(), batchMatchLockKey, s.owner); err != nil {
			logger.Warnw("worker_batch_match_unlock_failed", "error", err)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()
	if _, err := s.consumer.matcher.MatchAll(runCtx, s.batch.Concurrency); err != nil {
		logger.Warnw("worker_batch_match_failed", "error", err)
	}
}
