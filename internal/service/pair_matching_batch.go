package service

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/evdist-next/internal/logger"

	"golang.org/x/sync/errgroup"
)

const batchMatchPageSize = 200

// BatchMatchSummary 批量配对汇总
type BatchMatchSummary struct {
	Scanned  int64 `json:"scanned"`
	Matched  int64 `json:"matched"`
	Pairs    int64 `json:"pairs"`
	CapHit   int64 `json:"cap_hit"`
	Failures int64 `json:"failures"`
}

// MatchAll 遍历全部已激活节点执行配对，单个节点失败只记录不中断
func (s *PairMatchingService) MatchAll(ctx context.Context, concurrency int) (*BatchMatchSummary, error) {
	ctx = ctxOrBackground(ctx)
	if concurrency <= 0 {
		concurrency = 1
	}
	summary := &BatchMatchSummary{}
	var scanned, matched, pairs, capHit, failures atomic.Int64

	var cursor uint
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids, err := s.treeRepo.ListActivatedUserIDs(cursor, batchMatchPageSize)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}
		cursor = ids[len(ids)-1]

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(concurrency)
		for _, userID := range ids {
			userID := userID
			group.Go(func() error {
				scanned.Add(1)
				result, err := s.MatchPairs(groupCtx, userID)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return err
					}
					failures.Add(1)
					logger.Warnw("binary_batch_match_node_failed", "ancestor_user_id", userID, "error", err)
					return nil
				}
				if len(result.Pairs) > 0 {
					matched.Add(1)
					pairs.Add(int64(len(result.Pairs)))
				}
				if result.CapReached {
					capHit.Add(1)
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, err
		}
		if len(ids) < batchMatchPageSize {
			break
		}
	}

	summary.Scanned = scanned.Load()
	summary.Matched = matched.Load()
	summary.Pairs = pairs.Load()
	summary.CapHit = capHit.Load()
	summary.Failures = failures.Load()
	logger.Infow("binary_batch_match_completed",
		"scanned", summary.Scanned,
		"matched", summary.Matched,
		"pairs", summary.Pairs,
		"cap_hit", summary.CapHit,
		"failures", summary.Failures,
	)
	return summary, nil
}
