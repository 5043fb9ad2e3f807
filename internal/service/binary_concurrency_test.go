package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/evdist-next/internal/config"
	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/models"

	"gorm.io/gorm"
)

func withContentionRetry(mutate func(cfg *config.BinaryConfig)) func(cfg *config.BinaryConfig) {
	return func(cfg *config.BinaryConfig) {
		cfg.Retry.MaxRetries = 60
		cfg.Retry.BaseDelayMS = 2
		cfg.Retry.MaxDelayMS = 20
		if mutate != nil {
			mutate(cfg)
		}
	}
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var total int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&total).Error; err != nil {
		t.Fatalf("count rows failed: %v", err)
	}
	return total
}

func TestConcurrentRegisterUnderOneSponsor(t *testing.T) {
	env := newBinaryTestEnv(t, setupFileServiceTestDB(t, "concurrent_register"), withContentionRetry(nil))
	ctx := context.Background()
	root := env.register(t, "root", 0)

	const workers = 12
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := env.registration.Register(ctx, RegisterInput{
				Username:      fmt.Sprintf("member%02d", i),
				SponsorUserID: root,
			}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent register failed: %v", err)
	}

	if total := countRows(t, env.db, &models.BinaryNode{}, ""); total != workers+1 {
		t.Fatalf("expected %d nodes, got %d", workers+1, total)
	}
	var slots []struct {
		ParentID uint
		Side     string
		Total    int64
	}
	if err := env.db.Model(&models.BinaryNode{}).
		Select("parent_id, side, COUNT(*) AS total").
		Where("parent_id IS NOT NULL").
		Group("parent_id, side").
		Having("COUNT(*) > 1").
		Scan(&slots).Error; err != nil {
		t.Fatalf("scan slots failed: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("duplicate slots: %+v", slots)
	}

	rootNode := env.node(t, root)
	if rootNode.LeftCount != 7 || rootNode.RightCount != 5 {
		t.Fatalf("unexpected root counts: left=%d right=%d", rootNode.LeftCount, rootNode.RightCount)
	}
	var nodes []models.BinaryNode
	if err := env.db.Find(&nodes).Error; err != nil {
		t.Fatalf("list nodes failed: %v", err)
	}
	for _, node := range nodes {
		left := countRows(t, env.db, &models.BinaryNodePath{}, "ancestor_user_id = ? AND side = ?", node.UserID, constants.BinarySideLeft)
		right := countRows(t, env.db, &models.BinaryNodePath{}, "ancestor_user_id = ? AND side = ?", node.UserID, constants.BinarySideRight)
		if node.LeftCount != left || node.RightCount != right {
			t.Fatalf("node %d counts drifted from closure: counts=%d/%d closure=%d/%d",
				node.UserID, node.LeftCount, node.RightCount, left, right)
		}
	}
}

func TestConcurrentMatchPairsRespectsDailyCap(t *testing.T) {
	env := newBinaryTestEnv(t, setupFileServiceTestDB(t, "concurrent_match"), withContentionRetry(func(cfg *config.BinaryConfig) {
		cfg.ActivationThreshold = 2
		cfg.DailyPairCap = 2
	}))
	ctx := context.Background()
	root := env.register(t, "root", 0)
	for _, name := range []string{"m2", "m3", "m4", "m5", "m6", "m7", "m8", "m9"} {
		env.register(t, name, root)
	}

	const workers = 6
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.matcher.MatchPairs(ctx, root); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent match failed: %v", err)
	}

	if total := countRows(t, env.db, &models.BinaryPair{}, "ancestor_user_id = ?", root); total != 2 {
		t.Fatalf("daily cap exceeded: %d pairs", total)
	}
	if pairCount := env.node(t, root).PairCount; pairCount != 2 {
		t.Fatalf("unexpected pair_count: %d", pairCount)
	}
	if total := countRows(t, env.db, &models.BinaryCarryForward{}, "ancestor_user_id = ?", root); total != 1 {
		t.Fatalf("expected one carry forward, got %d", total)
	}
	if balance := env.balance(t, root); !balance.Equal(mustDecimal(t, "3200")) {
		t.Fatalf("unexpected balance after capped matching: %s", balance)
	}
}

// failingBookingCollaborator 预订扣款失败，其余行为沿用真实服务
type failingBookingCollaborator struct {
	*BookingService
}

func (f failingBookingCollaborator) DebitTx(_ *gorm.DB, _ BookingDebitInput) (*models.BookingDeduction, error) {
	return nil, errors.New("booking ledger unavailable")
}

func TestMatchPairsRollsBackOnCollaboratorFailure(t *testing.T) {
	env := setupBinaryTestEnv(t, func(cfg *config.BinaryConfig) {
		cfg.ActivationThreshold = 1
		cfg.TDSThresholdPairs = 0
	})
	ctx := context.Background()
	root := env.register(t, "root", 0)
	env.pay(t, root, 10000, 5000)
	env.register(t, "m2", root)
	env.register(t, "m3", root)

	txnsBefore := countRows(t, env.db, &models.WalletTransaction{}, "")
	deductionsBefore := countRows(t, env.db, &models.BookingDeduction{}, "")
	matcher := NewPairMatchingService(env.treeRepo, env.pairRepo, env.cfRepo, env.ledger,
		failingBookingCollaborator{BookingService: env.booking}, env.rules, env.retry, nil)
	matcher.now = env.clock.Now

	if _, err := matcher.MatchPairs(ctx, root); err == nil || err.Error() != "booking ledger unavailable" {
		t.Fatalf("expected collaborator failure, got: %v", err)
	}
	if total := countRows(t, env.db, &models.BinaryPair{}, ""); total != 0 {
		t.Fatalf("pair should be rolled back, got %d", total)
	}
	if total := countRows(t, env.db, &models.WalletTransaction{}, ""); total != txnsBefore {
		t.Fatalf("ledger rows should be rolled back: before=%d after=%d", txnsBefore, total)
	}
	if total := countRows(t, env.db, &models.BookingDeduction{}, ""); total != deductionsBefore {
		t.Fatalf("booking deductions should be rolled back: before=%d after=%d", deductionsBefore, total)
	}
	if pairCount := env.node(t, root).PairCount; pairCount != 0 {
		t.Fatalf("pair_count should be unchanged, got %d", pairCount)
	}
	if balance := env.balance(t, root); !balance.IsZero() {
		t.Fatalf("balance should be unchanged, got %s", balance)
	}

	result, err := env.matcher.MatchPairs(ctx, root)
	if err != nil {
		t.Fatalf("match with working collaborator failed: %v", err)
	}
	if len(result.Pairs) != 1 || result.Pairs[0].Sequence != 1 {
		t.Fatalf("pair should be matched from scratch after rollback: %+v", result.Pairs)
	}
}
