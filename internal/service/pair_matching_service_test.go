package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evdist-next/internal/config"
	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/repository"
)

func assertPairs(t *testing.T, pairs []models.BinaryPair, want [][2]uint) {
	t.Helper()
	if len(pairs) != len(want) {
		t.Fatalf("expected %d pairs, got %d: %+v", len(want), len(pairs), pairs)
	}
	for i, pair := range pairs {
		if pair.LeftUserID != want[i][0] || pair.RightUserID != want[i][1] {
			t.Fatalf("pair %d: expected (%d,%d), got (%d,%d)", i, want[i][0], want[i][1], pair.LeftUserID, pair.RightUserID)
		}
	}
}

func TestMatchPairsExcludesPreActivationMembers(t *testing.T) {
	env := setupBinaryTestEnv(t, func(cfg *config.BinaryConfig) {
		cfg.ActivationThreshold = 2
	})
	ctx := context.Background()
	root := env.register(t, "root", 0)
	m2 := env.register(t, "m2", root) // T1，激活前
	m3 := env.register(t, "m3", root) // T2，触发激活
	if ts := env.node(t, root).ActivationTimestamp; ts == nil || !ts.Equal(env.node(t, m3).CreatedAt) {
		t.Fatalf("activation timestamp should be T2")
	}

	result, err := env.matcher.MatchPairs(ctx, root)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if len(result.Pairs) != 0 {
		t.Fatalf("left queue holds only pre-activation member, expected no pair: %+v", result.Pairs)
	}

	m4 := env.register(t, "m4", root) // T3，左区
	result, err = env.matcher.MatchPairs(ctx, root)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	assertPairs(t, result.Pairs, [][2]uint{{m4, m3}})
	pair := result.Pairs[0]
	if pair.Sequence != 1 || pair.Status != constants.BinaryPairStatusProcessed || pair.UsedCarryForward {
		t.Fatalf("unexpected pair state: %+v", pair)
	}
	if pair.GrossAmount.String() != "2000.00" || pair.TaxAmount.String() != "400.00" || pair.NetAmount.String() != "1600.00" {
		t.Fatalf("unexpected pair amounts: %+v", pair)
	}

	// 已消耗的会员不再参与配对
	result, err = env.matcher.MatchPairs(ctx, root)
	if err != nil {
		t.Fatalf("rematch failed: %v", err)
	}
	if len(result.Pairs) != 0 {
		t.Fatalf("members must not be matched twice: %+v", result.Pairs)
	}

	m5 := env.register(t, "m5", root)
	m6 := env.register(t, "m6", root)
	result, err = env.matcher.MatchPairs(ctx, root)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	assertPairs(t, result.Pairs, [][2]uint{{m5, m6}})
	if result.Pairs[0].Sequence != 2 {
		t.Fatalf("sequence should continue, got %d", result.Pairs[0].Sequence)
	}

	pairs, total, err := env.matcher.ListPairs(repository.BinaryPairListFilter{AncestorUserID: root})
	if err != nil {
		t.Fatalf("list pairs failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 pairs, got %d", total)
	}
	for _, p := range pairs {
		if p.LeftUserID == m2 || p.RightUserID == m2 {
			t.Fatalf("pre-activation member m2 must never be paired")
		}
	}
	if balance := env.balance(t, root); !balance.Equal(mustDecimal(t, "3200")) {
		t.Fatalf("unexpected root balance: %s", balance)
	}
	if env.node(t, root).PairCount != 2 {
		t.Fatalf("pair count not persisted")
	}
}

func TestMatchPairsThresholdThreeTrigger(t *testing.T) {
	env := setupBinaryTestEnv(t, nil)
	root := env.register(t, "root", 0)
	env.register(t, "m2", root)
	env.register(t, "m3", root)
	m4 := env.register(t, "m4", root)
	env.register(t, "m5", root)
	m6 := env.register(t, "m6", root)

	result, err := env.matcher.MatchPairs(context.Background(), root)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	// 触发激活的 m4 有资格配对，m2/m3 永久排除
	assertPairs(t, result.Pairs, [][2]uint{{m4, m6}})
	if result.CapReached || result.CarryForward != nil {
		t.Fatalf("no cap expected: %+v", result)
	}
}

func TestMatchPairsPreconditions(t *testing.T) {
	env := setupBinaryTestEnv(t, nil)
	root := env.register(t, "root", 0)
	if _, err := env.matcher.MatchPairs(context.Background(), root); !errors.Is(err, ErrNodeNotActivated) {
		t.Fatalf("expected not activated, got: %v", err)
	}
	if _, err := env.matcher.MatchPairs(context.Background(), 404); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected node not found, got: %v", err)
	}
}

func TestMatchPairsDailyCapCarriesLongerLeg(t *testing.T) {
	env := setupBinaryTestEnv(t, func(cfg *config.BinaryConfig) {
		cfg.ActivationThreshold = 1
		cfg.DailyPairCap = 2
	})
	ctx := context.Background()
	root := env.register(t, "root", 0)
	ids := map[int]uint{}
	for i := 2; i <= 9; i++ {
		ids[i] = env.register(t, "m"+string(rune('0'+i)), root)
	}

	result, err := env.matcher.MatchPairs(ctx, root)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	assertPairs(t, result.Pairs, [][2]uint{{ids[2], ids[3]}, {ids[4], ids[6]}})
	if !result.CapReached || result.CarryForward == nil {
		t.Fatalf("cap should be reached with carry forward: %+v", result)
	}
	carry := result.CarryForward
	if carry.Side != constants.BinarySideLeft || carry.MemberCount != 3 || carry.CarryDate != "2026-03-02" {
		t.Fatalf("unexpected carry forward: %+v", carry)
	}
	records, err := env.matcher.ListCarryForwards(root)
	if err != nil {
		t.Fatalf("list carry forwards failed: %v", err)
	}
	if len(records) != 1 || len(records[0].Members) != 3 {
		t.Fatalf("unexpected carry forward records: %+v", records)
	}
	for i, want := range []uint{ids[5], ids[8], ids[9]} {
		if records[0].Members[i].MemberUserID != want || records[0].Members[i].Position != i+1 {
			t.Fatalf("carry member %d: expected %d, got %+v", i, want, records[0].Members[i])
		}
	}

	again, err := env.matcher.MatchPairs(ctx, root)
	if err != nil {
		t.Fatalf("rematch failed: %v", err)
	}
	if !again.CapReached || len(again.Pairs) != 0 {
		t.Fatalf("second run on the same day should stop at cap: %+v", again)
	}

	env.clock.Advance(24 * time.Hour)
	m10 := env.register(t, "m10", root)
	next, err := env.matcher.MatchPairs(ctx, root)
	if err != nil {
		t.Fatalf("next day match failed: %v", err)
	}
	assertPairs(t, next.Pairs, [][2]uint{{ids[5], ids[7]}})
	if !next.Pairs[0].UsedCarryForward || next.Pairs[0].Sequence != 3 || next.PairDate != "2026-03-03" {
		t.Fatalf("unexpected next day pair: %+v", next.Pairs[0])
	}
	if next.CapReached || next.CarryForward != nil {
		t.Fatalf("next day should stay under cap: %+v", next)
	}

	records, err = env.matcher.ListCarryForwards(root)
	if err != nil {
		t.Fatalf("list carry forwards failed: %v", err)
	}
	if records[0].MatchedCount != 1 || records[0].Status != constants.CarryForwardStatusActive {
		t.Fatalf("carry forward cursor not advanced: %+v", records[0])
	}
	if !records[0].Members[0].Matched || records[0].Members[0].MatchedPairID == nil {
		t.Fatalf("first carry member should be matched: %+v", records[0].Members[0])
	}

	// 结转会员先于新会员出队
	env.register(t, "m11", root)
	m12 := env.register(t, "m12", root)
	more, err := env.matcher.MatchPairs(ctx, root)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	assertPairs(t, more.Pairs, [][2]uint{{ids[8], m12}})
	if !more.CapReached || more.CarryForward == nil {
		t.Fatalf("second pair of the day should hit cap: %+v", more)
	}
	fresh := more.CarryForward.Members
	if len(fresh) != 2 || fresh[0].MemberUserID != m10 {
		t.Fatalf("only fresh surplus should be carried: %+v", fresh)
	}
}

func TestMatchPairsBlocksUntilActiveBuyer(t *testing.T) {
	env := setupBinaryTestEnv(t, func(cfg *config.BinaryConfig) {
		cfg.ActivationThreshold = 1
		cfg.TDSThresholdPairs = 1
	})
	ctx := context.Background()
	root := env.register(t, "root", 0)
	for _, name := range []string{"m2", "m3", "m4", "m5", "m6"} {
		env.register(t, name, root)
	}

	result, err := env.matcher.MatchPairs(ctx, root)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if len(result.Pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(result.Pairs))
	}
	first, second := result.Pairs[0], result.Pairs[1]
	if first.CommissionBlocked || first.Status != constants.BinaryPairStatusProcessed {
		t.Fatalf("first pair is under threshold and should be paid: %+v", first)
	}
	if !second.CommissionBlocked || second.Status != constants.BinaryPairStatusMatched ||
		second.BlockedReason != constants.BinaryPairBlockedNotActiveBuyer || !second.NetAmount.IsZero() {
		t.Fatalf("second pair should be blocked: %+v", second)
	}
	if balance := env.balance(t, root); !balance.Equal(mustDecimal(t, "1600")) {
		t.Fatalf("blocked pair must not credit wallet, balance=%s", balance)
	}

	notYet, err := env.matcher.ReleaseBlockedPairs(ctx, root)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if notYet.ActiveBuyer || len(notYet.Released) != 0 {
		t.Fatalf("release should wait for active buyer: %+v", notYet)
	}

	booking := env.pay(t, root, 10000, 5000)
	released, err := env.matcher.ReleaseBlockedPairs(ctx, root)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if !released.ActiveBuyer || len(released.Released) != 1 {
		t.Fatalf("expected one released pair: %+v", released)
	}
	pair := released.Released[0]
	if pair.NetAmount.String() != "1200.00" || pair.ExtraAmount.String() != "400.00" || pair.Status != constants.BinaryPairStatusProcessed {
		t.Fatalf("unexpected released pair: %+v", pair)
	}
	if balance := env.balance(t, root); !balance.Equal(mustDecimal(t, "2800")) {
		t.Fatalf("unexpected balance after release: %s", balance)
	}
	updated, err := env.booking.GetBooking(booking.ID)
	if err != nil {
		t.Fatalf("get booking failed: %v", err)
	}
	if updated.DeductionsApplied.String() != "400.00" || updated.RemainingAmount.String() != "4600.00" {
		t.Fatalf("extra deduction should debit booking: applied=%s remaining=%s", updated.DeductionsApplied, updated.RemainingAmount)
	}

	again, err := env.matcher.ReleaseBlockedPairs(ctx, root)
	if err != nil {
		t.Fatalf("second release failed: %v", err)
	}
	if len(again.Released) != 0 {
		t.Fatalf("release must be idempotent: %+v", again)
	}
}

func TestMatchAllScansActivatedNodes(t *testing.T) {
	env := setupBinaryTestEnv(t, func(cfg *config.BinaryConfig) {
		cfg.ActivationThreshold = 2
	})
	root := env.register(t, "root", 0)
	for _, name := range []string{"m2", "m3", "m4", "m5", "m6", "m7"} {
		env.register(t, name, root)
	}

	summary, err := env.matcher.MatchAll(context.Background(), 2)
	if err != nil {
		t.Fatalf("match all failed: %v", err)
	}
	if summary.Scanned < 1 || summary.Pairs < 1 || summary.Failures != 0 {
		t.Fatalf("unexpected batch summary: %+v", summary)
	}

	rerun, err := env.matcher.MatchAll(context.Background(), 2)
	if err != nil {
		t.Fatalf("second match all failed: %v", err)
	}
	if rerun.Pairs != 0 {
		t.Fatalf("second batch should find nothing new: %+v", rerun)
	}
}
