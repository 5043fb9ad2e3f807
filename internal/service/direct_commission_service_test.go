package service

import (
	"context"
	"testing"
	"time"

	"github.com/evdist-next/internal/config"
	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/repository"
)

func TestDirectCommissionPreActivationBoundary(t *testing.T) {
	env := setupBinaryTestEnv(t, nil)
	ctx := context.Background()
	root := env.register(t, "root", 0)
	m2 := env.register(t, "m2", root)
	m3 := env.register(t, "m3", root)
	m4 := env.register(t, "m4", root)
	m5 := env.register(t, "m5", root)
	if !env.node(t, root).Activated {
		t.Fatalf("root should be activated by m4")
	}

	// 注册时未支付，不发放
	if balance := env.balance(t, root); !balance.IsZero() {
		t.Fatalf("unpaid members should not pay direct commission, got %s", balance)
	}

	env.pay(t, m2, 10000, 5000)
	if balance := env.balance(t, root); !balance.Equal(mustDecimal(t, "800")) {
		t.Fatalf("expected net 800 after first payment, got %s", balance)
	}
	summary, err := env.ledger.Summary(ctx, root)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.TDSWithheld.String() != "200.00" {
		t.Fatalf("expected tds 200, got %s", summary.TDSWithheld)
	}

	replay, err := env.direct.Process(ctx, m2)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(replay.Paid) != 0 || len(replay.AlreadyProcessed) != 1 || replay.AlreadyProcessed[0] != root {
		t.Fatalf("replay should be already processed: %+v", replay)
	}

	// m4 触发激活，计入激活人数，仍应发放
	env.pay(t, m4, 10000, 5000)
	if balance := env.balance(t, root); !balance.Equal(mustDecimal(t, "1600")) {
		t.Fatalf("boundary member should be paid, balance=%s", balance)
	}

	// m5 在激活之后加入：根节点跳过，m2 仍未激活照常发放
	env.pay(t, m5, 10000, 5000)
	result, err := env.direct.Process(ctx, m5)
	if err != nil {
		t.Fatalf("process m5 failed: %v", err)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != root {
		t.Fatalf("root should skip post-activation member: %+v", result)
	}
	// m2 为 m4 与 m5 各得一笔
	if balance := env.balance(t, m2); !balance.Equal(mustDecimal(t, "1600")) {
		t.Fatalf("m2 should be paid for m4 and m5, balance=%s", balance)
	}

	// 激活前加入但激活后才支付的会员仍计入
	env.pay(t, m3, 10000, 5000)
	if balance := env.balance(t, root); !balance.Equal(mustDecimal(t, "2400")) {
		t.Fatalf("late payment of pre-activation member should be paid, balance=%s", balance)
	}

	_, total, err := env.ledger.ListTransactions(repository.WalletTransactionListFilter{
		UserID: root,
		Type:   constants.WalletTxnTypeDirectCommission,
	})
	if err != nil {
		t.Fatalf("list transactions failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 direct commission credits, got %d", total)
	}
	deductions, err := env.booking.ListDeductions(root)
	if err != nil {
		t.Fatalf("list deductions failed: %v", err)
	}
	if len(deductions) != 0 {
		t.Fatalf("direct commission tds should not debit booking balance by default")
	}
}

func TestDirectCommissionTDSDebitsBookingWhenEnabled(t *testing.T) {
	env := setupBinaryTestEnv(t, func(cfg *config.BinaryConfig) {
		cfg.TDSDebitsBookingBalance = true
	})
	root := env.register(t, "root", 0)
	booking := env.pay(t, root, 20000, 5000)
	m2 := env.register(t, "m2", root)
	env.pay(t, m2, 10000, 5000)

	deductions, err := env.booking.ListDeductions(root)
	if err != nil {
		t.Fatalf("list deductions failed: %v", err)
	}
	if len(deductions) != 1 || deductions[0].BookingID != booking.ID || deductions[0].Amount.String() != "200.00" {
		t.Fatalf("unexpected tds booking deductions: %+v", deductions)
	}
	updated, err := env.booking.GetBooking(booking.ID)
	if err != nil {
		t.Fatalf("get booking failed: %v", err)
	}
	if updated.RemainingAmount.String() != "14800.00" {
		t.Fatalf("unexpected remaining amount: %s", updated.RemainingAmount)
	}
}

func TestDirectCommissionCoversFullAncestorChain(t *testing.T) {
	env := setupBinaryTestEnv(t, func(cfg *config.BinaryConfig) {
		cfg.ActivationThreshold = 10
	})
	root := env.register(t, "root", 0)
	m2 := env.register(t, "m2", root)
	m3 := env.register(t, "m3", m2)
	m4 := env.register(t, "m4", m3)
	env.pay(t, m4, 10000, 5000)

	for _, userID := range []uint{root, m2, m3} {
		if balance := env.balance(t, userID); !balance.Equal(mustDecimal(t, "800")) {
			t.Fatalf("ancestor %d should be paid, balance=%s", userID, balance)
		}
	}
	if balance := env.balance(t, m4); !balance.IsZero() {
		t.Fatalf("member should not pay itself, balance=%s", balance)
	}
}

func TestCountsTowardActivationTieBreaksByNodeID(t *testing.T) {
	activatedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ancestor := &models.BinaryNode{
		UserID:              1,
		Activated:           true,
		ActivationTimestamp: &activatedAt,
		ActivationNodeID:    7,
	}
	cases := []struct {
		name   string
		member models.BinaryNode
		want   bool
	}{
		{"before", models.BinaryNode{ID: 9, CreatedAt: activatedAt.Add(-time.Second)}, true},
		{"tied_earlier", models.BinaryNode{ID: 6, CreatedAt: activatedAt}, true},
		{"trigger", models.BinaryNode{ID: 7, CreatedAt: activatedAt}, true},
		{"tied_later", models.BinaryNode{ID: 8, CreatedAt: activatedAt}, false},
		{"after", models.BinaryNode{ID: 3, CreatedAt: activatedAt.Add(time.Microsecond)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			member := tc.member
			if got := countsTowardActivation(ancestor, &member); got != tc.want {
				t.Fatalf("counts toward activation mismatch: got=%v want=%v", got, tc.want)
			}
		})
	}

	pending := &models.BinaryNode{UserID: 2}
	if !countsTowardActivation(pending, &models.BinaryNode{ID: 1, CreatedAt: activatedAt}) {
		t.Fatalf("members of an inactive ancestor always count")
	}
}
