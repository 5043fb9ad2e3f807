package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/repository"

	"github.com/shopspring/decimal"
)

func setupLedgerServiceTest(t *testing.T) *LedgerService {
	t.Helper()
	db := setupServiceTestDB(t, "ledger_service")
	ledger := NewLedgerService(repository.NewWalletRepository(db))
	ledger.now = newTestClock().Now
	return ledger
}

func TestLedgerBalanceExcludesDeductionTypes(t *testing.T) {
	ledger := setupLedgerServiceTest(t)
	ctx := context.Background()

	if _, err := ledger.Credit(ctx, LedgerEntryInput{
		UserID: 1, Amount: decimal.NewFromInt(800), Type: constants.WalletTxnTypeDirectCommission, Reference: "direct:1:2",
	}); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if _, err := ledger.Debit(ctx, LedgerEntryInput{
		UserID: 1, Amount: decimal.NewFromInt(200), Type: constants.WalletTxnTypeTDSDeduction, Reference: "direct:1:2:tds",
	}); err != nil {
		t.Fatalf("tds debit failed: %v", err)
	}
	if _, err := ledger.Debit(ctx, LedgerEntryInput{
		UserID: 1, Amount: decimal.NewFromInt(400), Type: constants.WalletTxnTypeExtraDeduction, Reference: "pair:9:extra",
	}); err != nil {
		t.Fatalf("extra debit failed: %v", err)
	}

	balance, err := ledger.Balance(1)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("balance should ignore tds and extra, got %s", balance)
	}
	summary, err := ledger.Summary(ctx, 1)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.Balance.String() != "800.00" || summary.TotalEarned.String() != "800.00" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.TDSWithheld.String() != "200.00" || summary.ExtraDeducted.String() != "400.00" {
		t.Fatalf("unexpected deductions: tds=%s extra=%s", summary.TDSWithheld, summary.ExtraDeducted)
	}
	account, err := ledger.GetAccount(1)
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	if account.Balance.String() != "800.00" {
		t.Fatalf("projection out of sync: %s", account.Balance)
	}
}

func TestLedgerDebitInsufficientFunds(t *testing.T) {
	ledger := setupLedgerServiceTest(t)
	ctx := context.Background()

	if _, err := ledger.Credit(ctx, LedgerEntryInput{
		UserID: 3, Amount: decimal.NewFromInt(1000), Type: constants.WalletTxnTypePairCommission, Reference: "pair:1:credit",
	}); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	_, err := ledger.Withdraw(ctx, WithdrawInput{UserID: 3, Amount: decimal.NewFromInt(1500), RequestNo: "W1"})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got: %v", err)
	}
	txn, err := ledger.Withdraw(ctx, WithdrawInput{UserID: 3, Amount: decimal.NewFromInt(600), RequestNo: "W2"})
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if txn.Amount.String() != "-600.00" || txn.Direction != constants.WalletTxnDirectionOut {
		t.Fatalf("unexpected payout entry: %+v", txn)
	}
	if balance, _ := ledger.Balance(3); !balance.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("unexpected balance after payout: %s", balance)
	}
	summary, err := ledger.Summary(ctx, 3)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.TotalWithdrawn.String() != "600.00" {
		t.Fatalf("unexpected withdrawn: %s", summary.TotalWithdrawn)
	}
}

func TestLedgerDuplicateReferenceIsAlreadyProcessed(t *testing.T) {
	ledger := setupLedgerServiceTest(t)
	ctx := context.Background()
	input := LedgerEntryInput{
		UserID: 5, Amount: decimal.NewFromInt(1600), Type: constants.WalletTxnTypePairCommission, Reference: "pair:3:credit",
	}
	first, err := ledger.Credit(ctx, input)
	if err != nil {
		t.Fatalf("first credit failed: %v", err)
	}
	_, err = ledger.Credit(ctx, input)
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected already processed, got: %v", err)
	}
	if balance, _ := ledger.Balance(5); !balance.Equal(decimal.NewFromInt(1600)) {
		t.Fatalf("duplicate credit changed balance: %s", balance)
	}
	txns, total, err := ledger.ListTransactions(repository.WalletTransactionListFilter{UserID: 5})
	if err != nil {
		t.Fatalf("list transactions failed: %v", err)
	}
	if total != 1 || txns[0].ID != first.ID {
		t.Fatalf("unexpected transactions: total=%d", total)
	}
}

func TestLedgerRejectsInvalidInput(t *testing.T) {
	ledger := setupLedgerServiceTest(t)
	ctx := context.Background()
	if _, err := ledger.Credit(ctx, LedgerEntryInput{UserID: 1, Amount: decimal.Zero, Reference: "x"}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got: %v", err)
	}
	if _, err := ledger.Credit(ctx, LedgerEntryInput{UserID: 1, Amount: decimal.NewFromInt(1), Reference: " "}); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected invalid reference, got: %v", err)
	}
	if _, err := ledger.Withdraw(ctx, WithdrawInput{UserID: 1, Amount: decimal.NewFromInt(1)}); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected invalid reference for empty request no, got: %v", err)
	}
}

func TestLedgerRebuildProjection(t *testing.T) {
	db := setupServiceTestDB(t, "ledger_rebuild")
	ledger := NewLedgerService(repository.NewWalletRepository(db))
	ctx := context.Background()

	for i, amount := range []int64{800, 1600} {
		if _, err := ledger.Credit(ctx, LedgerEntryInput{
			UserID:    9,
			Amount:    decimal.NewFromInt(amount),
			Type:      constants.WalletTxnTypePairCommission,
			Reference: fmt.Sprintf("pair:%d:credit", i+1),
		}); err != nil {
			t.Fatalf("credit failed: %v", err)
		}
	}
	if err := db.Model(&models.WalletAccount{}).Where("user_id = ?", 9).
		Update("balance", models.NewMoneyFromInt(99999)).Error; err != nil {
		t.Fatalf("corrupt projection failed: %v", err)
	}

	account, err := ledger.RebuildProjection(ctx, 9)
	if err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if account.Balance.String() != "2400.00" || account.TotalEarned.String() != "2400.00" {
		t.Fatalf("unexpected rebuilt projection: balance=%s earned=%s", account.Balance, account.TotalEarned)
	}
	if account.LastTransactionID == 0 {
		t.Fatalf("last transaction id should be set")
	}
}

func TestLedgerWithdrawDuplicateRequestReturnsExisting(t *testing.T) {
	ledger := setupLedgerServiceTest(t)
	ctx := context.Background()

	if _, err := ledger.Credit(ctx, LedgerEntryInput{
		UserID: 4, Amount: decimal.NewFromInt(1000), Type: constants.WalletTxnTypePairCommission, Reference: "pair:2:credit",
	}); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	first, err := ledger.Withdraw(ctx, WithdrawInput{UserID: 4, Amount: decimal.NewFromInt(300), RequestNo: "W-DUP"})
	if err != nil {
		t.Fatalf("first withdraw failed: %v", err)
	}
	second, err := ledger.Withdraw(ctx, WithdrawInput{UserID: 4, Amount: decimal.NewFromInt(300), RequestNo: "W-DUP"})
	if err != nil {
		t.Fatalf("duplicate withdraw should succeed, got: %v", err)
	}
	if second == nil || second.ID != first.ID {
		t.Fatalf("duplicate withdraw should return existing entry: first=%+v second=%+v", first, second)
	}
	if balance, _ := ledger.Balance(4); !balance.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("duplicate withdraw changed balance: %s", balance)
	}
}
