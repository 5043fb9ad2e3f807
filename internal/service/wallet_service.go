package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evdist-next/internal/cache"
	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/logger"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const walletSummaryCacheTTL = 5 * time.Minute

// walletAffectingTypes 计入钱包余额的流水类型（TDS 与额外扣款只做记录）
var walletAffectingTypes = []string{
	constants.WalletTxnTypeDirectCommission,
	constants.WalletTxnTypePairCommission,
	constants.WalletTxnTypeActivationBonus,
	constants.WalletTxnTypePayout,
	constants.WalletTxnTypeDeposit,
	constants.WalletTxnTypeRefund,
	constants.WalletTxnTypeAdminAdjust,
}

var earningTypes = []string{
	constants.WalletTxnTypeDirectCommission,
	constants.WalletTxnTypePairCommission,
	constants.WalletTxnTypeActivationBonus,
}

// LedgerService 钱包流水账本服务
type LedgerService struct {
	walletRepo repository.WalletRepository
	now        func() time.Time
}

// LedgerEntryInput 记账输入（Amount 为正数金额，方向由调用方法决定）
type LedgerEntryInput struct {
	UserID     uint
	Amount     decimal.Decimal
	Type       string
	Reference  string
	SourceType string
	SourceID   uint
	Remark     string
}

// WalletSummary 钱包汇总（全部由流水折叠得出）
type WalletSummary struct {
	UserID         uint         `json:"user_id"`
	Balance        models.Money `json:"balance"`
	TotalEarned    models.Money `json:"total_earned"`
	TotalWithdrawn models.Money `json:"total_withdrawn"`
	TDSWithheld    models.Money `json:"tds_withheld"`
	ExtraDeducted  models.Money `json:"extra_deducted"`
}

// WithdrawInput 提现输入
type WithdrawInput struct {
	UserID    uint
	Amount    decimal.Decimal
	RequestNo string
	Remark    string
}

// NewLedgerService 创建账本服务
func NewLedgerService(walletRepo repository.WalletRepository) *LedgerService {
	return &LedgerService{
		walletRepo: walletRepo,
		now:        defaultNow,
	}
}

func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// IsWalletAffectingType 判断流水类型是否影响钱包余额
func IsWalletAffectingType(txnType string) bool {
	return containsType(walletAffectingTypes, txnType)
}

func containsType(types []string, txnType string) bool {
	for _, item := range types {
		if item == txnType {
			return true
		}
	}
	return false
}

// CreditTx 在调用方事务内追加入账流水
func (s *LedgerService) CreditTx(tx *gorm.DB, input LedgerEntryInput) (*models.WalletTransaction, error) {
	return s.appendTx(tx, input, constants.WalletTxnDirectionIn)
}

// DebitTx 在调用方事务内追加出账流水
func (s *LedgerService) DebitTx(tx *gorm.DB, input LedgerEntryInput) (*models.WalletTransaction, error) {
	return s.appendTx(tx, input, constants.WalletTxnDirectionOut)
}

// HasReferenceTx 判断任一参考号是否已入账
func (s *LedgerService) HasReferenceTx(tx *gorm.DB, references ...string) (bool, error) {
	repo := s.walletRepo.WithTx(tx)
	for _, reference := range references {
		existing, err := repo.GetTransactionByReference(strings.TrimSpace(reference))
		if err != nil {
			return false, err
		}
		if existing != nil {
			return true, nil
		}
	}
	return false, nil
}

// Credit 独立事务入账
func (s *LedgerService) Credit(ctx context.Context, input LedgerEntryInput) (*models.WalletTransaction, error) {
	var txn *models.WalletTransaction
	err := s.walletRepo.Transaction(func(tx *gorm.DB) error {
		created, err := s.CreditTx(tx.WithContext(ctxOrBackground(ctx)), input)
		if err != nil {
			return err
		}
		txn = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.InvalidateSummary(ctx, input.UserID)
	return txn, nil
}

// Debit 独立事务出账
func (s *LedgerService) Debit(ctx context.Context, input LedgerEntryInput) (*models.WalletTransaction, error) {
	var txn *models.WalletTransaction
	err := s.walletRepo.Transaction(func(tx *gorm.DB) error {
		created, err := s.DebitTx(tx.WithContext(ctxOrBackground(ctx)), input)
		if err != nil {
			return err
		}
		txn = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.InvalidateSummary(ctx, input.UserID)
	return txn, nil
}

// Withdraw 提现出账（打款由外部系统完成）
func (s *LedgerService) Withdraw(ctx context.Context, input WithdrawInput) (*models.WalletTransaction, error) {
	requestNo := strings.TrimSpace(input.RequestNo)
	if requestNo == "" {
		return nil, ErrInvalidReference
	}
	reference := fmt.Sprintf("withdraw:%d:%s", input.UserID, requestNo)
	txn, err := s.Debit(ctx, LedgerEntryInput{
		UserID:     input.UserID,
		Amount:     input.Amount,
		Type:       constants.WalletTxnTypePayout,
		Reference:  reference,
		SourceType: constants.WalletSourceWithdraw,
		Remark:     cleanWalletRemark(input.Remark, "会员提现"),
	})
	if !errors.Is(err, ErrAlreadyProcessed) {
		return txn, err
	}
	// 重复的 request_no 返回已有提现流水
	existing, lookupErr := s.walletRepo.GetTransactionByReference(reference)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if existing == nil {
		return nil, err
	}
	logger.Debugw("wallet_withdraw_already_processed",
		"user_id", input.UserID,
		"request_no", requestNo,
		"transaction_id", existing.ID,
	)
	return existing, nil
}

// Balance 钱包余额（流水折叠）
func (s *LedgerService) Balance(userID uint) (decimal.Decimal, error) {
	if userID == 0 {
		return decimal.Zero, ErrWalletAccountNotFound
	}
	return s.walletRepo.SumAmountByTypes(userID, walletAffectingTypes)
}

// Summary 钱包汇总，命中缓存时直接返回
func (s *LedgerService) Summary(ctx context.Context, userID uint) (*WalletSummary, error) {
	if userID == 0 {
		return nil, ErrWalletAccountNotFound
	}
	ctx = ctxOrBackground(ctx)
	var cached WalletSummary
	if hit, err := cache.GetWalletSummary(ctx, userID, &cached); err == nil && hit {
		return &cached, nil
	}

	summary, err := s.foldSummary(s.walletRepo, userID)
	if err != nil {
		return nil, err
	}
	if err := cache.SetWalletSummary(ctx, userID, summary, walletSummaryCacheTTL); err != nil {
		logger.Warnw("wallet_summary_cache_set_failed", "user_id", userID, "error", err)
	}
	return summary, nil
}

// InvalidateSummary 清理钱包汇总缓存
func (s *LedgerService) InvalidateSummary(ctx context.Context, userIDs ...uint) {
	if err := cache.InvalidateWalletSummary(ctxOrBackground(ctx), userIDs...); err != nil {
		logger.Warnw("wallet_summary_cache_invalidate_failed", "user_ids", userIDs, "error", err)
	}
}

// RebuildProjection 由流水重建钱包投影
func (s *LedgerService) RebuildProjection(ctx context.Context, userID uint) (*models.WalletAccount, error) {
	if userID == 0 {
		return nil, ErrWalletAccountNotFound
	}
	var account *models.WalletAccount
	err := s.walletRepo.Transaction(func(tx *gorm.DB) error {
		repo := s.walletRepo.WithTx(tx.WithContext(ctxOrBackground(ctx)))
		locked, err := s.ensureAccountForUpdate(repo, userID)
		if err != nil {
			return err
		}
		summary, err := s.foldSummary(repo, userID)
		if err != nil {
			return err
		}
		lastID, err := repo.MaxTransactionID(userID)
		if err != nil {
			return err
		}
		locked.Balance = summary.Balance
		locked.TotalEarned = summary.TotalEarned
		locked.TotalWithdrawn = summary.TotalWithdrawn
		locked.LastTransactionID = lastID
		locked.UpdatedAt = s.now()
		if err := repo.UpdateAccount(locked); err != nil {
			return ErrWalletAccountUpdateFailed
		}
		account = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.InvalidateSummary(ctx, userID)
	return account, nil
}

// GetAccount 获取钱包投影
func (s *LedgerService) GetAccount(userID uint) (*models.WalletAccount, error) {
	if userID == 0 {
		return nil, ErrWalletAccountNotFound
	}
	account, err := s.walletRepo.GetAccountByUserID(userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrWalletAccountNotFound
	}
	return account, nil
}

// ListTransactions 查询钱包流水
func (s *LedgerService) ListTransactions(filter repository.WalletTransactionListFilter) ([]models.WalletTransaction, int64, error) {
	return s.walletRepo.ListTransactions(filter)
}

// ListUserIDsWithTransactions 获取存在流水的用户
func (s *LedgerService) ListUserIDsWithTransactions() ([]uint, error) {
	return s.walletRepo.ListUserIDsWithTransactions()
}

func (s *LedgerService) appendTx(tx *gorm.DB, input LedgerEntryInput, direction string) (*models.WalletTransaction, error) {
	if tx == nil {
		return nil, ErrWalletAccountUpdateFailed
	}
	if input.UserID == 0 {
		return nil, ErrWalletAccountNotFound
	}
	amount := input.Amount.Round(2)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return nil, ErrInvalidReference
	}

	repo := s.walletRepo.WithTx(tx)
	// 投影行即账户锁，余额校验与追加在同一把锁内完成
	account, err := s.ensureAccountForUpdate(repo, input.UserID)
	if err != nil {
		return nil, err
	}
	existing, err := repo.GetTransactionByReference(reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, ErrAlreadyProcessed
	}

	signed := amount
	if direction == constants.WalletTxnDirectionOut {
		signed = amount.Neg()
		if IsWalletAffectingType(input.Type) {
			balance, err := repo.SumAmountByTypes(input.UserID, walletAffectingTypes)
			if err != nil {
				return nil, err
			}
			if balance.Sub(amount).LessThan(decimal.Zero) {
				return nil, ErrInsufficientFunds
			}
		}
	}

	txn := &models.WalletTransaction{
		UserID:     input.UserID,
		Type:       input.Type,
		Direction:  direction,
		Amount:     models.NewMoneyFromDecimal(signed),
		Reference:  reference,
		SourceType: input.SourceType,
		SourceID:   input.SourceID,
		Remark:     strings.TrimSpace(input.Remark),
		CreatedAt:  s.now(),
	}
	if err := repo.CreateTransaction(txn); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyProcessed
		}
		return nil, err
	}

	applyToProjection(account, txn)
	account.UpdatedAt = s.now()
	if err := repo.UpdateAccount(account); err != nil {
		return nil, ErrWalletAccountUpdateFailed
	}
	return txn, nil
}

// applyToProjection 将单条流水叠加到投影
func applyToProjection(account *models.WalletAccount, txn *models.WalletTransaction) {
	amount := txn.Amount.Decimal
	if IsWalletAffectingType(txn.Type) {
		account.Balance = models.NewMoneyFromDecimal(account.Balance.Decimal.Add(amount))
	}
	if containsType(earningTypes, txn.Type) {
		account.TotalEarned = models.NewMoneyFromDecimal(account.TotalEarned.Decimal.Add(amount))
	}
	if txn.Type == constants.WalletTxnTypePayout {
		account.TotalWithdrawn = models.NewMoneyFromDecimal(account.TotalWithdrawn.Decimal.Add(amount.Abs()))
	}
	if txn.ID > account.LastTransactionID {
		account.LastTransactionID = txn.ID
	}
}

func (s *LedgerService) foldSummary(repo repository.WalletRepository, userID uint) (*WalletSummary, error) {
	balance, err := repo.SumAmountByTypes(userID, walletAffectingTypes)
	if err != nil {
		return nil, err
	}
	earned, err := repo.SumAmountByTypes(userID, earningTypes)
	if err != nil {
		return nil, err
	}
	withdrawn, err := repo.SumAmountByTypes(userID, []string{constants.WalletTxnTypePayout})
	if err != nil {
		return nil, err
	}
	tds, err := repo.SumAmountByTypes(userID, []string{constants.WalletTxnTypeTDSDeduction})
	if err != nil {
		return nil, err
	}
	extra, err := repo.SumAmountByTypes(userID, []string{constants.WalletTxnTypeExtraDeduction})
	if err != nil {
		return nil, err
	}
	return &WalletSummary{
		UserID:         userID,
		Balance:        models.NewMoneyFromDecimal(balance),
		TotalEarned:    models.NewMoneyFromDecimal(earned),
		TotalWithdrawn: models.NewMoneyFromDecimal(withdrawn.Abs()),
		TDSWithheld:    models.NewMoneyFromDecimal(tds.Abs()),
		ExtraDeducted:  models.NewMoneyFromDecimal(extra.Abs()),
	}, nil
}

func (s *LedgerService) ensureAccountForUpdate(repo *repository.GormWalletRepository, userID uint) (*models.WalletAccount, error) {
	account, err := repo.GetAccountByUserIDForUpdate(userID)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}
	now := s.now()
	account = &models.WalletAccount{
		UserID:         userID,
		Balance:        models.ZeroMoney(),
		TotalEarned:    models.ZeroMoney(),
		TotalWithdrawn: models.ZeroMoney(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repo.CreateAccount(account); err != nil {
		created, queryErr := repo.GetAccountByUserIDForUpdate(userID)
		if queryErr == nil && created != nil {
			return created, nil
		}
		return nil, ErrWalletAccountCreateFailed
	}
	return account, nil
}

func cleanWalletRemark(raw string, fallback string) string {
	remark := strings.TrimSpace(raw)
	if remark == "" {
		return fallback
	}
	return remark
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
