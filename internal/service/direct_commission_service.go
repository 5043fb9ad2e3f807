package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/evdist-next/internal/config"
	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/logger"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/monitoring"
	"github.com/evdist-next/internal/queue"
	"github.com/evdist-next/internal/repository"

	"gorm.io/gorm"
)

const (
	directResultPaid             = "paid"
	directResultSkipped          = "skipped"
	directResultAlreadyProcessed = "already_processed"
)

// DirectCommissionResult 直推佣金处理结果（按祖先会员ID归类）
type DirectCommissionResult struct {
	MemberUserID     uint   `json:"member_user_id"`
	Paid             []uint `json:"paid"`
	Skipped          []uint `json:"skipped"`
	AlreadyProcessed []uint `json:"already_processed"`
}

// DirectCommissionService 激活前阶段的直推佣金
type DirectCommissionService struct {
	treeRepo    repository.BinaryTreeRepository
	ledger      *LedgerService
	booking     BookingCollaborator
	rules       *config.BinaryRules
	retry       config.RetryConfig
	queueClient *queue.Client
	metrics     *monitoring.Metrics
}

// NewDirectCommissionService 创建直推佣金服务
func NewDirectCommissionService(
	treeRepo repository.BinaryTreeRepository,
	ledger *LedgerService,
	booking BookingCollaborator,
	rules *config.BinaryRules,
	retry config.RetryConfig,
	queueClient *queue.Client,
	metrics *monitoring.Metrics,
) *DirectCommissionService {
	return &DirectCommissionService{
		treeRepo:    treeRepo,
		ledger:      ledger,
		booking:     booking,
		rules:       rules,
		retry:       retry,
		queueClient: queueClient,
		metrics:     metrics,
	}
}

// Dispatch 按配置异步投递或同步处理直推佣金
func (s *DirectCommissionService) Dispatch(ctx context.Context, memberUserID uint) error {
	if s.rules.AsyncDirectCommission && s.queueClient.Enabled() {
		return s.queueClient.EnqueueDirectCommission(memberUserID)
	}
	_, err := s.Process(ctx, memberUserID)
	return err
}

// Process 为新会员的全部祖先发放直推佣金，每个祖先独立事务
func (s *DirectCommissionService) Process(ctx context.Context, memberUserID uint) (*DirectCommissionResult, error) {
	member, err := s.treeRepo.GetNodeByUserID(memberUserID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrNodeNotFound
	}
	paths, err := s.treeRepo.ListAncestorPaths(memberUserID)
	if err != nil {
		return nil, err
	}

	result := &DirectCommissionResult{
		MemberUserID:     memberUserID,
		Paid:             []uint{},
		Skipped:          []uint{},
		AlreadyProcessed: []uint{},
	}
	defer func() {
		if len(result.Paid) > 0 {
			s.ledger.InvalidateSummary(ctx, result.Paid...)
		}
	}()
	for _, path := range paths {
		ancestorUserID := path.AncestorUserID
		outcome, err := RetryConflicts(ctx, s.retry, func() (string, error) {
			return s.processAncestor(ctx, ancestorUserID, member)
		})
		if err != nil {
			logger.Warnw("direct_commission_failed",
				"ancestor_user_id", ancestorUserID,
				"member_user_id", memberUserID,
				"error", err,
			)
			return result, fmt.Errorf("direct commission for ancestor %d: %w", ancestorUserID, err)
		}
		s.metrics.IncDirectCommission(outcome)
		switch outcome {
		case directResultPaid:
			result.Paid = append(result.Paid, ancestorUserID)
		case directResultAlreadyProcessed:
			result.AlreadyProcessed = append(result.AlreadyProcessed, ancestorUserID)
		default:
			result.Skipped = append(result.Skipped, ancestorUserID)
		}
	}
	return result, nil
}

func (s *DirectCommissionService) processAncestor(ctx context.Context, ancestorUserID uint, member *models.BinaryNode) (string, error) {
	outcome := directResultSkipped
	err := s.treeRepo.Transaction(func(tx *gorm.DB) error {
		tx = tx.WithContext(ctxOrBackground(ctx))
		ancestor, err := s.treeRepo.WithTx(tx).GetNodeByUserIDForUpdate(ancestorUserID)
		if err != nil {
			return err
		}
		if ancestor == nil {
			logger.Debugw("direct_commission_skip_ancestor_missing", "ancestor_user_id", ancestorUserID)
			return nil
		}
		if !countsTowardActivation(ancestor, member) {
			logger.Debugw("direct_commission_skip_post_activation",
				"ancestor_user_id", ancestorUserID,
				"member_user_id", member.UserID,
			)
			return nil
		}
		paid, err := s.booking.HasSuccessfulPaymentTx(tx, member.UserID)
		if err != nil {
			return err
		}
		if !paid {
			logger.Debugw("direct_commission_skip_unpaid",
				"ancestor_user_id", ancestorUserID,
				"member_user_id", member.UserID,
			)
			return nil
		}

		reference := directCommissionReference(ancestorUserID, member.UserID)
		exists, err := s.ledger.HasReferenceTx(tx, reference, reference+":tds")
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyProcessed
		}
		if err := s.payTx(tx, ancestorUserID, member.UserID, reference); err != nil {
			return err
		}
		outcome = directResultPaid
		return nil
	})
	if errors.Is(err, ErrAlreadyProcessed) {
		logger.Debugw("direct_commission_skip_already_processed",
			"ancestor_user_id", ancestorUserID,
			"member_user_id", member.UserID,
		)
		return directResultAlreadyProcessed, nil
	}
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// payTx 写入直推佣金净额与 TDS 记录
func (s *DirectCommissionService) payTx(tx *gorm.DB, ancestorUserID, memberUserID uint, reference string) error {
	breakdown := CalculateDirectCommission(s.rules.DirectCommissionAmount, s.rules.TDSPercent)
	if breakdown.Net.IsPositive() {
		if _, err := s.ledger.CreditTx(tx, LedgerEntryInput{
			UserID:     ancestorUserID,
			Amount:     breakdown.Net,
			Type:       constants.WalletTxnTypeDirectCommission,
			Reference:  reference,
			SourceType: constants.WalletSourceDirect,
			SourceID:   memberUserID,
			Remark:     fmt.Sprintf("直推佣金 会员%d", memberUserID),
		}); err != nil {
			return err
		}
	}
	if !breakdown.Tax.IsPositive() {
		return nil
	}
	if _, err := s.ledger.DebitTx(tx, LedgerEntryInput{
		UserID:     ancestorUserID,
		Amount:     breakdown.Tax,
		Type:       constants.WalletTxnTypeTDSDeduction,
		Reference:  reference + ":tds",
		SourceType: constants.WalletSourceDirect,
		SourceID:   memberUserID,
		Remark:     "直推佣金 TDS 代扣",
	}); err != nil {
		return err
	}
	if !s.rules.TDSDebitsBookingBalance {
		return nil
	}
	_, err := s.booking.DebitTx(tx, BookingDebitInput{
		UserID:     ancestorUserID,
		Amount:     breakdown.Tax,
		Type:       constants.WalletTxnTypeTDSDeduction,
		Reference:  reference + ":tds",
		SourceType: constants.WalletSourceDirect,
		SourceID:   memberUserID,
		Remark:     "直推佣金 TDS 预订余额扣款",
	})
	return err
}

// countsTowardActivation 后代是否计入祖先激活人数（含触发激活的后代本身）
func countsTowardActivation(ancestor *models.BinaryNode, member *models.BinaryNode) bool {
	if !ancestor.Activated {
		return true
	}
	if ancestor.ActivationTimestamp == nil {
		return false
	}
	activatedAt := *ancestor.ActivationTimestamp
	if member.CreatedAt.Equal(activatedAt) && ancestor.ActivationNodeID != 0 {
		return member.ID <= ancestor.ActivationNodeID
	}
	return !member.CreatedAt.After(activatedAt)
}

func directCommissionReference(ancestorUserID, memberUserID uint) string {
	return fmt.Sprintf("direct:%d:%d", ancestorUserID, memberUserID)
}
