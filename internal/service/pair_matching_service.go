package service

import (
	"context"
	"fmt"
	"time"

	"github.com/evdist-next/internal/config"
	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/logger"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/monitoring"
	"github.com/evdist-next/internal/repository"

	"gorm.io/gorm"
)

// PairMatchResult 单个祖先的配对结果
type PairMatchResult struct {
	AncestorUserID uint                       `json:"ancestor_user_id"`
	PairDate       string                     `json:"pair_date"`
	Pairs          []models.BinaryPair        `json:"pairs"`
	CarryForward   *models.BinaryCarryForward `json:"carry_forward,omitempty"`
	CapReached     bool                       `json:"cap_reached"`
}

// ReleaseResult 冻结配对释放结果
type ReleaseResult struct {
	AncestorUserID uint                `json:"ancestor_user_id"`
	ActiveBuyer    bool                `json:"active_buyer"`
	Released       []models.BinaryPair `json:"released"`
}

// pairCandidate 待配对会员（来自结转队列时带结转记录）
type pairCandidate struct {
	userID         uint
	carryForwardID uint
	cfMemberID     uint
}

// PairMatchingService 二元配对引擎
type PairMatchingService struct {
	treeRepo repository.BinaryTreeRepository
	pairRepo repository.BinaryPairRepository
	cfRepo   repository.BinaryCarryForwardRepository
	ledger   *LedgerService
	booking  BookingCollaborator
	rules    *config.BinaryRules
	retry    config.RetryConfig
	metrics  *monitoring.Metrics
	now      func() time.Time
}

// NewPairMatchingService 创建配对服务
func NewPairMatchingService(
	treeRepo repository.BinaryTreeRepository,
	pairRepo repository.BinaryPairRepository,
	cfRepo repository.BinaryCarryForwardRepository,
	ledger *LedgerService,
	booking BookingCollaborator,
	rules *config.BinaryRules,
	retry config.RetryConfig,
	metrics *monitoring.Metrics,
) *PairMatchingService {
	return &PairMatchingService{
		treeRepo: treeRepo,
		pairRepo: pairRepo,
		cfRepo:   cfRepo,
		ledger:   ledger,
		booking:  booking,
		rules:    rules,
		retry:    retry,
		metrics:  metrics,
		now:      defaultNow,
	}
}

// MatchPairs 为已激活祖先撮合左右区会员，队列为空时返回空结果
func (s *PairMatchingService) MatchPairs(ctx context.Context, ancestorUserID uint) (*PairMatchResult, error) {
	started := time.Now()
	result, err := RetryConflicts(ctx, s.retry, func() (*PairMatchResult, error) {
		var matched *PairMatchResult
		err := s.pairRepo.Transaction(func(tx *gorm.DB) error {
			res, err := s.matchTx(tx.WithContext(ctxOrBackground(ctx)), ancestorUserID)
			if err != nil {
				return err
			}
			matched = res
			return nil
		})
		if err != nil {
			return nil, err
		}
		return matched, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveMatchDuration(time.Since(started))
	for _, pair := range result.Pairs {
		s.metrics.ObservePair(pair.CommissionBlocked,
			pair.GrossAmount.InexactFloat64(),
			pair.TaxAmount.InexactFloat64(),
			pair.ExtraAmount.InexactFloat64(),
			pair.NetAmount.InexactFloat64(),
		)
	}
	if result.CarryForward != nil {
		s.metrics.AddCarryForward(result.CarryForward.Side, result.CarryForward.MemberCount)
	}
	if len(result.Pairs) > 0 {
		s.ledger.InvalidateSummary(ctx, ancestorUserID)
		logger.Infow("binary_match_completed",
			"ancestor_user_id", ancestorUserID,
			"pair_date", result.PairDate,
			"pairs", len(result.Pairs),
			"cap_reached", result.CapReached,
			"carry_forward", result.CarryForward != nil,
		)
	}
	return result, nil
}

func (s *PairMatchingService) matchTx(tx *gorm.DB, ancestorUserID uint) (*PairMatchResult, error) {
	treeRepo := s.treeRepo.WithTx(tx)
	pairRepo := s.pairRepo.WithTx(tx)
	cfRepo := s.cfRepo.WithTx(tx)

	node, err := treeRepo.GetNodeByUserIDForUpdate(ancestorUserID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, ErrNodeNotFound
	}
	if !node.Activated || node.ActivationTimestamp == nil {
		return nil, ErrNodeNotActivated
	}

	today := s.pairDate()
	result := &PairMatchResult{
		AncestorUserID: ancestorUserID,
		PairDate:       today,
		Pairs:          []models.BinaryPair{},
	}
	matchedToday, err := pairRepo.CountByAncestorAndDate(ancestorUserID, today)
	if err != nil {
		return nil, err
	}
	dailyCap := int64(s.rules.DailyPairCap)
	if matchedToday >= dailyCap {
		result.CapReached = true
		return result, nil
	}

	left, err := s.loadQueue(treeRepo, cfRepo, node, constants.BinarySideLeft)
	if err != nil {
		return nil, err
	}
	right, err := s.loadQueue(treeRepo, cfRepo, node, constants.BinarySideRight)
	if err != nil {
		return nil, err
	}
	if len(left) == 0 || len(right) == 0 {
		return result, nil
	}

	var activeBuyer *bool
	for len(left) > 0 && len(right) > 0 && matchedToday < dailyCap {
		l, r := left[0], right[0]
		left, right = left[1:], right[1:]

		sequence := node.PairCount + 1
		if sequence > s.rules.TDSThresholdPairs && activeBuyer == nil {
			isActive, err := s.booking.IsActiveBuyerTx(tx, ancestorUserID)
			if err != nil {
				return nil, err
			}
			activeBuyer = &isActive
		}
		breakdown := CalculateCommission(CommissionInput{
			Sequence:          sequence,
			IsActiveBuyer:     activeBuyer != nil && *activeBuyer,
			Gross:             s.rules.PairCommissionAmount,
			TDSPercent:        s.rules.TDSPercent,
			TDSThresholdPairs: s.rules.TDSThresholdPairs,
			ExtraPercent:      s.rules.ExtraDeductionPercent,
		})

		pair, err := s.persistPair(tx, node, l, r, sequence, today, breakdown)
		if err != nil {
			return nil, err
		}
		for _, candidate := range []pairCandidate{l, r} {
			if candidate.cfMemberID == 0 {
				continue
			}
			if err := cfRepo.MarkMemberMatched(candidate.cfMemberID, pair.ID); err != nil {
				return nil, err
			}
			if err := cfRepo.AdvanceCursor(candidate.carryForwardID, 1); err != nil {
				return nil, err
			}
		}
		node.PairCount = sequence
		matchedToday++
		result.Pairs = append(result.Pairs, *pair)
	}

	if matchedToday >= dailyCap {
		result.CapReached = true
		carry, err := s.carryForwardSurplus(cfRepo, ancestorUserID, today, left, right)
		if err != nil {
			return nil, err
		}
		result.CarryForward = carry
	}
	if err := treeRepo.UpdatePairCount(ancestorUserID, node.PairCount); err != nil {
		return nil, err
	}
	return result, nil
}

// loadQueue 先取结转成员（按结转日期与位置），再取新的合格会员（按创建时间与会员ID）
func (s *PairMatchingService) loadQueue(treeRepo *repository.GormBinaryTreeRepository, cfRepo *repository.GormBinaryCarryForwardRepository, node *models.BinaryNode, side string) ([]pairCandidate, error) {
	queue := make([]pairCandidate, 0)
	records, err := cfRepo.ListActiveWithMembers(node.UserID, side)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		for _, member := range record.Members {
			if member.Matched {
				continue
			}
			queue = append(queue, pairCandidate{
				userID:         member.MemberUserID,
				carryForwardID: record.ID,
				cfMemberID:     member.ID,
			})
		}
	}
	fresh, err := treeRepo.ListEligibleDescendants(node.UserID, side, *node.ActivationTimestamp, node.ActivationNodeID, 0)
	if err != nil {
		return nil, err
	}
	for _, path := range fresh {
		queue = append(queue, pairCandidate{userID: path.DescendantUserID})
	}
	return queue, nil
}

// persistPair 写配对记录，未冻结时同事务写入钱包与预订余额
func (s *PairMatchingService) persistPair(tx *gorm.DB, node *models.BinaryNode, left, right pairCandidate, sequence int, pairDate string, breakdown CommissionBreakdown) (*models.BinaryPair, error) {
	now := s.now()
	pair := &models.BinaryPair{
		AncestorUserID:    node.UserID,
		LeftUserID:        left.userID,
		RightUserID:       right.userID,
		Sequence:          sequence,
		GrossAmount:       models.NewMoneyFromDecimal(breakdown.Gross),
		TaxAmount:         models.NewMoneyFromDecimal(breakdown.Tax),
		ExtraAmount:       models.NewMoneyFromDecimal(breakdown.Extra),
		NetAmount:         models.NewMoneyFromDecimal(breakdown.Net),
		CommissionBlocked: breakdown.Blocked,
		UsedCarryForward:  left.cfMemberID != 0 || right.cfMemberID != 0,
		PairDate:          pairDate,
		Status:            constants.BinaryPairStatusMatched,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if breakdown.Blocked {
		pair.BlockedReason = constants.BinaryPairBlockedNotActiveBuyer
	}
	pairRepo := s.pairRepo.WithTx(tx)
	if err := pairRepo.Create(pair); err != nil {
		return nil, err
	}
	if breakdown.Blocked {
		logger.Infow("binary_pair_commission_blocked",
			"ancestor_user_id", node.UserID,
			"pair_id", pair.ID,
			"sequence", sequence,
		)
		return pair, nil
	}
	if err := s.applyCommissionTx(tx, pair, breakdown); err != nil {
		return nil, err
	}
	pair.Status = constants.BinaryPairStatusProcessed
	pair.ProcessedAt = &now
	if err := pairRepo.Update(pair); err != nil {
		return nil, err
	}
	return pair, nil
}

// applyCommissionTx 写入配对佣金净额与 TDS/额外扣款记录，额外扣款从预订余额扣减
func (s *PairMatchingService) applyCommissionTx(tx *gorm.DB, pair *models.BinaryPair, breakdown CommissionBreakdown) error {
	reference := fmt.Sprintf("pair:%d", pair.ID)
	remark := fmt.Sprintf("二元配对佣金 #%d", pair.Sequence)
	if breakdown.Net.IsPositive() {
		if _, err := s.ledger.CreditTx(tx, LedgerEntryInput{
			UserID:     pair.AncestorUserID,
			Amount:     breakdown.Net,
			Type:       constants.WalletTxnTypePairCommission,
			Reference:  reference + ":credit",
			SourceType: constants.WalletSourcePair,
			SourceID:   pair.ID,
			Remark:     remark,
		}); err != nil {
			return err
		}
	}
	if breakdown.Tax.IsPositive() {
		if _, err := s.ledger.DebitTx(tx, LedgerEntryInput{
			UserID:     pair.AncestorUserID,
			Amount:     breakdown.Tax,
			Type:       constants.WalletTxnTypeTDSDeduction,
			Reference:  reference + ":tds",
			SourceType: constants.WalletSourcePair,
			SourceID:   pair.ID,
			Remark:     remark + " TDS 代扣",
		}); err != nil {
			return err
		}
	}
	if !breakdown.Extra.IsPositive() {
		return nil
	}
	if _, err := s.ledger.DebitTx(tx, LedgerEntryInput{
		UserID:     pair.AncestorUserID,
		Amount:     breakdown.Extra,
		Type:       constants.WalletTxnTypeExtraDeduction,
		Reference:  reference + ":extra",
		SourceType: constants.WalletSourcePair,
		SourceID:   pair.ID,
		Remark:     remark + " 额外扣款",
	}); err != nil {
		return err
	}
	_, err := s.booking.DebitTx(tx, BookingDebitInput{
		UserID:     pair.AncestorUserID,
		Amount:     breakdown.Extra,
		Type:       constants.WalletTxnTypeExtraDeduction,
		Reference:  reference + ":extra",
		SourceType: constants.WalletSourcePair,
		SourceID:   pair.ID,
		Remark:     remark + " 额外扣款",
	})
	return err
}

// carryForwardSurplus 封顶后将较长一侧剩余的新会员写入结转（等长时取左区）
func (s *PairMatchingService) carryForwardSurplus(cfRepo *repository.GormBinaryCarryForwardRepository, ancestorUserID uint, carryDate string, left, right []pairCandidate) (*models.BinaryCarryForward, error) {
	side, remaining := constants.BinarySideLeft, left
	if len(right) > len(left) {
		side, remaining = constants.BinarySideRight, right
	}
	members := make([]models.BinaryCarryForwardMember, 0, len(remaining))
	now := s.now()
	for _, candidate := range remaining {
		if candidate.cfMemberID != 0 {
			continue
		}
		members = append(members, models.BinaryCarryForwardMember{
			AncestorUserID: ancestorUserID,
			MemberUserID:   candidate.userID,
			Position:       len(members) + 1,
			CreatedAt:      now,
		})
	}
	if len(members) == 0 {
		return nil, nil
	}
	record := &models.BinaryCarryForward{
		AncestorUserID: ancestorUserID,
		Side:           side,
		CarryDate:      carryDate,
		MemberCount:    len(members),
		Status:         constants.CarryForwardStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
		Members:        members,
	}
	if err := cfRepo.Create(record); err != nil {
		return nil, err
	}
	logger.Infow("binary_carry_forward_created",
		"ancestor_user_id", ancestorUserID,
		"side", side,
		"carry_date", carryDate,
		"members", len(members),
	)
	return record, nil
}

// ReleaseBlockedPairs 祖先成为活跃买家后补发被冻结的配对佣金
func (s *PairMatchingService) ReleaseBlockedPairs(ctx context.Context, ancestorUserID uint) (*ReleaseResult, error) {
	result, err := RetryConflicts(ctx, s.retry, func() (*ReleaseResult, error) {
		released := &ReleaseResult{AncestorUserID: ancestorUserID, Released: []models.BinaryPair{}}
		err := s.pairRepo.Transaction(func(tx *gorm.DB) error {
			tx = tx.WithContext(ctxOrBackground(ctx))
			node, err := s.treeRepo.WithTx(tx).GetNodeByUserIDForUpdate(ancestorUserID)
			if err != nil {
				return err
			}
			if node == nil {
				return ErrNodeNotFound
			}
			isActive, err := s.booking.IsActiveBuyerTx(tx, ancestorUserID)
			if err != nil {
				return err
			}
			released.ActiveBuyer = isActive
			if !isActive {
				return nil
			}
			pairRepo := s.pairRepo.WithTx(tx)
			pairs, err := pairRepo.ListBlockedForUpdate(ancestorUserID)
			if err != nil {
				return err
			}
			for i := range pairs {
				pair := &pairs[i]
				breakdown := CalculateCommission(CommissionInput{
					Sequence:          pair.Sequence,
					IsActiveBuyer:     true,
					Gross:             pair.GrossAmount.Decimal,
					TDSPercent:        s.rules.TDSPercent,
					TDSThresholdPairs: s.rules.TDSThresholdPairs,
					ExtraPercent:      s.rules.ExtraDeductionPercent,
				})
				if err := s.applyCommissionTx(tx, pair, breakdown); err != nil {
					return err
				}
				now := s.now()
				pair.TaxAmount = models.NewMoneyFromDecimal(breakdown.Tax)
				pair.ExtraAmount = models.NewMoneyFromDecimal(breakdown.Extra)
				pair.NetAmount = models.NewMoneyFromDecimal(breakdown.Net)
				pair.CommissionBlocked = false
				pair.BlockedReason = ""
				pair.Status = constants.BinaryPairStatusProcessed
				pair.ProcessedAt = &now
				pair.UpdatedAt = now
				if err := pairRepo.Update(pair); err != nil {
					return err
				}
				released.Released = append(released.Released, *pair)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return released, nil
	})
	if err != nil {
		return nil, err
	}
	if len(result.Released) > 0 {
		s.ledger.InvalidateSummary(ctx, ancestorUserID)
		logger.Infow("binary_blocked_pairs_released",
			"ancestor_user_id", ancestorUserID,
			"pairs", len(result.Released),
		)
	}
	return result, nil
}

// ListPairs 分页查询配对记录
func (s *PairMatchingService) ListPairs(filter repository.BinaryPairListFilter) ([]models.BinaryPair, int64, error) {
	return s.pairRepo.List(filter)
}

// ListCarryForwards 查询祖先的结转记录
func (s *PairMatchingService) ListCarryForwards(ancestorUserID uint) ([]models.BinaryCarryForward, error) {
	return s.cfRepo.ListByAncestor(ancestorUserID)
}

// pairDate 业务时区的当日日期
func (s *PairMatchingService) pairDate() string {
	loc := s.rules.Location
	if loc == nil {
		loc = time.UTC
	}
	return s.now().In(loc).Format("2006-01-02")
}
