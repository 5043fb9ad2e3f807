package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/evdist-next/internal/config"
	"github.com/evdist-next/internal/logger"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/repository"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ReconcileOptions 对账修复选项
type ReconcileOptions struct {
	DryRun      bool
	UserID      uint // 为 0 时处理全部
	Concurrency int
}

// ActivationRepair 激活修复明细
type ActivationRepair struct {
	UserID              uint      `json:"user_id"`
	TotalDescendants    int64     `json:"total_descendants"`
	ActivationTimestamp time.Time `json:"activation_timestamp"`
	Applied             bool      `json:"applied"`
}

// ProjectionDrift 钱包投影偏差
type ProjectionDrift struct {
	UserID uint         `json:"user_id"`
	Before models.Money `json:"before"`
	After  models.Money `json:"after"`
}

// ReconcileReport 对账修复汇总
type ReconcileReport struct {
	Activations      []ActivationRepair        `json:"activations,omitempty"`
	DirectCommission []*DirectCommissionResult `json:"direct_commission,omitempty"`
	Projections      []ProjectionDrift         `json:"projections,omitempty"`
	BonusPaid        []uint                    `json:"bonus_paid,omitempty"`
	Released         []*ReleaseResult          `json:"released,omitempty"`
	Scanned          int                       `json:"scanned"`
}

// ReconcileService 二元佣金数据修复
type ReconcileService struct {
	treeRepo    repository.BinaryTreeRepository
	pairRepo    repository.BinaryPairRepository
	bookingRepo repository.BookingRepository
	ledger      *LedgerService
	activation  *ActivationTracker
	direct      *DirectCommissionService
	matcher     *PairMatchingService
	rules       *config.BinaryRules
}

// NewReconcileService 创建修复服务
func NewReconcileService(
	treeRepo repository.BinaryTreeRepository,
	pairRepo repository.BinaryPairRepository,
	bookingRepo repository.BookingRepository,
	ledger *LedgerService,
	activation *ActivationTracker,
	direct *DirectCommissionService,
	matcher *PairMatchingService,
	rules *config.BinaryRules,
) *ReconcileService {
	return &ReconcileService{
		treeRepo:    treeRepo,
		pairRepo:    pairRepo,
		bookingRepo: bookingRepo,
		ledger:      ledger,
		activation:  activation,
		direct:      direct,
		matcher:     matcher,
		rules:       rules,
	}
}

// RepairActivation 人数已达阈值但未激活的节点补激活，激活时间取第 N 个后代的创建时间
func (s *ReconcileService) RepairActivation(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error) {
	candidates, err := s.treeRepo.ListActivationCandidates(s.rules.ActivationThreshold)
	if err != nil {
		return nil, err
	}
	report := &ReconcileReport{Activations: []ActivationRepair{}}
	for _, candidate := range candidates {
		if opts.UserID != 0 && candidate.UserID != opts.UserID {
			continue
		}
		report.Scanned++
		nth, err := s.treeRepo.GetNthDescendantPath(candidate.UserID, s.rules.ActivationThreshold)
		if err != nil {
			return nil, err
		}
		if nth == nil {
			continue
		}
		trigger, err := s.treeRepo.GetNodeByUserID(nth.DescendantUserID)
		if err != nil {
			return nil, err
		}
		var triggerNodeID uint
		if trigger != nil {
			triggerNodeID = trigger.ID
		}
		repair := ActivationRepair{
			UserID:              candidate.UserID,
			TotalDescendants:    candidate.TotalDescendants(),
			ActivationTimestamp: nth.DescendantCreatedAt.UTC(),
		}
		if !opts.DryRun {
			err := s.treeRepo.Transaction(func(tx *gorm.DB) error {
				tx = tx.WithContext(ctxOrBackground(ctx))
				node, err := s.treeRepo.WithTx(tx).GetNodeByUserIDForUpdate(candidate.UserID)
				if err != nil {
					return err
				}
				if node == nil || node.Activated {
					return nil
				}
				repair.Applied = true
				return s.activation.activate(tx, node, repair.ActivationTimestamp, triggerNodeID, node.TotalDescendants())
			})
			if err != nil {
				return nil, err
			}
			if repair.Applied {
				s.ledger.InvalidateSummary(ctx, candidate.UserID)
			}
		}
		logger.Infow("reconcile_activation_repair",
			"user_id", repair.UserID,
			"activation_timestamp", repair.ActivationTimestamp,
			"dry_run", opts.DryRun,
			"applied", repair.Applied,
		)
		report.Activations = append(report.Activations, repair)
	}
	return report, nil
}

// BackfillDirectCommissions 对有成功支付的会员重跑直推佣金（幂等）
func (s *ReconcileService) BackfillDirectCommissions(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error) {
	userIDs, err := s.bookingRepo.ListUserIDsWithSuccessfulPayment()
	if err != nil {
		return nil, err
	}
	report := &ReconcileReport{DirectCommission: []*DirectCommissionResult{}}
	for _, userID := range userIDs {
		if opts.UserID != 0 && userID != opts.UserID {
			continue
		}
		node, err := s.treeRepo.GetNodeByUserID(userID)
		if err != nil {
			return nil, err
		}
		if node == nil {
			continue
		}
		report.Scanned++
		if opts.DryRun {
			continue
		}
		result, err := s.direct.Process(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(result.Paid) > 0 {
			report.DirectCommission = append(report.DirectCommission, result)
		}
	}
	logger.Infow("reconcile_direct_commission_backfill",
		"scanned", report.Scanned,
		"paid_members", len(report.DirectCommission),
		"dry_run", opts.DryRun,
	)
	return report, nil
}

// RebuildProjections 由流水重建钱包投影并报告偏差
func (s *ReconcileService) RebuildProjections(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error) {
	userIDs, err := s.ledger.ListUserIDsWithTransactions()
	if err != nil {
		return nil, err
	}
	if opts.UserID != 0 {
		userIDs = []uint{opts.UserID}
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	report := &ReconcileReport{Projections: []ProjectionDrift{}, Scanned: len(userIDs)}
	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctxOrBackground(ctx))
	group.SetLimit(concurrency)
	for _, userID := range userIDs {
		userID := userID
		group.Go(func() error {
			before := models.ZeroMoney()
			if account, err := s.ledger.GetAccount(userID); err == nil {
				before = account.Balance
			}
			balance, err := s.ledger.Balance(userID)
			if err != nil {
				return err
			}
			after := models.NewMoneyFromDecimal(balance)
			if !opts.DryRun {
				account, err := s.ledger.RebuildProjection(groupCtx, userID)
				if err != nil {
					return err
				}
				after = account.Balance
			}
			if before.Decimal.Equal(after.Decimal) {
				return nil
			}
			mu.Lock()
			report.Projections = append(report.Projections, ProjectionDrift{UserID: userID, Before: before, After: after})
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	logger.Infow("reconcile_projection_rebuild",
		"scanned", report.Scanned,
		"drifted", len(report.Projections),
		"dry_run", opts.DryRun,
	)
	return report, nil
}

// BackfillActivationBonus 补发遗漏的激活奖励
func (s *ReconcileService) BackfillActivationBonus(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error) {
	report := &ReconcileReport{BonusPaid: []uint{}}
	if !s.rules.ActivationBonus.IsPositive() {
		return report, nil
	}
	var cursor uint
	for {
		ids, err := s.treeRepo.ListActivatedUserIDs(cursor, batchMatchPageSize)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}
		cursor = ids[len(ids)-1]
		for _, userID := range ids {
			if opts.UserID != 0 && userID != opts.UserID {
				continue
			}
			report.Scanned++
			if opts.DryRun {
				continue
			}
			var paid bool
			err := s.treeRepo.Transaction(func(tx *gorm.DB) error {
				tx = tx.WithContext(ctxOrBackground(ctx))
				reference := activationBonusReference(userID)
				exists, err := s.ledger.HasReferenceTx(tx, reference, reference+":tds")
				if err != nil || exists {
					return err
				}
				paid, err = s.activation.creditActivationBonus(tx, userID)
				return err
			})
			if err != nil {
				return nil, err
			}
			if paid {
				report.BonusPaid = append(report.BonusPaid, userID)
				s.ledger.InvalidateSummary(ctx, userID)
			}
		}
		if len(ids) < batchMatchPageSize {
			break
		}
	}
	logger.Infow("reconcile_activation_bonus_backfill",
		"scanned", report.Scanned,
		"paid", len(report.BonusPaid),
		"dry_run", opts.DryRun,
	)
	return report, nil
}

// ReleaseBlockedPairs 对存在冻结配对的祖先逐个尝试释放
func (s *ReconcileService) ReleaseBlockedPairs(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error) {
	ancestorIDs, err := s.pairRepo.ListBlockedAncestorIDs()
	if err != nil {
		return nil, err
	}
	report := &ReconcileReport{Released: []*ReleaseResult{}}
	for _, ancestorUserID := range ancestorIDs {
		if opts.UserID != 0 && ancestorUserID != opts.UserID {
			continue
		}
		report.Scanned++
		if opts.DryRun {
			continue
		}
		result, err := s.matcher.ReleaseBlockedPairs(ctx, ancestorUserID)
		if err != nil {
			return nil, err
		}
		if len(result.Released) > 0 {
			report.Released = append(report.Released, result)
		}
	}
	return report, nil
}

// 修复任务名称
const (
	ReconcileTaskActivation  = "activation"
	ReconcileTaskDirect      = "direct"
	ReconcileTaskProjections = "projections"
	ReconcileTaskBonus       = "bonus"
	ReconcileTaskRelease     = "release"
)

// ErrReconcileTaskUnknown 不支持的修复任务
var ErrReconcileTaskUnknown = errors.New("unknown reconcile task")

// ReconcileTasks 全部修复任务（按推荐执行顺序）
func ReconcileTasks() []string {
	return []string{
		ReconcileTaskActivation,
		ReconcileTaskDirect,
		ReconcileTaskBonus,
		ReconcileTaskRelease,
		ReconcileTaskProjections,
	}
}

// Run 按任务名执行修复
func (s *ReconcileService) Run(ctx context.Context, task string, opts ReconcileOptions) (*ReconcileReport, error) {
	switch strings.ToLower(strings.TrimSpace(task)) {
	case ReconcileTaskActivation:
		return s.RepairActivation(ctx, opts)
	case ReconcileTaskDirect:
		return s.BackfillDirectCommissions(ctx, opts)
	case ReconcileTaskProjections:
		return s.RebuildProjections(ctx, opts)
	case ReconcileTaskBonus:
		return s.BackfillActivationBonus(ctx, opts)
	case ReconcileTaskRelease:
		return s.ReleaseBlockedPairs(ctx, opts)
	default:
		return nil, ErrReconcileTaskUnknown
	}
}
