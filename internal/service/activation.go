package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/evdist-next/internal/config"
	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/logger"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/repository"

	"gorm.io/gorm"
)

// ActivationTransition 单个祖先的激活判定结果
type ActivationTransition struct {
	AncestorUserID uint
	// Transitioned 本次新增后代使祖先完成激活
	Transitioned bool
	// PreActivation 新增后代计入了祖先的激活人数（祖先此前未激活）
	PreActivation       bool
	ActivationTimestamp *time.Time
}

// ActivationTracker 激活状态跟踪
type ActivationTracker struct {
	treeRepo repository.BinaryTreeRepository
	ledger   *LedgerService
	rules    *config.BinaryRules
}

// NewActivationTracker 创建激活跟踪器
func NewActivationTracker(treeRepo repository.BinaryTreeRepository, ledger *LedgerService, rules *config.BinaryRules) *ActivationTracker {
	return &ActivationTracker{
		treeRepo: treeRepo,
		ledger:   ledger,
		rules:    rules,
	}
}

// OnInsert 对新节点的全部祖先依次执行激活判定
func (t *ActivationTracker) OnInsert(tx *gorm.DB, placement *PlacementResult) ([]ActivationTransition, error) {
	if placement == nil || placement.Node == nil {
		return nil, nil
	}
	transitions := make([]ActivationTransition, 0, len(placement.Ancestors))
	for _, path := range placement.Ancestors {
		transition, err := t.OnDescendantAdded(tx, path.AncestorUserID, placement.Node)
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, *transition)
	}
	return transitions, nil
}

// OnDescendantAdded 后代加入后判定祖先是否达到激活人数
// 激活时间取触发激活的后代创建时间
func (t *ActivationTracker) OnDescendantAdded(tx *gorm.DB, ancestorUserID uint, descendant *models.BinaryNode) (*ActivationTransition, error) {
	if descendant == nil {
		return nil, ErrNodeNotFound
	}
	repo := t.treeRepo.WithTx(tx)
	node, err := repo.GetNodeByUserIDForUpdate(ancestorUserID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, ErrNodeNotFound
	}
	result := &ActivationTransition{AncestorUserID: ancestorUserID}
	if node.Activated {
		result.ActivationTimestamp = node.ActivationTimestamp
		return result, nil
	}
	result.PreActivation = true

	total := node.TotalDescendants()
	if total < t.rules.ActivationThreshold {
		return result, nil
	}
	activatedAt := descendant.CreatedAt.UTC()
	if err := t.activate(tx, node, activatedAt, descendant.ID, total); err != nil {
		return nil, err
	}
	result.Transitioned = true
	result.ActivationTimestamp = &activatedAt
	logger.Infow("binary_node_activated",
		"user_id", ancestorUserID,
		"trigger_user_id", descendant.UserID,
		"total_descendants", total,
		"activation_timestamp", activatedAt,
	)
	return result, nil
}

// activate 写入激活状态并发放激活奖励
func (t *ActivationTracker) activate(tx *gorm.DB, node *models.BinaryNode, activatedAt time.Time, triggerNodeID uint, total int64) error {
	node.Activated = true
	node.ActivationTimestamp = &activatedAt
	node.ActivationNodeID = triggerNodeID
	node.TotalDescendantsAtActivation = total
	if err := t.treeRepo.WithTx(tx).UpdateActivation(node); err != nil {
		return err
	}
	_, err := t.creditActivationBonus(tx, node.UserID)
	return err
}

// creditActivationBonus 发放一次性激活奖励（扣除 TDS），未配置时跳过
func (t *ActivationTracker) creditActivationBonus(tx *gorm.DB, userID uint) (bool, error) {
	if t.ledger == nil || !t.rules.ActivationBonus.IsPositive() {
		return false, nil
	}
	breakdown := CalculateDirectCommission(t.rules.ActivationBonus, t.rules.TDSPercent)
	reference := activationBonusReference(userID)
	if breakdown.Net.IsPositive() {
		if _, err := t.ledger.CreditTx(tx, LedgerEntryInput{
			UserID:     userID,
			Amount:     breakdown.Net,
			Type:       constants.WalletTxnTypeActivationBonus,
			Reference:  reference,
			SourceType: constants.WalletSourceActivation,
			SourceID:   userID,
			Remark:     "二元激活奖励",
		}); err != nil {
			if errors.Is(err, ErrAlreadyProcessed) {
				return false, nil
			}
			return false, err
		}
	}
	if breakdown.Tax.IsPositive() {
		if _, err := t.ledger.DebitTx(tx, LedgerEntryInput{
			UserID:     userID,
			Amount:     breakdown.Tax,
			Type:       constants.WalletTxnTypeTDSDeduction,
			Reference:  reference + ":tds",
			SourceType: constants.WalletSourceActivation,
			SourceID:   userID,
			Remark:     "激活奖励 TDS 代扣",
		}); err != nil && !errors.Is(err, ErrAlreadyProcessed) {
			return false, err
		}
	}
	return true, nil
}

func activationBonusReference(userID uint) string {
	return fmt.Sprintf("activation_bonus:%d", userID)
}
