package service

import (
	"context"
	"fmt"
	"time"

	"github.com/evdist-next/internal/config"
	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/repository"

	"gorm.io/gorm"
)

// PlacementResult 节点放置结果
type PlacementResult struct {
	Node      *models.BinaryNode
	Ancestors []models.BinaryNodePath // 近的在前
}

// TreeService 二叉树放置服务
type TreeService struct {
	treeRepo repository.BinaryTreeRepository
	retry    config.RetryConfig
	now      func() time.Time
}

// NewTreeService 创建二叉树服务
func NewTreeService(treeRepo repository.BinaryTreeRepository, retry config.RetryConfig) *TreeService {
	return &TreeService{
		treeRepo: treeRepo,
		retry:    retry,
		now:      defaultNow,
	}
}

// Insert 在推荐人子树内按层序放置新会员，占位冲突自动重试
func (s *TreeService) Insert(ctx context.Context, sponsorUserID, memberUserID uint) (*PlacementResult, error) {
	return RetryConflicts(ctx, s.retry, func() (*PlacementResult, error) {
		var result *PlacementResult
		err := s.treeRepo.Transaction(func(tx *gorm.DB) error {
			placed, err := s.InsertTx(tx.WithContext(ctxOrBackground(ctx)), sponsorUserID, memberUserID)
			if err != nil {
				return err
			}
			result = placed
			return nil
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	})
}

// InsertTx 在调用方事务内放置节点并维护闭包关系与左右区人数
func (s *TreeService) InsertTx(tx *gorm.DB, sponsorUserID, memberUserID uint) (*PlacementResult, error) {
	if memberUserID == 0 {
		return nil, ErrMemberNotFound
	}
	repo := s.treeRepo.WithTx(tx)
	existing, err := repo.GetNodeByUserID(memberUserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrNodeExists
	}

	if sponsorUserID == 0 {
		return s.insertRoot(repo, memberUserID)
	}

	// 锁住推荐人节点，同一推荐人下的放置串行执行
	sponsor, err := repo.GetNodeByUserIDForUpdate(sponsorUserID)
	if err != nil {
		return nil, err
	}
	if sponsor == nil {
		return nil, ErrPlacementSponsorNotFound
	}
	parent, side, err := findVacantSlot(repo, sponsor)
	if err != nil {
		return nil, err
	}

	now := s.now()
	parentID := parent.ID
	sponsorID := sponsorUserID
	node := &models.BinaryNode{
		UserID:        memberUserID,
		ParentID:      &parentID,
		SponsorUserID: &sponsorID,
		Side:          side,
		Depth:         parent.Depth + 1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.CreateNode(node); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: parent=%d side=%s", ErrPlacementSlotUnavailable, parentID, side)
		}
		return nil, err
	}

	paths, err := s.linkAncestors(repo, node, parent)
	if err != nil {
		return nil, err
	}
	return &PlacementResult{Node: node, Ancestors: paths}, nil
}

func (s *TreeService) insertRoot(repo *repository.GormBinaryTreeRepository, memberUserID uint) (*PlacementResult, error) {
	root, err := repo.GetRoot()
	if err != nil {
		return nil, err
	}
	if root != nil {
		return nil, ErrTreeRootExists
	}
	now := s.now()
	node := &models.BinaryNode{
		UserID:    memberUserID,
		Depth:     0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.CreateNode(node); err != nil {
		return nil, err
	}
	return &PlacementResult{Node: node, Ancestors: []models.BinaryNodePath{}}, nil
}

// findVacantSlot 从推荐人开始层序查找第一个空位（先左后右）
func findVacantSlot(repo *repository.GormBinaryTreeRepository, start *models.BinaryNode) (*models.BinaryNode, string, error) {
	queue := []models.BinaryNode{*start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		children, err := repo.ListChildren(current.ID)
		if err != nil {
			return nil, "", err
		}
		var left, right *models.BinaryNode
		for i := range children {
			switch children[i].Side {
			case constants.BinarySideLeft:
				left = &children[i]
			case constants.BinarySideRight:
				right = &children[i]
			}
		}
		if left == nil {
			return &current, constants.BinarySideLeft, nil
		}
		if right == nil {
			return &current, constants.BinarySideRight, nil
		}
		queue = append(queue, *left, *right)
	}
	return nil, "", ErrPlacementSlotUnavailable
}

// linkAncestors 沿父节点回溯到根，写闭包行并给每个祖先对应区人数加一
func (s *TreeService) linkAncestors(repo *repository.GormBinaryTreeRepository, node *models.BinaryNode, parent *models.BinaryNode) ([]models.BinaryNodePath, error) {
	paths := make([]models.BinaryNodePath, 0, node.Depth)
	current := parent
	side := node.Side
	depth := 1
	for current != nil {
		paths = append(paths, models.BinaryNodePath{
			AncestorUserID:      current.UserID,
			DescendantUserID:    node.UserID,
			Side:                side,
			Depth:               depth,
			DescendantCreatedAt: node.CreatedAt,
			CreatedAt:           node.CreatedAt,
		})
		if err := repo.IncrementSideCount(current.UserID, side); err != nil {
			return nil, err
		}
		if current.ParentID == nil {
			break
		}
		side = current.Side
		depth++
		next, err := repo.GetNodeByID(*current.ParentID)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, fmt.Errorf("%w: parent node %d", ErrNodeNotFound, *current.ParentID)
		}
		current = next
	}
	if err := repo.CreatePaths(paths); err != nil {
		return nil, err
	}
	return paths, nil
}

// GetNode 获取会员节点
func (s *TreeService) GetNode(userID uint) (*models.BinaryNode, error) {
	node, err := s.treeRepo.GetNodeByUserID(userID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, ErrNodeNotFound
	}
	return node, nil
}

// ListChildren 获取会员节点的直接下级
func (s *TreeService) ListChildren(userID uint) ([]models.BinaryNode, error) {
	node, err := s.GetNode(userID)
	if err != nil {
		return nil, err
	}
	return s.treeRepo.ListChildren(node.ID)
}

// ListNodes 分页查询节点
func (s *TreeService) ListNodes(filter repository.BinaryNodeListFilter) ([]models.BinaryNode, int64, error) {
	return s.treeRepo.ListNodes(filter)
}
