package repository

import (
	"errors"
	"time"

	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BinaryTreeRepository 二叉树数据访问接口
type BinaryTreeRepository interface {
	GetNodeByUserID(userID uint) (*models.BinaryNode, error)
	GetNodeByUserIDForUpdate(userID uint) (*models.BinaryNode, error)
	GetNodeByID(id uint) (*models.BinaryNode, error)
	GetRoot() (*models.BinaryNode, error)
	ListChildren(parentID uint) ([]models.BinaryNode, error)
	CreateNode(node *models.BinaryNode) error
	UpdateActivation(node *models.BinaryNode) error
	UpdatePairCount(userID uint, pairCount int) error
	IncrementSideCount(userID uint, side string) error
	CreatePaths(paths []models.BinaryNodePath) error
	ListAncestorPaths(descendantUserID uint) ([]models.BinaryNodePath, error)
	ListEligibleDescendants(ancestorUserID uint, side string, since time.Time, sinceNodeID uint, limit int) ([]models.BinaryNodePath, error)
	GetNthDescendantPath(ancestorUserID uint, n int64) (*models.BinaryNodePath, error)
	ListActivatedUserIDs(afterUserID uint, limit int) ([]uint, error)
	ListActivationCandidates(threshold int64) ([]models.BinaryNode, error)
	ListNodes(filter BinaryNodeListFilter) ([]models.BinaryNode, int64, error)
	WithTx(tx *gorm.DB) *GormBinaryTreeRepository
	Transaction(fn func(tx *gorm.DB) error) error
}

// GormBinaryTreeRepository GORM 二叉树仓储实现
type GormBinaryTreeRepository struct {
	db *gorm.DB
}

// NewBinaryTreeRepository 创建二叉树仓储
func NewBinaryTreeRepository(db *gorm.DB) *GormBinaryTreeRepository {
	return &GormBinaryTreeRepository{db: db}
}

// WithTx 绑定事务
func (r *GormBinaryTreeRepository) WithTx(tx *gorm.DB) *GormBinaryTreeRepository {
	if tx == nil {
		return r
	}
	return &GormBinaryTreeRepository{db: tx}
}

// Transaction 执行事务
func (r *GormBinaryTreeRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetNodeByUserID 按会员ID获取节点
func (r *GormBinaryTreeRepository) GetNodeByUserID(userID uint) (*models.BinaryNode, error) {
	if userID == 0 {
		return nil, nil
	}
	var node models.BinaryNode
	if err := r.db.Where("user_id = ?", userID).First(&node).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &node, nil
}

// GetNodeByUserIDForUpdate 按会员ID加锁获取节点
func (r *GormBinaryTreeRepository) GetNodeByUserIDForUpdate(userID uint) (*models.BinaryNode, error) {
	if userID == 0 {
		return nil, nil
	}
	var node models.BinaryNode
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&node).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &node, nil
}

// GetNodeByID 按节点ID获取节点
func (r *GormBinaryTreeRepository) GetNodeByID(id uint) (*models.BinaryNode, error) {
	if id == 0 {
		return nil, nil
	}
	var node models.BinaryNode
	if err := r.db.First(&node, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &node, nil
}

// GetRoot 获取根节点
func (r *GormBinaryTreeRepository) GetRoot() (*models.BinaryNode, error) {
	var node models.BinaryNode
	if err := r.db.Where("parent_id IS NULL").Order("id asc").First(&node).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &node, nil
}

// ListChildren 获取子节点（左在前）
func (r *GormBinaryTreeRepository) ListChildren(parentID uint) ([]models.BinaryNode, error) {
	if parentID == 0 {
		return []models.BinaryNode{}, nil
	}
	var nodes []models.BinaryNode
	// left 按字典序排在 right 之前
	if err := r.db.Where("parent_id = ?", parentID).
		Order("side asc").
		Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

// CreateNode 创建节点（依赖 parent_id+side 唯一索引拒绝重复占位）
func (r *GormBinaryTreeRepository) CreateNode(node *models.BinaryNode) error {
	return r.db.Create(node).Error
}

// UpdateActivation 写入激活状态
func (r *GormBinaryTreeRepository) UpdateActivation(node *models.BinaryNode) error {
	if node == nil || node.ID == 0 {
		return nil
	}
	return r.db.Model(&models.BinaryNode{}).
		Where("id = ? AND activated = ?", node.ID, false).
		Updates(map[string]interface{}{
			"activated":                       node.Activated,
			"activation_timestamp":            node.ActivationTimestamp,
			"activation_node_id":              node.ActivationNodeID,
			"total_descendants_at_activation": node.TotalDescendantsAtActivation,
			"updated_at":                      time.Now().UTC(),
		}).Error
}

// UpdatePairCount 更新配对序号
func (r *GormBinaryTreeRepository) UpdatePairCount(userID uint, pairCount int) error {
	if userID == 0 {
		return nil
	}
	return r.db.Model(&models.BinaryNode{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"pair_count": pairCount,
			"updated_at": time.Now().UTC(),
		}).Error
}

// IncrementSideCount 对祖先节点的左/右区人数原子加一
func (r *GormBinaryTreeRepository) IncrementSideCount(userID uint, side string) error {
	column := "left_count"
	if side == constants.BinarySideRight {
		column = "right_count"
	}
	return r.db.Model(&models.BinaryNode{}).
		Where("user_id = ?", userID).
		UpdateColumn(column, incrementExpr(column, 1)).Error
}

// CreatePaths 批量写入闭包关系
func (r *GormBinaryTreeRepository) CreatePaths(paths []models.BinaryNodePath) error {
	if len(paths) == 0 {
		return nil
	}
	return r.db.Create(&paths).Error
}

// ListAncestorPaths 获取后代的全部祖先关系（近的在前）
func (r *GormBinaryTreeRepository) ListAncestorPaths(descendantUserID uint) ([]models.BinaryNodePath, error) {
	if descendantUserID == 0 {
		return []models.BinaryNodePath{}, nil
	}
	var paths []models.BinaryNodePath
	if err := r.db.Where("descendant_user_id = ?", descendantUserID).
		Order("depth asc").
		Find(&paths).Error; err != nil {
		return nil, err
	}
	return paths, nil
}

// ListEligibleDescendants 获取指定区内可配对的新会员
// 条件：创建时间不早于激活时间（同一时刻按节点ID不小于 sinceNodeID），且未被配对、未进入结转
func (r *GormBinaryTreeRepository) ListEligibleDescendants(ancestorUserID uint, side string, since time.Time, sinceNodeID uint, limit int) ([]models.BinaryNodePath, error) {
	if ancestorUserID == 0 {
		return []models.BinaryNodePath{}, nil
	}
	pairColumn := "left_user_id"
	if side == constants.BinarySideRight {
		pairColumn = "right_user_id"
	}
	query := r.db.Model(&models.BinaryNodePath{}).
		Where("binary_node_paths.ancestor_user_id = ? AND binary_node_paths.side = ?", ancestorUserID, side).
		Where("binary_node_paths.descendant_created_at >= ?", since.UTC())
	if sinceNodeID != 0 {
		query = query.Where("(binary_node_paths.descendant_created_at > ? OR EXISTS (SELECT 1 FROM binary_nodes WHERE binary_nodes.user_id = binary_node_paths.descendant_user_id AND binary_nodes.id >= ?))", since.UTC(), sinceNodeID)
	}
	query = query.
		Where("NOT EXISTS (SELECT 1 FROM binary_pairs WHERE binary_pairs.ancestor_user_id = binary_node_paths.ancestor_user_id AND binary_pairs."+pairColumn+" = binary_node_paths.descendant_user_id)").
		Where("NOT EXISTS (SELECT 1 FROM binary_carry_forward_members WHERE binary_carry_forward_members.ancestor_user_id = binary_node_paths.ancestor_user_id AND binary_carry_forward_members.member_user_id = binary_node_paths.descendant_user_id)").
		Order("binary_node_paths.descendant_created_at asc").
		Order("binary_node_paths.descendant_user_id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var paths []models.BinaryNodePath
	if err := query.Find(&paths).Error; err != nil {
		return nil, err
	}
	return paths, nil
}

// GetNthDescendantPath 按插入顺序获取第 n 个后代（n 从 1 开始）
func (r *GormBinaryTreeRepository) GetNthDescendantPath(ancestorUserID uint, n int64) (*models.BinaryNodePath, error) {
	if ancestorUserID == 0 || n <= 0 {
		return nil, nil
	}
	var path models.BinaryNodePath
	if err := r.db.Where("ancestor_user_id = ?", ancestorUserID).
		Order("descendant_created_at asc").
		Order("id asc").
		Offset(int(n - 1)).
		Limit(1).
		Take(&path).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &path, nil
}

// ListActivatedUserIDs 按会员ID游标批量获取已激活节点
func (r *GormBinaryTreeRepository) ListActivatedUserIDs(afterUserID uint, limit int) ([]uint, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []uint
	if err := r.db.Model(&models.BinaryNode{}).
		Where("activated = ? AND user_id > ?", true, afterUserID).
		Order("user_id asc").
		Limit(limit).
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ListActivationCandidates 获取人数已达阈值但未激活的节点
func (r *GormBinaryTreeRepository) ListActivationCandidates(threshold int64) ([]models.BinaryNode, error) {
	var nodes []models.BinaryNode
	if err := r.db.Where("activated = ? AND left_count + right_count >= ?", false, threshold).
		Order("user_id asc").
		Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

// ListNodes 分页查询节点
func (r *GormBinaryTreeRepository) ListNodes(filter BinaryNodeListFilter) ([]models.BinaryNode, int64, error) {
	query := r.db.Model(&models.BinaryNode{})
	if filter.SponsorUserID != 0 {
		query = query.Where("sponsor_user_id = ?", filter.SponsorUserID)
	}
	if filter.Activated != nil {
		query = query.Where("activated = ?", *filter.Activated)
	}
	return findPage[models.BinaryNode](query, filter.Page, filter.PageSize, "id desc")
}
