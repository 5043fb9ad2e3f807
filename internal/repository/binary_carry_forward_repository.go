package repository

import (
	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/models"

	"gorm.io/gorm"
)

// BinaryCarryForwardRepository 结转数据访问接口
type BinaryCarryForwardRepository interface {
	Create(record *models.BinaryCarryForward) error
	ListActiveWithMembers(ancestorUserID uint, side string) ([]models.BinaryCarryForward, error)
	MarkMemberMatched(memberID uint, pairID uint) error
	AdvanceCursor(carryForwardID uint, matched int) error
	ListByAncestor(ancestorUserID uint) ([]models.BinaryCarryForward, error)
	WithTx(tx *gorm.DB) *GormBinaryCarryForwardRepository
}

// GormBinaryCarryForwardRepository GORM 结转仓储实现
type GormBinaryCarryForwardRepository struct {
	db *gorm.DB
}

// NewBinaryCarryForwardRepository 创建结转仓储
func NewBinaryCarryForwardRepository(db *gorm.DB) *GormBinaryCarryForwardRepository {
	return &GormBinaryCarryForwardRepository{db: db}
}

// WithTx 绑定事务
func (r *GormBinaryCarryForwardRepository) WithTx(tx *gorm.DB) *GormBinaryCarryForwardRepository {
	if tx == nil {
		return r
	}
	return &GormBinaryCarryForwardRepository{db: tx}
}

// Create 创建结转记录（连同会员明细）
func (r *GormBinaryCarryForwardRepository) Create(record *models.BinaryCarryForward) error {
	return r.db.Create(record).Error
}

// ListActiveWithMembers 获取某区未消耗完的结转记录，仅预加载未配对会员
func (r *GormBinaryCarryForwardRepository) ListActiveWithMembers(ancestorUserID uint, side string) ([]models.BinaryCarryForward, error) {
	var records []models.BinaryCarryForward
	if err := r.db.
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Where("matched = ?", false).Order("position asc")
		}).
		Where("ancestor_user_id = ? AND side = ? AND status = ?", ancestorUserID, side, constants.CarryForwardStatusActive).
		Order("carry_date asc").
		Order("id asc").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// MarkMemberMatched 标记结转会员已配对
func (r *GormBinaryCarryForwardRepository) MarkMemberMatched(memberID uint, pairID uint) error {
	return r.db.Model(&models.BinaryCarryForwardMember{}).
		Where("id = ? AND matched = ?", memberID, false).
		Updates(map[string]interface{}{
			"matched":         true,
			"matched_pair_id": pairID,
		}).Error
}

// AdvanceCursor 推进结转游标，全部消耗后置为 exhausted
func (r *GormBinaryCarryForwardRepository) AdvanceCursor(carryForwardID uint, matched int) error {
	if matched <= 0 {
		return nil
	}
	if err := r.db.Model(&models.BinaryCarryForward{}).
		Where("id = ?", carryForwardID).
		UpdateColumn("matched_count", incrementExpr("matched_count", int64(matched))).Error; err != nil {
		return err
	}
	return r.db.Model(&models.BinaryCarryForward{}).
		Where("id = ? AND matched_count >= member_count", carryForwardID).
		UpdateColumn("status", constants.CarryForwardStatusExhausted).Error
}

// ListByAncestor 获取祖先全部结转记录
func (r *GormBinaryCarryForwardRepository) ListByAncestor(ancestorUserID uint) ([]models.BinaryCarryForward, error) {
	var records []models.BinaryCarryForward
	if err := r.db.Preload("Members", func(db *gorm.DB) *gorm.DB {
		return db.Order("position asc")
	}).
		Where("ancestor_user_id = ?", ancestorUserID).
		Order("carry_date asc").
		Order("id asc").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
