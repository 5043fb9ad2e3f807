package repository

import (
	"errors"

	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BinaryPairRepository 配对记录数据访问接口
type BinaryPairRepository interface {
	Create(pair *models.BinaryPair) error
	Update(pair *models.BinaryPair) error
	GetByID(id uint) (*models.BinaryPair, error)
	CountByAncestorAndDate(ancestorUserID uint, pairDate string) (int64, error)
	ListBlockedForUpdate(ancestorUserID uint) ([]models.BinaryPair, error)
	ListBlockedAncestorIDs() ([]uint, error)
	List(filter BinaryPairListFilter) ([]models.BinaryPair, int64, error)
	WithTx(tx *gorm.DB) *GormBinaryPairRepository
	Transaction(fn func(tx *gorm.DB) error) error
}

// GormBinaryPairRepository GORM 配对仓储实现
type GormBinaryPairRepository struct {
	db *gorm.DB
}

// NewBinaryPairRepository 创建配对仓储
func NewBinaryPairRepository(db *gorm.DB) *GormBinaryPairRepository {
	return &GormBinaryPairRepository{db: db}
}

// WithTx 绑定事务
func (r *GormBinaryPairRepository) WithTx(tx *gorm.DB) *GormBinaryPairRepository {
	if tx == nil {
		return r
	}
	return &GormBinaryPairRepository{db: tx}
}

// Transaction 执行事务
func (r *GormBinaryPairRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// Create 创建配对记录
func (r *GormBinaryPairRepository) Create(pair *models.BinaryPair) error {
	return r.db.Create(pair).Error
}

// Update 更新配对记录
func (r *GormBinaryPairRepository) Update(pair *models.BinaryPair) error {
	return r.db.Save(pair).Error
}

// GetByID 根据 ID 获取配对记录
func (r *GormBinaryPairRepository) GetByID(id uint) (*models.BinaryPair, error) {
	if id == 0 {
		return nil, nil
	}
	var pair models.BinaryPair
	if err := r.db.First(&pair, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pair, nil
}

// CountByAncestorAndDate 统计祖先某日已配对数量
func (r *GormBinaryPairRepository) CountByAncestorAndDate(ancestorUserID uint, pairDate string) (int64, error) {
	var count int64
	if err := r.db.Model(&models.BinaryPair{}).
		Where("ancestor_user_id = ? AND pair_date = ?", ancestorUserID, pairDate).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListBlockedForUpdate 加锁获取被冻结且未入账的配对
func (r *GormBinaryPairRepository) ListBlockedForUpdate(ancestorUserID uint) ([]models.BinaryPair, error) {
	var pairs []models.BinaryPair
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("ancestor_user_id = ? AND commission_blocked = ? AND status = ?",
			ancestorUserID, true, constants.BinaryPairStatusMatched).
		Order("sequence asc").
		Find(&pairs).Error; err != nil {
		return nil, err
	}
	return pairs, nil
}

// ListBlockedAncestorIDs 获取存在冻结配对的祖先
func (r *GormBinaryPairRepository) ListBlockedAncestorIDs() ([]uint, error) {
	var ids []uint
	if err := r.db.Model(&models.BinaryPair{}).
		Where("commission_blocked = ? AND status = ?", true, constants.BinaryPairStatusMatched).
		Distinct("ancestor_user_id").
		Order("ancestor_user_id asc").
		Pluck("ancestor_user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// List 分页查询配对记录
func (r *GormBinaryPairRepository) List(filter BinaryPairListFilter) ([]models.BinaryPair, int64, error) {
	query := r.db.Model(&models.BinaryPair{})
	if filter.AncestorUserID != 0 {
		query = query.Where("ancestor_user_id = ?", filter.AncestorUserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PairDate != "" {
		query = query.Where("pair_date = ?", filter.PairDate)
	}
	if filter.Blocked != nil {
		query = query.Where("commission_blocked = ?", *filter.Blocked)
	}
	return findPage[models.BinaryPair](query, filter.Page, filter.PageSize, "sequence desc")
}
