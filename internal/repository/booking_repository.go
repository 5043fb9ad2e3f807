package repository

import (
	"errors"
	"strings"

	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BookingRepository 预订数据访问接口
type BookingRepository interface {
	Create(booking *models.Booking) error
	Update(booking *models.Booking) error
	GetByID(id uint) (*models.Booking, error)
	GetByIDForUpdate(id uint) (*models.Booking, error)
	GetByBookingNo(bookingNo string) (*models.Booking, error)
	GetOldestActiveForUpdate(userID uint) (*models.Booking, error)
	SumPaidByStatuses(userID uint, statuses []string) (decimal.Decimal, error)
	List(filter BookingListFilter) ([]models.Booking, int64, error)
	CreatePayment(payment *models.BookingPayment) error
	GetPaymentByReference(reference string) (*models.BookingPayment, error)
	CountSuccessfulPayments(userID uint) (int64, error)
	ListUserIDsWithSuccessfulPayment() ([]uint, error)
	CreateDeduction(deduction *models.BookingDeduction) error
	GetDeductionByReference(reference string) (*models.BookingDeduction, error)
	ListDeductions(userID uint) ([]models.BookingDeduction, error)
	WithTx(tx *gorm.DB) *GormBookingRepository
	Transaction(fn func(tx *gorm.DB) error) error
}

// GormBookingRepository GORM 预订仓储实现
type GormBookingRepository struct {
	db *gorm.DB
}

// NewBookingRepository 创建预订仓储
func NewBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// WithTx 绑定事务
func (r *GormBookingRepository) WithTx(tx *gorm.DB) *GormBookingRepository {
	if tx == nil {
		return r
	}
	return &GormBookingRepository{db: tx}
}

// Transaction 执行事务
func (r *GormBookingRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// Create 创建预订
func (r *GormBookingRepository) Create(booking *models.Booking) error {
	return r.db.Create(booking).Error
}

// Update 更新预订
func (r *GormBookingRepository) Update(booking *models.Booking) error {
	return r.db.Save(booking).Error
}

// GetByID 根据 ID 获取预订
func (r *GormBookingRepository) GetByID(id uint) (*models.Booking, error) {
	if id == 0 {
		return nil, nil
	}
	var booking models.Booking
	if err := r.db.First(&booking, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}

// GetByIDForUpdate 根据 ID 加锁获取预订
func (r *GormBookingRepository) GetByIDForUpdate(id uint) (*models.Booking, error) {
	if id == 0 {
		return nil, nil
	}
	var booking models.Booking
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&booking, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}

// GetByBookingNo 根据预订单号获取预订
func (r *GormBookingRepository) GetByBookingNo(bookingNo string) (*models.Booking, error) {
	bookingNo = strings.TrimSpace(bookingNo)
	if bookingNo == "" {
		return nil, nil
	}
	var booking models.Booking
	if err := r.db.Where("booking_no = ?", bookingNo).First(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}

// GetOldestActiveForUpdate 加锁获取用户最早的有效预订
func (r *GormBookingRepository) GetOldestActiveForUpdate(userID uint) (*models.Booking, error) {
	if userID == 0 {
		return nil, nil
	}
	var booking models.Booking
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND status = ?", userID, constants.BookingStatusActive).
		Order("created_at asc").
		Order("id asc").
		First(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}

// SumPaidByStatuses 汇总指定状态预订的已付金额
func (r *GormBookingRepository) SumPaidByStatuses(userID uint, statuses []string) (decimal.Decimal, error) {
	if userID == 0 || len(statuses) == 0 {
		return decimal.Zero, nil
	}
	var rows []models.Booking
	if err := r.db.Model(&models.Booking{}).
		Select("total_paid").
		Where("user_id = ? AND status IN ?", userID, statuses).
		Find(&rows).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.TotalPaid.Decimal)
	}
	return total.Round(2), nil
}

// List 分页查询预订
func (r *GormBookingRepository) List(filter BookingListFilter) ([]models.Booking, int64, error) {
	query := r.db.Model(&models.Booking{})
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	return findPage[models.Booking](query, filter.Page, filter.PageSize, "id desc")
}

// CreatePayment 创建支付记录
func (r *GormBookingRepository) CreatePayment(payment *models.BookingPayment) error {
	return r.db.Create(payment).Error
}

// GetPaymentByReference 按支付参考号获取支付记录
func (r *GormBookingRepository) GetPaymentByReference(reference string) (*models.BookingPayment, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, nil
	}
	var payment models.BookingPayment
	if err := r.db.Where("reference = ?", reference).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// CountSuccessfulPayments 统计用户成功支付次数
func (r *GormBookingRepository) CountSuccessfulPayments(userID uint) (int64, error) {
	if userID == 0 {
		return 0, nil
	}
	var count int64
	if err := r.db.Model(&models.BookingPayment{}).
		Where("user_id = ? AND status = ?", userID, constants.BookingPaymentStatusSuccess).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListUserIDsWithSuccessfulPayment 获取存在成功支付的用户
func (r *GormBookingRepository) ListUserIDsWithSuccessfulPayment() ([]uint, error) {
	var ids []uint
	if err := r.db.Model(&models.BookingPayment{}).
		Where("status = ?", constants.BookingPaymentStatusSuccess).
		Distinct("user_id").
		Order("user_id asc").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// CreateDeduction 创建预订扣款流水
func (r *GormBookingRepository) CreateDeduction(deduction *models.BookingDeduction) error {
	return r.db.Create(deduction).Error
}

// GetDeductionByReference 按参考号获取预订扣款流水
func (r *GormBookingRepository) GetDeductionByReference(reference string) (*models.BookingDeduction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, nil
	}
	var deduction models.BookingDeduction
	if err := r.db.Where("reference = ?", reference).First(&deduction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &deduction, nil
}

// ListDeductions 获取用户全部预订扣款流水
func (r *GormBookingRepository) ListDeductions(userID uint) ([]models.BookingDeduction, error) {
	var deductions []models.BookingDeduction
	if err := r.db.Where("user_id = ?", userID).Order("id asc").Find(&deductions).Error; err != nil {
		return nil, err
	}
	return deductions, nil
}
