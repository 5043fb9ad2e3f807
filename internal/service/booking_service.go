package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/logger"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// activeBuyerStatuses 计入活跃买家判断的预订状态
var activeBuyerStatuses = []string{
	constants.BookingStatusActive,
	constants.BookingStatusCompleted,
}

// BookingCollaborator 佣金引擎依赖的预订/支付协作接口
type BookingCollaborator interface {
	HasSuccessfulPaymentTx(tx *gorm.DB, userID uint) (bool, error)
	IsActiveBuyerTx(tx *gorm.DB, userID uint) (bool, error)
	DebitTx(tx *gorm.DB, input BookingDebitInput) (*models.BookingDeduction, error)
}

// DirectCommissionDispatcher 支付成功后触发直推佣金
type DirectCommissionDispatcher interface {
	Dispatch(ctx context.Context, memberUserID uint) error
}

// BookingDebitInput 预订余额扣款输入
type BookingDebitInput struct {
	UserID     uint
	Amount     decimal.Decimal
	Type       string
	Reference  string
	SourceType string
	SourceID   uint
	Remark     string
}

// CreateBookingInput 创建预订输入
type CreateBookingInput struct {
	UserID      uint
	BookingNo   string
	TotalAmount decimal.Decimal
}

// RecordPaymentInput 记录支付输入
type RecordPaymentInput struct {
	BookingID uint
	Amount    decimal.Decimal
	Reference string
	Status    string
}

// BookingService 预订余额服务
type BookingService struct {
	bookingRepo        repository.BookingRepository
	memberRepo         repository.MemberRepository
	activeBuyerMinPaid decimal.Decimal
	dispatcher         DirectCommissionDispatcher
	now                func() time.Time
}

// NewBookingService 创建预订服务
func NewBookingService(bookingRepo repository.BookingRepository, memberRepo repository.MemberRepository, activeBuyerMinPaid decimal.Decimal) *BookingService {
	return &BookingService{
		bookingRepo:        bookingRepo,
		memberRepo:         memberRepo,
		activeBuyerMinPaid: activeBuyerMinPaid,
		now:                defaultNow,
	}
}

// SetDirectCommissionDispatcher 设置支付成功后的直推佣金触发器
func (s *BookingService) SetDirectCommissionDispatcher(dispatcher DirectCommissionDispatcher) {
	s.dispatcher = dispatcher
}

// HasSuccessfulPaymentTx 判断会员是否有成功支付
func (s *BookingService) HasSuccessfulPaymentTx(tx *gorm.DB, userID uint) (bool, error) {
	count, err := s.bookingRepo.WithTx(tx).CountSuccessfulPayments(userID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsActiveBuyerTx 判断会员累计实付是否达到活跃买家门槛
func (s *BookingService) IsActiveBuyerTx(tx *gorm.DB, userID uint) (bool, error) {
	paid, err := s.bookingRepo.WithTx(tx).SumPaidByStatuses(userID, activeBuyerStatuses)
	if err != nil {
		return false, err
	}
	return paid.GreaterThanOrEqual(s.activeBuyerMinPaid), nil
}

// DebitTx 从会员最早的有效预订扣减余额（按参考号幂等）
func (s *BookingService) DebitTx(tx *gorm.DB, input BookingDebitInput) (*models.BookingDeduction, error) {
	if input.UserID == 0 {
		return nil, ErrMemberNotFound
	}
	amount := input.Amount.Round(2)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return nil, ErrInvalidReference
	}
	repo := s.bookingRepo.WithTx(tx)
	existing, err := repo.GetDeductionByReference(reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, ErrAlreadyProcessed
	}

	booking, err := repo.GetOldestActiveForUpdate(input.UserID)
	if err != nil {
		return nil, err
	}
	deduction := &models.BookingDeduction{
		UserID:     input.UserID,
		Type:       input.Type,
		Amount:     models.NewMoneyFromDecimal(amount),
		Reference:  reference,
		SourceType: input.SourceType,
		SourceID:   input.SourceID,
		Remark:     strings.TrimSpace(input.Remark),
		CreatedAt:  s.now(),
	}
	if booking == nil {
		// 没有有效预订时仍记录扣款，避免金额丢失
		logger.Warnw("booking_debit_without_active_booking",
			"user_id", input.UserID,
			"reference", reference,
			"amount", amount.String(),
		)
	} else {
		deduction.BookingID = booking.ID
		booking.DeductionsApplied = models.NewMoneyFromDecimal(booking.DeductionsApplied.Decimal.Add(amount))
		booking.RemainingAmount = models.NewMoneyFromDecimal(remainingAmount(booking))
		now := s.now()
		if booking.RemainingAmount.Decimal.IsZero() {
			booking.Status = constants.BookingStatusCompleted
			booking.CompletedAt = &now
		}
		booking.UpdatedAt = now
		if err := repo.Update(booking); err != nil {
			return nil, err
		}
	}
	if err := repo.CreateDeduction(deduction); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyProcessed
		}
		return nil, err
	}
	return deduction, nil
}

// CreateBooking 创建预订
func (s *BookingService) CreateBooking(input CreateBookingInput) (*models.Booking, error) {
	if input.UserID == 0 {
		return nil, ErrMemberNotFound
	}
	total := input.TotalAmount.Round(2)
	if total.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	member, err := s.memberRepo.GetByID(input.UserID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrMemberNotFound
	}
	bookingNo := strings.TrimSpace(input.BookingNo)
	if bookingNo == "" {
		bookingNo = generateBookingNo()
	}
	now := s.now()
	booking := &models.Booking{
		BookingNo:         bookingNo,
		UserID:            input.UserID,
		Status:            constants.BookingStatusPending,
		TotalAmount:       models.NewMoneyFromDecimal(total),
		TotalPaid:         models.ZeroMoney(),
		DeductionsApplied: models.ZeroMoney(),
		RemainingAmount:   models.NewMoneyFromDecimal(total),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.bookingRepo.Create(booking); err != nil {
		return nil, err
	}
	return booking, nil
}

// RecordPayment 记录支付结果，成功支付计入预订并触发直推佣金
func (s *BookingService) RecordPayment(ctx context.Context, input RecordPaymentInput) (*models.BookingPayment, error) {
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return nil, ErrInvalidReference
	}
	amount := input.Amount.Round(2)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = constants.BookingPaymentStatusSuccess
	}
	switch status {
	case constants.BookingPaymentStatusSuccess, constants.BookingPaymentStatusFailed, constants.BookingPaymentStatusPending:
	default:
		return nil, ErrPaymentStatusInvalid
	}

	var payment *models.BookingPayment
	err := s.bookingRepo.Transaction(func(tx *gorm.DB) error {
		repo := s.bookingRepo.WithTx(tx.WithContext(ctxOrBackground(ctx)))
		existing, err := repo.GetPaymentByReference(reference)
		if err != nil {
			return err
		}
		if existing != nil {
			payment = existing
			return ErrAlreadyProcessed
		}
		booking, err := repo.GetByIDForUpdate(input.BookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return ErrBookingNotFound
		}
		if booking.Status == constants.BookingStatusCancelled || booking.Status == constants.BookingStatusCompleted {
			return ErrBookingStatusInvalid
		}
		now := s.now()
		payment = &models.BookingPayment{
			BookingID: booking.ID,
			UserID:    booking.UserID,
			Amount:    models.NewMoneyFromDecimal(amount),
			Status:    status,
			Reference: reference,
			CreatedAt: now,
		}
		if status == constants.BookingPaymentStatusSuccess {
			payment.PaidAt = &now
		}
		if err := repo.CreatePayment(payment); err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyProcessed
			}
			return err
		}
		if status != constants.BookingPaymentStatusSuccess {
			return nil
		}
		booking.TotalPaid = models.NewMoneyFromDecimal(booking.TotalPaid.Decimal.Add(amount))
		booking.RemainingAmount = models.NewMoneyFromDecimal(remainingAmount(booking))
		if booking.Status == constants.BookingStatusPending {
			booking.Status = constants.BookingStatusActive
		}
		if booking.RemainingAmount.Decimal.IsZero() {
			booking.Status = constants.BookingStatusCompleted
			booking.CompletedAt = &now
		}
		booking.UpdatedAt = now
		return repo.Update(booking)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			logger.Debugw("booking_payment_already_recorded", "reference", reference)
			if payment == nil || payment.ID == 0 {
				return s.bookingRepo.GetPaymentByReference(reference)
			}
			return payment, nil
		}
		return nil, err
	}

	if payment.Status == constants.BookingPaymentStatusSuccess && s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, payment.UserID); err != nil {
			logger.Warnw("booking_payment_direct_commission_dispatch_failed",
				"user_id", payment.UserID,
				"payment_id", payment.ID,
				"error", err,
			)
		}
	}
	return payment, nil
}

// GetBooking 获取预订
func (s *BookingService) GetBooking(id uint) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	return booking, nil
}

// ListBookings 分页查询预订
func (s *BookingService) ListBookings(filter repository.BookingListFilter) ([]models.Booking, int64, error) {
	return s.bookingRepo.List(filter)
}

// ListDeductions 查询会员的预订余额扣款
func (s *BookingService) ListDeductions(userID uint) ([]models.BookingDeduction, error) {
	return s.bookingRepo.ListDeductions(userID)
}

// remainingAmount 剩余应付 = max(0, 总额 - 已付 - 已抵扣)
func remainingAmount(booking *models.Booking) decimal.Decimal {
	remaining := booking.TotalAmount.Decimal.
		Sub(booking.TotalPaid.Decimal).
		Sub(booking.DeductionsApplied.Decimal)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining.Round(2)
}

func generateBookingNo() string {
	return fmt.Sprintf("BK%s%s", time.Now().UTC().Format("20060102"), strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10]))
}
