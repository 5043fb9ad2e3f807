package models

import (
	"time"
)

// Booking 预订合同（余额可被指定扣款类型扣减）
type Booking struct {
	ID                uint       `gorm:"primarykey" json:"id"`                                            // 主键
	BookingNo         string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"booking_no"`         // 预订单号
	UserID            uint       `gorm:"not null;index" json:"user_id"`                                   // 会员ID
	Status            string     `gorm:"type:varchar(16);not null;index" json:"status"`                   // 预订状态
	TotalAmount       Money      `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"`       // 应付总额
	TotalPaid         Money      `gorm:"type:decimal(20,2);not null;default:0" json:"total_paid"`         // 已付金额
	DeductionsApplied Money      `gorm:"type:decimal(20,2);not null;default:0" json:"deductions_applied"` // 已抵扣金额
	RemainingAmount   Money      `gorm:"type:decimal(20,2);not null;default:0" json:"remaining_amount"`   // 剩余应付
	CompletedAt       *time.Time `json:"completed_at,omitempty"`                                          // 完成时间
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`                                         // 创建时间
	UpdatedAt         time.Time  `json:"updated_at"`                                                      // 更新时间
}

// TableName 指定表名
func (Booking) TableName() string {
	return "bookings"
}

// BookingPayment 预订支付记录
type BookingPayment struct {
	ID        uint       `gorm:"primarykey" json:"id"`                                                   // 主键
	BookingID uint       `gorm:"not null;index" json:"booking_id"`                                       // 预订ID
	UserID    uint       `gorm:"not null;index:idx_booking_payment_user" json:"user_id"`                 // 会员ID
	Amount    Money      `gorm:"type:decimal(20,2);not null" json:"amount"`                              // 支付金额
	Status    string     `gorm:"type:varchar(16);not null;index:idx_booking_payment_user" json:"status"` // 支付状态
	Reference string     `gorm:"type:varchar(128);not null;uniqueIndex" json:"reference"`                // 支付参考号
	PaidAt    *time.Time `json:"paid_at,omitempty"`                                                      // 支付时间
	CreatedAt time.Time  `json:"created_at"`                                                             // 创建时间
}

// TableName 指定表名
func (BookingPayment) TableName() string {
	return "booking_payments"
}

// BookingDeduction 预订余额扣款流水（只追加）
type BookingDeduction struct {
	ID         uint      `gorm:"primarykey" json:"id"`                                    // 主键
	BookingID  uint      `gorm:"not null;default:0;index" json:"booking_id"`              // 预订ID（无有效预订时为0）
	UserID     uint      `gorm:"not null;index" json:"user_id"`                           // 会员ID
	Type       string    `gorm:"type:varchar(32);not null" json:"type"`                   // 扣款类型
	Amount     Money     `gorm:"type:decimal(20,2);not null" json:"amount"`               // 扣款金额
	Reference  string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"reference"` // 业务参考号（幂等）
	SourceType string    `gorm:"type:varchar(32)" json:"source_type"`                     // 来源类型
	SourceID   uint      `json:"source_id"`                                               // 来源ID
	Remark     string    `gorm:"type:varchar(255)" json:"remark"`                         // 备注
	CreatedAt  time.Time `gorm:"index" json:"created_at"`                                 // 创建时间
}

// TableName 指定表名
func (BookingDeduction) TableName() string {
	return "booking_deductions"
}
