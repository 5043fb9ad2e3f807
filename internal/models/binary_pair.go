package models

import (
	"time"
)

// BinaryPair 二元配对佣金记录
type BinaryPair struct {
	ID                uint       `gorm:"primarykey" json:"id"`                                                                                                                                                   // 主键
	AncestorUserID    uint       `gorm:"not null;index;index:idx_binary_pair_left,unique;index:idx_binary_pair_right,unique;index:idx_binary_pair_seq,unique;index:idx_binary_pair_day" json:"ancestor_user_id"` // 获得佣金的祖先会员ID
	LeftUserID        uint       `gorm:"not null;index:idx_binary_pair_left,unique" json:"left_user_id"`                                                                                                         // 左区会员ID
	RightUserID       uint       `gorm:"not null;index:idx_binary_pair_right,unique" json:"right_user_id"`                                                                                                       // 右区会员ID
	Sequence          int        `gorm:"not null;index:idx_binary_pair_seq,unique" json:"sequence"`                                                                                                              // 配对序号（从1开始）
	GrossAmount       Money      `gorm:"type:decimal(20,2);not null;default:0" json:"gross_amount"`                                                                                                              // 佣金总额
	TaxAmount         Money      `gorm:"type:decimal(20,2);not null;default:0" json:"tax_amount"`                                                                                                                // TDS 代扣
	ExtraAmount       Money      `gorm:"type:decimal(20,2);not null;default:0" json:"extra_amount"`                                                                                                              // 额外扣款
	NetAmount         Money      `gorm:"type:decimal(20,2);not null;default:0" json:"net_amount"`                                                                                                                // 实际入账
	CommissionBlocked bool       `gorm:"not null;default:false;index" json:"commission_blocked"`                                                                                                                 // 是否冻结佣金
	BlockedReason     string     `gorm:"type:varchar(64)" json:"blocked_reason,omitempty"`                                                                                                                       // 冻结原因
	UsedCarryForward  bool       `gorm:"not null;default:false" json:"used_carry_forward"`                                                                                                                       // 是否使用结转会员
	PairDate          string     `gorm:"type:varchar(10);not null;index:idx_binary_pair_day" json:"pair_date"`                                                                                                   // 配对日期（业务时区）
	Status            string     `gorm:"type:varchar(16);not null;index" json:"status"`                                                                                                                          // 处理状态
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`                                                                                                                                                 // 入账时间
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`                                                                                                                                                // 创建时间
	UpdatedAt         time.Time  `json:"updated_at"`                                                                                                                                                             // 更新时间
}

// TableName 指定表名
func (BinaryPair) TableName() string {
	return "binary_pairs"
}

// BinaryCarryForward 每日封顶后的结转记录
type BinaryCarryForward struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                              // 主键
	AncestorUserID uint      `gorm:"not null;index:idx_binary_cf_owner" json:"ancestor_user_id"`        // 祖先会员ID
	Side           string    `gorm:"type:varchar(8);not null;index:idx_binary_cf_owner" json:"side"`    // 结转区
	CarryDate      string    `gorm:"type:varchar(10);not null;index" json:"carry_date"`                 // 结转日期
	MemberCount    int       `gorm:"not null;default:0" json:"member_count"`                            // 结转人数
	MatchedCount   int       `gorm:"not null;default:0" json:"matched_count"`                           // 已配对人数（游标）
	Status         string    `gorm:"type:varchar(16);not null;index:idx_binary_cf_owner" json:"status"` // 状态
	CreatedAt      time.Time `json:"created_at"`                                                        // 创建时间
	UpdatedAt      time.Time `json:"updated_at"`                                                        // 更新时间

	Members []BinaryCarryForwardMember `gorm:"foreignKey:CarryForwardID" json:"members,omitempty"` // 结转会员
}

// TableName 指定表名
func (BinaryCarryForward) TableName() string {
	return "binary_carry_forwards"
}

// BinaryCarryForwardMember 结转会员明细
type BinaryCarryForwardMember struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                               // 主键
	CarryForwardID uint      `gorm:"not null;index" json:"carry_forward_id"`                             // 结转记录ID
	AncestorUserID uint      `gorm:"not null;index:idx_binary_cf_member,unique" json:"ancestor_user_id"` // 祖先会员ID
	MemberUserID   uint      `gorm:"not null;index:idx_binary_cf_member,unique" json:"member_user_id"`   // 结转会员ID
	Position       int       `gorm:"not null" json:"position"`                                           // 队列位置
	Matched        bool      `gorm:"not null;default:false;index" json:"matched"`                        // 是否已配对
	MatchedPairID  *uint     `json:"matched_pair_id,omitempty"`                                          // 配对记录ID
	CreatedAt      time.Time `json:"created_at"`                                                         // 创建时间
}

// TableName 指定表名
func (BinaryCarryForwardMember) TableName() string {
	return "binary_carry_forward_members"
}
