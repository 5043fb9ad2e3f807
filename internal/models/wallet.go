package models

import (
	"time"
)

// WalletAccount 钱包账户（由流水汇总得出的投影）
type WalletAccount struct {
	ID                uint      `gorm:"primarykey" json:"id"`                                         // 主键
	UserID            uint      `gorm:"not null;uniqueIndex" json:"user_id"`                          // 会员ID
	Balance           Money     `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`         // 可用余额
	TotalEarned       Money     `gorm:"type:decimal(20,2);not null;default:0" json:"total_earned"`    // 累计收益
	TotalWithdrawn    Money     `gorm:"type:decimal(20,2);not null;default:0" json:"total_withdrawn"` // 累计提现
	LastTransactionID uint      `gorm:"not null;default:0" json:"last_transaction_id"`                // 最后处理的流水ID
	CreatedAt         time.Time `json:"created_at"`                                                   // 创建时间
	UpdatedAt         time.Time `json:"updated_at"`                                                   // 更新时间
}

// TableName 指定表名
func (WalletAccount) TableName() string {
	return "wallet_accounts"
}

// WalletTransaction 钱包流水（只追加）
type WalletTransaction struct {
	ID         uint      `gorm:"primarykey" json:"id"`                                                 // 主键
	UserID     uint      `gorm:"not null;index:idx_wallet_txn_user_type" json:"user_id"`               // 会员ID
	Type       string    `gorm:"type:varchar(32);not null;index:idx_wallet_txn_user_type" json:"type"` // 流水类型
	Direction  string    `gorm:"type:varchar(8);not null" json:"direction"`                            // 资金方向
	Amount     Money     `gorm:"type:decimal(20,2);not null" json:"amount"`                            // 带符号金额
	Reference  string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"reference"`              // 业务参考号（幂等）
	SourceType string    `gorm:"type:varchar(32);index:idx_wallet_txn_source" json:"source_type"`      // 来源类型
	SourceID   uint      `gorm:"index:idx_wallet_txn_source" json:"source_id"`                         // 来源ID
	Remark     string    `gorm:"type:varchar(255)" json:"remark"`                                      // 备注
	CreatedAt  time.Time `gorm:"index" json:"created_at"`                                              // 创建时间
}

// TableName 指定表名
func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
