package models

import (
	"time"
)

// Member 会员（树节点的归属用户）
type Member struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                     // 主键
	Username  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`    // 会员账号
	Status    string    `gorm:"type:varchar(16);not null;default:'active'" json:"status"` // 会员状态
	CreatedAt time.Time `gorm:"index" json:"created_at"`                                  // 创建时间
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`                                  // 更新时间
}

// TableName 指定表名
func (Member) TableName() string {
	return "members"
}
