package models

import (
	"time"
)

// BinaryNode 二叉树节点（含激活状态）
type BinaryNode struct {
	ID                           uint       `gorm:"primarykey" json:"id"`                                          // 主键
	UserID                       uint       `gorm:"not null;uniqueIndex" json:"user_id"`                           // 会员ID
	ParentID                     *uint      `gorm:"index:idx_binary_node_slot,unique" json:"parent_id,omitempty"`  // 父节点ID（根节点为空）
	SponsorUserID                *uint      `gorm:"index" json:"sponsor_user_id,omitempty"`                        // 推荐人会员ID
	Side                         string     `gorm:"type:varchar(8);index:idx_binary_node_slot,unique" json:"side"` // 在父节点下的位置
	Depth                        int        `gorm:"not null;default:0" json:"depth"`                               // 深度（根为0）
	LeftCount                    int64      `gorm:"not null;default:0" json:"left_count"`                          // 左区累计人数
	RightCount                   int64      `gorm:"not null;default:0" json:"right_count"`                         // 右区累计人数
	Activated                    bool       `gorm:"not null;default:false;index" json:"activated"`                 // 是否已激活二元佣金
	ActivationTimestamp          *time.Time `json:"activation_timestamp,omitempty"`                                // 激活时间（触发激活的下级创建时间）
	ActivationNodeID             uint       `gorm:"not null;default:0" json:"activation_node_id"`                  // 触发激活的下级节点ID
	TotalDescendantsAtActivation int64      `gorm:"not null;default:0" json:"total_descendants_at_activation"`     // 激活时下级总数
	PairCount                    int        `gorm:"not null;default:0" json:"pair_count"`                          // 已使用的配对序号
	CreatedAt                    time.Time  `gorm:"index" json:"created_at"`                                       // 创建时间
	UpdatedAt                    time.Time  `json:"updated_at"`                                                    // 更新时间
}

// TableName 指定表名
func (BinaryNode) TableName() string {
	return "binary_nodes"
}

// TotalDescendants 返回左右区人数之和
func (n *BinaryNode) TotalDescendants() int64 {
	if n == nil {
		return 0
	}
	return n.LeftCount + n.RightCount
}

// BinaryNodePath 祖先-后代闭包关系
type BinaryNodePath struct {
	ID                  uint      `gorm:"primarykey" json:"id"`                                                                          // 主键
	AncestorUserID      uint      `gorm:"not null;index:idx_binary_path_pair,unique;index:idx_binary_path_side" json:"ancestor_user_id"` // 祖先会员ID
	DescendantUserID    uint      `gorm:"not null;index:idx_binary_path_pair,unique;index" json:"descendant_user_id"`                    // 后代会员ID
	Side                string    `gorm:"type:varchar(8);not null;index:idx_binary_path_side" json:"side"`                               // 后代所在祖先的区
	Depth               int       `gorm:"not null" json:"depth"`                                                                         // 相对深度
	DescendantCreatedAt time.Time `gorm:"not null;index:idx_binary_path_side" json:"descendant_created_at"`                              // 后代节点创建时间
	CreatedAt           time.Time `json:"created_at"`                                                                                    // 创建时间
}

// TableName 指定表名
func (BinaryNodePath) TableName() string {
	return "binary_node_paths"
}
