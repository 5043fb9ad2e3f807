package repository

import "time"

// MemberListFilter 查询会员列表的过滤条件
type MemberListFilter struct {
	Page     int
	PageSize int
	Keyword  string
	Status   string
}

// BinaryNodeListFilter 查询二叉树节点列表的过滤条件
type BinaryNodeListFilter struct {
	Page          int
	PageSize      int
	SponsorUserID uint
	Activated     *bool
}

// BinaryPairListFilter 查询配对记录列表的过滤条件
type BinaryPairListFilter struct {
	Page           int
	PageSize       int
	AncestorUserID uint
	Status         string
	PairDate       string
	Blocked        *bool
}

// WalletAccountListFilter 查询钱包账户列表的过滤条件
type WalletAccountListFilter struct {
	Page     int
	PageSize int
	UserID   uint
}

// WalletTransactionListFilter 查询钱包流水列表的过滤条件
type WalletTransactionListFilter struct {
	Page        int
	PageSize    int
	UserID      uint
	Type        string
	Direction   string
	SourceType  string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// BookingListFilter 查询预订列表的过滤条件
type BookingListFilter struct {
	Page     int
	PageSize int
	UserID   uint
	Status   string
}
