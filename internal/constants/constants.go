package constants

// 会员状态常量
const (
	MemberStatusActive   = "active"
	MemberStatusDisabled = "disabled"
)

// 二叉树位置常量
const (
	BinarySideLeft  = "left"
	BinarySideRight = "right"
)

// 配对状态常量
const (
	BinaryPairStatusMatched   = "matched"
	BinaryPairStatusProcessed = "processed"
)

// 配对佣金冻结原因
const (
	BinaryPairBlockedNotActiveBuyer = "not_active_buyer"
)

// 结转状态常量
const (
	CarryForwardStatusActive    = "active"
	CarryForwardStatusExhausted = "exhausted"
)

// 钱包交易类型常量
const (
	WalletTxnTypeDirectCommission = "DIRECT_USER_COMMISSION"
	WalletTxnTypePairCommission   = "BINARY_PAIR_COMMISSION"
	WalletTxnTypeActivationBonus  = "BINARY_INITIAL_BONUS"
	WalletTxnTypeTDSDeduction     = "TDS_DEDUCTION"
	WalletTxnTypeExtraDeduction   = "EXTRA_DEDUCTION"
	WalletTxnTypePayout           = "PAYOUT"
	WalletTxnTypeDeposit          = "DEPOSIT"
	WalletTxnTypeRefund           = "REFUND"
	WalletTxnTypeAdminAdjust      = "ADMIN_ADJUST"
)

// 钱包交易方向常量
const (
	WalletTxnDirectionIn  = "in"
	WalletTxnDirectionOut = "out"
)

// 钱包流水来源类型
const (
	WalletSourceDirect     = "direct_commission"
	WalletSourcePair       = "binary_pair"
	WalletSourceActivation = "activation"
	WalletSourceWithdraw   = "withdraw"
)

// 预订状态常量
const (
	BookingStatusPending   = "pending"
	BookingStatusActive    = "active"
	BookingStatusCompleted = "completed"
	BookingStatusCancelled = "cancelled"
)

// 预订支付状态常量
const (
	BookingPaymentStatusPending = "pending"
	BookingPaymentStatusSuccess = "success"
	BookingPaymentStatusFailed  = "failed"
)

// 队列与任务常量
const (
	QueueDefault               = "default"
	QueueCritical              = "critical"
	TaskBinaryMatchPairs       = "binary:match_pairs"
	TaskBinaryDirectCommission = "binary:direct_commission"
)
