package service

import "errors"

// 树结构错误
var (
	ErrPlacementSponsorNotFound = errors.New("placement sponsor not found")
	ErrNodeExists               = errors.New("binary node already exists")
	ErrTreeRootExists           = errors.New("binary tree root already exists")
	ErrNodeNotFound             = errors.New("binary node not found")
	ErrNodeNotActivated         = errors.New("binary node not activated")
	ErrPlacementSlotUnavailable = errors.New("placement slot unavailable")
)

// 佣金与钱包错误
var (
	ErrAlreadyProcessed          = errors.New("already processed")
	ErrInsufficientFunds         = errors.New("insufficient funds")
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrInvalidReference          = errors.New("invalid ledger reference")
	ErrWalletAccountNotFound     = errors.New("wallet account not found")
	ErrWalletAccountCreateFailed = errors.New("wallet account create failed")
	ErrWalletAccountUpdateFailed = errors.New("wallet account update failed")
)

// 会员与预订错误
var (
	ErrMemberNotFound       = errors.New("member not found")
	ErrMemberExists         = errors.New("member already exists")
	ErrMemberDisabled       = errors.New("member disabled")
	ErrMemberStatusInvalid  = errors.New("member status invalid")
	ErrInvalidUsername      = errors.New("invalid username")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrBookingStatusInvalid = errors.New("booking status invalid")
	ErrPaymentStatusInvalid = errors.New("payment status invalid")
)

// 管理员鉴权错误
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAdminNotFound      = errors.New("admin not found")
	ErrJWTSecretMissing   = errors.New("jwt secret missing")
	ErrWeakPassword       = errors.New("weak password")
)
