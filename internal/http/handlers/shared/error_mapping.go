package shared

import (
	"errors"

	"github.com/evdist-next/internal/http/response"
	"github.com/evdist-next/internal/service"

	"github.com/gin-gonic/gin"
)

// MappedError 业务错误到接口响应的映射
type MappedError struct {
	Target error
	Code   int
	Key    string
}

// RespondMappedError 命中映射时返回对应错误，否则按兜底错误返回并记录原始错误
func RespondMappedError(c *gin.Context, err error, rules []MappedError, fallbackCode int, fallbackKey string) {
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			RespondError(c, rule.Code, rule.Key, nil)
			return
		}
	}
	RespondError(c, fallbackCode, fallbackKey, err)
}

// BinaryErrorRules 二元佣金业务错误映射
var BinaryErrorRules = []MappedError{
	{Target: service.ErrPlacementSponsorNotFound, Code: response.CodeBadRequest, Key: "error.sponsor_not_found"},
	{Target: service.ErrNodeExists, Code: response.CodeConflict, Key: "error.node_exists"},
	{Target: service.ErrTreeRootExists, Code: response.CodeConflict, Key: "error.root_exists"},
	{Target: service.ErrNodeNotFound, Code: response.CodeNotFound, Key: "error.node_not_found"},
	{Target: service.ErrNodeNotActivated, Code: response.CodeBadRequest, Key: "error.node_not_activated"},
	{Target: service.ErrPlacementSlotUnavailable, Code: response.CodeConflict, Key: "error.slot_unavailable"},
	{Target: service.ErrAlreadyProcessed, Code: response.CodeConflict, Key: "error.already_processed"},
	{Target: service.ErrInsufficientFunds, Code: response.CodeBadRequest, Key: "error.insufficient_funds"},
	{Target: service.ErrInvalidAmount, Code: response.CodeBadRequest, Key: "error.amount_invalid"},
	{Target: service.ErrInvalidReference, Code: response.CodeBadRequest, Key: "error.reference_invalid"},
	{Target: service.ErrWalletAccountNotFound, Code: response.CodeNotFound, Key: "error.wallet_not_found"},
	{Target: service.ErrMemberNotFound, Code: response.CodeNotFound, Key: "error.member_not_found"},
	{Target: service.ErrMemberExists, Code: response.CodeConflict, Key: "error.member_exists"},
	{Target: service.ErrMemberDisabled, Code: response.CodeBadRequest, Key: "error.member_disabled"},
	{Target: service.ErrMemberStatusInvalid, Code: response.CodeBadRequest, Key: "error.member_status_invalid"},
	{Target: service.ErrInvalidUsername, Code: response.CodeBadRequest, Key: "error.username_invalid"},
	{Target: service.ErrBookingNotFound, Code: response.CodeNotFound, Key: "error.booking_not_found"},
	{Target: service.ErrBookingStatusInvalid, Code: response.CodeBadRequest, Key: "error.booking_status"},
	{Target: service.ErrPaymentStatusInvalid, Code: response.CodeBadRequest, Key: "error.payment_status"},
	{Target: service.ErrReconcileTaskUnknown, Code: response.CodeBadRequest, Key: "error.reconcile_task"},
}

// RespondBinaryError 按二元佣金错误映射返回
func RespondBinaryError(c *gin.Context, err error) {
	RespondMappedError(c, err, BinaryErrorRules, response.CodeInternal, "error.internal")
}
