package admin

import (
	"strings"

	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/http/handlers/shared"
	"github.com/evdist-next/internal/http/response"
	"github.com/evdist-next/internal/repository"
	"github.com/evdist-next/internal/service"

	"github.com/gin-gonic/gin"
)

// ListBookings 预订列表
func (h *Handler) ListBookings(c *gin.Context) {
	page, pageSize := shared.QueryPagination(c)
	userID, ok := shared.ParseUintQuery(c, "user_id")
	if !ok {
		respondError(c, response.CodeBadRequest, "error.user_id_invalid", nil)
		return
	}
	bookings, total, err := h.BookingService.ListBookings(repository.BookingListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   userID,
		Status:   strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	response.SuccessWithPage(c, bookings, response.BuildPagination(page, pageSize, total))
}

type createBookingRequest struct {
	UserID      uint   `json:"user_id" binding:"required"`
	BookingNo   string `json:"booking_no" binding:"required"`
	TotalAmount string `json:"total_amount" binding:"required"`
}

// CreateBooking 创建预订
func (h *Handler) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount, ok := shared.ParseAmount(req.TotalAmount)
	if !ok {
		respondError(c, response.CodeBadRequest, "error.amount_invalid", nil)
		return
	}
	booking, err := h.BookingService.CreateBooking(service.CreateBookingInput{
		UserID:      req.UserID,
		BookingNo:   req.BookingNo,
		TotalAmount: amount,
	})
	if err != nil {
		shared.RespondBinaryError(c, err)
		return
	}
	response.Success(c, booking)
}

type recordPaymentRequest struct {
	Amount    string `json:"amount" binding:"required"`
	Reference string `json:"reference" binding:"required"`
	Status    string `json:"status"`
}

// RecordBookingPayment 记录预订支付
func (h *Handler) RecordBookingPayment(c *gin.Context) {
	bookingID, ok := shared.ParseUintParam(c, "id")
	if !ok {
		badRequest(c, nil)
		return
	}
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount, ok := shared.ParseAmount(req.Amount)
	if !ok {
		respondError(c, response.CodeBadRequest, "error.amount_invalid", nil)
		return
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status == "" {
		status = constants.BookingPaymentStatusSuccess
	}
	payment, err := h.BookingService.RecordPayment(c.Request.Context(), service.RecordPaymentInput{
		BookingID: bookingID,
		Amount:    amount,
		Reference: req.Reference,
		Status:    status,
	})
	if err != nil {
		shared.RespondBinaryError(c, err)
		return
	}
	shared.RequestLog(c).Infow("admin_booking_payment_recorded",
		"booking_id", bookingID,
		"payment_id", payment.ID,
		"status", payment.Status,
	)
	response.Success(c, payment)
}
