package handlers

import (
	"context"
	"net/http"

	"bidmarket/models"
	"bidmarket/services/booking"
	"bidmarket/utils"

	"github.com/gin-gonic/gin"
)

// Transferer sends a completed booking's payout.
type Transferer interface {
	TransferToProvider(ctx context.Context, bookingID string) error
}

type BookingHandler struct {
	Bookings  booking.BookingService
	Transfers Transferer
}

func NewBookingHandler(bookings booking.BookingService, transfers Transferer) *BookingHandler {
	return &BookingHandler{Bookings: bookings, Transfers: transfers}
}

type acceptRequest struct {
	BidID         string               `json:"bidId" binding:"required"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod" binding:"required,oneof=CASH ONLINE"`
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type verifyCompletionRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *BookingHandler) CreateBookingHandler(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var draft models.BookingDraft
	if !bindJSON(c, &draft) {
		return
	}
	if draft.PaymentMethod == "" {
		draft.PaymentMethod = models.PaymentUnspecified
	}
	res, err := h.Bookings.Create(c.Request.Context(), actor, draft)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *BookingHandler) GetBookingHandler(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	b, err := h.Bookings.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) ListBookingsHandler(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	list, err := h.Bookings.ListForCustomer(c.Request.Context(), actor)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": list})
}

func (h *BookingHandler) AcceptBidHandler(c *gin.Context) {
	h.accept(c, false)
}

func (h *BookingHandler) ChangeBidHandler(c *gin.Context) {
	h.accept(c, true)
}

func (h *BookingHandler) accept(c *gin.Context, change bool) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req acceptRequest
	if !bindJSON(c, &req) {
		return
	}
	accept := h.Bookings.AcceptBid
	if change {
		accept = h.Bookings.ChangeAcceptedBid
	}
	res, err := accept(c.Request.Context(), actor, c.Param("id"), req.BidID, req.PaymentMethod)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *BookingHandler) CancelBookingHandler(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req cancelRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	b, err := h.Bookings.Cancel(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) VerifyCompletionHandler(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req verifyCompletionRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.Bookings.VerifyCompletionCode(c.Request.Context(), actor, c.Param("id"), req.Code)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) RefundHandler(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	b, err := h.Bookings.Refund(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// TransferHandler retries the payout of a booking by hand. Admin only.
func (h *BookingHandler) TransferHandler(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		utils.RespondError(c, utils.Forbidden("only admins can trigger payouts"))
		return
	}
	ctx := c.Request.Context()
	if err := h.Transfers.TransferToProvider(ctx, c.Param("id")); err != nil {
		utils.RespondError(c, err)
		return
	}
	b, err := h.Bookings.Get(ctx, actor, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
