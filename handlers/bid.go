package handlers

import (
	"net/http"

	"bidmarket/models"
	"bidmarket/services/bid"
	"bidmarket/utils"

	"github.com/gin-gonic/gin"
)

type BidHandler struct {
	Bids bid.BidService
}

func NewBidHandler(bids bid.BidService) *BidHandler {
	return &BidHandler{Bids: bids}
}

type bidStatusRequest struct {
	Status models.BidStatus `json:"status" binding:"required"`
}

func (h *BidHandler) CreateBidHandler(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var input models.BidInput
	if !bindJSON(c, &input) {
		return
	}
	created, err := h.Bids.Create(c.Request.Context(), actor, input)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *BidHandler) ChangeStatusHandler(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req bidStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.Bids.ChangeStatus(c.Request.Context(), actor, c.Param("id"), req.Status)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *BidHandler) CancelBidHandler(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req cancelRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	b, err := h.Bids.Cancel(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BidHandler) ListBidsHandler(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	list, err := h.Bids.ListForBooking(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bids": list})
}
