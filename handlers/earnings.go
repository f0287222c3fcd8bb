package handlers

import (
	"context"
	"net/http"

	"bidmarket/models"
	"bidmarket/utils"

	"github.com/gin-gonic/gin"
)

type EarningsReader interface {
	Get(ctx context.Context, providerID string) (*models.EarningsLedger, error)
}

type EarningsHandler struct {
	Ledger EarningsReader
}

func NewEarningsHandler(ledger EarningsReader) *EarningsHandler {
	return &EarningsHandler{Ledger: ledger}
}

// MyEarningsHandler returns the calling provider's ledger.
func (h *EarningsHandler) MyEarningsHandler(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	ledger, err := h.Ledger.Get(c.Request.Context(), actor.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger)
}
