package handlers

import (
	"net/http"

	"bidmarket/middleware"
	"bidmarket/models"
	"bidmarket/utils"

	"github.com/gin-gonic/gin"
)

// HandlerBundle groups the endpoint handlers registered by routes.
type HandlerBundle struct {
	Booking  *BookingHandler
	Bid      *BidHandler
	Webhook  *WebhookHandler
	Earnings *EarningsHandler
	Device   *DeviceHandler
}

// actorOrAbort reads the caller set by the auth middleware.
func actorOrAbort(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse{Message: "Insufficient authorization"})
	}
	return actor, ok
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse{
			Message: "invalid input",
			Code:    string(utils.KindValidation),
			Details: err.Error(),
		})
		return false
	}
	return true
}
