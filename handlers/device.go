package handlers

import (
	"context"
	"errors"
	"net/http"

	userRepo "bidmarket/database/repository/user"
	"bidmarket/utils"

	"github.com/gin-gonic/gin"
)

// TokenStore saves the push token of a user's device.
type TokenStore interface {
	SetFCMToken(ctx context.Context, id, token string) error
}

type DeviceHandler struct {
	Users TokenStore
}

func NewDeviceHandler(users TokenStore) *DeviceHandler {
	return &DeviceHandler{Users: users}
}

type fcmTokenRequest struct {
	FCMToken string `json:"fcmToken" binding:"required,max=4096"`
}

// UpdateFCMTokenHandler registers the caller's device for push notifications.
func (h *DeviceHandler) UpdateFCMTokenHandler(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req fcmTokenRequest
	if !bindJSON(c, &req) {
		return
	}
	err := h.Users.SetFCMToken(c.Request.Context(), actor.ID, req.FCMToken)
	if errors.Is(err, userRepo.ErrNotFound) {
		utils.RespondError(c, utils.NotFound("user %s not found", actor.ID))
		return
	}
	if err != nil {
		utils.RespondError(c, utils.Internal(err, "failed to save device token"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Device token updated"})
}
