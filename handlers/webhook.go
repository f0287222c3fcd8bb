package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"bidmarket/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 65536

// WebhookProcessor verifies and applies one gateway event.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type WebhookHandler struct {
	Processor WebhookProcessor
	Logger    *zap.Logger
}

func NewWebhookHandler(p WebhookProcessor, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{Processor: p, Logger: logger.Named("webhook")}
}

// PaymentWebhookHandler answers 400 for a bad signature, 500 for failures the
// gateway should retry and 200 otherwise, duplicates included.
func (h *WebhookHandler) PaymentWebhookHandler(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, utils.ErrorResponse{Message: "payload too large"})
			return
		}
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse{Message: "could not read payload"})
		return
	}

	err = h.Processor.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case utils.IsKind(err, utils.KindValidation):
		h.Logger.Warn("webhook rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, utils.ErrorResponse{Message: "invalid webhook", Code: utils.CodeOf(err)})
	default:
		h.Logger.Error("webhook processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse{Message: "webhook processing failed"})
	}
}
