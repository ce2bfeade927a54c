package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/botfleet/internal/billing"
	"github.com/prohmpiriya/botfleet/internal/dto"
	"github.com/prohmpiriya/botfleet/pkg/logger"
	"go.uber.org/zap"
)

// maxWebhookBody caps the notification body size
const maxWebhookBody = 1 << 20

// NotificationProcessor is the part of billing.Reconciler the webhook drives
type NotificationProcessor interface {
	VerifySignature(payload []byte, header string) error
	Process(ctx context.Context, payload []byte) (*billing.Outcome, error)
}

// WebhookHandler handles payment gateway notifications
type WebhookHandler struct {
	reconciler NotificationProcessor
	log        *logger.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(reconciler NotificationProcessor, log *logger.Logger) *WebhookHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WebhookHandler{reconciler: reconciler, log: log.Named("webhook")}
}

// Master handles subscription payment notifications
// POST /webhook/master
func (h *WebhookHandler) Master(c *gin.Context) {
	ctx := c.Request.Context()
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.WebhookResponse{Error: "failed to read body"})
		return
	}

	if err := h.reconciler.VerifySignature(payload, c.GetHeader("Stripe-Signature")); err != nil {
		h.log.WithContext(ctx).Warn("Rejected notification signature", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.WebhookResponse{Error: err.Error()})
		return
	}

	out, err := h.reconciler.Process(ctx, payload)
	if err != nil {
		status := webhookStatus(err)
		if status == http.StatusInternalServerError {
			h.log.WithContext(ctx).Error("Notification processing failed", zap.Error(err))
		} else {
			h.log.WithContext(ctx).Warn("Notification rejected", zap.Int("status", status), zap.Error(err))
		}
		c.JSON(status, dto.WebhookResponse{Error: err.Error()})
		return
	}

	if out.Ignored {
		c.JSON(http.StatusOK, dto.WebhookResponse{Ignored: true, Reason: out.Reason})
		return
	}
	c.JSON(http.StatusOK, dto.WebhookResponse{
		Success:       true,
		NewExpiration: out.NewExpiration.UTC().Format(time.RFC3339),
	})
}

func webhookStatus(err error) int {
	switch {
	case errors.Is(err, billing.ErrInvalidPayload),
		errors.Is(err, billing.ErrInvalidSignature),
		errors.Is(err, billing.ErrTenantUnresolved):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrTenantNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
