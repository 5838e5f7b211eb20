package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spooky-styles/orders-service/internal/apperrors"
	"github.com/spooky-styles/orders-service/internal/metrics"
	"github.com/spooky-styles/orders-service/internal/models"
	"github.com/spooky-styles/orders-service/internal/webhook"
)

// maxWebhookBody bounds inbound webhook payloads.
const maxWebhookBody = 1 << 20

// PaymentWebhook handles POST /payments/webhook. Verification runs before
// any business data is parsed; an unverified payload never reaches the
// reconciliation engine.
//
// Response policy: 400 for signature or payload problems, 503 only when a
// transient failure makes the provider's redelivery worthwhile, and 200
// for everything else - including duplicates and business failures, which
// are logged and surfaced out-of-band instead of triggering retry storms.
func (h *Handlers) PaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	signature := c.GetHeader(webhook.SignatureHeader)
	if err := h.verifier.Verify(payload, signature); err != nil {
		h.logger.Warn("webhook signature rejected", zap.Error(err))
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	event, err := webhook.ParseEvent(payload)
	if err != nil {
		h.logger.Warn("webhook payload rejected", zap.Error(err))
		metrics.WebhookEvents.WithLabelValues("unknown", "malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	switch event.Type {
	case webhook.EventPaymentSucceeded:
		h.handlePaymentSucceeded(c, event)
	case webhook.EventPaymentFailed, webhook.EventPaymentCanceled:
		h.handlePaymentFailed(c, event)
	default:
		// Unknown event types are acknowledged, not errors.
		metrics.WebhookEvents.WithLabelValues(event.Type, "ignored").Inc()
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

func (h *Handlers) handlePaymentSucceeded(c *gin.Context, event *webhook.Event) {
	intent := event.Intent()

	owner, err := models.OwnerFromMetadata(intent.Metadata)
	if err != nil {
		// Captured money with unusable metadata. Redelivery cannot fix
		// the payload, so acknowledge and leave it to manual handling.
		h.logger.Error("webhook intent metadata unusable",
			zap.String("payment_intent_id", intent.ID),
			zap.Error(err),
		)
		metrics.WebhookEvents.WithLabelValues(event.Type, "bad_metadata").Inc()
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	result, err := h.reconciler.Reconcile(c.Request.Context(), intent.ID, owner)
	if err != nil {
		if apperrors.IsRetryable(err) {
			metrics.WebhookEvents.WithLabelValues(event.Type, "retryable").Inc()
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
			return
		}
		// Business failure (orphaned payment): already logged and
		// published with full context. Retrying will not change it.
		metrics.WebhookEvents.WithLabelValues(event.Type, "orphaned").Inc()
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	outcome := "created"
	if result.Duplicate {
		outcome = "duplicate"
	}
	metrics.WebhookEvents.WithLabelValues(event.Type, outcome).Inc()
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handlers) handlePaymentFailed(c *gin.Context, event *webhook.Event) {
	err := h.orderService.CancelByPaymentIntent(c.Request.Context(), event.Data.Object.ID, event.Type)
	if err != nil {
		if apperrors.IsRetryable(err) {
			metrics.WebhookEvents.WithLabelValues(event.Type, "retryable").Inc()
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
			return
		}
		h.logger.Error("failed to cancel order for failed payment",
			zap.String("payment_intent_id", event.Data.Object.ID),
			zap.Error(err),
		)
	}

	metrics.WebhookEvents.WithLabelValues(event.Type, "handled").Inc()
	c.JSON(http.StatusOK, gin.H{"received": true})
}
