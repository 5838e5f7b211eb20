package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spooky-styles/orders-service/internal/models"
)

type createIntentRequest struct {
	Amount    int64                `json:"amount"`
	GuestInfo *models.GuestContact `json:"guestInfo"`
}

// CreatePaymentIntent handles POST /api/v1/payments/intent.
//
// Authenticated users get the amount computed server-side from their cart;
// guests must supply the amount and complete contact details.
func (h *Handlers) CreatePaymentIntent(c *gin.Context) {
	var req createIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	owner, err := ownerFromRequest(c, req.GuestInfo)
	if err != nil {
		handleError(c, err)
		return
	}

	intent, err := h.paymentService.CreateIntent(c.Request.Context(), owner, req.Amount)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"clientSecret":    intent.ClientSecret,
		"paymentIntentId": intent.ID,
	})
}

type confirmPaymentRequest struct {
	PaymentIntentID string `json:"paymentIntentId" binding:"required"`
}

// ConfirmPayment handles POST /api/v1/payments/confirm. Returns the
// provider's current status; 400 while the payment has not succeeded.
func (h *Handlers) ConfirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paymentIntentId is required"})
		return
	}

	intent, err := h.paymentService.ConfirmIntent(c.Request.Context(), req.PaymentIntentID)
	if err != nil {
		handleError(c, err)
		return
	}

	if intent.Status != models.PaymentIntentSucceeded {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "payment has not succeeded",
			"status": intent.Status,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": intent.Status})
}

// CompletePayment handles POST /api/v1/payments/complete, the synchronous
// alternative to webhook delivery. Idempotent identically to the webhook
// path: a duplicate call returns the existing order.
func (h *Handlers) CompletePayment(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paymentIntentId is required"})
		return
	}

	result, err := h.paymentService.CompletePayment(c.Request.Context(), req.PaymentIntentID)
	if err != nil {
		handleError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}

	h.logger.Info("payment completed synchronously",
		zap.String("payment_intent_id", req.PaymentIntentID),
		zap.String("order_id", result.Order.ID),
		zap.Bool("duplicate", result.Duplicate),
	)

	c.JSON(status, gin.H{
		"order":     result.Order,
		"duplicate": result.Duplicate,
	})
}
