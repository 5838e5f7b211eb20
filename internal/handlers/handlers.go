package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spooky-styles/orders-service/internal/apperrors"
	"github.com/spooky-styles/orders-service/internal/models"
	"github.com/spooky-styles/orders-service/internal/repository"
	"github.com/spooky-styles/orders-service/internal/service"
	"github.com/spooky-styles/orders-service/internal/webhook"
)

// Handlers holds the HTTP handlers for the orders service.
type Handlers struct {
	paymentService *service.PaymentService
	orderService   *service.OrderService
	reconciler     *service.ReconciliationEngine
	verifier       *webhook.Verifier
	store          *repository.Store
	logger         *zap.Logger
}

// NewHandlers creates a handlers instance.
func NewHandlers(
	paymentService *service.PaymentService,
	orderService *service.OrderService,
	reconciler *service.ReconciliationEngine,
	verifier *webhook.Verifier,
	store *repository.Store,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		paymentService: paymentService,
		orderService:   orderService,
		reconciler:     reconciler,
		verifier:       verifier,
		store:          store,
		logger:         logger,
	}
}

// ownerFromRequest builds the owner identity from gateway headers. The
// routing layer upstream authenticates users and forwards the id; guests
// carry their session token.
func ownerFromRequest(c *gin.Context, guest *models.GuestContact) (models.OwnerIdentity, error) {
	if raw := c.GetHeader("X-User-ID"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			return models.OwnerIdentity{}, apperrors.NewValidationError("X-User-ID", "invalid user id")
		}
		return models.AuthenticatedOwner(userID), nil
	}

	token := c.GetHeader("X-Guest-Token")
	if token == "" {
		return models.OwnerIdentity{}, apperrors.NewValidationError("X-Guest-Token", "guest requests require a session token")
	}
	return models.GuestOwner(token, guest), nil
}

// handleError maps service errors to HTTP responses.
func handleError(c *gin.Context, err error) {
	var validationErr *apperrors.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
		return
	}

	var orphanErr *apperrors.OrphanedPaymentError
	if errors.As(err, &orphanErr) {
		// Payment captured, no order. The client cannot fix this by
		// retrying; support reconciles it manually.
		c.JSON(http.StatusConflict, gin.H{
			"error":             "payment captured but order could not be created; support has been notified",
			"payment_intent_id": orphanErr.PaymentIntentID,
		})
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, apperrors.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cart is empty"})
	case errors.Is(err, apperrors.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid order status transition"})
	case apperrors.IsRetryable(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry later"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
