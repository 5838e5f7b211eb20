package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/spooky-styles/orders-service/internal/config"
	"github.com/spooky-styles/orders-service/internal/models"
)

// HTTPNotificationClient sends order confirmations through the
// notification service. Callers treat delivery as best-effort.
type HTTPNotificationClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPNotificationClient creates a notification client.
func NewHTTPNotificationClient(cfg config.ServiceConfig, logger *zap.Logger) *HTTPNotificationClient {
	return &HTTPNotificationClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

type orderConfirmation struct {
	OrderID    string `json:"order_id"`
	UserID     *int64 `json:"user_id,omitempty"`
	GuestEmail string `json:"guest_email,omitempty"`
	TotalCents int64  `json:"total_cents"`
	Currency   string `json:"currency"`
}

// SendOrderConfirmation notifies the order owner that the order is placed.
func (c *HTTPNotificationClient) SendOrderConfirmation(ctx context.Context, order *models.Order) error {
	body, err := json.Marshal(orderConfirmation{
		OrderID:    order.ID,
		UserID:     order.UserID,
		GuestEmail: order.GuestEmail,
		TotalCents: order.Total.Amount,
		Currency:   order.Total.Currency,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v1/notifications/order-confirmation", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode)
	}

	c.logger.Info("order confirmation sent", zap.String("order_id", order.ID))
	return nil
}
