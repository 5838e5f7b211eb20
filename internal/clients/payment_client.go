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

// HTTPPaymentClient wraps the payment provider's intent API. No business
// logic lives here; it is a typed boundary around the external authority.
type HTTPPaymentClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPPaymentClient creates a payment provider client.
func NewHTTPPaymentClient(cfg config.ProviderConfig, logger *zap.Logger) *HTTPPaymentClient {
	return &HTTPPaymentClient{
		baseURL:   cfg.BaseURL,
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

type createIntentRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateIntent registers a pending payment with the provider.
func (c *HTTPPaymentClient) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*models.PaymentIntent, error) {
	body, err := json.Marshal(createIntentRequest{
		Amount:   amountCents,
		Currency: currency,
		Metadata: metadata,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/payment_intents", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("payment intent creation failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payment provider returned status %d", resp.StatusCode)
	}

	var intent models.PaymentIntent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, err
	}

	c.logger.Info("payment intent created with provider",
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount", amountCents),
	)
	return &intent, nil
}

// GetIntent retrieves the provider's current record of an intent.
func (c *HTTPPaymentClient) GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	url := fmt.Sprintf("%s/v1/payment_intents/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payment provider returned status %d", resp.StatusCode)
	}

	var intent models.PaymentIntent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, err
	}
	return &intent, nil
}
