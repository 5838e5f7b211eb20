package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spooky-styles/orders-service/internal/apperrors"
	"github.com/spooky-styles/orders-service/internal/config"
	"github.com/spooky-styles/orders-service/internal/models"
	"github.com/spooky-styles/orders-service/internal/repository"
	"github.com/spooky-styles/orders-service/internal/service"
	"github.com/spooky-styles/orders-service/internal/webhook"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubBackend is an in-memory stand-in for the Postgres store, covering
// every storage interface the services consume.
type stubBackend struct {
	mu       sync.Mutex
	orders   map[string]*models.Order
	byIntent map[string]*models.Order
	stock    map[int64]int
	carts    map[string][]models.CartLine
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		orders:   make(map[string]*models.Order),
		byIntent: make(map[string]*models.Order),
		stock:    make(map[int64]int),
		carts:    make(map[string][]models.CartLine),
	}
}

func cartKey(owner models.OwnerIdentity) string {
	if owner.IsGuest() {
		return "g:" + owner.GuestToken
	}
	return fmt.Sprintf("u:%d", owner.UserID)
}

func (b *stubBackend) GetByID(ctx context.Context, id string) (*models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.orders[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return order, nil
}

func (b *stubBackend) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.byIntent[paymentIntentID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return order, nil
}

func (b *stubBackend) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*models.Order
	for _, o := range b.orders {
		if o.UserID != nil && *o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (b *stubBackend) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.orders[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	order.Status = status
	return nil
}

func (b *stubBackend) Materialize(ctx context.Context, fn func(tx repository.MaterializeTx) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	tx := &stubTx{backend: b, stockDelta: make(map[int64]int)}
	if err := fn(tx); err != nil {
		return err
	}
	for _, order := range tx.inserted {
		b.orders[order.ID] = order
		b.byIntent[order.PaymentIntentID] = order
	}
	for productID, delta := range tx.stockDelta {
		b.stock[productID] -= delta
	}
	return nil
}

func (b *stubBackend) ReadCartSnapshot(ctx context.Context, owner models.OwnerIdentity) (*models.CartSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lines := b.carts[cartKey(owner)]
	if len(lines) == 0 {
		return nil, apperrors.ErrEmptyCart
	}
	return &models.CartSnapshot{Owner: owner, Lines: lines, CapturedAt: time.Now()}, nil
}

func (b *stubBackend) ClearCart(ctx context.Context, owner models.OwnerIdentity) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.carts, cartKey(owner))
	return nil
}

func (b *stubBackend) orderCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

type stubTx struct {
	backend    *stubBackend
	inserted   []*models.Order
	stockDelta map[int64]int
}

func (t *stubTx) InsertOrder(ctx context.Context, order *models.Order) error {
	if _, exists := t.backend.byIntent[order.PaymentIntentID]; exists {
		return apperrors.ErrDuplicatePayment
	}
	t.inserted = append(t.inserted, order)
	return nil
}

func (t *stubTx) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	return nil
}

func (t *stubTx) TryDecrement(ctx context.Context, productID int64, quantity int) (int, bool, error) {
	current, exists := t.backend.stock[productID]
	if !exists {
		return 0, false, apperrors.ErrNotFound
	}
	available := current - t.stockDelta[productID]
	if available < quantity {
		return available, false, nil
	}
	t.stockDelta[productID] += quantity
	return available - quantity, true, nil
}

type stubProvider struct {
	mu         sync.Mutex
	intents    map[string]*models.PaymentIntent
	seq        int
	lastAmount int64
}

func newStubProvider() *stubProvider {
	return &stubProvider{intents: make(map[string]*models.PaymentIntent)}
}

func (p *stubProvider) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*models.PaymentIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.lastAmount = amountCents
	intent := &models.PaymentIntent{
		ID:           fmt.Sprintf("pi_%d", p.seq),
		Amount:       amountCents,
		Currency:     currency,
		Status:       models.PaymentIntentPending,
		ClientSecret: fmt.Sprintf("pi_%d_secret_test", p.seq),
		Metadata:     metadata,
	}
	p.intents[intent.ID] = intent
	return intent, nil
}

func (p *stubProvider) GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[id]
	if !ok {
		return nil, fmt.Errorf("no such payment intent: %s", id)
	}
	return intent, nil
}

func (p *stubProvider) succeed(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intents[id].Status = models.PaymentIntentSucceeded
}

type fixture struct {
	backend  *stubBackend
	provider *stubProvider
	verifier *webhook.Verifier
	router   *gin.Engine
}

func newFixture() *fixture {
	backend := newStubBackend()
	provider := newStubProvider()
	logger := zap.NewNop()

	pricer := service.NewPricer(config.PricingConfig{
		Currency:           "USD",
		MemberDiscountBps:  500,
		GuestShippingCents: 999,
		MinimumChargeCents: 50,
	})
	engine := service.NewReconciliationEngine(backend, backend, pricer, nil, nil, logger)
	paymentService := service.NewPaymentService(provider, backend, pricer, engine, logger)
	orderService := service.NewOrderService(backend, nil, nil, logger)
	verifier := webhook.NewVerifier("whsec_test", 5*time.Minute)

	h := NewHandlers(paymentService, orderService, engine, verifier, nil, logger)

	router := gin.New()
	router.POST("/payments/webhook", h.PaymentWebhook)
	router.POST("/api/v1/payments/intent", h.CreatePaymentIntent)
	router.POST("/api/v1/payments/confirm", h.ConfirmPayment)
	router.POST("/api/v1/payments/complete", h.CompletePayment)
	router.GET("/api/v1/orders/:id", h.GetOrder)
	router.POST("/api/v1/orders/:id/status", h.UpdateOrderStatus)

	return &fixture{backend: backend, provider: provider, verifier: verifier, router: router}
}

func (f *fixture) post(path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) deliverSigned(payload []byte) *httptest.ResponseRecorder {
	return f.post("/payments/webhook", payload, map[string]string{
		webhook.SignatureHeader: f.verifier.Sign(time.Now().Unix(), payload),
	})
}

func succeededEvent(paymentIntentID string, metadata map[string]string) []byte {
	return eventPayload("payment_intent.succeeded", paymentIntentID, metadata)
}

func eventPayload(eventType, paymentIntentID string, metadata map[string]string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"id":   "evt_" + paymentIntentID,
		"type": eventType,
		"data": map[string]any{
			"object": map[string]any{
				"id":       paymentIntentID,
				"amount":   1900,
				"currency": "usd",
				"status":   "succeeded",
				"metadata": metadata,
			},
		},
	})
	return payload
}

func seedCart(f *fixture, owner models.OwnerIdentity) {
	f.backend.stock[1] = 5
	f.backend.carts[cartKey(owner)] = []models.CartLine{
		{ProductID: 1, Quantity: 2, UnitPrice: models.NewMoney(1000, "USD")},
	}
}

func TestPaymentWebhook_RejectsBadSignature(t *testing.T) {
	f := newFixture()
	owner := models.AuthenticatedOwner(42)
	seedCart(f, owner)

	payload := succeededEvent("pi_forged", owner.Metadata())
	w := f.post("/payments/webhook", payload, map[string]string{
		webhook.SignatureHeader: "t=1,v1=deadbeef",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, f.backend.orderCount(), "unverified payload must not create orders")
}

func TestPaymentWebhook_MissingSignature(t *testing.T) {
	f := newFixture()
	w := f.post("/payments/webhook", succeededEvent("pi_1", nil), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentWebhook_MalformedPayload(t *testing.T) {
	f := newFixture()
	payload := []byte(`{"not":"an event"}`)
	w := f.deliverSigned(payload)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentWebhook_CreatesOrderOnce(t *testing.T) {
	f := newFixture()
	owner := models.AuthenticatedOwner(42)
	seedCart(f, owner)
	payload := succeededEvent("pi_123", owner.Metadata())

	w := f.deliverSigned(payload)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"received":true`)
	require.Equal(t, 1, f.backend.orderCount())

	order, err := f.backend.GetByPaymentIntentID(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.Equal(t, int64(1900), order.Total.Amount)
	assert.Equal(t, 3, f.backend.stock[1])

	// Redelivery acks without a second order or decrement.
	w = f.deliverSigned(payload)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.backend.orderCount())
	assert.Equal(t, 3, f.backend.stock[1])
}

func TestPaymentWebhook_UnknownEventTypeAcked(t *testing.T) {
	f := newFixture()
	payload := eventPayload("charge.refunded", "pi_1", nil)
	w := f.deliverSigned(payload)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, f.backend.orderCount())
}

func TestPaymentWebhook_BadMetadataAcked(t *testing.T) {
	f := newFixture()
	payload := succeededEvent("pi_123", map[string]string{"user_id": "not-a-number"})
	w := f.deliverSigned(payload)

	// Redelivery cannot repair the payload, so it is acknowledged.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, f.backend.orderCount())
}

func TestPaymentWebhook_OrphanedPaymentAcked(t *testing.T) {
	f := newFixture()
	owner := models.AuthenticatedOwner(42)
	// No cart seeded: the payment has nothing to materialize.
	payload := succeededEvent("pi_123", owner.Metadata())
	w := f.deliverSigned(payload)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, f.backend.orderCount())
}

func TestPaymentWebhook_FailedPaymentCancelsOrder(t *testing.T) {
	f := newFixture()
	userID := int64(42)
	f.backend.orders["ord_1"] = &models.Order{
		ID:              "ord_1",
		UserID:          &userID,
		Status:          models.OrderStatusPending,
		PaymentIntentID: "pi_123",
	}
	f.backend.byIntent["pi_123"] = f.backend.orders["ord_1"]

	payload := eventPayload("payment_intent.payment_failed", "pi_123", nil)
	w := f.deliverSigned(payload)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OrderStatusCancelled, f.backend.orders["ord_1"].Status)
}

func TestPaymentWebhook_FailedPaymentWithoutOrderAcked(t *testing.T) {
	f := newFixture()
	payload := eventPayload("payment_intent.canceled", "pi_unknown", nil)
	w := f.deliverSigned(payload)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreatePaymentIntent_Authenticated(t *testing.T) {
	f := newFixture()
	owner := models.AuthenticatedOwner(42)
	seedCart(f, owner)

	w := f.post("/api/v1/payments/intent", []byte(`{"amount": 1}`), map[string]string{
		"X-User-ID": "42",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "clientSecret")
	// Client-supplied amount is ignored; the total comes from the cart.
	assert.Equal(t, int64(1900), f.provider.lastAmount)
}

func TestCreatePaymentIntent_GuestRequiresContact(t *testing.T) {
	f := newFixture()
	body := []byte(`{"amount": 2999, "guestInfo": {"email": "g@example.com"}}`)
	w := f.post("/api/v1/payments/intent", body, map[string]string{
		"X-Guest-Token": "tok_abc",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreatePaymentIntent_Guest(t *testing.T) {
	f := newFixture()
	body := []byte(`{
		"amount": 2999,
		"guestInfo": {
			"email": "ghost@example.com",
			"name": "Ghost Buyer",
			"address": {"line1": "13 Haunted Ln"}
		}
	}`)
	w := f.post("/api/v1/payments/intent", body, map[string]string{
		"X-Guest-Token": "tok_abc",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(2999), f.provider.lastAmount)
}

func TestCreatePaymentIntent_BelowMinimumCharge(t *testing.T) {
	f := newFixture()
	body := []byte(`{
		"amount": 25,
		"guestInfo": {
			"email": "ghost@example.com",
			"name": "Ghost Buyer",
			"address": {"line1": "13 Haunted Ln"}
		}
	}`)
	w := f.post("/api/v1/payments/intent", body, map[string]string{
		"X-Guest-Token": "tok_abc",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "minimum charge")
}

func TestCreatePaymentIntent_NoIdentity(t *testing.T) {
	f := newFixture()
	w := f.post("/api/v1/payments/intent", []byte(`{"amount": 100}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmPayment_NotSucceeded(t *testing.T) {
	f := newFixture()
	intent, err := f.provider.CreateIntent(context.Background(), 1900, "USD", nil)
	require.NoError(t, err)

	body := []byte(`{"paymentIntentId": "` + intent.ID + `"}`)
	w := f.post("/api/v1/payments/confirm", body, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "has not succeeded")
}

func TestCompletePayment_Idempotent(t *testing.T) {
	f := newFixture()
	owner := models.AuthenticatedOwner(42)
	seedCart(f, owner)

	intent, err := f.provider.CreateIntent(context.Background(), 1900, "USD", owner.Metadata())
	require.NoError(t, err)
	f.provider.succeed(intent.ID)

	body := []byte(`{"paymentIntentId": "` + intent.ID + `"}`)

	w := f.post("/api/v1/payments/complete", body, nil)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"duplicate":false`)
	assert.Equal(t, 1, f.backend.orderCount())

	w = f.post("/api/v1/payments/complete", body, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"duplicate":true`)
	assert.Equal(t, 1, f.backend.orderCount())
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord_missing", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateOrderStatus_InvalidTransition(t *testing.T) {
	f := newFixture()
	f.backend.orders["ord_1"] = &models.Order{ID: "ord_1", Status: models.OrderStatusDelivered}

	w := f.post("/api/v1/orders/ord_1/status", []byte(`{"status": "processing"}`), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdateOrderStatus_Valid(t *testing.T) {
	f := newFixture()
	f.backend.orders["ord_1"] = &models.Order{ID: "ord_1", Status: models.OrderStatusProcessing}

	w := f.post("/api/v1/orders/ord_1/status", []byte(`{"status": "shipped"}`), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.Contains(w.Body.String(), `"status":"shipped"`))
}
