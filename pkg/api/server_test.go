package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/payment"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testWebhookSecret = "whsec_test"

// stubStore covers only the paths the handler tests exercise; the
// embedded interface panics loudly if a test wanders off them.
type stubStore struct {
	service.Store
	mu     sync.Mutex
	wallet *models.Wallet
	order  *models.Order
	user   *models.User
	admin  *models.User
}

func (s *stubStore) InTx(ctx context.Context, fn func(tx service.Store) error) error {
	return fn(s)
}

func (s *stubStore) GetWalletByUser(ctx context.Context, userID string) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wallet == nil || s.wallet.UserID != userID {
		return nil, service.ErrWalletNotFound
	}
	cp := *s.wallet
	return &cp, nil
}

func (s *stubStore) GetWalletForUpdate(ctx context.Context, userID string) (*models.Wallet, error) {
	return s.GetWalletByUser(ctx, userID)
}

func (s *stubStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order == nil || s.order.ID != orderID {
		return nil, service.ErrOrderNotFound
	}
	cp := *s.order
	return &cp, nil
}

func (s *stubStore) GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	return s.GetOrder(ctx, orderID)
}

func (s *stubStore) TransitionOrderStatus(ctx context.Context, orderID string, from, to models.PaymentStatus, paymentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order == nil || s.order.ID != orderID || s.order.PaymentStatus != from {
		return false, nil
	}
	s.order.PaymentStatus = to
	if paymentID != "" {
		s.order.PaymentID = paymentID
	}
	return true, nil
}

func (s *stubStore) DebitWalletBalances(ctx context.Context, userID string, referral, exchange int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wallet == nil || s.wallet.ReferralBalance < referral || s.wallet.ExchangeBalance < exchange {
		return false, nil
	}
	s.wallet.ReferralBalance -= referral
	s.wallet.ExchangeBalance -= exchange
	return true, nil
}

func (s *stubStore) DecrementStock(ctx context.Context, productID string, quantity int64) (bool, error) {
	return true, nil
}

func (s *stubStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	for _, u := range []*models.User{s.user, s.admin} {
		if u != nil && u.ID == userID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, service.ErrUserNotFound
}

type stubSessions struct {
	tokens map[string]string // token -> user id
}

func (s *stubSessions) GetSession(ctx context.Context, token string) (*repository.Session, error) {
	userID, ok := s.tokens[token]
	if !ok {
		return nil, service.ErrSessionNotFound
	}
	return &repository.Session{UserID: userID}, nil
}

type countingClaimer struct {
	mu     sync.Mutex
	claims int
}

func (c *countingClaimer) ClaimWebhookEvent(ctx context.Context, eventID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims++
	return true, nil
}

func (c *countingClaimer) ConfirmWebhookEvent(ctx context.Context, eventID string) error {
	return nil
}

func (c *countingClaimer) ReleaseWebhookEvent(ctx context.Context, eventID string) error {
	return nil
}

func (c *countingClaimer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claims
}

type stubAuditLog struct {
	audits []*repository.PaymentAudit
}

func (s *stubAuditLog) GetPaymentAudits(ctx context.Context, orderID string, limit int64) ([]*repository.PaymentAudit, error) {
	var out []*repository.PaymentAudit
	for _, a := range s.audits {
		if a.OrderID == orderID {
			out = append(out, a)
		}
	}
	return out, nil
}

type nopAuditor struct{}

func (nopAuditor) RecordPaymentAudit(ctx context.Context, action, orderID, paymentID string, data map[string]interface{}) error {
	return nil
}

type nopNotifier struct{}

func (nopNotifier) SendOrderConfirmation(user *models.User, order *models.Order, items []models.OrderItem) {
}

type serverFixture struct {
	server  *Server
	store   *stubStore
	claimer *countingClaimer
}

func newServerFixture(store *stubStore) *serverFixture {
	cfg := &config.Config{
		Razorpay: config.RazorpayConfig{
			KeySecret:     "key_secret",
			WebhookSecret: testWebhookSecret,
		},
		Payment: config.PaymentConfig{
			RedirectSuccessURL: "https://shop.example.com/payment/success",
			RedirectFailureURL: "https://shop.example.com/payment/failure",
		},
	}
	logger := zap.NewNop()
	claimer := &countingClaimer{}
	wallets := service.NewWalletLedger(store, logger)

	server := NewServer(cfg, logger, Deps{
		Store:    store,
		Sessions: &stubSessions{tokens: map[string]string{"tok-user": "u1", "tok-admin": "admin1"}},
		Audit:    nopAuditor{},
		AuditLog: &stubAuditLog{audits: []*repository.PaymentAudit{
			{Action: "payment_captured", OrderID: "o1", PaymentID: "pay_1"},
		}},
		Reconciler: service.NewReconciler(store, claimer, nopAuditor{}, nopNotifier{}, logger),
		Orders:     service.NewOrders(store),
		Wallets:    wallets,
	})
	server.SetupRoutes()
	return &serverFixture{server: server, store: store, claimer: claimer}
}

func (f *serverFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func signedWebhookRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/order/razorpay/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Razorpay-Signature", payment.SignPayload(testWebhookSecret, body))
	req.Header.Set("X-Razorpay-Event-Id", "evt_test_1")
	return req
}

func webhookBody(t *testing.T, event, status, orderID string, referral, exchange string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event": event,
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":     "pay_1",
					"status": status,
					"notes": map[string]string{
						"userId":           "u1",
						"orderId":          orderID,
						"referralDiscount": referral,
						"exchangeDiscount": exchange,
					},
				},
			},
		},
	})
	require.NoError(t, err)
	return body
}

func pendingOrderStore(t *testing.T, referralBalance int64) *stubStore {
	t.Helper()
	order := &models.Order{ID: "o1", UserID: "u1", TotalAmount: 5000,
		FinalAmount: 4500, PaymentStatus: models.PaymentPending}
	require.NoError(t, order.SetLineItems([]models.OrderItem{
		{ProductID: "p1", ProductName: "Widget", Quantity: 1, Price: 5000},
	}))
	return &stubStore{
		wallet: &models.Wallet{ID: "w1", UserID: "u1", ReferralBalance: referralBalance},
		order:  order,
		user:   &models.User{ID: "u1", Name: "Asha", Email: "asha@example.com"},
		admin:  &models.User{ID: "admin1", Name: "Root", Role: "admin"},
	}
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	f := newServerFixture(pendingOrderStore(t, 5000))
	body := webhookBody(t, "payment.captured", "captured", "o1", "500", "0")

	req := httptest.NewRequest(http.MethodPost, "/api/order/razorpay/webhook", bytes.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", "deadbeef")

	rec := f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.claimer.count(), "reconciler must not run on a bad signature")
	assert.Equal(t, models.PaymentPending, f.store.order.PaymentStatus)
}

func TestWebhookCaptureCompletesOrder(t *testing.T) {
	f := newServerFixture(pendingOrderStore(t, 5000))
	rec := f.do(signedWebhookRequest(t, webhookBody(t, "payment.captured", "captured", "o1", "500", "0")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Equal(t, models.PaymentCompleted, f.store.order.PaymentStatus)
	assert.Equal(t, int64(4500), f.store.wallet.ReferralBalance)
}

func TestWebhookDisparityReturns400(t *testing.T) {
	f := newServerFixture(pendingOrderStore(t, 100))
	rec := f.do(signedWebhookRequest(t, webhookBody(t, "payment.captured", "captured", "o1", "500", "0")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Insufficient referral balance")
	assert.Equal(t, models.PaymentReferralDisparity, f.store.order.PaymentStatus)
}

func TestWebhookUnknownOrderReturns400(t *testing.T) {
	f := newServerFixture(pendingOrderStore(t, 5000))
	rec := f.do(signedWebhookRequest(t, webhookBody(t, "payment.captured", "captured", "missing", "0", "0")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookMalformedBody(t *testing.T) {
	f := newServerFixture(pendingOrderStore(t, 5000))
	rec := f.do(signedWebhookRequest(t, []byte(`{"payload":{}}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentCallbackRedirects(t *testing.T) {
	f := newServerFixture(pendingOrderStore(t, 5000))

	t.Run("paid with valid signature", func(t *testing.T) {
		sig := payment.SignPayload("key_secret", []byte("plink_1|pay_1"))
		req := httptest.NewRequest(http.MethodGet,
			"/api/order/payment-callback?razorpay_payment_id=pay_1&razorpay_payment_link_id=plink_1&razorpay_payment_link_status=paid&razorpay_signature="+sig, nil)
		rec := f.do(req)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://shop.example.com/payment/success", rec.Header().Get("Location"))
	})

	t.Run("bad signature goes to failure page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/api/order/payment-callback?razorpay_payment_id=pay_1&razorpay_payment_link_id=plink_1&razorpay_payment_link_status=paid&razorpay_signature=bogus", nil)
		rec := f.do(req)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://shop.example.com/payment/failure", rec.Header().Get("Location"))
	})

	t.Run("unpaid goes to failure page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/order/payment-callback", nil)
		rec := f.do(req)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://shop.example.com/payment/failure", rec.Header().Get("Location"))
	})

	// The callback never mutates orders either way.
	assert.Equal(t, models.PaymentPending, f.store.order.PaymentStatus)
}

func TestAuthMiddleware(t *testing.T) {
	store := pendingOrderStore(t, 5000)
	f := newServerFixture(store)

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/wallet/get-wallet", nil)
		assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)
	})

	t.Run("unknown token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/wallet/get-wallet", nil)
		req.Header.Set("Authorization", "Bearer nope")
		assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)
	})

	t.Run("valid session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/wallet/get-wallet", nil)
		req.Header.Set("Authorization", "Bearer tok-user")
		rec := f.do(req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"referral_balance":5000`)
	})

	t.Run("non-admin blocked from admin route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/order/get-all-orders", nil)
		req.Header.Set("Authorization", "Bearer tok-user")
		assert.Equal(t, http.StatusForbidden, f.do(req).Code)
	})
}

func TestGetOrderAudits(t *testing.T) {
	f := newServerFixture(pendingOrderStore(t, 5000))

	req := httptest.NewRequest(http.MethodGet, "/api/order/get-order-audits/o1", nil)
	req.Header.Set("Authorization", "Bearer tok-admin")
	rec := f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "payment_captured")

	req = httptest.NewRequest(http.MethodGet, "/api/order/get-order-audits/o1", nil)
	req.Header.Set("Authorization", "Bearer tok-user")
	assert.Equal(t, http.StatusForbidden, f.do(req).Code)
}

func TestGetOrderAccess(t *testing.T) {
	store := pendingOrderStore(t, 5000)
	f := newServerFixture(store)

	req := httptest.NewRequest(http.MethodGet, "/api/order/get-order/o1", nil)
	req.Header.Set("Authorization", "Bearer tok-user")
	rec := f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"o1"`)

	req = httptest.NewRequest(http.MethodGet, "/api/order/get-order/missing", nil)
	req.Header.Set("Authorization", "Bearer tok-user")
	assert.Equal(t, http.StatusNotFound, f.do(req).Code)
}
