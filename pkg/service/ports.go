package service

import (
	"context"
	"errors"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/payment"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrWalletNotFound   = errors.New("wallet not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrReferralNotFound = errors.New("referral not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrCartNotFound     = errors.New("cart not found")
	ErrSessionNotFound  = errors.New("session not found")
)

// Store is the relational persistence boundary. Implementations must make
// DebitWalletBalances and DecrementStock atomic conditional updates, and
// InTx must give fn a Store whose writes commit or roll back together.
type Store interface {
	InTx(ctx context.Context, fn func(tx Store) error) error

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error)
	TransitionOrderStatus(ctx context.Context, orderID string, from, to models.PaymentStatus, paymentID string) (bool, error)
	ListOrders(ctx context.Context, userID string, page, pageSize int) ([]models.Order, int64, error)

	GetWalletByUser(ctx context.Context, userID string) (*models.Wallet, error)
	GetWalletForUpdate(ctx context.Context, userID string) (*models.Wallet, error)
	CreateWallet(ctx context.Context, wallet *models.Wallet) error
	AdjustWalletBalance(ctx context.Context, walletID string, field models.BalanceField, delta int64) error
	DebitWalletBalances(ctx context.Context, userID string, referral, exchange int64) (bool, error)
	SetWalletLocked(ctx context.Context, userID string, locked bool) error

	GetProduct(ctx context.Context, productID string) (*models.Product, error)
	DecrementStock(ctx context.Context, productID string, quantity int64) (bool, error)

	GetReferralByCreator(ctx context.Context, userID string) (*models.Referral, error)
	GetReferralByLink(ctx context.Context, linkID string) (*models.Referral, error)
	CreateReferral(ctx context.Context, ref *models.Referral) error
	SaveReferral(ctx context.Context, ref *models.Referral) error

	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// CartReader reads cart snapshots owned by the external cart service.
type CartReader interface {
	GetCart(ctx context.Context, userID string) (*models.Cart, error)
}

// EventClaimer deduplicates webhook deliveries by gateway event id. A
// claim is provisional until confirmed; failed deliveries release it so
// the gateway's retry is not mistaken for a duplicate.
type EventClaimer interface {
	ClaimWebhookEvent(ctx context.Context, eventID string) (bool, error)
	ConfirmWebhookEvent(ctx context.Context, eventID string) error
	ReleaseWebhookEvent(ctx context.Context, eventID string) error
}

// PaymentGateway creates hosted payment links; the notes round-trip back
// on the webhook.
type PaymentGateway interface {
	CreatePaymentLink(ctx context.Context, req *payment.LinkRequest) (*payment.PaymentLink, error)
}

// Auditor records payment and security events for operators. Failures are
// the caller's to swallow.
type Auditor interface {
	RecordPaymentAudit(ctx context.Context, action, orderID, paymentID string, data map[string]interface{}) error
}

// Notifier sends customer-facing notifications. Fire and forget; delivery
// failures never affect order state.
type Notifier interface {
	SendOrderConfirmation(user *models.User, order *models.Order, items []models.OrderItem)
}
