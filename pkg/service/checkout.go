package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/payment"
	"go.uber.org/zap"
)

var ErrCartEmpty = errors.New("cart is empty")

// Checkout builds a Pending order from the user's cart and asks the
// gateway for a payment link. Wallet and stock are untouched until the
// capture webhook arrives.
type Checkout struct {
	store   Store
	carts   CartReader
	wallets *WalletLedger
	stock   *StockManager
	gateway PaymentGateway
	cfg     *config.PaymentConfig
	logger  *zap.Logger
}

func NewCheckout(store Store, carts CartReader, wallets *WalletLedger, stock *StockManager,
	gateway PaymentGateway, cfg *config.PaymentConfig, logger *zap.Logger) *Checkout {
	return &Checkout{
		store:   store,
		carts:   carts,
		wallets: wallets,
		stock:   stock,
		gateway: gateway,
		cfg:     cfg,
		logger:  logger,
	}
}

type CheckoutInput struct {
	ShippingAddress string `json:"shippingAddress"`
	BillingAddress  string `json:"billingAddress"`
	UseReferral     bool   `json:"useReferral"`
	UseExchange     bool   `json:"useExchange"`
	Gift            bool   `json:"gift"`
}

// CheckoutSummary is returned to the caller alongside the payment link.
// It is not persisted beyond the response.
type CheckoutSummary struct {
	OrderID          string             `json:"orderId"`
	UserID           string             `json:"userId"`
	Items            []models.OrderItem `json:"items"`
	TotalAmount      int64              `json:"totalAmount"`
	ReferralDiscount int64              `json:"referralDiscount"`
	ExchangeDiscount int64              `json:"exchangeDiscount"`
	FinalAmount      int64              `json:"finalAmount"`
	ShippingAddress  string             `json:"shippingAddress"`
	BillingAddress   string             `json:"billingAddress"`
	Gift             bool               `json:"gift"`
	PaymentLink      string             `json:"paymentLink"`
}

type CheckoutResult struct {
	PaymentLink string
	Order       *models.Order
	Summary     CheckoutSummary
}

// Checkout runs the orchestration: snapshot the cart, optimistically check
// stock, compute discounts against the wallet, persist a Pending order,
// then request the payment link. A gateway failure leaves the order
// Pending with no link issued; the reconciler never sees it unless the
// gateway actually created the payment.
func (c *Checkout) Checkout(ctx context.Context, user *models.User, in CheckoutInput) (*CheckoutResult, error) {
	cart, err := c.carts.GetCart(ctx, user.ID)
	if errors.Is(err, ErrCartNotFound) {
		return nil, ErrCartEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}
	if cart.Empty() {
		return nil, ErrCartEmpty
	}

	// Optimistic stock check; re-validated at capture time.
	items := make([]models.OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if _, err := c.stock.CheckAvailable(ctx, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, models.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.Price,
		})
	}

	wallet, err := c.wallets.GetOrCreate(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	var totalAmount int64
	for _, item := range items {
		totalAmount += item.Price
	}
	if in.Gift {
		totalAmount += c.cfg.GiftAmount
	}

	referralDiscount, exchangeDiscount := computeDiscounts(totalAmount, wallet,
		in.UseReferral, in.UseExchange, c.cfg.ReferralPercentageLimit)

	finalAmount := totalAmount - referralDiscount - exchangeDiscount
	if finalAmount < 0 {
		finalAmount = 0
	}

	order := &models.Order{
		UserID:           user.ID,
		TotalAmount:      totalAmount,
		ReferralDiscount: referralDiscount,
		ExchangeDiscount: exchangeDiscount,
		FinalAmount:      finalAmount,
		ShippingAddress:  in.ShippingAddress,
		BillingAddress:   in.BillingAddress,
		Gift:             in.Gift,
		PaymentStatus:    models.PaymentPending,
	}
	if err := order.SetLineItems(items); err != nil {
		return nil, fmt.Errorf("failed to serialize line items: %w", err)
	}
	if err := c.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	notes := payment.Notes{
		UserID:           user.ID,
		OrderID:          order.ID,
		ReferralDiscount: referralDiscount,
		ExchangeDiscount: exchangeDiscount,
	}
	link, err := c.gateway.CreatePaymentLink(ctx, &payment.LinkRequest{
		Amount:        finalAmount,
		Currency:      c.cfg.Currency,
		AcceptPartial: false,
		Customer: payment.Customer{
			Name:    user.Name,
			Contact: user.Phone,
			Email:   user.Email,
		},
		Notes:          notes.ToMap(),
		ReminderEnable: true,
		CallbackURL:    c.cfg.CallbackURL,
		CallbackMethod: "get",
	})
	if err != nil {
		// Orphaned Pending order; reconcilable out of band.
		c.logger.Error("Payment link creation failed",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create payment link: %w", err)
	}

	c.logger.Info("Checkout completed",
		zap.String("order_id", order.ID),
		zap.String("user_id", user.ID),
		zap.Int64("total_amount", totalAmount),
		zap.Int64("final_amount", finalAmount))

	return &CheckoutResult{
		PaymentLink: link.ShortURL,
		Order:       order,
		Summary: CheckoutSummary{
			OrderID:          order.ID,
			UserID:           user.ID,
			Items:            items,
			TotalAmount:      totalAmount,
			ReferralDiscount: referralDiscount,
			ExchangeDiscount: exchangeDiscount,
			FinalAmount:      finalAmount,
			ShippingAddress:  in.ShippingAddress,
			BillingAddress:   in.BillingAddress,
			Gift:             in.Gift,
			PaymentLink:      link.ShortURL,
		},
	}, nil
}

// computeDiscounts applies the wallet discount rules: exchange credit
// takes precedence and is mutually exclusive with referral credit, which
// is capped at a fraction of the total.
func computeDiscounts(totalAmount int64, wallet *models.Wallet, useReferral, useExchange bool, referralCap float64) (referral, exchange int64) {
	if useExchange {
		exchange = wallet.ExchangeBalance
		if exchange > totalAmount {
			exchange = totalAmount
		}
		return 0, exchange
	}
	if useReferral {
		limit := int64(float64(totalAmount) * referralCap)
		referral = wallet.ReferralBalance
		if referral > limit {
			referral = limit
		}
	}
	return referral, 0
}
