package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/payment"
	"go.uber.org/zap"
)

var (
	ErrUnhandledEvent     = errors.New("unhandled webhook event type")
	ErrPaymentNotCaptured = errors.New("payment not captured")
)

// Outcome is what a webhook delivery did to the order.
type Outcome int

// The zero Outcome is deliberately unused so an outcome returned
// alongside an error can never read as a real result.
const (
	OutcomeCompleted Outcome = iota + 1
	OutcomeFailed
	OutcomeReferralDisparity
	OutcomeExchangeDisparity
	// OutcomeDuplicate covers redelivered events and orders already in a
	// terminal state; nothing was mutated.
	OutcomeDuplicate
)

// Reconciler consumes verified gateway webhook events and finalizes
// orders. The capture path runs in one transaction with the order and
// wallet rows locked, so a redelivered or concurrent capture event can
// never double-debit the wallet or double-decrement stock.
type Reconciler struct {
	store  Store
	events EventClaimer
	audit  Auditor
	notify Notifier
	logger *zap.Logger
}

func NewReconciler(store Store, events EventClaimer, audit Auditor, notify Notifier, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		events: events,
		audit:  audit,
		notify: notify,
		logger: logger,
	}
}

// HandleEvent processes one authenticated webhook delivery. Signature
// verification has happened upstream on the raw body. eventID is the
// gateway's delivery id, used to short-circuit byte-identical redeliveries;
// the order status guard below is the authoritative idempotency check.
func (r *Reconciler) HandleEvent(ctx context.Context, eventID string, evt *payment.Event) (Outcome, error) {
	claimed, err := r.events.ClaimWebhookEvent(ctx, eventID)
	if err != nil {
		// Redis being down must not stop reconciliation; the order
		// status guard still protects us.
		r.logger.Warn("Webhook event claim failed", zap.String("event_id", eventID), zap.Error(err))
		claimed = true
	} else if !claimed {
		r.logger.Info("Duplicate webhook delivery ignored", zap.String("event_id", eventID))
		return OutcomeDuplicate, nil
	}

	outcome, err := r.handle(ctx, evt)
	if claimed {
		if err != nil {
			// Give the gateway's retry a clean slate.
			if relErr := r.events.ReleaseWebhookEvent(ctx, eventID); relErr != nil {
				r.logger.Warn("Failed to release webhook event claim",
					zap.String("event_id", eventID), zap.Error(relErr))
			}
		} else if confErr := r.events.ConfirmWebhookEvent(ctx, eventID); confErr != nil {
			// Worst case the claim lapses early and a late redelivery
			// falls through to the order status guard.
			r.logger.Warn("Failed to confirm webhook event claim",
				zap.String("event_id", eventID), zap.Error(confErr))
		}
	}
	return outcome, err
}

func (r *Reconciler) handle(ctx context.Context, evt *payment.Event) (Outcome, error) {
	entity := evt.Payload.Payment.Entity
	notes, err := payment.ParseNotes(entity.Notes)
	if err != nil {
		return 0, err
	}

	// Both must exist before anything is mutated.
	if _, err := r.store.GetWalletByUser(ctx, notes.UserID); err != nil {
		return 0, err
	}
	order, err := r.store.GetOrder(ctx, notes.OrderID)
	if err != nil {
		return 0, err
	}

	switch evt.Event {
	case payment.EventPaymentCaptured:
		if entity.Status != payment.StatusCaptured {
			return 0, ErrPaymentNotCaptured
		}
		return r.reconcileCapture(ctx, order, entity.ID, notes)

	case payment.EventPaymentFailed:
		moved, err := r.store.TransitionOrderStatus(ctx, order.ID,
			models.PaymentPending, models.PaymentFailed, entity.ID)
		if err != nil {
			return 0, err
		}
		if !moved {
			return OutcomeDuplicate, nil
		}
		r.logger.Info("Payment failed, order updated",
			zap.String("order_id", order.ID),
			zap.String("payment_id", entity.ID))
		r.recordAudit("payment_failed", order.ID, entity.ID, nil)
		return OutcomeFailed, nil

	default:
		return 0, fmt.Errorf("%w: %s", ErrUnhandledEvent, evt.Event)
	}
}

// reconcileCapture applies a confirmed capture: debit the wallet, take the
// stock, complete the order. All of it commits or rolls back together; a
// stock shortfall aborts the whole delivery and leaves the order Pending.
func (r *Reconciler) reconcileCapture(ctx context.Context, order *models.Order, paymentID string, notes *payment.Notes) (Outcome, error) {
	var outcome Outcome

	err := r.store.InTx(ctx, func(tx Store) error {
		locked, err := tx.GetOrderForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		if locked.PaymentStatus.Terminal() {
			outcome = OutcomeDuplicate
			return nil
		}

		wallet, err := tx.GetWalletForUpdate(ctx, notes.UserID)
		if err != nil {
			return err
		}

		if wallet.ReferralBalance < notes.ReferralDiscount {
			if _, err := tx.TransitionOrderStatus(ctx, order.ID,
				models.PaymentPending, models.PaymentReferralDisparity, paymentID); err != nil {
				return err
			}
			outcome = OutcomeReferralDisparity
			return nil
		}
		if wallet.ExchangeBalance < notes.ExchangeDiscount {
			if _, err := tx.TransitionOrderStatus(ctx, order.ID,
				models.PaymentPending, models.PaymentExchangeDisparity, paymentID); err != nil {
				return err
			}
			outcome = OutcomeExchangeDisparity
			return nil
		}

		debited, err := tx.DebitWalletBalances(ctx, notes.UserID,
			notes.ReferralDiscount, notes.ExchangeDiscount)
		if err != nil {
			return err
		}
		if !debited {
			// Cannot happen while we hold the wallet row lock.
			return fmt.Errorf("wallet debit failed for user %s", notes.UserID)
		}

		items, err := locked.LineItems()
		if err != nil {
			return fmt.Errorf("failed to parse order line items: %w", err)
		}
		for _, item := range items {
			taken, err := tx.DecrementStock(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			if !taken {
				// Stock vanished between checkout and capture. Roll
				// everything back; the order must not complete.
				return fmt.Errorf("product %s stock vanished before capture: %w",
					item.ProductID, ErrInsufficientStock)
			}
		}

		moved, err := tx.TransitionOrderStatus(ctx, order.ID,
			models.PaymentPending, models.PaymentCompleted, paymentID)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("order %s left Pending during reconciliation", order.ID)
		}

		outcome = OutcomeCompleted
		return nil
	})
	if err != nil {
		r.recordAudit("capture_reconciliation_failed", order.ID, paymentID,
			map[string]interface{}{"error": err.Error()})
		return 0, err
	}

	switch outcome {
	case OutcomeCompleted:
		r.logger.Info("Payment captured successfully",
			zap.String("order_id", order.ID),
			zap.String("payment_id", paymentID))
		r.recordAudit("payment_captured", order.ID, paymentID, map[string]interface{}{
			"referral_discount": notes.ReferralDiscount,
			"exchange_discount": notes.ExchangeDiscount,
		})
		r.sendConfirmation(ctx, order, paymentID)

	case OutcomeReferralDisparity, OutcomeExchangeDisparity:
		r.logger.Warn("Wallet balance disparity at capture time",
			zap.String("order_id", order.ID),
			zap.String("payment_id", paymentID),
			zap.Int64("referral_discount", notes.ReferralDiscount),
			zap.Int64("exchange_discount", notes.ExchangeDiscount))
		r.recordAudit("balance_disparity", order.ID, paymentID, map[string]interface{}{
			"referral_discount": notes.ReferralDiscount,
			"exchange_discount": notes.ExchangeDiscount,
		})
	}

	return outcome, nil
}

func (r *Reconciler) sendConfirmation(ctx context.Context, order *models.Order, paymentID string) {
	user, err := r.store.GetUser(ctx, order.UserID)
	if err != nil {
		r.logger.Warn("Skipping order confirmation, user lookup failed",
			zap.String("order_id", order.ID), zap.Error(err))
		return
	}
	items, err := order.LineItems()
	if err != nil {
		r.logger.Warn("Skipping order confirmation, bad line items",
			zap.String("order_id", order.ID), zap.Error(err))
		return
	}

	confirmed := *order
	confirmed.PaymentStatus = models.PaymentCompleted
	confirmed.PaymentID = paymentID
	r.notify.SendOrderConfirmation(user, &confirmed, items)
}

func (r *Reconciler) recordAudit(action, orderID, paymentID string, data map[string]interface{}) {
	go func() {
		if err := r.audit.RecordPaymentAudit(context.Background(), action, orderID, paymentID, data); err != nil {
			r.logger.Warn("Failed to record payment audit",
				zap.String("action", action),
				zap.String("order_id", orderID),
				zap.Error(err))
		}
	}()
}

// IsClientError reports whether err is the webhook sender's fault and the
// delivery should be answered 400 without retrying server-side.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrWalletNotFound,
		ErrOrderNotFound,
		ErrUnhandledEvent,
		ErrPaymentNotCaptured,
		payment.ErrMissingUserID,
		payment.ErrMissingOrderID,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
