package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/storefront/pkg/models"
	"go.uber.org/zap"
)

// WalletLedger owns per-user balances. Wallets are created lazily on first
// access, so a missing wallet is never an error here.
type WalletLedger struct {
	store  Store
	logger *zap.Logger
}

func NewWalletLedger(store Store, logger *zap.Logger) *WalletLedger {
	return &WalletLedger{store: store, logger: logger}
}

// GetOrCreate returns the user's wallet, creating one with zero balances
// if none exists yet.
func (l *WalletLedger) GetOrCreate(ctx context.Context, userID string) (*models.Wallet, error) {
	wallet, err := l.store.GetWalletByUser(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	wallet = &models.Wallet{UserID: userID}
	if err := l.store.CreateWallet(ctx, wallet); err != nil {
		// lost a create race; the other writer's wallet is the one
		if existing, getErr := l.store.GetWalletByUser(ctx, userID); getErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	l.logger.Info("Wallet created", zap.String("user_id", userID))
	return wallet, nil
}

// AdjustBalance applies delta to one balance field, vivifying the wallet
// if needed. Credits are unclamped; debit callers must check balances
// themselves (the reconciler uses conditional debits instead).
func (l *WalletLedger) AdjustBalance(ctx context.Context, userID string, field models.BalanceField, delta int64) (*models.Wallet, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("invalid balance field: %s", field)
	}

	wallet, err := l.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := l.store.AdjustWalletBalance(ctx, wallet.ID, field, delta); err != nil {
		return nil, err
	}

	return l.store.GetWalletByUser(ctx, userID)
}

// Unlock clears the legacy lock flag. Kept as an operator escape hatch;
// nothing in the payment flow sets the flag anymore.
func (l *WalletLedger) Unlock(ctx context.Context, userID string) error {
	return l.store.SetWalletLocked(ctx, userID, false)
}
