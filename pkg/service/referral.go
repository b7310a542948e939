package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"go.uber.org/zap"
)

var (
	ErrReferralExpired = errors.New("referral link expired")
	ErrSelfRedeem      = errors.New("cannot redeem your own referral link")
	ErrAlreadyRedeemed = errors.New("referral link already redeemed by this user")
)

const referralLinkTTL = 48 * time.Hour

// Referrals issues shareable credit links and redeems them into wallet
// balances through the ledger.
type Referrals struct {
	store   Store
	wallets *WalletLedger
	cfg     *config.PaymentConfig
	logger  *zap.Logger
}

func NewReferrals(store Store, wallets *WalletLedger, cfg *config.PaymentConfig, logger *zap.Logger) *Referrals {
	return &Referrals{store: store, wallets: wallets, cfg: cfg, logger: logger}
}

// Generate returns the user's referral link, minting one on first use and
// refreshing the expiry on reissue.
func (r *Referrals) Generate(ctx context.Context, userID string) (*models.Referral, error) {
	ref, err := r.store.GetReferralByCreator(ctx, userID)
	if err == nil {
		ref.ExpiresAt = time.Now().Add(referralLinkTTL)
		if err := r.store.SaveReferral(ctx, ref); err != nil {
			return nil, err
		}
		return ref, nil
	}
	if !errors.Is(err, ErrReferralNotFound) {
		return nil, err
	}

	linkID, err := r.freshLinkID(ctx)
	if err != nil {
		return nil, err
	}

	ref = &models.Referral{
		LinkID:    linkID,
		CreatedBy: userID,
		ExpiresAt: time.Now().Add(referralLinkTTL),
	}
	if err := r.store.CreateReferral(ctx, ref); err != nil {
		return nil, err
	}

	r.logger.Info("Referral link created",
		zap.String("user_id", userID),
		zap.String("link_id", linkID))
	return ref, nil
}

// Redeem credits both sides of a referral. Each user redeems a given link
// at most once and never their own.
func (r *Referrals) Redeem(ctx context.Context, userID, linkID string) error {
	ref, err := r.store.GetReferralByLink(ctx, linkID)
	if err != nil {
		return err
	}
	if ref.Expired(time.Now()) {
		return ErrReferralExpired
	}
	if ref.CreatedBy == userID {
		return ErrSelfRedeem
	}
	if ref.RedeemedByUser(userID) {
		return ErrAlreadyRedeemed
	}

	if err := ref.AddRedeemer(userID); err != nil {
		return fmt.Errorf("failed to record redeemer: %w", err)
	}
	if err := r.store.SaveReferral(ctx, ref); err != nil {
		return err
	}

	if _, err := r.wallets.AdjustBalance(ctx, ref.CreatedBy, models.ReferralBalance, r.cfg.ReferralReferrerAmount); err != nil {
		return fmt.Errorf("failed to credit referrer: %w", err)
	}
	if _, err := r.wallets.AdjustBalance(ctx, userID, models.ReferralBalance, r.cfg.ReferralRefereeAmount); err != nil {
		return fmt.Errorf("failed to credit referee: %w", err)
	}

	r.logger.Info("Referral redeemed",
		zap.String("link_id", linkID),
		zap.String("referrer", ref.CreatedBy),
		zap.String("referee", userID))
	return nil
}

func (r *Referrals) freshLinkID(ctx context.Context) (string, error) {
	for i := 0; i < 5; i++ {
		buf := make([]byte, 4)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		linkID := hex.EncodeToString(buf)
		if _, err := r.store.GetReferralByLink(ctx, linkID); errors.Is(err, ErrReferralNotFound) {
			return linkID, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", errors.New("failed to generate unique referral link id")
}
