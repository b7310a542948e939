package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/service"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the MySQL-backed persistence layer. Wallet debits and stock
// decrements are conditional updates so concurrent reconciliations can
// never drive a balance or a stock count negative.
type Store struct {
	db *gorm.DB
}

func NewStore(cfg *config.MySQLConfig) (*Store, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Wallet{},
		&models.Order{},
		&models.Referral{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wires an existing gorm handle, used by transactions.
func NewStoreWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// InTx runs fn against a Store bound to a single transaction. A non-nil
// error from fn rolls back everything.
func (s *Store) InTx(ctx context.Context, fn func(tx service.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStoreWithDB(tx))
	})
}

var _ service.Store = (*Store)(nil)

// --- orders ---

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(order).Error
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, service.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// GetOrderForUpdate loads an order under a row lock. Only meaningful
// inside InTx; concurrent webhook deliveries for the same order serialize
// here.
func (s *Store) GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, service.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// TransitionOrderStatus moves an order out of `from` into `to`, recording
// the gateway payment id when known. Returns false without error when the
// order was not in `from`, which is how duplicate webhook deliveries are
// detected.
func (s *Store) TransitionOrderStatus(ctx context.Context, orderID string, from, to models.PaymentStatus, paymentID string) (bool, error) {
	updates := map[string]interface{}{
		"payment_status": to,
		"updated_at":     time.Now(),
	}
	if paymentID != "" {
		updates["payment_id"] = paymentID
	}

	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ListOrders(ctx context.Context, userID string, page, pageSize int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Order{})
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// --- wallets ---

func (s *Store) GetWalletByUser(ctx context.Context, userID string) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, service.ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// GetWalletForUpdate loads a wallet under a row lock so a balance check
// and the following debit see the same state. Only meaningful inside InTx.
func (s *Store) GetWalletForUpdate(ctx context.Context, userID string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, service.ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func (s *Store) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	if wallet.ID == "" {
		wallet.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(wallet).Error
}

// AdjustWalletBalance applies delta to one balance field. Credits are
// unclamped; debit callers are responsible for balance checks.
func (s *Store) AdjustWalletBalance(ctx context.Context, walletID string, field models.BalanceField, delta int64) error {
	if !field.Valid() {
		return fmt.Errorf("invalid balance field: %s", field)
	}
	res := s.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]interface{}{
			string(field): gorm.Expr(fmt.Sprintf("%s + ?", field), delta),
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return service.ErrWalletNotFound
	}
	return nil
}

// DebitWalletBalances debits both balances in one conditional update.
// Returns false when either balance is short; nothing changes in that case.
func (s *Store) DebitWalletBalances(ctx context.Context, userID string, referral, exchange int64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("user_id = ? AND referral_balance >= ? AND exchange_balance >= ?", userID, referral, exchange).
		Updates(map[string]interface{}{
			"referral_balance": gorm.Expr("referral_balance - ?", referral),
			"exchange_balance": gorm.Expr("exchange_balance - ?", exchange),
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) SetWalletLocked(ctx context.Context, userID string, locked bool) error {
	res := s.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"locked": locked, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return service.ErrWalletNotFound
	}
	return nil
}

// --- products ---

func (s *Store) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).Where("id = ?", productID).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, service.ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

// DecrementStock takes quantity units off a product if and only if enough
// stock remains. Returns false when stock is short.
func (s *Store) DecrementStock(ctx context.Context, productID string, quantity int64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock - ?", quantity),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// --- referrals ---

func (s *Store) GetReferralByCreator(ctx context.Context, userID string) (*models.Referral, error) {
	var ref models.Referral
	if err := s.db.WithContext(ctx).Where("created_by = ?", userID).First(&ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, service.ErrReferralNotFound
		}
		return nil, err
	}
	return &ref, nil
}

func (s *Store) GetReferralByLink(ctx context.Context, linkID string) (*models.Referral, error) {
	var ref models.Referral
	if err := s.db.WithContext(ctx).Where("link_id = ?", linkID).First(&ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, service.ErrReferralNotFound
		}
		return nil, err
	}
	return &ref, nil
}

func (s *Store) CreateReferral(ctx context.Context, ref *models.Referral) error {
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(ref).Error
}

func (s *Store) SaveReferral(ctx context.Context, ref *models.Referral) error {
	return s.db.WithContext(ctx).Save(ref).Error
}

// --- users ---

func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, service.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, service.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
