package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/payment"
)

// fakeStore is an in-memory Store for the service tests. InTx snapshots
// the maps and restores them when fn fails, matching the rollback
// semantics the real store provides.
type fakeStore struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	wallets   map[string]*models.Wallet // keyed by user id
	products  map[string]*models.Product
	referrals map[string]*models.Referral // keyed by link id
	users     map[string]*models.User
	seq       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:    make(map[string]*models.Order),
		wallets:   make(map[string]*models.Wallet),
		products:  make(map[string]*models.Product),
		referrals: make(map[string]*models.Referral),
		users:     make(map[string]*models.User),
	}
}

func (s *fakeStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	snapOrders := copyMap(s.orders)
	snapWallets := copyMap(s.wallets)
	snapProducts := copyMap(s.products)
	snapReferrals := copyMap(s.referrals)
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.orders = snapOrders
		s.wallets = snapWallets
		s.products = snapProducts
		s.referrals = snapReferrals
		s.mu.Unlock()
		return err
	}
	return nil
}

func copyMap[V any](src map[string]*V) map[string]*V {
	dst := make(map[string]*V, len(src))
	for k, v := range src {
		cp := *v
		dst[k] = &cp
	}
	return dst
}

func (s *fakeStore) CreateOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.ID == "" {
		s.seq++
		order.ID = fmt.Sprintf("order-%d", s.seq)
	}
	cp := *order
	s.orders[order.ID] = &cp
	return nil
}

func (s *fakeStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (s *fakeStore) GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	return s.GetOrder(ctx, orderID)
}

func (s *fakeStore) TransitionOrderStatus(ctx context.Context, orderID string, from, to models.PaymentStatus, paymentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok || order.PaymentStatus != from {
		return false, nil
	}
	order.PaymentStatus = to
	if paymentID != "" {
		order.PaymentID = paymentID
	}
	return true, nil
}

func (s *fakeStore) ListOrders(ctx context.Context, userID string, page, pageSize int) ([]models.Order, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.Order
	for _, order := range s.orders {
		if userID == "" || order.UserID == userID {
			all = append(all, *order)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := int64(len(all))

	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (s *fakeStore) GetWalletByUser(ctx context.Context, userID string) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet, ok := s.wallets[userID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	cp := *wallet
	return &cp, nil
}

func (s *fakeStore) GetWalletForUpdate(ctx context.Context, userID string) (*models.Wallet, error) {
	return s.GetWalletByUser(ctx, userID)
}

func (s *fakeStore) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.wallets[wallet.UserID]; exists {
		return errors.New("duplicate wallet")
	}
	if wallet.ID == "" {
		s.seq++
		wallet.ID = fmt.Sprintf("wallet-%d", s.seq)
	}
	cp := *wallet
	s.wallets[wallet.UserID] = &cp
	return nil
}

func (s *fakeStore) AdjustWalletBalance(ctx context.Context, walletID string, field models.BalanceField, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wallet := range s.wallets {
		if wallet.ID != walletID {
			continue
		}
		switch field {
		case models.ReferralBalance:
			wallet.ReferralBalance += delta
		case models.ExchangeBalance:
			wallet.ExchangeBalance += delta
		}
		return nil
	}
	return ErrWalletNotFound
}

func (s *fakeStore) DebitWalletBalances(ctx context.Context, userID string, referral, exchange int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet, ok := s.wallets[userID]
	if !ok {
		return false, nil
	}
	if wallet.ReferralBalance < referral || wallet.ExchangeBalance < exchange {
		return false, nil
	}
	wallet.ReferralBalance -= referral
	wallet.ExchangeBalance -= exchange
	return true, nil
}

func (s *fakeStore) SetWalletLocked(ctx context.Context, userID string, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet, ok := s.wallets[userID]
	if !ok {
		return ErrWalletNotFound
	}
	wallet.Locked = locked
	return nil
}

func (s *fakeStore) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.products[productID]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *product
	return &cp, nil
}

func (s *fakeStore) DecrementStock(ctx context.Context, productID string, quantity int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.products[productID]
	if !ok || product.Stock < quantity {
		return false, nil
	}
	product.Stock -= quantity
	return true, nil
}

func (s *fakeStore) GetReferralByCreator(ctx context.Context, userID string) (*models.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range s.referrals {
		if ref.CreatedBy == userID {
			cp := *ref
			return &cp, nil
		}
	}
	return nil, ErrReferralNotFound
}

func (s *fakeStore) GetReferralByLink(ctx context.Context, linkID string) (*models.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.referrals[linkID]
	if !ok {
		return nil, ErrReferralNotFound
	}
	cp := *ref
	return &cp, nil
}

func (s *fakeStore) CreateReferral(ctx context.Context, ref *models.Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref.ID == "" {
		s.seq++
		ref.ID = fmt.Sprintf("referral-%d", s.seq)
	}
	cp := *ref
	s.referrals[ref.LinkID] = &cp
	return nil
}

func (s *fakeStore) SaveReferral(ctx context.Context, ref *models.Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ref
	s.referrals[ref.LinkID] = &cp
	return nil
}

func (s *fakeStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *fakeStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Username == username {
			cp := *user
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

var _ Store = (*fakeStore)(nil)

type fakeCarts struct {
	carts map[string]*models.Cart
}

func (f *fakeCarts) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	cart, ok := f.carts[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return cart, nil
}

type fakeClaimer struct {
	mu        sync.Mutex
	claimed   map[string]bool
	claimErr  error
	released  []string
	confirmed []string
}

func newFakeClaimer() *fakeClaimer {
	return &fakeClaimer{claimed: make(map[string]bool)}
}

func (f *fakeClaimer) ClaimWebhookEvent(ctx context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return false, f.claimErr
	}
	if f.claimed[eventID] {
		return false, nil
	}
	f.claimed[eventID] = true
	return true, nil
}

func (f *fakeClaimer) ConfirmWebhookEvent(ctx context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, eventID)
	return nil
}

func (f *fakeClaimer) ReleaseWebhookEvent(ctx context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claimed, eventID)
	f.released = append(f.released, eventID)
	return nil
}

type fakeGateway struct {
	lastReq *payment.LinkRequest
	link    *payment.PaymentLink
	err     error
}

func (f *fakeGateway) CreatePaymentLink(ctx context.Context, req *payment.LinkRequest) (*payment.PaymentLink, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.link, nil
}

type fakeAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (f *fakeAuditor) RecordPaymentAudit(ctx context.Context, action, orderID, paymentID string, data map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeAuditor) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	orders []*models.Order
}

func (f *fakeNotifier) SendOrderConfirmation(user *models.User, order *models.Order, items []models.OrderItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, order)
}

func (f *fakeNotifier) sent() []*models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.Order(nil), f.orders...)
}
