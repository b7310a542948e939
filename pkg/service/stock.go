package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/storefront/pkg/models"
)

var ErrInsufficientStock = errors.New("insufficient stock")

// StockManager owns product quantities. Decrements are conditional, so
// two reconciliations racing on the same product cannot oversell it.
type StockManager struct {
	store Store
}

func NewStockManager(store Store) *StockManager {
	return &StockManager{store: store}
}

// CheckAvailable is the optimistic checkout-time check. Stock is not
// reserved; Decrement re-validates at capture time.
func (m *StockManager) CheckAvailable(ctx context.Context, productID string, quantity int64) (*models.Product, error) {
	product, err := m.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Stock < quantity {
		return nil, fmt.Errorf("product %s is out of stock: %w", product.Name, ErrInsufficientStock)
	}
	return product, nil
}

// Decrement removes quantity units, failing with ErrInsufficientStock when
// the live stock is short.
func (m *StockManager) Decrement(ctx context.Context, productID string, quantity int64) error {
	ok, err := m.store.DecrementStock(ctx, productID, quantity)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("product %s is out of stock: %w", productID, ErrInsufficientStock)
	}
	return nil
}
