package service

import (
	"context"
	"errors"

	"github.com/example/storefront/pkg/models"
)

var ErrNotOrderOwner = errors.New("not authorized to view this order")

// Orders serves order queries. Orders are immutable from the outside;
// only the reconciler moves them through their lifecycle.
type Orders struct {
	store Store
}

func NewOrders(store Store) *Orders {
	return &Orders{store: store}
}

func (o *Orders) ListAll(ctx context.Context, page, pageSize int) ([]models.Order, int64, error) {
	return o.store.ListOrders(ctx, "", page, pageSize)
}

func (o *Orders) ListForUser(ctx context.Context, userID string, page, pageSize int) ([]models.Order, int64, error) {
	return o.store.ListOrders(ctx, userID, page, pageSize)
}

// Get returns the order if the requester owns it or is an admin.
func (o *Orders) Get(ctx context.Context, orderID string, requester *models.User) (*models.Order, error) {
	order, err := o.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != requester.ID && !requester.IsAdmin() {
		return nil, ErrNotOrderOwner
	}
	return order, nil
}
