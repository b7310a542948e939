package models

// Cart is the checkout input. Carts are owned by an external service and
// kept in Redis; this service only ever reads them.
type Cart struct {
	UserID string     `json:"user_id"`
	Items  []CartItem `json:"items"`
}

type CartItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
	Price       int64  `json:"price"` // line price frozen at add-to-cart time
}

func (c *Cart) Empty() bool {
	return c == nil || len(c.Items) == 0
}
