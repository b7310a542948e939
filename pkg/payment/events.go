package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"

	StatusCaptured = "captured"
)

var (
	ErrMissingUserID  = errors.New("payment: notes missing userId")
	ErrMissingOrderID = errors.New("payment: notes missing orderId")
)

// Event is the webhook envelope the gateway posts.
type Event struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity Entity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// Entity is the gateway-side payment record carried in the event.
type Entity struct {
	ID     string                 `json:"id"`
	Status string                 `json:"status"`
	Notes  map[string]interface{} `json:"notes"`
}

func ParseEvent(body []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if evt.Event == "" {
		return nil, errors.New("invalid webhook payload: missing event type")
	}
	return &evt, nil
}

// Notes is the checkout metadata round-tripped through the gateway. It
// correlates a gateway payment to exactly one order.
type Notes struct {
	UserID           string
	OrderID          string
	ReferralDiscount int64
	ExchangeDiscount int64
}

// ToMap renders the notes as the string map the gateway accepts.
func (n Notes) ToMap() map[string]string {
	return map[string]string{
		"userId":           n.UserID,
		"orderId":          n.OrderID,
		"referralDiscount": strconv.FormatInt(n.ReferralDiscount, 10),
		"exchangeDiscount": strconv.FormatInt(n.ExchangeDiscount, 10),
	}
}

// ParseNotes rebuilds checkout metadata from the echoed notes. The gateway
// tends to stringify numbers, so values are coerced rather than trusted.
func ParseNotes(raw map[string]interface{}) (*Notes, error) {
	userID := coerceString(raw["userId"])
	if userID == "" {
		return nil, ErrMissingUserID
	}
	orderID := coerceString(raw["orderId"])
	if orderID == "" {
		return nil, ErrMissingOrderID
	}

	return &Notes{
		UserID:           userID,
		OrderID:          orderID,
		ReferralDiscount: coerceInt64(raw["referralDiscount"]),
		ExchangeDiscount: coerceInt64(raw["exchangeDiscount"]),
	}, nil
}

func coerceString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatInt(int64(s), 10)
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

func coerceInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0
		}
		return i
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}
