package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/storefront/pkg/config"
)

const defaultTimeout = 30 * time.Second

// Client talks to the gateway's payment-link API. Every call carries a
// bounded timeout; a timed-out checkout call leaves the order Pending.
type Client struct {
	httpClient *http.Client
	config     *config.RazorpayConfig
}

func NewClient(cfg *config.RazorpayConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		config: cfg,
	}
}

type Customer struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Email   string `json:"email"`
}

type LinkRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	AcceptPartial  bool              `json:"accept_partial"`
	Customer       Customer          `json:"customer"`
	Notes          map[string]string `json:"notes"`
	ReminderEnable bool              `json:"reminder_enable"`
	CallbackURL    string            `json:"callback_url"`
	CallbackMethod string            `json:"callback_method"`
}

type PaymentLink struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
	Status   string `json:"status"`
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreatePaymentLink requests a hosted payment page for the given amount.
// The notes map is echoed back verbatim on the corresponding webhook.
func (c *Client) CreatePaymentLink(ctx context.Context, req *LinkRequest) (*PaymentLink, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment link request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/v1/payment_links", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build payment link request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.config.KeyID, c.config.KeySecret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payment link request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read payment link response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Description != "" {
			return nil, fmt.Errorf("gateway rejected payment link: %s (%s)",
				apiErr.Error.Description, apiErr.Error.Code)
		}
		return nil, fmt.Errorf("gateway rejected payment link: status %d", resp.StatusCode)
	}

	var link PaymentLink
	if err := json.Unmarshal(respBody, &link); err != nil {
		return nil, fmt.Errorf("failed to parse payment link response: %w", err)
	}
	if link.ShortURL == "" {
		return nil, fmt.Errorf("gateway returned payment link without short_url")
	}

	return &link, nil
}
