package notify

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/jordan-wright/email"
)

const defaultSendTimeout = 10 * time.Second

// EmailSender delivers customer notifications over SMTP. Sends go through
// a connection pool with a per-send deadline; a hung SMTP server times the
// send out instead of wedging the notification actor's mailbox.
type EmailSender struct {
	config *config.EmailConfig
	pool   *email.Pool
}

func NewEmailSender(cfg *config.EmailConfig) (*EmailSender, error) {
	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)
	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPHost)
	pool, err := email.NewPool(addr, 1, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP pool: %w", err)
	}
	return &EmailSender{config: cfg, pool: pool}, nil
}

func (s *EmailSender) SendOrderConfirmation(user *models.User, order *models.Order, items []models.OrderItem) error {
	e := email.NewEmail()
	e.From = s.config.From
	e.To = []string{user.Email}
	e.Subject = fmt.Sprintf("Order #%s - Payment Successful", order.ID)
	e.Text = []byte(orderConfirmationText(user.Name, order, items))
	e.HTML = []byte(orderConfirmationHTML(user.Name, order, items))

	return s.pool.Send(e, s.sendTimeout())
}

func (s *EmailSender) sendTimeout() time.Duration {
	if s.config.SendTimeout > 0 {
		return s.config.SendTimeout
	}
	return defaultSendTimeout
}

func orderConfirmationText(name string, order *models.Order, items []models.OrderItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	fmt.Fprintf(&b, "Your payment for Order #%s has been successfully processed. Here are the details of your order:\n\n", order.ID)
	for _, item := range items {
		fmt.Fprintf(&b, "%s (x%d) - %s\n", item.ProductName, item.Quantity, FormatAmount(item.Price))
	}
	fmt.Fprintf(&b, "\nTotal Amount: %s\n\nThank you for shopping with us!\n", FormatAmount(order.TotalAmount))
	return b.String()
}

func orderConfirmationHTML(name string, order *models.Order, items []models.OrderItem) string {
	var rows strings.Builder
	for _, item := range items {
		fmt.Fprintf(&rows,
			`<tr><td style="padding: 8px; border: 1px solid #ddd;">%s</td>`+
				`<td style="padding: 8px; border: 1px solid #ddd;">x%d</td>`+
				`<td style="padding: 8px; border: 1px solid #ddd;">%s</td></tr>`,
			item.ProductName, item.Quantity, FormatAmount(item.Price))
	}

	return fmt.Sprintf(`
<div style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <h1 style="color: #4CAF50;">Order #%s - Payment Successful</h1>
  <p>Hi %s,</p>
  <p>Your payment for Order #%s has been successfully processed. Below are the details of your order:</p>
  <table style="width: 100%%; border-collapse: collapse; margin-top: 20px;">
    <thead>
      <tr>
        <th style="padding: 8px; border: 1px solid #ddd; text-align: left;">Product</th>
        <th style="padding: 8px; border: 1px solid #ddd; text-align: left;">Quantity</th>
        <th style="padding: 8px; border: 1px solid #ddd; text-align: left;">Price</th>
      </tr>
    </thead>
    <tbody>%s</tbody>
  </table>
  <p style="margin-top: 20px;"><strong>Total Amount: %s</strong></p>
  <p>Thank you for shopping with us!</p>
</div>`,
		order.ID, name, order.ID, rows.String(), FormatAmount(order.TotalAmount))
}

// FormatAmount renders a smallest-unit amount as rupees.
func FormatAmount(amount int64) string {
	return fmt.Sprintf("₹%d.%02d", amount/100, amount%100)
}
