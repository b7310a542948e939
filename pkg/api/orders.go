package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/example/storefront/pkg/payment"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuditReader serves the operator-facing reconciliation history written
// by the Auditor.
type AuditReader interface {
	GetPaymentAudits(ctx context.Context, orderID string, limit int64) ([]*repository.PaymentAudit, error)
}

const auditLookupLimit = 50

// handleCheckout godoc
// @Summary Create an order and a payment link from the user's cart
// @Tags order
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/order/checkout [post]
func (s *Server) handleCheckout(c *gin.Context) {
	user := currentUser(c)

	var in service.CheckoutInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body."})
		return
	}

	result, err := s.checkout.Checkout(c.Request.Context(), user, in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCartEmpty):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Cart is empty."})
		case errors.Is(err, service.ErrInsufficientStock):
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		default:
			s.logger.Error("checkout failed", zap.String("user_id", user.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Checkout failed."})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"paymentLink":     result.PaymentLink,
		"checkoutSummary": result.Summary,
	})
}

// handleWebhook godoc
// @Summary Receive a payment gateway webhook and reconcile the order
// @Tags order
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/order/razorpay/webhook [post]
func (s *Server) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Unable to read request body."})
		return
	}

	// Signature first. Nothing in the body is trusted until it passes.
	signature := c.GetHeader("X-Razorpay-Signature")
	if !payment.VerifyWebhookSignature(s.config.Razorpay.WebhookSecret, body, signature) {
		s.logger.Warn("Webhook signature verification failed",
			zap.String("remote_addr", c.ClientIP()))
		s.auditAsync("webhook_signature_failed", "", "", map[string]interface{}{
			"remote_addr": c.ClientIP(),
		})
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid webhook signature."})
		return
	}

	evt, err := payment.ParseEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	// The gateway sends a stable delivery id; fall back to a key derived
	// from the event itself so redeliveries without the header still dedupe.
	eventID := c.GetHeader("X-Razorpay-Event-Id")
	if eventID == "" {
		eventID = evt.Event + ":" + evt.Payload.Payment.Entity.ID
	}

	outcome, err := s.reconciler.HandleEvent(c.Request.Context(), eventID, evt)
	if err != nil {
		if service.IsClientError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		s.logger.Error("Webhook reconciliation failed",
			zap.String("event_id", eventID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Webhook processing failed."})
		return
	}

	switch outcome {
	case service.OutcomeReferralDisparity:
		c.JSON(http.StatusBadRequest, gin.H{"message": "Insufficient referral balance."})
	case service.OutcomeExchangeDisparity:
		c.JSON(http.StatusBadRequest, gin.H{"message": "Insufficient exchange balance."})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// handlePaymentCallback godoc
// @Summary Browser redirect target after the hosted payment page
// @Tags order
// @Produce json
// @Success 302
// @Router /api/order/payment-callback [get]
func (s *Server) handlePaymentCallback(c *gin.Context) {
	// Best effort only: the browser redirect carries no authority. All
	// state changes happen through the webhook.
	paymentID := callbackParam(c, "razorpay_payment_id")
	linkID := callbackParam(c, "razorpay_payment_link_id")
	status := callbackParam(c, "razorpay_payment_link_status")
	signature := callbackParam(c, "razorpay_signature")

	if signature != "" && !payment.VerifyCallbackSignature(s.config.Razorpay.KeySecret, linkID, paymentID, signature) {
		s.logger.Warn("Payment callback signature mismatch",
			zap.String("payment_id", paymentID), zap.String("link_id", linkID))
		c.Redirect(http.StatusFound, s.config.Payment.RedirectFailureURL)
		return
	}

	if status == "paid" {
		c.Redirect(http.StatusFound, s.config.Payment.RedirectSuccessURL)
		return
	}
	c.Redirect(http.StatusFound, s.config.Payment.RedirectFailureURL)
}

// handleGetAllOrders godoc
// @Summary List all orders (admin)
// @Tags order
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/order/get-all-orders [get]
func (s *Server) handleGetAllOrders(c *gin.Context) {
	page, pageSize, ok := pagination(c)
	if !ok {
		return
	}

	orders, total, err := s.orders.ListAll(c.Request.Context(), page, pageSize)
	if err != nil {
		s.logger.Error("list orders failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch orders."})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders":    orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// handleGetUserOrders godoc
// @Summary List the authenticated user's orders
// @Tags order
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/order/get-user-orders [get]
func (s *Server) handleGetUserOrders(c *gin.Context) {
	user := currentUser(c)
	page, pageSize, ok := pagination(c)
	if !ok {
		return
	}

	orders, total, err := s.orders.ListForUser(c.Request.Context(), user.ID, page, pageSize)
	if err != nil {
		s.logger.Error("list user orders failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch orders."})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders":    orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// handleGetOrder godoc
// @Summary Fetch a single order by id
// @Tags order
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/order/get-order/{orderId} [get]
func (s *Server) handleGetOrder(c *gin.Context) {
	user := currentUser(c)
	orderID := c.Param("orderId")

	order, err := s.orders.Get(c.Request.Context(), orderID, user)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "Order not found."})
		case errors.Is(err, service.ErrNotOrderOwner):
			c.JSON(http.StatusForbidden, gin.H{"message": "You do not have access to this order."})
		default:
			s.logger.Error("get order failed", zap.String("order_id", orderID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch order."})
		}
		return
	}

	items, err := order.LineItems()
	if err != nil {
		s.logger.Error("order items unreadable", zap.String("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch order."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order, "items": items})
}

// handleGetOrderAudits godoc
// @Summary Fetch the reconciliation audit trail for an order (admin)
// @Tags order
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/order/get-order-audits/{orderId} [get]
func (s *Server) handleGetOrderAudits(c *gin.Context) {
	orderID := c.Param("orderId")

	audits, err := s.auditLog.GetPaymentAudits(c.Request.Context(), orderID, auditLookupLimit)
	if err != nil {
		s.logger.Error("audit lookup failed", zap.String("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch audit trail."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "audits": audits})
}

func pagination(c *gin.Context) (page, pageSize int, ok bool) {
	page, pageSize = 1, 20

	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid page parameter."})
			return 0, 0, false
		}
		page = n
	}
	if raw := c.Query("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid page_size parameter."})
			return 0, 0, false
		}
		pageSize = n
	}
	return page, pageSize, true
}

// callbackParam reads a gateway callback field from the query string or,
// for POST deliveries, the form body.
func callbackParam(c *gin.Context, name string) string {
	if v := c.Query(name); v != "" {
		return v
	}
	return c.PostForm(name)
}

func auditContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (s *Server) auditAsync(action, orderID, paymentID string, data map[string]interface{}) {
	if s.audit == nil {
		return
	}
	go func() {
		ctx, cancel := auditContext()
		defer cancel()
		if err := s.audit.RecordPaymentAudit(ctx, action, orderID, paymentID, data); err != nil {
			s.logger.Warn("audit write failed", zap.String("action", action), zap.Error(err))
		}
	}()
}
