package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/service"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// Server is the HTTP surface: checkout, the two gateway callbacks, and
// the order/wallet/referral endpoints.
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	router     *gin.Engine
	store      service.Store
	sessions   SessionReader
	audit      service.Auditor
	auditLog   AuditReader
	checkout   *service.Checkout
	reconciler *service.Reconciler
	orders     *service.Orders
	wallets    *service.WalletLedger
	referrals  *service.Referrals
}

type Deps struct {
	Store      service.Store
	Sessions   SessionReader
	Audit      service.Auditor
	AuditLog   AuditReader
	Checkout   *service.Checkout
	Reconciler *service.Reconciler
	Orders     *service.Orders
	Wallets    *service.WalletLedger
	Referrals  *service.Referrals
}

func NewServer(cfg *config.Config, logger *zap.Logger, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	return &Server{
		config:     cfg,
		logger:     logger,
		router:     router,
		store:      deps.Store,
		sessions:   deps.Sessions,
		audit:      deps.Audit,
		auditLog:   deps.AuditLog,
		checkout:   deps.Checkout,
		reconciler: deps.Reconciler,
		orders:     deps.Orders,
		wallets:    deps.Wallets,
		referrals:  deps.Referrals,
	}
}

func (s *Server) SetupRoutes() {
	// Health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "pong"})
	})

	api := s.router.Group("/api")
	{
		orders := api.Group("/order")
		{
			// Gateway-facing endpoints; authenticated by signature, not session.
			orders.POST("/razorpay/webhook", s.handleWebhook)
			orders.GET("/payment-callback", s.handlePaymentCallback)
			orders.POST("/payment-callback", s.handlePaymentCallback)

			orders.POST("/checkout", s.authRequired(), s.handleCheckout)
			orders.GET("/get-all-orders", s.authRequired(), s.adminRequired(), s.handleGetAllOrders)
			orders.GET("/get-user-orders", s.authRequired(), s.handleGetUserOrders)
			orders.GET("/get-order/:orderId", s.authRequired(), s.handleGetOrder)
			orders.GET("/get-order-audits/:orderId", s.authRequired(), s.adminRequired(), s.handleGetOrderAudits)
		}

		wallet := api.Group("/wallet")
		{
			wallet.GET("/get-wallet", s.authRequired(), s.handleGetWallet)
			wallet.POST("/add-exchange", s.authRequired(), s.adminRequired(), s.handleAddExchange)
			wallet.POST("/unlock-wallet", s.authRequired(), s.adminRequired(), s.handleUnlockWallet)
		}

		referral := api.Group("/referral")
		{
			referral.POST("/generate", s.authRequired(), s.handleGenerateReferral)
			referral.POST("/redeem-referral/:linkId", s.authRequired(), s.handleRedeemReferral)
		}
	}

	// Swagger
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.logger.Info("HTTP server starting", zap.String("address", addr))
	return s.router.Run(addr)
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
