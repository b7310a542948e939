package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/storefront/pkg/api"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	"github.com/example/storefront/pkg/notify"
	"github.com/example/storefront/pkg/payment"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/service"
	"go.uber.org/zap"
)

func main() {
	// Load config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting storefront server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))

	// MySQL
	store, err := repository.NewStore(&cfg.MySQL)
	if err != nil {
		logger.Fatal("Failed to connect to MySQL", zap.Error(err))
	}

	// Redis: carts, sessions, webhook dedupe
	redisRepo := repository.NewRedisRepository(&cfg.Redis)
	defer redisRepo.Close()

	// MongoDB: payment audit trail
	mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongoRepo.Close(ctx)
	}()

	// Notification actor
	sender, err := notify.NewEmailSender(&cfg.Email)
	if err != nil {
		logger.Fatal("Failed to configure email sender", zap.Error(err))
	}
	notifier, err := notify.NewService(sender, logger)
	if err != nil {
		logger.Fatal("Failed to start notification actor", zap.Error(err))
	}
	defer notifier.Stop()

	// Payment gateway client
	gateway := payment.NewClient(&cfg.Razorpay)

	// Services
	wallets := service.NewWalletLedger(store, logger)
	stock := service.NewStockManager(store)
	checkout := service.NewCheckout(store, redisRepo, wallets, stock, gateway, &cfg.Payment, logger)
	reconciler := service.NewReconciler(store, redisRepo, mongoRepo, notifier, logger)
	orders := service.NewOrders(store)
	referrals := service.NewReferrals(store, wallets, &cfg.Payment, logger)

	// Setup service discovery
	sd, err := discovery.NewServiceDiscovery(&cfg.Etcd)
	if err != nil {
		logger.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
		sd = nil
	}

	instance := &discovery.ServiceInstance{
		Name: cfg.Server.Name,
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}
	if sd != nil {
		if err := sd.Register(context.Background(), instance); err != nil {
			logger.Warn("Failed to register service", zap.Error(err))
		}
	}

	// HTTP server
	server := api.NewServer(cfg, logger, api.Deps{
		Store:      store,
		Sessions:   redisRepo,
		Audit:      mongoRepo,
		AuditLog:   mongoRepo,
		Checkout:   checkout,
		Reconciler: reconciler,
		Orders:     orders,
		Wallets:    wallets,
		Referrals:  referrals,
	})
	server.SetupRoutes()

	srvErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			srvErr <- err
		}
	}()

	logger.Info("Server started successfully")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal")
	case err := <-srvErr:
		logger.Fatal("Server error", zap.Error(err))
	}

	if sd != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := sd.Deregister(ctx, instance); err != nil {
			logger.Warn("Failed to deregister service", zap.Error(err))
		}
		cancel()
		sd.Close()
	}

	logger.Info("Server stopped")
}
