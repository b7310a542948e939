package api

import (
	"errors"
	"net/http"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleGetWallet godoc
// @Summary Fetch the authenticated user's wallet
// @Tags wallet
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/wallet/get-wallet [get]
func (s *Server) handleGetWallet(c *gin.Context) {
	user := currentUser(c)

	wallet, err := s.wallets.GetOrCreate(c.Request.Context(), user.ID)
	if err != nil {
		s.logger.Error("wallet fetch failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch wallet."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"wallet": wallet})
}

type addExchangeRequest struct {
	Username string `json:"username" binding:"required"`
	Amount   int64  `json:"amount" binding:"required,gt=0"`
}

// handleAddExchange godoc
// @Summary Credit exchange balance to a user's wallet (admin)
// @Tags wallet
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/wallet/add-exchange [post]
func (s *Server) handleAddExchange(c *gin.Context) {
	var req addExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "A username and a positive amount are required."})
		return
	}

	user, err := s.store.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found."})
			return
		}
		s.logger.Error("user lookup failed", zap.String("username", req.Username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to credit wallet."})
		return
	}

	wallet, err := s.wallets.AdjustBalance(c.Request.Context(), user.ID, models.ExchangeBalance, req.Amount)
	if err != nil {
		s.logger.Error("exchange credit failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to credit wallet."})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Exchange balance credited.",
		"wallet":  wallet,
	})
}

type unlockWalletRequest struct {
	Username string `json:"username" binding:"required"`
}

// handleUnlockWallet godoc
// @Summary Clear the legacy lock flag on a user's wallet (admin)
// @Tags wallet
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/wallet/unlock-wallet [post]
func (s *Server) handleUnlockWallet(c *gin.Context) {
	var req unlockWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "A username is required."})
		return
	}

	user, err := s.store.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found."})
			return
		}
		s.logger.Error("user lookup failed", zap.String("username", req.Username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to unlock wallet."})
		return
	}

	if err := s.wallets.Unlock(c.Request.Context(), user.ID); err != nil {
		if errors.Is(err, service.ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Wallet not found."})
			return
		}
		s.logger.Error("wallet unlock failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to unlock wallet."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Wallet unlocked."})
}
