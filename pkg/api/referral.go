package api

import (
	"errors"
	"net/http"

	"github.com/example/storefront/pkg/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleGenerateReferral godoc
// @Summary Generate or refresh the user's referral link
// @Tags referral
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/referral/generate [post]
func (s *Server) handleGenerateReferral(c *gin.Context) {
	user := currentUser(c)

	ref, err := s.referrals.Generate(c.Request.Context(), user.ID)
	if err != nil {
		s.logger.Error("referral generation failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to generate referral link."})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"link":       "/api/referral/redeem-referral/" + ref.LinkID,
		"expires_at": ref.ExpiresAt,
	})
}

// handleRedeemReferral godoc
// @Summary Redeem a referral link and credit both wallets
// @Tags referral
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/referral/redeem-referral/{linkId} [post]
func (s *Server) handleRedeemReferral(c *gin.Context) {
	user := currentUser(c)
	linkID := c.Param("linkId")

	err := s.referrals.Redeem(c.Request.Context(), user.ID, linkID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrReferralNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "Referral link not found."})
		case errors.Is(err, service.ErrReferralExpired):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Referral link has expired."})
		case errors.Is(err, service.ErrSelfRedeem):
			c.JSON(http.StatusBadRequest, gin.H{"message": "You cannot redeem your own referral link."})
		case errors.Is(err, service.ErrAlreadyRedeemed):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Referral link already redeemed."})
		default:
			s.logger.Error("referral redemption failed",
				zap.String("user_id", user.ID), zap.String("link_id", linkID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to redeem referral link."})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Referral redeemed. Balance credited to both wallets."})
}
