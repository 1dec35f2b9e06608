package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/yourusername/youearn-api/config"
	"github.com/yourusername/youearn-api/middleware"
	"github.com/yourusername/youearn-api/models"
	"gorm.io/gorm"
)

type UserHandler struct {
	DB  *gorm.DB
	Cfg *config.Config
}

func NewUserHandler(db *gorm.DB, cfg *config.Config) *UserHandler {
	return &UserHandler{DB: db, Cfg: cfg}
}

// Profile returns the caller's account along with their referral stats and
// shareable referral link.
func (h *UserHandler) Profile(c *gin.Context) {
	var user models.User
	if err := h.DB.First(&user, middleware.UserIDFromContext(c)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		return
	}

	stats, err := models.ReferralStatsFor(h.DB, &user, h.Cfg.BaseURL)
	if err != nil {
		log.Error().Err(err).Uint("user_id", user.ID).Msg("referral stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User profile fetched successfully",
		"data": gin.H{
			"user":          userPayload(&user, nil),
			"referralStats": stats,
		},
	})
}

// GetBankDetails returns the caller's saved payout details, empty strings
// when none are saved yet.
func (h *UserHandler) GetBankDetails(c *gin.Context) {
	var user models.User
	if err := h.DB.First(&user, middleware.UserIDFromContext(c)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Bank details fetched successfully",
		"data":    gin.H{"bankDetails": user.BankDetails},
	})
}

type SaveBankDetailsRequest struct {
	AccountName   string `json:"accountName" binding:"required"`
	BankName      string `json:"bankName" binding:"required"`
	AccountNumber string `json:"accountNumber" binding:"required"`
}

// SaveBankDetails overwrites the caller's payout details in full; there is
// no partial merge.
func (h *UserHandler) SaveBankDetails(c *gin.Context) {
	var req SaveBankDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Account name, bank name and account number are required", "error": err.Error()})
		return
	}

	var user models.User
	if err := h.DB.First(&user, middleware.UserIDFromContext(c)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		return
	}

	user.BankDetails = models.BankDetails{
		AccountName:   req.AccountName,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
	}
	if err := h.DB.Save(&user).Error; err != nil {
		log.Error().Err(err).Uint("user_id", user.ID).Msg("bank details save failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Bank details saved successfully",
		"data":    gin.H{"bankDetails": user.BankDetails},
	})
}

// UserReferrals lists the accounts a user has referred, newest first. Only
// the user themselves or an admin may look.
func (h *UserHandler) UserReferrals(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "User ID is required"})
		return
	}

	callerID := middleware.UserIDFromContext(c)
	callerRole, _ := c.Get(middleware.CtxRole)
	if uint(id) != callerID && callerRole != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "Forbidden: insufficient permissions"})
		return
	}

	var user models.User
	if err := h.DB.First(&user, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
			return
		}
		log.Error().Err(err).Msg("user lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
		return
	}

	stats, err := models.ReferralStatsFor(h.DB, &user, h.Cfg.BaseURL)
	if err != nil {
		log.Error().Err(err).Uint("user_id", user.ID).Msg("referral stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Referrals fetched successfully",
		"data": gin.H{
			"referrals":      stats.ReferralDetails,
			"totalReferrals": stats.TotalReferrals,
		},
	})
}

// Leaderboard returns the top referrers, highest count first.
func (h *UserHandler) Leaderboard(c *gin.Context) {
	limit := 10
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	entries, err := models.Leaderboard(h.DB, limit)
	if err != nil {
		log.Error().Err(err).Msg("leaderboard failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Leaderboard fetched successfully",
		"data":    gin.H{"leaderboard": entries},
	})
}

type ValidateReferralRequest struct {
	ReferralCode string `json:"referralCode" binding:"required"`
}

// ValidateReferral lets the signup page confirm a code before submitting.
func (h *UserHandler) ValidateReferral(c *gin.Context) {
	var req ValidateReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Referral code is required"})
		return
	}

	if !models.IsValidReferralCode(req.ReferralCode) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid referral code format"})
		return
	}

	referrer, err := models.FindUserByReferralCode(h.DB, req.ReferralCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Referral code not found"})
			return
		}
		log.Error().Err(err).Msg("referral validation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error during referral validation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Valid referral code",
		"data":    gin.H{"user": userPayload(referrer, nil)},
	})
}
