package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/yourusername/youearn-api/config"
	"github.com/yourusername/youearn-api/middleware"
	"github.com/yourusername/youearn-api/models"
	"github.com/yourusername/youearn-api/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB          *gorm.DB
	Cfg         *config.Config
	Mailer      utils.MailerInterface
	ResetTokens *utils.ResetTokenStore
}

func NewAuthHandler(db *gorm.DB, cfg *config.Config, mailer utils.MailerInterface, resetTokens *utils.ResetTokenStore) *AuthHandler {
	return &AuthHandler{
		DB:          db,
		Cfg:         cfg,
		Mailer:      mailer,
		ResetTokens: resetTokens,
	}
}

type RegisterRequest struct {
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required,min=6"`
	TelegramUsername string `json:"telegramUsername" binding:"required"`
	ReferralCode     string `json:"referralCode"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// userPayload is the user shape returned by auth endpoints.
func userPayload(user *models.User, referrer *models.User) gin.H {
	payload := gin.H{
		"id":               user.ID,
		"email":            user.Email,
		"telegramUsername": user.TelegramUsername,
		"referralCode":     user.ReferralCode,
		"telegramJoined":   user.TelegramJoined,
		"role":             user.Role,
		"createdAt":        user.CreatedAt,
		"wasReferred":      user.WasReferred,
	}
	if referrer != nil {
		// The referrer's code, for display; never the new user's own code.
		payload["referredBy"] = referrer.ReferralCode
	} else {
		payload["referredBy"] = nil
	}
	return payload
}

// Register creates an account, optionally crediting a referrer, and signs the
// new user in.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid input data", "error": err.Error()})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("password hashing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error during signup"})
		return
	}

	user, referrer, err := models.CreateUserWithReferral(h.DB, models.SignupInput{
		Email:            req.Email,
		PasswordHash:     string(hash),
		TelegramUsername: req.TelegramUsername,
		ReferralCode:     req.ReferralCode,
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrDuplicateAccount):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "User already exists with this email"})
		case errors.Is(err, models.ErrInvalidReferralFormat):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid referral code format"})
		case errors.Is(err, models.ErrReferralNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Referral code not found"})
		case errors.Is(err, models.ErrCodeGenerationExhausted):
			log.Error().Err(err).Msg("referral code keyspace exhausted")
			c.JSON(http.StatusConflict, gin.H{"success": false, "message": "Could not complete signup, please try again"})
		default:
			log.Error().Err(err).Msg("signup failed")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error during signup"})
		}
		return
	}

	token, err := middleware.GenerateToken(user.ID, user.Email, user.Role, h.Cfg.JWTSecret, h.Cfg.TokenExpiry)
	if err != nil {
		log.Error().Err(err).Msg("token generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error during signup"})
		return
	}

	message := "Account created successfully! You can now refer others using your referral code. Please join the Telegram channel."
	if referrer != nil {
		message = "Account created successfully! You were referred by an existing user. Please join the Telegram channel."
	}

	h.setTokenCookie(c, token)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": message,
		"data": gin.H{
			"user":     userPayload(user, referrer),
			"token":    token,
			"nextStep": "telegram-join",
		},
	})
}

// Login authenticates by email and password. Unknown account and wrong
// password answer identically.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid input data", "error": err.Error()})
		return
	}

	user, err := models.FindUserByEmail(h.DB, req.Email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error().Err(err).Msg("login lookup failed")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error during login"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid credentials"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid credentials"})
		return
	}

	token, err := middleware.GenerateToken(user.ID, user.Email, user.Role, h.Cfg.JWTSecret, h.Cfg.TokenExpiry)
	if err != nil {
		log.Error().Err(err).Msg("token generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error during login"})
		return
	}

	h.setTokenCookie(c, token)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Login successful",
		"data": gin.H{
			"user":  userPayload(user, nil),
			"token": token,
		},
	})
}

// Logout clears the cookie-based token. Always succeeds.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.TokenCookieName, "", -1, "/", "", h.Cfg.SecureCookies, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logout successful"})
}

// CheckUser reports the authenticated caller's role and where the frontend
// should route them.
func (h *AuthHandler) CheckUser(c *gin.Context) {
	role := models.RoleUser
	if v, ok := c.Get(middleware.CtxRole); ok {
		if s, ok := v.(string); ok && s != "" {
			role = s
		}
	}

	redirectPath := "/dashboard"
	if role == models.RoleAdmin {
		redirectPath = "/admin/dashboard"
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"role":         role,
		"redirectPath": redirectPath,
	})
}

// TelegramJoined records the one-time channel-join confirmation. Confirming
// again is a no-op.
func (h *AuthHandler) TelegramJoined(c *gin.Context) {
	var user models.User
	if err := h.DB.First(&user, middleware.UserIDFromContext(c)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		return
	}

	if !user.TelegramJoined {
		if err := h.DB.Model(&user).Update("telegram_joined", true).Error; err != nil {
			log.Error().Err(err).Uint("user_id", user.ID).Msg("telegram join update failed")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Telegram join status updated successfully",
		"data":    gin.H{"telegramJoined": true},
	})
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ForgotPassword emails a one-hour reset link. The response does not reveal
// whether the account exists.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Email is required", "error": err.Error()})
		return
	}

	genericResponse := gin.H{
		"success": true,
		"message": "If an account exists for " + utils.MaskEmail(req.Email) + ", a reset password link has been sent.",
	}

	user, err := models.FindUserByEmail(h.DB, req.Email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error().Err(err).Msg("forgot password lookup failed")
		}
		c.JSON(http.StatusOK, genericResponse)
		return
	}

	token, err := middleware.GenerateToken(user.ID, user.Email, user.Role, h.Cfg.ResetSecret, h.Cfg.ResetExpiry)
	if err != nil {
		log.Error().Err(err).Msg("reset token generation failed")
		c.JSON(http.StatusOK, genericResponse)
		return
	}

	resetURL := h.Cfg.BaseURL + "/reset-password?token=" + token
	if err := h.Mailer.SendPasswordReset(user.Email, resetURL); err != nil {
		log.Error().Err(err).Uint("user_id", user.ID).Msg("reset email delivery failed")
	}

	c.JSON(http.StatusOK, genericResponse)
}

type VerifyResetTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// VerifyResetToken lets the reset page check a link before showing the form.
func (h *AuthHandler) VerifyResetToken(c *gin.Context) {
	var req VerifyResetTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Token is required"})
		return
	}

	claims, err := middleware.VerifyToken(req.Token, h.Cfg.ResetSecret)
	if err != nil || h.ResetTokens.IsUsed(c.Request.Context(), req.Token) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Token is invalid or has expired", "expired": true})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Token is valid",
		"userId":  claims.UserID,
		"expired": false,
	})
}

type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

// ResetPassword sets a new password for the account named by a valid,
// unconsumed reset token.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Token and password are required", "error": err.Error()})
		return
	}

	claims, err := middleware.VerifyToken(req.Token, h.Cfg.ResetSecret)
	if err != nil || h.ResetTokens.IsUsed(c.Request.Context(), req.Token) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Token is invalid or has expired"})
		return
	}

	var user models.User
	if err := h.DB.First(&user, claims.UserID).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Token is invalid or has expired"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("password hashing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
		return
	}

	if err := h.DB.Model(&user).Update("password_hash", string(hash)).Error; err != nil {
		log.Error().Err(err).Uint("user_id", user.ID).Msg("password update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
		return
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl > 0 {
		if err := h.ResetTokens.MarkUsed(c.Request.Context(), req.Token, ttl); err != nil {
			log.Error().Err(err).Msg("failed to mark reset token as used")
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password updated successfully"})
}

func (h *AuthHandler) setTokenCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.TokenCookieName, token, int(h.Cfg.TokenExpiry.Seconds()), "/", "", h.Cfg.SecureCookies, true)
}
