package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/yourusername/youearn-api/config"
	"github.com/yourusername/youearn-api/middleware"
	"github.com/yourusername/youearn-api/models"
	"github.com/yourusername/youearn-api/utils"
	"gorm.io/gorm"
)

// WebhookSignatureHeader carries the provider's HMAC over the raw payload.
const WebhookSignatureHeader = "X-Checkout-Signature"

type PaymentHandler struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Checkout utils.CheckoutClientInterface
}

func NewPaymentHandler(db *gorm.DB, cfg *config.Config) *PaymentHandler {
	return &PaymentHandler{
		DB:       db,
		Cfg:      cfg,
		Checkout: utils.NewCheckoutClient(cfg.CheckoutAPIURL, cfg.CheckoutAPIKey),
	}
}

type CreateIntentRequest struct {
	Amount        float64 `json:"amount" binding:"required,gt=0"`
	Currency      string  `json:"currency"`
	FeeType       string  `json:"feeType" binding:"required"`
	Level         string  `json:"level" binding:"required"`
	PaymentMethod string  `json:"paymentMethod"`
}

// CreateIntent records a pending fee payment and opens a hosted checkout
// session the caller is redirected to.
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing required payment information", "error": err.Error()})
		return
	}

	var user models.User
	if err := h.DB.First(&user, middleware.UserIDFromContext(c)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		return
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}
	method := req.PaymentMethod
	if method == "" {
		method = "card"
	}

	referenceID := "PAY-" + strings.ToUpper(uuid.NewString()[:8])

	payment := models.Payment{
		UserID:        user.ID,
		UserName:      user.TelegramUsername,
		Amount:        req.Amount,
		Currency:      currency,
		ReferenceID:   referenceID,
		Status:        models.PaymentStatusPending,
		PaymentDate:   time.Now(),
		PaymentMethod: method,
		FeeType:       req.FeeType,
		Level:         req.Level,
	}
	if err := h.DB.Create(&payment).Error; err != nil {
		log.Error().Err(err).Msg("payment record creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to create payment"})
		return
	}

	session, err := h.Checkout.CreateSession(utils.CreateSessionParams{
		Reference:   referenceID,
		Amount:      req.Amount,
		Currency:    currency,
		ProductName: req.FeeType + " - " + req.Level,
		Description: "Payment for " + user.TelegramUsername,
		SuccessURL:  h.Cfg.BaseURL + "/profile/payment/success?reference=" + referenceID,
		CancelURL:   h.Cfg.BaseURL + "/profile/payment/cancel?reference=" + referenceID,
	})
	if err != nil {
		log.Error().Err(err).Str("reference", referenceID).Msg("checkout session creation failed")
		h.DB.Model(&payment).Update("status", models.PaymentStatusFailed)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Payment provider error, please try again"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Checkout session created",
		"data": gin.H{
			"referenceId": referenceID,
			"sessionId":   session.ID,
			"checkoutUrl": session.URL,
			"status":      payment.Status,
		},
	})
}

// Verify marks a payment completed when the user lands on the success page.
// The webhook remains the authoritative path.
func (h *PaymentHandler) Verify(c *gin.Context) {
	referenceID := c.Query("reference")
	if referenceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Reference ID is required"})
		return
	}

	var payment models.Payment
	if err := h.DB.Where("reference_id = ?", referenceID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Payment not found"})
			return
		}
		log.Error().Err(err).Msg("payment lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
		return
	}

	if payment.Status != models.PaymentStatusCompleted {
		updates := map[string]interface{}{
			"status":       models.PaymentStatusCompleted,
			"payment_date": time.Now(),
		}
		if err := h.DB.Model(&payment).Updates(updates).Error; err != nil {
			log.Error().Err(err).Str("reference", referenceID).Msg("payment verify update failed")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Payment verified successfully",
		"data":    gin.H{"payment": payment},
	})
}

// History lists every payment, newest first. Admin only.
func (h *PaymentHandler) History(c *gin.Context) {
	var payments []models.Payment
	if err := h.DB.Order("payment_date DESC").Find(&payments).Error; err != nil {
		log.Error().Err(err).Msg("payment history failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to fetch payments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": payments})
}

// UserPayments lists the caller's payments. Admins may pass ?user_id= to
// inspect another account.
func (h *PaymentHandler) UserPayments(c *gin.Context) {
	targetID := middleware.UserIDFromContext(c)
	if v := c.Query("user_id"); v != "" {
		role, _ := c.Get(middleware.CtxRole)
		if role != models.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "Forbidden: insufficient permissions"})
			return
		}
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid user id"})
			return
		}
		targetID = uint(id)
	}

	var payments []models.Payment
	if err := h.DB.Where("user_id = ?", targetID).Order("payment_date DESC").Find(&payments).Error; err != nil {
		log.Error().Err(err).Msg("user payments failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to fetch payments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": payments})
}

type UpdateStatusRequest struct {
	ReferenceID string `json:"referenceId" binding:"required"`
	Status      string `json:"status" binding:"required"`
}

// UpdateStatus sets a payment's status by reference. Admin only.
func (h *PaymentHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Reference ID and status are required", "error": err.Error()})
		return
	}

	if !models.ValidPaymentStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": req.Status + " is not a valid payment status"})
		return
	}

	var payment models.Payment
	if err := h.DB.Where("reference_id = ?", req.ReferenceID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Payment not found"})
			return
		}
		log.Error().Err(err).Msg("payment lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
		return
	}

	if err := h.DB.Model(&payment).Update("status", req.Status).Error; err != nil {
		log.Error().Err(err).Str("reference", req.ReferenceID).Msg("payment status update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
		return
	}
	payment.Status = req.Status

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Payment status updated successfully",
		"data":    gin.H{"payment": payment},
	})
}

type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Reference string `json:"client_reference_id"`
		SessionID string `json:"id"`
	} `json:"data"`
}

// Webhook receives signed lifecycle events from the checkout provider.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid payload"})
		return
	}

	signature := c.GetHeader(WebhookSignatureHeader)
	if !utils.VerifyWebhookSignature(payload, signature, h.Cfg.CheckoutWebhookSecret) {
		log.Warn().Str("ip", c.ClientIP()).Msg("webhook signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid signature"})
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid payload"})
		return
	}

	var status string
	switch event.Type {
	case "checkout.session.completed":
		status = models.PaymentStatusCompleted
	case "checkout.session.expired":
		status = models.PaymentStatusFailed
	default:
		// Unknown event types are acknowledged so the provider stops retrying.
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	result := h.DB.Model(&models.Payment{}).
		Where("reference_id = ?", event.Data.Reference).
		Updates(map[string]interface{}{"status": status, "payment_date": time.Now()})
	if result.Error != nil {
		log.Error().Err(result.Error).Str("reference", event.Data.Reference).Msg("webhook payment update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
		return
	}
	if result.RowsAffected == 0 {
		log.Warn().Str("reference", event.Data.Reference).Str("type", event.Type).Msg("webhook for unknown payment reference")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
