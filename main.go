package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/yourusername/youearn-api/config"
	"github.com/yourusername/youearn-api/handlers"
	"github.com/yourusername/youearn-api/middleware"
	"github.com/yourusername/youearn-api/models"
	"github.com/yourusername/youearn-api/utils"
)

func main() {
	config.SetupLogger()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	// External collaborators
	mailer := utils.NewResendMailer(cfg.ResendAPIKey, cfg.EmailSender)
	resetTokens := utils.NewResetTokenStore(cfg.RedisURL)
	authLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)

	// Setup router
	router := gin.Default()

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "youearn-api",
		})
	})

	authHandler := handlers.NewAuthHandler(db, cfg, mailer, resetTokens)
	userHandler := handlers.NewUserHandler(db, cfg)
	adminHandler := handlers.NewAdminHandler(db)
	paymentHandler := handlers.NewPaymentHandler(db, cfg)

	// API routes
	api := router.Group("/api/v1")
	{
		// Public auth endpoints, rate limited per client IP
		auth := api.Group("/auth")
		{
			limited := auth.Group("", middleware.RateLimitMiddleware(authLimiter))
			limited.POST("/register", authHandler.Register)
			limited.POST("/login", authHandler.Login)
			limited.POST("/forgot-password", authHandler.ForgotPassword)

			auth.POST("/logout", authHandler.Logout)
			auth.POST("/verify-reset-token", authHandler.VerifyResetToken)
			auth.POST("/reset-password", authHandler.ResetPassword)

			authed := auth.Group("", middleware.JwtAuthMiddleware(cfg))
			authed.GET("/check-user", authHandler.CheckUser)
			authed.PUT("/telegram-joined", authHandler.TelegramJoined)
		}

		api.POST("/validate-referral", userHandler.ValidateReferral)

		// Authenticated user endpoints
		user := api.Group("/user", middleware.JwtAuthMiddleware(cfg))
		{
			user.GET("/profile", userHandler.Profile)
			user.GET("/bank-details", userHandler.GetBankDetails)
			user.POST("/bank-details", userHandler.SaveBankDetails)
			user.GET("/:id/referrals", userHandler.UserReferrals)
		}

		api.GET("/leaderboard", middleware.JwtAuthMiddleware(cfg), userHandler.Leaderboard)

		// Payment endpoints
		payment := api.Group("/payment", middleware.JwtAuthMiddleware(cfg))
		{
			payment.POST("/create-intent", paymentHandler.CreateIntent)
			payment.GET("/verify", paymentHandler.Verify)
			payment.GET("/user-payments", paymentHandler.UserPayments)

			adminOnly := payment.Group("", middleware.RequireRole(models.RoleAdmin))
			adminOnly.GET("/history", paymentHandler.History)
			adminOnly.PUT("/update-status", paymentHandler.UpdateStatus)
		}

		// Admin endpoints
		admin := api.Group("/admin", middleware.JwtAuthMiddleware(cfg), middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("/users", adminHandler.ListUsers)
		}

		// Provider callbacks authenticate by payload signature, not token
		api.POST("/webhooks/checkout", paymentHandler.Webhook)
	}

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Info().Str("port", port).Msg("Starting YouEarn API server")
	if err := router.Run(":" + port); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
