package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/yourusername/youearn-api/models"
	"gorm.io/gorm"
)

type AdminHandler struct {
	DB *gorm.DB
}

func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{DB: db}
}

// ListUsers returns every account with derived referral counts plus the
// platform-wide summary, newest account first. Admin only; the role check
// lives in the route group's middleware.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, summary, err := models.AllUsersWithStats(h.DB)
	if err != nil {
		log.Error().Err(err).Msg("admin user listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Admin users fetched successfully",
		"data": gin.H{
			"users":   users,
			"summary": summary,
		},
	})
}
