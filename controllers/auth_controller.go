package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/middleware"
	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/models"
)

// AuthController handles operator authentication
type AuthController struct {
	db        *gorm.DB
	jwtSecret string
}

// NewAuthController creates a new auth controller
func NewAuthController(db *gorm.DB, jwtSecret string) *AuthController {
	return &AuthController{db: db, jwtSecret: jwtSecret}
}

// LoginRequest represents the login payload
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates an operator and issues a JWT
// POST /api/v1/auth/login
func (ac *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	var op models.Operator
	if err := ac.db.Where("username = ? AND is_active = ?", req.Username, true).First(&op).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !op.CheckPassword(req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := middleware.IssueToken(ac.jwtSecret, op.Username, op.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	now := time.Now()
	ac.db.Model(&op).Update("last_login_at", now)

	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"username": op.Username,
		"role":     op.Role,
	})
}
