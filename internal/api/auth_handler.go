package api

import (
	"crypto/subtle"

	"fabrika/internal/auth"
	"fabrika/internal/config"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	cfg config.AuthConfig
}

func NewAuthHandler(cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var r loginRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(400, gin.H{"error": "JSON format error"})
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(r.Username), []byte(h.cfg.AdminUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(r.Password), []byte(h.cfg.AdminPassword)) == 1
	if !userOK || !passOK {
		c.JSON(401, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := auth.GenerateToken([]byte(h.cfg.Secret), r.Username, "admin", h.cfg.AccessTokenTTL)
	if err != nil {
		c.JSON(500, gin.H{"error": "token generation failed"})
		return
	}
	c.JSON(200, gin.H{"access_token": token})
}
