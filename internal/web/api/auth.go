package api

import (
	"homehub/auth"
	webModels "homehub/internal/web/models"

	"github.com/gin-gonic/gin"
)

func RegisterAuthRoutes(router *gin.Engine, authModule *auth.AuthModule) {
	r := router.Group("/auth")
	{
		r.POST("/login", func(c *gin.Context) {
			var req webModels.LoginRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}
			token, err := authModule.LoginWithJWT(c, req.Username, req.Password)
			if err != nil {
				c.JSON(401, gin.H{"error": err.Error()})
				return
			}
			_, session, err := authModule.LoginWithSession(c, req.Username, req.Password)
			if err != nil {
				c.JSON(401, gin.H{"error": err.Error()})
				return
			}
			c.JSON(200, gin.H{"token": token, "sessionId": session})
		})
		r.POST("/register", func(c *gin.Context) {
			var req webModels.RegisterRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}
			_, session, err := authModule.Register(c, req.Username, req.Password, req.Email)
			if err != nil {
				c.JSON(400, gin.H{"error": err.Error()})
				return
			}
			c.JSON(201, gin.H{"sessionId": session})
		})
		r.POST("/logout", func(c *gin.Context) {
			session := c.GetHeader("X-Session-Id")
			if session == "" {
				c.JSON(400, gin.H{"error": "Missing session"})
				return
			}
			if err := authModule.LogoutSession(c, session); err != nil {
				c.JSON(500, gin.H{"error": "Failed to close session"})
				return
			}
			c.JSON(200, gin.H{"status": "Logged out"})
		})
	}
}
