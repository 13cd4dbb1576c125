package api

import (
	"homehub/internal/scene"
	"homehub/internal/web/middleware"
	webModels "homehub/internal/web/models"

	"github.com/gin-gonic/gin"
)

func RegisterSceneRoutes(router *gin.Engine, mw *middleware.MiddlewareManager, scenes *scene.Service) {
	r := router.Group("/scenes")
	r.Use(mw.RequireAuth())
	{
		r.GET("", func(c *gin.Context) {
			c.JSON(200, scenes.Scenes())
		})

		r.POST("", func(c *gin.Context) {
			var req webModels.AddSceneRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}
			s, err := scenes.Create(c, req.Name)
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to create scene"})
				return
			}
			c.JSON(201, s)
		})

		r.POST("/:id/execute", func(c *gin.Context) {
			if err := scenes.Execute(c, c.Param("id")); err != nil {
				c.JSON(404, gin.H{"error": err.Error()})
				return
			}
			c.JSON(200, gin.H{"status": "Scene executed"})
		})

		r.DELETE("/:id", func(c *gin.Context) {
			if err := scenes.Delete(c, c.Param("id")); err != nil {
				c.JSON(404, gin.H{"error": err.Error()})
				return
			}
			c.JSON(200, gin.H{"status": "Scene deleted"})
		})
	}
}
