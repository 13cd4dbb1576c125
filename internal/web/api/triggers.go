package api

import (
	"context"

	"homehub/internal/models"
	"homehub/internal/trigger"
	"homehub/internal/web/middleware"
	webModels "homehub/internal/web/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ActionStore persists action rows for scenes, schedules and triggers
type ActionStore interface {
	ActionsByOwner(ctx context.Context, ownerType models.ActionOwner, ownerID string) ([]models.Action, error)
	CreateAction(ctx context.Context, a *models.Action) error
	DeleteAction(ctx context.Context, id string) error
}

func RegisterTriggerRoutes(router *gin.Engine, mw *middleware.MiddlewareManager, triggers *trigger.Service) {
	r := router.Group("/triggers")
	r.Use(mw.RequireAuth())
	{
		r.GET("", func(c *gin.Context) {
			c.JSON(200, triggers.Triggers())
		})

		r.POST("", func(c *gin.Context) {
			var req webModels.AddTriggerRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}
			t, root, err := triggers.Create(c, req.Name)
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to create trigger"})
				return
			}
			c.JSON(201, gin.H{"trigger": t, "rootGroup": root})
		})

		r.DELETE("/:id", func(c *gin.Context) {
			if err := triggers.Delete(c, c.Param("id")); err != nil {
				c.JSON(404, gin.H{"error": err.Error()})
				return
			}
			c.JSON(200, gin.H{"status": "Trigger deleted"})
		})

		r.GET("/:id/evaluate", func(c *gin.Context) {
			result, err := triggers.Evaluate(c.Param("id"))
			if err != nil {
				c.JSON(404, gin.H{"error": err.Error()})
				return
			}
			c.JSON(200, gin.H{"result": result})
		})

		r.POST("/:id/fire", func(c *gin.Context) {
			fired, err := triggers.Fire(c, c.Param("id"))
			if err != nil {
				c.JSON(404, gin.H{"error": err.Error()})
				return
			}
			c.JSON(200, gin.H{"fired": fired})
		})
	}

	groups := router.Group("/condition-groups")
	groups.Use(mw.RequireAuth())
	{
		groups.POST("", func(c *gin.Context) {
			var req webModels.AddGroupRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}
			g, err := triggers.CreateGroup(c, req.TriggerID, req.ParentID, req.Operator, req.Sort)
			if err != nil {
				c.JSON(400, gin.H{"error": err.Error()})
				return
			}
			c.JSON(201, g)
		})

		groups.PATCH("/:id", func(c *gin.Context) {
			var req webModels.SetOperatorRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}
			if err := triggers.SetOperator(c, c.Param("id"), req.Operator); err != nil {
				c.JSON(400, gin.H{"error": err.Error()})
				return
			}
			c.JSON(200, gin.H{"status": "Operator set"})
		})

		groups.DELETE("/:id", func(c *gin.Context) {
			if err := triggers.DeleteGroup(c, c.Param("id")); err != nil {
				c.JSON(400, gin.H{"error": err.Error()})
				return
			}
			c.JSON(200, gin.H{"status": "Group deleted"})
		})
	}

	items := router.Group("/condition-items")
	items.Use(mw.RequireAuth())
	{
		items.POST("", func(c *gin.Context) {
			var req webModels.AddItemRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}
			it, err := triggers.CreateItem(c, req.GroupID, req.FeatureID, req.Comparator, req.Value, req.Sort)
			if err != nil {
				c.JSON(400, gin.H{"error": err.Error()})
				return
			}
			c.JSON(201, it)
		})

		items.DELETE("/:id", func(c *gin.Context) {
			if err := triggers.DeleteItem(c, c.Param("id")); err != nil {
				c.JSON(404, gin.H{"error": err.Error()})
				return
			}
			c.JSON(200, gin.H{"status": "Item deleted"})
		})
	}
}

func RegisterActionRoutes(router *gin.Engine, mw *middleware.MiddlewareManager, store ActionStore) {
	r := router.Group("/actions")
	r.Use(mw.RequireAuth())
	{
		r.GET("", func(c *gin.Context) {
			ownerType := models.ActionOwner(c.Query("ownerType"))
			ownerID := c.Query("ownerId")
			if ownerID == "" || !validOwner(ownerType) {
				c.JSON(400, gin.H{"error": "Invalid owner"})
				return
			}
			actions, err := store.ActionsByOwner(c, ownerType, ownerID)
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to fetch actions"})
				return
			}
			c.JSON(200, actions)
		})

		r.POST("", func(c *gin.Context) {
			var req webModels.AddActionRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}
			ownerType := models.ActionOwner(req.OwnerType)
			if !validOwner(ownerType) {
				c.JSON(400, gin.H{"error": "Invalid owner"})
				return
			}
			a := models.Action{
				ID:        uuid.NewString(),
				OwnerType: ownerType,
				OwnerID:   req.OwnerID,
				Sort:      req.Sort,
				Verb:      req.Verb,
				FeatureID: req.FeatureID,
				SceneID:   req.SceneID,
				Value:     req.Value,
			}
			if err := store.CreateAction(c, &a); err != nil {
				c.JSON(500, gin.H{"error": "Failed to create action"})
				return
			}
			c.JSON(201, a)
		})

		r.DELETE("/:id", func(c *gin.Context) {
			if err := store.DeleteAction(c, c.Param("id")); err != nil {
				c.JSON(500, gin.H{"error": "Failed to delete action"})
				return
			}
			c.JSON(200, gin.H{"status": "Action deleted"})
		})
	}
}

func validOwner(t models.ActionOwner) bool {
	switch t {
	case models.OwnerScene, models.OwnerSchedule, models.OwnerTrigger:
		return true
	}
	return false
}
