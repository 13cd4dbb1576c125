package api

import (
	"context"

	"homehub/internal/feature"
	"homehub/internal/models"
	"homehub/internal/web/middleware"
	webModels "homehub/internal/web/models"

	"github.com/gin-gonic/gin"
)

// DeviceHub is the slice of the hub the device routes need
type DeviceHub interface {
	DeviceList() []models.Device
	ResetDevice(hardwareID string) error
}

// DeviceStore persists device edits
type DeviceStore interface {
	SaveDeviceName(ctx context.Context, id, name string) error
}

func RegisterDeviceRoutes(router *gin.Engine, mw *middleware.MiddlewareManager, h DeviceHub, store DeviceStore, features *feature.Service, onChange func(deviceID string)) {
	devices := router.Group("/devices")
	devices.Use(mw.RequireAuth())
	{
		devices.GET("", func(c *gin.Context) {
			c.JSON(200, h.DeviceList())
		})

		devices.GET("/:id/features", func(c *gin.Context) {
			out := []gin.H{}
			for _, f := range features.Registry().ByDevice(c.Param("id")) {
				out = append(out, gin.H{
					"id":       f.ID,
					"localId":  f.LocalID,
					"name":     f.Name,
					"kind":     f.Kind,
					"value":    f.Value(),
					"readable": f.Readable(),
					"writable": f.Writable(),
				})
			}
			c.JSON(200, out)
		})

		devices.PATCH("/:id", func(c *gin.Context) {
			var req webModels.RenameDeviceRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}
			if err := store.SaveDeviceName(c, c.Param("id"), req.Name); err != nil {
				c.JSON(500, gin.H{"error": "Failed to rename device"})
				return
			}
			c.JSON(200, gin.H{"status": "Device renamed"})
		})

		devices.POST("/:hardwareId/reset", func(c *gin.Context) {
			if err := h.ResetDevice(c.Param("hardwareId")); err != nil {
				c.JSON(404, gin.H{"error": err.Error()})
				return
			}
			c.JSON(200, gin.H{"status": "Reset sent"})
		})
	}

	featureRoutes := router.Group("/features")
	featureRoutes.Use(mw.RequireAuth())
	{
		featureRoutes.PUT("/:id/value", func(c *gin.Context) {
			var req webModels.SetValueRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}
			id := c.Param("id")
			if err := features.SetValueByID(id, req.Value, feature.SourceDashboard, ""); err != nil {
				c.JSON(400, gin.H{"error": err.Error()})
				return
			}
			if onChange != nil {
				if deviceID, ok := features.DeviceOf(id); ok {
					onChange(deviceID)
				}
			}
			c.JSON(200, gin.H{"status": "Value set"})
		})
	}
}
