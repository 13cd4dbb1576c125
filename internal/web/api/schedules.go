package api

import (
	"strconv"

	"homehub/internal/schedule"
	"homehub/internal/web/middleware"
	webModels "homehub/internal/web/models"

	"github.com/gin-gonic/gin"
)

func RegisterScheduleRoutes(router *gin.Engine, mw *middleware.MiddlewareManager, schedules *schedule.Service) {
	r := router.Group("/schedules")
	r.Use(mw.RequireAuth())
	{
		r.GET("", func(c *gin.Context) {
			out := []gin.H{}
			for _, sch := range schedules.Schedules() {
				out = append(out, gin.H{
					"id":     sch.ID,
					"name":   sch.Name,
					"cron":   sch.Cron,
					"runs":   sch.Runs,
					"runCap": sch.RunCap,
					"active": sch.Active,
					"timer":  schedules.TimerState(sch.ID),
				})
			}
			c.JSON(200, out)
		})

		r.POST("", func(c *gin.Context) {
			var req webModels.AddScheduleRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}
			sch, err := schedules.Create(c, req.Name, req.Cron, req.RunCap, req.Active)
			if err != nil {
				c.JSON(400, gin.H{"error": err.Error()})
				return
			}
			c.JSON(201, sch)
		})

		r.PATCH("/:id", func(c *gin.Context) {
			var req webModels.UpdateScheduleRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}
			sch, err := schedules.ScheduleByID(c.Param("id"))
			if err != nil {
				c.JSON(404, gin.H{"error": err.Error()})
				return
			}
			if req.Name != nil {
				sch.Name = *req.Name
			}
			if req.Cron != nil {
				sch.Cron = *req.Cron
			}
			if req.RunCap != nil {
				sch.RunCap = *req.RunCap
			}
			if req.Active != nil {
				sch.Active = *req.Active
			}
			if err := schedules.Update(c, &sch); err != nil {
				c.JSON(400, gin.H{"error": err.Error()})
				return
			}
			c.JSON(200, sch)
		})

		r.DELETE("/:id", func(c *gin.Context) {
			if err := schedules.Delete(c, c.Param("id")); err != nil {
				c.JSON(404, gin.H{"error": err.Error()})
				return
			}
			c.JSON(200, gin.H{"status": "Schedule deleted"})
		})

		// previews the next firing times of a cron expression
		r.GET("/explain", func(c *gin.Context) {
			expr := c.Query("cron")
			n, _ := strconv.Atoi(c.DefaultQuery("count", "5"))
			times, err := schedule.Explain(expr, n)
			if err != nil {
				c.JSON(400, gin.H{"error": err.Error()})
				return
			}
			c.JSON(200, gin.H{"cron": expr, "next": times})
		})
	}
}
