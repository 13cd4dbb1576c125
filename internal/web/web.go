package web

import (
	"net/http"

	"homehub/auth"
	"homehub/internal/db"
	"homehub/internal/feature"
	"homehub/internal/hub"
	"homehub/internal/logger"
	"homehub/internal/scene"
	"homehub/internal/schedule"
	"homehub/internal/trigger"
	"homehub/internal/web/api"
	"homehub/internal/web/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Services bundles everything the HTTP surface exposes
type Services struct {
	Hub       *hub.Hub
	Features  *feature.Service
	Scenes    *scene.Service
	Schedules *schedule.Service
	Triggers  *trigger.Service
	Store     *db.DB
	Auth      *auth.AuthModule
	OnChange  func(deviceID string)
}

type WebServer struct {
	router *gin.Engine
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func NewWebServer(log *logger.Logger, svc Services) *WebServer {
	router := gin.Default()

	middlewareManager := middleware.NewMiddlewareManager(svc.Auth)

	api.RegisterAuthRoutes(router, svc.Auth)
	api.RegisterDeviceRoutes(router, middlewareManager, svc.Hub, svc.Store, svc.Features, svc.OnChange)
	api.RegisterSceneRoutes(router, middlewareManager, svc.Scenes)
	api.RegisterScheduleRoutes(router, middlewareManager, svc.Schedules)
	api.RegisterTriggerRoutes(router, middlewareManager, svc.Triggers)
	api.RegisterActionRoutes(router, middlewareManager, svc.Store)

	router.GET("/ws/device", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warnw("device socket upgrade failed", "err", err)
			return
		}
		go svc.Hub.ServeDevice(conn)
	})

	router.GET("/ws/dashboard", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warnw("dashboard socket upgrade failed", "err", err)
			return
		}
		go svc.Hub.ServeDashboard(conn)
	})

	return &WebServer{router: router}
}

func (ws *WebServer) Start(addr string) {
	ws.router.Run(addr)
}
