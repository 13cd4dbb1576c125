package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"homehub/auth"
	"homehub/internal/action"
	"homehub/internal/cloud"
	"homehub/internal/config"
	"homehub/internal/db"
	"homehub/internal/feature"
	"homehub/internal/hub"
	"homehub/internal/logger"
	"homehub/internal/mqtt"
	"homehub/internal/redis"
	"homehub/internal/scene"
	"homehub/internal/schedule"
	"homehub/internal/taskqueue"
	"homehub/internal/trigger"
	"homehub/internal/web"

	"github.com/pion/mdns/v2"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg := logger.Get(cfg.LogLevel)

	dbConn, err := db.NewDB(cfg.Database.URL)
	if err != nil {
		lg.Fatalf("Failed to connect to DB: %v", err)
	}
	defer dbConn.Close(context.Background())

	redisClient := redis.NewRedisClient(cfg.Redis.Addr)

	mqttClient, err := mqtt.NewClient(cfg.MQTT.Broker, cfg.MQTT.ClientID)
	if err != nil {
		lg.Fatalf("Failed to connect to MQTT: %v", err)
	}

	authModule := auth.NewAuthModule(dbConn.Pool(), redisClient, cfg.JWT.Secret)

	hubInstance := hub.New(lg, dbConn)
	features := feature.NewService(lg, feature.NewRegistry(), dbConn)
	dispatcher := action.NewDispatcher(lg, features)
	scenes := scene.NewService(lg, dbConn, dispatcher)
	schedules := schedule.NewService(lg, dbConn, dispatcher)
	triggers := trigger.NewService(lg, dbConn, features, dispatcher)

	dispatcher.BindScenes(scenes)
	features.BindSinks(hubInstance, hubInstance)

	onDeviceChange := func(deviceID string) {
		if err := taskqueue.EnqueueEvaluation(deviceID); err != nil {
			lg.Warnw("trigger evaluation enqueue failed", "device", deviceID, "err", err)
		}
	}
	hubInstance.Bind(features, authModule, onDeviceChange)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// hub first so feature loading can resolve cloud ids
	if err := hubInstance.Load(ctx); err != nil {
		lg.Fatalf("Failed to load devices: %v", err)
	}
	if err := features.Load(ctx, hubInstance); err != nil {
		lg.Fatalf("Failed to load features: %v", err)
	}
	if err := scenes.Load(ctx); err != nil {
		lg.Fatalf("Failed to load scenes: %v", err)
	}
	if err := schedules.Load(ctx); err != nil {
		lg.Fatalf("Failed to load schedules: %v", err)
	}
	if err := triggers.Load(ctx); err != nil {
		lg.Fatalf("Failed to load triggers: %v", err)
	}

	taskqueue.SetGlobalInstances(triggers)
	taskqueue.Connect(cfg.Redis.Addr)
	go taskqueue.StartWorkers(cfg.Redis.Addr)

	bridge := mqtt.NewBridge(lg, mqttClient, features, hubInstance, onDeviceChange)
	if err := bridge.Start(); err != nil {
		lg.Fatalf("Failed to subscribe MQTT bridge: %v", err)
	}
	hubInstance.SetCommandPublisher(bridge)

	schedules.Start()

	watchdog := hub.NewWatchdog(lg, hubInstance,
		time.Duration(cfg.Watchdog.IntervalSecs)*time.Second,
		time.Duration(cfg.Watchdog.ThresholdSecs)*time.Second)
	watchdog.Start()

	if cfg.Cloud.Enabled {
		cloudClient := cloud.NewClient(cfg.Cloud.BaseURL, cfg.Cloud.ClientID, cfg.Cloud.ClientSecret)
		syncer := cloud.NewSyncer(lg, cloudClient, features,
			time.Duration(cfg.Cloud.PushMillis)*time.Millisecond,
			time.Duration(cfg.Cloud.PullMillis)*time.Millisecond)
		syncer.Start(ctx)
	} else {
		lg.Infow("cloud sync disabled")
	}

	webServer := web.NewWebServer(lg, web.Services{
		Hub:       hubInstance,
		Features:  features,
		Scenes:    scenes,
		Schedules: schedules,
		Triggers:  triggers,
		Store:     dbConn,
		Auth:      authModule,
		OnChange:  onDeviceChange,
	})
	go webServer.Start(fmt.Sprintf(":%d", cfg.App.Port))

	go startMDNSServer(cfg.MDNS.LocalName)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	watchdog.Stop()
	schedules.Stop()
	taskqueue.StopWorkers()
	cancel()
	lg.Infow("shutdown complete")
}

func startMDNSServer(localName string) {
	addr4, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddressIPv4)
	if err != nil {
		log.Println("Failed to resolve UDP4 address for mDNS:", err)
		return
	}

	addr6, err := net.ResolveUDPAddr("udp6", mdns.DefaultAddressIPv6)
	if err != nil {
		log.Println("Failed to resolve UDP6 address for mDNS:", err)
		return
	}

	l4, err := net.ListenUDP("udp4", addr4)
	if err != nil {
		log.Println("Failed to listen on UDP4 for mDNS:", err)
		return
	}

	l6, err := net.ListenUDP("udp6", addr6)
	if err != nil {
		log.Println("Failed to listen on UDP6 for mDNS:", err)
		return
	}

	_, err = mdns.Server(ipv4.NewPacketConn(l4), ipv6.NewPacketConn(l6), &mdns.Config{
		LocalNames: []string{localName},
	})
	if err != nil {
		log.Println("Failed to start mDNS server:", err)
	}
}
