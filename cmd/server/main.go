package main

import (
	"context"
	"log"
	"time"

	"Haven/internal/emergency"
	handlers "Haven/internal/handler"
	"Haven/internal/models"
	"Haven/pkg/cache"
	"Haven/pkg/config"
	"Haven/pkg/logger"
	"Haven/pkg/metrics"
	"Haven/pkg/notification"
	"Haven/pkg/realtime"
	"Haven/pkg/scheduler"
	"Haven/pkg/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.GlobalConfig

	logger.Init(cfg.Log)
	defer logger.Sync()

	db, err := util.ConnectDatabase(cfg.DBDriver, cfg.DSN)
	if err != nil {
		logger.Error("failed to connect database", zap.Error(err))
		log.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.TrustedContact{},
		&models.EmergencySession{},
		&models.EmergencyAction{},
		&models.EmergencyContact{},
		&models.ActionLog{},
		&models.AuditEvent{},
		&models.LocationPing{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	snapshotCache, err := cache.NewCache(cfg.Cache)
	if err != nil {
		log.Fatalf("failed to create cache: %v", err)
	}
	defer snapshotCache.Close()

	hub := realtime.NewHub(nil)
	defer hub.Close()

	gateway := notification.NewSMSGateway(cfg.SMS, nil)
	publisher := emergency.NewLivePublisher(hub, snapshotCache)

	sched := scheduler.New()
	defer sched.Stop()

	orch := emergency.New(db, gateway, publisher, sched, emergency.Config{
		AckBaseURL:      cfg.AckBaseURL,
		EscalationDelay: cfg.EscalationDelay,
		SMSBodyLimit:    cfg.SMS.MaxBodyLen,
	})

	// 位置轨迹保留窗口之外的记录每日清理
	retention := time.Duration(cfg.PingRetentionDays) * 24 * time.Hour
	cr := scheduler.NewCron(nil)
	if _, err := cr.AddWithCtx("30 3 * * *", func(ctx context.Context) {
		n, err := models.PurgeExpiredPings(db, retention)
		if err != nil {
			logger.Warn("ping purge failed", zap.Error(err))
			return
		}
		logger.Info("purged expired location pings", zap.Int64("count", n))
	}); err != nil {
		log.Fatalf("failed to schedule ping purge: %v", err)
	}
	cr.Start()
	defer cr.Stop()

	// 实时观察者连接数指标
	sched.Every(15*time.Second, scheduler.FuncJob(func(ctx context.Context) {
		metrics.LiveConnections.Set(float64(hub.ConnectionCount()))
	}))

	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), metrics.Middleware())
	r.GET("/metrics", metrics.Handler())

	h := handlers.NewHandlers(db, orch, hub)
	h.RegisterRoutes(r, cfg.APIPrefix)

	logger.Info("server starting", zap.String("addr", cfg.Addr))
	if err := r.Run(cfg.Addr); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
