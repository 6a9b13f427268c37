package handlers

import (
	"Haven/internal/emergency"
	"Haven/pkg/realtime"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handlers struct {
	db   *gorm.DB
	orch *emergency.Orchestrator
	hub  *realtime.Hub
}

func NewHandlers(db *gorm.DB, orch *emergency.Orchestrator, hub *realtime.Hub) *Handlers {
	return &Handlers{db: db, orch: orch, hub: hub}
}

// RegisterRoutes 注册路由
func (h *Handlers) RegisterRoutes(r *gin.Engine, prefix string) {
	api := r.Group(prefix)
	{
		api.POST("/emergency/start", h.handleStartSession)
		api.POST("/emergency/:id/location", h.handleLocationPing)
		api.POST("/emergency/:id/cancel", h.handleCancelSession)
		api.GET("/emergency/:id", h.handleGetSession)
		api.GET("/emergency/:id/live", h.handleLive)
		api.GET("/ack/:token", h.handleAcknowledge)
	}
	r.GET("/health", h.HealthCheck)
}
