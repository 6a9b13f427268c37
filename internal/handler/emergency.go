package handlers

import (
	"net/http"

	"Haven/internal/emergency"
	"Haven/pkg/realtime"
	"Haven/pkg/response"

	"github.com/gin-gonic/gin"
)

type startSessionRequest struct {
	OwnerID   uint   `json:"ownerId" binding:"required"`
	RiskLevel string `json:"riskLevel"`
}

// 零值坐标（赤道、本初子午线）合法，范围校验在编排层做
type locationPingRequest struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy"`
}

type cancelSessionRequest struct {
	PIN string `json:"pin"`
}

func (h *Handlers) handleStartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session, err := h.orch.StartSession(c.Request.Context(), req.OwnerID, req.RiskLevel)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "emergency session started", gin.H{
		"sessionId": session.ID,
		"actions":   emergency.BuildSnapshot(session).Actions,
	})
}

func (h *Handlers) handleLocationPing(c *gin.Context) {
	var req locationPingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.orch.SubmitLocationPing(c.Request.Context(), c.Param("id"), req.Lat, req.Lng, req.Accuracy); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "location recorded", nil)
}

func (h *Handlers) handleCancelSession(c *gin.Context) {
	var req cancelSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.orch.CancelSession(c.Request.Context(), c.Param("id"), req.PIN); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "session resolved", nil)
}

func (h *Handlers) handleAcknowledge(c *gin.Context) {
	name, err := h.orch.AcknowledgeByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "acknowledged", gin.H{"contactName": name})
}

func (h *Handlers) handleGetSession(c *gin.Context) {
	state, err := h.orch.GetSessionState(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "success", state)
}

// handleLive 观察者接入会话频道；历史状态通过 GET /emergency/:id 补全
func (h *Handlers) handleLive(c *gin.Context) {
	sessionID := c.Param("id")
	realtime.HandleWebSocket(h.hub, c.Writer, c.Request, c.Query("userId"), emergency.ChannelName(sessionID))
}
