package emergency

import (
	"context"
	"fmt"

	"Haven/internal/models"
	"Haven/pkg/logger"

	"go.uber.org/zap"
)

// runResponderNotify 响应者通知运行器
func (o *Orchestrator) runResponderNotify(sessionID string) {
	ctx := context.Background()

	status, err := models.SessionStatus(o.db, sessionID)
	if err != nil {
		logger.Error("responder runner: failed to load session", zap.String("session", sessionID), zap.Error(err))
		return
	}
	if status != models.SessionActive {
		return
	}

	if err := models.SetActionState(o.db, sessionID, models.ActionResponder, models.ActionRunning, nil); err != nil {
		logger.Warn("responder runner: failed to mark running", zap.String("session", sessionID), zap.Error(err))
	}
	if err := models.AppendActionLog(o.db, sessionID, models.ActionResponder, "notifying on-call responders"); err != nil {
		logger.Warn("responder runner: failed to append log", zap.String("session", sessionID), zap.Error(err))
	}
	o.publishSnapshot(sessionID)

	count, err := o.responders.Notify(ctx, sessionID)
	if err != nil {
		_ = models.SetActionState(o.db, sessionID, models.ActionResponder, models.ActionFailed,
			map[string]interface{}{"reason": err.Error()})
		_ = models.AppendActionLog(o.db, sessionID, models.ActionResponder,
			fmt.Sprintf("responder notification failed: %s", err.Error()))
		o.publishSnapshot(sessionID)
		return
	}

	_ = models.SetActionState(o.db, sessionID, models.ActionResponder, models.ActionSuccess,
		map[string]interface{}{"responders": count})
	_ = models.AppendActionLog(o.db, sessionID, models.ActionResponder,
		fmt.Sprintf("%d responder(s) notified", count))
	if err := models.AppendAuditEvent(o.db, sessionID, models.AuditRespondersNotified,
		map[string]interface{}{"count": count}); err != nil {
		logger.Warn("responder runner: failed to append audit", zap.String("session", sessionID), zap.Error(err))
	}
	o.publishSnapshot(sessionID)
}
