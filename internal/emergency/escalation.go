package emergency

import (
	"context"
	"fmt"

	"Haven/internal/models"
	"Haven/pkg/logger"
	"Haven/pkg/metrics"

	"go.uber.org/zap"
)

// runEscalationCheck 延迟触发的一次性升级检查：只对仍未确认的联系人
// 发送第二波更紧急的提醒。失败不再进一步升级（每波每人至多一次）
func (o *Orchestrator) runEscalationCheck(sessionID string) {
	ctx := context.Background()

	session, err := models.GetEmergencySession(o.db, sessionID)
	if err != nil {
		logger.Warn("escalation: failed to load session", zap.String("session", sessionID), zap.Error(err))
		return
	}
	if session.Status != models.SessionActive {
		// 会话已结束，定时器空转
		return
	}

	unacked, err := models.UnacknowledgedContacts(o.db, sessionID)
	if err != nil {
		logger.Warn("escalation: failed to load contacts", zap.String("session", sessionID), zap.Error(err))
		return
	}
	if len(unacked) == 0 {
		// 全部确认或本就没有联系人
		return
	}

	if err := models.AppendActionLog(o.db, sessionID, models.ActionSMS,
		fmt.Sprintf("tier-2 escalation: %d contact(s) have not acknowledged", len(unacked))); err != nil {
		logger.Warn("escalation: failed to append log", zap.String("session", sessionID), zap.Error(err))
	}
	if err := models.AppendAuditEvent(o.db, sessionID, models.AuditEscalationTier2,
		map[string]interface{}{"count": len(unacked)}); err != nil {
		logger.Warn("escalation: failed to append audit", zap.String("session", sessionID), zap.Error(err))
	}
	metrics.EscalationsFired.Inc()
	o.publishSnapshot(sessionID)

	ownerName := o.ownerDisplayName(session.OwnerID)
	for i := range unacked {
		contact := &unacked[i]
		res := o.gateway.Send(ctx, contact.Phone, o.escalationMessage(ownerName, contact))
		if !res.Success {
			logger.Warn("escalation SMS failed",
				zap.String("session", sessionID),
				zap.String("contact", contact.Name),
				zap.String("reason", res.Reason))
		}
	}
}
