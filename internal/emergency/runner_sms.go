package emergency

import (
	"context"
	"fmt"

	"Haven/internal/models"
	"Haven/pkg/logger"
	"Haven/pkg/metrics"
	"Haven/pkg/scheduler"

	"go.uber.org/zap"
)

// runSMSFanout 首轮短信扇出。联系人列表取会话启动时的快照，
// 每个联系人发送前复查会话状态（协作式取消，不抢占进行中的发送）
func (o *Orchestrator) runSMSFanout(sessionID string) {
	ctx := context.Background()

	session, err := models.GetEmergencySession(o.db, sessionID)
	if err != nil {
		logger.Error("sms runner: failed to load session", zap.String("session", sessionID), zap.Error(err))
		return
	}
	if session.Status != models.SessionActive {
		// 与立即取消竞争：不发送任何内容
		logger.Info("sms runner: session already terminal, skipping", zap.String("session", sessionID))
		return
	}

	if err := models.SetActionState(o.db, sessionID, models.ActionSMS, models.ActionRunning, nil); err != nil {
		logger.Warn("sms runner: failed to mark running", zap.String("session", sessionID), zap.Error(err))
	}
	if err := models.AppendActionLog(o.db, sessionID, models.ActionSMS,
		fmt.Sprintf("notifying %d trusted contact(s)", len(session.Contacts))); err != nil {
		logger.Warn("sms runner: failed to append log", zap.String("session", sessionID), zap.Error(err))
	}
	o.publishSnapshot(sessionID)

	ownerName := o.ownerDisplayName(session.OwnerID)

	delivered, failed := 0, 0
	halted := false
	for i := range session.Contacts {
		contact := &session.Contacts[i]

		status, err := models.SessionStatus(o.db, sessionID)
		if err == nil && status != models.SessionActive {
			_ = models.AppendActionLog(o.db, sessionID, models.ActionSMS,
				"fan-out halted: session no longer active")
			halted = true
			break
		}

		res := o.gateway.Send(ctx, contact.Phone, o.contactMessage(ownerName, contact))

		outcome := models.SMSSent
		logLine := fmt.Sprintf("SMS to %s: delivered", contact.Name)
		if res.Success {
			delivered++
			metrics.SMSAttempts.WithLabelValues("delivered").Inc()
		} else {
			failed++
			outcome = models.SMSFailed
			logLine = fmt.Sprintf("SMS to %s: failed (%s)", contact.Name, res.Reason)
			metrics.SMSAttempts.WithLabelValues("failed").Inc()
		}

		if err := models.SetContactOutcome(o.db, sessionID, contact.AckToken, res.Success, outcome); err != nil {
			logger.Warn("sms runner: failed to record contact outcome",
				zap.String("session", sessionID), zap.String("contact", contact.Name), zap.Error(err))
		}
		if err := models.AppendActionLog(o.db, sessionID, models.ActionSMS, logLine); err != nil {
			logger.Warn("sms runner: failed to append log", zap.String("session", sessionID), zap.Error(err))
		}
		// 每个联系人后都推送，观察者看到渐进扇出而非最终批量结果
		o.publishSnapshot(sessionID)
	}

	if halted {
		// 观察到终止态后不再改写动作状态，也不再安排升级检查
		o.publishSnapshot(sessionID)
		return
	}

	switch {
	case len(session.Contacts) == 0:
		_ = models.SetActionState(o.db, sessionID, models.ActionSMS, models.ActionSuccess,
			map[string]interface{}{"summary": "no contacts configured"})
		_ = models.AppendActionLog(o.db, sessionID, models.ActionSMS, "no contacts configured")
	case delivered > 0:
		// 刻意宽松：任何一条送达即视为成功，进入升级跟踪
		_ = models.SetActionState(o.db, sessionID, models.ActionSMS, models.ActionSuccess,
			map[string]interface{}{"delivered": delivered, "failed": failed})
	default:
		_ = models.SetActionState(o.db, sessionID, models.ActionSMS, models.ActionFailed,
			map[string]interface{}{"delivered": 0, "failed": failed})
	}
	o.publishSnapshot(sessionID)

	// 一次性升级检查；会话若已结束则届时空转
	o.sched.OnceAfter(o.cfg.EscalationDelay, scheduler.FuncJob(func(ctx context.Context) {
		o.runEscalationCheck(sessionID)
	}))
}
