package emergency

import (
	"context"
	"time"

	"Haven/internal/models"
	"Haven/pkg/errors"
	"Haven/pkg/logger"
	"Haven/pkg/metrics"
	"Haven/pkg/notification"
	"Haven/pkg/scheduler"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config 编排核心配置
type Config struct {
	// 嵌入短信的确认链接域名
	AckBaseURL string
	// 首轮短信结束到升级检查的延迟
	EscalationDelay time.Duration
	// 查询接口返回的最近位置条数
	RecentPingLimit int
	// 组装正文时使用的短信长度上限，与网关配置保持一致
	SMSBodyLimit int
}

// ResponderDispatch 响应者派单的扩展点；默认实现为内部通知
type ResponderDispatch interface {
	Notify(ctx context.Context, sessionID string) (int, error)
}

type internalDispatch struct{}

// 接入真实派单系统前的内部通知：记一个响应者
func (internalDispatch) Notify(ctx context.Context, sessionID string) (int, error) {
	return 1, nil
}

// Orchestrator 紧急会话编排入口：启动、取消、确认、位置上报
type Orchestrator struct {
	db         *gorm.DB
	gateway    notification.Gateway
	pub        Publisher
	sched      *scheduler.Scheduler
	responders ResponderDispatch
	cfg        Config
}

func New(db *gorm.DB, gateway notification.Gateway, pub Publisher, sched *scheduler.Scheduler, cfg Config) *Orchestrator {
	if cfg.EscalationDelay <= 0 {
		cfg.EscalationDelay = 60 * time.Second
	}
	if cfg.RecentPingLimit <= 0 {
		cfg.RecentPingLimit = 50
	}
	if cfg.SMSBodyLimit <= 0 {
		cfg.SMSBodyLimit = 160
	}
	return &Orchestrator{
		db:         db,
		gateway:    gateway,
		pub:        pub,
		sched:      sched,
		responders: internalDispatch{},
		cfg:        cfg,
	}
}

// WithResponderDispatch 替换响应者派单实现
func (o *Orchestrator) WithResponderDispatch(d ResponderDispatch) *Orchestrator {
	o.responders = d
	return o
}

// StartSession 创建会话并启动各动作运行器。会话创建成功即返回成功，
// 后续通知失败只体现在动作状态与日志里，不作为请求级错误
func (o *Orchestrator) StartSession(ctx context.Context, ownerID uint, riskLevel string) (*models.EmergencySession, error) {
	owner, err := models.GetUser(o.db, ownerID)
	if err != nil {
		return nil, errors.WrapCode(errors.CodeNotFound, err, "owner not found")
	}
	trusted, err := models.GetSafeTrustedContacts(o.db, ownerID)
	if err != nil {
		return nil, errors.WrapCode(errors.CodeStore, err, "failed to load trusted contacts")
	}

	session, err := models.CreateEmergencySession(o.db, owner, riskLevel, trusted)
	if err != nil {
		return nil, errors.WrapCode(errors.CodeStore, err, "failed to create emergency session")
	}

	metrics.SessionsStarted.Inc()
	logger.Info("emergency session started",
		zap.String("session", session.ID),
		zap.Uint("owner", ownerID),
		zap.String("risk", riskLevel),
		zap.Int("contacts", len(trusted)))

	o.publishSnapshot(session.ID)
	o.spawnRunners(session.ID)
	return session, nil
}

// spawnRunners 动作运行器的唯一分发点。LOCATION 由入站 ping 驱动，
// EVIDENCE 由上传流程驱动，二者不在此启动
func (o *Orchestrator) spawnRunners(sessionID string) {
	for _, kind := range models.ActionKinds {
		switch kind {
		case models.ActionSMS:
			go o.supervised(sessionID, "sms_fanout", func() { o.runSMSFanout(sessionID) })
		case models.ActionResponder:
			go o.supervised(sessionID, "responder_notify", func() { o.runResponderNotify(sessionID) })
		}
	}
}

// supervised 运行器内 panic 只记录，不影响进程和其他运行器
func (o *Orchestrator) supervised(sessionID, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("action runner panicked",
				zap.String("session", sessionID),
				zap.String("runner", name),
				zap.Any("panic", r))
		}
	}()
	fn()
}

// SubmitLocationPing 处理一次位置上报；会话非 active 时拒绝且无任何副作用
func (o *Orchestrator) SubmitLocationPing(ctx context.Context, sessionID string, lat, lng, accuracy float64) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 || accuracy < 0 {
		return errors.WithCode(errors.CodeValidation, "invalid coordinates")
	}

	now := time.Now()
	ok, err := models.UpdateLastLocation(o.db, sessionID, lat, lng, accuracy, now)
	if err != nil {
		return errors.WrapCode(errors.CodeStore, err, "failed to update location")
	}
	if !ok {
		return errors.WithCode(errors.CodeNotFound, "session not found or not active")
	}

	// 以下均尽力而为：单步失败不中断整条路径
	if _, err := models.CreateLocationPing(o.db, sessionID, lat, lng, accuracy); err != nil {
		logger.Warn("failed to persist location ping", zap.String("session", sessionID), zap.Error(err))
	}
	if err := models.SetActionState(o.db, sessionID, models.ActionLocation, models.ActionRunning,
		map[string]interface{}{"lat": lat, "lng": lng, "accuracy": accuracy}); err != nil {
		logger.Warn("failed to update location action", zap.String("session", sessionID), zap.Error(err))
	}
	if err := models.AppendActionLog(o.db, sessionID, models.ActionLocation,
		formatFixLog(lat, lng, accuracy)); err != nil {
		logger.Warn("failed to append location log", zap.String("session", sessionID), zap.Error(err))
	}

	metrics.LocationPings.Inc()
	o.pub.PublishLocationEvent(sessionID, lat, lng, accuracy, now)
	o.publishSnapshot(sessionID)
	return nil
}

// AcknowledgeByToken 受信任联系人通过短信里的链接确认。重复确认幂等
func (o *Orchestrator) AcknowledgeByToken(ctx context.Context, token string) (string, error) {
	contact, already, err := models.AcknowledgeContact(o.db, token)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", errors.WithCode(errors.CodeNotFound, "invalid or expired token")
		}
		return "", errors.WrapCode(errors.CodeStore, err, "failed to acknowledge")
	}
	if already {
		return contact.Name, nil
	}

	if err := models.AppendAuditEvent(o.db, contact.SessionID, models.AuditContactAck,
		map[string]interface{}{"contact": contact.Name}); err != nil {
		logger.Warn("failed to append ack audit", zap.String("session", contact.SessionID), zap.Error(err))
	}
	if err := models.AppendActionLog(o.db, contact.SessionID, models.ActionSMS,
		"contact "+contact.Name+" acknowledged the alert"); err != nil {
		logger.Warn("failed to append ack log", zap.String("session", contact.SessionID), zap.Error(err))
	}

	metrics.ContactAcks.Inc()
	o.publishSnapshot(contact.SessionID)
	return contact.Name, nil
}

// CancelSession PIN 门控的取消：错误 PIN 不产生任何变更。
// 配置了 PIN 时，夺走设备的胁迫者无法静默取消警报
func (o *Orchestrator) CancelSession(ctx context.Context, sessionID, pin string) error {
	session, err := models.GetEmergencySession(o.db, sessionID)
	if err != nil {
		return errors.WithCode(errors.CodeNotFound, "session not found")
	}
	if session.Status != models.SessionActive {
		return errors.WithCode(errors.CodeNotActive, "session not active")
	}
	if session.SafetyPINHash != "" && !models.VerifySafetyPIN(session.SafetyPINHash, pin) {
		return errors.WithCode(errors.CodeIncorrectPIN, "incorrect PIN")
	}

	ok, err := models.ResolveSession(o.db, sessionID)
	if err != nil {
		return errors.WrapCode(errors.CodeStore, err, "failed to resolve session")
	}
	if !ok {
		// 与并发取消竞争失败
		return errors.WithCode(errors.CodeNotActive, "session not active")
	}

	if err := models.SetActionState(o.db, sessionID, models.ActionLocation, models.ActionSuccess,
		map[string]interface{}{"stopped": "session resolved"}); err != nil {
		logger.Warn("failed to settle location action", zap.String("session", sessionID), zap.Error(err))
	}
	if err := models.AppendAuditEvent(o.db, sessionID, models.AuditSessionResolved, nil); err != nil {
		logger.Warn("failed to append resolve audit", zap.String("session", sessionID), zap.Error(err))
	}

	metrics.SessionsResolved.Inc()
	logger.Info("emergency session resolved", zap.String("session", sessionID))
	o.publishSnapshot(sessionID)
	return nil
}

// SessionState 查询接口返回的完整状态（重连/晚加入观察者补全用）
type SessionState struct {
	Snapshot *Snapshot             `json:"snapshot"`
	Pings    []models.LocationPing `json:"recentPings"`
	Logs     []models.ActionLog    `json:"logs"`
	Audit    []models.AuditEvent   `json:"auditTrail"`
}

// GetSessionState 查询接口与晚加入观察者的补全路径。
// 快照优先走缓存（每次发布都写入），未命中再读聚合
func (o *Orchestrator) GetSessionState(ctx context.Context, sessionID string) (*SessionState, error) {
	state := &SessionState{}
	if snap, ok := o.pub.CachedSnapshot(ctx, sessionID); ok {
		state.Snapshot = snap
	} else {
		session, err := models.GetEmergencySession(o.db, sessionID)
		if err != nil {
			return nil, errors.WithCode(errors.CodeNotFound, "session not found")
		}
		state.Snapshot = BuildSnapshot(session)
	}

	var err error
	if state.Pings, err = models.RecentPings(o.db, sessionID, o.cfg.RecentPingLimit); err != nil {
		logger.Warn("failed to load recent pings", zap.String("session", sessionID), zap.Error(err))
	}
	if state.Logs, err = models.ListActionLogs(o.db, sessionID); err != nil {
		logger.Warn("failed to load action logs", zap.String("session", sessionID), zap.Error(err))
	}
	if state.Audit, err = models.ListAuditEvents(o.db, sessionID); err != nil {
		logger.Warn("failed to load audit trail", zap.String("session", sessionID), zap.Error(err))
	}
	return state, nil
}

// publishSnapshot 重新读取聚合并推送快照；失败只记录
func (o *Orchestrator) publishSnapshot(sessionID string) {
	session, err := models.GetEmergencySession(o.db, sessionID)
	if err != nil {
		logger.Warn("failed to load session for snapshot", zap.String("session", sessionID), zap.Error(err))
		return
	}
	o.pub.PublishSnapshot(sessionID, BuildSnapshot(session))
}
