package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 会话状态：active 起始，cancelled / resolved 为终止态，只允许转出一次
const (
	SessionActive    = "active"
	SessionCancelled = "cancelled"
	SessionResolved  = "resolved"
)

// 动作类型：封闭集合，会话启动时每种各建一行
const (
	ActionLocation  = "LOCATION"
	ActionSMS       = "SMS"
	ActionEvidence  = "EVIDENCE"
	ActionResponder = "RESPONDER"
)

// ActionKinds 会话启动时创建的动作类型（分发顺序）
var ActionKinds = []string{ActionLocation, ActionSMS, ActionEvidence, ActionResponder}

// 动作状态机：queued → running → {success | failed}；retrying 预留
const (
	ActionQueued   = "queued"
	ActionRunning  = "running"
	ActionSuccess  = "success"
	ActionFailed   = "failed"
	ActionRetrying = "retrying"
)

// 联系人短信投递状态；acknowledged 在确认后覆盖 sent/failed
const (
	SMSPending      = "pending"
	SMSSent         = "sent"
	SMSFailed       = "failed"
	SMSAcknowledged = "acknowledged"
)

// 审计事件类型
const (
	AuditSessionStarted     = "SESSION_STARTED"
	AuditRespondersNotified = "RESPONDERS_NOTIFIED"
	AuditEscalationTier2    = "ESCALATION_TIER_2"
	AuditContactAck         = "CONTACT_ACKNOWLEDGED"
	AuditSessionResolved    = "SESSION_RESOLVED"
)

// 紧急会话聚合根
type EmergencySession struct {
	ID      string `json:"id" gorm:"primaryKey;size:36"`
	OwnerID uint   `json:"ownerId" gorm:"index"`
	Status  string `json:"status" gorm:"size:20;index"`
	// 创建时由风险评估给出，本核心仅作展示
	RiskLevel string `json:"riskLevel" gorm:"size:20"`
	// 从用户档案复制；为空则取消无需 PIN
	SafetyPINHash string             `json:"-" gorm:"size:100"`
	Actions       []EmergencyAction  `json:"actions" gorm:"foreignKey:SessionID"`
	Contacts      []EmergencyContact `json:"contacts" gorm:"foreignKey:SessionID"`
	// 最近一次位置
	LastLat      float64    `json:"lastLat"`
	LastLng      float64    `json:"lastLng"`
	LastAccuracy float64    `json:"lastAccuracy"`
	LastFixAt    *time.Time `json:"lastFixAt"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt"`
	CreatedAt    time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
}

// 每种动作类型一行；(session_id, type) 唯一
type EmergencyAction struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	SessionID  string `json:"sessionId" gorm:"size:36;uniqueIndex:idx_session_action"`
	Type       string `json:"type" gorm:"size:20;uniqueIndex:idx_session_action"`
	State      string `json:"state" gorm:"size:20"`
	RetryCount int    `json:"retryCount"`
	// JSON 摘要数据（最近坐标、投递统计等）
	Meta          string    `json:"meta" gorm:"size:1024"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	CreatedAt     time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

// 会话内的受通知联系人快照
type EmergencyContact struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	SessionID    string `json:"sessionId" gorm:"size:36;index"`
	Name         string `json:"name" gorm:"size:100"`
	Phone        string `json:"phone" gorm:"size:20"`
	Relationship string `json:"relationship" gorm:"size:50"`
	Priority     int    `json:"priority"`
	NotifyVia    string `json:"notifyVia" gorm:"size:20"`
	// 确认凭证，跨会话跨联系人不复用
	AckToken  string     `json:"-" gorm:"size:36;uniqueIndex"`
	AckAt     *time.Time `json:"ackAt"`
	SMSSent   bool       `json:"smsSent"`
	SMSStatus string     `json:"smsStatus" gorm:"size:20"`
	CreatedAt time.Time  `json:"createdAt" gorm:"autoCreateTime"`
}

// 动作日志：只追加
type ActionLog struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	SessionID  string    `json:"sessionId" gorm:"size:36;index:idx_log_session"`
	ActionType string    `json:"actionType" gorm:"size:20"`
	Message    string    `json:"message" gorm:"size:512"`
	CreatedAt  time.Time `json:"timestamp" gorm:"autoCreateTime"`
}

// 审计事件：只追加
type AuditEvent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	SessionID string    `json:"sessionId" gorm:"size:36;index:idx_audit_session"`
	Event     string    `json:"event" gorm:"size:50"`
	Meta      string    `json:"meta" gorm:"size:512"`
	CreatedAt time.Time `json:"timestamp" gorm:"autoCreateTime"`
}

// MarshalMeta 序列化摘要数据；失败时返回空串（摘要非关键路径）
func MarshalMeta(meta map[string]interface{}) string {
	if len(meta) == 0 {
		return ""
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(b)
}

// NewAckToken 生成不可猜测的确认凭证
func NewAckToken() string { return uuid.NewString() }

// CreateEmergencySession 创建会话聚合：动作行、联系人快照、启动审计
func CreateEmergencySession(db *gorm.DB, owner *User, riskLevel string, trusted []TrustedContact) (*EmergencySession, error) {
	now := time.Now()
	session := &EmergencySession{
		ID:            uuid.NewString(),
		OwnerID:       owner.ID,
		Status:        SessionActive,
		RiskLevel:     riskLevel,
		SafetyPINHash: owner.SafetyPINHash,
		StartedAt:     now,
	}
	for _, kind := range ActionKinds {
		state := ActionQueued
		if kind == ActionLocation {
			// 位置动作由外部 ping 驱动，创建即 running
			state = ActionRunning
		}
		session.Actions = append(session.Actions, EmergencyAction{
			Type:          kind,
			State:         state,
			LastUpdatedAt: now,
		})
	}
	for _, tc := range trusted {
		session.Contacts = append(session.Contacts, EmergencyContact{
			Name:         tc.Name,
			Phone:        tc.Phone,
			Relationship: tc.Relationship,
			Priority:     tc.Priority,
			NotifyVia:    tc.NotifyVia,
			AckToken:     NewAckToken(),
			SMSStatus:    SMSPending,
		})
	}

	if err := db.Create(session).Error; err != nil {
		return nil, err
	}
	if err := AppendAuditEvent(db, session.ID, AuditSessionStarted,
		map[string]interface{}{"riskLevel": riskLevel, "contacts": len(trusted)}); err != nil {
		return nil, err
	}
	return session, nil
}

// GetEmergencySession 获取会话及其动作、联系人
func GetEmergencySession(db *gorm.DB, id string) (*EmergencySession, error) {
	var session EmergencySession
	err := db.Preload("Actions", func(tx *gorm.DB) *gorm.DB { return tx.Order("id asc") }).
		Preload("Contacts", func(tx *gorm.DB) *gorm.DB { return tx.Order("priority asc, id asc") }).
		First(&session, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SessionStatus 只读会话状态（运行器每步前的检查点）
func SessionStatus(db *gorm.DB, id string) (string, error) {
	var status string
	err := db.Model(&EmergencySession{}).Where("id = ?", id).
		Pluck("status", &status).Error
	if err != nil {
		return "", err
	}
	if status == "" {
		return "", gorm.ErrRecordNotFound
	}
	return status, nil
}

// SetActionState 原子更新单个动作行的状态与摘要
func SetActionState(db *gorm.DB, sessionID, actionType, state string, meta map[string]interface{}) error {
	updates := map[string]interface{}{
		"state":           state,
		"last_updated_at": time.Now(),
	}
	if meta != nil {
		updates["meta"] = MarshalMeta(meta)
	}
	res := db.Model(&EmergencyAction{}).
		Where("session_id = ? AND type = ?", sessionID, actionType).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AppendActionLog 追加一条动作日志并刷新动作时间戳
func AppendActionLog(db *gorm.DB, sessionID, actionType, message string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		entry := &ActionLog{SessionID: sessionID, ActionType: actionType, Message: message}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		return tx.Model(&EmergencyAction{}).
			Where("session_id = ? AND type = ?", sessionID, actionType).
			Update("last_updated_at", time.Now()).Error
	})
}

// ListActionLogs 按追加顺序返回动作日志
func ListActionLogs(db *gorm.DB, sessionID string) ([]ActionLog, error) {
	var logs []ActionLog
	if err := db.Where("session_id = ?", sessionID).Order("id asc").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// SetContactOutcome 按确认凭证原子更新单个联系人的投递结果
func SetContactOutcome(db *gorm.DB, sessionID, ackToken string, sent bool, status string) error {
	res := db.Model(&EmergencyContact{}).
		Where("session_id = ? AND ack_token = ?", sessionID, ackToken).
		Updates(map[string]interface{}{"sms_sent": sent, "sms_status": status})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AppendAuditEvent 追加审计事件
func AppendAuditEvent(db *gorm.DB, sessionID, event string, meta map[string]interface{}) error {
	return db.Create(&AuditEvent{
		SessionID: sessionID,
		Event:     event,
		Meta:      MarshalMeta(meta),
	}).Error
}

// ListAuditEvents 按追加顺序返回审计事件
func ListAuditEvents(db *gorm.DB, sessionID string) ([]AuditEvent, error) {
	var events []AuditEvent
	if err := db.Where("session_id = ?", sessionID).Order("id asc").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// AcknowledgeContact 首次确认写入 ack_at；重复确认幂等返回既有记录
func AcknowledgeContact(db *gorm.DB, token string) (*EmergencyContact, bool, error) {
	var contact EmergencyContact
	if err := db.First(&contact, "ack_token = ?", token).Error; err != nil {
		return nil, false, err
	}
	if contact.AckAt != nil {
		return &contact, true, nil
	}

	now := time.Now()
	res := db.Model(&EmergencyContact{}).
		Where("ack_token = ? AND ack_at IS NULL", token).
		Updates(map[string]interface{}{"ack_at": now, "sms_status": SMSAcknowledged})
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		// 与并发确认竞争失败：按幂等成功处理
		if err := db.First(&contact, "ack_token = ?", token).Error; err != nil {
			return nil, false, err
		}
		return &contact, true, nil
	}
	contact.AckAt = &now
	contact.SMSStatus = SMSAcknowledged
	return &contact, false, nil
}

// UnacknowledgedContacts 未确认的联系人（升级检查的目标集合）
func UnacknowledgedContacts(db *gorm.DB, sessionID string) ([]EmergencyContact, error) {
	var contacts []EmergencyContact
	err := db.Where("session_id = ? AND ack_at IS NULL", sessionID).
		Order("priority asc, id asc").Find(&contacts).Error
	if err != nil {
		return nil, err
	}
	return contacts, nil
}

// ResolveSession 条件转移 active → resolved；已终止时返回 false
func ResolveSession(db *gorm.DB, sessionID string) (bool, error) {
	now := time.Now()
	res := db.Model(&EmergencySession{}).
		Where("id = ? AND status = ?", sessionID, SessionActive).
		Updates(map[string]interface{}{"status": SessionResolved, "ended_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateLastLocation 仅在会话仍 active 时写入最近位置
func UpdateLastLocation(db *gorm.DB, sessionID string, lat, lng, accuracy float64, at time.Time) (bool, error) {
	res := db.Model(&EmergencySession{}).
		Where("id = ? AND status = ?", sessionID, SessionActive).
		Updates(map[string]interface{}{
			"last_lat":      lat,
			"last_lng":      lng,
			"last_accuracy": accuracy,
			"last_fix_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
