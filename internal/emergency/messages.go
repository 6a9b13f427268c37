package emergency

import (
	"fmt"
	"strings"

	"Haven/internal/models"
)

const (
	contactTemplate    = "URGENT: %s needs help now. Confirm you saw this: %s"
	escalationTemplate = "REMINDER: %s still needs help and nobody has responded. Please act now: %s"
)

// formatFixLog 日志里只记录粗化后的坐标
func formatFixLog(lat, lng, accuracy float64) string {
	return fmt.Sprintf("location fix (%.4f, %.4f) accuracy %.0fm", lat, lng, accuracy)
}

// ackLink 联系人专属的确认链接
func (o *Orchestrator) ackLink(token string) string {
	return strings.TrimRight(o.cfg.AckBaseURL, "/") + "/ack/" + token
}

// contactMessage 首轮通知正文
func (o *Orchestrator) contactMessage(ownerName string, contact *models.EmergencyContact) string {
	return o.smsBody(contactTemplate, ownerName, "Someone you trust", contact.AckToken)
}

// escalationMessage 二级升级的更紧急提醒
func (o *Orchestrator) escalationMessage(ownerName string, contact *models.EmergencyContact) string {
	return o.smsBody(escalationTemplate, ownerName, "Your contact", contact.AckToken)
}

// smsBody 组装短信正文。确认链接是联系人手里唯一的确认凭证，
// 超出运营商长度上限时截断的是称呼，链接永远完整保留
func (o *Orchestrator) smsBody(format, ownerName, fallback, token string) string {
	if ownerName == "" {
		ownerName = fallback
	}
	link := o.ackLink(token)
	body := fmt.Sprintf(format, ownerName, link)
	limit := o.cfg.SMSBodyLimit
	if limit <= 0 || len(body) <= limit {
		return body
	}

	// 按字节预算逐字符缩短称呼，多字节字符不从中间切开
	name := []rune(ownerName)
	overflow := len(body) - limit
	for len(name) > 0 && overflow > 0 {
		overflow -= len(string(name[len(name)-1]))
		name = name[:len(name)-1]
	}
	body = fmt.Sprintf(format, strings.TrimSpace(string(name)), link)
	if len(body) > limit {
		// 上限小到连固定正文都放不下：只发链接
		return link
	}
	return body
}

// ownerDisplayName 尽力获取触发者的称呼，失败时为空
func (o *Orchestrator) ownerDisplayName(ownerID uint) string {
	owner, err := models.GetUser(o.db, ownerID)
	if err != nil {
		return ""
	}
	return owner.DisplayName
}
