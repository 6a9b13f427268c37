package emergency

import (
	"time"

	"Haven/internal/models"
)

// Snapshot 推送给观察者的会话全量状态
type Snapshot struct {
	SessionID    string        `json:"sessionId"`
	OwnerID      uint          `json:"ownerId"`
	Status       string        `json:"status"`
	RiskLevel    string        `json:"riskLevel"`
	Actions      []ActionView  `json:"actions"`
	Contacts     []ContactView `json:"contacts"`
	LastLocation *LocationView `json:"lastLocation,omitempty"`
	StartedAt    time.Time     `json:"startedAt"`
	EndedAt      *time.Time    `json:"endedAt,omitempty"`
}

type ActionView struct {
	Type          string    `json:"type"`
	State         string    `json:"state"`
	RetryCount    int       `json:"retryCount"`
	Meta          string    `json:"meta,omitempty"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

// ContactView 观察者可见的联系人状态；确认凭证不出现在快照里
type ContactView struct {
	Name         string     `json:"name"`
	Relationship string     `json:"relationship"`
	Priority     int        `json:"priority"`
	NotifyVia    string     `json:"notifyVia"`
	SMSSent      bool       `json:"smsSent"`
	SMSStatus    string     `json:"smsStatus"`
	AckAt        *time.Time `json:"ackAt,omitempty"`
}

type LocationView struct {
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	Accuracy float64   `json:"accuracy"`
	At       time.Time `json:"timestamp"`
}

// BuildSnapshot 从聚合构建快照
func BuildSnapshot(s *models.EmergencySession) *Snapshot {
	snap := &Snapshot{
		SessionID: s.ID,
		OwnerID:   s.OwnerID,
		Status:    s.Status,
		RiskLevel: s.RiskLevel,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
	}
	for _, a := range s.Actions {
		snap.Actions = append(snap.Actions, ActionView{
			Type:          a.Type,
			State:         a.State,
			RetryCount:    a.RetryCount,
			Meta:          a.Meta,
			LastUpdatedAt: a.LastUpdatedAt,
		})
	}
	for _, c := range s.Contacts {
		snap.Contacts = append(snap.Contacts, ContactView{
			Name:         c.Name,
			Relationship: c.Relationship,
			Priority:     c.Priority,
			NotifyVia:    c.NotifyVia,
			SMSSent:      c.SMSSent,
			SMSStatus:    c.SMSStatus,
			AckAt:        c.AckAt,
		})
	}
	if s.LastFixAt != nil {
		snap.LastLocation = &LocationView{
			Lat:      s.LastLat,
			Lng:      s.LastLng,
			Accuracy: s.LastAccuracy,
			At:       *s.LastFixAt,
		}
	}
	return snap
}
