package models

import (
	"time"

	"gorm.io/gorm"
)

// 位置时间序列：独立存储避免聚合无限增长，超过保留窗口后可删除
type LocationPing struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	SessionID string    `json:"sessionId" gorm:"size:36;index:idx_ping_session_time,priority:1"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy"`
	CreatedAt time.Time `json:"timestamp" gorm:"autoCreateTime;index:idx_ping_session_time,priority:2,sort:desc"`
}

// CreateLocationPing 记录一次位置上报
func CreateLocationPing(db *gorm.DB, sessionID string, lat, lng, accuracy float64) (*LocationPing, error) {
	ping := &LocationPing{SessionID: sessionID, Lat: lat, Lng: lng, Accuracy: accuracy}
	if err := db.Create(ping).Error; err != nil {
		return nil, err
	}
	return ping, nil
}

// RecentPings 最近的位置记录，按时间倒序
func RecentPings(db *gorm.DB, sessionID string, limit int) ([]LocationPing, error) {
	if limit <= 0 {
		limit = 50
	}
	var pings []LocationPing
	err := db.Where("session_id = ?", sessionID).
		Order("created_at desc, id desc").Limit(limit).Find(&pings).Error
	if err != nil {
		return nil, err
	}
	return pings, nil
}

// PurgeExpiredPings 删除保留窗口之外的位置记录，返回删除行数
func PurgeExpiredPings(db *gorm.DB, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	res := db.Where("created_at < ?", cutoff).Delete(&LocationPing{})
	return res.RowsAffected, res.Error
}
