package emergency

import (
	"context"
	"time"

	"Haven/pkg/cache"
	"Haven/pkg/realtime"
)

const snapshotCacheTTL = 30 * time.Minute

// Publisher 实时推送：尽力而为、至多一次；晚加入的观察者通过查询补全状态
type Publisher interface {
	PublishSnapshot(sessionID string, snap *Snapshot)
	PublishLocationEvent(sessionID string, lat, lng, accuracy float64, at time.Time)
	// CachedSnapshot 最近一次发布的快照，命中则查询免去聚合读
	CachedSnapshot(ctx context.Context, sessionID string) (*Snapshot, bool)
}

// ChannelName 会话的观察频道名
func ChannelName(sessionID string) string { return "session:" + sessionID }

func snapshotCacheKey(sessionID string) string { return "session_snapshot:" + sessionID }

// LivePublisher 通过 WebSocket 频道推送，并把最新快照写入缓存
type LivePublisher struct {
	hub   *realtime.Hub
	cache cache.Cache
}

func NewLivePublisher(hub *realtime.Hub, c cache.Cache) *LivePublisher {
	return &LivePublisher{hub: hub, cache: c}
}

func (p *LivePublisher) PublishSnapshot(sessionID string, snap *Snapshot) {
	if p.cache != nil {
		_ = p.cache.Set(context.Background(), snapshotCacheKey(sessionID), snap, snapshotCacheTTL)
	}
	p.hub.Publish(ChannelName(sessionID), &realtime.Event{
		Type: "session_snapshot",
		Data: snap,
	})
}

func (p *LivePublisher) PublishLocationEvent(sessionID string, lat, lng, accuracy float64, at time.Time) {
	p.hub.Publish(ChannelName(sessionID), &realtime.Event{
		Type: "location_event",
		Data: map[string]interface{}{
			"lat":       lat,
			"lng":       lng,
			"accuracy":  accuracy,
			"timestamp": at.Unix(),
		},
	})
}

// CachedSnapshot 读取缓存中的最新快照（仅本地缓存命中结构体时可用）
func (p *LivePublisher) CachedSnapshot(ctx context.Context, sessionID string) (*Snapshot, bool) {
	if p.cache == nil {
		return nil, false
	}
	v, ok := p.cache.Get(ctx, snapshotCacheKey(sessionID))
	if !ok {
		return nil, false
	}
	snap, ok := v.(*Snapshot)
	return snap, ok
}
