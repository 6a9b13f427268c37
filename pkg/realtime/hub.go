package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Event 推送给观察者的事件；Channel 为会话频道（session:<id>）
type Event struct {
	Type      string      `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// Hub 管理所有WebSocket连接，按频道做扇出
type Hub struct {
	// 注册的连接
	connections map[string]*Connection
	// 频道到连接ID的映射
	channelConns map[string]map[string]bool
	// 事件队列
	events chan *Event
	// 注册连接通道
	register chan *Connection
	// 注销连接通道
	unregister chan *Connection
	// 连接计数
	connectionCount int64
	// 配置
	config *Config
	// 互斥锁
	mu sync.RWMutex
	// 上下文
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub 创建新的Hub实例
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	hub := &Hub{
		connections:  make(map[string]*Connection),
		channelConns: make(map[string]map[string]bool),
		events:       make(chan *Event, config.EventQueueSize),
		register:     make(chan *Connection, 256),
		unregister:   make(chan *Connection, 256),
		config:       config,
		ctx:          ctx,
		cancel:       cancel,
	}

	go hub.run()
	return hub
}

// Publish 将事件投递到频道；队列满时丢弃（至多一次、尽力而为）
func (h *Hub) Publish(channel string, event *Event) {
	event.Channel = channel
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	select {
	case h.events <- event:
	default:
		logrus.Warnf("事件队列已满，频道 %s 的事件被丢弃", channel)
	}
}

// run Hub主循环
func (h *Hub) run() {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case conn := <-h.register:
			h.registerConnection(conn)
		case conn := <-h.unregister:
			h.unregisterConnection(conn)
		case event := <-h.events:
			// 单次序列化减少重复开销
			data, err := json.Marshal(event)
			if err != nil {
				logrus.Errorf("事件序列化失败: %v", err)
				continue
			}
			h.sendToChannel(event.Channel, data)
		case <-ticker.C:
			h.checkHeartbeats()
		}
	}
}

// registerConnection 注册连接
func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if atomic.LoadInt64(&h.connectionCount) >= h.config.MaxConnections {
		conn.Conn.Close()
		logrus.Warnf("达到最大连接数限制: %d", h.config.MaxConnections)
		return
	}

	h.connections[conn.ID] = conn
	atomic.AddInt64(&h.connectionCount, 1)

	for channel := range conn.Channels {
		if h.channelConns[channel] == nil {
			h.channelConns[channel] = make(map[string]bool)
		}
		h.channelConns[channel][conn.ID] = true
	}

	logrus.Infof("WebSocket连接已注册: %s, 当前连接数: %d",
		conn.ID, atomic.LoadInt64(&h.connectionCount))
}

// unregisterConnection 注销连接
func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.connections[conn.ID]; exists {
		delete(h.connections, conn.ID)
		atomic.AddInt64(&h.connectionCount, -1)

		for channel := range conn.Channels {
			if h.channelConns[channel] != nil {
				delete(h.channelConns[channel], conn.ID)
				if len(h.channelConns[channel]) == 0 {
					delete(h.channelConns, channel)
				}
			}
		}

		close(conn.Send)
		logrus.Infof("WebSocket连接已注销: %s, 当前连接数: %d",
			conn.ID, atomic.LoadInt64(&h.connectionCount))
	}
}

// sendToChannel 发送消息给订阅频道的全部连接
func (h *Hub) sendToChannel(channel string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if connections, exists := h.channelConns[channel]; exists {
		for connID := range connections {
			if conn, ok := h.connections[connID]; ok && conn.IsAlive {
				h.trySend(conn, data, func() { logrus.Warnf("频道 %s 的连接 %s 发送缓冲区已满", channel, connID) })
			}
		}
	}
}

// subscribe 连接加入频道（由连接协程调用）
func (h *Hub) subscribe(conn *Connection, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channelConns[channel] == nil {
		h.channelConns[channel] = make(map[string]bool)
	}
	h.channelConns[channel][conn.ID] = true
}

// unsubscribe 连接离开频道
func (h *Hub) unsubscribe(conn *Connection, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channelConns[channel] != nil {
		delete(h.channelConns[channel], conn.ID)
		if len(h.channelConns[channel]) == 0 {
			delete(h.channelConns, channel)
		}
	}
}

// checkHeartbeats 检查心跳
func (h *Hub) checkHeartbeats() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := time.Now()
	for _, conn := range h.connections {
		if now.Sub(conn.lastPing()) > h.config.ConnectionTimeout {
			logrus.Warnf("连接 %s 心跳超时，准备关闭", conn.ID)
			conn.IsAlive = false
			conn.Conn.Close()
		}
	}
}

// trySend 背压策略
func (h *Hub) trySend(conn *Connection, data []byte, onDrop func()) {
	if h.config.DropOnFull {
		select {
		case conn.Send <- data:
		default:
			onDrop()
		}
		return
	}
	// 非丢弃模式：限定等待时长
	timeout := h.config.SendTimeout
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}
	select {
	case conn.Send <- data:
	case <-time.After(timeout):
		onDrop()
	}
}

// ConnectionCount 获取当前连接数
func (h *Hub) ConnectionCount() int64 {
	return atomic.LoadInt64(&h.connectionCount)
}

// ChannelConnections 获取频道的连接数
func (h *Hub) ChannelConnections(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if connections, exists := h.channelConns[channel]; exists {
		return len(connections)
	}
	return 0
}

// Close 关闭Hub
func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	for _, conn := range h.connections {
		conn.Conn.Close()
	}
	h.mu.Unlock()

	logrus.Info("WebSocket Hub已关闭")
}
