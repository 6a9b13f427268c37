package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Connection 表示一个WebSocket连接
type Connection struct {
	ID       string
	UserID   string
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub
	LastPing time.Time
	IsAlive  bool
	mu       sync.RWMutex
	Channels map[string]bool
}

func (c *Connection) lastPing() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LastPing
}

// readPump 读取消息的协程
func (c *Connection) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(int64(c.Hub.config.MaxMessageSize))
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket读取错误: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump 发送消息的协程
func (c *Connection) writePump() {
	interval := c.Hub.config.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(time.Duration(float64(interval) * 0.9))
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			// 将队列中的其他消息也一起发送
			n := len(c.Send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Connection) handleMessage(message []byte) {
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		logrus.Errorf("消息解析失败: %v", err)
		return
	}

	switch event.Type {
	case "ping":
		c.handlePing()
	case "join_channel":
		c.handleJoinChannel(event)
	case "leave_channel":
		c.handleLeaveChannel(event)
	default:
		logrus.Warnf("未知的消息类型: %s", event.Type)
	}
}

// handlePing 处理ping消息
func (c *Connection) handlePing() {
	c.mu.Lock()
	c.LastPing = time.Now()
	c.mu.Unlock()

	c.reply(&Event{Type: "pong", Timestamp: time.Now().Unix()})
}

// handleJoinChannel 处理加入频道消息
func (c *Connection) handleJoinChannel(event Event) {
	channel, ok := event.Data.(string)
	if !ok || channel == "" {
		logrus.Warnf("无效的频道名: %v", event.Data)
		return
	}

	c.mu.Lock()
	c.Channels[channel] = true
	c.mu.Unlock()
	c.Hub.subscribe(c, channel)

	c.reply(&Event{Type: "channel_joined", Data: channel, Timestamp: time.Now().Unix()})
	logrus.Infof("连接 %s 加入频道 %s", c.ID, channel)
}

// handleLeaveChannel 处理离开频道消息
func (c *Connection) handleLeaveChannel(event Event) {
	channel, ok := event.Data.(string)
	if !ok || channel == "" {
		logrus.Warnf("无效的频道名: %v", event.Data)
		return
	}

	c.mu.Lock()
	delete(c.Channels, channel)
	c.mu.Unlock()
	c.Hub.unsubscribe(c, channel)

	c.reply(&Event{Type: "channel_left", Data: channel, Timestamp: time.Now().Unix()})
}

// IsInChannel 检查连接是否订阅了频道
func (c *Connection) IsInChannel(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Channels[channel]
}

func (c *Connection) reply(event *Event) {
	data, _ := json.Marshal(event)
	select {
	case c.Send <- data:
	default:
		logrus.Warnf("连接 %s 发送缓冲区已满", c.ID)
	}
}
