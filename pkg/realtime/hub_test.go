package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)
	assert.NotNil(t, hub)
	assert.Equal(t, int64(10000), hub.config.MaxConnections)
	assert.Equal(t, 30*time.Second, hub.config.HeartbeatInterval)

	hub.Close()
}

func TestHubConnectionManagement(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	// 测试连接注册
	conn := &Connection{
		ID:       "test_conn_1",
		IsAlive:  true,
		Send:     make(chan []byte, 8),
		Channels: map[string]bool{"session:abc": true},
	}

	hub.register <- conn
	time.Sleep(100 * time.Millisecond) // 等待处理

	assert.Equal(t, int64(1), hub.ConnectionCount())
	assert.Equal(t, 1, hub.ChannelConnections("session:abc"))

	// 测试连接注销
	hub.unregister <- conn
	time.Sleep(100 * time.Millisecond) // 等待处理

	assert.Equal(t, int64(0), hub.ConnectionCount())
	assert.Equal(t, 0, hub.ChannelConnections("session:abc"))
}

func TestChannelPublish(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	conn := &Connection{
		ID:       "test_conn_1",
		IsAlive:  true,
		Send:     make(chan []byte, 8),
		Channels: map[string]bool{"session:abc": true},
	}
	other := &Connection{
		ID:       "test_conn_2",
		IsAlive:  true,
		Send:     make(chan []byte, 8),
		Channels: map[string]bool{"session:other": true},
	}

	hub.register <- conn
	hub.register <- other
	time.Sleep(100 * time.Millisecond)

	hub.Publish("session:abc", &Event{Type: "session_snapshot", Data: "payload"})

	select {
	case msg := <-conn.Send:
		assert.Contains(t, string(msg), "session_snapshot")
		assert.Contains(t, string(msg), "session:abc")
	case <-time.After(time.Second):
		t.Fatal("subscribed connection did not receive the event")
	}

	// 其他频道的连接不应收到
	select {
	case <-other.Send:
		t.Fatal("unsubscribed connection received the event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	conn := &Connection{
		ID:       "test_conn_1",
		IsAlive:  true,
		Send:     make(chan []byte, 8),
		Channels: make(map[string]bool),
		Hub:      hub,
	}
	hub.register <- conn
	time.Sleep(100 * time.Millisecond)

	conn.handleJoinChannel(Event{Type: "join_channel", Data: "session:xyz"})
	assert.True(t, conn.IsInChannel("session:xyz"))
	assert.Equal(t, 1, hub.ChannelConnections("session:xyz"))

	conn.handleLeaveChannel(Event{Type: "leave_channel", Data: "session:xyz"})
	assert.False(t, conn.IsInChannel("session:xyz"))
	assert.Equal(t, 0, hub.ChannelConnections("session:xyz"))
}
