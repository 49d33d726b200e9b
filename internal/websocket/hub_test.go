package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// TestRoomBroadcastSkipsClosedClient 注销关闭发送通道与房间广播交错时不panic
func TestRoomBroadcastSkipsClosedClient(t *testing.T) {
	hub := NewHub(zap.NewNop())
	leaving := NewClient(hub, nil, 1, "turtle")
	staying := NewClient(hub, nil, 2, "cat")
	hub.registerClient(leaving)
	hub.registerClient(staying)
	hub.JoinRoomGroup(leaving, 7)
	hub.JoinRoomGroup(staying, 7)

	// 模拟交错：通道已关闭但客户端尚未离开广播组
	leaving.closeSend()

	assert.NotPanics(t, func() {
		hub.SendToRoom(7, &Message{Type: MessageTypeStateUpdated, Timestamp: time.Now().Unix()})
	})

	// 存活客户端仍收到广播（缓冲里另有注册时的connected一条）
	assert.Len(t, staying.Send, 2)
}

// TestSendAfterUnregister 注销后的发送被拒绝而非panic
func TestSendAfterUnregister(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := NewClient(hub, nil, 1, "turtle")
	hub.registerClient(client)
	hub.JoinRoomGroup(client, 7)
	hub.unregisterClient(client)

	assert.Equal(t, 0, hub.RoomGroupSize(7))
	assert.Equal(t, ErrClientNotFound,
		hub.SendToClient(client.ID, &Message{Type: MessageTypeError}))
	assert.Equal(t, ErrClientClosed, client.trySend([]byte("x")))
}

// TestUnregisterIdempotent 重复注销不重复关闭通道
func TestUnregisterIdempotent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := NewClient(hub, nil, 1, "turtle")
	hub.registerClient(client)

	assert.NotPanics(t, func() {
		hub.unregisterClient(client)
		hub.unregisterClient(client)
		client.closeSend()
	})
}
