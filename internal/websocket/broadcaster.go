package websocket

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/puzzle-party/internal/logger"
)

// HubBroadcaster 把Hub适配成事件推送能力
// 核心组件只依赖 broadcast.Broadcaster 接口，不感知Hub
type HubBroadcaster struct {
	hub *Hub
	log *zap.Logger
}

// NewHubBroadcaster 创建Hub推送适配器
func NewHubBroadcaster(hub *Hub) *HubBroadcaster {
	return &HubBroadcaster{
		hub: hub,
		log: logger.GetModuleLogger("websocket"),
	}
}

// ToRoom 向房间广播组推送事件
func (b *HubBroadcaster) ToRoom(roomID uint, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Error("序列化广播负载失败", zap.String("event", event), zap.Error(err))
		return
	}
	b.hub.SendToRoom(roomID, &Message{
		Type:      event,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	logger.LogWebSocketMessage("send", event, payload)
}

// ToUser 向用户的全部连接推送事件
func (b *HubBroadcaster) ToUser(userID uint, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Error("序列化推送负载失败", zap.String("event", event), zap.Error(err))
		return
	}
	if err := b.hub.SendToUser(userID, &Message{
		Type:      event,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}); err != nil && err != ErrUserNotConnected {
		b.log.Warn("推送用户消息失败", zap.Uint("user_id", userID), zap.Error(err))
	}
}
