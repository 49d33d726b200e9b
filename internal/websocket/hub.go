package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub WebSocket连接管理中心
type Hub struct {
	// 客户端连接池
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 用户ID到客户端的映射
	userClients map[uint][]*Client
	userMu      sync.RWMutex

	// 房间广播组
	roomClients map[uint]map[string]*Client
	roomMu      sync.RWMutex

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	// 消息处理器
	messageHandler MessageHandler

	logger *zap.Logger
}

// MessageHandler 客户端消息处理器
type MessageHandler interface {
	// HandleClientMessage 处理客户端消息
	HandleClientMessage(client *Client, data []byte)
	// HandleClientDisconnect 客户端断开后回调
	HandleClientDisconnect(client *Client)
}

// Message WebSocket消息信封
type Message struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// 系统消息类型
const (
	MessageTypeConnected = "connected"
	MessageTypeError     = "error"
)

// 房间消息类型
const (
	MessageTypeRoomJoin      = "room:join"
	MessageTypeRoomLeave     = "room:leave"
	MessageTypeRoomStartGame = "room:start_game"
	MessageTypeRoomReconnect = "room:reconnect"

	MessageTypePlayerJoined = "room:player_joined"
	MessageTypeGameStarted  = "room:game_started"
)

// 游戏消息类型
const (
	MessageTypeGameAction       = "game:action"
	MessageTypeGameRequestState = "game:request_state"
	MessageTypeGameStartSync    = "game:start_sync"
	MessageTypeGameStopSync     = "game:stop_sync"

	MessageTypeActionResult = "game:action_result"
	MessageTypeStateUpdated = "game:state_updated"
)

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		userClients: make(map[uint][]*Client),
		roomClients: make(map[uint]map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		logger:      logger,
	}
}

// SetMessageHandler 设置消息处理器
func (h *Hub) SetMessageHandler(handler MessageHandler) {
	h.messageHandler = handler
}

// Run 运行Hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	if client.UserID > 0 {
		h.userMu.Lock()
		h.userClients[client.UserID] = append(h.userClients[client.UserID], client)
		h.userMu.Unlock()
	}

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID),
		zap.Uint("user_id", client.UserID))

	h.SendToClient(client.ID, &Message{
		Type:      MessageTypeConnected,
		Timestamp: time.Now().Unix(),
		Data:      json.RawMessage(`{"message":"连接成功"}`),
	})
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	_, existed := h.clients[client.ID]
	if existed {
		delete(h.clients, client.ID)
		client.closeSend()
	}
	h.clientsMu.Unlock()

	if !existed {
		return
	}

	if client.UserID > 0 {
		h.userMu.Lock()
		clients := h.userClients[client.UserID]
		for i, c := range clients {
			if c.ID == client.ID {
				h.userClients[client.UserID] = append(clients[:i], clients[i+1:]...)
				break
			}
		}
		if len(h.userClients[client.UserID]) == 0 {
			delete(h.userClients, client.UserID)
		}
		h.userMu.Unlock()
	}

	h.LeaveRoomGroup(client)

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID),
		zap.Uint("user_id", client.UserID))

	// 交由会话管理器启动宽限计时
	if h.messageHandler != nil {
		h.messageHandler.HandleClientDisconnect(client)
	}
}

// JoinRoomGroup 把客户端加入房间广播组
func (h *Hub) JoinRoomGroup(client *Client, roomID uint) {
	h.roomMu.Lock()
	defer h.roomMu.Unlock()

	// 一个连接同时只在一个房间组
	if client.RoomID != 0 && client.RoomID != roomID {
		h.removeFromRoomLocked(client)
	}

	group, ok := h.roomClients[roomID]
	if !ok {
		group = make(map[string]*Client)
		h.roomClients[roomID] = group
	}
	group[client.ID] = client
	client.RoomID = roomID
}

// LeaveRoomGroup 把客户端移出其房间广播组
func (h *Hub) LeaveRoomGroup(client *Client) {
	h.roomMu.Lock()
	defer h.roomMu.Unlock()
	h.removeFromRoomLocked(client)
}

func (h *Hub) removeFromRoomLocked(client *Client) {
	if client.RoomID == 0 {
		return
	}
	if group, ok := h.roomClients[client.RoomID]; ok {
		delete(group, client.ID)
		if len(group) == 0 {
			delete(h.roomClients, client.RoomID)
		}
	}
	client.RoomID = 0
}

// SendToClient 发送消息给指定客户端
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	client, ok := h.clients[clientID]
	h.clientsMu.RUnlock()

	if !ok {
		return ErrClientNotFound
	}

	return client.trySend(data)
}

// SendToUser 发送消息给指定用户的所有客户端
func (h *Hub) SendToUser(userID uint, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.userMu.RLock()
	clients := h.userClients[userID]
	h.userMu.RUnlock()

	if len(clients) == 0 {
		return ErrUserNotConnected
	}

	for _, client := range clients {
		if err := client.trySend(data); err != nil {
			h.logger.Warn("用户客户端投递失败",
				zap.String("client_id", client.ID),
				zap.Uint("user_id", userID),
				zap.Error(err))
		}
	}
	return nil
}

// SendToRoom 发送消息给房间广播组的全部客户端
// exclude 中的客户端ID被跳过（如动作发起者已有ack）
func (h *Hub) SendToRoom(roomID uint, message *Message, exclude ...string) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化房间消息失败", zap.Error(err))
		return
	}

	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	h.roomMu.RLock()
	defer h.roomMu.RUnlock()

	for _, client := range h.roomClients[roomID] {
		if excluded[client.ID] {
			continue
		}
		if err := client.trySend(data); err != nil {
			h.logger.Warn("房间客户端投递失败",
				zap.String("client_id", client.ID),
				zap.Uint("room_id", roomID),
				zap.Error(err))
		}
	}
}

// RoomGroupSize 房间广播组连接数
func (h *Hub) RoomGroupSize(roomID uint) int {
	h.roomMu.RLock()
	defer h.roomMu.RUnlock()
	return len(h.roomClients[roomID])
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}
