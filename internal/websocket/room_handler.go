package websocket

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/puzzle-party/internal/broadcast"
	apperrors "github.com/wfunc/puzzle-party/internal/errors"
	"github.com/wfunc/puzzle-party/internal/logger"
	"github.com/wfunc/puzzle-party/internal/models"
	"github.com/wfunc/puzzle-party/internal/puzzle"
	"github.com/wfunc/puzzle-party/internal/room"
	"github.com/wfunc/puzzle-party/internal/session"
)

// RoomIdentifier 房间标识符，接受JSON字符串（房间码）或数字（房间ID）
type RoomIdentifier string

// UnmarshalJSON 兼容 "ABC234" 与 42 两种写法
func (r *RoomIdentifier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = RoomIdentifier(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = RoomIdentifier(n.String())
	return nil
}

// RoomHandler 房间与游戏消息处理器
// 所有请求消息回ack信封，广播走Broadcaster
type RoomHandler struct {
	hub       *Hub
	rooms     *room.Manager
	games     *puzzle.Manager
	sessions  *session.Manager
	heartbeat *broadcast.Heartbeat
	log       *zap.Logger
}

// NewRoomHandler 创建房间消息处理器
func NewRoomHandler(
	hub *Hub,
	rooms *room.Manager,
	games *puzzle.Manager,
	sessions *session.Manager,
	heartbeat *broadcast.Heartbeat,
) *RoomHandler {
	return &RoomHandler{
		hub:       hub,
		rooms:     rooms,
		games:     games,
		sessions:  sessions,
		heartbeat: heartbeat,
		log:       logger.GetModuleLogger("websocket"),
	}
}

// HandleClientMessage 分发客户端消息
func (h *RoomHandler) HandleClientMessage(client *Client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.sendError(client, &Message{Type: MessageTypeError},
			apperrors.New(apperrors.ErrMessageFormat, "消息格式错误"))
		return
	}
	logger.LogWebSocketMessage("receive", msg.Type, json.RawMessage(msg.Data))

	ctx := context.Background()

	switch msg.Type {
	case MessageTypeRoomJoin:
		h.handleJoin(ctx, client, &msg)
	case MessageTypeRoomLeave:
		h.handleLeave(ctx, client, &msg)
	case MessageTypeRoomStartGame:
		h.handleStartGame(ctx, client, &msg)
	case MessageTypeRoomReconnect:
		h.handleReconnect(ctx, client, &msg)
	case MessageTypeGameAction:
		h.handleAction(ctx, client, &msg)
	case MessageTypeGameRequestState:
		h.handleRequestState(ctx, client, &msg)
	case MessageTypeGameStartSync:
		h.handleStartSync(ctx, client, &msg)
	case MessageTypeGameStopSync:
		h.handleStopSync(ctx, client, &msg)
	default:
		h.sendError(client, &msg,
			apperrors.New(apperrors.ErrMessageFormat, "不支持的消息类型: "+msg.Type))
	}
}

// HandleClientDisconnect 连接断开后交给会话管理器启动宽限计时
func (h *RoomHandler) HandleClientDisconnect(client *Client) {
	if client.UserID == 0 {
		return
	}
	h.sessions.HandleDisconnect(context.Background(), client.UserID, client.ID)
}

// handleJoin room:join {room_id, character, username, password?}
func (h *RoomHandler) handleJoin(ctx context.Context, client *Client, msg *Message) {
	var payload struct {
		RoomID    RoomIdentifier `json:"room_id"`
		Character string         `json:"character"`
		Username  string         `json:"username"`
		Password  string         `json:"password"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		h.sendError(client, msg, apperrors.New(apperrors.ErrMessageFormat, "消息格式错误"))
		return
	}

	displayName := payload.Username
	if displayName == "" {
		displayName = client.Username
	}

	view, alreadyMember, err := h.rooms.JoinRoom(ctx, room.JoinInput{
		Identifier:  string(payload.RoomID),
		UserID:      client.UserID,
		Character:   payload.Character,
		DisplayName: displayName,
		Password:    payload.Password,
	})
	if err != nil {
		h.sendError(client, msg, err)
		return
	}

	h.hub.JoinRoomGroup(client, view.ID)
	if err := h.sessions.HandleConnect(ctx, client.UserID, view.ID, client.ID); err != nil {
		h.log.Warn("登记在线状态失败", zap.Uint("user_id", client.UserID), zap.Error(err))
	}

	h.sendAck(client, msg, map[string]interface{}{
		"success": true,
		"room":    view,
	})

	if !alreadyMember {
		h.broadcastToRoom(view.ID, MessageTypePlayerJoined, map[string]interface{}{
			"user_id":   client.UserID,
			"character": payload.Character,
			"room":      view,
		}, client.ID)
	}
}

// handleLeave room:leave {room_id}
func (h *RoomHandler) handleLeave(ctx context.Context, client *Client, msg *Message) {
	var payload struct {
		RoomID uint `json:"room_id"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		h.sendError(client, msg, apperrors.New(apperrors.ErrMessageFormat, "消息格式错误"))
		return
	}

	_, err := h.sessions.HandleLeave(ctx, client.UserID, payload.RoomID)
	if err != nil {
		h.sendError(client, msg, err)
		return
	}

	h.hub.LeaveRoomGroup(client)
	h.sendAck(client, msg, map[string]interface{}{"success": true})
}

// handleStartGame room:start_game {room_id}
// 仅房主可发起；要求房间waiting且有1-3名成员；ack携带初始游戏状态
func (h *RoomHandler) handleStartGame(ctx context.Context, client *Client, msg *Message) {
	var payload struct {
		RoomID uint `json:"room_id"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		h.sendError(client, msg, apperrors.New(apperrors.ErrMessageFormat, "消息格式错误"))
		return
	}

	view, err := h.rooms.GetRoomDetails(ctx, payload.RoomID)
	if err != nil {
		h.sendError(client, msg, err)
		return
	}
	if view.HostID != client.UserID {
		h.sendError(client, msg, apperrors.New(apperrors.ErrNotHost, "只有房主可以开始游戏"))
		return
	}
	if view.Status != models.RoomStatusWaiting {
		h.sendError(client, msg, apperrors.New(apperrors.ErrGameAlreadyStarted, "游戏已经开始"))
		return
	}
	if len(view.Members) == 0 || len(view.Members) > view.MaxPlayers {
		h.sendError(client, msg, apperrors.New(apperrors.ErrNotEnoughPlayers, "玩家人数不足"))
		return
	}

	players := make([]puzzle.PlayerState, 0, len(view.Members))
	for _, member := range view.Members {
		players = append(players, puzzle.PlayerState{
			UserID:    member.UserID,
			Character: member.Character,
		})
	}

	gameSession, err := h.games.StartGame(ctx, view.ID, players)
	if err != nil {
		h.sendError(client, msg, err)
		return
	}

	updated, err := h.rooms.UpdateRoomStatus(ctx, view.ID, models.RoomStatusPlaying)
	if err != nil {
		// 状态没推进成playing就回收刚建的会话，开始操作保持可重试
		if delErr := h.games.DeleteSession(ctx, view.ID); delErr != nil {
			h.log.Warn("回收游戏会话失败", zap.Uint("room_id", view.ID), zap.Error(delErr))
		}
		h.sendError(client, msg, err)
		return
	}

	h.sendAck(client, msg, map[string]interface{}{
		"success":    true,
		"room":       updated,
		"game_state": gameSession.State,
	})

	h.broadcastToRoom(view.ID, MessageTypeGameStarted, map[string]interface{}{
		"room":       updated,
		"game_state": gameSession.State,
	}, client.ID)
}

// handleReconnect room:reconnect {room_id}
func (h *RoomHandler) handleReconnect(ctx context.Context, client *Client, msg *Message) {
	var payload struct {
		RoomID uint `json:"room_id"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		h.sendError(client, msg, apperrors.New(apperrors.ErrMessageFormat, "消息格式错误"))
		return
	}

	view, gameSession, err := h.sessions.Reconnect(ctx, client.UserID, payload.RoomID, client.ID)
	if err != nil {
		h.sendError(client, msg, err)
		return
	}

	h.hub.JoinRoomGroup(client, payload.RoomID)

	ack := map[string]interface{}{
		"success": true,
		"room":    view,
	}
	if gameSession != nil {
		ack["game_state"] = gameSession.State
	}
	h.sendAck(client, msg, ack)
}

// handleAction game:action {room_id, type, target1?, target2?, raw_input?}
func (h *RoomHandler) handleAction(ctx context.Context, client *Client, msg *Message) {
	var payload struct {
		RoomID   uint   `json:"room_id"`
		Type     string `json:"type"`
		Target1  string `json:"target1"`
		Target2  string `json:"target2"`
		RawInput string `json:"raw_input"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		h.sendError(client, msg, apperrors.New(apperrors.ErrMessageFormat, "消息格式错误"))
		return
	}

	result, gameSession, err := h.games.ProcessAction(ctx, payload.RoomID, puzzle.ActionInput{
		UserID:     client.UserID,
		ActionType: payload.Type,
		TargetA:    payload.Target1,
		TargetB:    payload.Target2,
		RawInput:   payload.RawInput,
	})
	if err != nil {
		h.sendError(client, msg, err)
		return
	}

	h.sendAck(client, msg, map[string]interface{}{
		"success": true,
		"result":  result,
	})

	h.broadcastToRoom(payload.RoomID, MessageTypeActionResult, map[string]interface{}{
		"user_id": client.UserID,
		"result":  result,
	})
	if result.StateChanged {
		h.broadcastToRoom(payload.RoomID, MessageTypeStateUpdated, map[string]interface{}{
			"state": gameSession.State,
		})
	}
}

// handleRequestState game:request_state {room_id}
func (h *RoomHandler) handleRequestState(ctx context.Context, client *Client, msg *Message) {
	var payload struct {
		RoomID uint `json:"room_id"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		h.sendError(client, msg, apperrors.New(apperrors.ErrMessageFormat, "消息格式错误"))
		return
	}

	view, err := h.rooms.GetRoomDetails(ctx, payload.RoomID)
	if err != nil {
		h.sendError(client, msg, err)
		return
	}
	gameSession, err := h.games.GetSession(ctx, payload.RoomID)
	if err != nil {
		h.sendError(client, msg, err)
		return
	}

	h.sendAck(client, msg, map[string]interface{}{
		"success": true,
		"room":    view,
		"state":   gameSession.State,
		"session": map[string]interface{}{
			"status":     gameSession.Status,
			"created_at": gameSession.CreatedAt,
			"updated_at": gameSession.UpdatedAt,
			"events":     gameSession.RecentEvents(50),
		},
	})
}

// handleStartSync game:start_sync {room_id}
func (h *RoomHandler) handleStartSync(ctx context.Context, client *Client, msg *Message) {
	roomID, ok := h.parseRoomID(client, msg)
	if !ok {
		return
	}
	h.heartbeat.Start(roomID)
	h.sendAck(client, msg, map[string]interface{}{"success": true})
}

// handleStopSync game:stop_sync {room_id}
func (h *RoomHandler) handleStopSync(ctx context.Context, client *Client, msg *Message) {
	roomID, ok := h.parseRoomID(client, msg)
	if !ok {
		return
	}
	h.heartbeat.Stop(roomID)
	h.sendAck(client, msg, map[string]interface{}{"success": true})
}

// parseRoomID 解析只含room_id的负载
func (h *RoomHandler) parseRoomID(client *Client, msg *Message) (uint, bool) {
	var payload struct {
		RoomID uint `json:"room_id"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.RoomID == 0 {
		h.sendError(client, msg, apperrors.New(apperrors.ErrMessageFormat, "消息格式错误"))
		return 0, false
	}
	return payload.RoomID, true
}

// sendAck 回应ack信封，类型为原类型加":ack"后缀
func (h *RoomHandler) sendAck(client *Client, msg *Message, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		h.log.Error("序列化ack失败", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	h.hub.SendToClient(client.ID, &Message{
		Type:      msg.Type + ":ack",
		RequestID: msg.RequestID,
		Data:      jsonData,
		Timestamp: time.Now().Unix(),
	})
}

// sendError 以ack信封回应错误，携带错误码与提示
func (h *RoomHandler) sendError(client *Client, msg *Message, err error) {
	code := apperrors.GetCode(err)
	payload := map[string]interface{}{
		"success": false,
		"code":    strconv.Itoa(int(code)),
		"message": err.Error(),
	}
	jsonData, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return
	}
	ackType := MessageTypeError
	if msg.Type != "" && msg.Type != MessageTypeError {
		ackType = msg.Type + ":ack"
	}
	h.hub.SendToClient(client.ID, &Message{
		Type:      ackType,
		RequestID: msg.RequestID,
		Data:      jsonData,
		Timestamp: time.Now().Unix(),
	})
}

// broadcastToRoom 向房间广播事件
func (h *RoomHandler) broadcastToRoom(roomID uint, event string, payload interface{}, exclude ...string) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("序列化广播负载失败", zap.String("event", event), zap.Error(err))
		return
	}
	h.hub.SendToRoom(roomID, &Message{
		Type:      event,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}, exclude...)
}
