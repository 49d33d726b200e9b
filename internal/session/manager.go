package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/puzzle-party/internal/broadcast"
	apperrors "github.com/wfunc/puzzle-party/internal/errors"
	"github.com/wfunc/puzzle-party/internal/logger"
	"github.com/wfunc/puzzle-party/internal/puzzle"
	"github.com/wfunc/puzzle-party/internal/repository"
	"github.com/wfunc/puzzle-party/internal/room"
)

// 会话管理器推送的事件名
const (
	EventPlayerDisconnected = "room:player_disconnected"
	EventPlayerReconnected  = "room:player_reconnected"
	EventPlayerLeft         = "room:player_left"
)

// Manager 连接会话管理器
// 维护 (用户,房间) 的在线状态机：
// active → disconnected → 重连恢复 | 宽限期满驱逐
type Manager struct {
	rooms       *room.Manager
	games       *puzzle.Manager
	presence    *PresenceStore
	registry    *Registry
	heartbeat   *broadcast.Heartbeat
	broadcaster broadcast.Broadcaster
	memberships repository.MembershipRepository
	grace       time.Duration
	log         *zap.Logger
}

// NewManager 创建连接会话管理器
func NewManager(
	rooms *room.Manager,
	games *puzzle.Manager,
	presence *PresenceStore,
	registry *Registry,
	heartbeat *broadcast.Heartbeat,
	broadcaster broadcast.Broadcaster,
	memberships repository.MembershipRepository,
	grace time.Duration,
) *Manager {
	return &Manager{
		rooms:       rooms,
		games:       games,
		presence:    presence,
		registry:    registry,
		heartbeat:   heartbeat,
		broadcaster: broadcaster,
		memberships: memberships,
		grace:       grace,
		log:         logger.GetModuleLogger("session"),
	}
}

// Registry 暴露注册表供关停流程排空
func (m *Manager) Registry() *Registry {
	return m.registry
}

// HandleConnect 连接入房后登记在线状态
func (m *Manager) HandleConnect(ctx context.Context, userID, roomID uint, connID string) error {
	m.registry.Acquire(roomID)
	return m.presence.Set(ctx, &PresenceEntry{
		UserID:       userID,
		RoomID:       roomID,
		ConnectionID: connID,
		Status:       PresenceActive,
		JoinedAt:     time.Now(),
	})
}

// HandleDisconnect 传输断开
// 以数据库成员记录定位当前房间（缓存丢失也能恢复），
// 翻转在线状态并安排单发宽限定时器，同键替换不叠加
func (m *Manager) HandleDisconnect(ctx context.Context, userID uint, connID string) {
	membership, err := m.memberships.FindByUser(ctx, userID)
	if err != nil {
		m.log.Error("断开时查询成员记录失败", zap.Uint("user_id", userID), zap.Error(err))
		return
	}
	if membership == nil {
		return
	}
	roomID := membership.RoomID

	entry, err := m.presence.Get(ctx, roomID, userID)
	if err != nil {
		m.log.Warn("读取在线状态失败", zap.Uint("user_id", userID), zap.Error(err))
	}
	if entry == nil {
		entry = &PresenceEntry{
			UserID:       userID,
			RoomID:       roomID,
			ConnectionID: connID,
			JoinedAt:     membership.JoinedAt,
		}
	}
	now := time.Now()
	entry.Status = PresenceDisconnected
	entry.DisconnectedAt = &now
	if err := m.presence.Set(ctx, entry); err != nil {
		m.log.Warn("写入在线状态失败", zap.Uint("user_id", userID), zap.Error(err))
	}

	// 游戏进行中标记玩家离线，没有会话则无事可做
	if err := m.games.MarkDisconnected(ctx, roomID, userID); err != nil &&
		apperrors.GetCode(err) != apperrors.ErrSessionNotFound {
		m.log.Warn("标记游戏离线失败", zap.Uint("room_id", roomID), zap.Error(err))
	}

	m.broadcaster.ToRoom(roomID, EventPlayerDisconnected, map[string]interface{}{
		"user_id": userID,
		"grace":   m.grace.Seconds(),
	})

	m.registry.Schedule(userID, roomID, m.grace, func() {
		m.evictOnTimeout(userID, roomID)
	})

	m.log.Info("玩家断开，宽限计时开始",
		zap.Uint("user_id", userID),
		zap.Uint("room_id", roomID),
		zap.Duration("grace", m.grace))
}

// Reconnect 宽限期内重连
// 取消定时器、恢复在线状态，向重连方返回最新房间视图与游戏快照
func (m *Manager) Reconnect(ctx context.Context, userID, roomID uint, connID string) (*room.View, *puzzle.Session, error) {
	entry, err := m.presence.Get(ctx, roomID, userID)
	if err != nil {
		m.log.Warn("读取在线状态失败", zap.Uint("user_id", userID), zap.Error(err))
	}
	if entry == nil {
		return nil, nil, apperrors.New(apperrors.ErrNotInRoom, "玩家不在该房间中")
	}

	m.registry.Cancel(userID, roomID)

	entry.Status = PresenceActive
	entry.ConnectionID = connID
	entry.DisconnectedAt = nil
	if err := m.presence.Set(ctx, entry); err != nil {
		m.log.Warn("写入在线状态失败", zap.Uint("user_id", userID), zap.Error(err))
	}

	if err := m.games.MarkReconnected(ctx, roomID, userID); err != nil &&
		apperrors.GetCode(err) != apperrors.ErrSessionNotFound {
		m.log.Warn("标记游戏重连失败", zap.Uint("room_id", roomID), zap.Error(err))
	}

	view, err := m.rooms.GetRoomDetails(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	gameSession, err := m.games.GetSession(ctx, roomID)
	if err != nil {
		if apperrors.GetCode(err) != apperrors.ErrSessionNotFound {
			return nil, nil, err
		}
		gameSession = nil
	}

	m.broadcaster.ToRoom(roomID, EventPlayerReconnected, map[string]interface{}{
		"user_id": userID,
	})

	m.log.Info("玩家重连恢复", zap.Uint("user_id", userID), zap.Uint("room_id", roomID))
	return view, gameSession, nil
}

// HandleLeave 主动离房：取消定时器、删除在线状态、执行离房事务
func (m *Manager) HandleLeave(ctx context.Context, userID, roomID uint) (*room.LeaveResult, error) {
	m.registry.Cancel(userID, roomID)
	if err := m.presence.Delete(ctx, roomID, userID); err != nil {
		m.log.Warn("删除在线状态失败", zap.Uint("user_id", userID), zap.Error(err))
	}

	result, err := m.rooms.LeaveRoom(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}

	if result.RoomDeleted {
		m.cleanupRoom(ctx, roomID)
	} else {
		m.broadcaster.ToRoom(roomID, EventPlayerLeft, map[string]interface{}{
			"user_id": userID,
			"reason":  "left",
			"room":    result.View,
		})
	}
	return result, nil
}

// evictOnTimeout 宽限期满仍未重连，按主动离房处理并广播超时原因
func (m *Manager) evictOnTimeout(userID, roomID uint) {
	ctx := context.Background()

	// 定时器在重连时会被取消，这里再核对一次在线状态
	entry, err := m.presence.Get(ctx, roomID, userID)
	if err == nil && entry != nil && entry.Status == PresenceActive {
		return
	}

	if err := m.presence.Delete(ctx, roomID, userID); err != nil {
		m.log.Warn("删除在线状态失败", zap.Uint("user_id", userID), zap.Error(err))
	}

	result, err := m.rooms.LeaveRoom(ctx, roomID, userID)
	if err != nil {
		// 成员可能已被其他路径移除，驱逐自然结束
		code := apperrors.GetCode(err)
		if code != apperrors.ErrNotInRoom && code != apperrors.ErrRoomNotFound {
			m.log.Error("超时驱逐失败", zap.Uint("user_id", userID), zap.Uint("room_id", roomID), zap.Error(err))
		}
		return
	}

	logger.LogRoomEvent("player_evicted", roomID, userID, map[string]interface{}{
		"reason": "timeout",
	})

	if result.RoomDeleted {
		m.cleanupRoom(ctx, roomID)
		return
	}

	m.broadcaster.ToRoom(roomID, EventPlayerLeft, map[string]interface{}{
		"user_id":      userID,
		"reason":       "timeout",
		"room":         result.View,
		"host_changed": result.HostChanged,
		"new_host_id":  result.NewHostID,
	})
}

// cleanupRoom 房间销毁的收尾：取消定时器、停心跳、清会话与在线状态
func (m *Manager) cleanupRoom(ctx context.Context, roomID uint) {
	cancelled := m.registry.CancelAll(roomID)
	if cancelled > 0 {
		m.log.Info("房间销毁取消遗留定时器", zap.Uint("room_id", roomID), zap.Int("count", cancelled))
	}
	m.heartbeat.Stop(roomID)

	if err := m.games.DeleteSession(ctx, roomID); err != nil &&
		apperrors.GetCode(err) != apperrors.ErrSessionNotFound {
		m.log.Warn("删除游戏会话失败", zap.Uint("room_id", roomID), zap.Error(err))
	}
	if err := m.presence.DeleteRoom(ctx, roomID); err != nil {
		m.log.Warn("清除房间在线状态失败", zap.Uint("room_id", roomID), zap.Error(err))
	}
	m.registry.Release(roomID)
}

// Shutdown 进程关停：排空全部定时器并停掉所有心跳
func (m *Manager) Shutdown(ctx context.Context) {
	m.registry.Drain()
	m.heartbeat.StopAll()
	m.log.Info("会话管理器已关停")
}
