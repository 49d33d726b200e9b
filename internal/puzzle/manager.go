package puzzle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/wfunc/puzzle-party/internal/errors"
	"github.com/wfunc/puzzle-party/internal/logger"
)

// Manager 游戏会话管理器
// 动作处理按房间互斥串行，不同房间互不阻塞
type Manager struct {
	store  *Store
	engine *Engine
	maxHP  int

	mu    sync.Mutex
	locks map[uint]*sync.Mutex

	log *zap.Logger
}

// NewManager 创建游戏会话管理器
func NewManager(store *Store, engine *Engine, maxHP int) *Manager {
	return &Manager{
		store:  store,
		engine: engine,
		maxHP:  maxHP,
		locks:  make(map[uint]*sync.Mutex),
		log:    logger.GetModuleLogger("puzzle"),
	}
}

// roomLock 获取房间互斥锁
func (m *Manager) roomLock(roomID uint) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[roomID] = lock
	}
	return lock
}

// releaseLock 房间销毁后回收互斥锁
func (m *Manager) releaseLock(roomID uint) {
	m.mu.Lock()
	delete(m.locks, roomID)
	m.mu.Unlock()
}

// StartGame 开始游戏：创建初始状态并持久化会话
func (m *Manager) StartGame(ctx context.Context, roomID uint, players []PlayerState) (*Session, error) {
	lock := m.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	if existing, err := m.store.Load(ctx, roomID); err == nil && existing.Status == SessionStatusPlaying {
		return nil, apperrors.New(apperrors.ErrGameAlreadyStarted, "游戏已经开始")
	}

	state := NewGameState(m.maxHP, players)
	session := NewSession(roomID, state, m.store.eventCap)
	session.AppendEvent("game_started", 0, map[string]interface{}{
		"player_count": len(players),
	})

	if err := m.store.Save(ctx, session); err != nil {
		return nil, err
	}

	m.log.Info("游戏开始",
		zap.Uint("room_id", roomID),
		zap.Int("players", len(players)))
	return session, nil
}

// ProcessAction 处理玩家动作并持久化结果状态
func (m *Manager) ProcessAction(ctx context.Context, roomID uint, input ActionInput) (*ActionResult, *Session, error) {
	lock := m.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()

	session, err := m.store.Load(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	if session.Status != SessionStatusPlaying {
		return nil, nil, apperrors.New(apperrors.ErrGameNotStarted, "游戏未在进行中")
	}

	result, err := m.engine.Resolve(session, input)
	if err != nil {
		return nil, nil, err
	}

	if result.StateChanged {
		if err := m.store.Save(ctx, session); err != nil {
			return nil, nil, err
		}
	}

	logger.LogGameAction(roomID, input.UserID, input.ActionType, result.Success, time.Since(start))
	return result, session, nil
}

// GetSession 读取会话
func (m *Manager) GetSession(ctx context.Context, roomID uint) (*Session, error) {
	return m.store.Load(ctx, roomID)
}

// MarkDisconnected 标记玩家离线（保留席位等待重连）
func (m *Manager) MarkDisconnected(ctx context.Context, roomID uint, userID uint) error {
	return m.setPlayerPresence(ctx, roomID, userID, PlayerStatusDisconnected, false)
}

// MarkReconnected 标记玩家重连恢复
func (m *Manager) MarkReconnected(ctx context.Context, roomID uint, userID uint) error {
	return m.setPlayerPresence(ctx, roomID, userID, PlayerStatusActive, true)
}

// setPlayerPresence 更新玩家在线状态并持久化
func (m *Manager) setPlayerPresence(ctx context.Context, roomID uint, userID uint, status string, canAct bool) error {
	lock := m.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.store.Load(ctx, roomID)
	if err != nil {
		return err
	}

	player := session.State.PlayerByID(userID)
	if player == nil {
		return apperrors.New(apperrors.ErrSessionNotFound, "玩家不在本局游戏中")
	}
	player.Status = status
	player.CanAct = canAct

	eventType := "player_disconnected"
	if status == PlayerStatusActive {
		eventType = "player_reconnected"
	}
	session.AppendEvent(eventType, userID, nil)

	return m.store.Save(ctx, session)
}

// SetStatus 更新会话状态（暂停/恢复/结束）
func (m *Manager) SetStatus(ctx context.Context, roomID uint, status string) (*Session, error) {
	lock := m.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.store.Load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	session.Status = status
	session.AppendEvent("session_status", 0, map[string]interface{}{"status": status})

	if err := m.store.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteSession 删除会话（房间销毁时调用）
func (m *Manager) DeleteSession(ctx context.Context, roomID uint) error {
	lock := m.roomLock(roomID)
	lock.Lock()
	err := m.store.Delete(ctx, roomID)
	lock.Unlock()

	m.releaseLock(roomID)
	return err
}
