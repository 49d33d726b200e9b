package puzzle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wfunc/puzzle-party/internal/cache"
	apperrors "github.com/wfunc/puzzle-party/internal/errors"
	"github.com/wfunc/puzzle-party/internal/logger"
	"github.com/wfunc/puzzle-party/internal/models"
	"github.com/wfunc/puzzle-party/internal/repository"
)

// sessionKey 会话缓存键
func sessionKey(roomID uint) string {
	return fmt.Sprintf("game:session:%d", roomID)
}

// Store 游戏会话存储
// 数据库快照为权威，缓存为滑动TTL投影：
// 写入先落库再刷缓存，读取先查缓存、未命中回源并自愈
type Store struct {
	cache     cache.Cache
	snapshots repository.SnapshotRepository
	ttl       time.Duration
	eventCap  int
	log       *zap.Logger
}

// NewStore 创建会话存储
func NewStore(c cache.Cache, snapshots repository.SnapshotRepository, ttl time.Duration, eventCap int) *Store {
	return &Store{
		cache:     c,
		snapshots: snapshots,
		ttl:       ttl,
		eventCap:  eventCap,
		log:       logger.GetModuleLogger("puzzle"),
	}
}

// Save 保存会话：先写数据库快照，成功后刷新缓存
func (s *Store) Save(ctx context.Context, session *Session) error {
	stateData, err := json.Marshal(session.State)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrMessageFormat, "序列化游戏状态失败")
	}
	eventLog, err := json.Marshal(session.Events)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrMessageFormat, "序列化事件日志失败")
	}

	snapshot := &models.GameSnapshot{
		RoomID:    session.RoomID,
		Status:    session.Status,
		StateData: string(stateData),
		EventLog:  string(eventLog),
	}
	if err := s.snapshots.Upsert(ctx, snapshot); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate, "保存游戏快照失败")
	}

	// 缓存刷新尽力而为，失败不回滚权威写入
	if err := cache.SetJSON(ctx, s.cache, sessionKey(session.RoomID), session, s.ttl); err != nil {
		s.log.Warn("刷新会话缓存失败",
			zap.Uint("room_id", session.RoomID),
			zap.Error(err))
	}
	return nil
}

// Load 加载会话：缓存优先，未命中回源数据库并重建缓存
func (s *Store) Load(ctx context.Context, roomID uint) (*Session, error) {
	key := sessionKey(roomID)

	var session Session
	err := cache.GetJSON(ctx, s.cache, key, &session)
	if err == nil {
		session.SetEventCap(s.eventCap)
		// 滑动TTL：每次命中顺延过期时间
		if err := cache.SetJSON(ctx, s.cache, key, &session, s.ttl); err != nil {
			s.log.Warn("顺延会话缓存TTL失败", zap.Uint("room_id", roomID), zap.Error(err))
		}
		return &session, nil
	}
	if err != cache.ErrCacheMiss {
		s.log.Warn("读取会话缓存失败", zap.Uint("room_id", roomID), zap.Error(err))
	}

	snapshot, err := s.snapshots.FindByRoom(ctx, roomID)
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.New(apperrors.ErrSessionNotFound, "游戏会话不存在")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "读取游戏快照失败")
	}

	restored, err := s.restore(snapshot)
	if err != nil {
		return nil, err
	}

	// 缓存自愈
	if err := cache.SetJSON(ctx, s.cache, key, restored, s.ttl); err != nil {
		s.log.Warn("重建会话缓存失败", zap.Uint("room_id", roomID), zap.Error(err))
	}
	return restored, nil
}

// Delete 删除会话的缓存与快照
func (s *Store) Delete(ctx context.Context, roomID uint) error {
	if err := s.cache.Delete(ctx, sessionKey(roomID)); err != nil {
		s.log.Warn("删除会话缓存失败", zap.Uint("room_id", roomID), zap.Error(err))
	}
	return s.snapshots.DeleteByRoom(ctx, roomID)
}

// restore 从数据库快照重建会话
func (s *Store) restore(snapshot *models.GameSnapshot) (*Session, error) {
	var state GameState
	if err := json.Unmarshal([]byte(snapshot.StateData), &state); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrMessageFormat, "反序列化游戏状态失败")
	}
	var events []Event
	if snapshot.EventLog != "" {
		if err := json.Unmarshal([]byte(snapshot.EventLog), &events); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrMessageFormat, "反序列化事件日志失败")
		}
	}
	if events == nil {
		events = []Event{}
	}

	return &Session{
		RoomID:    snapshot.RoomID,
		Status:    snapshot.Status,
		State:     &state,
		Events:    events,
		CreatedAt: snapshot.CreatedAt,
		UpdatedAt: snapshot.UpdatedAt,
		eventCap:  s.eventCap,
	}, nil
}
