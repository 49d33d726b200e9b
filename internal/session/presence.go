package session

import (
	"context"
	"fmt"
	"time"

	"github.com/wfunc/puzzle-party/internal/cache"
)

// 在线状态
const (
	PresenceActive       = "active"
	PresenceDisconnected = "disconnected"
)

// PresenceEntry 成员在线状态（仅存缓存，非权威，可随时从数据库重建）
type PresenceEntry struct {
	UserID         uint       `json:"user_id"`
	RoomID         uint       `json:"room_id"`
	ConnectionID   string     `json:"connection_id"`
	Status         string     `json:"status"`
	JoinedAt       time.Time  `json:"joined_at"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
}

// presenceKey 在线状态缓存键
func presenceKey(roomID, userID uint) string {
	return fmt.Sprintf("presence:%d:%d", roomID, userID)
}

// presenceRoomPattern 房间全体在线状态的键前缀通配
func presenceRoomPattern(roomID uint) string {
	return fmt.Sprintf("presence:%d:*", roomID)
}

// PresenceStore 在线状态存储
type PresenceStore struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewPresenceStore 创建在线状态存储
func NewPresenceStore(c cache.Cache, ttl time.Duration) *PresenceStore {
	return &PresenceStore{cache: c, ttl: ttl}
}

// Set 写入在线状态
func (s *PresenceStore) Set(ctx context.Context, entry *PresenceEntry) error {
	return cache.SetJSON(ctx, s.cache, presenceKey(entry.RoomID, entry.UserID), entry, s.ttl)
}

// Get 读取在线状态，不存在返回 (nil, nil)
func (s *PresenceStore) Get(ctx context.Context, roomID, userID uint) (*PresenceEntry, error) {
	var entry PresenceEntry
	err := cache.GetJSON(ctx, s.cache, presenceKey(roomID, userID), &entry)
	if err == cache.ErrCacheMiss {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Delete 删除单个在线状态
func (s *PresenceStore) Delete(ctx context.Context, roomID, userID uint) error {
	return s.cache.Delete(ctx, presenceKey(roomID, userID))
}

// DeleteRoom 删除房间全部在线状态（房间销毁时调用）
func (s *PresenceStore) DeleteRoom(ctx context.Context, roomID uint) error {
	return s.cache.DeletePattern(ctx, presenceRoomPattern(roomID))
}
