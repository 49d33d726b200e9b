package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("缓存未命中")

// Cache 会话缓存接口
// 缓存只是持久层的投影，任何实现的失败都不应阻塞权威操作
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	// Set ttl<=0 表示不过期
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern 删除匹配前缀通配（如 "room:list:*"）的所有键
	DeletePattern(ctx context.Context, pattern string) error
	Close() error
}

// GetJSON 读取并反序列化缓存值
func GetJSON(ctx context.Context, c Cache, key string, dest interface{}) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// SetJSON 序列化并写入缓存值
func SetJSON(ctx context.Context, c Cache, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, string(data), ttl)
}

// memoryEntry 内存缓存条目
type memoryEntry struct {
	value    string
	expireAt time.Time // 零值表示不过期
}

// MemoryCache 进程内缓存实现（测试与单机部署）
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryCache 创建进程内缓存
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
	}
}

// Get 读取缓存
func (c *MemoryCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return "", ErrCacheMiss
	}

	// 惰性过期
	if !entry.expireAt.IsZero() && time.Now().After(entry.expireAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return "", ErrCacheMiss
	}

	return entry.value, nil
}

// Set 写入缓存
func (c *MemoryCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expireAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

// Delete 删除缓存键
func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return nil
}

// DeletePattern 删除匹配前缀的所有键
func (c *MemoryCache) DeletePattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")

	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
	return nil
}

// Close 关闭缓存
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}
