package session

import (
	"sync"
	"time"
)

// timerKey 宽限定时器键：一个 (用户,房间) 至多一个定时器
type timerKey struct {
	userID uint
	roomID uint
}

// Registry 会话注册表
// 持有全部宽限定时器与房间活跃时间，提供确定性的
// acquire/release/evictIdle/cancelAll 生命周期，关停时可完全排空
type Registry struct {
	mu       sync.Mutex
	timers   map[timerKey]*time.Timer
	activity map[uint]time.Time
}

// NewRegistry 创建会话注册表
func NewRegistry() *Registry {
	return &Registry{
		timers:   make(map[timerKey]*time.Timer),
		activity: make(map[uint]time.Time),
	}
}

// Acquire 标记房间活跃
func (r *Registry) Acquire(roomID uint) {
	r.mu.Lock()
	r.activity[roomID] = time.Now()
	r.mu.Unlock()
}

// Release 释放房间（房间销毁时调用）
func (r *Registry) Release(roomID uint) {
	r.mu.Lock()
	delete(r.activity, roomID)
	r.mu.Unlock()
}

// Schedule 安排宽限定时器
// 同键已有定时器时先取消再替换，绝不叠加
func (r *Registry) Schedule(userID, roomID uint, d time.Duration, fn func()) {
	key := timerKey{userID: userID, roomID: roomID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.timers[key]; ok {
		existing.Stop()
	}
	r.timers[key] = time.AfterFunc(d, func() {
		// 触发即自我清除，之后才执行回调
		r.mu.Lock()
		delete(r.timers, key)
		r.mu.Unlock()
		fn()
	})
}

// Cancel 取消宽限定时器，返回是否确有取消
func (r *Registry) Cancel(userID, roomID uint) bool {
	key := timerKey{userID: userID, roomID: roomID}

	r.mu.Lock()
	defer r.mu.Unlock()

	timer, ok := r.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(r.timers, key)
	return true
}

// CancelAll 取消房间全部定时器（房间删除必须调用，避免幽灵驱逐）
func (r *Registry) CancelAll(roomID uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancelled := 0
	for key, timer := range r.timers {
		if key.roomID == roomID {
			timer.Stop()
			delete(r.timers, key)
			cancelled++
		}
	}
	delete(r.activity, roomID)
	return cancelled
}

// Drain 取消所有定时器并清空活跃记录（进程关停时调用）
func (r *Registry) Drain() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, timer := range r.timers {
		timer.Stop()
		delete(r.timers, key)
	}
	r.activity = make(map[uint]time.Time)
}

// Pending 是否存在指定键的定时器
func (r *Registry) Pending(userID, roomID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[timerKey{userID: userID, roomID: roomID}]
	return ok
}

// PendingCount 未触发定时器总数
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// EvictIdle 返回空闲超过 maxIdle 的房间并移除其活跃记录
func (r *Registry) EvictIdle(maxIdle time.Duration) []uint {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	var idle []uint
	for roomID, last := range r.activity {
		if last.Before(cutoff) {
			idle = append(idle, roomID)
			delete(r.activity, roomID)
		}
	}
	return idle
}
