package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRegistrySchedule 定时器到期触发回调并自我清除
func TestRegistrySchedule(t *testing.T) {
	r := NewRegistry()
	var fired int32

	r.Schedule(1, 1, 10*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	assert.True(t, r.Pending(1, 1))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, r.Pending(1, 1))
	assert.Equal(t, 0, r.PendingCount())
}

// TestRegistryCancel 取消后回调不触发
func TestRegistryCancel(t *testing.T) {
	r := NewRegistry()
	var fired int32

	r.Schedule(1, 1, 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	assert.True(t, r.Cancel(1, 1))
	assert.False(t, r.Pending(1, 1))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))

	// 再次取消返回false
	assert.False(t, r.Cancel(1, 1))
}

// TestRegistryReplaceNotStack 同键重复安排时替换而非叠加
func TestRegistryReplaceNotStack(t *testing.T) {
	r := NewRegistry()
	var fired int32

	r.Schedule(1, 1, 15*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	r.Schedule(1, 1, 15*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	r.Schedule(1, 1, 15*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	assert.Equal(t, 1, r.PendingCount())

	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) > 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

// TestRegistryCancelAll 房间删除取消该房间全部定时器
func TestRegistryCancelAll(t *testing.T) {
	r := NewRegistry()
	var fired int32
	cb := func() { atomic.AddInt32(&fired, 1) }

	r.Schedule(1, 7, 20*time.Millisecond, cb)
	r.Schedule(2, 7, 20*time.Millisecond, cb)
	r.Schedule(3, 8, 20*time.Millisecond, cb)

	assert.Equal(t, 2, r.CancelAll(7))
	assert.Equal(t, 1, r.PendingCount())
	assert.True(t, r.Pending(3, 8))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

// TestRegistryDrain 关停排空全部定时器
func TestRegistryDrain(t *testing.T) {
	r := NewRegistry()
	var fired int32
	cb := func() { atomic.AddInt32(&fired, 1) }

	r.Schedule(1, 1, 20*time.Millisecond, cb)
	r.Schedule(2, 2, 20*time.Millisecond, cb)
	r.Drain()
	assert.Equal(t, 0, r.PendingCount())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

// TestRegistryEvictIdle 空闲房间被识别并移除活跃记录
func TestRegistryEvictIdle(t *testing.T) {
	r := NewRegistry()
	r.Acquire(1)
	time.Sleep(20 * time.Millisecond)
	r.Acquire(2)

	idle := r.EvictIdle(10 * time.Millisecond)
	assert.Equal(t, []uint{1}, idle)

	// 第二次不再返回
	assert.Empty(t, r.EvictIdle(10*time.Millisecond))
}
