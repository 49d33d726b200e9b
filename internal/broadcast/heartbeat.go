package broadcast

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/puzzle-party/internal/logger"
)

// EventStateSync 心跳全量同步事件名
const EventStateSync = "game:state_sync"

// SnapshotFunc 取房间当前权威快照
type SnapshotFunc func(ctx context.Context, roomID uint) (interface{}, error)

// Heartbeat 周期全量状态同步器
// 每个开启同步的房间一个定时器，显式开启、显式停止，
// 不与房间生命周期隐式绑定
type Heartbeat struct {
	broadcaster Broadcaster
	snapshot    SnapshotFunc
	interval    time.Duration

	mu      sync.Mutex
	cancels map[uint]chan struct{}

	log *zap.Logger
}

// NewHeartbeat 创建心跳同步器
func NewHeartbeat(b Broadcaster, snapshot SnapshotFunc, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		broadcaster: b,
		snapshot:    snapshot,
		interval:    interval,
		cancels:     make(map[uint]chan struct{}),
		log:         logger.GetModuleLogger("websocket"),
	}
}

// Start 开启房间心跳，已开启则不重复
func (h *Heartbeat) Start(roomID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, running := h.cancels[roomID]; running {
		return
	}
	done := make(chan struct{})
	h.cancels[roomID] = done

	go h.run(roomID, done)
	h.log.Info("心跳同步开启", zap.Uint("room_id", roomID), zap.Duration("interval", h.interval))
}

// Stop 停止房间心跳
func (h *Heartbeat) Stop(roomID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if done, running := h.cancels[roomID]; running {
		close(done)
		delete(h.cancels, roomID)
		h.log.Info("心跳同步停止", zap.Uint("room_id", roomID))
	}
}

// StopAll 停止全部心跳（进程关停时调用）
func (h *Heartbeat) StopAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID, done := range h.cancels {
		close(done)
		delete(h.cancels, roomID)
	}
}

// Active 房间心跳是否在运行
func (h *Heartbeat) Active(roomID uint) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, running := h.cancels[roomID]
	return running
}

// run 心跳循环
func (h *Heartbeat) run(roomID uint, done chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			snapshot, err := h.snapshot(context.Background(), roomID)
			if err != nil {
				h.log.Warn("心跳取快照失败", zap.Uint("room_id", roomID), zap.Error(err))
				continue
			}
			h.broadcaster.ToRoom(roomID, EventStateSync, snapshot)
		}
	}
}
