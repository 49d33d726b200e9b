package puzzle

import (
	"time"

	"github.com/google/uuid"
)

// 会话状态，与房间状态同词表
const (
	SessionStatusWaiting   = "waiting"
	SessionStatusPlaying   = "playing"
	SessionStatusPaused    = "paused"
	SessionStatusCompleted = "completed"
	SessionStatusEnded     = "ended"
)

// Event 游戏事件
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	UserID    uint                   `json:"user_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Session 房间游戏会话
// 状态与事件日志的内存形态，持久化经由 Store
type Session struct {
	RoomID    uint       `json:"room_id"`
	Status    string     `json:"status"`
	State     *GameState `json:"state"`
	Events    []Event    `json:"events"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	eventCap int
}

// NewSession 创建游戏会话
func NewSession(roomID uint, state *GameState, eventCap int) *Session {
	now := time.Now()
	return &Session{
		RoomID:    roomID,
		Status:    SessionStatusPlaying,
		State:     state,
		Events:    []Event{},
		CreatedAt: now,
		UpdatedAt: now,
		eventCap:  eventCap,
	}
}

// SetEventCap 设置事件日志上限（从持久化恢复后需要重新绑定）
func (s *Session) SetEventCap(cap int) {
	s.eventCap = cap
}

// AppendEvent 追加事件，超出上限时丢弃最旧的
func (s *Session) AppendEvent(eventType string, userID uint, payload map[string]interface{}) Event {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	s.Events = append(s.Events, event)
	if s.eventCap > 0 && len(s.Events) > s.eventCap {
		s.Events = s.Events[len(s.Events)-s.eventCap:]
	}
	s.UpdatedAt = time.Now()
	return event
}

// RecentEvents 返回最近的 n 条事件
func (s *Session) RecentEvents(n int) []Event {
	if n <= 0 || n >= len(s.Events) {
		return s.Events
	}
	return s.Events[len(s.Events)-n:]
}
