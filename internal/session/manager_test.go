package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/puzzle-party/internal/broadcast"
	"github.com/wfunc/puzzle-party/internal/cache"
	apperrors "github.com/wfunc/puzzle-party/internal/errors"
	"github.com/wfunc/puzzle-party/internal/models"
	"github.com/wfunc/puzzle-party/internal/puzzle"
	"github.com/wfunc/puzzle-party/internal/repository"
	"github.com/wfunc/puzzle-party/internal/room"
)

// recorder 记录广播事件的桩
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	RoomID  uint
	Event   string
	Payload interface{}
}

func (r *recorder) ToRoom(roomID uint, event string, payload interface{}) {
	r.mu.Lock()
	r.events = append(r.events, recordedEvent{RoomID: roomID, Event: event, Payload: payload})
	r.mu.Unlock()
}

func (r *recorder) ToUser(userID uint, event string, payload interface{}) {}

// find 查找最近一条指定事件
func (r *recorder) find(event string) (recordedEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Event == event {
			return r.events[i], true
		}
	}
	return recordedEvent{}, false
}

// ManagerTestSuite 连接会话管理器测试套件
type ManagerTestSuite struct {
	suite.Suite
	db       *gorm.DB
	cache    *cache.MemoryCache
	rooms    *room.Manager
	games    *puzzle.Manager
	rec      *recorder
	manager  *Manager
	registry *Registry
	ctx      context.Context
}

const testGrace = 60 * time.Millisecond

func (s *ManagerTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	s.Require().NoError(err)
	s.Require().NoError(db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.RoomMembership{},
		&models.GameSnapshot{},
	))

	s.db = db
	s.cache = cache.NewMemoryCache()
	s.ctx = context.Background()

	s.rooms = room.NewManager(db, s.cache, room.Options{
		MaxPlayers:   3,
		CodeAttempts: 5,
		DetailTTL:    30 * time.Minute,
		ListTTL:      10 * time.Second,
	})

	store := puzzle.NewStore(s.cache, repository.NewSnapshotRepository(db), 30*time.Minute, 1000)
	s.games = puzzle.NewManager(store, puzzle.NewEngine(puzzle.DefaultRules()), 10)

	s.rec = &recorder{}
	s.registry = NewRegistry()
	heartbeat := broadcast.NewHeartbeat(s.rec, func(ctx context.Context, roomID uint) (interface{}, error) {
		return nil, nil
	}, time.Hour)

	s.manager = NewManager(
		s.rooms,
		s.games,
		NewPresenceStore(s.cache, 30*time.Minute),
		s.registry,
		heartbeat,
		s.rec,
		repository.NewMembershipRepository(db),
		testGrace,
	)
}

func (s *ManagerTestSuite) TearDownTest() {
	s.manager.Shutdown(s.ctx)
	sqlDB, _ := s.db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// setupRoom 建一个 A(turtle,host) + B(cat) 的房间
func (s *ManagerTestSuite) setupRoom() *room.View {
	view, err := s.rooms.CreateRoom(s.ctx, room.CreateInput{
		HostID: 1, Name: "测试", Character: models.CharacterTurtle,
	})
	s.Require().NoError(err)
	_, _, err = s.rooms.JoinRoom(s.ctx, room.JoinInput{
		Identifier: view.Code, UserID: 2, Character: models.CharacterCat,
	})
	s.Require().NoError(err)

	s.Require().NoError(s.manager.HandleConnect(s.ctx, 1, view.ID, "conn-a"))
	s.Require().NoError(s.manager.HandleConnect(s.ctx, 2, view.ID, "conn-b"))
	return view
}

// membershipCount 直查成员行数
func (s *ManagerTestSuite) membershipCount(roomID uint) int64 {
	var count int64
	s.db.Model(&models.RoomMembership{}).Where("room_id = ?", roomID).Count(&count)
	return count
}

// TestDisconnectStartsGraceTimer 断开后存在宽限定时器且广播离线
func (s *ManagerTestSuite) TestDisconnectStartsGraceTimer() {
	view := s.setupRoom()

	s.manager.HandleDisconnect(s.ctx, 2, "conn-b")
	s.True(s.registry.Pending(2, view.ID))

	_, found := s.rec.find(EventPlayerDisconnected)
	s.True(found)
}

// TestReconnectWithinGrace 宽限期内重连：成员原封不动、定时器取消
func (s *ManagerTestSuite) TestReconnectWithinGrace() {
	view := s.setupRoom()
	s.manager.HandleDisconnect(s.ctx, 2, "conn-b")

	roomView, _, err := s.manager.Reconnect(s.ctx, 2, view.ID, "conn-b2")
	s.Require().NoError(err)
	s.Equal(2, roomView.CurrentPlayers)
	s.Equal(uint(1), roomView.HostID)
	s.False(s.registry.Pending(2, view.ID))

	// 宽限期过后成员仍在
	time.Sleep(testGrace + 40*time.Millisecond)
	s.Equal(int64(2), s.membershipCount(view.ID))

	_, found := s.rec.find(EventPlayerReconnected)
	s.True(found)
}

// TestTimeoutEviction 宽限期满未重连：等同主动离房并广播timeout
// 对应场景：A(龟,房主)+B(猫)，B断开超时，B成员移除、人数减一、房主仍是A
func (s *ManagerTestSuite) TestTimeoutEviction() {
	view := s.setupRoom()
	s.manager.HandleDisconnect(s.ctx, 2, "conn-b")

	s.Require().Eventually(func() bool {
		return s.membershipCount(view.ID) == 1
	}, time.Second, 10*time.Millisecond)

	var target models.Room
	s.Require().NoError(s.db.First(&target, view.ID).Error)
	s.Equal(1, target.CurrentPlayers)
	s.Equal(uint(1), target.HostID)

	event, found := s.rec.find(EventPlayerLeft)
	s.Require().True(found)
	payload := event.Payload.(map[string]interface{})
	s.Equal("timeout", payload["reason"])
	s.Equal(uint(2), payload["user_id"])
}

// TestTimeoutEvictionHostTransfer 房主超时驱逐触发房主转移
func (s *ManagerTestSuite) TestTimeoutEvictionHostTransfer() {
	view := s.setupRoom()
	s.manager.HandleDisconnect(s.ctx, 1, "conn-a")

	s.Require().Eventually(func() bool {
		return s.membershipCount(view.ID) == 1
	}, time.Second, 10*time.Millisecond)

	var target models.Room
	s.Require().NoError(s.db.First(&target, view.ID).Error)
	s.Equal(uint(2), target.HostID)

	event, found := s.rec.find(EventPlayerLeft)
	s.Require().True(found)
	payload := event.Payload.(map[string]interface{})
	s.Equal(true, payload["host_changed"])
	s.Equal(uint(2), payload["new_host_id"])
}

// TestLastMemberTimeoutDeletesRoom 最后一人超时驱逐删除房间并排空定时器
func (s *ManagerTestSuite) TestLastMemberTimeoutDeletesRoom() {
	view, err := s.rooms.CreateRoom(s.ctx, room.CreateInput{
		HostID: 1, Character: models.CharacterTurtle,
	})
	s.Require().NoError(err)
	s.Require().NoError(s.manager.HandleConnect(s.ctx, 1, view.ID, "conn-a"))

	s.manager.HandleDisconnect(s.ctx, 1, "conn-a")

	s.Require().Eventually(func() bool {
		var count int64
		s.db.Model(&models.Room{}).Count(&count)
		return count == 0
	}, time.Second, 10*time.Millisecond)

	s.Equal(0, s.registry.PendingCount())
}

// TestReconnectWithoutPresence 无在线状态的重连报不在房间
func (s *ManagerTestSuite) TestReconnectWithoutPresence() {
	view := s.setupRoom()
	_, _, err := s.manager.Reconnect(s.ctx, 99, view.ID, "conn-x")
	s.Equal(apperrors.ErrNotInRoom, apperrors.GetCode(err))
}

// TestDisconnectReplaceNotStack 重复断开只保留一个定时器
func (s *ManagerTestSuite) TestDisconnectReplaceNotStack() {
	s.setupRoom()

	s.manager.HandleDisconnect(s.ctx, 2, "conn-b")
	s.manager.HandleDisconnect(s.ctx, 2, "conn-b")
	s.manager.HandleDisconnect(s.ctx, 2, "conn-b")

	s.Equal(1, s.registry.PendingCount())
}

// TestHandleLeaveCancelsTimer 主动离房取消宽限定时器
func (s *ManagerTestSuite) TestHandleLeaveCancelsTimer() {
	view := s.setupRoom()
	s.manager.HandleDisconnect(s.ctx, 2, "conn-b")
	s.Require().True(s.registry.Pending(2, view.ID))

	result, err := s.manager.HandleLeave(s.ctx, 2, view.ID)
	s.Require().NoError(err)
	s.False(result.RoomDeleted)
	s.False(s.registry.Pending(2, view.ID))
	s.Equal(int64(1), s.membershipCount(view.ID))
}

// TestReconnectReturnsGameState 游戏开局后重连方拿到最新快照
func (s *ManagerTestSuite) TestReconnectReturnsGameState() {
	view := s.setupRoom()
	_, err := s.games.StartGame(s.ctx, view.ID, []puzzle.PlayerState{
		{UserID: 1, Character: "turtle"},
		{UserID: 2, Character: "cat"},
	})
	s.Require().NoError(err)

	s.manager.HandleDisconnect(s.ctx, 2, "conn-b")
	_, gameSession, err := s.manager.Reconnect(s.ctx, 2, view.ID, "conn-b2")
	s.Require().NoError(err)
	s.Require().NotNil(gameSession)
	s.Len(gameSession.State.Players, 2)
	s.Equal(puzzle.PlayerStatusActive, gameSession.State.PlayerByID(2).Status)
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}
