package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/puzzle-party/internal/cache"
	apperrors "github.com/wfunc/puzzle-party/internal/errors"
	"github.com/wfunc/puzzle-party/internal/models"
)

// ManagerTestSuite 房间管理器测试套件
type ManagerTestSuite struct {
	suite.Suite
	db      *gorm.DB
	cache   *cache.MemoryCache
	manager *Manager
	ctx     context.Context
}

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
	s.manager = NewManager(db, s.cache, Options{
		MaxPlayers:   3,
		CodeAttempts: 5,
		DetailTTL:    30 * time.Minute,
		ListTTL:      10 * time.Second,
	})
	s.ctx = context.Background()
}

func (s *ManagerTestSuite) TearDownTest() {
	sqlDB, _ := s.db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// createRoom 快捷建房
func (s *ManagerTestSuite) createRoom(hostID uint, character string) *View {
	view, err := s.manager.CreateRoom(s.ctx, CreateInput{
		HostID:      hostID,
		Name:        "测试房间",
		Character:   character,
		DisplayName: "玩家",
	})
	s.Require().NoError(err)
	return view
}

// membershipCount 直查成员行数
func (s *ManagerTestSuite) membershipCount(roomID uint) int64 {
	var count int64
	s.db.Model(&models.RoomMembership{}).Where("room_id = ?", roomID).Count(&count)
	return count
}

// TestCreateRoom 建房后房主即首位成员
func (s *ManagerTestSuite) TestCreateRoom() {
	view := s.createRoom(1, models.CharacterTurtle)

	s.Len(view.Code, CodeLength)
	s.True(IsCode(view.Code))
	s.Equal(uint(1), view.HostID)
	s.Equal(models.RoomStatusWaiting, view.Status)
	s.Equal(1, view.CurrentPlayers)
	s.Require().Len(view.Members, 1)
	s.True(view.Members[0].IsHost)
	s.Equal(models.CharacterTurtle, view.Members[0].Character)
}

// TestCreateRoomInvalidCharacter 非法角色被拒
func (s *ManagerTestSuite) TestCreateRoomInvalidCharacter() {
	_, err := s.manager.CreateRoom(s.ctx, CreateInput{HostID: 1, Character: "dragon"})
	s.Equal(apperrors.ErrInvalidCharacter, apperrors.GetCode(err))
}

// TestCreateRoomAlreadyInRoom 已在房间中不能再建房
func (s *ManagerTestSuite) TestCreateRoomAlreadyInRoom() {
	s.createRoom(1, models.CharacterTurtle)
	_, err := s.manager.CreateRoom(s.ctx, CreateInput{HostID: 1, Character: models.CharacterCat})
	s.Equal(apperrors.ErrAlreadyInRoom, apperrors.GetCode(err))
}

// TestJoinRoomByCode 按房间码加入
func (s *ManagerTestSuite) TestJoinRoomByCode() {
	created := s.createRoom(1, models.CharacterTurtle)

	view, already, err := s.manager.JoinRoom(s.ctx, JoinInput{
		Identifier: created.Code,
		UserID:     2,
		Character:  models.CharacterCat,
	})
	s.Require().NoError(err)
	s.False(already)
	s.Equal(2, view.CurrentPlayers)
	s.Len(view.Members, 2)
}

// TestJoinRoomIdempotent 重复加入返回当前视图且不产生第二条成员记录
func (s *ManagerTestSuite) TestJoinRoomIdempotent() {
	created := s.createRoom(1, models.CharacterTurtle)
	first, _, err := s.manager.JoinRoom(s.ctx, JoinInput{
		Identifier: created.Code, UserID: 2, Character: models.CharacterCat,
	})
	s.Require().NoError(err)

	second, already, err := s.manager.JoinRoom(s.ctx, JoinInput{
		Identifier: created.Code, UserID: 2, Character: models.CharacterCat,
	})
	s.Require().NoError(err)
	s.True(already)
	s.Equal(first.CurrentPlayers, second.CurrentPlayers)
	s.Equal(int64(2), s.membershipCount(created.ID))
}

// TestJoinRoomFull 满员后第四人被拒且人数不变
func (s *ManagerTestSuite) TestJoinRoomFull() {
	created := s.createRoom(1, models.CharacterTurtle)
	_, _, err := s.manager.JoinRoom(s.ctx, JoinInput{Identifier: created.Code, UserID: 2, Character: models.CharacterCat})
	s.Require().NoError(err)
	_, _, err = s.manager.JoinRoom(s.ctx, JoinInput{Identifier: created.Code, UserID: 3, Character: models.CharacterRabbit})
	s.Require().NoError(err)

	_, _, err = s.manager.JoinRoom(s.ctx, JoinInput{Identifier: created.Code, UserID: 4, Character: models.CharacterCat})
	s.Equal(apperrors.ErrRoomFull, apperrors.GetCode(err))
	s.Equal(int64(3), s.membershipCount(created.ID))
}

// TestJoinCharacterTaken 角色被占用后第二人不能再选
func (s *ManagerTestSuite) TestJoinCharacterTaken() {
	created := s.createRoom(1, models.CharacterTurtle)
	_, _, err := s.manager.JoinRoom(s.ctx, JoinInput{Identifier: created.Code, UserID: 2, Character: models.CharacterTurtle})
	s.Equal(apperrors.ErrCharacterTaken, apperrors.GetCode(err))
}

// TestJoinRoomNotJoinable 非waiting状态不可加入
func (s *ManagerTestSuite) TestJoinRoomNotJoinable() {
	created := s.createRoom(1, models.CharacterTurtle)
	_, err := s.manager.UpdateRoomStatus(s.ctx, created.ID, models.RoomStatusPlaying)
	s.Require().NoError(err)

	_, _, err = s.manager.JoinRoom(s.ctx, JoinInput{Identifier: created.Code, UserID: 2, Character: models.CharacterCat})
	s.Equal(apperrors.ErrRoomNotJoinable, apperrors.GetCode(err))
}

// TestJoinRoomPassword 带密码房间校验入房密码
func (s *ManagerTestSuite) TestJoinRoomPassword() {
	created, err := s.manager.CreateRoom(s.ctx, CreateInput{
		HostID:    1,
		Password:  "secret",
		Character: models.CharacterTurtle,
	})
	s.Require().NoError(err)
	s.True(created.HasPassword)

	_, _, err = s.manager.JoinRoom(s.ctx, JoinInput{
		Identifier: created.Code, UserID: 2, Character: models.CharacterCat, Password: "wrong",
	})
	s.Equal(apperrors.ErrRoomPassword, apperrors.GetCode(err))

	_, _, err = s.manager.JoinRoom(s.ctx, JoinInput{
		Identifier: created.Code, UserID: 2, Character: models.CharacterCat, Password: "secret",
	})
	s.NoError(err)
}

// TestJoinRoomByID 房间码未命中时按ID解析
func (s *ManagerTestSuite) TestJoinRoomByID() {
	created := s.createRoom(1, models.CharacterTurtle)

	view, _, err := s.manager.JoinRoom(s.ctx, JoinInput{
		Identifier: "1", UserID: 2, Character: models.CharacterCat,
	})
	s.Require().NoError(err)
	s.Equal(created.ID, view.ID)
}

// TestJoinRoomNotFound 未知标识符返回房间不存在
func (s *ManagerTestSuite) TestJoinRoomNotFound() {
	_, _, err := s.manager.JoinRoom(s.ctx, JoinInput{Identifier: "ZZZZZZ", UserID: 2, Character: models.CharacterCat})
	s.Equal(apperrors.ErrRoomNotFound, apperrors.GetCode(err))
}

// TestLeaveRoomHostTransfer 房主离开转移给最早加入的成员
func (s *ManagerTestSuite) TestLeaveRoomHostTransfer() {
	created := s.createRoom(1, models.CharacterTurtle)
	_, _, err := s.manager.JoinRoom(s.ctx, JoinInput{Identifier: created.Code, UserID: 2, Character: models.CharacterCat})
	s.Require().NoError(err)
	_, _, err = s.manager.JoinRoom(s.ctx, JoinInput{Identifier: created.Code, UserID: 3, Character: models.CharacterRabbit})
	s.Require().NoError(err)

	result, err := s.manager.LeaveRoom(s.ctx, created.ID, 1)
	s.Require().NoError(err)
	s.False(result.RoomDeleted)
	s.True(result.HostChanged)
	s.Equal(uint(2), result.NewHostID)
	s.Equal(uint(2), result.View.HostID)
	s.Equal(2, result.View.CurrentPlayers)
}

// TestLeaveRoomNonHost 非房主离开不触发转移
func (s *ManagerTestSuite) TestLeaveRoomNonHost() {
	created := s.createRoom(1, models.CharacterTurtle)
	_, _, err := s.manager.JoinRoom(s.ctx, JoinInput{Identifier: created.Code, UserID: 2, Character: models.CharacterCat})
	s.Require().NoError(err)

	result, err := s.manager.LeaveRoom(s.ctx, created.ID, 2)
	s.Require().NoError(err)
	s.False(result.HostChanged)
	s.Equal(uint(1), result.View.HostID)
}

// TestLeaveRoomLastMember 最后一人离开删除房间并清缓存
func (s *ManagerTestSuite) TestLeaveRoomLastMember() {
	created := s.createRoom(1, models.CharacterTurtle)

	result, err := s.manager.LeaveRoom(s.ctx, created.ID, 1)
	s.Require().NoError(err)
	s.True(result.RoomDeleted)
	s.Nil(result.View)

	var count int64
	s.db.Model(&models.Room{}).Count(&count)
	s.Equal(int64(0), count)

	_, err = s.cache.Get(s.ctx, viewKey(created.ID))
	s.Equal(cache.ErrCacheMiss, err)
}

// TestLeaveRoomNotInRoom 不在房间中离开报错
func (s *ManagerTestSuite) TestLeaveRoomNotInRoom() {
	created := s.createRoom(1, models.CharacterTurtle)
	_, err := s.manager.LeaveRoom(s.ctx, created.ID, 99)
	s.Equal(apperrors.ErrNotInRoom, apperrors.GetCode(err))
}

// TestCurrentPlayersInvariant 每次成员变更后人数等于成员行数
func (s *ManagerTestSuite) TestCurrentPlayersInvariant() {
	created := s.createRoom(1, models.CharacterTurtle)

	check := func() {
		var target models.Room
		s.Require().NoError(s.db.First(&target, created.ID).Error)
		s.Equal(s.membershipCount(created.ID), int64(target.CurrentPlayers))
	}
	check()

	_, _, err := s.manager.JoinRoom(s.ctx, JoinInput{Identifier: created.Code, UserID: 2, Character: models.CharacterCat})
	s.Require().NoError(err)
	check()

	_, err = s.manager.LeaveRoom(s.ctx, created.ID, 2)
	s.Require().NoError(err)
	check()
}

// TestGetRoomDetailsCacheSelfHeal 缓存丢失后读穿回源并重建
func (s *ManagerTestSuite) TestGetRoomDetailsCacheSelfHeal() {
	created := s.createRoom(1, models.CharacterTurtle)
	s.Require().NoError(s.cache.Delete(s.ctx, viewKey(created.ID)))

	view, err := s.manager.GetRoomDetails(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(created.Code, view.Code)

	_, err = s.cache.Get(s.ctx, viewKey(created.ID))
	s.NoError(err)
}

// TestGetCurrentRoom 查询用户当前房间
func (s *ManagerTestSuite) TestGetCurrentRoom() {
	created := s.createRoom(1, models.CharacterTurtle)

	view, err := s.manager.GetCurrentRoom(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().NotNil(view)
	s.Equal(created.ID, view.ID)

	none, err := s.manager.GetCurrentRoom(s.ctx, 99)
	s.Require().NoError(err)
	s.Nil(none)
}

// TestGetRoomList 列表缓存随建房作废
func (s *ManagerTestSuite) TestGetRoomList() {
	s.createRoom(1, models.CharacterTurtle)

	page, err := s.manager.GetRoomList(s.ctx, models.RoomStatusWaiting, 1, 10)
	s.Require().NoError(err)
	s.Len(page.Items, 1)
	s.Equal(int64(1), page.Total)

	// 第二次建房作废列表缓存
	s.createRoom(2, models.CharacterCat)
	page, err = s.manager.GetRoomList(s.ctx, models.RoomStatusWaiting, 1, 10)
	s.Require().NoError(err)
	s.Len(page.Items, 2)
}

// TestUpdateRoomStatusStartedAtOnce 开始时间只打一次戳
func (s *ManagerTestSuite) TestUpdateRoomStatusStartedAtOnce() {
	created := s.createRoom(1, models.CharacterTurtle)

	playing, err := s.manager.UpdateRoomStatus(s.ctx, created.ID, models.RoomStatusPlaying)
	s.Require().NoError(err)
	s.Require().NotNil(playing.StartedAt)
	firstStart := *playing.StartedAt

	_, err = s.manager.UpdateRoomStatus(s.ctx, created.ID, models.RoomStatusPaused)
	s.Require().NoError(err)
	again, err := s.manager.UpdateRoomStatus(s.ctx, created.ID, models.RoomStatusPlaying)
	s.Require().NoError(err)
	s.Require().NotNil(again.StartedAt)
	s.Equal(firstStart.Unix(), again.StartedAt.Unix())
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}

// TestGenerateCode 房间码字符类与长度
func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		assert.NoError(t, err)
		assert.Len(t, code, CodeLength)
		assert.True(t, IsCode(code))
		seen[code] = true
	}
	// 100次生成不应全部碰撞
	assert.Greater(t, len(seen), 90)
}

// TestIsCode 房间码字符类判定
func TestIsCode(t *testing.T) {
	assert.True(t, IsCode("ABC234"))
	assert.False(t, IsCode("abc234"))  // 小写不在字符集内
	assert.False(t, IsCode("ABC23"))   // 长度不足
	assert.False(t, IsCode("ABC2340")) // 超长
	assert.False(t, IsCode("AB10IO"))  // 含易混淆字符
	assert.False(t, IsCode("123456"))  // 含1和0
}
