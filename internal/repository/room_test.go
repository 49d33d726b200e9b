package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wfunc/puzzle-party/internal/models"
)

func TestRoomRepository_CreateAndFind(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	users := SeedTestUsers(t, db)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	room := CreateTestRoom(t, db, "ABC234", users[0].ID)

	found, err := repo.FindByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "ABC234", found.Code)
	assert.Equal(t, users[0].ID, found.HostID)
	assert.Equal(t, models.RoomStatusWaiting, found.Status)

	byCode, err := repo.FindByCode(ctx, "ABC234")
	require.NoError(t, err)
	assert.Equal(t, room.ID, byCode.ID)
}

func TestRoomRepository_FindByCodeNotFound(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	repo := NewRoomRepository(db)

	_, err := repo.FindByCode(context.Background(), "ZZZZZZ")
	assert.Equal(t, gorm.ErrRecordNotFound, err)
}

func TestRoomRepository_CodeUnique(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	users := SeedTestUsers(t, db)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	CreateTestRoom(t, db, "ABC234", users[0].ID)

	dup := &models.Room{Code: "ABC234", HostID: users[1].ID, MaxPlayers: 3, Status: models.RoomStatusWaiting}
	err := repo.Create(ctx, dup)
	assert.Error(t, err)
}

func TestRoomRepository_UpdateStatus(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	users := SeedTestUsers(t, db)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	room := CreateTestRoom(t, db, "ABC234", users[0].ID)

	now := time.Now()
	require.NoError(t, repo.UpdateStatus(ctx, room.ID, models.RoomStatusPlaying, &now))

	found, err := repo.FindByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusPlaying, found.Status)
	require.NotNil(t, found.StartedAt)

	// 不带时间戳的状态更新不覆盖 started_at
	require.NoError(t, repo.UpdateStatus(ctx, room.ID, models.RoomStatusFinished, nil))
	found, err = repo.FindByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusFinished, found.Status)
	assert.NotNil(t, found.StartedAt)
}

func TestRoomRepository_UpdateHost(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	users := SeedTestUsers(t, db)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	room := CreateTestRoom(t, db, "ABC234", users[0].ID)
	require.NoError(t, repo.UpdateHost(ctx, room.ID, users[1].ID))

	found, err := repo.FindByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, users[1].ID, found.HostID)
}

func TestRoomRepository_RecountPlayers(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	users := SeedTestUsers(t, db)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	room := CreateTestRoom(t, db, "ABC234", users[0].ID)
	CreateTestMembership(t, db, room.ID, users[0].ID, models.CharacterTurtle)
	CreateTestMembership(t, db, room.ID, users[1].ID, models.CharacterCat)

	count, err := repo.RecountPlayers(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	found, err := repo.FindByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, found.CurrentPlayers)
}

func TestRoomRepository_List(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	users := SeedTestUsers(t, db)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	CreateTestRoom(t, db, "AAA234", users[0].ID)
	CreateTestRoom(t, db, "BBB234", users[1].ID)
	playing := CreateTestRoom(t, db, "CCC234", users[2].ID)
	require.NoError(t, repo.UpdateStatus(ctx, playing.ID, models.RoomStatusPlaying, nil))

	p := NewPagination(1, 10)
	rooms, err := repo.List(ctx, models.RoomStatusWaiting, p)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)
	assert.Equal(t, int64(2), p.Total)

	p = NewPagination(1, 10)
	all, err := repo.List(ctx, "", p)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, int64(3), p.Total)
}

func TestRoomRepository_DeleteCascades(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	users := SeedTestUsers(t, db)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	room := CreateTestRoom(t, db, "ABC234", users[0].ID)
	CreateTestMembership(t, db, room.ID, users[0].ID, models.CharacterTurtle)
	require.NoError(t, db.Create(&models.GameSnapshot{
		RoomID:    room.ID,
		Status:    "playing",
		StateData: "{}",
		EventLog:  "[]",
	}).Error)

	require.NoError(t, repo.Delete(ctx, room.ID))

	var roomCount, memberCount, snapshotCount int64
	db.Model(&models.Room{}).Count(&roomCount)
	db.Model(&models.RoomMembership{}).Count(&memberCount)
	db.Model(&models.GameSnapshot{}).Count(&snapshotCount)
	assert.Zero(t, roomCount)
	assert.Zero(t, memberCount)
	assert.Zero(t, snapshotCount)
}
