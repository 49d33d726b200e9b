package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/puzzle-party/internal/models"
)

// SetupTestDB 为测试套件设置内存数据库
func SetupTestDB() *gorm.DB {
	// 使用内存数据库进行测试（更快，不需要文件系统，在所有环境中都能工作）
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.RoomMembership{},
		&models.GameSnapshot{},
	)
	if err != nil {
		panic(err)
	}

	return db
}

// CleanupTestDB 清理测试数据库
func CleanupTestDB(db *gorm.DB) {
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// SeedTestUsers 创建测试用户
func SeedTestUsers(t *testing.T, db *gorm.DB) []models.User {
	users := []models.User{
		{Username: "player1", Nickname: "玩家一", Password: "x", Status: "active"},
		{Username: "player2", Nickname: "玩家二", Password: "x", Status: "active"},
		{Username: "player3", Nickname: "玩家三", Password: "x", Status: "active"},
	}
	require.NoError(t, db.Create(&users).Error)
	return users
}

// CreateTestRoom 创建测试房间
func CreateTestRoom(t *testing.T, db *gorm.DB, code string, hostID uint) *models.Room {
	room := &models.Room{
		Code:       code,
		Name:       "测试房间",
		HostID:     hostID,
		MaxPlayers: 3,
		Status:     models.RoomStatusWaiting,
	}
	require.NoError(t, db.Create(room).Error)
	return room
}

// CreateTestMembership 创建测试成员
func CreateTestMembership(t *testing.T, db *gorm.DB, roomID, userID uint, character string) *models.RoomMembership {
	membership := &models.RoomMembership{
		RoomID:    roomID,
		UserID:    userID,
		Character: character,
		JoinedAt:  time.Now(),
	}
	require.NoError(t, db.Create(membership).Error)
	return membership
}
