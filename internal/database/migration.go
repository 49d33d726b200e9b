package database

import (
	"fmt"

	"github.com/wfunc/puzzle-party/internal/logger"
	"github.com/wfunc/puzzle-party/internal/models"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	// 迁移顺序：先基础表，再有外键依赖的表
	tables := []interface{}{
		&models.User{},
		&models.Room{},
		&models.RoomMembership{},
		&models.GameSnapshot{},
	}

	for _, table := range tables {
		if err := DB.AutoMigrate(table); err != nil {
			return fmt.Errorf("迁移表失败 %T: %w", table, err)
		}
	}

	logger.Info("数据库表迁移完成")
	return nil
}
