package repository

import (
	"context"

	"github.com/wfunc/puzzle-party/internal/models"
	"gorm.io/gorm"
)

// SnapshotRepository 游戏快照仓储接口
type SnapshotRepository interface {
	BaseRepository
	// Upsert 按房间保存快照（存在则更新）
	Upsert(ctx context.Context, snapshot *models.GameSnapshot) error
	FindByRoom(ctx context.Context, roomID uint) (*models.GameSnapshot, error)
	DeleteByRoom(ctx context.Context, roomID uint) error
}

// snapshotRepo 游戏快照仓储实现
type snapshotRepo struct {
	*BaseRepo
}

// NewSnapshotRepository 创建游戏快照仓储
func NewSnapshotRepository(db *gorm.DB) SnapshotRepository {
	return &snapshotRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Upsert 按房间保存快照
func (r *snapshotRepo) Upsert(ctx context.Context, snapshot *models.GameSnapshot) error {
	var existing models.GameSnapshot
	err := r.db.WithContext(ctx).
		Where("room_id = ?", snapshot.RoomID).
		First(&existing).Error

	if err == gorm.ErrRecordNotFound {
		return r.db.WithContext(ctx).Create(snapshot).Error
	}
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Model(&models.GameSnapshot{}).
		Where("room_id = ?", snapshot.RoomID).
		Updates(map[string]interface{}{
			"status":     snapshot.Status,
			"state_data": snapshot.StateData,
			"event_log":  snapshot.EventLog,
		}).Error
}

// FindByRoom 查找房间快照
func (r *snapshotRepo) FindByRoom(ctx context.Context, roomID uint) (*models.GameSnapshot, error) {
	var snapshot models.GameSnapshot
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// DeleteByRoom 删除房间快照
func (r *snapshotRepo) DeleteByRoom(ctx context.Context, roomID uint) error {
	return r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Unscoped().
		Delete(&models.GameSnapshot{}).Error
}

// WithTx 使用事务
func (r *snapshotRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &snapshotRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
