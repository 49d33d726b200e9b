package repository

import (
	"context"
	"time"

	"github.com/wfunc/puzzle-party/internal/models"
	"gorm.io/gorm"
)

// RoomRepository 房间仓储接口
type RoomRepository interface {
	BaseRepository
	Create(ctx context.Context, room *models.Room) error
	Update(ctx context.Context, room *models.Room) error
	UpdateStatus(ctx context.Context, roomID uint, status string, startedAt *time.Time) error
	UpdateHost(ctx context.Context, roomID uint, hostID uint) error
	FindByID(ctx context.Context, id uint) (*models.Room, error)
	FindByCode(ctx context.Context, code string) (*models.Room, error)
	List(ctx context.Context, status string, p *Pagination) ([]*models.Room, error)
	Delete(ctx context.Context, roomID uint) error
	// RecountPlayers 以成员行数重算 current_players，返回最新值
	RecountPlayers(ctx context.Context, roomID uint) (int, error)
}

// roomRepo 房间仓储实现
type roomRepo struct {
	*BaseRepo
}

// NewRoomRepository 创建房间仓储
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 创建房间
func (r *roomRepo) Create(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

// Update 更新房间
func (r *roomRepo) Update(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Save(room).Error
}

// UpdateStatus 更新房间状态
func (r *roomRepo) UpdateStatus(ctx context.Context, roomID uint, status string, startedAt *time.Time) error {
	updates := map[string]interface{}{"status": status}
	if startedAt != nil {
		updates["started_at"] = startedAt
	}
	return r.db.WithContext(ctx).
		Model(&models.Room{}).
		Where("id = ?", roomID).
		Updates(updates).Error
}

// UpdateHost 转移房主
func (r *roomRepo) UpdateHost(ctx context.Context, roomID uint, hostID uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Room{}).
		Where("id = ?", roomID).
		Update("host_id", hostID).Error
}

// FindByID 根据ID查找
func (r *roomRepo) FindByID(ctx context.Context, id uint) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at asc")
		}).
		First(&room, id).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// FindByCode 根据房间码查找
func (r *roomRepo) FindByCode(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at asc")
		}).
		Where("code = ?", code).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// List 分页查询房间列表
func (r *roomRepo) List(ctx context.Context, status string, p *Pagination) ([]*models.Room, error) {
	var rooms []*models.Room

	query := r.db.WithContext(ctx).Model(&models.Room{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	// 查询总数
	query.Count(&p.Total)

	// 查询数据
	err := query.
		Order("created_at desc").
		Scopes(Paginate(p)).
		Find(&rooms).Error

	return rooms, err
}

// Delete 删除房间（级联删除成员）
func (r *roomRepo) Delete(ctx context.Context, roomID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).
			Unscoped().
			Delete(&models.RoomMembership{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", roomID).
			Unscoped().
			Delete(&models.GameSnapshot{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&models.Room{}, roomID).Error
	})
}

// RecountPlayers 以成员行数重算 current_players
// 不信任累加计数器，成员变更后一律重新推导
func (r *roomRepo) RecountPlayers(ctx context.Context, roomID uint) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.RoomMembership{}).
		Where("room_id = ?", roomID).
		Count(&count).Error; err != nil {
		return 0, err
	}

	if err := r.db.WithContext(ctx).
		Model(&models.Room{}).
		Where("id = ?", roomID).
		Update("current_players", int(count)).Error; err != nil {
		return 0, err
	}

	return int(count), nil
}

// WithTx 使用事务
func (r *roomRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &roomRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
