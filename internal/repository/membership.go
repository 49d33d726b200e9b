package repository

import (
	"context"

	"github.com/wfunc/puzzle-party/internal/models"
	"gorm.io/gorm"
)

// MembershipRepository 房间成员仓储接口
type MembershipRepository interface {
	BaseRepository
	Create(ctx context.Context, membership *models.RoomMembership) error
	Delete(ctx context.Context, roomID, userID uint) (int64, error)
	FindByRoomAndUser(ctx context.Context, roomID, userID uint) (*models.RoomMembership, error)
	FindByRoom(ctx context.Context, roomID uint) ([]*models.RoomMembership, error)
	FindByUser(ctx context.Context, userID uint) (*models.RoomMembership, error)
	CountByRoom(ctx context.Context, roomID uint) (int64, error)
	CharacterTaken(ctx context.Context, roomID uint, character string) (bool, error)
}

// membershipRepo 房间成员仓储实现
type membershipRepo struct {
	*BaseRepo
}

// NewMembershipRepository 创建房间成员仓储
func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 创建成员记录
func (r *membershipRepo) Create(ctx context.Context, membership *models.RoomMembership) error {
	return r.db.WithContext(ctx).Create(membership).Error
}

// Delete 删除成员记录，返回删除行数
func (r *membershipRepo) Delete(ctx context.Context, roomID, userID uint) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Unscoped().
		Delete(&models.RoomMembership{})
	return result.RowsAffected, result.Error
}

// FindByRoomAndUser 查找指定房间中的成员
func (r *membershipRepo) FindByRoomAndUser(ctx context.Context, roomID, userID uint) (*models.RoomMembership, error) {
	var membership models.RoomMembership
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// FindByRoom 查找房间全部成员（按加入时间排序）
func (r *membershipRepo) FindByRoom(ctx context.Context, roomID uint) ([]*models.RoomMembership, error) {
	var memberships []*models.RoomMembership
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at asc").
		Find(&memberships).Error
	return memberships, err
}

// FindByUser 查找用户当前所在房间的成员记录
func (r *membershipRepo) FindByUser(ctx context.Context, userID uint) (*models.RoomMembership, error) {
	var membership models.RoomMembership
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("joined_at desc").
		First(&membership).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// CountByRoom 统计房间成员数
func (r *membershipRepo) CountByRoom(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RoomMembership{}).
		Where("room_id = ?", roomID).
		Count(&count).Error
	return count, err
}

// CharacterTaken 检查角色在房间内是否已被占用
func (r *membershipRepo) CharacterTaken(ctx context.Context, roomID uint, character string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RoomMembership{}).
		Where("room_id = ? AND character = ?", roomID, character).
		Count(&count).Error
	return count > 0, err
}

// WithTx 使用事务
func (r *membershipRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &membershipRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
