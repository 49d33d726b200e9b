package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/wfunc/puzzle-party/internal/models"
	"gorm.io/gorm"
)

// UserRepository 用户仓储接口
type UserRepository interface {
	BaseRepository
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, userID uint, ip string) error
}

// userRepo 用户仓储实现
type userRepo struct {
	*BaseRepo
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 创建用户
func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// FindByID 根据ID查找
func (r *userRepo) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("用户不存在: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByUsername 根据用户名查找
func (r *userRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		First(&user).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("用户不存在: %s", username)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin 更新最后登录信息
func (r *userRepo) UpdateLastLogin(ctx context.Context, userID uint, ip string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_login_at": &now,
			"last_login_ip": ip,
		}).Error
}

// WithTx 使用事务
func (r *userRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &userRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
