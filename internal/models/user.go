package models

import (
	"time"
)

// User 用户基础信息表
type User struct {
	BaseModel
	Username    string     `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Nickname    string     `gorm:"size:100" json:"nickname"`
	Email       string     `gorm:"uniqueIndex;size:100" json:"email"`
	Password    string     `gorm:"size:255;not null" json:"-"`
	Status      string     `gorm:"size:20;default:'active'" json:"status"` // active, frozen, banned
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP string     `gorm:"size:50" json:"last_login_ip"`
}
