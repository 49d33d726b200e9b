package models

import (
	"time"
)

// 房间状态
const (
	RoomStatusWaiting  = "waiting"
	RoomStatusPlaying  = "playing"
	RoomStatusPaused   = "paused"
	RoomStatusFinished = "finished"
)

// 可选角色（固定集合，房间内不可重复）
const (
	CharacterTurtle = "turtle"
	CharacterCat    = "cat"
	CharacterRabbit = "rabbit"
)

// Characters 全部可选角色
var Characters = []string{CharacterTurtle, CharacterCat, CharacterRabbit}

// IsValidCharacter 检查角色是否合法
func IsValidCharacter(character string) bool {
	for _, c := range Characters {
		if c == character {
			return true
		}
	}
	return false
}

// Room 房间表
type Room struct {
	BaseModel
	Code           string     `gorm:"uniqueIndex;size:6;not null" json:"code"`
	Name           string     `gorm:"size:100" json:"name"`
	HostID         uint       `gorm:"not null;index" json:"host_id"`
	Password       string     `gorm:"size:255" json:"-"` // argon2id哈希，空串表示无密码
	MaxPlayers     int        `gorm:"default:3" json:"max_players"`
	CurrentPlayers int        `gorm:"default:0" json:"current_players"`
	Status         string     `gorm:"size:20;default:'waiting';index" json:"status"`
	StartedAt      *time.Time `json:"started_at,omitempty"`

	// 关联
	Members []RoomMembership `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
}

// RoomMembership 房间成员表
// (room, user) 与 (room, character) 均为唯一约束
type RoomMembership struct {
	BaseModel
	RoomID      uint      `gorm:"not null;uniqueIndex:idx_room_user;uniqueIndex:idx_room_character" json:"room_id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_room_user;index" json:"user_id"`
	Character   string    `gorm:"size:20;not null;uniqueIndex:idx_room_character" json:"character"`
	DisplayName string    `gorm:"size:100" json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`

	// 关联
	Room Room `gorm:"foreignKey:RoomID" json:"-"`
	User User `gorm:"foreignKey:UserID" json:"-"`
}

// GameSnapshot 游戏状态快照表（JSON列，按房间唯一）
type GameSnapshot struct {
	BaseModel
	RoomID    uint   `gorm:"uniqueIndex;not null" json:"room_id"`
	Status    string `gorm:"size:20;default:'waiting'" json:"status"` // waiting, playing, paused, completed, ended
	StateData string `gorm:"type:json" json:"state_data"`
	EventLog  string `gorm:"type:json" json:"event_log"`
}
