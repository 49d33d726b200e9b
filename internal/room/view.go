package room

import (
	"time"

	"github.com/wfunc/puzzle-party/internal/models"
)

// MemberView 成员视图
type MemberView struct {
	UserID      uint      `json:"user_id"`
	Character   string    `json:"character"`
	DisplayName string    `json:"display_name"`
	IsHost      bool      `json:"is_host"`
	JoinedAt    time.Time `json:"joined_at"`
}

// View 房间完整视图
type View struct {
	ID             uint         `json:"id"`
	Code           string       `json:"code"`
	Name           string       `json:"name"`
	HostID         uint         `json:"host_id"`
	MaxPlayers     int          `json:"max_players"`
	CurrentPlayers int          `json:"current_players"`
	Status         string       `json:"status"`
	HasPassword    bool         `json:"has_password"`
	CreatedAt      time.Time    `json:"created_at"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	Members        []MemberView `json:"members"`
}

// ListItem 房间列表项
type ListItem struct {
	ID             uint      `json:"id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	HostID         uint      `json:"host_id"`
	MaxPlayers     int       `json:"max_players"`
	CurrentPlayers int       `json:"current_players"`
	Status         string    `json:"status"`
	HasPassword    bool      `json:"has_password"`
	CreatedAt      time.Time `json:"created_at"`
}

// ListPage 房间列表分页结果
type ListPage struct {
	Items    []ListItem `json:"items"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

// buildView 从模型构造房间视图（成员按加入时间有序）
func buildView(room *models.Room) *View {
	view := &View{
		ID:             room.ID,
		Code:           room.Code,
		Name:           room.Name,
		HostID:         room.HostID,
		MaxPlayers:     room.MaxPlayers,
		CurrentPlayers: room.CurrentPlayers,
		Status:         room.Status,
		HasPassword:    room.Password != "",
		CreatedAt:      room.CreatedAt,
		StartedAt:      room.StartedAt,
		Members:        make([]MemberView, 0, len(room.Members)),
	}
	for _, m := range room.Members {
		view.Members = append(view.Members, MemberView{
			UserID:      m.UserID,
			Character:   m.Character,
			DisplayName: m.DisplayName,
			IsHost:      m.UserID == room.HostID,
			JoinedAt:    m.JoinedAt,
		})
	}
	return view
}

// buildListItem 从模型构造列表项
func buildListItem(room *models.Room) ListItem {
	return ListItem{
		ID:             room.ID,
		Code:           room.Code,
		Name:           room.Name,
		HostID:         room.HostID,
		MaxPlayers:     room.MaxPlayers,
		CurrentPlayers: room.CurrentPlayers,
		Status:         room.Status,
		HasPassword:    room.Password != "",
		CreatedAt:      room.CreatedAt,
	}
}
