package room

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wfunc/puzzle-party/internal/cache"
	apperrors "github.com/wfunc/puzzle-party/internal/errors"
	"github.com/wfunc/puzzle-party/internal/logger"
	"github.com/wfunc/puzzle-party/internal/models"
	"github.com/wfunc/puzzle-party/internal/repository"
	"github.com/wfunc/puzzle-party/internal/utils"
)

// 缓存键
func viewKey(roomID uint) string {
	return fmt.Sprintf("room:view:%d", roomID)
}

func listKey(status string, page, pageSize int) string {
	return fmt.Sprintf("room:list:%s:%d:%d", status, page, pageSize)
}

const listPattern = "room:list:*"

// Options 房间管理器参数
type Options struct {
	MaxPlayers   int
	CodeAttempts int
	DetailTTL    time.Duration
	ListTTL      time.Duration
}

// Manager 房间生命周期管理器
// 所有写操作为单个数据库事务，提交后尽力刷新缓存
type Manager struct {
	db    *gorm.DB
	cache cache.Cache
	opts  Options
	log   *zap.Logger
}

// NewManager 创建房间管理器
func NewManager(db *gorm.DB, c cache.Cache, opts Options) *Manager {
	return &Manager{
		db:    db,
		cache: c,
		opts:  opts,
		log:   logger.GetModuleLogger("room"),
	}
}

// CreateInput 建房参数
type CreateInput struct {
	HostID      uint
	Name        string
	Password    string
	MaxPlayers  int
	Character   string
	DisplayName string
}

// CreateRoom 创建房间并把房主作为首位成员写入
func (m *Manager) CreateRoom(ctx context.Context, input CreateInput) (*View, error) {
	if !models.IsValidCharacter(input.Character) {
		return nil, apperrors.New(apperrors.ErrInvalidCharacter, "无效的角色: "+input.Character)
	}
	maxPlayers := input.MaxPlayers
	if maxPlayers <= 0 || maxPlayers > m.opts.MaxPlayers {
		maxPlayers = m.opts.MaxPlayers
	}

	memberships := repository.NewMembershipRepository(m.db)
	if existing, err := memberships.FindByUser(ctx, input.HostID); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询成员记录失败")
	} else if existing != nil {
		return nil, apperrors.New(apperrors.ErrAlreadyInRoom, "玩家已在其他房间中")
	}

	passwordHash := ""
	if input.Password != "" {
		hash, err := utils.HashPassword(input.Password)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrUnknown, "房间密码哈希失败")
		}
		passwordHash = hash
	}

	var view *View
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rooms := repository.NewRoomRepository(tx)
		txMemberships := repository.NewMembershipRepository(tx)

		code, err := m.reserveCode(ctx, tx)
		if err != nil {
			return err
		}

		newRoom := &models.Room{
			Code:       code,
			Name:       input.Name,
			HostID:     input.HostID,
			Password:   passwordHash,
			MaxPlayers: maxPlayers,
			Status:     models.RoomStatusWaiting,
		}
		if err := rooms.Create(ctx, newRoom); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, "创建房间失败")
		}

		if err := txMemberships.Create(ctx, &models.RoomMembership{
			RoomID:      newRoom.ID,
			UserID:      input.HostID,
			Character:   input.Character,
			DisplayName: input.DisplayName,
			JoinedAt:    time.Now(),
		}); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, "写入房主成员失败")
		}

		if _, err := rooms.RecountPlayers(ctx, newRoom.ID); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate, "重算房间人数失败")
		}

		// 事务内重读，拿到含成员的完整视图
		full, err := rooms.FindByID(ctx, newRoom.ID)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "读取房间失败")
		}
		view = buildView(full)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.refreshViewCache(ctx, view)
	m.invalidateListCache(ctx)

	logger.LogRoomEvent("room_created", view.ID, input.HostID, map[string]interface{}{
		"code":        view.Code,
		"max_players": view.MaxPlayers,
	})
	return view, nil
}

// reserveCode 生成未被占用的房间码，有限重试
func (m *Manager) reserveCode(ctx context.Context, tx *gorm.DB) (string, error) {
	for attempt := 0; attempt < m.opts.CodeAttempts; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrUnknown, "生成房间码失败")
		}

		var count int64
		if err := tx.WithContext(ctx).
			Model(&models.Room{}).
			Where("code = ?", code).
			Count(&count).Error; err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "检查房间码冲突失败")
		}
		if count == 0 {
			return code, nil
		}
		m.log.Warn("房间码冲突，重新生成", zap.String("code", code), zap.Int("attempt", attempt+1))
	}
	return "", apperrors.New(apperrors.ErrCodeGenerationExhausted, "房间码生成失败")
}

// JoinInput 入房参数
type JoinInput struct {
	// Identifier 房间码或房间ID，符合房间码字符类时优先按码解析
	Identifier  string
	UserID      uint
	Character   string
	DisplayName string
	Password    string
}

// JoinRoom 加入房间
// 幂等：同一用户重复加入同一房间返回当前视图而非报错
func (m *Manager) JoinRoom(ctx context.Context, input JoinInput) (*View, bool, error) {
	var (
		view          *View
		alreadyMember bool
	)
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rooms := repository.NewRoomRepository(tx)
		memberships := repository.NewMembershipRepository(tx)

		target, err := resolveRoom(ctx, rooms, input.Identifier)
		if err != nil {
			return err
		}

		// 幂等重入
		if _, err := memberships.FindByRoomAndUser(ctx, target.ID, input.UserID); err == nil {
			alreadyMember = true
			view = buildView(target)
			return nil
		} else if err != gorm.ErrRecordNotFound {
			return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询成员记录失败")
		}

		if other, err := memberships.FindByUser(ctx, input.UserID); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询成员记录失败")
		} else if other != nil {
			return apperrors.New(apperrors.ErrAlreadyInRoom, "玩家已在其他房间中")
		}

		if target.Status != models.RoomStatusWaiting {
			return apperrors.New(apperrors.ErrRoomNotJoinable, "房间当前不可加入")
		}

		if target.Password != "" {
			ok, err := utils.VerifyPassword(input.Password, target.Password)
			if err != nil || !ok {
				return apperrors.New(apperrors.ErrRoomPassword, "房间密码错误")
			}
		}

		count, err := memberships.CountByRoom(ctx, target.ID)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "统计房间人数失败")
		}
		if int(count) >= target.MaxPlayers {
			return apperrors.New(apperrors.ErrRoomFull, "房间人数已满")
		}

		if !models.IsValidCharacter(input.Character) {
			return apperrors.New(apperrors.ErrInvalidCharacter, "无效的角色: "+input.Character)
		}
		taken, err := memberships.CharacterTaken(ctx, target.ID, input.Character)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "检查角色占用失败")
		}
		if taken {
			return apperrors.New(apperrors.ErrCharacterTaken, "角色已被其他玩家选择")
		}

		if err := memberships.Create(ctx, &models.RoomMembership{
			RoomID:      target.ID,
			UserID:      input.UserID,
			Character:   input.Character,
			DisplayName: input.DisplayName,
			JoinedAt:    time.Now(),
		}); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, "写入成员记录失败")
		}

		if _, err := rooms.RecountPlayers(ctx, target.ID); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate, "重算房间人数失败")
		}

		full, err := rooms.FindByID(ctx, target.ID)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "读取房间失败")
		}
		view = buildView(full)
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if !alreadyMember {
		m.refreshViewCache(ctx, view)
		m.invalidateListCache(ctx)
		logger.LogRoomEvent("player_joined", view.ID, input.UserID, map[string]interface{}{
			"character": input.Character,
		})
	}
	return view, alreadyMember, nil
}

// resolveRoom 解析房间标识符：先按码、后按ID
func resolveRoom(ctx context.Context, rooms repository.RoomRepository, identifier string) (*models.Room, error) {
	if IsCode(identifier) {
		target, err := rooms.FindByCode(ctx, identifier)
		if err == nil {
			return target, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询房间失败")
		}
	}

	id, err := strconv.ParseUint(identifier, 10, 32)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrRoomNotFound, "房间不存在: "+identifier)
	}
	target, err := rooms.FindByID(ctx, uint(id))
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.New(apperrors.ErrRoomNotFound, "房间不存在: "+identifier)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询房间失败")
	}
	return target, nil
}

// LeaveResult 离房结果
type LeaveResult struct {
	RoomID      uint
	RoomDeleted bool
	HostChanged bool
	NewHostID   uint
	// View 离房后的房间视图，房间被删除时为nil
	View *View
}

// LeaveRoom 离开房间
// 房主离开时转移给最早加入的剩余成员；最后一人离开时删除房间
func (m *Manager) LeaveRoom(ctx context.Context, roomID, userID uint) (*LeaveResult, error) {
	result := &LeaveResult{RoomID: roomID}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rooms := repository.NewRoomRepository(tx)
		memberships := repository.NewMembershipRepository(tx)

		target, err := rooms.FindByID(ctx, roomID)
		if err == gorm.ErrRecordNotFound {
			return apperrors.New(apperrors.ErrRoomNotFound, "房间不存在")
		}
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询房间失败")
		}

		rows, err := memberships.Delete(ctx, roomID, userID)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseDelete, "删除成员记录失败")
		}
		if rows == 0 {
			return apperrors.New(apperrors.ErrNotInRoom, "玩家不在该房间中")
		}

		count, err := rooms.RecountPlayers(ctx, roomID)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate, "重算房间人数失败")
		}

		if count == 0 {
			if err := rooms.Delete(ctx, roomID); err != nil {
				return apperrors.Wrap(err, apperrors.ErrDatabaseDelete, "删除空房间失败")
			}
			result.RoomDeleted = true
			return nil
		}

		if target.HostID == userID {
			remaining, err := memberships.FindByRoom(ctx, roomID)
			if err != nil {
				return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询剩余成员失败")
			}
			newHost := remaining[0].UserID
			if err := rooms.UpdateHost(ctx, roomID, newHost); err != nil {
				return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate, "转移房主失败")
			}
			result.HostChanged = true
			result.NewHostID = newHost
		}

		full, err := rooms.FindByID(ctx, roomID)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "读取房间失败")
		}
		view := buildView(full)
		result.View = view
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.RoomDeleted {
		m.purgeRoomCache(ctx, roomID)
	} else {
		m.refreshViewCache(ctx, result.View)
	}
	m.invalidateListCache(ctx)

	logger.LogRoomEvent("player_left", roomID, userID, map[string]interface{}{
		"room_deleted": result.RoomDeleted,
		"host_changed": result.HostChanged,
	})
	return result, nil
}

// GetRoomDetails 读取房间视图，缓存优先
func (m *Manager) GetRoomDetails(ctx context.Context, roomID uint) (*View, error) {
	var cached View
	if err := cache.GetJSON(ctx, m.cache, viewKey(roomID), &cached); err == nil {
		return &cached, nil
	} else if err != cache.ErrCacheMiss {
		m.log.Warn("读取房间缓存失败", zap.Uint("room_id", roomID), zap.Error(err))
	}

	rooms := repository.NewRoomRepository(m.db)
	target, err := rooms.FindByID(ctx, roomID)
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.New(apperrors.ErrRoomNotFound, "房间不存在")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询房间失败")
	}

	view := buildView(target)
	m.refreshViewCache(ctx, view)
	return view, nil
}

// GetRoomByCode 按房间码读取房间视图
func (m *Manager) GetRoomByCode(ctx context.Context, code string) (*View, error) {
	rooms := repository.NewRoomRepository(m.db)
	target, err := rooms.FindByCode(ctx, code)
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.New(apperrors.ErrRoomNotFound, "房间不存在: "+code)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询房间失败")
	}

	view := buildView(target)
	m.refreshViewCache(ctx, view)
	return view, nil
}

// GetCurrentRoom 查询用户当前所在房间，不在任何房间返回nil
func (m *Manager) GetCurrentRoom(ctx context.Context, userID uint) (*View, error) {
	memberships := repository.NewMembershipRepository(m.db)
	membership, err := memberships.FindByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询成员记录失败")
	}
	if membership == nil {
		return nil, nil
	}
	return m.GetRoomDetails(ctx, membership.RoomID)
}

// GetRoomList 分页房间列表，按 (状态,页码,页宽) 缓存
func (m *Manager) GetRoomList(ctx context.Context, status string, page, pageSize int) (*ListPage, error) {
	key := listKey(status, page, pageSize)

	var cached ListPage
	if err := cache.GetJSON(ctx, m.cache, key, &cached); err == nil {
		return &cached, nil
	} else if err != cache.ErrCacheMiss {
		m.log.Warn("读取列表缓存失败", zap.String("key", key), zap.Error(err))
	}

	p := repository.NewPagination(page, pageSize)
	rooms := repository.NewRoomRepository(m.db)
	records, err := rooms.List(ctx, status, p)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询房间列表失败")
	}

	result := &ListPage{
		Items:    make([]ListItem, 0, len(records)),
		Total:    p.Total,
		Page:     p.Page,
		PageSize: p.PageSize,
	}
	for _, record := range records {
		result.Items = append(result.Items, buildListItem(record))
	}

	if err := cache.SetJSON(ctx, m.cache, key, result, m.opts.ListTTL); err != nil {
		m.log.Warn("写入列表缓存失败", zap.String("key", key), zap.Error(err))
	}
	return result, nil
}

// UpdateRoomStatus 更新房间状态，进入playing时打一次开始时间戳
func (m *Manager) UpdateRoomStatus(ctx context.Context, roomID uint, status string) (*View, error) {
	var view *View
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rooms := repository.NewRoomRepository(tx)

		target, err := rooms.FindByID(ctx, roomID)
		if err == gorm.ErrRecordNotFound {
			return apperrors.New(apperrors.ErrRoomNotFound, "房间不存在")
		}
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询房间失败")
		}

		var startedAt *time.Time
		if status == models.RoomStatusPlaying && target.StartedAt == nil {
			now := time.Now()
			startedAt = &now
		}
		if err := rooms.UpdateStatus(ctx, roomID, status, startedAt); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate, "更新房间状态失败")
		}

		full, err := rooms.FindByID(ctx, roomID)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "读取房间失败")
		}
		view = buildView(full)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.refreshViewCache(ctx, view)
	m.invalidateListCache(ctx)
	return view, nil
}

// refreshViewCache 提交后刷新房间视图缓存，失败仅记日志
func (m *Manager) refreshViewCache(ctx context.Context, view *View) {
	if err := cache.SetJSON(ctx, m.cache, viewKey(view.ID), view, m.opts.DetailTTL); err != nil {
		m.log.Warn("刷新房间缓存失败", zap.Uint("room_id", view.ID), zap.Error(err))
	}
}

// purgeRoomCache 房间删除后清除其视图缓存
func (m *Manager) purgeRoomCache(ctx context.Context, roomID uint) {
	if err := m.cache.Delete(ctx, viewKey(roomID)); err != nil {
		m.log.Warn("清除房间缓存失败", zap.Uint("room_id", roomID), zap.Error(err))
	}
}

// invalidateListCache 成员或状态变更后作废所有列表页
func (m *Manager) invalidateListCache(ctx context.Context) {
	if err := m.cache.DeletePattern(ctx, listPattern); err != nil {
		m.log.Warn("作废列表缓存失败", zap.Error(err))
	}
}
