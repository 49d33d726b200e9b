package puzzle

// 玩家状态
const (
	PlayerStatusActive       = "active"
	PlayerStatusTrapped      = "trapped"
	PlayerStatusDisconnected = "disconnected"
	PlayerStatusDead         = "dead"
)

// 道具状态
const (
	ItemStatusNormal      = "normal"
	ItemStatusDamaged     = "damaged"
	ItemStatusUsed        = "used"
	ItemStatusDisappeared = "disappeared"
)

// PlayerState 玩家游戏内状态
type PlayerState struct {
	UserID          uint   `json:"user_id"`
	Character       string `json:"character"`
	HP              int    `json:"hp"`
	Status          string `json:"status"`
	TrappedLocation string `json:"trapped_location,omitempty"`
	CanAct          bool   `json:"can_act"`
}

// Item 道具
type Item struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	IsKey  bool   `json:"is_key"`
}

// GameState 共享游戏状态
// 仅由解谜引擎通过效果应用修改，外部不得直接写入
type GameState struct {
	Chapter          int                    `json:"chapter"`
	Phase            string                 `json:"phase"`
	MaxHP            int                    `json:"max_hp"`
	Players          []PlayerState          `json:"players"`
	Inventory        []Item                 `json:"inventory"`
	UnlockedAreas    []string               `json:"unlocked_areas"`
	CollectedLetters []string               `json:"collected_letters"`
	Flags            map[string]interface{} `json:"flags"`
	TriggeredEvents  []string               `json:"triggered_events"`
}

// NewGameState 创建初始游戏状态
func NewGameState(maxHP int, players []PlayerState) *GameState {
	for i := range players {
		players[i].HP = maxHP
		players[i].Status = PlayerStatusActive
		players[i].CanAct = true
	}
	return &GameState{
		Chapter:          1,
		Phase:            "opening",
		MaxHP:            maxHP,
		Players:          players,
		Inventory:        []Item{},
		UnlockedAreas:    []string{},
		CollectedLetters: []string{},
		Flags:            map[string]interface{}{},
		TriggeredEvents:  []string{},
	}
}

// Clone 深拷贝游戏状态
func (s *GameState) Clone() *GameState {
	clone := &GameState{
		Chapter:          s.Chapter,
		Phase:            s.Phase,
		MaxHP:            s.MaxHP,
		Players:          make([]PlayerState, len(s.Players)),
		Inventory:        make([]Item, len(s.Inventory)),
		UnlockedAreas:    make([]string, len(s.UnlockedAreas)),
		CollectedLetters: make([]string, len(s.CollectedLetters)),
		Flags:            make(map[string]interface{}, len(s.Flags)),
		TriggeredEvents:  make([]string, len(s.TriggeredEvents)),
	}
	copy(clone.Players, s.Players)
	copy(clone.Inventory, s.Inventory)
	copy(clone.UnlockedAreas, s.UnlockedAreas)
	copy(clone.CollectedLetters, s.CollectedLetters)
	copy(clone.TriggeredEvents, s.TriggeredEvents)
	for k, v := range s.Flags {
		clone.Flags[k] = v
	}
	return clone
}

// Player 按角色查找玩家
func (s *GameState) Player(character string) *PlayerState {
	for i := range s.Players {
		if s.Players[i].Character == character {
			return &s.Players[i]
		}
	}
	return nil
}

// PlayerByID 按用户ID查找玩家
func (s *GameState) PlayerByID(userID uint) *PlayerState {
	for i := range s.Players {
		if s.Players[i].UserID == userID {
			return &s.Players[i]
		}
	}
	return nil
}

// HasItem 检查背包是否持有道具（已消失的道具不计）
func (s *GameState) HasItem(itemID string) bool {
	for _, item := range s.Inventory {
		if item.ID == itemID && item.Status != ItemStatusDisappeared {
			return true
		}
	}
	return false
}

// ItemStatus 查询道具状态，不存在返回空串
func (s *GameState) ItemStatus(itemID string) string {
	for _, item := range s.Inventory {
		if item.ID == itemID {
			return item.Status
		}
	}
	return ""
}

// FlagEquals 检查标志值
func (s *GameState) FlagEquals(key string, value interface{}) bool {
	v, ok := s.Flags[key]
	if !ok {
		return value == nil || value == false
	}
	return v == value
}

// AreaUnlocked 检查区域是否已解锁
func (s *GameState) AreaUnlocked(areaID string) bool {
	for _, a := range s.UnlockedAreas {
		if a == areaID {
			return true
		}
	}
	return false
}

// HasLetter 检查信件是否已收集
func (s *GameState) HasLetter(letter string) bool {
	for _, l := range s.CollectedLetters {
		if l == letter {
			return true
		}
	}
	return false
}

// EventTriggered 检查一次性事件是否已触发
func (s *GameState) EventTriggered(eventID string) bool {
	for _, e := range s.TriggeredEvents {
		if e == eventID {
			return true
		}
	}
	return false
}

// ClampHP 将HP收敛到 [1, MaxHP]
// 合作解谜不存在直接致死，下限恒为1
func (s *GameState) ClampHP(hp int) int {
	if hp < 1 {
		return 1
	}
	if hp > s.MaxHP {
		return s.MaxHP
	}
	return hp
}

// Field 顶层状态字段标识
type Field string

// 顶层状态字段
const (
	FieldPhase    Field = "phase"
	FieldPlayers  Field = "players"
	FieldInventory Field = "inventory"
	FieldAreas    Field = "unlocked_areas"
	FieldLetters  Field = "collected_letters"
	FieldFlags    Field = "flags"
	FieldEvents   Field = "triggered_events"
)

// StateUpdate 部分状态更新
// 浅合并语义：出现的字段整体替换，nil字段不触碰
type StateUpdate struct {
	Chapter          *int                   `json:"chapter,omitempty"`
	Phase            *string                `json:"phase,omitempty"`
	Players          []PlayerState          `json:"players,omitempty"`
	Inventory        []Item                 `json:"inventory,omitempty"`
	UnlockedAreas    []string               `json:"unlocked_areas,omitempty"`
	CollectedLetters []string               `json:"collected_letters,omitempty"`
	Flags            map[string]interface{} `json:"flags,omitempty"`
	TriggeredEvents  []string               `json:"triggered_events,omitempty"`
}

// Apply 应用部分更新
// 整字段替换，绝不深合并嵌套结构
func (s *GameState) Apply(u *StateUpdate) {
	if u == nil {
		return
	}
	if u.Chapter != nil {
		s.Chapter = *u.Chapter
	}
	if u.Phase != nil {
		s.Phase = *u.Phase
	}
	if u.Players != nil {
		s.Players = u.Players
	}
	if u.Inventory != nil {
		s.Inventory = u.Inventory
	}
	if u.UnlockedAreas != nil {
		s.UnlockedAreas = u.UnlockedAreas
	}
	if u.CollectedLetters != nil {
		s.CollectedLetters = u.CollectedLetters
	}
	if u.Flags != nil {
		s.Flags = u.Flags
	}
	if u.TriggeredEvents != nil {
		s.TriggeredEvents = u.TriggeredEvents
	}
}
