package puzzle

// Effect 状态效果
// 封闭的变体集合：每种效果在状态副本上执行变更，
// 并报告其触及的顶层字段，供引擎构造整字段替换更新
type Effect interface {
	// Kind 效果类型标识，用于日志与动作结果
	Kind() string
	// Apply 在状态副本上执行变更，返回触及的顶层字段
	Apply(state *GameState) []Field
}

// ObtainItem 获得道具
type ObtainItem struct {
	Item Item
}

func (e ObtainItem) Kind() string { return "obtain_item" }

func (e ObtainItem) Apply(state *GameState) []Field {
	item := e.Item
	if item.Status == "" {
		item.Status = ItemStatusNormal
	}
	// 重复获得同一道具时恢复其状态而不追加
	for i := range state.Inventory {
		if state.Inventory[i].ID == item.ID {
			state.Inventory[i] = item
			return []Field{FieldInventory}
		}
	}
	state.Inventory = append(state.Inventory, item)
	return []Field{FieldInventory}
}

// RemoveItem 移除道具（标记为消失，保留痕迹）
type RemoveItem struct {
	ItemID string
}

func (e RemoveItem) Kind() string { return "remove_item" }

func (e RemoveItem) Apply(state *GameState) []Field {
	for i := range state.Inventory {
		if state.Inventory[i].ID == e.ItemID {
			state.Inventory[i].Status = ItemStatusDisappeared
		}
	}
	return []Field{FieldInventory}
}

// SetItemStatus 设置道具状态
type SetItemStatus struct {
	ItemID string
	Status string
}

func (e SetItemStatus) Kind() string { return "set_item_status" }

func (e SetItemStatus) Apply(state *GameState) []Field {
	for i := range state.Inventory {
		if state.Inventory[i].ID == e.ItemID {
			state.Inventory[i].Status = e.Status
		}
	}
	return []Field{FieldInventory}
}

// SetFlag 设置剧情标志
type SetFlag struct {
	Key   string
	Value interface{}
}

func (e SetFlag) Kind() string { return "set_flag" }

func (e SetFlag) Apply(state *GameState) []Field {
	state.Flags[e.Key] = e.Value
	return []Field{FieldFlags}
}

// UnlockArea 解锁区域
type UnlockArea struct {
	AreaID string
}

func (e UnlockArea) Kind() string { return "unlock_area" }

func (e UnlockArea) Apply(state *GameState) []Field {
	if state.AreaUnlocked(e.AreaID) {
		return nil
	}
	state.UnlockedAreas = append(state.UnlockedAreas, e.AreaID)
	return []Field{FieldAreas}
}

// CollectLetter 收集信件
type CollectLetter struct {
	Letter string
}

func (e CollectLetter) Kind() string { return "collect_letter" }

func (e CollectLetter) Apply(state *GameState) []Field {
	if state.HasLetter(e.Letter) {
		return nil
	}
	state.CollectedLetters = append(state.CollectedLetters, e.Letter)
	return []Field{FieldLetters}
}

// UpdatePlayer 更新玩家状态
// 仅修改非零字段，CanAct 用指针区分"未设置"与"设为false"
type UpdatePlayer struct {
	Character       string
	Status          string
	TrappedLocation *string
	CanAct          *bool
}

func (e UpdatePlayer) Kind() string { return "update_player" }

func (e UpdatePlayer) Apply(state *GameState) []Field {
	p := state.Player(e.Character)
	if p == nil {
		return nil
	}
	if e.Status != "" {
		p.Status = e.Status
	}
	if e.TrappedLocation != nil {
		p.TrappedLocation = *e.TrappedLocation
	}
	if e.CanAct != nil {
		p.CanAct = *e.CanAct
	}
	return []Field{FieldPlayers}
}

// AdvancePhase 推进章节阶段
type AdvancePhase struct {
	Phase string
}

func (e AdvancePhase) Kind() string { return "advance_phase" }

func (e AdvancePhase) Apply(state *GameState) []Field {
	state.Phase = e.Phase
	return []Field{FieldPhase}
}

// Custom 自定义效果，用于内置表无法表达的剧情分支
type Custom struct {
	Name string
	Fn   func(state *GameState) []Field
}

func (e Custom) Kind() string { return e.Name }

func (e Custom) Apply(state *GameState) []Field {
	if e.Fn == nil {
		return nil
	}
	return e.Fn(state)
}
