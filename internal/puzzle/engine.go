package puzzle

import (
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/wfunc/puzzle-party/internal/errors"
	"github.com/wfunc/puzzle-party/internal/logger"
)

// ActionInput 玩家动作输入
type ActionInput struct {
	UserID     uint   `json:"user_id"`
	ActionType string `json:"action_type"`
	TargetA    string `json:"target_a"`
	TargetB    string `json:"target_b"`
	RawInput   string `json:"raw_input,omitempty"`
}

// HPChange 单个玩家的HP变化
type HPChange struct {
	UserID    uint   `json:"user_id"`
	Character string `json:"character"`
	Delta     int    `json:"delta"`
	NewHP     int    `json:"new_hp"`
}

// ActionResult 动作处理结果
type ActionResult struct {
	Success      bool       `json:"success"`
	Message      string     `json:"message"`
	RuleID       string     `json:"rule_id,omitempty"`
	KeyAction    bool       `json:"key_action"`
	Effects      []string   `json:"effects,omitempty"`
	HPChanges    []HPChange `json:"hp_changes,omitempty"`
	StateChanged bool       `json:"state_changed"`

	// Update 本次动作产生的整字段替换更新，供广播同步
	Update *StateUpdate `json:"update,omitempty"`
}

// 无规则命中时的默认提示
const defaultMissMessage = "似乎什么都没有发生……换个组合试试？"

// Engine 解谜引擎
// 无内部状态，规则表驱动，对给定会话解析动作
type Engine struct {
	rules *RuleTable
	log   *zap.Logger
}

// NewEngine 创建解谜引擎
func NewEngine(rules *RuleTable) *Engine {
	return &Engine{
		rules: rules,
		log:   logger.GetModuleLogger("puzzle"),
	}
}

// Resolve 解析玩家动作
// 流程：定位行动者 → 查找规则变体（主体对或触发短语）→ 一次性检查 →
// 按前置条件选择变体 → 应用效果与HP → 构造整字段更新 → 记录事件
func (e *Engine) Resolve(session *Session, input ActionInput) (*ActionResult, error) {
	state := session.State
	actor := state.PlayerByID(input.UserID)
	if actor == nil {
		return nil, apperrors.New(apperrors.ErrSessionNotFound, "行动者不在本局游戏中")
	}
	if !actor.CanAct {
		return &ActionResult{
			Success: false,
			Message: "你现在无法行动",
		}, nil
	}

	variants := e.rules.Lookup(input.TargetA, input.TargetB)
	if len(variants) == 0 && input.RawInput != "" {
		if rule := e.rules.LookupPhrase(input.RawInput); rule != nil {
			variants = []*Combination{rule}
		}
	}
	if len(variants) == 0 {
		session.AppendEvent("action_miss", input.UserID, map[string]interface{}{
			"target_a":  input.TargetA,
			"target_b":  input.TargetB,
			"raw_input": input.RawInput,
		})
		return &ActionResult{
			Success: false,
			Message: defaultMissMessage,
		}, nil
	}

	// 一次性检查先于前置条件：已触发过的组合重复提交不是错误，
	// 也不因状态变化落入前置条件的失败提示，直接返回规则自带的提示
	for _, variant := range variants {
		if !variant.Repeatable && state.EventTriggered(variant.ID) {
			msg := variant.RepeatMessage
			if msg == "" {
				msg = "这件事已经做过了"
			}
			return &ActionResult{
				Success: false,
				Message: msg,
				RuleID:  variant.ID,
			}, nil
		}
	}

	// 变体选择：取首个全部前置条件满足的变体
	// 全部落空时用首个变体的首个失败条件给出提示
	rule, failMsg := selectVariant(variants, state)
	if rule == nil {
		return &ActionResult{
			Success: false,
			Message: failMsg,
		}, nil
	}

	working := state.Clone()
	touched := make(map[Field]bool)
	effectKinds := make([]string, 0, len(rule.Effects))

	for _, effect := range rule.Effects {
		for _, field := range effect.Apply(working) {
			touched[field] = true
		}
		effectKinds = append(effectKinds, effect.Kind())
	}

	hpChanges := applyHPDelta(working, rule, actor.Character)
	if len(hpChanges) > 0 {
		touched[FieldPlayers] = true
	}

	if !rule.Repeatable {
		working.TriggeredEvents = append(working.TriggeredEvents, rule.ID)
		touched[FieldEvents] = true
	}

	update := buildUpdate(working, touched)
	state.Apply(update)

	message := renderNarrative(rule, actor.Character, input)

	session.AppendEvent("action_result", input.UserID, map[string]interface{}{
		"rule_id":    rule.ID,
		"target_a":   input.TargetA,
		"target_b":   input.TargetB,
		"key_action": rule.IsKeyAction,
	})

	e.log.Info("动作解析成功",
		zap.Uint("room_id", session.RoomID),
		zap.Uint("user_id", input.UserID),
		zap.String("rule_id", rule.ID),
		zap.Bool("key_action", rule.IsKeyAction))

	return &ActionResult{
		Success:      true,
		Message:      message,
		RuleID:       rule.ID,
		KeyAction:    rule.IsKeyAction,
		Effects:      effectKinds,
		HPChanges:    hpChanges,
		StateChanged: len(touched) > 0,
		Update:       update,
	}, nil
}

// selectVariant 按前置条件选择规则变体
func selectVariant(variants []*Combination, state *GameState) (*Combination, string) {
	var firstFail string
	for _, variant := range variants {
		failed := false
		for _, cond := range variant.Preconditions {
			if !cond.Check(state) {
				if firstFail == "" {
					firstFail = cond.FailMessage()
				}
				failed = true
				break
			}
		}
		if !failed {
			return variant, ""
		}
	}
	if firstFail == "" {
		firstFail = defaultMissMessage
	}
	return nil, firstFail
}

// applyHPDelta 在工作副本上应用HP变化并收敛到合法区间
func applyHPDelta(working *GameState, rule *Combination, actorCharacter string) []HPChange {
	if rule.HPDelta == 0 {
		return nil
	}

	var changes []HPChange
	apply := func(p *PlayerState) {
		old := p.HP
		p.HP = working.ClampHP(p.HP + rule.HPDelta)
		if p.HP != old {
			changes = append(changes, HPChange{
				UserID:    p.UserID,
				Character: p.Character,
				Delta:     p.HP - old,
				NewHP:     p.HP,
			})
		}
	}

	switch rule.HPTarget {
	case HPTargetAll:
		for i := range working.Players {
			apply(&working.Players[i])
		}
	case HPTargetActor, "":
		if p := working.Player(actorCharacter); p != nil {
			apply(p)
		}
	default:
		if p := working.Player(rule.HPTarget); p != nil {
			apply(p)
		}
	}
	return changes
}

// buildUpdate 从工作副本提取被触及字段的完整新值
func buildUpdate(working *GameState, touched map[Field]bool) *StateUpdate {
	if len(touched) == 0 {
		return nil
	}
	update := &StateUpdate{}
	if touched[FieldPhase] {
		phase := working.Phase
		update.Phase = &phase
	}
	if touched[FieldPlayers] {
		update.Players = working.Players
	}
	if touched[FieldInventory] {
		update.Inventory = working.Inventory
	}
	if touched[FieldAreas] {
		update.UnlockedAreas = working.UnlockedAreas
	}
	if touched[FieldLetters] {
		update.CollectedLetters = working.CollectedLetters
	}
	if touched[FieldFlags] {
		update.Flags = working.Flags
	}
	if touched[FieldEvents] {
		update.TriggeredEvents = working.TriggeredEvents
	}
	return update
}

// renderNarrative 渲染成功叙事，替换占位符
func renderNarrative(rule *Combination, actorCharacter string, input ActionInput) string {
	if rule.Narrative == "" {
		return "成功了！"
	}
	replacer := strings.NewReplacer(
		"{actor}", actorCharacter,
		"{a}", normalizeSubject(input.TargetA),
		"{b}", normalizeSubject(input.TargetB),
	)
	return replacer.Replace(rule.Narrative)
}
