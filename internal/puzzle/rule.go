package puzzle

import (
	"sort"
	"strings"
)

// Precondition 规则前置条件
// 封闭的变体集合，每种条件携带各自的失败提示
type Precondition interface {
	// Check 在当前状态下检查条件是否满足
	Check(state *GameState) bool
	// FailMessage 条件不满足时返回给行动者的提示
	FailMessage() string
}

// HasItem 要求持有道具
type HasItem struct {
	ItemID  string
	Message string
}

func (p HasItem) Check(state *GameState) bool { return state.HasItem(p.ItemID) }
func (p HasItem) FailMessage() string         { return p.Message }

// ItemStatusIs 要求道具处于指定状态
type ItemStatusIs struct {
	ItemID  string
	Status  string
	Message string
}

func (p ItemStatusIs) Check(state *GameState) bool { return state.ItemStatus(p.ItemID) == p.Status }
func (p ItemStatusIs) FailMessage() string         { return p.Message }

// FlagIs 要求剧情标志为指定值
type FlagIs struct {
	Key     string
	Value   interface{}
	Message string
}

func (p FlagIs) Check(state *GameState) bool { return state.FlagEquals(p.Key, p.Value) }
func (p FlagIs) FailMessage() string         { return p.Message }

// CharacterStatusIs 要求指定角色处于指定状态
type CharacterStatusIs struct {
	Character string
	Status    string
	Message   string
}

func (p CharacterStatusIs) Check(state *GameState) bool {
	player := state.Player(p.Character)
	return player != nil && player.Status == p.Status
}
func (p CharacterStatusIs) FailMessage() string { return p.Message }

// AreaUnlocked 要求区域已解锁
type AreaUnlocked struct {
	AreaID  string
	Message string
}

func (p AreaUnlocked) Check(state *GameState) bool { return state.AreaUnlocked(p.AreaID) }
func (p AreaUnlocked) FailMessage() string         { return p.Message }

// HasLetter 要求已收集指定信件
type HasLetter struct {
	Letter  string
	Message string
}

func (p HasLetter) Check(state *GameState) bool { return state.HasLetter(p.Letter) }
func (p HasLetter) FailMessage() string         { return p.Message }

// Predicate 自定义谓词条件
type Predicate struct {
	Fn      func(state *GameState) bool
	Message string
}

func (p Predicate) Check(state *GameState) bool {
	return p.Fn != nil && p.Fn(state)
}
func (p Predicate) FailMessage() string { return p.Message }

// HP变更目标
const (
	HPTargetAll   = "all"
	HPTargetActor = "actor"
)

// Combination 组合规则
// 同一主体对可注册多条变体，按前置条件区分触发哪一条
type Combination struct {
	// ID 规则唯一标识，同时作为一次性事件的触发记录键
	ID string
	// Subjects 参与组合的两个主体（道具/角色/场景物）
	Subjects [2]string
	// Phrases 触发短语，玩家的自由输入可直接命中本规则
	Phrases []string
	// Preconditions 全部满足才触发，按序检查，首个失败给出提示
	Preconditions []Precondition
	// Effects 触发后按序应用的效果
	Effects []Effect
	// HPDelta HP变化量，0 表示无HP效果
	HPDelta int
	// HPTarget HP变化目标：all、actor 或具体角色名
	HPTarget string
	// Repeatable 是否可重复触发
	Repeatable bool
	// RepeatMessage 不可重复规则再次提交时的提示
	RepeatMessage string
	// Narrative 成功叙事，支持 {actor} {a} {b} 占位
	Narrative string
	// IsKeyAction 是否关键剧情动作（用于日志与前端提示）
	IsKeyAction bool
}

// normalizeSubject 主体标准化：小写、去首尾空白、压缩内部空白
func normalizeSubject(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// pairKey 无序主体对的规范键
func pairKey(a, b string) string {
	pair := []string{normalizeSubject(a), normalizeSubject(b)}
	sort.Strings(pair)
	return pair[0] + "\x00" + pair[1]
}

// RuleTable 组合规则表
// 查找对主体顺序对称：cat+box 与 box+cat 命中同一组变体
type RuleTable struct {
	rules   map[string][]*Combination
	phrases map[string]*Combination
}

// NewRuleTable 创建空规则表
func NewRuleTable() *RuleTable {
	return &RuleTable{
		rules:   make(map[string][]*Combination),
		phrases: make(map[string]*Combination),
	}
}

// Register 注册规则，同主体对的变体按注册顺序保存，触发短语单独索引
func (t *RuleTable) Register(rules ...*Combination) {
	for _, rule := range rules {
		key := pairKey(rule.Subjects[0], rule.Subjects[1])
		t.rules[key] = append(t.rules[key], rule)
		for _, phrase := range rule.Phrases {
			t.phrases[normalizeSubject(phrase)] = rule
		}
	}
}

// Lookup 查找主体对的全部规则变体
func (t *RuleTable) Lookup(a, b string) []*Combination {
	return t.rules[pairKey(a, b)]
}

// LookupPhrase 按触发短语查找规则，未命中返回nil
func (t *RuleTable) LookupPhrase(raw string) *Combination {
	return t.phrases[normalizeSubject(raw)]
}

// Size 规则总数
func (t *RuleTable) Size() int {
	n := 0
	for _, variants := range t.rules {
		n += len(variants)
	}
	return n
}
