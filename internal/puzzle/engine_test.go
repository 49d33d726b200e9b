package puzzle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// EngineTestSuite 解谜引擎测试套件
type EngineTestSuite struct {
	suite.Suite
	engine  *Engine
	session *Session
}

func (s *EngineTestSuite) SetupTest() {
	s.engine = NewEngine(DefaultRules())
	players := []PlayerState{
		{UserID: 1, Character: "turtle"},
		{UserID: 2, Character: "cat"},
		{UserID: 3, Character: "rabbit"},
	}
	s.session = NewSession(100, NewGameState(10, players), 1000)
}

// resolve 快捷提交动作
func (s *EngineTestSuite) resolve(userID uint, a, b string) *ActionResult {
	result, err := s.engine.Resolve(s.session, ActionInput{
		UserID:     userID,
		ActionType: "combine",
		TargetA:    a,
		TargetB:    b,
	})
	s.Require().NoError(err)
	return result
}

// TestSymmetricLookup 主体顺序不影响规则命中
func (s *EngineTestSuite) TestSymmetricLookup() {
	result := s.resolve(1, "turtle", "pond")
	s.True(result.Success)
	s.Equal("ch1_pond_box", result.RuleID)
	s.True(s.session.State.HasItem("wooden_box"))
}

// TestNormalizedSubjects 大小写与多余空白不影响命中
func (s *EngineTestSuite) TestNormalizedSubjects() {
	result := s.resolve(1, "  Pond ", "TURTLE")
	s.True(result.Success)
	s.Equal("ch1_pond_box", result.RuleID)
}

// TestUnknownCombination 未知组合返回默认提示而非错误
func (s *EngineTestSuite) TestUnknownCombination() {
	result := s.resolve(2, "cat", "mailbox")
	s.False(result.Success)
	s.Equal(defaultMissMessage, result.Message)
	s.False(result.StateChanged)
}

// TestPreconditionFailMessage 前置条件不满足时返回首个失败提示
func (s *EngineTestSuite) TestPreconditionFailMessage() {
	// 还没有木盒
	result := s.resolve(3, "wooden_box", "hairpin")
	s.False(result.Success)
	s.Equal("得先找到那只木盒", result.Message)
	s.False(s.session.State.HasItem("old_key"))
}

// TestNonRepeatableRule 一次性规则重复提交返回专属提示
func (s *EngineTestSuite) TestNonRepeatableRule() {
	first := s.resolve(1, "pond", "turtle")
	s.True(first.Success)

	again := s.resolve(1, "pond", "turtle")
	s.False(again.Success)
	s.Equal("池塘底已经被翻遍了，没有别的东西", again.Message)
	s.Equal("ch1_pond_box", again.RuleID)

	// 背包中仍只有一只木盒
	count := 0
	for _, item := range s.session.State.Inventory {
		if item.ID == "wooden_box" {
			count++
		}
	}
	s.Equal(1, count)
}

// TestRepeatCheckPrecedesPreconditions 已触发的一次性规则重复提交时，
// 即使其前置条件已不再满足也优先返回重复提示
func (s *EngineTestSuite) TestRepeatCheckPrecedesPreconditions() {
	stuck := s.resolve(2, "dark_hole", "cat")
	s.True(stuck.Success)
	s.Equal(PlayerStatusTrapped, s.session.State.Player("cat").Status)

	// 猫被困后"猫处于active"的前置条件已失效，不应落入条件失败提示
	again := s.resolve(1, "dark_hole", "cat")
	s.False(again.Success)
	s.Equal("没有人想再钻一次那个洞了", again.Message)
	s.Equal("ch1_cat_stuck", again.RuleID)
}

// TestTriggerPhrase 自由输入的触发短语直接命中规则
func (s *EngineTestSuite) TestTriggerPhrase() {
	result, err := s.engine.Resolve(s.session, ActionInput{
		UserID:     1,
		ActionType: "free_input",
		RawInput:   "潜入池塘",
	})
	s.Require().NoError(err)
	s.True(result.Success)
	s.Equal("ch1_pond_box", result.RuleID)
	s.True(s.session.State.HasItem("wooden_box"))
}

// TestTriggerPhraseNormalized 短语匹配忽略大小写与多余空白
func (s *EngineTestSuite) TestTriggerPhraseNormalized() {
	result, err := s.engine.Resolve(s.session, ActionInput{
		UserID:   3,
		RawInput: "  吃浆果 ",
	})
	s.Require().NoError(err)
	s.True(result.Success)
	s.Equal("ch1_berries_heal", result.RuleID)
}

// TestUnknownPhrase 未知短语返回默认提示而非错误
func (s *EngineTestSuite) TestUnknownPhrase() {
	result, err := s.engine.Resolve(s.session, ActionInput{
		UserID:   2,
		RawInput: "对着天空大喊",
	})
	s.Require().NoError(err)
	s.False(result.Success)
	s.Equal(defaultMissMessage, result.Message)
}

// TestSubjectsBeatPhrase 主体对命中时不再看自由输入
func (s *EngineTestSuite) TestSubjectsBeatPhrase() {
	result, err := s.engine.Resolve(s.session, ActionInput{
		UserID:   1,
		TargetA:  "pond",
		TargetB:  "turtle",
		RawInput: "吃浆果",
	})
	s.Require().NoError(err)
	s.True(result.Success)
	s.Equal("ch1_pond_box", result.RuleID)
}

// TestVariantDisambiguation 同主体对的变体按前置条件区分
func (s *EngineTestSuite) TestVariantDisambiguation() {
	// 猫未被困时，绳子+黑洞命中"洞里没有"变体
	s.resolve(1, "barn", "turtle")
	empty := s.resolve(1, "rope", "dark_hole")
	s.True(empty.Success)
	s.Equal("ch1_rope_hole_empty", empty.RuleID)

	// 猫被困后，同一组合命中救援变体
	stuck := s.resolve(2, "dark_hole", "cat")
	s.True(stuck.Success)
	s.Equal(PlayerStatusTrapped, s.session.State.Player("cat").Status)
	s.False(s.session.State.Player("cat").CanAct)

	rescue := s.resolve(1, "rope", "dark_hole")
	s.True(rescue.Success)
	s.Equal("ch1_rope_rescue", rescue.RuleID)
	s.Equal(PlayerStatusActive, s.session.State.Player("cat").Status)
	s.True(s.session.State.Player("cat").CanAct)
}

// TestTrappedPlayerCannotAct 被困玩家提交动作被拒
func (s *EngineTestSuite) TestTrappedPlayerCannotAct() {
	s.resolve(2, "dark_hole", "cat")

	result := s.resolve(2, "berries", "rabbit")
	s.False(result.Success)
	s.Equal("你现在无法行动", result.Message)
}

// TestHPClampLowerBound HP下限收敛到1，不会归零
func (s *EngineTestSuite) TestHPClampLowerBound() {
	for i := 0; i < 10; i++ {
		s.resolve(3, "thorn bush", "rabbit")
	}
	for _, p := range s.session.State.Players {
		s.GreaterOrEqual(p.HP, 1)
		s.Equal(1, p.HP)
	}
}

// TestHPClampUpperBound HP上限收敛到MaxHP
func (s *EngineTestSuite) TestHPClampUpperBound() {
	result := s.resolve(3, "berries", "rabbit")
	// 已满血时无实际变化
	s.True(result.Success)
	s.Empty(result.HPChanges)
	s.Equal(10, s.session.State.Player("rabbit").HP)
}

// TestHPTargetAll 全体HP效果作用于每个玩家
func (s *EngineTestSuite) TestHPTargetAll() {
	result := s.resolve(3, "thorn bush", "rabbit")
	s.True(result.Success)
	s.Len(result.HPChanges, 3)
	for _, change := range result.HPChanges {
		s.Equal(-2, change.Delta)
		s.Equal(8, change.NewHP)
	}
}

// TestChapterProgression 第一章完整流程
func (s *EngineTestSuite) TestChapterProgression() {
	s.True(s.resolve(1, "pond", "turtle").Success)
	s.True(s.resolve(3, "bush", "rabbit").Success)
	s.True(s.resolve(3, "wooden_box", "hairpin").Success)
	s.True(s.resolve(1, "old_key", "cellar door").Success)
	s.True(s.session.State.AreaUnlocked("cellar"))

	s.True(s.resolve(2, "cellar", "cat").Success)
	s.True(s.session.State.HasLetter("letter_1"))

	finish := s.resolve(2, "letter_1", "mailbox")
	s.True(finish.Success)
	s.True(finish.KeyAction)
	s.Equal("chapter_end", s.session.State.Phase)
	s.True(s.session.State.FlagEquals("chapter1_complete", true))
}

// TestUpdateWholeFieldReplace 更新为整字段替换
func (s *EngineTestSuite) TestUpdateWholeFieldReplace() {
	result := s.resolve(1, "pond", "turtle")
	s.Require().NotNil(result.Update)
	// 背包字段整体出现，标志字段整体出现
	s.Len(result.Update.Inventory, 1)
	s.NotNil(result.Update.Flags)
	// 未触及字段保持nil
	s.Nil(result.Update.Players)
	s.Nil(result.Update.UnlockedAreas)
}

// TestNarrativePlaceholder 叙事占位符替换
func (s *EngineTestSuite) TestNarrativePlaceholder() {
	result := s.resolve(1, "pond", "turtle")
	s.Contains(result.Message, "turtle")
	s.NotContains(result.Message, "{actor}")
}

// TestActorNotInGame 不在本局的用户返回错误
func (s *EngineTestSuite) TestActorNotInGame() {
	_, err := s.engine.Resolve(s.session, ActionInput{UserID: 99, TargetA: "pond", TargetB: "turtle"})
	s.Error(err)
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

// TestEventLogCap 事件日志超限丢弃最旧
func TestEventLogCap(t *testing.T) {
	session := NewSession(1, NewGameState(10, nil), 5)
	for i := 0; i < 8; i++ {
		session.AppendEvent("tick", 0, map[string]interface{}{"i": i})
	}
	assert.Len(t, session.Events, 5)
	assert.Equal(t, 3, session.Events[0].Payload["i"])
	assert.Equal(t, 7, session.Events[4].Payload["i"])
}

// TestRuleTableSize 内置规则表注册完整
func TestRuleTableSize(t *testing.T) {
	table := DefaultRules()
	assert.Equal(t, 12, table.Size())
	assert.Len(t, table.Lookup("rope", "dark_hole"), 2)
	assert.Len(t, table.Lookup("dark_hole", "rope"), 2)
}
