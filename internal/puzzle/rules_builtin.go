package puzzle

// DefaultRules 第一章内置组合规则表
// 道具、场景物与角色名均为规范化小写主体
func DefaultRules() *RuleTable {
	table := NewRuleTable()

	table.Register(
		// 开场：乌龟潜入池塘捞出木盒
		&Combination{
			ID:       "ch1_pond_box",
			Subjects: [2]string{"pond", "turtle"},
			Phrases:  []string{"潜入池塘", "下水找找"},
			Effects: []Effect{
				ObtainItem{Item: Item{ID: "wooden_box", Name: "木盒", IsKey: true}},
				SetFlag{Key: "pond_searched", Value: true},
			},
			Repeatable:    false,
			RepeatMessage: "池塘底已经被翻遍了，没有别的东西",
			Narrative:     "{actor}潜入池塘深处，捞起了一只沉甸甸的木盒！",
			IsKeyAction:   true,
		},

		// 兔子在灌木丛里刨出发簪
		&Combination{
			ID:       "ch1_bush_hairpin",
			Subjects: [2]string{"bush", "rabbit"},
			Effects: []Effect{
				ObtainItem{Item: Item{ID: "hairpin", Name: "发簪"}},
			},
			Repeatable:    false,
			RepeatMessage: "灌木丛里只剩下枯叶了",
			Narrative:     "{actor}在灌木丛里刨了几下，刨出一支银色发簪",
		},

		// 乌龟在谷仓找到绳子
		&Combination{
			ID:       "ch1_barn_rope",
			Subjects: [2]string{"barn", "turtle"},
			Effects: []Effect{
				ObtainItem{Item: Item{ID: "rope", Name: "绳子"}},
			},
			Repeatable:    false,
			RepeatMessage: "谷仓里没有别的能用的东西了",
			Narrative:     "{actor}从谷仓的横梁上取下一捆结实的绳子",
		},

		// 用发簪撬开木盒，得到旧钥匙
		&Combination{
			ID:       "ch1_open_box",
			Subjects: [2]string{"wooden_box", "hairpin"},
			Phrases:  []string{"撬开木盒"},
			Preconditions: []Precondition{
				HasItem{ItemID: "wooden_box", Message: "得先找到那只木盒"},
				HasItem{ItemID: "hairpin", Message: "需要一件细长的工具才能撬开锁扣"},
			},
			Effects: []Effect{
				SetItemStatus{ItemID: "wooden_box", Status: ItemStatusUsed},
				ObtainItem{Item: Item{ID: "old_key", Name: "旧钥匙", IsKey: true}},
			},
			Repeatable:    false,
			RepeatMessage: "木盒已经打开了，里面空空如也",
			Narrative:     "{actor}用发簪轻轻一撬，木盒应声而开，里面躺着一把旧钥匙！",
			IsKeyAction:   true,
		},

		// 猫钻进黑洞探查，被卡住了
		&Combination{
			ID:       "ch1_cat_stuck",
			Subjects: [2]string{"dark_hole", "cat"},
			Preconditions: []Precondition{
				CharacterStatusIs{Character: "cat", Status: PlayerStatusActive, Message: "猫现在动不了"},
			},
			Effects: []Effect{
				UpdatePlayer{
					Character:       "cat",
					Status:          PlayerStatusTrapped,
					TrappedLocation: strPtr("dark_hole"),
					CanAct:          boolPtr(false),
				},
				SetFlag{Key: "hole_explored", Value: true},
			},
			HPDelta:       -1,
			HPTarget:      HPTargetActor,
			Repeatable:    false,
			RepeatMessage: "没有人想再钻一次那个洞了",
			Narrative:     "{actor}钻进黑洞想探个究竟，结果被卡在了里面！",
		},

		// 绳子救援：同一主体对的两个变体，按猫的状态区分
		&Combination{
			ID:       "ch1_rope_rescue",
			Subjects: [2]string{"rope", "dark_hole"},
			Phrases:  []string{"把绳子放进洞里"},
			Preconditions: []Precondition{
				HasItem{ItemID: "rope", Message: "需要一根绳子才够得到洞底"},
				CharacterStatusIs{Character: "cat", Status: PlayerStatusTrapped, Message: "洞里没有人"},
			},
			Effects: []Effect{
				UpdatePlayer{
					Character:       "cat",
					Status:          PlayerStatusActive,
					TrappedLocation: strPtr(""),
					CanAct:          boolPtr(true),
				},
				SetItemStatus{ItemID: "rope", Status: ItemStatusUsed},
			},
			Repeatable:    false,
			RepeatMessage: "洞口的绳子已经收起来了",
			Narrative:     "{actor}把绳子放进洞里，大家合力把猫拉了出来！",
			IsKeyAction:   true,
		},
		&Combination{
			ID:       "ch1_rope_hole_empty",
			Subjects: [2]string{"rope", "dark_hole"},
			Preconditions: []Precondition{
				CharacterStatusIs{Character: "cat", Status: PlayerStatusActive, Message: ""},
			},
			Repeatable: true,
			Narrative:  "洞里黑漆漆的，什么也没有",
		},

		// 旧钥匙打开地窖门
		&Combination{
			ID:       "ch1_cellar_unlock",
			Subjects: [2]string{"old_key", "cellar door"},
			Preconditions: []Precondition{
				HasItem{ItemID: "old_key", Message: "门锁得很紧，需要一把钥匙"},
			},
			Effects: []Effect{
				UnlockArea{AreaID: "cellar"},
				SetItemStatus{ItemID: "old_key", Status: ItemStatusUsed},
			},
			Repeatable:    false,
			RepeatMessage: "地窖的门已经开着了",
			Narrative:     "旧钥匙在锁孔里转了一圈，地窖的门吱呀一声打开了！",
			IsKeyAction:   true,
		},

		// 地窖里找到第一封信
		&Combination{
			ID:       "ch1_cellar_letter",
			Subjects: [2]string{"cellar", "cat"},
			Preconditions: []Precondition{
				AreaUnlocked{AreaID: "cellar", Message: "地窖的门还锁着"},
				CharacterStatusIs{Character: "cat", Status: PlayerStatusActive, Message: "猫现在动不了"},
			},
			Effects: []Effect{
				CollectLetter{Letter: "letter_1"},
			},
			Repeatable:    false,
			RepeatMessage: "地窖里已经搜过了",
			Narrative:     "{actor}在地窖的角落里发现了一封泛黄的信！",
			IsKeyAction:   true,
		},

		// 浆果恢复体力，可重复
		&Combination{
			ID:       "ch1_berries_heal",
			Subjects: [2]string{"berries", "rabbit"},
			Phrases:  []string{"吃浆果"},
			HPDelta:    2,
			HPTarget:   HPTargetActor,
			Repeatable: true,
			Narrative:  "{actor}吃下几颗浆果，觉得恢复了一些力气",
		},

		// 荆棘丛扎伤所有人，可重复
		&Combination{
			ID:       "ch1_thorns_hurt",
			Subjects: [2]string{"thorn bush", "rabbit"},
			Effects: []Effect{
				SetFlag{Key: "thorns_touched", Value: true},
			},
			HPDelta:    -2,
			HPTarget:   HPTargetAll,
			Repeatable: true,
			Narrative:  "荆棘丛突然弹开，扎到了每一个人！",
		},

		// 把信投进邮筒，章节收尾
		&Combination{
			ID:       "ch1_mailbox_finish",
			Subjects: [2]string{"letter_1", "mailbox"},
			Preconditions: []Precondition{
				HasLetter{Letter: "letter_1", Message: "手里还没有可以寄出的信"},
			},
			Effects: []Effect{
				AdvancePhase{Phase: "chapter_end"},
				SetFlag{Key: "chapter1_complete", Value: true},
			},
			Repeatable:    false,
			RepeatMessage: "信已经寄出去了",
			Narrative:     "{actor}把信投进邮筒，远处传来一声悠长的钟响……第一章完",
			IsKeyAction:   true,
		},
	)

	return table
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
