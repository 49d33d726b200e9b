package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wfunc/puzzle-party/internal/cache"
	"github.com/wfunc/puzzle-party/internal/models"
	"github.com/wfunc/puzzle-party/internal/puzzle"
	"github.com/wfunc/puzzle-party/internal/repository"
	"github.com/wfunc/puzzle-party/internal/room"
)

// TestStartGameRollbackOnStatusFailure 开始游戏时房间状态更新失败，
// 要回收刚建的会话，保证开始操作可重试而不是永远返回"已开始"
func TestStartGameRollbackOnStatusFailure(t *testing.T) {
	db := repository.SetupTestDB()
	defer repository.CleanupTestDB(db)
	ctx := context.Background()

	memCache := cache.NewMemoryCache()
	rooms := room.NewManager(db, memCache, room.Options{
		MaxPlayers:   3,
		CodeAttempts: 5,
		DetailTTL:    30 * time.Minute,
		ListTTL:      10 * time.Second,
	})
	store := puzzle.NewStore(memCache, repository.NewSnapshotRepository(db), 30*time.Minute, 100)
	games := puzzle.NewManager(store, puzzle.NewEngine(puzzle.DefaultRules()), 10)

	hub := NewHub(zap.NewNop())
	handler := &RoomHandler{
		hub:   hub,
		rooms: rooms,
		games: games,
		log:   zap.NewNop(),
	}

	view, err := rooms.CreateRoom(ctx, room.CreateInput{
		HostID:      1,
		Name:        "测试房间",
		Character:   models.CharacterTurtle,
		DisplayName: "玩家一",
	})
	require.NoError(t, err)

	host := NewClient(hub, nil, 1, "player1")
	hub.registerClient(host)

	// 让状态更新失败：房间表消失，缓存中的视图仍可读到
	require.NoError(t, db.Migrator().DropTable(&models.Room{}))

	data, err := json.Marshal(map[string]interface{}{"room_id": view.ID})
	require.NoError(t, err)
	handler.handleStartGame(ctx, host, &Message{Type: MessageTypeRoomStartGame, Data: data})

	// 会话已回收
	_, err = games.GetSession(ctx, view.ID)
	assert.Error(t, err)

	// 重试开始不再被"游戏已经开始"拦截
	_, err = games.StartGame(ctx, view.ID, []puzzle.PlayerState{
		{UserID: 1, Character: models.CharacterTurtle},
	})
	assert.NoError(t, err)
}
