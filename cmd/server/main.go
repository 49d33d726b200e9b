package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/puzzle-party/internal/api"
	"github.com/wfunc/puzzle-party/internal/broadcast"
	"github.com/wfunc/puzzle-party/internal/cache"
	"github.com/wfunc/puzzle-party/internal/config"
	"github.com/wfunc/puzzle-party/internal/database"
	apperrors "github.com/wfunc/puzzle-party/internal/errors"
	"github.com/wfunc/puzzle-party/internal/logger"
	"github.com/wfunc/puzzle-party/internal/puzzle"
	"github.com/wfunc/puzzle-party/internal/repository"
	"github.com/wfunc/puzzle-party/internal/room"
	"github.com/wfunc/puzzle-party/internal/session"
	"github.com/wfunc/puzzle-party/internal/utils"
	ws "github.com/wfunc/puzzle-party/internal/websocket"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	cache      cache.Cache
	hub        *ws.Hub
	heartbeat  *broadcast.Heartbeat
	sessions   *session.Manager
	httpServer *http.Server

	shutdownCh chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	server := NewServer(cfg)

	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动解谜派对游戏服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	if err := s.initDatabase(); err != nil {
		return err
	}

	if err := s.initCache(); err != nil {
		return err
	}

	s.initComponents()

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.cfg = newCfg
	})

	// 启动HTTP服务
	go func() {
		s.logger.Info("HTTP服务监听",
			zap.String("addr", s.httpServer.Addr),
			zap.String("ws_path", s.cfg.WebSocket.Path))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP服务异常退出", zap.Error(err))
		}
	}()

	s.logger.Info("服务器启动成功",
		zap.String("http", fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)),
	)

	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	s.logger.Info("初始化数据库...")

	if err := database.Init(&s.cfg.Database); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	if !database.IsConnected() {
		return apperrors.New(apperrors.ErrDatabaseConnect, "数据库连接检查失败")
	}

	return nil
}

// initCache 初始化会话缓存
// Redis不可用不阻断启动，持久层始终是权威数据源
func (s *Server) initCache() error {
	if s.cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(&s.cfg.Redis)
		if err != nil {
			s.logger.Warn("Redis连接失败，退化为进程内缓存", zap.Error(err))
			s.cache = cache.NewMemoryCache()
			return nil
		}
		s.logger.Info("使用Redis会话缓存", zap.String("addr", s.cfg.Redis.Addr))
		s.cache = redisCache
		return nil
	}

	s.logger.Info("使用进程内会话缓存")
	s.cache = cache.NewMemoryCache()
	return nil
}

// initComponents 组装各组件
func (s *Server) initComponents() {
	db := database.GetDB()
	game := &s.cfg.Game

	// 仓储层
	users := repository.NewUserRepository(db)
	memberships := repository.NewMembershipRepository(db)
	snapshots := repository.NewSnapshotRepository(db)

	// 房间生命周期管理器
	rooms := room.NewManager(db, s.cache, room.Options{
		MaxPlayers:   game.MaxPlayers,
		CodeAttempts: game.CodeAttempts,
		DetailTTL:    game.StateTTL,
		ListTTL:      game.RoomListTTL,
	})

	// 解谜引擎与对局管理器
	store := puzzle.NewStore(s.cache, snapshots, game.StateTTL, game.EventLogCap)
	games := puzzle.NewManager(store, puzzle.NewEngine(puzzle.DefaultRules()), game.MaxHP)

	// WebSocket中心与广播
	s.hub = ws.NewHub(logger.GetModuleLogger("websocket"))
	broadcaster := ws.NewHubBroadcaster(s.hub)

	s.heartbeat = broadcast.NewHeartbeat(broadcaster, func(ctx context.Context, roomID uint) (interface{}, error) {
		gameSession, err := games.GetSession(ctx, roomID)
		if err != nil {
			return nil, err
		}
		return gameSession.State, nil
	}, game.SyncInterval)

	// 连接会话管理器
	s.sessions = session.NewManager(
		rooms,
		games,
		session.NewPresenceStore(s.cache, game.SessionTimeout),
		session.NewRegistry(),
		s.heartbeat,
		broadcaster,
		memberships,
		game.ReconnectGrace,
	)

	// WebSocket消息处理器
	s.hub.SetMessageHandler(ws.NewRoomHandler(s.hub, rooms, games, s.sessions, s.heartbeat))
	go s.hub.Run()

	// HTTP路由
	jwtManager := utils.NewJWTManager(
		s.cfg.Security.JWT.Secret,
		time.Duration(s.cfg.Security.JWT.ExpireHours)*time.Hour,
		time.Duration(s.cfg.Security.JWT.RefreshHours)*time.Hour,
	)
	router := api.NewRouter(api.Deps{
		DB:         db,
		Users:      users,
		Rooms:      rooms,
		Hub:        s.hub,
		JWT:        jwtManager,
		WSConfig:   &s.cfg.WebSocket,
		ServerMode: s.cfg.Server.Mode,
	}, logger.GetModuleLogger("api"))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))

	close(s.shutdownCh)
}

// Shutdown 优雅关闭服务器
// 顺序：停止接收新连接 → 排空宽限定时器与心跳 → 关闭缓存与数据库
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接收新请求
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP服务关闭超时", zap.Error(err))
		}
	}

	// 排空宽限定时器、停掉全部心跳
	if s.sessions != nil {
		s.sessions.Shutdown(shutdownCtx)
	}

	s.cancel()

	// 关闭组件
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("关闭缓存失败", zap.Error(err))
		}
	}
	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}

	return nil
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("解谜派对游戏服务器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("解谜派对游戏服务器")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  puzzle-party-server [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  PUZZLE_PARTY_*         覆盖同名配置项，如 PUZZLE_PARTY_SERVER_PORT")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  puzzle-party-server -config=/path/to/config.yaml")
	fmt.Println("  puzzle-party-server -version")
}
