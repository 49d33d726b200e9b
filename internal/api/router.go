package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wfunc/puzzle-party/internal/config"
	"github.com/wfunc/puzzle-party/internal/middleware"
	"github.com/wfunc/puzzle-party/internal/repository"
	"github.com/wfunc/puzzle-party/internal/room"
	"github.com/wfunc/puzzle-party/internal/utils"
	ws "github.com/wfunc/puzzle-party/internal/websocket"
)

// Router API路由器
type Router struct {
	engine         *gin.Engine
	db             *gorm.DB
	authHandler    *AuthHandler
	roomHandler    *RoomHandler
	wsHandler      *WebSocketHandler
	authMiddleware *middleware.AuthMiddleware
	wsPath         string
	log            *zap.Logger
}

// Deps 路由器依赖
type Deps struct {
	DB         *gorm.DB
	Users      repository.UserRepository
	Rooms      *room.Manager
	Hub        *ws.Hub
	JWT        *utils.JWTManager
	WSConfig   *config.WebSocketConfig
	ServerMode string
}

// NewRouter 创建路由器
func NewRouter(deps Deps, log *zap.Logger) *Router {
	if deps.ServerMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// 全局中间件
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	router := &Router{
		engine:         engine,
		db:             deps.DB,
		authHandler:    NewAuthHandler(deps.Users, deps.JWT),
		roomHandler:    NewRoomHandler(deps.Rooms),
		wsHandler:      NewWebSocketHandler(deps.Hub, deps.WSConfig, log),
		authMiddleware: middleware.NewAuthMiddleware(deps.JWT),
		wsPath:         deps.WSConfig.Path,
		log:            log,
	}

	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// API文档
	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	// API v1路由组
	v1 := r.engine.Group("/api/v1")
	{
		// 认证相关路由（不需要认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
			auth.POST("/refresh", r.authHandler.RefreshToken)

			// 需要认证的路由
			authRequired := auth.Group("")
			authRequired.Use(r.authMiddleware.RequireAuth())
			{
				authRequired.GET("/profile", r.authHandler.GetProfile)
			}
		}

		// 房间相关路由（需要认证）
		rooms := v1.Group("/rooms")
		rooms.Use(r.authMiddleware.RequireAuth())
		{
			rooms.POST("", r.roomHandler.CreateRoom)
			rooms.GET("", r.roomHandler.GetRoomList)
			rooms.GET("/current", r.roomHandler.GetCurrentRoom)
			rooms.GET("/code/:code", r.roomHandler.GetRoomByCode)
			rooms.GET("/:id", r.roomHandler.GetRoomDetail)
		}

		// 在线统计
		stats := v1.Group("/stats")
		stats.Use(r.authMiddleware.RequireAuth())
		{
			stats.GET("/online", r.wsHandler.GetOnlineCount)
		}
	}

	// WebSocket路由（令牌经query参数传递）
	r.engine.GET(r.wsPath, r.authMiddleware.RequireAuth(), r.wsHandler.GameWebSocket)

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"code":    1002,
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	sqlDB, err := r.db.DB()
	if err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "数据库连接失败",
		})
		return
	}

	if err := sqlDB.Ping(); err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "数据库ping失败",
		})
		return
	}

	c.JSON(200, gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
	})
}

// GetEngine 获取Gin引擎（用于测试与HTTP服务器挂载）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
