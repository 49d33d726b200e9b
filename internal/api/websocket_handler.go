package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wfunc/puzzle-party/internal/config"
	"github.com/wfunc/puzzle-party/internal/middleware"
	ws "github.com/wfunc/puzzle-party/internal/websocket"
)

// WebSocketHandler WebSocket升级处理器
type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(hub *ws.Hub, cfg *config.WebSocketConfig, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    cfg.ReadBufferSize,
			WriteBufferSize:   cfg.WriteBufferSize,
			EnableCompression: cfg.EnableCompression,
			CheckOrigin: func(r *http.Request) bool {
				// 在生产环境中应该检查Origin
				return true
			},
		},
		logger: logger,
	}
}

// GameWebSocket 游戏WebSocket连接
// 握手经过认证中间件，令牌可通过 ?token= 携带
func (h *WebSocketHandler) GameWebSocket(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists || userID == 0 {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    401,
			Message: "未认证的WebSocket连接",
		})
		return
	}
	username, _ := middleware.GetUsername(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败",
			zap.Uint("user_id", userID),
			zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, userID, username)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("WebSocket连接建立",
		zap.String("client_id", client.ID),
		zap.Uint("user_id", userID))
}

// GetOnlineCount 获取在线连接数
func (h *WebSocketHandler) GetOnlineCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online_count": h.hub.GetOnlineCount(),
	})
}
