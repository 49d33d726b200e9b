package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 错误定义
var (
	ErrClientNotFound   = errors.New("客户端未找到")
	ErrClientClosed     = errors.New("客户端已注销")
	ErrUserNotConnected = errors.New("用户未连接")
	ErrSendBufferFull   = errors.New("发送缓冲区已满")
)

// WebSocket配置
const (
	// 写超时
	writeWait = 10 * time.Second

	// 读取pong超时
	pongWait = 60 * time.Second

	// ping发送周期（必须小于pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 64 * 1024 // 64KB
)

// Client WebSocket客户端
type Client struct {
	ID       string // 连接ID
	UserID   uint
	Username string
	RoomID   uint // 当前所在房间广播组，0表示未入组
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte

	// sendMu 保护closed标记与Send通道：投递与注销关闭可能来自不同协程
	sendMu sync.Mutex
	closed bool
}

// NewClient 创建新客户端
func NewClient(hub *Hub, conn *websocket.Conn, userID uint, username string) *Client {
	return &Client{
		ID:       uuid.New().String(),
		UserID:   userID,
		Username: username,
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, 256),
	}
}

// trySend 向发送缓冲投递消息，连接已注销或缓冲区满时拒绝
func (c *Client) trySend(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// closeSend 标记注销并关闭发送通道，之后的trySend全部拒绝
func (c *Client) closeSend() {
	c.sendMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
	c.sendMu.Unlock()
}

// ReadPump 读取消息
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			break
		}

		if c.Hub.messageHandler != nil {
			c.Hub.messageHandler.HandleClientMessage(c, message)
		}
	}
}

// WritePump 写入消息
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 批量发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendEvent 发送事件消息给客户端
func (c *Client) SendEvent(msgType string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.Hub.SendToClient(c.ID, &Message{
		Type:      msgType,
		Data:      jsonData,
		Timestamp: time.Now().Unix(),
	})
}

// Close 关闭客户端连接
func (c *Client) Close() {
	c.Hub.unregister <- c
}
