package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/wfunc/puzzle-party/internal/errors"
	"github.com/wfunc/puzzle-party/internal/utils"
)

// AuthMiddleware JWT认证中间件
type AuthMiddleware struct {
	jwtManager *utils.JWTManager
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(jwtManager *utils.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
	}
}

// RequireAuth 需要认证的中间件
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    int(apperrors.ErrAuthentication),
				"message": "缺少认证令牌",
			})
			c.Abort()
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			code := apperrors.ErrTokenInvalid
			if err == utils.ErrExpiredToken {
				code = apperrors.ErrTokenExpired
			}
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    int(code),
				"message": "无效的令牌",
				"details": err.Error(),
			})
			c.Abort()
			return
		}

		// 刷新令牌不能当访问令牌用
		if claims.TokenType != "access" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    int(apperrors.ErrTokenInvalid),
				"message": "令牌类型错误",
			})
			c.Abort()
			return
		}

		// 将用户信息存入上下文
		c.Set("userID", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("token", token)

		c.Next()
	}
}

// OptionalAuth 可选认证的中间件（不强制要求登录）
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token != "" {
			claims, err := m.jwtManager.ValidateToken(token)
			if err == nil && claims.TokenType == "access" {
				c.Set("userID", claims.UserID)
				c.Set("username", claims.Username)
				c.Set("token", token)
			}
		}

		c.Next()
	}
}

// extractToken 从请求中提取令牌
func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	// 1. 从Authorization Header获取 (Bearer Token)
	bearerToken := c.GetHeader("Authorization")
	if bearerToken != "" {
		parts := strings.Split(bearerToken, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}

	// 2. 从X-Access-Token Header获取
	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	// 3. 从Query参数获取（WebSocket握手无法携带自定义Header）
	if token := c.Query("token"); token != "" {
		return token
	}

	return ""
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) (uint, bool) {
	if userID, exists := c.Get("userID"); exists {
		if id, ok := userID.(uint); ok {
			return id, true
		}
	}
	return 0, false
}

// GetUsername 从上下文获取用户名
func GetUsername(c *gin.Context) (string, bool) {
	if username, exists := c.Get("username"); exists {
		if name, ok := username.(string); ok {
			return name, true
		}
	}
	return "", false
}

// IsAuthenticated 检查是否已认证
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get("userID")
	return exists
}
