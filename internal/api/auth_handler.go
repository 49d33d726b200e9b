package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/wfunc/puzzle-party/internal/errors"
	"github.com/wfunc/puzzle-party/internal/models"
	"github.com/wfunc/puzzle-party/internal/repository"
	"github.com/wfunc/puzzle-party/internal/utils"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	users      repository.UserRepository
	jwtManager *utils.JWTManager
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(users repository.UserRepository, jwtManager *utils.JWTManager) *AuthHandler {
	return &AuthHandler{
		users:      users,
		jwtManager: jwtManager,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=6"`
	Nickname string `json:"nickname" binding:"max=100"`
	Email    string `json:"email" binding:"omitempty,email"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshTokenRequest 刷新令牌请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
}

// Register 用户注册
// @Summary 用户注册
// @Description 创建新用户账号并返回令牌
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "注册信息"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	ctx := c.Request.Context()

	if existing, _ := h.users.FindByUsername(ctx, req.Username); existing != nil {
		respondError(c, apperrors.New(apperrors.ErrAlreadyExists, "用户名已被注册"))
		return
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrUnknown, "密码哈希失败"))
		return
	}

	user := &models.User{
		Username: req.Username,
		Nickname: req.Nickname,
		Email:    req.Email,
		Password: hashed,
		Status:   "active",
	}
	if user.Nickname == "" {
		user.Nickname = req.Username
	}
	if err := h.users.Create(ctx, user); err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseInsert))
		return
	}

	h.issueTokens(c, user)
}

// Login 用户登录
// @Summary 用户登录
// @Description 用户名密码登录，返回访问与刷新令牌
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "登录信息"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	ctx := c.Request.Context()

	user, err := h.users.FindByUsername(ctx, req.Username)
	if err != nil {
		// 不区分用户不存在与密码错误
		respondError(c, apperrors.New(apperrors.ErrAuthentication, "用户名或密码错误"))
		return
	}

	ok, err := utils.VerifyPassword(req.Password, user.Password)
	if err != nil || !ok {
		respondError(c, apperrors.New(apperrors.ErrAuthentication, "用户名或密码错误"))
		return
	}

	if user.Status != "active" {
		respondError(c, apperrors.New(apperrors.ErrPermissionDenied, "账号已被冻结"))
		return
	}

	if err := h.users.UpdateLastLogin(ctx, user.ID, c.ClientIP()); err != nil {
		// 登录统计失败不阻断登录
		_ = err
	}

	h.issueTokens(c, user)
}

// RefreshToken 刷新访问令牌
// @Summary 刷新访问令牌
// @Description 使用刷新令牌获取新的访问令牌
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RefreshTokenRequest true "刷新令牌"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	accessToken, err := h.jwtManager.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrTokenInvalid))
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		AccessToken: accessToken,
	})
}

// GetProfile 获取当前用户资料
// @Summary 获取当前用户资料
// @Tags Auth
// @Security Bearer
// @Success 200 {object} models.User
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/profile [get]
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, _ := c.Get("userID")

	user, err := h.users.FindByID(c.Request.Context(), userID.(uint))
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrNotFound, "用户不存在"))
		return
	}

	c.JSON(http.StatusOK, user)
}

// issueTokens 签发访问/刷新令牌并返回
func (h *AuthHandler) issueTokens(c *gin.Context, user *models.User) {
	accessToken, err := h.jwtManager.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrUnknown, "签发令牌失败"))
		return
	}
	refreshToken, err := h.jwtManager.GenerateRefreshToken(user.ID, user.Username)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrUnknown, "签发令牌失败"))
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}
