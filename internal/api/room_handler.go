package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/wfunc/puzzle-party/internal/errors"
	"github.com/wfunc/puzzle-party/internal/middleware"
	"github.com/wfunc/puzzle-party/internal/room"
)

// RoomHandler 房间HTTP处理器
// 只消费房间管理器的契约，不直接触碰存储
type RoomHandler struct {
	rooms *room.Manager
}

// NewRoomHandler 创建房间处理器
func NewRoomHandler(rooms *room.Manager) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

// CreateRoomRequest 创建房间请求
type CreateRoomRequest struct {
	Name        string `json:"name" binding:"max=100"`
	Password    string `json:"password" binding:"max=64"`
	MaxPlayers  int    `json:"max_players" binding:"omitempty,min=1,max=3"`
	Character   string `json:"character" binding:"required"`
	DisplayName string `json:"display_name" binding:"max=100"`
}

// CreateRoom 创建房间
// @Summary 创建房间
// @Description 创建房间并以指定角色成为房主
// @Tags Room
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body CreateRoomRequest true "房间信息"
// @Success 200 {object} room.View
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/rooms [post]
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	view, err := h.rooms.CreateRoom(c.Request.Context(), room.CreateInput{
		HostID:      userID,
		Name:        req.Name,
		Password:    req.Password,
		MaxPlayers:  req.MaxPlayers,
		Character:   req.Character,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// GetRoomList 获取房间列表
// @Summary 获取房间列表
// @Description 分页查询房间，可按状态过滤
// @Tags Room
// @Security Bearer
// @Produce json
// @Param status query string false "房间状态过滤" Enums(waiting, playing, paused, finished)
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} room.ListPage
// @Router /api/v1/rooms [get]
func (h *RoomHandler) GetRoomList(c *gin.Context) {
	status := c.Query("status")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	list, err := h.rooms.GetRoomList(c.Request.Context(), status, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// GetRoomDetail 获取房间详情
// @Summary 获取房间详情
// @Description 按房间ID查询详情（含成员）
// @Tags Room
// @Security Bearer
// @Produce json
// @Param id path int true "房间ID"
// @Success 200 {object} room.View
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rooms/{id} [get]
func (h *RoomHandler) GetRoomDetail(c *gin.Context) {
	roomID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperrors.New(apperrors.ErrInvalidParam, "房间ID格式错误"))
		return
	}

	view, err := h.rooms.GetRoomDetails(c.Request.Context(), uint(roomID))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// GetRoomByCode 按房间码查询
// @Summary 按房间码查询房间
// @Tags Room
// @Security Bearer
// @Produce json
// @Param code path string true "6位房间码"
// @Success 200 {object} room.View
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rooms/code/{code} [get]
func (h *RoomHandler) GetRoomByCode(c *gin.Context) {
	code := c.Param("code")
	if !room.IsCode(code) {
		respondError(c, apperrors.New(apperrors.ErrInvalidParam, "房间码格式错误"))
		return
	}

	view, err := h.rooms.GetRoomByCode(c.Request.Context(), code)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// GetCurrentRoom 获取当前所在房间
// @Summary 获取当前用户所在房间
// @Description 未加入任何房间时返回 room=null
// @Tags Room
// @Security Bearer
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/rooms/current [get]
func (h *RoomHandler) GetCurrentRoom(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	view, err := h.rooms.GetCurrentRoom(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": view})
}
