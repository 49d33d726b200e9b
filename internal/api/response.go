package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/wfunc/puzzle-party/internal/errors"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// respondError 按错误码映射HTTP状态码后返回
func respondError(c *gin.Context, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		c.JSON(appErr.HTTPStatus(), ErrorResponse{
			Code:    int(appErr.Code),
			Message: appErr.Message,
			Details: appErr.Details,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:    int(apperrors.ErrUnknown),
		Message: "服务器内部错误",
		Details: err.Error(),
	})
}

// respondBadRequest 参数绑定失败响应
func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:    int(apperrors.ErrInvalidParam),
		Message: "请求参数错误",
		Details: err.Error(),
	})
}
