package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/runner-game/internal/errors"
	"github.com/wfunc/runner-game/internal/middleware"
	"go.uber.org/zap"
)

// SuccessResponse 成功响应
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{Message: message, Data: data})
}

// respondError 非 AppError 统一视为内部错误
func respondError(c *gin.Context, err error) {
	middleware.AbortWithError(c, apperrors.As(err))
}

// respondInvalid 请求绑定失败，原始错误只写日志，客户端只看到固定描述
func respondInvalid(c *gin.Context, log *zap.Logger, err error) {
	log.Info("Request binding failed",
		zap.String("path", c.FullPath()),
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Error(err),
	)
	middleware.AbortWithError(c, apperrors.New(apperrors.ErrInvalidParam, bindingDetails(err)))
}

func bindingDetails(err error) string {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	var numErr *strconv.NumError
	switch {
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return "invalid value for field: " + typeErr.Field
	case errors.As(err, &typeErr), errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return "malformed JSON body"
	case errors.As(err, &numErr):
		return "invalid query parameter"
	default:
		return "invalid request"
	}
}
