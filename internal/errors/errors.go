package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown       ErrorCode = 1000
	ErrInvalidParam  ErrorCode = 1001
	ErrNotFound      ErrorCode = 1002
	ErrAlreadyExists ErrorCode = 1003
	ErrTimeout       ErrorCode = 1005

	// 对局错误 (2000-2999)
	ErrRunNotFound         ErrorCode = 2000
	ErrActiveSessionExists ErrorCode = 2001
	ErrMissingFields       ErrorCode = 2002
	ErrNonceMismatch       ErrorCode = 2003
	ErrNotEligible         ErrorCode = 2004
	ErrAlreadyClaimed      ErrorCode = 2005
	ErrRunIDRequired       ErrorCode = 2006

	// 存储错误 (5000-5999)
	ErrStoreUnavailable ErrorCode = 5000
	ErrDatabaseConnect  ErrorCode = 5001

	// 配置错误 (6000-6999)
	ErrConfigLoad ErrorCode = 6000

	// 安全错误 (7000-7999)
	ErrAuthentication ErrorCode = 7000
	ErrTokenExpired   ErrorCode = 7002
	ErrTokenInvalid   ErrorCode = 7003
	ErrRateLimited    ErrorCode = 7004
)

// 错误码消息映射（面向客户端的稳定文案）
var errorMessages = map[ErrorCode]string{
	ErrUnknown:       "Internal Server Error",
	ErrInvalidParam:  "Invalid request parameters",
	ErrNotFound:      "Resource not found",
	ErrAlreadyExists: "Resource already exists",
	ErrTimeout:       "Operation timed out",

	ErrRunNotFound:         "Active game run not found",
	ErrActiveSessionExists: "You have an active game run. Please finish it first.",
	ErrMissingFields:       "Missing required fields: runId, duration, score, distance",
	ErrNonceMismatch:       "Invalid client nonce",
	ErrNotEligible:         "Eligible game run not found or reward already claimed",
	ErrAlreadyClaimed:      "Reward already claimed for this run",
	ErrRunIDRequired:       "Run ID is required",

	ErrStoreUnavailable: "Service temporarily unavailable",
	ErrDatabaseConnect:  "Database connection failed",

	ErrConfigLoad: "Failed to load configuration",

	ErrAuthentication: "Authentication token missing",
	ErrTokenExpired:   "Invalid or expired token",
	ErrTokenInvalid:   "Invalid or expired token",
	ErrRateLimited:    "Too many requests. Please try again later.",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
	Cause   error        `json:"-"`
	Stack   []StackFrame `json:"-"`
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 已经是AppError时保留原始错误码
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr = New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}

	return ErrUnknown
}

// As 将任意错误转换为AppError，非AppError归为未知错误
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, ErrUnknown)
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()

		// 跳过runtime和本包的调用
		if !strings.Contains(frame.Function, "runtime.") &&
			!strings.Contains(frame.Function, "runner-game/internal/errors.") {
			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})
		}

		if !more || len(e.Stack) >= 10 {
			break
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrInvalidParam, ErrMissingFields, ErrRunIDRequired, ErrNonceMismatch, ErrActiveSessionExists:
		return 400
	case ErrNotFound, ErrRunNotFound, ErrNotEligible:
		return 404
	case ErrAlreadyExists, ErrAlreadyClaimed:
		return 409
	case ErrTimeout:
		return 408
	case ErrAuthentication, ErrTokenExpired, ErrTokenInvalid:
		return 401
	case ErrRateLimited:
		return 429
	case ErrStoreUnavailable, ErrDatabaseConnect:
		return 503
	default:
		return 500
	}
}

// IsOperational 判断是否为需要运维介入的事故（存储故障等）
func IsOperational(err error) bool {
	if err == nil {
		return false
	}

	switch GetCode(err) {
	case ErrStoreUnavailable, ErrDatabaseConnect, ErrUnknown:
		return true
	default:
		return false
	}
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
}

// NewErrorResponse 创建错误响应，存储类故障不向客户端暴露内部细节
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	resp := &ErrorResponse{
		Code:      err.Code,
		Message:   err.Message,
		Details:   err.Details,
		RequestID: requestID,
	}
	if IsOperational(err) {
		resp.Details = ""
	}
	return resp
}
