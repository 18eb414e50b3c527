package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Коды ответа
const (
	CodeOK                  = 0
	CodeValidation          = 10001
	CodeInvalidState        = 20001
	CodeLocationUnavailable = 20002
	CodeNoUser              = 20003
	CodeRejected            = 30001
	CodeBackendUnavailable  = 30002
	CodeInternal            = 50000
)

// Response единый формат ответа
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// OK 200 успешный ответ
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeOK,
		Message: "success",
		Data:    data,
	})
}

// Error ответ с ошибкой
func Error(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 400
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeValidation, message)
}

// InternalError 500
func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, CodeInternal, "internal server error")
}
