package common

import (
	"net/http"

	"github.com/aikara/image-vault/internal/errs"
	"github.com/gin-gonic/gin"
)

type Response struct {
	Status string      `json:"status"`
	Msg    string      `json:"msg"`
	Data   interface{} `json:"data,omitempty"`
}

func Respond(c *gin.Context, httpStatus int, status string, message string, data interface{}) {
	c.JSON(httpStatus, Response{
		Status: status,
		Msg:    message,
		Data:   data,
	})
}

// RespondSuccess sends a success response with data.
func RespondSuccess(c *gin.Context, data interface{}) {
	Respond(c, http.StatusOK, "success", "", data)
}

// RespondSuccessMessage sends a success response with message and data.
func RespondSuccessMessage(c *gin.Context, message string, data interface{}) {
	Respond(c, http.StatusOK, "success", message, data)
}

// RespondError sends an error response with message.
func RespondError(c *gin.Context, httpStatus int, message string) {
	Respond(c, httpStatus, "error", message, nil)
}

// RespondWithError 按错误类别映射 HTTP 状态码。
// 内部错误只返回通用消息，细节留在服务端日志。
func RespondWithError(c *gin.Context, err error) {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		RespondError(c, http.StatusBadRequest, errs.MessageOf(err))
	case errs.KindUnsupportedFormat:
		RespondError(c, http.StatusUnsupportedMediaType, errs.MessageOf(err))
	case errs.KindNotFound:
		RespondError(c, http.StatusNotFound, errs.MessageOf(err))
	case errs.KindConflict:
		RespondError(c, http.StatusConflict, errs.MessageOf(err))
	case errs.KindProviderConnection:
		RespondError(c, http.StatusBadGateway, errs.MessageOf(err))
	case errs.KindEncryption, errs.KindDecryption:
		RespondError(c, http.StatusInternalServerError, "credential processing failed")
	default:
		RespondError(c, http.StatusInternalServerError, "internal server error")
	}
}
