package response

import (
	"net/http"

	"Haven/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Success 统一成功响应
func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "message": message, "data": data})
}

// Fail 统一失败响应
func Fail(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusBadRequest, gin.H{"code": -1, "message": message, "data": data})
}

// FailWithError 按业务错误码映射 HTTP 状态
func FailWithError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodeNotActive, errors.CodeValidation:
		status = http.StatusBadRequest
	case errors.CodeIncorrectPIN:
		status = http.StatusForbidden
	}
	c.JSON(status, gin.H{"code": code, "message": errors.GetMessage(err), "data": nil})
}
