// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lms-assistant-go/internal/middleware"
	"lms-assistant-go/internal/model"
	"lms-assistant-go/internal/service"
	"lms-assistant-go/pkg/llm"
)

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": data})
}

func ok(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, "success", data)
}

// statusOf 把业务错误映射为 HTTP 状态码与对外提示。
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrUnsupportedFormat), errors.Is(err, service.ErrEmptyFile):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, service.ErrMaterialNotFound):
		return http.StatusNotFound, "资料不存在"
	case errors.Is(err, llm.ErrUnavailable):
		return http.StatusServiceUnavailable, "生成服务暂不可用，请稍后再试"
	case errors.Is(err, model.ErrRetrieval):
		return http.StatusBadGateway, "检索服务不可用"
	case errors.Is(err, model.ErrCompletion):
		return http.StatusBadGateway, "生成服务不可用"
	default:
		return http.StatusInternalServerError, "服务器内部错误"
	}
}

func fail(c *gin.Context, err error) {
	status, message := statusOf(err)
	_ = c.Error(err)
	respond(c, status, message, nil)
}

func parseID(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		respond(c, http.StatusBadRequest, "无效的 "+name, nil)
		return 0, false
	}
	return uint(v), true
}

// authorizeCourse 检查调用方是否属于该课程，不属于时写入 403 响应。
func authorizeCourse(c *gin.Context, courseID uint) bool {
	claims := middleware.ClaimsFrom(c)
	if claims == nil || !claims.CanAccessCourse(courseID) {
		respond(c, http.StatusForbidden, "无权访问该课程", nil)
		return false
	}
	return true
}

func callerID(c *gin.Context) uint {
	if claims := middleware.ClaimsFrom(c); claims != nil {
		return claims.UserID
	}
	return 0
}
