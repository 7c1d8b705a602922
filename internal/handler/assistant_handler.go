package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lms-assistant-go/internal/model"
	"lms-assistant-go/internal/service"
	"lms-assistant-go/pkg/log"
)

// AssistantHandler 处理课程助教的问答与检索请求。
type AssistantHandler struct {
	assistantService service.AssistantService
}

// NewAssistantHandler 创建一个新的 AssistantHandler 实例。
func NewAssistantHandler(assistantService service.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistantService: assistantService}
}

func (h *AssistantHandler) bind(c *gin.Context) (model.QueryRequest, bool) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "无效的请求负载", nil)
		return req, false
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" || req.K < 0 {
		respond(c, http.StatusBadRequest, "问题不能为空且 k 不能为负数", nil)
		return req, false
	}
	if !authorizeCourse(c, req.CourseID) {
		return req, false
	}
	return req, true
}

// Query 检索课程资料并生成带引用的回答。
func (h *AssistantHandler) Query(c *gin.Context) {
	req, valid := h.bind(c)
	if !valid {
		return
	}
	log.Infof("[AssistantHandler] 收到问答请求, course_id: %d, k: %d", req.CourseID, req.K)

	resp, err := h.assistantService.Query(c.Request.Context(), req)
	if err != nil {
		log.Errorf("[AssistantHandler] 问答失败, course_id: %d, error: %v", req.CourseID, err)
		fail(c, err)
		return
	}
	ok(c, resp)
}

// Retrieve 只返回排序后的检索片段，便于调试排序效果。
func (h *AssistantHandler) Retrieve(c *gin.Context) {
	req, valid := h.bind(c)
	if !valid {
		return
	}

	resp, err := h.assistantService.Retrieve(c.Request.Context(), req)
	if err != nil {
		log.Errorf("[AssistantHandler] 检索失败, course_id: %d, error: %v", req.CourseID, err)
		fail(c, err)
		return
	}
	ok(c, resp)
}
