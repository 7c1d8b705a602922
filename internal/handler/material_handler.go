package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lms-assistant-go/internal/service"
	"lms-assistant-go/pkg/log"
)

// MaterialHandler 负责课程资料的上传、重建索引与状态查询。
type MaterialHandler struct {
	materialService service.MaterialService
}

// NewMaterialHandler 创建一个新的 MaterialHandler 实例。
func NewMaterialHandler(materialService service.MaterialService) *MaterialHandler {
	return &MaterialHandler{materialService: materialService}
}

// Upload 接收 multipart 表单中的 file 字段，保存后投递入库任务。
func (h *MaterialHandler) Upload(c *gin.Context) {
	courseID, valid := parseID(c, "courseId")
	if !valid || !authorizeCourse(c, courseID) {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond(c, http.StatusBadRequest, "缺少文件", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond(c, http.StatusBadRequest, "无法读取上传文件", nil)
		return
	}
	defer file.Close()

	m, err := h.materialService.Upload(c.Request.Context(), service.UploadInput{
		CourseID:   courseID,
		Title:      c.PostForm("title"),
		FileName:   fileHeader.Filename,
		UploadedBy: callerID(c),
		Body:       file,
	})
	if err != nil {
		if m != nil {
			// 资料已保存但任务投递失败，可稍后重建索引
			log.Errorf("[MaterialHandler] 入库任务投递失败, material_id: %d, error: %v", m.ID, err)
			respond(c, http.StatusBadGateway, "资料已保存，但入库任务投递失败", m)
			return
		}
		log.Warnf("[MaterialHandler] 上传失败, course_id: %d, error: %v", courseID, err)
		fail(c, err)
		return
	}
	respond(c, http.StatusAccepted, "accepted", m)
}

// List 列出课程下的全部资料。
func (h *MaterialHandler) List(c *gin.Context) {
	courseID, valid := parseID(c, "courseId")
	if !valid || !authorizeCourse(c, courseID) {
		return
	}
	materials, err := h.materialService.ListByCourse(c.Request.Context(), courseID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, materials)
}

// Get 查询资料及其入库状态。
func (h *MaterialHandler) Get(c *gin.Context) {
	id, valid := parseID(c, "id")
	if !valid {
		return
	}
	view, err := h.materialService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if !authorizeCourse(c, view.Material.CourseID) {
		return
	}
	ok(c, view)
}

// Reindex 重新投递入库任务，用于失败重试或更换了向量化模型之后。
func (h *MaterialHandler) Reindex(c *gin.Context) {
	id, valid := parseID(c, "id")
	if !valid {
		return
	}
	view, err := h.materialService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if !authorizeCourse(c, view.Material.CourseID) {
		return
	}

	m, err := h.materialService.Reindex(c.Request.Context(), id, callerID(c))
	if err != nil {
		if m != nil && !errors.Is(err, service.ErrMaterialNotFound) {
			respond(c, http.StatusBadGateway, "入库任务投递失败", m)
			return
		}
		fail(c, err)
		return
	}
	respond(c, http.StatusAccepted, "accepted", m)
}
