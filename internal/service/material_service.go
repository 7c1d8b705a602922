package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"lms-assistant-go/internal/model"
	"lms-assistant-go/internal/repository"
	"lms-assistant-go/pkg/log"
	"lms-assistant-go/pkg/storage"
	"lms-assistant-go/pkg/tasks"
)

// 资料上传与重建索引的业务错误。
var (
	ErrUnsupportedFormat = errors.New("unsupported material format")
	ErrFileTooLarge      = errors.New("file too large")
	ErrEmptyFile         = errors.New("file is empty")
	ErrMaterialNotFound  = errors.New("material not found")
)

// TaskPublisher 负责投递入库任务，由 Kafka 生产者实现。
type TaskPublisher interface {
	PublishIngestion(ctx context.Context, task tasks.IngestionTask) (tasks.IngestionTask, error)
}

// UploadInput 是上传一份资料所需的信息。
type UploadInput struct {
	CourseID   uint
	Title      string
	FileName   string
	UploadedBy uint
	Body       io.Reader
}

// MaterialView 是资料状态查询的返回值。
type MaterialView struct {
	Material    *model.Material `json:"material"`
	Status      string          `json:"status"`
	DownloadURL string          `json:"downloadUrl,omitempty"`
}

// MaterialService 定义了课程资料的上传、重建索引与状态查询。
type MaterialService interface {
	Upload(ctx context.Context, in UploadInput) (*model.Material, error)
	Reindex(ctx context.Context, id uint, requestedBy uint) (*model.Material, error)
	Get(ctx context.Context, id uint) (*MaterialView, error)
	ListByCourse(ctx context.Context, courseID uint) ([]model.Material, error)
}

// URLSigner 生成对象的临时下载链接，可选。
type URLSigner interface {
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

type materialService struct {
	repo         repository.MaterialRepository
	objects      storage.ObjectStore
	signer       URLSigner
	publisher    TaskPublisher
	anyFormat    bool
	maxFileBytes int64
}

// NewMaterialService 创建资料服务。anyFormat 为 false 时只接受 PDF。
func NewMaterialService(repo repository.MaterialRepository, objects storage.ObjectStore, signer URLSigner, publisher TaskPublisher, anyFormat bool, maxFileBytes int64) MaterialService {
	return &materialService{
		repo:         repo,
		objects:      objects,
		signer:       signer,
		publisher:    publisher,
		anyFormat:    anyFormat,
		maxFileBytes: maxFileBytes,
	}
}

// FormatOf 根据扩展名推断资料格式，统一为小写且不带点。
func FormatOf(fileName string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
}

func (s *materialService) Upload(ctx context.Context, in UploadInput) (*model.Material, error) {
	format := FormatOf(in.FileName)
	if !s.anyFormat && format != model.FormatPDF {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	body := in.Body
	if s.maxFileBytes > 0 {
		body = io.LimitReader(in.Body, s.maxFileBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件失败: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if s.maxFileBytes > 0 && int64(len(data)) > s.maxFileBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrFileTooLarge, s.maxFileBytes)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(in.FileName), filepath.Ext(in.FileName))
	}
	objectName := storage.MaterialObjectName(in.CourseID, uuid.NewString(), in.FileName)
	contentType := "application/octet-stream"
	if format == model.FormatPDF {
		contentType = "application/pdf"
	}
	if err := s.objects.Put(ctx, objectName, data, contentType); err != nil {
		return nil, err
	}

	m := &model.Material{
		CourseID:   in.CourseID,
		Title:      title,
		FileName:   filepath.Base(in.FileName),
		ObjectName: objectName,
		Format:     format,
		TotalSize:  int64(len(data)),
		Status:     model.MaterialStatusPending,
		UploadedBy: in.UploadedBy,
	}
	if err := s.repo.Create(m); err != nil {
		return nil, fmt.Errorf("保存资料记录失败: %w", err)
	}
	log.Infow("[MaterialService] 资料已上传", "material_id", m.ID, "course_id", m.CourseID, "size", m.TotalSize)

	if err := s.enqueue(ctx, m, in.UploadedBy); err != nil {
		return m, err
	}
	return m, nil
}

func (s *materialService) Reindex(ctx context.Context, id uint, requestedBy uint) (*model.Material, error) {
	m, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.MarkPending(id); err != nil {
		return nil, fmt.Errorf("更新资料状态失败: %w", err)
	}
	m.Status = model.MaterialStatusPending
	m.LastError = ""
	if err := s.enqueue(ctx, m, requestedBy); err != nil {
		return m, err
	}
	return m, nil
}

func (s *materialService) Get(ctx context.Context, id uint) (*MaterialView, error) {
	m, err := s.find(id)
	if err != nil {
		return nil, err
	}
	view := &MaterialView{Material: m, Status: m.StatusText()}
	if s.signer != nil {
		if u, err := s.signer.PresignedURL(ctx, m.ObjectName, time.Hour); err == nil {
			view.DownloadURL = u
		}
	}
	return view, nil
}

func (s *materialService) ListByCourse(ctx context.Context, courseID uint) ([]model.Material, error) {
	return s.repo.ListByCourse(courseID)
}

func (s *materialService) find(id uint) (*model.Material, error) {
	m, err := s.repo.FindByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMaterialNotFound
		}
		return nil, err
	}
	return m, nil
}

// enqueue 投递任务失败时把资料标记为失败，之后可以通过重建索引重新投递。
func (s *materialService) enqueue(ctx context.Context, m *model.Material, requestedBy uint) error {
	task, err := s.publisher.PublishIngestion(ctx, tasks.IngestionTask{
		CourseID:    m.CourseID,
		MaterialID:  m.ID,
		Title:       m.Title,
		ObjectName:  m.ObjectName,
		FileName:    m.FileName,
		Format:      m.Format,
		RequestedBy: requestedBy,
	})
	if err != nil {
		reason := fmt.Sprintf("投递入库任务失败: %v", err)
		if serr := s.repo.MarkFailed(m.ID, reason); serr != nil {
			log.Errorf("[MaterialService] 更新资料状态失败: %v", serr)
		}
		m.Status = model.MaterialStatusFailed
		m.LastError = reason
		return fmt.Errorf("投递入库任务失败: %w", err)
	}
	log.Infow("[MaterialService] 入库任务已投递", "task_id", task.TaskID, "material_id", m.ID)
	return nil
}
