package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-assistant-go/internal/model"
	"lms-assistant-go/internal/repository"
	"lms-assistant-go/pkg/tasks"
)

type memMaterials struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*model.Material
}

func newMemMaterials() *memMaterials {
	return &memMaterials{rows: make(map[uint]*model.Material)}
}

func (m *memMaterials) Create(mat *model.Material) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	mat.ID = m.nextID
	cp := *mat
	m.rows[mat.ID] = &cp
	return nil
}

func (m *memMaterials) FindByID(id uint) (*model.Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memMaterials) ListByCourse(courseID uint) ([]model.Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Material
	for _, row := range m.rows {
		if row.CourseID == courseID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memMaterials) set(id uint, fn func(*model.Material)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(row)
	return nil
}

func (m *memMaterials) MarkPending(id uint) error {
	return m.set(id, func(r *model.Material) {
		r.Status = model.MaterialStatusPending
		r.LastError = ""
	})
}

func (m *memMaterials) MarkProcessing(id uint) error {
	return m.set(id, func(r *model.Material) { r.Status = model.MaterialStatusProcessing })
}

func (m *memMaterials) MarkIndexed(id uint, n int, at time.Time) error {
	return m.set(id, func(r *model.Material) {
		r.Status = model.MaterialStatusIndexed
		r.ChunkCount = n
		r.IndexedAt = &at
	})
}

func (m *memMaterials) MarkFailed(id uint, reason string) error {
	return m.set(id, func(r *model.Material) {
		r.Status = model.MaterialStatusFailed
		r.LastError = reason
	})
}

type putObjects struct {
	objects map[string][]byte
	types   map[string]string
}

func newPutObjects() *putObjects {
	return &putObjects{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (p *putObjects) Put(_ context.Context, name string, data []byte, contentType string) error {
	p.objects[name] = data
	p.types[name] = contentType
	return nil
}

func (p *putObjects) Get(_ context.Context, name string) ([]byte, error) {
	data, ok := p.objects[name]
	if !ok {
		return nil, errors.New("no such object")
	}
	return data, nil
}

type fakeSigner struct{}

func (fakeSigner) PresignedURL(_ context.Context, name string, _ time.Duration) (string, error) {
	return "https://minio.local/" + name, nil
}

type fakePublisher struct {
	err   error
	tasks []tasks.IngestionTask
}

func (p *fakePublisher) PublishIngestion(_ context.Context, task tasks.IngestionTask) (tasks.IngestionTask, error) {
	if p.err != nil {
		return task, p.err
	}
	task.TaskID = "task-1"
	p.tasks = append(p.tasks, task)
	return task, nil
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, "pdf", FormatOf("Lecture 1.PDF"))
	assert.Equal(t, "docx", FormatOf("notes.docx"))
	assert.Equal(t, "", FormatOf("README"))
}

func TestUpload_StoresAndEnqueues(t *testing.T) {
	repo, objects, pub := newMemMaterials(), newPutObjects(), &fakePublisher{}
	svc := NewMaterialService(repo, objects, nil, pub, false, 1<<20)

	m, err := svc.Upload(context.Background(), UploadInput{
		CourseID:   3,
		FileName:   "Cell Biology.pdf",
		UploadedBy: 11,
		Body:       strings.NewReader("%PDF-1.4 body"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Cell Biology", m.Title)
	assert.Equal(t, model.MaterialStatusPending, m.Status)
	assert.True(t, strings.HasPrefix(m.ObjectName, "materials/3/"))
	assert.True(t, strings.HasSuffix(m.ObjectName, "/Cell Biology.pdf"))
	assert.Equal(t, []byte("%PDF-1.4 body"), objects.objects[m.ObjectName])
	assert.Equal(t, "application/pdf", objects.types[m.ObjectName])

	require.Len(t, pub.tasks, 1)
	task := pub.tasks[0]
	assert.Equal(t, m.ID, task.MaterialID)
	assert.Equal(t, uint(3), task.CourseID)
	assert.Equal(t, m.ObjectName, task.ObjectName)
	assert.Equal(t, "pdf", task.Format)
	assert.Equal(t, uint(11), task.RequestedBy)
}

func TestUpload_RejectsNonPDF(t *testing.T) {
	objects := newPutObjects()
	svc := NewMaterialService(newMemMaterials(), objects, nil, &fakePublisher{}, false, 0)

	_, err := svc.Upload(context.Background(), UploadInput{CourseID: 1, FileName: "slides.pptx", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Empty(t, objects.objects)
}

func TestUpload_AnyFormatAllowed(t *testing.T) {
	objects := newPutObjects()
	svc := NewMaterialService(newMemMaterials(), objects, nil, &fakePublisher{}, true, 0)

	m, err := svc.Upload(context.Background(), UploadInput{CourseID: 1, Title: "Slides", FileName: "slides.pptx", Body: strings.NewReader("x")})
	require.NoError(t, err)
	assert.Equal(t, "pptx", m.Format)
	assert.Equal(t, "application/octet-stream", objects.types[m.ObjectName])
}

func TestUpload_SizeLimits(t *testing.T) {
	svc := NewMaterialService(newMemMaterials(), newPutObjects(), nil, &fakePublisher{}, false, 4)

	_, err := svc.Upload(context.Background(), UploadInput{CourseID: 1, FileName: "a.pdf", Body: bytes.NewReader(make([]byte, 5))})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = svc.Upload(context.Background(), UploadInput{CourseID: 1, FileName: "a.pdf", Body: bytes.NewReader(nil)})
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = svc.Upload(context.Background(), UploadInput{CourseID: 1, FileName: "a.pdf", Body: bytes.NewReader(make([]byte, 4))})
	assert.NoError(t, err)
}

func TestUpload_PublishFailureMarksFailed(t *testing.T) {
	repo := newMemMaterials()
	svc := NewMaterialService(repo, newPutObjects(), nil, &fakePublisher{err: errors.New("broker down")}, false, 0)

	m, err := svc.Upload(context.Background(), UploadInput{CourseID: 1, FileName: "a.pdf", Body: strings.NewReader("x")})
	require.Error(t, err)
	require.NotNil(t, m)

	stored, ferr := repo.FindByID(m.ID)
	require.NoError(t, ferr)
	assert.Equal(t, model.MaterialStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "broker down")
}

func TestReindex(t *testing.T) {
	repo, pub := newMemMaterials(), &fakePublisher{}
	svc := NewMaterialService(repo, newPutObjects(), nil, pub, false, 0)

	m, err := svc.Upload(context.Background(), UploadInput{CourseID: 2, FileName: "a.pdf", Body: strings.NewReader("x")})
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(m.ID, "bad page"))

	again, err := svc.Reindex(context.Background(), m.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, model.MaterialStatusPending, again.Status)
	assert.Empty(t, again.LastError)
	require.Len(t, pub.tasks, 2)
	assert.Equal(t, uint(5), pub.tasks[1].RequestedBy)

	_, err = svc.Reindex(context.Background(), 999, 5)
	assert.ErrorIs(t, err, ErrMaterialNotFound)
}

func TestGet(t *testing.T) {
	repo := newMemMaterials()
	svc := NewMaterialService(repo, newPutObjects(), fakeSigner{}, &fakePublisher{}, false, 0)

	m, err := svc.Upload(context.Background(), UploadInput{CourseID: 2, FileName: "a.pdf", Body: strings.NewReader("x")})
	require.NoError(t, err)
	require.NoError(t, repo.MarkIndexed(m.ID, 12, time.Now()))

	view, err := svc.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, "indexed", view.Status)
	assert.Equal(t, 12, view.Material.ChunkCount)
	assert.Equal(t, "https://minio.local/"+m.ObjectName, view.DownloadURL)

	_, err = svc.Get(context.Background(), 404)
	assert.ErrorIs(t, err, ErrMaterialNotFound)
}
