package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-assistant-go/internal/model"
	"lms-assistant-go/pkg/storage"
	"lms-assistant-go/pkg/tasks"
	"lms-assistant-go/pkg/vectorstore"
)

type fakePages struct {
	pages []model.Page
	err   error
}

func (f fakePages) ExtractPages(context.Context, []byte, string) ([]model.Page, error) {
	return f.pages, f.err
}

// wordEntities 把首字母大写的单词当作实体。
type wordEntities struct{}

func (wordEntities) Extract(text string) ([]string, error) {
	var out []string
	for _, w := range strings.Fields(text) {
		w = strings.Trim(w, ".,")
		if w != "" && w[0] >= 'A' && w[0] <= 'Z' {
			out = append(out, w)
		}
	}
	return out, nil
}

// lengthEmbedder 生成与文本长度相关的确定性向量。
type lengthEmbedder struct {
	err   error
	calls int
}

func (e *lengthEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)%7) + 1, float32(strings.Count(t, " ")) + 1, 1}
	}
	return out, nil
}

type memObjects map[string][]byte

func (m memObjects) Put(_ context.Context, name string, data []byte, _ string) error {
	m[name] = data
	return nil
}

func (m memObjects) Get(_ context.Context, name string) ([]byte, error) {
	b, ok := m[name]
	if !ok {
		return nil, errors.New("no such object")
	}
	return b, nil
}

type statusLog struct {
	processing []uint
	indexed    map[uint]int
	failed     map[uint]string
}

func newStatusLog() *statusLog {
	return &statusLog{indexed: map[uint]int{}, failed: map[uint]string{}}
}

func (s *statusLog) MarkProcessing(id uint) error {
	s.processing = append(s.processing, id)
	return nil
}

func (s *statusLog) MarkIndexed(id uint, n int, _ time.Time) error {
	s.indexed[id] = n
	return nil
}

func (s *statusLog) MarkFailed(id uint, reason string) error {
	s.failed[id] = reason
	return nil
}

type fixture struct {
	proc     *Processor
	store    *vectorstore.ChromemStore
	embedder *lengthEmbedder
	status   *statusLog
	objects  memObjects
	kgDir    string
}

func newFixture(t *testing.T, pages []model.Page) *fixture {
	t.Helper()
	store, err := vectorstore.NewChromemStore("", false)
	require.NoError(t, err)
	f := &fixture{
		store:    store,
		embedder: &lengthEmbedder{},
		status:   newStatusLog(),
		objects:  memObjects{},
		kgDir:    t.TempDir(),
	}
	f.proc = NewProcessor(Options{
		Objects:   f.objects,
		Extractor: fakePages{pages: pages},
		Entities:  wordEntities{},
		Artifacts: storage.NewLocalArtifacts(f.kgDir),
		Indexer:   NewIndexer(f.embedder, store),
		Status:    f.status,
	})
	return f
}

func samplePages() []model.Page {
	long := strings.Repeat("Mitosis splits the Cell nucleus. ", 60)
	return []model.Page{
		{Number: 1, Text: "Cell biology studies the Cell and DNA."},
		{Number: 2, Text: long},
		{Number: 3, Text: "   "},
	}
}

func TestIngest_IdempotentReingestion(t *testing.T) {
	f := newFixture(t, samplePages())
	doc := Document{CourseID: 1, MaterialID: 10, Title: "Bio 101", FileName: "bio.pdf", Format: "pdf", Data: []byte("%PDF")}
	ctx := context.Background()

	first, err := f.proc.Ingest(ctx, doc)
	require.NoError(t, err)
	require.Greater(t, first.Chunks, 1)
	assert.Equal(t, 3, first.Pages)
	countAfterFirst := f.store.Count(1)
	graphFirst, err := os.ReadFile(filepath.Join(f.kgDir, "1", "10", storage.GraphFileName))
	require.NoError(t, err)

	second, err := f.proc.Ingest(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, countAfterFirst, f.store.Count(1))
	assert.Equal(t, first.Chunks, f.store.Count(1))

	graphSecond, err := os.ReadFile(filepath.Join(f.kgDir, "1", "10", storage.GraphFileName))
	require.NoError(t, err)
	assert.Equal(t, graphFirst, graphSecond)
}

func TestIngest_RecordsCarryPageAndEntities(t *testing.T) {
	f := newFixture(t, samplePages())
	_, err := f.proc.Ingest(context.Background(), Document{CourseID: 1, MaterialID: 10, Title: "Bio 101", Format: "pdf"})
	require.NoError(t, err)

	res, err := f.store.Search(context.Background(), 1, []float32{1, 1, 1}, 100, vectorstore.Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, res)

	var sawFirstPage bool
	for _, r := range res {
		assert.Equal(t, "Bio 101", r.Record.Metadata.MaterialTitle)
		assert.Equal(t, uint(10), r.Record.Metadata.MaterialID)
		assert.NotEqual(t, 3, r.Record.Metadata.Page, "whitespace page yields no chunks")
		if r.Record.ID == model.VectorID(10, 0) {
			sawFirstPage = true
			assert.Equal(t, 1, r.Record.Metadata.Page)
			assert.Equal(t, []string{"Cell", "DNA"}, r.Record.Metadata.Entities)
		}
	}
	assert.True(t, sawFirstPage)
}

func TestIngest_OtherMaterialsUntouched(t *testing.T) {
	f := newFixture(t, samplePages())
	ctx := context.Background()

	a, err := f.proc.Ingest(ctx, Document{CourseID: 1, MaterialID: 10, Title: "A", Format: "pdf"})
	require.NoError(t, err)
	b, err := f.proc.Ingest(ctx, Document{CourseID: 1, MaterialID: 11, Title: "B", Format: "pdf"})
	require.NoError(t, err)
	_, err = f.proc.Ingest(ctx, Document{CourseID: 1, MaterialID: 10, Title: "A", Format: "pdf"})
	require.NoError(t, err)

	assert.Equal(t, a.Chunks+b.Chunks, f.store.Count(1))
}

func TestIngest_RejectsNonPDF(t *testing.T) {
	f := newFixture(t, samplePages())
	_, err := f.proc.Ingest(context.Background(), Document{CourseID: 1, MaterialID: 10, Format: "docx"})
	assert.ErrorIs(t, err, model.ErrIngest)
	assert.Zero(t, f.embedder.calls)
}

func TestIngest_EmbeddingFailureKeepsExistingRecords(t *testing.T) {
	f := newFixture(t, samplePages())
	ctx := context.Background()
	doc := Document{CourseID: 1, MaterialID: 10, Title: "A", Format: "pdf"}

	res, err := f.proc.Ingest(ctx, doc)
	require.NoError(t, err)

	f.embedder.err = errors.New("503")
	_, err = f.proc.Ingest(ctx, doc)
	assert.ErrorIs(t, err, model.ErrIndex)
	assert.Equal(t, res.Chunks, f.store.Count(1))
}

func TestProcess_UpdatesStatus(t *testing.T) {
	f := newFixture(t, samplePages())
	f.objects["materials/1/10/bio.pdf"] = []byte("%PDF")

	task := tasks.IngestionTask{CourseID: 1, MaterialID: 10, Title: "Bio", ObjectName: "materials/1/10/bio.pdf", FileName: "bio.pdf", Format: "pdf"}
	require.NoError(t, f.proc.Process(context.Background(), task))

	assert.Equal(t, []uint{10}, f.status.processing)
	assert.Equal(t, f.store.Count(1), f.status.indexed[10])
	assert.Empty(t, f.status.failed)
}

func TestProcess_IngestErrorMarksFailed(t *testing.T) {
	f := newFixture(t, nil)
	f.proc.extractor = fakePages{err: fmt.Errorf("%w: encrypted", model.ErrIngest)}
	f.objects["x"] = []byte("junk")

	err := f.proc.Process(context.Background(), tasks.IngestionTask{CourseID: 1, MaterialID: 10, ObjectName: "x", Format: "pdf"})
	assert.ErrorIs(t, err, model.ErrIngest)
	assert.Contains(t, f.status.failed[10], "encrypted")
}

func TestProcess_DownloadErrorIsRetryable(t *testing.T) {
	f := newFixture(t, samplePages())
	err := f.proc.Process(context.Background(), tasks.IngestionTask{CourseID: 1, MaterialID: 10, ObjectName: "missing", Format: "pdf"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrIngest)
	assert.Empty(t, f.status.failed)

	f.proc.GiveUp(context.Background(), tasks.IngestionTask{MaterialID: 10}, err)
	assert.Contains(t, f.status.failed[10], "no such object")
}
