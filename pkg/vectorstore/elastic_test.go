package vectorstore

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-assistant-go/internal/config"
	"lms-assistant-go/internal/model"
)

// fakeES 记录收到的请求并按路径返回预设响应。
type fakeES struct {
	mu        sync.Mutex
	indices   map[string]bool
	created   []string
	bulkLines []string
	lastQuery map[string]any
	searchOut string
}

func newFakeES() *fakeES {
	return &fakeES{indices: map[string]bool{}}
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	path := strings.Trim(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodHead:
		if f.indices[path] {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && !strings.Contains(path, "/"):
		f.indices[path] = true
		f.created = append(f.created, path)
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	case strings.HasSuffix(path, "_bulk"):
		sc := bufio.NewScanner(r.Body)
		sc.Buffer(make([]byte, 1<<20), 1<<20)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				f.bulkLines = append(f.bulkLines, line)
			}
		}
		_, _ = w.Write([]byte(`{"took":1,"errors":false,"items":[]}`))
	case strings.HasSuffix(path, "_search"):
		index := strings.TrimSuffix(path, "/_search")
		if !f.indices[index] {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception"},"status":404}`))
			return
		}
		f.lastQuery = map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&f.lastQuery)
		_, _ = w.Write([]byte(f.searchOut))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newTestElasticStore(t *testing.T, fake *fakeES) *ElasticStore {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client, err := NewElasticClient(config.ElasticsearchConfig{Addresses: srv.URL})
	require.NoError(t, err)
	return NewElasticStore(client, "lms")
}

func TestElastic_SearchMissingIndexIsEmpty(t *testing.T) {
	s := newTestElasticStore(t, newFakeES())

	res, err := s.Search(context.Background(), 3, []float32{1, 0}, 24, Filter{})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestElastic_UpsertCreatesIndexAndBulkWrites(t *testing.T) {
	fake := newFakeES()
	s := newTestElasticStore(t, fake)

	rec := model.VectorRecord{
		ID:        "material:5_chunk:0",
		Embedding: []float32{0.1, 0.2, 0.3},
		Text:      "Cells divide.",
		Metadata:  model.VectorMetadata{CourseID: 3, MaterialID: 5, MaterialTitle: "Bio", Page: 2},
	}
	require.NoError(t, s.Upsert(context.Background(), 3, []model.VectorRecord{rec}))
	require.NoError(t, s.Upsert(context.Background(), 3, []model.VectorRecord{rec}))

	assert.Equal(t, []string{"lms_course_3"}, fake.created, "index created once")
	require.Len(t, fake.bulkLines, 4)
	assert.Contains(t, fake.bulkLines[0], `"_id":"material:5_chunk:0"`)
	assert.Contains(t, fake.bulkLines[1], `"entities":[]`)
	assert.Contains(t, fake.bulkLines[1], `"page":2`)
}

func TestElastic_SearchParsesHits(t *testing.T) {
	fake := newFakeES()
	fake.indices["lms_course_3"] = true
	fake.searchOut = `{"hits":{"hits":[
		{"_score":0.92,"_source":{"id":"material:5_chunk:1","text":"DNA","course_id":3,"material_id":5,"material_title":"Bio","page":4,"entities":["DNA"]}},
		{"_score":0.40,"_source":{"id":"material:6_chunk:0","text":"Other","course_id":3,"material_id":6,"material_title":"Chem","page":1}}
	]}}`
	s := newTestElasticStore(t, fake)

	res, err := s.Search(context.Background(), 3, []float32{1, 0}, 24, Filter{})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "material:5_chunk:1", res[0].Record.ID)
	assert.InDelta(t, 0.92, res[0].Score, 1e-9)
	assert.Equal(t, []string{"DNA"}, res[0].Record.Metadata.Entities)
	assert.Equal(t, []string{}, res[1].Record.Metadata.Entities)

	knn, ok := fake.lastQuery["knn"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "embedding", knn["field"])
	assert.EqualValues(t, 24, knn["k"])
}

func TestElastic_LookupUsesMatchQuery(t *testing.T) {
	fake := newFakeES()
	fake.indices["lms_course_3"] = true
	fake.searchOut = `{"hits":{"hits":[{"_score":7.1,"_source":{"id":"material:5_chunk:1","text":"DNA","course_id":3,"material_id":5,"material_title":"Bio","page":4}}]}}`
	s := newTestElasticStore(t, fake)

	recs, err := s.Lookup(context.Background(), 3, "what is dna", 24, Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Bio", recs[0].Metadata.MaterialTitle)
	assert.Contains(t, fake.lastQuery, "query")
	assert.NotContains(t, fake.lastQuery, "knn")
}
