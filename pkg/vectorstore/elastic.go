package vectorstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"

	"lms-assistant-go/internal/config"
	"lms-assistant-go/internal/model"
	"lms-assistant-go/pkg/log"
)

// NewElasticClient 初始化 Elasticsearch 客户端，Addresses 支持逗号分隔的多个节点。
func NewElasticClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	var addrs []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addrs,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
}

// ElasticStore 每门课程对应一个索引 {prefix}_course_{id}，索引在首次写入时按向量维度创建。
type ElasticStore struct {
	client *elasticsearch.Client
	prefix string
	ready  sync.Map // index name -> struct{}
}

// NewElasticStore 创建基于 Elasticsearch dense_vector 的向量库。
func NewElasticStore(client *elasticsearch.Client, prefix string) *ElasticStore {
	if prefix == "" {
		prefix = "course_materials"
	}
	return &ElasticStore{client: client, prefix: prefix}
}

func (s *ElasticStore) indexName(courseID uint) string {
	return fmt.Sprintf("%s_course_%d", s.prefix, courseID)
}

type esDocument struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	Embedding     []float32 `json:"embedding,omitempty"`
	CourseID      uint      `json:"course_id"`
	MaterialID    uint      `json:"material_id"`
	MaterialTitle string    `json:"material_title"`
	Page          int       `json:"page"`
	Entities      []string  `json:"entities"`
}

func (d esDocument) record() model.VectorRecord {
	ents := d.Entities
	if ents == nil {
		ents = []string{}
	}
	return model.VectorRecord{
		ID:   d.ID,
		Text: d.Text,
		Metadata: model.VectorMetadata{
			CourseID:      d.CourseID,
			MaterialID:    d.MaterialID,
			MaterialTitle: d.MaterialTitle,
			Page:          d.Page,
			Entities:      ents,
		},
	}
}

// ensureIndex 检查索引是否存在，如果不存在则按给定维度创建它
func (s *ElasticStore) ensureIndex(ctx context.Context, index string, dims int) error {
	if _, ok := s.ready.Load(index); ok {
		return nil
	}
	res, err := s.client.Indices.Exists([]string{index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("检查索引是否存在时出错: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		s.ready.Store(index, struct{}{})
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", index, res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"id": { "type": "keyword" },
				"text": { "type": "text" },
				"embedding": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"course_id": { "type": "long" },
				"material_id": { "type": "long" },
				"material_title": { "type": "keyword" },
				"page": { "type": "integer" },
				"entities": { "type": "keyword" }
			}
		}
	}`, dims)

	res, err = s.client.Indices.Create(
		index,
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("创建索引 '%s' 失败: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// 并发创建时另一方已经建好
		if !strings.Contains(string(body), "resource_already_exists_exception") {
			return fmt.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", index, string(body))
		}
	} else {
		log.Infof("索引 '%s' 创建成功, 维度: %d", index, dims)
	}
	s.ready.Store(index, struct{}{})
	return nil
}

// Upsert 使用 bulk index 写入，文档 ID 即记录 ID，因此重复写入会覆盖。
func (s *ElasticStore) Upsert(ctx context.Context, courseID uint, records []model.VectorRecord) error {
	if err := validateRecords(records, courseID); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	index := s.indexName(courseID)
	if err := s.ensureIndex(ctx, index, len(records[0].Embedding)); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		action := map[string]any{"index": map[string]any{"_index": index, "_id": r.ID}}
		doc := esDocument{
			ID:            r.ID,
			Text:          r.Text,
			Embedding:     r.Embedding,
			CourseID:      r.Metadata.CourseID,
			MaterialID:    r.Metadata.MaterialID,
			MaterialTitle: r.Metadata.MaterialTitle,
			Page:          r.Metadata.Page,
			Entities:      r.Metadata.Entities,
		}
		if doc.Entities == nil {
			doc.Entities = []string{}
		}
		if err := enc.Encode(action); err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	res, err := s.client.Bulk(
		&buf,
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("bulk 写入失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk 写入返回错误: %s", res.String())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID    string          `json:"_id"`
			Error json.RawMessage `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("解析 bulk 响应失败: %w", err)
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, v := range item {
				if len(v.Error) > 0 && string(v.Error) != "null" {
					return fmt.Errorf("记录 %s 写入失败: %s", v.ID, string(v.Error))
				}
			}
		}
		return fmt.Errorf("bulk 写入部分失败")
	}
	return nil
}

type searchHit struct {
	Score  float64    `json:"_score"`
	Source esDocument `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

func (s *ElasticStore) search(ctx context.Context, courseID uint, body map[string]any) ([]searchHit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}
	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexName(courseID)),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	// 课程尚未有任何资料入库
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch returned an error: %s %s", res.Status(), string(bodyBytes))
	}

	var esResponse searchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	return esResponse.Hits.Hits, nil
}

func filterClauses(courseID uint, filter Filter) []map[string]any {
	clauses := []map[string]any{{"term": map[string]any{"course_id": courseID}}}
	if filter.MaterialID != 0 {
		clauses = append(clauses, map[string]any{"term": map[string]any{"material_id": filter.MaterialID}})
	}
	return clauses
}

// Search 执行 kNN 检索。cosine 相似度下 ES 的 _score 为 (1+cos)/2，已在 [0,1] 内。
func (s *ElasticStore) Search(ctx context.Context, courseID uint, vector []float32, k int, filter Filter) ([]model.ScoredRecord, error) {
	if k <= 0 {
		return []model.ScoredRecord{}, nil
	}
	numCandidates := k * 10
	if numCandidates < 100 {
		numCandidates = 100
	}
	if numCandidates > 10000 {
		numCandidates = 10000
	}
	hits, err := s.search(ctx, courseID, map[string]any{
		"knn": map[string]any{
			"field":          "embedding",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": numCandidates,
			"filter":         map[string]any{"bool": map[string]any{"filter": filterClauses(courseID, filter)}},
		},
		"size":    k,
		"_source": map[string]any{"excludes": []string{"embedding"}},
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.ScoredRecord, 0, len(hits))
	for _, h := range hits {
		score := h.Score
		if score > 1 {
			score = 1
		}
		out = append(out, model.ScoredRecord{Record: h.Source.record(), Score: score})
	}
	return out, nil
}

// Lookup 用 BM25 全文匹配兜底，分数由调用方统一赋值。
func (s *ElasticStore) Lookup(ctx context.Context, courseID uint, text string, k int, filter Filter) ([]model.VectorRecord, error) {
	if k <= 0 {
		return []model.VectorRecord{}, nil
	}
	hits, err := s.search(ctx, courseID, map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must":   map[string]any{"match": map[string]any{"text": text}},
				"filter": filterClauses(courseID, filter),
			},
		},
		"size":    k,
		"_source": map[string]any{"excludes": []string{"embedding"}},
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.VectorRecord, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Source.record())
	}
	return out, nil
}

func (s *ElasticStore) DeleteMaterial(ctx context.Context, courseID, materialID uint) error {
	body := fmt.Sprintf(`{"query":{"term":{"material_id":%d}}}`, materialID)
	res, err := s.client.DeleteByQuery(
		[]string{s.indexName(courseID)},
		strings.NewReader(body),
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("删除资料向量失败: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("删除资料向量返回错误: %s", res.String())
	}
	return nil
}
