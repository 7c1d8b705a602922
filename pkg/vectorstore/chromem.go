package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/philippgille/chromem-go"

	"lms-assistant-go/internal/model"
	"lms-assistant-go/pkg/log"
)

const (
	metaCourseID      = "course_id"
	metaMaterialID    = "material_id"
	metaMaterialTitle = "material_title"
	metaPage          = "page"
	metaEntities      = "entities"
)

// ChromemStore 是嵌入式向量库实现，适合单机部署与测试。
type ChromemStore struct {
	db *chromem.DB
}

// NewChromemStore 在 path 下持久化；path 为空时仅在内存中保存。
func NewChromemStore(path string, compress bool) (*ChromemStore, error) {
	if path == "" {
		return &ChromemStore{db: chromem.NewDB()}, nil
	}
	db, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("打开 chromem 数据库失败: %w", err)
	}
	log.Infof("chromem 向量库已加载, 路径: %s", path)
	return &ChromemStore{db: db}, nil
}

func collectionName(courseID uint) string {
	return "course_" + strconv.FormatUint(uint64(courseID), 10)
}

// 所有记录都自带向量，集合不应再调用嵌入函数。
func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("chromem: embeddings must be supplied by the caller")
}

func (s *ChromemStore) Upsert(ctx context.Context, courseID uint, records []model.VectorRecord) error {
	if err := validateRecords(records, courseID); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	col, err := s.db.GetOrCreateCollection(collectionName(courseID), nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("获取 chromem 集合失败: %w", err)
	}

	ids := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	metadatas := make([]map[string]string, len(records))
	contents := make([]string, len(records))
	for i, r := range records {
		meta, err := encodeMetadata(r.Metadata)
		if err != nil {
			return err
		}
		ids[i] = r.ID
		// chromem 会原地归一化向量，这里复制一份避免改动调用方的数据
		embeddings[i] = append([]float32(nil), r.Embedding...)
		metadatas[i] = meta
		contents[i] = r.Text
	}
	if err := col.Add(ctx, ids, embeddings, metadatas, contents); err != nil {
		return fmt.Errorf("写入 chromem 失败: %w", err)
	}
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, courseID uint, vector []float32, k int, filter Filter) ([]model.ScoredRecord, error) {
	col := s.db.GetCollection(collectionName(courseID), noEmbedding)
	if col == nil || k <= 0 {
		return []model.ScoredRecord{}, nil
	}
	n := col.Count()
	if n == 0 {
		return []model.ScoredRecord{}, nil
	}
	if k > n {
		k = n
	}

	var where map[string]string
	if filter.MaterialID != 0 {
		where = map[string]string{metaMaterialID: strconv.FormatUint(uint64(filter.MaterialID), 10)}
	}
	query := append([]float32(nil), vector...)
	results, err := col.QueryEmbedding(ctx, query, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem 检索失败: %w", err)
	}

	out := make([]model.ScoredRecord, 0, len(results))
	for _, res := range results {
		meta, err := decodeMetadata(res.Metadata)
		if err != nil {
			return nil, fmt.Errorf("记录 %s 元数据损坏: %w", res.ID, err)
		}
		out = append(out, model.ScoredRecord{
			Record: model.VectorRecord{ID: res.ID, Text: res.Content, Metadata: meta},
			Score:  cosineToUnit(float64(res.Similarity)),
		})
	}
	return out, nil
}

// Lookup chromem 只能按向量查询，无法提供词法兜底。
func (s *ChromemStore) Lookup(ctx context.Context, courseID uint, text string, k int, filter Filter) ([]model.VectorRecord, error) {
	return nil, ErrLookupUnsupported
}

func (s *ChromemStore) DeleteMaterial(ctx context.Context, courseID, materialID uint) error {
	col := s.db.GetCollection(collectionName(courseID), noEmbedding)
	if col == nil || col.Count() == 0 {
		return nil
	}
	where := map[string]string{metaMaterialID: strconv.FormatUint(uint64(materialID), 10)}
	if err := col.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("删除 chromem 记录失败: %w", err)
	}
	return nil
}

// Count 返回课程集合中的记录数，集合不存在时为 0。
func (s *ChromemStore) Count(courseID uint) int {
	col := s.db.GetCollection(collectionName(courseID), noEmbedding)
	if col == nil {
		return 0
	}
	return col.Count()
}

// chromem 的元数据只支持 string 值，实体列表以 JSON 保存。
func encodeMetadata(m model.VectorMetadata) (map[string]string, error) {
	ents := m.Entities
	if ents == nil {
		ents = []string{}
	}
	b, err := json.Marshal(ents)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		metaCourseID:      strconv.FormatUint(uint64(m.CourseID), 10),
		metaMaterialID:    strconv.FormatUint(uint64(m.MaterialID), 10),
		metaMaterialTitle: m.MaterialTitle,
		metaPage:          strconv.Itoa(m.Page),
		metaEntities:      string(b),
	}, nil
}

func decodeMetadata(raw map[string]string) (model.VectorMetadata, error) {
	var m model.VectorMetadata
	courseID, err := strconv.ParseUint(raw[metaCourseID], 10, 64)
	if err != nil {
		return m, fmt.Errorf("course_id: %w", err)
	}
	materialID, err := strconv.ParseUint(raw[metaMaterialID], 10, 64)
	if err != nil {
		return m, fmt.Errorf("material_id: %w", err)
	}
	page, err := strconv.Atoi(raw[metaPage])
	if err != nil {
		return m, fmt.Errorf("page: %w", err)
	}
	ents := []string{}
	if s := raw[metaEntities]; s != "" {
		if err := json.Unmarshal([]byte(s), &ents); err != nil {
			return m, fmt.Errorf("entities: %w", err)
		}
	}
	m.CourseID = uint(courseID)
	m.MaterialID = uint(materialID)
	m.MaterialTitle = raw[metaMaterialTitle]
	m.Page = page
	m.Entities = ents
	return m, nil
}
