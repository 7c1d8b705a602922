package pipeline

import (
	"context"
	"fmt"

	"lms-assistant-go/internal/model"
	"lms-assistant-go/pkg/embedding"
	"lms-assistant-go/pkg/vectorstore"
)

// Indexer 把分块向量化后写入课程集合。
type Indexer struct {
	embedder embedding.Client
	store    vectorstore.Store
}

// NewIndexer 创建向量写入器。
func NewIndexer(embedder embedding.Client, store vectorstore.Store) *Indexer {
	return &Indexer{embedder: embedder, store: store}
}

// Upsert 写入一份资料的全部分块。分块上的实体沿用图谱阶段的结果，不重新抽取。
// 向量全部生成后才清理该资料的旧记录，因此向量化失败不会留下空洞；
// 其它资料的记录不受影响。向量化或写入失败都归为 ErrIndex，可以安全重试。
func (ix *Indexer) Upsert(ctx context.Context, courseID, materialID uint, title string, chunks []model.Chunk) (int, error) {
	if len(chunks) == 0 {
		if err := ix.store.DeleteMaterial(ctx, courseID, materialID); err != nil {
			return 0, fmt.Errorf("%w: 清理旧向量失败: %v", model.ErrIndex, err)
		}
		return 0, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("%w: 向量化失败: %v", model.ErrIndex, err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("%w: 向量数量 %d 与分块数量 %d 不一致", model.ErrIndex, len(vectors), len(chunks))
	}

	records := make([]model.VectorRecord, len(chunks))
	for i, c := range chunks {
		ents := c.Entities
		if ents == nil {
			ents = []string{}
		}
		records[i] = model.VectorRecord{
			ID:        model.VectorID(materialID, c.Index),
			Embedding: vectors[i],
			Text:      c.Text,
			Metadata: model.VectorMetadata{
				CourseID:      courseID,
				MaterialID:    materialID,
				MaterialTitle: title,
				Page:          c.Page,
				Entities:      ents,
			},
		}
	}
	if err := ix.store.DeleteMaterial(ctx, courseID, materialID); err != nil {
		return 0, fmt.Errorf("%w: 清理旧向量失败: %v", model.ErrIndex, err)
	}
	if err := ix.store.Upsert(ctx, courseID, records); err != nil {
		return 0, fmt.Errorf("%w: 写入向量库失败: %v", model.ErrIndex, err)
	}
	return len(records), nil
}
