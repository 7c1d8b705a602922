// Package vectorstore 提供按课程隔离的向量集合读写。
// 每门课程对应一个独立的集合（Elasticsearch 索引或 chromem collection），
// 记录 ID 在集合内唯一，重复写入同一 ID 即覆盖。
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lms-assistant-go/internal/config"
	"lms-assistant-go/internal/model"
)

// Filter 在课程集合内进一步收窄范围，零值表示不过滤。
type Filter struct {
	MaterialID uint
}

// Store 是向量库的统一抽象。
type Store interface {
	// Upsert 写入或覆盖记录，写入前会校验每条记录的元数据。
	Upsert(ctx context.Context, courseID uint, records []model.VectorRecord) error
	// Search 返回与向量最相似的至多 k 条记录，Score 归一化到 [0,1]。
	// 课程集合不存在或为空时返回空结果而非错误。
	Search(ctx context.Context, courseID uint, vector []float32, k int, filter Filter) ([]model.ScoredRecord, error)
	// Lookup 是不依赖向量的词法兜底检索，不返回分数。
	Lookup(ctx context.Context, courseID uint, text string, k int, filter Filter) ([]model.VectorRecord, error)
	// DeleteMaterial 删除某份资料在课程集合中的全部记录。
	DeleteMaterial(ctx context.Context, courseID, materialID uint) error
}

// ErrLookupUnsupported 表示当前实现不支持无向量的兜底检索。
var ErrLookupUnsupported = errors.New("vectorstore: lookup not supported")

// Open 根据配置创建向量库实现。
func Open(cfg config.Config) (Store, error) {
	switch strings.ToLower(cfg.VectorStore.Driver) {
	case "", "elasticsearch":
		client, err := NewElasticClient(cfg.Elasticsearch)
		if err != nil {
			return nil, fmt.Errorf("创建 Elasticsearch 客户端失败: %w", err)
		}
		return NewElasticStore(client, cfg.Elasticsearch.IndexPrefix), nil
	case "chromem":
		return NewChromemStore(cfg.VectorStore.Path, cfg.VectorStore.Compress)
	default:
		return nil, fmt.Errorf("未知的向量库类型: %s", cfg.VectorStore.Driver)
	}
}

func validateRecords(records []model.VectorRecord, courseID uint) error {
	for _, r := range records {
		if r.ID == "" {
			return errors.New("vectorstore: record id is required")
		}
		if len(r.Embedding) == 0 {
			return fmt.Errorf("vectorstore: record %s has no embedding", r.ID)
		}
		if err := r.Metadata.Validate(); err != nil {
			return fmt.Errorf("vectorstore: record %s: %w", r.ID, err)
		}
		if r.Metadata.CourseID != courseID {
			return fmt.Errorf("vectorstore: record %s belongs to course %d, not %d", r.ID, r.Metadata.CourseID, courseID)
		}
	}
	return nil
}

// cosineToUnit 把 [-1,1] 的余弦相似度映射到 [0,1]。
func cosineToUnit(cos float64) float64 {
	s := (1 + cos) / 2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
