package model

import (
	"errors"
	"fmt"
)

// VectorMetadata 是写入向量库的强类型元数据。
type VectorMetadata struct {
	CourseID      uint     `json:"course_id"`
	MaterialID    uint     `json:"material_id"`
	MaterialTitle string   `json:"material_title"`
	Page          int      `json:"page"`
	Entities      []string `json:"entities"`
}

// Validate 在向量库边界校验元数据。
func (m VectorMetadata) Validate() error {
	if m.CourseID == 0 {
		return errors.New("metadata: course_id is required")
	}
	if m.MaterialID == 0 {
		return errors.New("metadata: material_id is required")
	}
	if m.Page < 1 {
		return fmt.Errorf("metadata: page must be >= 1, got %d", m.Page)
	}
	return nil
}

// VectorRecord 对应课程向量集合中的一条记录。
type VectorRecord struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"-"`
	Text      string         `json:"text"`
	Metadata  VectorMetadata `json:"metadata"`
}

// ScoredRecord 是向量检索返回的记录及其基础相关度（0~1）。
type ScoredRecord struct {
	Record VectorRecord
	Score  float64
}
