// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"lms-assistant-go/internal/model"
)

// ErrNotFound 表示记录不存在。
var ErrNotFound = errors.New("record not found")

// MaterialRepository 定义了课程资料及其入库状态的持久化操作。
type MaterialRepository interface {
	Create(m *model.Material) error
	FindByID(id uint) (*model.Material, error)
	ListByCourse(courseID uint) ([]model.Material, error)
	MarkPending(id uint) error
	MarkProcessing(id uint) error
	MarkIndexed(id uint, chunkCount int, at time.Time) error
	MarkFailed(id uint, reason string) error
}

type materialRepository struct {
	db *gorm.DB
}

// NewMaterialRepository 创建一个新的 MaterialRepository 实例。
func NewMaterialRepository(db *gorm.DB) MaterialRepository {
	return &materialRepository{db: db}
}

func (r *materialRepository) Create(m *model.Material) error {
	return r.db.Create(m).Error
}

// FindByID 根据主键查找资料，不存在时返回 ErrNotFound。
func (r *materialRepository) FindByID(id uint) (*model.Material, error) {
	var m model.Material
	if err := r.db.First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *materialRepository) ListByCourse(courseID uint) ([]model.Material, error) {
	var list []model.Material
	err := r.db.Where("course_id = ?", courseID).Order("id").Find(&list).Error
	return list, err
}

func (r *materialRepository) MarkPending(id uint) error {
	return r.updates(id, map[string]interface{}{
		"status":     model.MaterialStatusPending,
		"last_error": "",
	})
}

func (r *materialRepository) MarkProcessing(id uint) error {
	return r.updates(id, map[string]interface{}{"status": model.MaterialStatusProcessing})
}

func (r *materialRepository) MarkIndexed(id uint, chunkCount int, at time.Time) error {
	return r.updates(id, map[string]interface{}{
		"status":      model.MaterialStatusIndexed,
		"chunk_count": chunkCount,
		"last_error":  "",
		"indexed_at":  at,
	})
}

func (r *materialRepository) MarkFailed(id uint, reason string) error {
	return r.updates(id, map[string]interface{}{
		"status":     model.MaterialStatusFailed,
		"last_error": reason,
	})
}

// 使用 map 更新，保证零值字段（如清空 last_error）也会被写入。
func (r *materialRepository) updates(id uint, fields map[string]interface{}) error {
	res := r.db.Model(&model.Material{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// MySQL 对未发生变化的行返回 0，需要再确认记录是否存在
	var n int64
	if err := r.db.Model(&model.Material{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
