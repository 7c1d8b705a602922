// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 资料入库状态。
const (
	MaterialStatusPending    = 0
	MaterialStatusProcessing = 1
	MaterialStatusIndexed    = 2
	MaterialStatusFailed     = 3
)

// FormatPDF 是唯一会进入检索管道的资料格式。
const FormatPDF = "pdf"

// Material 对应于数据库中的 'course_materials' 表。
// 它记录了课程资料的存储位置以及入库任务的可观察状态。
type Material struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	CourseID   uint       `gorm:"not null;index" json:"courseId"`
	Title      string     `gorm:"type:varchar(255);not null" json:"title"`
	FileName   string     `gorm:"type:varchar(255);not null" json:"fileName"`
	ObjectName string     `gorm:"type:varchar(512);not null" json:"objectName"`
	Format     string     `gorm:"type:varchar(16);not null" json:"format"`
	TotalSize  int64      `gorm:"not null" json:"totalSize"`
	Status     int        `gorm:"type:tinyint;not null;default:0" json:"status"`
	ChunkCount int        `gorm:"not null;default:0" json:"chunkCount"`
	LastError  string     `gorm:"type:text" json:"lastError"`
	UploadedBy uint       `gorm:"not null" json:"uploadedBy"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	IndexedAt  *time.Time `gorm:"default:null" json:"indexedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Material) TableName() string {
	return "course_materials"
}

// StatusText 返回入库状态的可读名称。
func (m Material) StatusText() string {
	switch m.Status {
	case MaterialStatusPending:
		return "pending"
	case MaterialStatusProcessing:
		return "processing"
	case MaterialStatusIndexed:
		return "indexed"
	case MaterialStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}
