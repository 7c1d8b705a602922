// Package pipeline 定义了课程资料入库的核心流程。
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"lms-assistant-go/internal/config"
	"lms-assistant-go/internal/model"
	"lms-assistant-go/pkg/pdf"
	"lms-assistant-go/pkg/tika"
)

// PageExtractor 把文档字节流解析为按顺序排列的页面。
type PageExtractor interface {
	ExtractPages(ctx context.Context, data []byte, fileName string) ([]model.Page, error)
}

// NewPageExtractor 根据配置选择本地 PDF 解析或 Tika 服务。
func NewPageExtractor(cfg config.Config) (PageExtractor, error) {
	switch strings.ToLower(cfg.Ingest.Extractor) {
	case "", "pdf":
		return pdf.NewExtractor(), nil
	case "tika":
		return tika.NewClient(cfg.Tika), nil
	default:
		return nil, fmt.Errorf("未知的文档解析器: %s", cfg.Ingest.Extractor)
	}
}
