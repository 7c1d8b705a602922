// Package pdf 从 PDF 字节流中逐页抽取纯文本。
package pdf

import (
	"bytes"
	"context"
	"fmt"

	lpdf "github.com/ledongthuc/pdf"

	"lms-assistant-go/internal/model"
)

// pageSource 抽象出按页读取文本的能力，便于在测试中替换底层解析器。
type pageSource interface {
	NumPage() int
	PageText(n int) (string, error)
}

type ledongthucSource struct {
	r *lpdf.Reader
}

func (s ledongthucSource) NumPage() int { return s.r.NumPage() }

func (s ledongthucSource) PageText(n int) (string, error) {
	p := s.r.Page(n)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

// Extractor 基于 ledongthuc/pdf 的本地解析器，不依赖外部服务。
type Extractor struct{}

// NewExtractor 创建 PDF 解析器。
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractPages 返回文档的所有页面，页码从 1 开始。无法打开的文档返回 ErrIngest。
func (e *Extractor) ExtractPages(ctx context.Context, data []byte, fileName string) (pages []model.Page, err error) {
	// 底层库遇到损坏的 xref 表会直接 panic
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: 解析 PDF %s 失败: %v", model.ErrIngest, fileName, r)
		}
	}()

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: 文件 %s 为空", model.ErrIngest, fileName)
	}
	r, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: 打开 PDF %s 失败: %v", model.ErrIngest, fileName, err)
	}
	return readPages(ctx, ledongthucSource{r: r}, fileName)
}

func readPages(ctx context.Context, src pageSource, fileName string) ([]model.Page, error) {
	total := src.NumPage()
	if total <= 0 {
		return nil, fmt.Errorf("%w: PDF %s 不包含任何页面", model.ErrIngest, fileName)
	}
	pages := make([]model.Page, 0, total)
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := src.PageText(n)
		if err != nil {
			return nil, fmt.Errorf("%w: 读取 %s 第 %d 页失败: %v", model.ErrIngest, fileName, n, err)
		}
		pages = append(pages, model.Page{Number: n, Text: text})
	}
	return pages, nil
}
