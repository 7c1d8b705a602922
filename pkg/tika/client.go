// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"lms-assistant-go/internal/config"
	"lms-assistant-go/internal/model"
	"lms-assistant-go/pkg/log"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{
		serverURL:  strings.TrimRight(cfg.ServerURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// ExtractPages 让 Tika 输出 XHTML，并按 <div class="page"> 拆分成页面。
// Tika 无法解析文件时返回 ErrIngest；服务不可达属于可重试错误，原样返回。
func (c *Client) ExtractPages(ctx context.Context, data []byte, fileName string) ([]model.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Content-Type", detectMimeType(fileName))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusUnsupportedMediaType {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: Tika 无法解析 %s [%d]: %s", model.ErrIngest, fileName, resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	return parsePages(resp.Body, fileName)
}

func parsePages(r io.Reader, fileName string) ([]model.Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取 Tika 响应失败: %v", model.ErrIngest, err)
	}

	var pages []model.Page
	doc.Find("div.page").Each(func(i int, s *goquery.Selection) {
		var sb strings.Builder
		s.Find("p").Each(func(_ int, p *goquery.Selection) {
			text := strings.TrimSpace(p.Text())
			if text == "" {
				return
			}
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(text)
		})
		if sb.Len() == 0 {
			sb.WriteString(strings.TrimSpace(s.Text()))
		}
		pages = append(pages, model.Page{Number: i + 1, Text: sb.String()})
	})

	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: Tika 未返回分页内容, 文件 %s 可能不是 PDF", model.ErrIngest, fileName)
	}
	log.Infow("Tika 解析完成", "file", fileName, "pages", len(pages))
	return pages, nil
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
