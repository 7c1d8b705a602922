package service

import (
	"context"
	"fmt"
	"strings"

	"lms-assistant-go/internal/model"
	"lms-assistant-go/pkg/llm"
)

const promptTemplate = `You are a helpful teaching assistant. Answer the question ONLY using the provided context.
If you are unsure, say you don't know.
After your answer, include a short "Sources:" list with (Material Title — p. X) for each cited chunk.

Question: {question}

Context:
{context}

Answer:`

const contextSeparator = "\n\n---\n\n"

// AnswerService 把选中的片段组装成提示词并调用语言模型。
type AnswerService interface {
	Compose(ctx context.Context, question string, selected []Candidate) (string, []model.Citation, error)
}

type answerService struct {
	llm llm.Client
}

// NewAnswerService 创建回答生成服务。
func NewAnswerService(client llm.Client) AnswerService {
	return &answerService{llm: client}
}

// Compose 只调用一次语言模型，不做流式输出也不重试。
func (s *answerService) Compose(ctx context.Context, question string, selected []Candidate) (string, []model.Citation, error) {
	ctx, span := tracer.Start(ctx, "service.compose")
	defer span.End()

	prompt := BuildPrompt(question, FormatContext(selected))
	answer, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		return "", nil, fmt.Errorf("%w: %v", model.ErrCompletion, err)
	}
	return strings.TrimSpace(answer), BuildCitations(selected), nil
}

// FormatContext 为每个片段生成带标题和页码的块，块之间用分隔线隔开。标题为空时记为 Unknown。
func FormatContext(selected []Candidate) string {
	blocks := make([]string, 0, len(selected))
	for _, c := range selected {
		title := c.Record.Metadata.MaterialTitle
		if title == "" {
			title = "Unknown"
		}
		blocks = append(blocks, fmt.Sprintf("[%s — p.%d]\n%s", title, c.Record.Metadata.Page, c.Record.Text))
	}
	return strings.Join(blocks, contextSeparator)
}

// BuildPrompt 填充固定的提示词模板。
func BuildPrompt(question, contextText string) string {
	r := strings.NewReplacer("{question}", question, "{context}", contextText)
	return r.Replace(promptTemplate)
}

// BuildCitations 按 (资料标题, 页码) 去重，保持首次出现的顺序。
func BuildCitations(selected []Candidate) []model.Citation {
	type key struct {
		title string
		page  int
	}
	seen := make(map[key]struct{}, len(selected))
	out := make([]model.Citation, 0, len(selected))
	for _, c := range selected {
		m := c.Record.Metadata
		k := key{m.MaterialTitle, m.Page}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, model.Citation{MaterialTitle: m.MaterialTitle, Page: m.Page, MaterialID: m.MaterialID})
	}
	return out
}
