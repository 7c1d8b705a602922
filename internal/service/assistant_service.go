package service

import (
	"context"

	"lms-assistant-go/internal/model"
)

// AssistantService 串联查询引擎与回答生成。
type AssistantService interface {
	Query(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error)
	Retrieve(ctx context.Context, req model.QueryRequest) (*model.RetrieveResponse, error)
}

type assistantService struct {
	retrieval RetrievalService
	answers   AnswerService
}

// NewAssistantService 创建助教服务。
func NewAssistantService(retrieval RetrievalService, answers AnswerService) AssistantService {
	return &assistantService{retrieval: retrieval, answers: answers}
}

// Query 检索上下文并生成回答。课程没有任何资料时仍会返回结构完整的响应。
func (s *assistantService) Query(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error) {
	r, err := s.retrieval.Retrieve(ctx, req.CourseID, req.Question, req.K)
	if err != nil {
		return nil, err
	}
	answer, sources, err := s.answers.Compose(ctx, req.Question, r.Selected)
	if err != nil {
		return nil, err
	}
	return &model.QueryResponse{
		Answer:       answer,
		Sources:      sources,
		UsedEntities: r.QueryEntities,
	}, nil
}

// Retrieve 只返回排序后的片段，不调用语言模型。
func (s *assistantService) Retrieve(ctx context.Context, req model.QueryRequest) (*model.RetrieveResponse, error) {
	r, err := s.retrieval.Retrieve(ctx, req.CourseID, req.Question, req.K)
	if err != nil {
		return nil, err
	}
	passages := make([]model.PassageDTO, 0, len(r.Selected))
	for _, c := range r.Selected {
		m := c.Record.Metadata
		passages = append(passages, model.PassageDTO{
			ID:            c.Record.ID,
			MaterialID:    m.MaterialID,
			MaterialTitle: m.MaterialTitle,
			Page:          m.Page,
			Text:          c.Record.Text,
			Entities:      m.Entities,
			BaseScore:     c.BaseScore,
			Score:         c.Score,
			Overlap:       c.Overlap,
		})
	}
	return &model.RetrieveResponse{
		Passages:     passages,
		UsedEntities: r.QueryEntities,
		Scored:       r.Scored,
	}, nil
}
