// Package service 实现助教检索、回答生成与资料管理的业务逻辑。
package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lms-assistant-go/internal/config"
	"lms-assistant-go/internal/model"
	"lms-assistant-go/pkg/embedding"
	"lms-assistant-go/pkg/log"
	"lms-assistant-go/pkg/nlp"
	"lms-assistant-go/pkg/vectorstore"
)

var tracer = otel.Tracer("lms-assistant/service")

// Retrieval 是一次检索的结果。
type Retrieval struct {
	Selected      []Candidate
	QueryEntities []string
	// Scored 为 false 表示走了无分数兜底检索，所有候选的基础分为 0.5。
	Scored   bool
	PoolSize int
}

// RetrievalService 定义了查询引擎的接口。
type RetrievalService interface {
	Retrieve(ctx context.Context, courseID uint, question string, kCap int) (*Retrieval, error)
}

type retrievalService struct {
	entities nlp.Extractor
	embedder embedding.Client
	store    vectorstore.Store
	poolSize int
	minK     int
	budget   int
}

// NewRetrievalService 创建查询引擎，配置项为零时使用默认参数。
func NewRetrievalService(entities nlp.Extractor, embedder embedding.Client, store vectorstore.Store, cfg config.RetrievalConfig) RetrievalService {
	s := &retrievalService{
		entities: entities,
		embedder: embedder,
		store:    store,
		poolSize: cfg.PoolSize,
		minK:     cfg.MinK,
		budget:   cfg.TokenBudget,
	}
	if s.poolSize <= 0 {
		s.poolSize = PoolSize
	}
	if s.minK <= 0 {
		s.minK = MinK
	}
	if s.budget <= 0 {
		s.budget = TokenBudget
	}
	return s
}

func (s *retrievalService) Retrieve(ctx context.Context, courseID uint, question string, kCap int) (*Retrieval, error) {
	ctx, span := tracer.Start(ctx, "service.retrieve", trace.WithAttributes(
		attribute.Int64("course.id", int64(courseID)),
		attribute.Int("k_cap", kCap),
	))
	defer span.End()

	queryEntities := nlp.ExtractOrEmpty(s.entities, question)

	pool, scored, err := s.candidatePool(ctx, courseID, question)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	ranked := Rank(pool, queryEntities)
	selected := SelectWithinBudget(ranked, s.minK, s.budget, kCap)
	span.SetAttributes(
		attribute.Int("pool.size", len(pool)),
		attribute.Int("selected", len(selected)),
		attribute.Bool("scored", scored),
	)
	log.Infow("[RetrievalService] 检索完成",
		"course_id", courseID,
		"query_entities", len(queryEntities),
		"pool", len(pool),
		"selected", len(selected),
		"scored", scored,
	)
	return &Retrieval{
		Selected:      selected,
		QueryEntities: queryEntities,
		Scored:        scored,
		PoolSize:      len(pool),
	}, nil
}

// candidatePool 先走带分数的向量检索，失败时退回词法检索并统一赋基础分 0.5。
func (s *retrievalService) candidatePool(ctx context.Context, courseID uint, question string) ([]model.ScoredRecord, bool, error) {
	pool, scoredErr := s.scoredSearch(ctx, courseID, question)
	if scoredErr == nil {
		return pool, true, nil
	}
	log.Warnf("[RetrievalService] 向量检索失败，使用兜底检索: %v", scoredErr)

	records, err := s.store.Lookup(ctx, courseID, question, s.poolSize, vectorstore.Filter{})
	if err != nil {
		return nil, false, fmt.Errorf("%w: 向量检索失败 (%v)，兜底检索也失败: %v", model.ErrRetrieval, scoredErr, err)
	}
	pool = make([]model.ScoredRecord, len(records))
	for i, r := range records {
		pool[i] = model.ScoredRecord{Record: r, Score: UnscoredBaseline}
	}
	return pool, false, nil
}

func (s *retrievalService) scoredSearch(ctx context.Context, courseID uint, question string) ([]model.ScoredRecord, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: 问题为空", model.ErrRetrieval)
	}
	vecs, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("%w: 问题向量化失败: %v", model.ErrRetrieval, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: 向量化返回 %d 个结果", model.ErrRetrieval, len(vecs))
	}
	pool, err := s.store.Search(ctx, courseID, vecs[0], s.poolSize, vectorstore.Filter{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRetrieval, err)
	}
	return pool, nil
}
