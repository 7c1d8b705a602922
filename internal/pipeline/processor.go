package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lms-assistant-go/internal/model"
	"lms-assistant-go/pkg/kgraph"
	"lms-assistant-go/pkg/log"
	"lms-assistant-go/pkg/nlp"
	"lms-assistant-go/pkg/storage"
	"lms-assistant-go/pkg/tasks"
	"lms-assistant-go/pkg/textsplit"
)

var tracer = otel.Tracer("lms-assistant/pipeline")

// StatusRecorder 记录资料的入库状态，由 MaterialRepository 实现。
type StatusRecorder interface {
	MarkProcessing(id uint) error
	MarkIndexed(id uint, chunkCount int, at time.Time) error
	MarkFailed(id uint, reason string) error
}

// Document 是一次入库的输入。
type Document struct {
	CourseID   uint
	MaterialID uint
	Title      string
	FileName   string
	Format     string
	Data       []byte
}

// Result 汇总一次入库的产出。
type Result struct {
	Pages    int
	Chunks   int
	Entities int
	Edges    int
}

// Processor 封装了资料入库的所有依赖和逻辑。
type Processor struct {
	objects      storage.ObjectStore
	extractor    PageExtractor
	splitter     *textsplit.Splitter
	entities     nlp.Extractor
	artifacts    storage.ArtifactStore
	indexer      *Indexer
	status       StatusRecorder
	anyFormat    bool
	maxFileBytes int64
}

// Options 是构造 Processor 所需的依赖。
type Options struct {
	Objects      storage.ObjectStore
	Extractor    PageExtractor
	Splitter     *textsplit.Splitter
	Entities     nlp.Extractor
	Artifacts    storage.ArtifactStore
	Indexer      *Indexer
	Status       StatusRecorder
	AnyFormat    bool // 为 true 时不限制资料格式（Tika 解析器）
	MaxFileBytes int64
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(opts Options) *Processor {
	splitter := opts.Splitter
	if splitter == nil {
		splitter = textsplit.New()
	}
	return &Processor{
		objects:      opts.Objects,
		extractor:    opts.Extractor,
		splitter:     splitter,
		entities:     opts.Entities,
		artifacts:    opts.Artifacts,
		indexer:      opts.Indexer,
		status:       opts.Status,
		anyFormat:    opts.AnyFormat,
		maxFileBytes: opts.MaxFileBytes,
	}
}

// Process 处理一个入库任务：下载原文件、入库并更新资料状态。
func (p *Processor) Process(ctx context.Context, task tasks.IngestionTask) error {
	log.Infof("[Processor] 开始处理资料, MaterialID: %d, CourseID: %d, FileName: %s", task.MaterialID, task.CourseID, task.FileName)
	if err := p.status.MarkProcessing(task.MaterialID); err != nil {
		log.Warnf("[Processor] 更新资料状态为 processing 失败: %v", err)
	}

	data, err := p.objects.Get(ctx, task.ObjectName)
	if err != nil {
		return fmt.Errorf("从对象存储下载资料失败: %w", err)
	}
	log.Infof("[Processor] 资料下载成功, 大小: %d 字节", len(data))

	res, err := p.Ingest(ctx, Document{
		CourseID:   task.CourseID,
		MaterialID: task.MaterialID,
		Title:      task.Title,
		FileName:   task.FileName,
		Format:     task.Format,
		Data:       data,
	})
	if err != nil {
		if errors.Is(err, model.ErrIngest) {
			if serr := p.status.MarkFailed(task.MaterialID, err.Error()); serr != nil {
				log.Warnf("[Processor] 更新资料状态为 failed 失败: %v", serr)
			}
		}
		return err
	}

	if err := p.status.MarkIndexed(task.MaterialID, res.Chunks, time.Now()); err != nil {
		return fmt.Errorf("更新资料状态失败: %w", err)
	}
	log.Infow("[Processor] 资料入库完成",
		"material_id", task.MaterialID,
		"pages", res.Pages,
		"chunks", res.Chunks,
		"entities", res.Entities,
		"edges", res.Edges,
	)
	return nil
}

// GiveUp 在任务不再重试时把资料标记为失败。
func (p *Processor) GiveUp(ctx context.Context, task tasks.IngestionTask, err error) {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	if serr := p.status.MarkFailed(task.MaterialID, reason); serr != nil {
		log.Errorf("[Processor] 更新资料状态为 failed 失败: material_id=%d, error=%v", task.MaterialID, serr)
	}
}

// Ingest 对一份资料执行完整的入库流程。重复执行结果一致：
// 图谱产物整体覆盖，该资料在课程集合中的记录整体替换。
func (p *Processor) Ingest(ctx context.Context, doc Document) (Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.ingest", trace.WithAttributes(
		attribute.Int64("course.id", int64(doc.CourseID)),
		attribute.Int64("material.id", int64(doc.MaterialID)),
	))
	defer span.End()

	res, err := p.ingest(ctx, doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (p *Processor) ingest(ctx context.Context, doc Document) (Result, error) {
	var res Result
	if !p.anyFormat && !strings.EqualFold(doc.Format, model.FormatPDF) {
		return res, fmt.Errorf("%w: 不支持的资料格式 %q", model.ErrIngest, doc.Format)
	}
	if p.maxFileBytes > 0 && int64(len(doc.Data)) > p.maxFileBytes {
		return res, fmt.Errorf("%w: 文件大小 %d 超过上限 %d", model.ErrIngest, len(doc.Data), p.maxFileBytes)
	}

	// 1. 解析页面
	_, span := tracer.Start(ctx, "pipeline.extract_pages")
	pages, err := p.extractor.ExtractPages(ctx, doc.Data, doc.FileName)
	span.End()
	if err != nil {
		return res, err
	}
	res.Pages = len(pages)

	// 2. 切块
	chunks := p.splitter.Chunk(pages)
	res.Chunks = len(chunks)
	log.Infof("[Processor] 文本分块完成, 页数: %d, 分块数: %d", len(pages), len(chunks))

	// 3. 实体与共现图，实体会缓存在 chunk 上供向量入库复用
	_, span = tracer.Start(ctx, "pipeline.build_graph")
	graph, index := kgraph.Build(chunks, p.entities)
	span.End()
	res.Entities = graph.NodeCount()
	res.Edges = graph.EdgeCount()

	graphML, err := kgraph.MarshalGraphML(graph)
	if err != nil {
		return res, fmt.Errorf("序列化知识图谱失败: %w", err)
	}
	indexJSON, err := kgraph.MarshalEntityIndex(index)
	if err != nil {
		return res, fmt.Errorf("序列化实体索引失败: %w", err)
	}
	if err := p.artifacts.SaveArtifacts(ctx, doc.CourseID, doc.MaterialID, graphML, indexJSON); err != nil {
		return res, fmt.Errorf("保存知识图谱失败: %w", err)
	}

	// 4. 向量入库
	ctx, span = tracer.Start(ctx, "pipeline.upsert_vectors")
	defer span.End()
	if _, err := p.indexer.Upsert(ctx, doc.CourseID, doc.MaterialID, doc.Title, chunks); err != nil {
		return res, err
	}
	return res, nil
}
