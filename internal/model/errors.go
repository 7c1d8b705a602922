package model

import "errors"

// 助教检索链路的错误分类。调用方使用 errors.Is 判断，具体原因通过 %w 包装在内。
var (
	// ErrIngest 文档无法打开或不是预期的分页格式，本次入库失败且不应重试。
	ErrIngest = errors.New("ingest error")
	// ErrEntityExtraction 实体抽取模型不可用；调用方应降级为空实体集合。
	ErrEntityExtraction = errors.New("entity extraction error")
	// ErrIndex 向量化服务或向量库不可达，入库失败但可安全重试。
	ErrIndex = errors.New("index error")
	// ErrRetrieval 向量检索失败；查询引擎会先走无分数兜底检索。
	ErrRetrieval = errors.New("retrieval error")
	// ErrCompletion 生成服务不可达，查询失败，不自动重试。
	ErrCompletion = errors.New("completion error")
)
