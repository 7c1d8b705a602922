package model

import "fmt"

// Page 是文档解析出的一页文本，页码从 1 开始。
type Page struct {
	Number int
	Text   string
}

// Chunk 是切块后的文本片段，是向量化与检索的基本单元。
// Start/End 为该片段在所属页文本中的 rune 偏移，区间左闭右开。
type Chunk struct {
	Index    int
	Page     int
	Start    int
	End      int
	Text     string
	Entities []string
}

// VectorID 生成向量记录的稳定 ID，同一资料同一分块重复入库时会覆盖而非新增。
func VectorID(materialID uint, chunkIndex int) string {
	return fmt.Sprintf("material:%d_chunk:%d", materialID, chunkIndex)
}
