package service

import (
	"math"
	"sort"
	"unicode/utf8"

	"lms-assistant-go/internal/model"
)

// 检索排序参数。
const (
	PoolSize         = 24
	Alpha            = 0.7
	Beta             = 0.3
	MinK             = 4
	TokenBudget      = 1500
	CharsPerToken    = 4
	UnscoredBaseline = 0.5
	// overlapSaturation 之后实体重叠带来的增益趋于平缓。
	overlapSaturation = 8
)

// Candidate 是一条候选片段及其得分。
type Candidate struct {
	Record    model.VectorRecord
	BaseScore float64
	Overlap   int
	Score     float64
}

// EstimateTokens 按 4 字符约 1 token 估算片段长度。
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text)/CharsPerToken + 1
}

// OverlapSignal 对实体重叠数做对数阻尼：ln(1+n)/ln(9)。
func OverlapSignal(overlap int) float64 {
	if overlap <= 0 {
		return 0
	}
	return math.Log1p(float64(overlap)) / math.Log(1+overlapSaturation)
}

// HybridScore 组合向量相似度与实体重叠信号。
func HybridScore(base float64, overlap int) float64 {
	return Alpha*base + Beta*OverlapSignal(overlap)
}

// EntityOverlap 返回候选实体与问题实体的交集大小。
func EntityOverlap(recordEntities []string, queryEntities map[string]struct{}) int {
	if len(queryEntities) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(recordEntities))
	n := 0
	for _, e := range recordEntities {
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		if _, ok := queryEntities[e]; ok {
			n++
		}
	}
	return n
}

// Rank 计算混合得分并按得分降序排序，得分相同时按记录 ID 升序。
func Rank(pool []model.ScoredRecord, queryEntities []string) []Candidate {
	qset := make(map[string]struct{}, len(queryEntities))
	for _, e := range queryEntities {
		qset[e] = struct{}{}
	}
	out := make([]Candidate, len(pool))
	for i, sr := range pool {
		overlap := EntityOverlap(sr.Record.Metadata.Entities, qset)
		out[i] = Candidate{
			Record:    sr.Record,
			BaseScore: sr.Score,
			Overlap:   overlap,
			Score:     HybridScore(sr.Score, overlap),
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Record.ID < out[j].Record.ID
	})
	return out
}

// SelectWithinBudget 先无条件保留前 minK 条，再在 token 预算内继续追加，
// 遇到第一条超预算的候选即停止。kCap > 0 时在预算之后截断。
func SelectWithinBudget(ranked []Candidate, minK, budget, kCap int) []Candidate {
	selected := make([]Candidate, 0, len(ranked))
	used := 0
	for _, c := range ranked {
		cost := EstimateTokens(c.Record.Text)
		if len(selected) < minK {
			selected = append(selected, c)
			used += cost
			continue
		}
		if used+cost > budget {
			break
		}
		selected = append(selected, c)
		used += cost
	}
	if kCap > 0 && len(selected) > kCap {
		selected = selected[:kCap]
	}
	if len(selected) == 0 && len(ranked) > 0 {
		n := minK
		if n > len(ranked) {
			n = len(ranked)
		}
		selected = append(selected, ranked[:n]...)
	}
	return selected
}
