package service

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-assistant-go/internal/model"
)

func scored(id string, base float64, text string, entities ...string) model.ScoredRecord {
	return model.ScoredRecord{
		Record: model.VectorRecord{
			ID:   id,
			Text: text,
			Metadata: model.VectorMetadata{
				CourseID:      1,
				MaterialID:    1,
				MaterialTitle: "Biology",
				Page:          1,
				Entities:      entities,
			},
		},
		Score: base,
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(""))
	assert.Equal(t, 101, EstimateTokens(strings.Repeat("a", 400)))
	// 按字符而不是字节计算
	assert.Equal(t, 2, EstimateTokens("细胞细胞"))
}

func TestOverlapSignal(t *testing.T) {
	assert.Equal(t, 0.0, OverlapSignal(0))
	assert.InDelta(t, 1.0, OverlapSignal(8), 1e-9)

	prev := 0.0
	for n := 1; n <= 50; n++ {
		s := OverlapSignal(n)
		assert.GreaterOrEqual(t, s, prev, "n=%d", n)
		prev = s
	}
	assert.LessOrEqual(t, OverlapSignal(9), 1.05)
}

func TestHybridScore(t *testing.T) {
	assert.InDelta(t, 0.63, HybridScore(0.9, 0), 1e-9)
	assert.InDelta(t, 0.7*0.9+0.3*math.Log(3)/math.Log(9), HybridScore(0.9, 2), 1e-9)
}

func TestEntityOverlap(t *testing.T) {
	q := map[string]struct{}{"Cell": {}, "DNA": {}}
	assert.Equal(t, 2, EntityOverlap([]string{"Cell", "DNA", "RNA"}, q))
	assert.Equal(t, 1, EntityOverlap([]string{"Cell", "Cell"}, q))
	assert.Equal(t, 0, EntityOverlap([]string{"cell"}, q))
	assert.Equal(t, 0, EntityOverlap([]string{"Cell"}, nil))
}

func TestRank_OrdersByScoreThenID(t *testing.T) {
	pool := []model.ScoredRecord{
		scored("c", 0.5, "x"),
		scored("b", 0.8, "x"),
		scored("a", 0.5, "x"),
		scored("d", 0.5, "x", "Cell"),
	}
	ranked := Rank(pool, []string{"Cell"})
	require.Len(t, ranked, 4)

	ids := make([]string, len(ranked))
	for i, c := range ranked {
		ids[i] = c.Record.ID
	}
	// d: 0.35 + 0.3*ln2/ln9 ≈ 0.445；b: 0.56；a/c 同分 0.35 按 ID 升序
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)
	assert.Equal(t, 1, ranked[1].Overlap)
	assert.Equal(t, 0.5, ranked[1].BaseScore)
}

func TestSelectWithinBudget_KeepsMinKRegardlessOfCost(t *testing.T) {
	long := strings.Repeat("a", 4000) // 1001 tokens
	var ranked []Candidate
	for i := 0; i < 6; i++ {
		ranked = append(ranked, Candidate{Record: model.VectorRecord{ID: fmt.Sprint(i), Text: long}})
	}
	selected := SelectWithinBudget(ranked, MinK, TokenBudget, 0)
	assert.Len(t, selected, MinK)
}

func TestSelectWithinBudget_StopsAtFirstOverflow(t *testing.T) {
	ranked := []Candidate{
		{Record: model.VectorRecord{ID: "0", Text: strings.Repeat("a", 400)}},  // 101
		{Record: model.VectorRecord{ID: "1", Text: strings.Repeat("a", 4000)}}, // 1001
		{Record: model.VectorRecord{ID: "2", Text: strings.Repeat("a", 4000)}}, // 超出
		{Record: model.VectorRecord{ID: "3", Text: "short"}},
	}
	selected := SelectWithinBudget(ranked, 1, TokenBudget, 0)
	require.Len(t, selected, 2)
	assert.Equal(t, "1", selected[1].Record.ID)
}

func TestSelectWithinBudget_CapAppliedAfterBudget(t *testing.T) {
	var ranked []Candidate
	for i := 0; i < 10; i++ {
		ranked = append(ranked, Candidate{Record: model.VectorRecord{ID: fmt.Sprint(i), Text: "tiny"}})
	}
	assert.Len(t, SelectWithinBudget(ranked, MinK, TokenBudget, 0), 10)
	selected := SelectWithinBudget(ranked, MinK, TokenBudget, 2)
	require.Len(t, selected, 2)
	assert.Equal(t, "0", selected[0].Record.ID)
	assert.Equal(t, "1", selected[1].Record.ID)
}

func TestSelectWithinBudget_Empty(t *testing.T) {
	assert.Empty(t, SelectWithinBudget(nil, MinK, TokenBudget, 0))
}

func TestRankAndSelect_HighOverlapPassagesFirst(t *testing.T) {
	text := strings.Repeat("a", 400)
	var pool []model.ScoredRecord
	for i := 0; i < 19; i++ {
		pool = append(pool, scored(fmt.Sprintf("low-%02d", i), 0.3, text))
	}
	for i := 0; i < 5; i++ {
		pool = append(pool, scored(fmt.Sprintf("high-%02d", i), 0.9, text, "Cell", "DNA"))
	}
	require.Len(t, pool, PoolSize)

	ranked := Rank(pool, []string{"Cell", "DNA", "Protein"})
	selected := SelectWithinBudget(ranked, MinK, TokenBudget, 0)

	for i := 0; i < 5; i++ {
		assert.True(t, strings.HasPrefix(selected[i].Record.ID, "high-"), selected[i].Record.ID)
	}
	// 每条 101 tokens，14 条为 1414，第 15 条会超出 1500
	assert.Len(t, selected, 14)

	used := 0
	for i, c := range selected {
		used += EstimateTokens(c.Record.Text)
		if i > 0 {
			assert.GreaterOrEqual(t, selected[i-1].Score, c.Score)
		}
	}
	assert.LessOrEqual(t, used, TokenBudget)
}
