// Package kgraph 构建单份资料内的实体共现图以及实体到分块的倒排索引。
package kgraph

import (
	"sort"

	"lms-assistant-go/internal/model"
	"lms-assistant-go/pkg/nlp"
)

// Edge 是无向带权边，U < V。
type Edge struct {
	U      string
	V      string
	Weight int
}

type edgeKey struct{ u, v string }

func newEdgeKey(a, b string) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// Graph 是实体共现图：节点为实体，边权为两个实体同时出现的分块数。不含自环。
type Graph struct {
	nodes map[string]struct{}
	edges map[edgeKey]int
}

// NewGraph 创建空图。
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]struct{}),
		edges: make(map[edgeKey]int),
	}
}

// AddNode 添加节点，已存在时忽略。
func (g *Graph) AddNode(n string) {
	g.nodes[n] = struct{}{}
}

// IncrementEdge 为 (a, b) 的边权加一，边不存在时以权重 1 创建。a == b 时忽略。
func (g *Graph) IncrementEdge(a, b string) {
	if a == b {
		return
	}
	g.AddNode(a)
	g.AddNode(b)
	g.edges[newEdgeKey(a, b)]++
}

// HasNode 判断节点是否存在。
func (g *Graph) HasNode(n string) bool {
	_, ok := g.nodes[n]
	return ok
}

// Weight 返回边权，边不存在时返回 0。
func (g *Graph) Weight(a, b string) int {
	return g.edges[newEdgeKey(a, b)]
}

// NodeCount 返回节点数。
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount 返回边数。
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Nodes 返回排序后的节点列表。
func (g *Graph) Nodes() []string {
	out := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Edges 返回按 (U, V) 排序的边列表。
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for k, w := range g.edges {
		out = append(out, Edge{U: k.u, V: k.v, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].U != out[j].U {
			return out[i].U < out[j].U
		}
		return out[i].V < out[j].V
	})
	return out
}

// EntityIndex 记录每个实体出现过的分块序号（升序）。
type EntityIndex map[string][]int

// Build 为每个分块抽取一次实体并写回 chunk.Entities，供向量入库阶段直接复用；
// 同时构建共现图与倒排索引。共现只在分块内部计算。
func Build(chunks []model.Chunk, ex nlp.Extractor) (*Graph, EntityIndex) {
	g := NewGraph()
	index := make(EntityIndex)
	for i := range chunks {
		ents := nlp.ExtractOrEmpty(ex, chunks[i].Text)
		chunks[i].Entities = ents
		for _, e := range ents {
			g.AddNode(e)
			index[e] = append(index[e], chunks[i].Index)
		}
		for a := 0; a < len(ents); a++ {
			for b := a + 1; b < len(ents); b++ {
				g.IncrementEdge(ents[a], ents[b])
			}
		}
	}
	return g, index
}
