package kgraph

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
)

const graphMLNamespace = "http://graphml.graphdrawing.org/xmlns"

type graphMLDoc struct {
	XMLName xml.Name     `xml:"graphml"`
	XMLNS   string       `xml:"xmlns,attr"`
	Keys    []graphMLKey `xml:"key"`
	Graph   graphMLGraph `xml:"graph"`
}

type graphMLKey struct {
	ID       string `xml:"id,attr"`
	For      string `xml:"for,attr"`
	AttrName string `xml:"attr.name,attr"`
	AttrType string `xml:"attr.type,attr"`
}

type graphMLGraph struct {
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphMLNode `xml:"node"`
	Edges       []graphMLEdge `xml:"edge"`
}

type graphMLNode struct {
	ID string `xml:"id,attr"`
}

type graphMLEdge struct {
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphMLData `xml:"data"`
}

type graphMLData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// MarshalGraphML 把图编码为 GraphML（无向图，边属性 weight:long）。
func MarshalGraphML(g *Graph) ([]byte, error) {
	doc := graphMLDoc{
		XMLNS: graphMLNamespace,
		Keys:  []graphMLKey{{ID: "d0", For: "edge", AttrName: "weight", AttrType: "long"}},
		Graph: graphMLGraph{EdgeDefault: "undirected"},
	}
	for _, n := range g.Nodes() {
		doc.Graph.Nodes = append(doc.Graph.Nodes, graphMLNode{ID: n})
	}
	for _, e := range g.Edges() {
		doc.Graph.Edges = append(doc.Graph.Edges, graphMLEdge{
			Source: e.U,
			Target: e.V,
			Data:   []graphMLData{{Key: "d0", Value: strconv.Itoa(e.Weight)}},
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode graphml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// UnmarshalGraphML 解析 MarshalGraphML 生成的文档。
func UnmarshalGraphML(data []byte) (*Graph, error) {
	var doc graphMLDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode graphml: %w", err)
	}
	weightKey := ""
	for _, k := range doc.Keys {
		if k.For == "edge" && k.AttrName == "weight" {
			weightKey = k.ID
		}
	}

	g := NewGraph()
	for _, n := range doc.Graph.Nodes {
		g.AddNode(n.ID)
	}
	for _, e := range doc.Graph.Edges {
		if e.Source == e.Target {
			continue
		}
		w := 1
		for _, d := range e.Data {
			if d.Key != weightKey {
				continue
			}
			parsed, err := strconv.Atoi(d.Value)
			if err != nil {
				return nil, fmt.Errorf("decode graphml: edge %s-%s weight %q: %w", e.Source, e.Target, d.Value, err)
			}
			w = parsed
		}
		g.AddNode(e.Source)
		g.AddNode(e.Target)
		g.edges[newEdgeKey(e.Source, e.Target)] = w
	}
	return g, nil
}

// MarshalEntityIndex 把倒排索引编码为缩进 JSON。
func MarshalEntityIndex(index EntityIndex) ([]byte, error) {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode entity index: %w", err)
	}
	return data, nil
}
