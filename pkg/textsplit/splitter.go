// Package textsplit 实现了按页的递归字符切块。
//
// 切分时依次尝试段落、换行、句子、空格与单字符分隔符，分隔符保留在前一段末尾，
// 因此每个片段都是原页文本的连续子串；相邻片段合并到目标长度后，下一块从上一块
// 末尾附近（不超过 overlap 个字符）重新开始。
package textsplit

import (
	"strings"

	"lms-assistant-go/internal/model"
)

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
)

// DefaultSeparators 按优先级排列，空字符串表示逐字符切分。
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter 是无状态的切块器，可并发使用。
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// Option 配置 Splitter。
type Option func(*Splitter)

// WithChunkSize 设置目标块长度（字符数），非正数被忽略。
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithOverlap 设置相邻块的最大重叠字符数，负数被忽略。
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// New 创建 Splitter。overlap 不小于 chunkSize 时会被压缩到 chunkSize 的四分之一。
func New(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}
	return s
}

// ChunkSize 返回目标块长度。
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap 返回最大重叠长度。
func (s *Splitter) Overlap() int { return s.overlap }

// Chunk 将各页文本切块。块不会跨页，Index 在整份资料内连续编号，
// 纯空白的块被丢弃。
func (s *Splitter) Chunk(pages []model.Page) []model.Chunk {
	var chunks []model.Chunk
	for _, page := range pages {
		runes := []rune(page.Text)
		for _, sp := range s.split(runes) {
			text := string(runes[sp.start:sp.end])
			if strings.TrimSpace(text) == "" {
				continue
			}
			chunks = append(chunks, model.Chunk{
				Index: len(chunks),
				Page:  page.Number,
				Start: sp.start,
				End:   sp.end,
				Text:  text,
			})
		}
	}
	return chunks
}

// span 是 rune 偏移区间 [start, end)。
type span struct {
	start, end int
}

func (sp span) len() int { return sp.end - sp.start }

func (s *Splitter) split(runes []rune) []span {
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.chunkSize {
		return []span{{0, len(runes)}}
	}
	return s.merge(s.pieces(runes, 0, len(runes), s.separators))
}

// pieces 把 [start, end) 切成长度不超过 chunkSize 的连续片段。
func (s *Splitter) pieces(runes []rune, start, end int, separators []string) []span {
	if end-start <= s.chunkSize {
		return []span{{start, end}}
	}

	sepIdx := len(separators) - 1
	for i, sep := range separators {
		if sep == "" || indexRunes(runes[start:end], []rune(sep)) >= 0 {
			sepIdx = i
			break
		}
	}
	sep := []rune(separators[sepIdx])
	rest := separators[sepIdx+1:]

	if len(sep) == 0 {
		out := make([]span, 0, end-start)
		for i := start; i < end; i++ {
			out = append(out, span{i, i + 1})
		}
		return out
	}

	var out []span
	emit := func(p span) {
		if p.len() == 0 {
			return
		}
		if p.len() > s.chunkSize && len(rest) > 0 {
			out = append(out, s.pieces(runes, p.start, p.end, rest)...)
			return
		}
		out = append(out, p)
	}

	pieceStart := start
	for i := start; i+len(sep) <= end; {
		if hasPrefixRunes(runes[i:end], sep) {
			emit(span{pieceStart, i + len(sep)})
			i += len(sep)
			pieceStart = i
			continue
		}
		i++
	}
	emit(span{pieceStart, end})
	return out
}

// merge 把连续片段合并为块，新块保留上一块末尾不超过 overlap 个字符。
func (s *Splitter) merge(pieces []span) []span {
	var chunks []span
	var window []span
	total := 0
	for _, p := range pieces {
		l := p.len()
		if total+l > s.chunkSize && len(window) > 0 {
			chunks = append(chunks, span{window[0].start, window[len(window)-1].end})
			for len(window) > 0 && (total > s.overlap || total+l > s.chunkSize) {
				total -= window[0].len()
				window = window[1:]
			}
		}
		window = append(window, p)
		total += l
	}
	if len(window) > 0 {
		chunks = append(chunks, span{window[0].start, window[len(window)-1].end})
	}
	return chunks
}

func indexRunes(haystack, needle []rune) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if hasPrefixRunes(haystack[i:], needle) {
			return i
		}
	}
	return -1
}

func hasPrefixRunes(s, prefix []rune) bool {
	if len(prefix) > len(s) {
		return false
	}
	for i := range prefix {
		if s[i] != prefix[i] {
			return false
		}
	}
	return true
}
