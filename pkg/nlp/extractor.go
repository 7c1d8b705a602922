// Package nlp 负责从文本中抽取命名实体与关键名词。
package nlp

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"github.com/jdkato/prose/v2"

	"lms-assistant-go/internal/model"
	"lms-assistant-go/pkg/log"
)

// Extractor 从一段文本中抽取归一化后的实体集合（已排序、去重）。
type Extractor interface {
	Extract(text string) ([]string, error)
}

// allowedLabels 是保留的命名实体类别。
var allowedLabels = map[string]struct{}{
	"PERSON":      {},
	"ORG":         {},
	"GPE":         {},
	"LOC":         {},
	"PRODUCT":     {},
	"EVENT":       {},
	"WORK_OF_ART": {},
	"NORP":        {},
}

// minNounLength 名词长度需严格大于该值才会作为概念保留。
const minNounLength = 2

// ProseExtractor 组合 prose 的 NER/词性标注与 golem 词形还原。
// 词典在首次调用时加载一次，之后可并发使用。
type ProseExtractor struct {
	once       sync.Once
	lemmatizer *golem.Lemmatizer
	loadErr    error
}

// NewExtractor 创建实体抽取器。模型延迟到第一次 Extract 时加载。
func NewExtractor() *ProseExtractor {
	return &ProseExtractor{}
}

func (e *ProseExtractor) load() error {
	e.once.Do(func() {
		e.lemmatizer, e.loadErr = golem.New(en.New())
		if e.loadErr != nil {
			log.Errorf("[NLP] 加载英文词形还原词典失败: %v", e.loadErr)
		}
	})
	return e.loadErr
}

// Extract 返回命名实体（限定类别）与长度大于 2 的名词词元的并集。
func (e *ProseExtractor) Extract(text string) (ents []string, err error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}
	if err := e.load(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrEntityExtraction, err)
	}

	defer func() {
		if r := recover(); r != nil {
			ents, err = nil, fmt.Errorf("%w: tagger panic: %v", model.ErrEntityExtraction, r)
		}
	}()

	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrEntityExtraction, err)
	}

	var candidates []string
	for _, ent := range doc.Entities() {
		if _, ok := allowedLabels[ent.Label]; ok {
			candidates = append(candidates, ent.Text)
		}
	}
	for _, tok := range doc.Tokens() {
		if len([]rune(tok.Text)) <= minNounLength {
			continue
		}
		switch tok.Tag {
		case "NNP", "NNPS":
			candidates = append(candidates, tok.Text)
		case "NN", "NNS":
			candidates = append(candidates, e.lemmatizer.Lemma(strings.ToLower(tok.Text)))
		}
	}
	return Normalize(candidates), nil
}

// Normalize 去掉首尾空白，过滤不含字母或数字的字符串，区分大小写去重后排序。
func Normalize(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || !hasAlnum(c) {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func hasAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// ExtractOrEmpty 调用抽取器并规范化结果，失败时记录告警并降级为空集合。
func ExtractOrEmpty(ex Extractor, text string) []string {
	if ex == nil {
		return []string{}
	}
	ents, err := ex.Extract(text)
	if err != nil {
		log.Warnf("[NLP] 实体抽取失败，降级为空集合: %v", err)
		return []string{}
	}
	return Normalize(ents)
}
