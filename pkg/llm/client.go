// Package llm provides clients for non-streaming completions against Large Language Models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"lms-assistant-go/internal/config"
	"lms-assistant-go/pkg/log"
)

// Client defines the interface for an LLM client.
type Client interface {
	// Complete sends a single prompt and returns the full generated text.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// paramsFromConfig 仅注入非零配置项
func paramsFromConfig(g config.LLMGenerationConfig) GenerationParams {
	var p GenerationParams
	if g.Temperature != 0 {
		t := g.Temperature
		p.Temperature = &t
	}
	if g.TopP != 0 {
		tp := g.TopP
		p.TopP = &tp
	}
	if g.MaxTokens != 0 {
		m := g.MaxTokens
		p.MaxTokens = &m
	}
	return p
}

// NewClient creates a new LLM client based on the provider in the config.
// Every provider is wrapped in a circuit breaker.
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	var inner Client
	switch strings.ToLower(cfg.Provider) {
	case "", "openai", "deepseek":
		inner = newOpenAICompatibleClient(cfg)
	case "gemini":
		g, err := newGeminiClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		inner = g
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	return WithBreaker(inner, "llm-"+cfg.Provider), nil
}

// ErrUnavailable 熔断器处于打开状态时返回。
var ErrUnavailable = errors.New("llm temporarily unavailable")

type breakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
}

// WithBreaker wraps c so that repeated failures stop hitting the upstream for a while.
func WithBreaker(c Client, name string) Client {
	return &breakerClient{
		inner: c,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 2,
			Interval:    30 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				// 调用方取消不计为上游故障
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warnw("LLM 熔断器状态变化", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (b *breakerClient) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Complete(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", err
	}
	return out.(string), nil
}
