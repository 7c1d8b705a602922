package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"lms-assistant-go/internal/config"
)

type geminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func newGeminiClient(ctx context.Context, cfg config.LLMConfig) (*geminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing api key for gemini")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	name := cfg.Model
	if name == "" {
		name = "gemini-1.5-flash"
	}
	model := client.GenerativeModel(name)
	gen := paramsFromConfig(cfg.Generation)
	if gen.Temperature != nil {
		model.SetTemperature(float32(*gen.Temperature))
	}
	if gen.TopP != nil {
		model.SetTopP(float32(*gen.TopP))
	}
	if gen.MaxTokens != nil {
		model.SetMaxOutputTokens(int32(*gen.MaxTokens))
	}
	return &geminiClient{client: client, model: model}, nil
}

func (g *geminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		break
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini returned no text")
	}
	return sb.String(), nil
}

func (g *geminiClient) Close() error {
	return g.client.Close()
}
