package embedding

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"lms-assistant-go/internal/config"
)

type geminiClient struct {
	client    *genai.Client
	model     *genai.EmbeddingModel
	batchSize int
	limiter   *rate.Limiter
}

func newGeminiClient(ctx context.Context, cfg config.EmbeddingConfig) (*geminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing api key for gemini embeddings")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-004"
	}
	return &geminiClient{
		client:    client,
		model:     client.EmbeddingModel(model),
		batchSize: cfg.BatchSize,
		limiter:   newLimiter(cfg.RequestsPerSecond),
	}, nil
}

// Embed uses BatchEmbedContents so each batch costs a single request.
func (g *geminiClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, group := range batches(texts, g.batchSize) {
		if err := waitLimiter(ctx, g.limiter); err != nil {
			return nil, err
		}
		b := g.model.NewBatch()
		for _, t := range group {
			b.AddContent(genai.Text(t))
		}
		resp, err := g.model.BatchEmbedContents(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("gemini batch embed failed: %w", err)
		}
		if len(resp.Embeddings) != len(group) {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(group))
		}
		for _, e := range resp.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, fmt.Errorf("gemini returned an empty embedding")
			}
			out = append(out, e.Values)
		}
	}
	return out, nil
}

func (g *geminiClient) Close() error {
	return g.client.Close()
}
