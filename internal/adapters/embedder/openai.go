package embedder

import (
	"context"
	"fmt"
	"time"

	"social-pilot/internal/domain"
	openai "social-pilot/internal/infra/openai"
)

type embeddingClient interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequest) (openai.EmbeddingResponse, error)
}

// OpenAI реализует domain.Embedder через OpenAI Embeddings API.
type OpenAI struct {
	client  embeddingClient
	model   string
	dim     int
	timeout time.Duration
}

var _ domain.Embedder = (*OpenAI)(nil)

// NewOpenAI создаёт провайдер векторизации.
func NewOpenAI(client embeddingClient, model string, dim int, timeout time.Duration) *OpenAI {
	if model == "" {
		model = "text-embedding-3-small"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAI{client: client, model: model, dim: dim, timeout: timeout}
}

// Embed возвращает вектор фиксированной размерности для текста.
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: e.model,
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: пустой ответ")
	}
	vector := resp.Data[0].Embedding
	if e.dim > 0 && len(vector) != e.dim {
		return nil, fmt.Errorf("openai embeddings: размерность %d вместо %d", len(vector), e.dim)
	}
	return vector, nil
}
