// Package openai provides the catalog Embedder backed by the OpenAI
// embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/ersonp/chronicle/internal/infrastructure/config"
)

// maxBatch is the largest number of inputs sent in one request.
const maxBatch = 256

// modelDimensions lists the vector size of the supported models.
var modelDimensions = map[openai.EmbeddingModel]uint64{
	openai.SmallEmbedding3: 1536,
	openai.LargeEmbedding3: 3072,
	openai.AdaEmbeddingV2:  1536,
}

// embeddingsAPI is the part of the OpenAI client the embedder uses.
type embeddingsAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Embedder turns catalog record summaries into vectors.
type Embedder struct {
	client embeddingsAPI
	model  openai.EmbeddingModel
}

// NewEmbedder creates a new OpenAI embedder.
func NewEmbedder(cfg config.EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	model := openai.SmallEmbedding3
	if cfg.Model != "" {
		model = openai.EmbeddingModel(cfg.Model)
	}
	if _, ok := modelDimensions[model]; !ok {
		return nil, fmt.Errorf("unsupported embedding model %q", model)
	}

	return &Embedder{client: openai.NewClient(cfg.APIKey), model: model}, nil
}

// Dimensions returns the vector size the configured model produces.
func (e *Embedder) Dimensions() uint64 {
	return modelDimensions[e.model]
}

// Embed returns the embedding of one text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch returns one embedding per text in input order. Large inputs
// are split into several requests.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))
		chunk, err := e.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (e *Embedder) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("creating embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	// The API reports each vector's input position; do not rely on order.
	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) || embeddings[data.Index] != nil {
			return nil, fmt.Errorf("creating embeddings: unexpected index %d", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}
	return embeddings, nil
}
