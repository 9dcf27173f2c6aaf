package rag

import (
	"context"
	"fmt"
	"sort"

	"eco-agent-backend/config"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/embeddings"
)

const defaultEmbeddingBatchSize = 16

// openAIEmbedderClient 实现 embeddings.EmbedderClient，向量维度需与索引一致
type openAIEmbedderClient struct {
	client     *goopenai.Client
	model      string
	dimensions int
}

var _ embeddings.EmbedderClient = &openAIEmbedderClient{}

func (c *openAIEmbedderClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      goopenai.EmbeddingModel(c.model),
		Dimensions: c.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
	}

	sort.Slice(resp.Data, func(i, j int) bool {
		return resp.Data[i].Index < resp.Data[j].Index
	})
	vectors := make([][]float32, 0, len(resp.Data))
	for _, d := range resp.Data {
		vectors = append(vectors, d.Embedding)
	}
	return vectors, nil
}

// NewEmbedder 查询向量化，模型与维度和入库脚本保持一致
func NewEmbedder(client *goopenai.Client, cfg config.ModelConfig) (embeddings.Embedder, error) {
	embedder, err := embeddings.NewEmbedder(
		&openAIEmbedderClient{
			client:     client,
			model:      cfg.EmbeddingModel,
			dimensions: cfg.EmbeddingDimensions,
		},
		embeddings.WithBatchSize(defaultEmbeddingBatchSize),
		embeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}
