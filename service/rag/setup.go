package rag

import (
	"context"
	"fmt"
	"strings"

	"eco-agent-backend/config"
	"eco-agent-backend/service/llm"
	"eco-agent-backend/utils"

	"github.com/redis/go-redis/v9"
)

// NewIndex 按配置选择向量索引后端
func NewIndex(ctx context.Context, cfg *config.Config) (VectorIndex, error) {
	switch strings.ToLower(cfg.RAG.Backend) {
	case "", "s3vectors":
		awsCfg, err := utils.LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		return NewS3VectorsIndex(awsCfg, cfg.AWS.VectorBucket, cfg.AWS.VectorIndex), nil
	case "milvus":
		return NewMilvusIndex(ctx, cfg.Milvus)
	default:
		return nil, fmt.Errorf("unsupported rag backend: %s", cfg.RAG.Backend)
	}
}

// NewServiceFromConfig rdb 为空时使用数据库事务控制额度
func NewServiceFromConfig(ctx context.Context, cfg *config.Config, rdb redis.UniversalClient) (*Service, error) {
	embedder, err := NewEmbedder(llm.NewOpenAIClient(cfg.Model), cfg.Model)
	if err != nil {
		return nil, err
	}

	index, err := NewIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}

	summaryModel, err := llm.NewSummaryModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	var quota Quota = NewDBQuota(cfg.RAG.MaxCallsPerSession)
	if rdb != nil {
		quota = NewRedisQuota(rdb, cfg.RAG.MaxCallsPerSession)
	}

	return NewService(embedder, index, NewLLMCompressor(summaryModel), quota, cfg.RAG), nil
}
