package rag

import (
	"context"
	"fmt"

	"eco-agent-backend/config"
	"eco-agent-backend/model"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

const (
	milvusVectorField = "vector"
	milvusKeyField    = "chunk_id"
)

var milvusOutputFields = []string{
	milvusKeyField, metaDocID, metaTitle, metaPage, metaS3Key, metaSnippet, metaDocType,
}

// MilvusIndex 使用 Milvus 集合作为备用向量索引，字段与 S3 Vectors 元数据同名
type MilvusIndex struct {
	client     *milvusclient.Client
	collection string
}

var _ VectorIndex = &MilvusIndex{}

func NewMilvusIndex(ctx context.Context, cfg config.MilvusConfig) (*MilvusIndex, error) {
	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: cfg.Endpoint,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}
	return &MilvusIndex{
		client:     client,
		collection: cfg.Collection,
	}, nil
}

func (i *MilvusIndex) Query(ctx context.Context, vector []float32, topK int) ([]model.Chunk, error) {
	option := milvusclient.NewSearchOption(i.collection, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(milvusVectorField).
		WithOutputFields(milvusOutputFields...)

	resultSets, err := i.client.Search(ctx, option)
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	var chunks []model.Chunk
	for _, rs := range resultSets {
		for idx := 0; idx < rs.ResultCount; idx++ {
			metadata := make(map[string]any, len(milvusOutputFields))
			for _, field := range milvusOutputFields {
				col := rs.GetColumn(field)
				if col == nil {
					continue
				}
				v, err := col.Get(idx)
				if err != nil {
					return nil, fmt.Errorf("failed to read milvus field %s: %w", field, err)
				}
				metadata[field] = v
			}

			var score float32
			if idx < len(rs.Scores) {
				score = rs.Scores[idx]
			}
			// COSINE 返回相似度，换算为与 S3 Vectors 一致的距离
			chunks = append(chunks, chunkFromMetadata(metaString(metadata, milvusKeyField), 1-score, metadata))
		}
	}
	return chunks, nil
}

// EnsureCollection 集合不存在时按 S3 Vectors 的元数据字段建表并创建 HNSW 索引
func (i *MilvusIndex) EnsureCollection(ctx context.Context, dim int) (bool, error) {
	exists, err := i.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(i.collection))
	if err != nil {
		return false, fmt.Errorf("failed to check milvus collection: %w", err)
	}
	if exists {
		return false, nil
	}

	schema := entity.NewSchema().
		WithName(i.collection).
		WithField(entity.NewField().WithName(milvusKeyField).WithDataType(entity.FieldTypeVarChar).
			WithIsPrimaryKey(true).WithMaxLength(255)).
		WithField(entity.NewField().WithName(milvusVectorField).WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dim))).
		WithField(entity.NewField().WithName(metaDocID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(255)).
		WithField(entity.NewField().WithName(metaTitle).WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024)).
		WithField(entity.NewField().WithName(metaPage).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(metaS3Key).WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024)).
		WithField(entity.NewField().WithName(metaSnippet).WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
		WithField(entity.NewField().WithName(metaDocType).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64))

	option := milvusclient.NewCreateCollectionOption(i.collection, schema).
		WithIndexOptions(milvusclient.NewCreateIndexOption(i.collection, milvusVectorField,
			index.NewHNSWIndex(entity.COSINE, 16, 200)))
	if err := i.client.CreateCollection(ctx, option); err != nil {
		return false, fmt.Errorf("failed to create milvus collection: %w", err)
	}
	return true, nil
}

func (i *MilvusIndex) Close(ctx context.Context) error {
	return i.client.Close(ctx)
}
