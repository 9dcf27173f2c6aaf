package rag

import (
	"context"
	"fmt"

	"eco-agent-backend/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3vectors"
	"github.com/aws/aws-sdk-go-v2/service/s3vectors/types"
)

// S3VectorsIndex 基于 AWS S3 Vectors 的向量索引
type S3VectorsIndex struct {
	client *s3vectors.Client
	bucket string
	index  string
}

var _ VectorIndex = &S3VectorsIndex{}

func NewS3VectorsIndex(awsCfg aws.Config, bucket, index string) *S3VectorsIndex {
	return &S3VectorsIndex{
		client: s3vectors.NewFromConfig(awsCfg),
		bucket: bucket,
		index:  index,
	}
}

func (i *S3VectorsIndex) Query(ctx context.Context, vector []float32, topK int) ([]model.Chunk, error) {
	output, err := i.client.QueryVectors(ctx, &s3vectors.QueryVectorsInput{
		VectorBucketName: aws.String(i.bucket),
		IndexName:        aws.String(i.index),
		QueryVector:      &types.VectorDataMemberFloat32{Value: vector},
		TopK:             aws.Int32(int32(topK)),
		ReturnMetadata:   true,
		ReturnDistance:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query s3 vectors: %w", err)
	}

	chunks := make([]model.Chunk, 0, len(output.Vectors))
	for _, v := range output.Vectors {
		metadata := map[string]any{}
		if v.Metadata != nil {
			if err := v.Metadata.UnmarshalSmithyDocument(&metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of %s: %w", aws.ToString(v.Key), err)
			}
		}
		chunks = append(chunks, chunkFromMetadata(aws.ToString(v.Key), aws.ToFloat32(v.Distance), metadata))
	}
	return chunks, nil
}
