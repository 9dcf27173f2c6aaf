package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"eco-agent-backend/config"
	"eco-agent-backend/utils"

	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss"
	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss/credentials"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrInvalidKey = errors.New("invalid object key")

// Presigner 为检索结果引用的规划文档 PDF 生成临时下载链接
type Presigner interface {
	PresignGet(ctx context.Context, key string) (url string, expiresAt time.Time, err error)
}

type S3Presigner struct {
	client *s3.PresignClient
	bucket string
	ttl    time.Duration
}

var _ Presigner = &S3Presigner{}

func NewS3Presigner(awsCfg aws.Config, bucket string, ttl time.Duration) *S3Presigner {
	return &S3Presigner{
		client: s3.NewPresignClient(s3.NewFromConfig(awsCfg)),
		bucket: bucket,
		ttl:    ttl,
	}
}

func (p *S3Presigner) PresignGet(ctx context.Context, key string) (string, time.Time, error) {
	if err := ValidateKey(key); err != nil {
		return "", time.Time{}, err
	}

	req, err := p.client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to presign s3 object: %w", err)
	}
	return req.URL, time.Now().Add(p.ttl), nil
}

type OSSPresigner struct {
	client *oss.Client
	bucket string
	ttl    time.Duration
}

var _ Presigner = &OSSPresigner{}

func NewOSSPresigner(cfg config.OSSConfig, ttl time.Duration) *OSSPresigner {
	ossCfg := &oss.Config{
		Region: oss.Ptr(cfg.Region),
		CredentialsProvider: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.AccessKeySecret,
		),
	}
	return &OSSPresigner{
		client: oss.NewClient(ossCfg),
		bucket: cfg.BucketName,
		ttl:    ttl,
	}
}

func (p *OSSPresigner) PresignGet(ctx context.Context, key string) (string, time.Time, error) {
	if err := ValidateKey(key); err != nil {
		return "", time.Time{}, err
	}

	result, err := p.client.Presign(ctx, &oss.GetObjectRequest{
		Bucket: oss.Ptr(p.bucket),
		Key:    oss.Ptr(key),
	}, oss.PresignExpires(p.ttl))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to presign oss object: %w", err)
	}
	return result.URL, result.Expiration, nil
}

// ValidateKey 只允许文档库内的相对路径
func ValidateKey(key string) error {
	if key == "" || len(key) > 1024 || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}

// NewPresigner 按配置选择存储服务
func NewPresigner(ctx context.Context, cfg *config.Config) (Presigner, error) {
	switch strings.ToLower(cfg.Storage.Provider) {
	case "", "s3":
		awsCfg, err := utils.LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		return NewS3Presigner(awsCfg, cfg.AWS.SourceBucket, cfg.Storage.PresignTTL), nil
	case "oss":
		return NewOSSPresigner(cfg.OSS, cfg.Storage.PresignTTL), nil
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Storage.Provider)
	}
}
