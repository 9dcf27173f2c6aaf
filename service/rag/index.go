package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"eco-agent-backend/model"

	"github.com/aws/smithy-go/document"
)

// 向量元数据字段，与入库脚本写入的键一致
const (
	metaDocID   = "doc_id"
	metaTitle   = "title"
	metaPage    = "page"
	metaS3Key   = "s3_pdf_key"
	metaSnippet = "snippet"
	metaDocType = "doc_type"
	metaChunkID = "chunk_id"
)

// VectorIndex 托管向量索引的查询接口
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, topK int) ([]model.Chunk, error)
}

// chunkFromMetadata 把向量元数据转换为检索结果
func chunkFromMetadata(key string, distance float32, metadata map[string]any) model.Chunk {
	chunk := model.Chunk{
		Key:      key,
		DocID:    metaString(metadata, metaDocID),
		Title:    metaString(metadata, metaTitle),
		Page:     metaInt(metadata, metaPage),
		S3Key:    metaString(metadata, metaS3Key),
		DocType:  metaString(metadata, metaDocType),
		Text:     metaString(metadata, metaSnippet),
		Distance: distance,
	}
	if chunk.Key == "" {
		chunk.Key = metaString(metadata, metaChunkID)
	}

	// 旧数据缺少元数据时从 key 解析，格式为 <doc_id>:page-<n>[-<chunk>]
	if chunk.DocID == "" || chunk.Page == 0 {
		docID, page := parseVectorKey(chunk.Key)
		if chunk.DocID == "" {
			chunk.DocID = docID
		}
		if chunk.Page == 0 {
			chunk.Page = page
		}
	}
	if chunk.Title == "" {
		chunk.Title = chunk.DocID
	}
	return chunk
}

func parseVectorKey(key string) (string, int) {
	docID, rest, ok := strings.Cut(key, ":page-")
	if !ok {
		return key, 0
	}
	pageStr, _, _ := strings.Cut(rest, "-")
	page, err := strconv.Atoi(pageStr)
	if err != nil {
		return docID, 0
	}
	return docID, page
}

func metaString(metadata map[string]any, key string) string {
	v, ok := metadata[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// metaInt S3 Vectors 元数据中的数字解码为 document.Number
func metaInt(metadata map[string]any, key string) int {
	switch v := metadata[key].(type) {
	case document.Number:
		return numberInt(v.String())
	case json.Number:
		return numberInt(v.String())
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float32:
		return int(v)
	case float64:
		return int(v)
	case string:
		return numberInt(v)
	}
	return 0
}

func numberInt(s string) int {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return int(n)
	}
	f, _ := strconv.ParseFloat(s, 64)
	return int(f)
}
