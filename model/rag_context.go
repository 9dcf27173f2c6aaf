package model

import (
	"time"

	"gorm.io/datatypes"
)

// Source 检索结果引用的规划文档页
type Source struct {
	DocID    string  `json:"doc_id"`
	Title    string  `json:"title"`
	Page     int     `json:"page"`
	S3Key    string  `json:"s3_pdf_key,omitempty"`
	Distance float32 `json:"distance"`
}

// Chunk 向量检索返回的单条结果
type Chunk struct {
	Key      string  `json:"key"`
	DocID    string  `json:"doc_id"`
	Title    string  `json:"title"`
	Page     int     `json:"page"`
	S3Key    string  `json:"s3_pdf_key,omitempty"`
	DocType  string  `json:"doc_type,omitempty"`
	Text     string  `json:"text"`
	Distance float32 `json:"distance"`
}

// RAGContext 每次向量检索保存一条，供 get_full_context 工具回读
type RAGContext struct {
	ID          string         `gorm:"primarykey;size:64" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	SessionID   string         `gorm:"size:64;not null;index" json:"session_id"`
	Query       string         `gorm:"type:text;not null" json:"query"`
	FullPayload datatypes.JSON `json:"full_payload"`
	Summary     string         `gorm:"type:text" json:"summary"`
	Sources     datatypes.JSON `json:"sources"`
	TokenCount  int            `json:"token_count"`
}

func (RAGContext) TableName() string {
	return "rag_context"
}
