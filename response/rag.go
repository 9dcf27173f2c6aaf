package response

import (
	"time"

	"eco-agent-backend/model"
)

type RAGQueryResponse struct {
	// 上下文保存失败时为空
	ContextID string         `json:"context_id"`
	Summary   string         `json:"summary"`
	Sources   []model.Source `json:"sources"`
	Chunks    []model.Chunk  `json:"chunks,omitempty"`
	CallCount int            `json:"call_count"`
}

type SourceLinkResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
