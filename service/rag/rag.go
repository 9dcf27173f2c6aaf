package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"eco-agent-backend/config"
	"eco-agent-backend/dao"
	"eco-agent-backend/model"
	"eco-agent-backend/service/conversation"

	"github.com/oklog/ulid/v2"
	"github.com/tmc/langchaingo/embeddings"
)

const contextIDPrefix = "ctx_"

var (
	ErrEmptyQuery      = errors.New("query is empty")
	ErrContextNotFound = errors.New("context not found")
)

// Service 检索流程：额度检查、向量化、向量查询、压缩、保存上下文
type Service struct {
	embedder   embeddings.Embedder
	index      VectorIndex
	compressor Compressor
	quota      Quota
	cfg        config.RAGConfig
}

func NewService(embedder embeddings.Embedder, index VectorIndex, compressor Compressor, quota Quota, cfg config.RAGConfig) *Service {
	return &Service{
		embedder:   embedder,
		index:      index,
		compressor: compressor,
		quota:      quota,
		cfg:        cfg,
	}
}

type SearchRequest struct {
	// 为空时不计额度也不保存上下文
	SessionID string
	Query     string
	TopK      int
	Compress  bool
}

type SearchResult struct {
	ContextID string
	Summary   string
	Sources   []model.Source
	Chunks    []model.Chunk
	CallCount int
}

func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	topK := s.topK(req.TopK)

	var callCount int
	if req.SessionID != "" {
		count, err := s.quota.Reserve(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		callCount = count
	}

	chunks, err := s.retrieve(ctx, query, topK)
	if err != nil {
		if req.SessionID != "" {
			s.quota.Release(context.WithoutCancel(ctx), req.SessionID)
		}
		return nil, err
	}

	result := &SearchResult{
		Sources:   DedupeSources(chunks),
		Chunks:    chunks,
		CallCount: callCount,
	}

	if len(chunks) == 0 {
		result.Summary = "No matching passages were found in the planning documents."
	} else if req.Compress && s.compressor != nil {
		summary, err := s.compressor.Compress(ctx, query, chunks)
		if err != nil || summary == "" {
			slog.Warn("Failed to compress search results, falling back to snippets",
				"session_id", req.SessionID,
				"err", err,
			)
			summary = snippetSummary(chunks)
		}
		result.Summary = summary
	} else {
		result.Summary = snippetSummary(chunks)
	}

	if req.SessionID != "" {
		contextID, err := s.saveContext(ctx, req.SessionID, query, result)
		if err != nil {
			// 上下文保存失败不影响本次检索结果
			slog.Error("Failed to store rag context",
				"session_id", req.SessionID,
				"err", err,
			)
		}
		result.ContextID = contextID
	}

	return result, nil
}

func (s *Service) retrieve(ctx context.Context, query string, topK int) ([]model.Chunk, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, err := s.index.Query(ctx, vector, topK)
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func (s *Service) topK(requested int) int {
	topK := requested
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	if s.cfg.MaxTopK > 0 && topK > s.cfg.MaxTopK {
		topK = s.cfg.MaxTopK
	}
	if topK <= 0 {
		topK = 5
	}
	return topK
}

func (s *Service) saveContext(ctx context.Context, sessionID, query string, result *SearchResult) (string, error) {
	payload, err := json.Marshal(result.Chunks)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chunks: %w", err)
	}
	sources, err := json.Marshal(result.Sources)
	if err != nil {
		return "", fmt.Errorf("failed to marshal sources: %w", err)
	}

	ragContext := &model.RAGContext{
		ID:          contextIDPrefix + ulid.Make().String(),
		SessionID:   sessionID,
		Query:       query,
		FullPayload: payload,
		Summary:     result.Summary,
		Sources:     sources,
		TokenCount:  conversation.EstimateTokens(string(payload)),
	}
	if err := dao.CreateRAGContext(ctx, ragContext); err != nil {
		return "", err
	}
	return ragContext.ID, nil
}

type FullContext struct {
	ContextID string         `json:"context_id"`
	Query     string         `json:"query"`
	Summary   string         `json:"summary"`
	Chunks    []model.Chunk  `json:"chunks"`
	Sources   []model.Source `json:"sources"`
	Truncated bool           `json:"truncated"`
}

// FullContext 读取同一会话内保存的检索结果，按 token 预算截断
func (s *Service) FullContext(ctx context.Context, sessionID, contextID string) (*FullContext, error) {
	ragContext, err := dao.GetRAGContext(ctx, sessionID, contextID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, ErrContextNotFound
		}
		return nil, err
	}

	var chunks []model.Chunk
	if err := json.Unmarshal(ragContext.FullPayload, &chunks); err != nil {
		return nil, fmt.Errorf("failed to decode context payload: %w", err)
	}
	var sources []model.Source
	if len(ragContext.Sources) > 0 {
		if err := json.Unmarshal(ragContext.Sources, &sources); err != nil {
			return nil, fmt.Errorf("failed to decode context sources: %w", err)
		}
	}

	kept, truncated := budgetChunks(chunks, s.cfg.FullContextTokens)
	return &FullContext{
		ContextID: ragContext.ID,
		Query:     ragContext.Query,
		Summary:   ragContext.Summary,
		Chunks:    kept,
		Sources:   sources,
		Truncated: truncated,
	}, nil
}

// budgetChunks 按相关度顺序保留不超过预算的片段
func budgetChunks(chunks []model.Chunk, budget int) ([]model.Chunk, bool) {
	if budget <= 0 {
		return chunks, false
	}
	total := 0
	for i, c := range chunks {
		cost := conversation.EstimateTokens(c.Text) + conversation.EstimateTokens(c.Title) + 8
		if total+cost > budget {
			return chunks[:i], true
		}
		total += cost
	}
	return chunks, false
}

// DedupeSources 按 (doc_id, page) 去重，保留距离最小的一条
func DedupeSources(chunks []model.Chunk) []model.Source {
	type sourceKey struct {
		docID string
		page  int
	}
	index := make(map[sourceKey]int)
	sources := make([]model.Source, 0, len(chunks))
	for _, c := range chunks {
		k := sourceKey{docID: c.DocID, page: c.Page}
		if i, ok := index[k]; ok {
			if c.Distance < sources[i].Distance {
				sources[i].Distance = c.Distance
			}
			continue
		}
		index[k] = len(sources)
		sources = append(sources, model.Source{
			DocID:    c.DocID,
			Title:    c.Title,
			Page:     c.Page,
			S3Key:    c.S3Key,
			Distance: c.Distance,
		})
	}
	return sources
}
