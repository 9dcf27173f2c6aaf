package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"eco-agent-backend/model"
	"eco-agent-backend/service/rag"

	"github.com/tmc/langchaingo/llms"
)

const (
	ToolSearchDocuments = "search_documents"
	ToolGetFullContext  = "get_full_context"
)

// Searcher 检索服务，search_documents 与 get_full_context 共用
type Searcher interface {
	Search(ctx context.Context, req rag.SearchRequest) (*rag.SearchResult, error)
	FullContext(ctx context.Context, sessionID, contextID string) (*rag.FullContext, error)
}

type SearchDocumentsTool struct {
	searcher    Searcher
	compress    bool
	maxTopK     int
	maxSearches int
}

var _ Tool = &SearchDocumentsTool{}

func NewSearchDocumentsTool(searcher Searcher, compress bool, maxTopK, maxSearches int) *SearchDocumentsTool {
	return &SearchDocumentsTool{
		searcher:    searcher,
		compress:    compress,
		maxTopK:     maxTopK,
		maxSearches: maxSearches,
	}
}

type searchDocumentsArgs struct {
	Query string `json:"query" validate:"required,max=2000"`
	TopK  int    `json:"top_k" validate:"omitempty,min=1,max=50"`
}

type searchDocumentsResult struct {
	ContextID         string         `json:"context_id,omitempty"`
	Summary           string         `json:"summary"`
	Sources           []model.Source `json:"sources"`
	RemainingSearches int            `json:"remaining_searches"`
}

func (t *SearchDocumentsTool) Name() string {
	return ToolSearchDocuments
}

func (t *SearchDocumentsTool) Definition() llms.FunctionDefinition {
	return llms.FunctionDefinition{
		Name: ToolSearchDocuments,
		Description: fmt.Sprintf("Search City of Olympia planning documents (comprehensive plan, climate, housing, "+
			"transportation, parks and other municipal plans). Returns a cited summary, the cited pages and a "+
			"context_id for get_full_context. Limited to %d searches per conversation, so write specific queries.",
			t.maxSearches),
		Parameters: schema(map[string]any{
			"query": stringProp("Natural language search query."),
			"top_k": map[string]any{
				"type":        "integer",
				"description": "Number of passages to retrieve.",
				"minimum":     1,
				"maximum":     t.maxTopK,
			},
		}, "query"),
	}
}

func (t *SearchDocumentsTool) Call(ctx context.Context, env Env, raw json.RawMessage) (any, error) {
	var args searchDocumentsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	result, err := t.searcher.Search(ctx, rag.SearchRequest{
		SessionID: env.SessionID,
		Query:     args.Query,
		TopK:      args.TopK,
		Compress:  t.compress,
	})
	if err != nil {
		if errors.Is(err, rag.ErrQuotaExceeded) {
			return nil, fmt.Errorf("%w; answer from the results already retrieved or use get_full_context", err)
		}
		return nil, err
	}

	remaining := t.maxSearches - result.CallCount
	if remaining < 0 {
		remaining = 0
	}
	return searchDocumentsResult{
		ContextID:         result.ContextID,
		Summary:           result.Summary,
		Sources:           result.Sources,
		RemainingSearches: remaining,
	}, nil
}

type GetFullContextTool struct {
	searcher Searcher
}

var _ Tool = &GetFullContextTool{}

func NewGetFullContextTool(searcher Searcher) *GetFullContextTool {
	return &GetFullContextTool{searcher: searcher}
}

type getFullContextArgs struct {
	ContextID string `json:"context_id" validate:"required,max=64"`
}

func (t *GetFullContextTool) Name() string {
	return ToolGetFullContext
}

func (t *GetFullContextTool) Definition() llms.FunctionDefinition {
	return llms.FunctionDefinition{
		Name: ToolGetFullContext,
		Description: "Fetch the full retrieved passages behind an earlier search_documents call. " +
			"Use it when the summary is not detailed enough; it does not count against the search limit.",
		Parameters: schema(map[string]any{
			"context_id": stringProp("The context_id returned by search_documents."),
		}, "context_id"),
	}
}

func (t *GetFullContextTool) Call(ctx context.Context, env Env, raw json.RawMessage) (any, error) {
	var args getFullContextArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if env.SessionID == "" {
		return nil, rag.ErrContextNotFound
	}
	return t.searcher.FullContext(ctx, env.SessionID, args.ContextID)
}
