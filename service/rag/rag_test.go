package rag

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"eco-agent-backend/config"
	"eco-agent-backend/dao"
	"eco-agent-backend/dao/daotest"
	"eco-agent-backend/model"

	smithyjson "github.com/aws/smithy-go/document/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (e *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, e.err
}

func (e *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2}, nil
}

type fakeIndex struct {
	chunks []model.Chunk
	err    error
	topK   int
}

func (i *fakeIndex) Query(ctx context.Context, vector []float32, topK int) ([]model.Chunk, error) {
	i.topK = topK
	if i.err != nil {
		return nil, i.err
	}
	if topK < len(i.chunks) {
		return i.chunks[:topK], nil
	}
	return i.chunks, nil
}

type fakeCompressor struct {
	summary string
	err     error
}

func (c *fakeCompressor) Compress(ctx context.Context, query string, chunks []model.Chunk) (string, error) {
	return c.summary, c.err
}

func sampleChunks() []model.Chunk {
	return []model.Chunk{
		{Key: "comp-plan:page-12", DocID: "comp-plan", Title: "Comprehensive Plan", Page: 12, S3Key: "pdfs/comp-plan.pdf", Text: "Olympia plans for 20,000 new residents.", Distance: 0.21},
		{Key: "comp-plan:page-12-2", DocID: "comp-plan", Title: "Comprehensive Plan", Page: 12, S3Key: "pdfs/comp-plan.pdf", Text: "Housing targets by neighborhood.", Distance: 0.18},
		{Key: "climate:page-3", DocID: "climate", Title: "Climate Action Plan", Page: 3, Text: "Emissions fall 45% by 2030.", Distance: 0.34},
	}
}

func newTestService(index *fakeIndex, compressor Compressor) (*Service, *fakeEmbedder) {
	embedder := &fakeEmbedder{}
	cfg := config.RAGConfig{
		DefaultTopK:        5,
		MaxTopK:            10,
		MaxCallsPerSession: 4,
		FullContextTokens:  1000,
	}
	return NewService(embedder, index, compressor, NewDBQuota(cfg.MaxCallsPerSession), cfg), embedder
}

func TestSearch_StoresContextAndDedupesSources(t *testing.T) {
	daotest.Setup(t)
	daotest.CreateSession(t, model.Owner{UserID: "u1"}, "s1")

	svc, _ := newTestService(&fakeIndex{chunks: sampleChunks()}, &fakeCompressor{summary: "Growth is planned [1]."})

	result, err := svc.Search(context.Background(), SearchRequest{
		SessionID: "s1",
		Query:     "  how much growth is planned?  ",
		Compress:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Growth is planned [1].", result.Summary)
	assert.Equal(t, 1, result.CallCount)
	assert.True(t, strings.HasPrefix(result.ContextID, contextIDPrefix))
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "comp-plan", result.Sources[0].DocID)
	assert.InDelta(t, 0.18, result.Sources[0].Distance, 1e-6)

	stored, err := dao.GetRAGContext(context.Background(), "s1", result.ContextID)
	require.NoError(t, err)
	assert.Equal(t, "how much growth is planned?", stored.Query)
	assert.Greater(t, stored.TokenCount, 0)
}

func TestSearch_QuotaNeverExceedsLimit(t *testing.T) {
	daotest.Setup(t)
	daotest.CreateSession(t, model.Owner{AnonymousID: "anon-12345"}, "s1")

	svc, _ := newTestService(&fakeIndex{chunks: sampleChunks()}, nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		exceeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Search(context.Background(), SearchRequest{SessionID: "s1", Query: "parks"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrQuotaExceeded):
				exceeded++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, ok)
	assert.Equal(t, 6, exceeded)

	count, err := dao.GetRAGCallCount(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	contexts, err := dao.CountRAGContexts(context.Background(), "s1")
	require.NoError(t, err)
	assert.EqualValues(t, 4, contexts)
}

func TestSearch_FailureReleasesQuota(t *testing.T) {
	daotest.Setup(t)
	daotest.CreateSession(t, model.Owner{UserID: "u1"}, "s1")

	svc, _ := newTestService(&fakeIndex{err: errors.New("index unavailable")}, nil)

	_, err := svc.Search(context.Background(), SearchRequest{SessionID: "s1", Query: "parks"})
	require.Error(t, err)

	count, err := dao.GetRAGCallCount(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSearch_CompressionFallback(t *testing.T) {
	svc, _ := newTestService(&fakeIndex{chunks: sampleChunks()}, &fakeCompressor{err: errors.New("timeout")})

	result, err := svc.Search(context.Background(), SearchRequest{Query: "emissions", Compress: true})
	require.NoError(t, err)

	assert.Empty(t, result.ContextID)
	assert.Contains(t, result.Summary, "[1] Comprehensive Plan (page 12)")
	assert.Contains(t, result.Summary, "[3] Climate Action Plan (page 3)")
}

func TestSearch_Validation(t *testing.T) {
	index := &fakeIndex{chunks: sampleChunks()}
	svc, embedder := newTestService(index, nil)

	_, err := svc.Search(context.Background(), SearchRequest{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Equal(t, 0, embedder.calls)

	_, err = svc.Search(context.Background(), SearchRequest{Query: "trees", TopK: 500})
	require.NoError(t, err)
	assert.Equal(t, 10, index.topK)

	_, err = svc.Search(context.Background(), SearchRequest{Query: "trees"})
	require.NoError(t, err)
	assert.Equal(t, 5, index.topK)
}

func TestFullContext_ScopedToSession(t *testing.T) {
	daotest.Setup(t)
	daotest.CreateSession(t, model.Owner{UserID: "u1"}, "s1")
	daotest.CreateSession(t, model.Owner{UserID: "u2"}, "s2")

	svc, _ := newTestService(&fakeIndex{chunks: sampleChunks()}, nil)
	result, err := svc.Search(context.Background(), SearchRequest{SessionID: "s1", Query: "housing"})
	require.NoError(t, err)

	full, err := svc.FullContext(context.Background(), "s1", result.ContextID)
	require.NoError(t, err)
	assert.Len(t, full.Chunks, 3)
	assert.False(t, full.Truncated)

	_, err = svc.FullContext(context.Background(), "s2", result.ContextID)
	assert.ErrorIs(t, err, ErrContextNotFound)
}

func TestBudgetChunks(t *testing.T) {
	chunks := []model.Chunk{
		{Title: "a", Text: strings.Repeat("x", 400)},
		{Title: "b", Text: strings.Repeat("y", 400)},
	}
	kept, truncated := budgetChunks(chunks, 150)
	assert.Len(t, kept, 1)
	assert.True(t, truncated)

	kept, truncated = budgetChunks(chunks, 0)
	assert.Len(t, kept, 2)
	assert.False(t, truncated)
}

// decodeMetadata 按 S3 Vectors 客户端的方式解码元数据
func decodeMetadata(t *testing.T, raw string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var input any
	require.NoError(t, dec.Decode(&input))

	metadata := map[string]any{}
	require.NoError(t, smithyjson.NewDecoder().DecodeJSONInterface(input, &metadata))
	return metadata
}

func TestChunkFromMetadata_DocumentNumberPage(t *testing.T) {
	metadata := decodeMetadata(t, `{"doc_id":"zoning-code","title":"Zoning Code","page":7,"snippet":"Setbacks."}`)

	chunk := chunkFromMetadata("opaque-key-1", 0.5, metadata)
	assert.Equal(t, 7, chunk.Page)
	assert.Equal(t, "zoning-code", chunk.DocID)

	other := chunkFromMetadata("opaque-key-2", 0.4, decodeMetadata(t, `{"doc_id":"zoning-code","page":8}`))
	assert.Len(t, DedupeSources([]model.Chunk{chunk, other}), 2)
}

func TestChunkFromMetadata(t *testing.T) {
	chunk := chunkFromMetadata("zoning-code:page-7-2", 0.5,
		decodeMetadata(t, `{"title":"Zoning Code","snippet":"Setbacks for R-4 zones.","page":7}`))
	assert.Equal(t, "zoning-code", chunk.DocID)
	assert.Equal(t, 7, chunk.Page)
	assert.Equal(t, "Setbacks for R-4 zones.", chunk.Text)

	chunk = chunkFromMetadata("", 0.1, map[string]any{"chunk_id": "parks:page-2"})
	assert.Equal(t, "parks:page-2", chunk.Key)
	assert.Equal(t, "parks", chunk.DocID)
	assert.Equal(t, "parks", chunk.Title)
	assert.Equal(t, 2, chunk.Page)
}
