package rag

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"eco-agent-backend/model"

	"github.com/tmc/langchaingo/llms"
)

const (
	compressTemperature = 0.1
	compressMaxTokens   = 600

	snippetSummaryChars = 280
)

//go:embed prompts/compress.txt
var compressPrompt string

var compressTemplate = template.Must(template.New("compress").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(compressPrompt))

// Compressor 把检索结果压缩为带引用的摘要
type Compressor interface {
	Compress(ctx context.Context, query string, chunks []model.Chunk) (string, error)
}

type LLMCompressor struct {
	llm llms.Model
}

var _ Compressor = &LLMCompressor{}

func NewLLMCompressor(llm llms.Model) *LLMCompressor {
	return &LLMCompressor{llm: llm}
}

func (c *LLMCompressor) Compress(ctx context.Context, query string, chunks []model.Chunk) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Query  string
		Chunks []model.Chunk
	}{
		Query:  query,
		Chunks: chunks,
	}
	if err := compressTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	resp, err := llms.GenerateFromSinglePrompt(ctx, c.llm, buf.String(),
		llms.WithTemperature(compressTemperature),
		llms.WithMaxTokens(compressMaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("llm call error: %w", err)
	}
	return strings.TrimSpace(resp), nil
}

// snippetSummary 压缩失败或关闭时直接拼接片段
func snippetSummary(chunks []model.Chunk) string {
	var b strings.Builder
	for i, c := range chunks {
		text := strings.Join(strings.Fields(c.Text), " ")
		if runes := []rune(text); len(runes) > snippetSummaryChars {
			text = strings.TrimSpace(string(runes[:snippetSummaryChars])) + "..."
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%d] %s (page %d): %s", i+1, c.Title, c.Page, text)
	}
	return b.String()
}
