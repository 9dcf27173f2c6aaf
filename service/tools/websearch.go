package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
)

const (
	ToolWebSearch = "web_search"

	maxWebAnswerChars = 6000
)

// ChatCompletionClient go-openai 客户端的对话接口
type ChatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, request goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// WebSearchTool 通过带联网能力的搜索模型回答城市文档之外的问题
type WebSearchTool struct {
	client ChatCompletionClient
	model  string
}

var _ Tool = &WebSearchTool{}

func NewWebSearchTool(client ChatCompletionClient, model string) *WebSearchTool {
	return &WebSearchTool{client: client, model: model}
}

type webSearchArgs struct {
	Query string `json:"query" validate:"required,max=1000"`
}

type webSearchResult struct {
	Answer    string `json:"answer"`
	Truncated bool   `json:"truncated,omitempty"`
}

func (t *WebSearchTool) Name() string {
	return ToolWebSearch
}

func (t *WebSearchTool) Definition() llms.FunctionDefinition {
	return llms.FunctionDefinition{
		Name: ToolWebSearch,
		Description: "Search the public web for recent news or facts that are not in the city's planning documents. " +
			"Prefer search_documents for anything about Olympia plans and policies.",
		Parameters: schema(map[string]any{
			"query": stringProp("Web search query."),
		}, "query"),
	}
}

func (t *WebSearchTool) Call(ctx context.Context, env Env, raw json.RawMessage) (any, error) {
	var args webSearchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	resp, err := t.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: t.model,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role:    goopenai.ChatMessageRoleUser,
				Content: args.Query,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, errors.New("web search returned no answer")
	}

	answer, truncated := truncateText(resp.Choices[0].Message.Content, maxWebAnswerChars)
	return webSearchResult{Answer: answer, Truncated: truncated}, nil
}
