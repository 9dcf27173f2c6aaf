// Package llmtest 提供按脚本返回结果的 llms.Model，用于工具循环与生成类工具的测试
package llmtest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
)

var ErrNoResponse = errors.New("llmtest: no scripted response left")

// Response 一次模型调用的返回
type Response struct {
	Text      string
	ToolCalls []llms.ToolCall
	Err       error

	PromptTokens     int
	CompletionTokens int
}

// Call 记录一次模型调用的输入
type Call struct {
	Messages []llms.MessageContent
	Options  llms.CallOptions
}

// Model 依次返回 Responses；流式调用时把文本拆成多个 chunk 推送。
// EmitToolChunks 模拟 openai 客户端把工具调用以 JSON 数组推入流式回调。
type Model struct {
	mu sync.Mutex

	Responses      []Response
	EmitToolChunks bool

	calls []Call
}

var _ llms.Model = &Model{}

func New(responses ...Response) *Model {
	return &Model{Responses: responses}
}

func (m *Model) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	m.mu.Lock()
	m.calls = append(m.calls, Call{
		Messages: append([]llms.MessageContent(nil), messages...),
		Options:  opts,
	})
	if len(m.Responses) == 0 {
		m.mu.Unlock()
		return nil, ErrNoResponse
	}
	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	m.mu.Unlock()

	if resp.Err != nil {
		return nil, resp.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts.StreamingFunc != nil {
		for _, chunk := range splitText(resp.Text) {
			if err := opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
				return nil, err
			}
		}
		if m.EmitToolChunks && len(resp.ToolCalls) > 0 {
			data, err := toolCallChunk(resp.ToolCalls)
			if err != nil {
				return nil, err
			}
			if err := opts.StreamingFunc(ctx, data); err != nil {
				return nil, err
			}
		}
	}

	stopReason := "stop"
	if len(resp.ToolCalls) > 0 {
		stopReason = "tool_calls"
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:    resp.Text,
			ToolCalls:  resp.ToolCalls,
			StopReason: stopReason,
			GenerationInfo: map[string]any{
				"PromptTokens":     resp.PromptTokens,
				"CompletionTokens": resp.CompletionTokens,
			},
		}},
	}, nil
}

func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// ToolCall 构造一次函数调用
func ToolCall(id, name string, args any) llms.ToolCall {
	data, _ := json.Marshal(args)
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: string(data),
		},
	}
}

// toolCallChunk 与 openai 流式响应中的 tool_calls 结构一致
func toolCallChunk(calls []llms.ToolCall) ([]byte, error) {
	out := make([]map[string]any, 0, len(calls))
	for _, c := range calls {
		fn := map[string]string{}
		if c.FunctionCall != nil {
			fn["name"] = c.FunctionCall.Name
			fn["arguments"] = c.FunctionCall.Arguments
		}
		out = append(out, map[string]any{"id": c.ID, "type": c.Type, "function": fn})
	}
	return json.Marshal(out)
}

// splitText 按 rune 对半拆分，空文本不产生 chunk
func splitText(s string) []string {
	if s == "" {
		return nil
	}
	n := utf8.RuneCountInString(s)
	if n < 2 {
		return []string{s}
	}
	runes := []rune(s)
	return []string{string(runes[:n/2]), string(runes[n/2:])}
}
