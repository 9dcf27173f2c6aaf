package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"eco-agent-backend/model"
	"eco-agent-backend/service/tools"
	"eco-agent-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
)

const defaultMaxSteps = 8

var errEmptyResponse = errors.New("model returned no choices")

// Agent 工具循环：调用模型、执行工具、回填结果，直到模型不再调用工具
type Agent struct {
	llm      llms.Model
	registry *tools.Registry
	maxSteps int
}

func NewAgent(llm llms.Model, registry *tools.Registry, maxSteps int) *Agent {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	return &Agent{llm: llm, registry: registry, maxSteps: maxSteps}
}

// RunResult 一轮对话的输出。出错时 Parts 只包含已经完成的内容。
type RunResult struct {
	Parts            []model.Part
	Steps            int
	ToolCalls        int
	PromptTokens     int
	CompletionTokens int
}

func (a *Agent) Run(ctx context.Context, messages []llms.MessageContent, env tools.Env, emitter Emitter) (*RunResult, error) {
	result := &RunResult{}
	handler := newStreamHandler(emitter)
	defs := a.registry.Definitions()

	for step := 0; ; step++ {
		opts := []llms.CallOption{
			llms.WithStreamingFunc(handler.HandleStreamingFunc),
		}
		// 达到步数上限后最后一次调用不再提供工具，迫使模型给出回答
		final := step >= a.maxSteps
		if !final && len(defs) > 0 {
			opts = append(opts, llms.WithTools(defs))
		}

		resp, err := a.llm.GenerateContent(ctx, messages, opts...)
		result.Steps++
		if err != nil {
			// 已推送给客户端的文本保留下来
			appendText(result, handler.Take())
			return result, fmt.Errorf("llm call error: %w", err)
		}
		if len(resp.Choices) == 0 {
			return result, errEmptyResponse
		}
		choice := resp.Choices[0]
		addUsage(result, choice.GenerationInfo)

		streamed := handler.Take()
		text := choice.Content
		if text == "" {
			text = streamed
		}
		appendText(result, text)

		if len(choice.ToolCalls) == 0 || final {
			return result, nil
		}

		if text != "" {
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, text))
		}
		calls := make([]llms.ContentPart, 0, len(choice.ToolCalls))
		responses := make([]llms.MessageContent, 0, len(choice.ToolCalls))
		for _, call := range choice.ToolCalls {
			if call.FunctionCall == nil {
				continue
			}
			if call.ID == "" {
				call.ID = "call_" + uuid.NewString()
			}
			part, err := a.executeTool(ctx, env, call, emitter)
			if part.Completed() {
				result.Parts = append(result.Parts, part)
				result.ToolCalls++
			}
			if err != nil {
				return result, err
			}

			calls = append(calls, call)
			responses = append(responses, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: call.ID,
					Name:       call.FunctionCall.Name,
					Content:    string(part.Result),
				}},
			})
		}
		messages = append(messages, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: calls})
		messages = append(messages, responses...)
	}
}

func (a *Agent) executeTool(ctx context.Context, env tools.Env, call llms.ToolCall, emitter Emitter) (model.Part, error) {
	name := call.FunctionCall.Name
	args := rawArguments(call.FunctionCall.Arguments)

	if err := emitter.Emit(utils.EventToolCall, gin.H{
		"toolCallId": call.ID,
		"toolName":   name,
		"args":       args,
	}); err != nil {
		return model.Part{}, err
	}

	out, err := a.registry.Execute(ctx, env, name, call.FunctionCall.Arguments)
	if err != nil {
		return model.Part{}, err
	}
	if err := ctx.Err(); err != nil {
		// 客户端已断开，结果不再回填
		return model.Part{}, err
	}

	slog.Debug("Tool call completed",
		"tool", name,
		"session_id", env.SessionID,
		"result_bytes", len(out),
	)

	part := model.Part{
		Type:       model.PartToolInvocation,
		ToolCallID: call.ID,
		ToolName:   name,
		State:      model.ToolStateResult,
		Args:       args,
		Result:     out,
	}
	if err := emitter.Emit(utils.EventToolResult, gin.H{
		"toolCallId": call.ID,
		"toolName":   name,
		"result":     out,
	}); err != nil {
		return part, err
	}
	return part, nil
}

func appendText(result *RunResult, text string) {
	if text == "" {
		return
	}
	result.Parts = append(result.Parts, model.Part{Type: model.PartText, Text: text})
}

func addUsage(result *RunResult, info map[string]any) {
	result.PromptTokens += intValue(info["PromptTokens"])
	result.CompletionTokens += intValue(info["CompletionTokens"])
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
