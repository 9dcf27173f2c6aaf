package chat

import (
	"encoding/json"
	"strings"

	"eco-agent-backend/model"

	"github.com/tmc/langchaingo/llms"
)

// ToMessageContents 把前端消息转换为模型消息。助手消息在工具边界处拆分：
// 工具调用之前的文本为一条 AI 消息，连续的工具调用合并为一条 AI 消息，
// 随后每个调用对应一条 tool 消息。
func ToMessageContents(msgs []model.UIMessage) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case model.RoleSystem:
			if text := msg.Text(); text != "" {
				out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, text))
			}
		case model.RoleUser:
			if mc, ok := userContent(msg); ok {
				out = append(out, mc)
			}
		case model.RoleAssistant:
			out = append(out, assistantContents(msg)...)
		}
	}
	return out
}

func userContent(msg model.UIMessage) (llms.MessageContent, bool) {
	parts := make([]llms.ContentPart, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		switch p.Type {
		case model.PartText:
			if p.Text != "" {
				parts = append(parts, llms.TextContent{Text: p.Text})
			}
		case model.PartImage:
			if p.URL != "" {
				parts = append(parts, llms.ImageURLPart(p.URL))
			}
		case model.PartFile:
			if p.URL != "" {
				parts = append(parts, llms.TextContent{Text: "[attached file: " + p.URL + "]"})
			}
		}
	}
	if len(parts) == 0 {
		return llms.MessageContent{}, false
	}
	return llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: parts}, true
}

func assistantContents(msg model.UIMessage) []llms.MessageContent {
	var (
		out       []llms.MessageContent
		text      strings.Builder
		calls     []llms.ContentPart
		responses []llms.MessageContent
	)

	flushText := func() {
		if s := strings.TrimSpace(text.String()); s != "" {
			out = append(out, llms.TextParts(llms.ChatMessageTypeAI, s))
		}
		text.Reset()
	}
	flushCalls := func() {
		if len(calls) == 0 {
			return
		}
		out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: calls})
		out = append(out, responses...)
		calls, responses = nil, nil
	}

	for _, p := range msg.Parts {
		switch p.Type {
		case model.PartText:
			flushCalls()
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(p.Text)
		case model.PartToolInvocation:
			if !p.Completed() {
				continue
			}
			flushText()
			calls = append(calls, llms.ToolCall{
				ID:   p.ToolCallID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      p.ToolName,
					Arguments: argumentsString(p.Args),
				},
			})
			responses = append(responses, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: p.ToolCallID,
					Name:       p.ToolName,
					Content:    string(p.Result),
				}},
			})
		}
	}
	flushCalls()
	flushText()
	return out
}

func argumentsString(args json.RawMessage) string {
	if len(args) == 0 {
		return "{}"
	}
	return string(args)
}

// rawArguments 模型给出的参数不是合法 JSON 时按字符串保存
func rawArguments(args string) json.RawMessage {
	args = strings.TrimSpace(args)
	if args == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(args)) {
		return json.RawMessage(args)
	}
	data, _ := json.Marshal(args)
	return data
}
