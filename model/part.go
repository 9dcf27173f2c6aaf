package model

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type PartType string

const (
	PartText           PartType = "text"
	PartReasoning      PartType = "reasoning"
	PartToolInvocation PartType = "tool-invocation"
	PartImage          PartType = "image"
	PartFile           PartType = "file"
)

type ToolState string

const (
	ToolStatePartialCall ToolState = "partial-call"
	ToolStateCall        ToolState = "call"
	ToolStateResult      ToolState = "result"
)

// Part 消息内容片段，字段与前端消息结构保持一致
type Part struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`

	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	State      ToolState       `json:"state,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`

	MediaType string `json:"mediaType,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`

	// 模型供应商附带的响应标识等信息，不应回传给模型
	ProviderMetadata map[string]any `json:"providerMetadata,omitempty"`
}

// Completed 工具调用已拿到结果
func (p Part) Completed() bool {
	return p.Type == PartToolInvocation && p.State == ToolStateResult && len(p.Result) > 0
}

// UIMessage 上下文处理与模型调用使用的消息结构
type UIMessage struct {
	ID               string     `json:"id"`
	Role             string     `json:"role"`
	Parts            []Part     `json:"parts"`
	Summary          string     `json:"-"`
	ProcessingTimeMs *int64     `json:"processingTimeMs,omitempty"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
}

// Text 拼接消息中的文本片段
func (m UIMessage) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Type != PartText {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += p.Text
	}
	return out
}

func (m UIMessage) ToolNames() []string {
	var names []string
	for _, p := range m.Parts {
		if p.Type == PartToolInvocation && p.ToolName != "" {
			names = append(names, p.ToolName)
		}
	}
	return names
}

func ToUIMessage(m Message) (UIMessage, error) {
	var parts []Part
	if len(m.Parts) > 0 {
		if err := json.Unmarshal(m.Parts, &parts); err != nil {
			return UIMessage{}, fmt.Errorf("failed to decode parts of message %s: %w", m.ID, err)
		}
	}
	createdAt := m.CreatedAt
	return UIMessage{
		ID:               m.ID,
		Role:             m.Role,
		Parts:            parts,
		Summary:          m.Summary,
		ProcessingTimeMs: m.ProcessingTimeMs,
		CreatedAt:        &createdAt,
	}, nil
}

func FromUIMessage(sessionID string, position int, m UIMessage) (Message, error) {
	parts := m.Parts
	if parts == nil {
		parts = []Part{}
	}
	data, err := json.Marshal(parts)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode parts of message %s: %w", m.ID, err)
	}
	return Message{
		ID:               m.ID,
		SessionID:        sessionID,
		Position:         position,
		Role:             m.Role,
		Parts:            datatypes.JSON(data),
		Summary:          m.Summary,
		ProcessingTimeMs: m.ProcessingTimeMs,
	}, nil
}
