package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/tmc/langchaingo/llms"
)

const generateTemperature = 0.2

var errEmptyGeneration = errors.New("model returned an empty response")

// generateJSON 以 JSON 模式调用模型并解析结果
func generateJSON(ctx context.Context, llm llms.Model, tmpl *template.Template, data any, dst any) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	resp, err := llm.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeHuman, buf.String()),
		},
		llms.WithJSONMode(),
		llms.WithTemperature(generateTemperature),
	)
	if err != nil {
		return fmt.Errorf("llm call error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return errEmptyGeneration
	}

	content := stripCodeFence(resp.Choices[0].Content)
	if content == "" {
		return errEmptyGeneration
	}
	if err := json.Unmarshal([]byte(content), dst); err != nil {
		return fmt.Errorf("failed to decode model output: %w", err)
	}
	return nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
