package conversation

import (
	"eco-agent-backend/model"
)

type Options struct {
	MaxContextTokens        int
	SummarizeAfterToolCalls int
	KeepRecentMessages      int
	MaxPartChars            int
}

type Stats struct {
	InputMessages   int `json:"input_messages"`
	OutputMessages  int `json:"output_messages"`
	ToolCalls       int `json:"tool_calls"`
	Summarized      int `json:"summarized"`
	Dropped         int `json:"dropped"`
	EstimatedTokens int `json:"estimated_tokens"`
}

type Prepared struct {
	Messages []model.UIMessage
	Stats    Stats
}

// Prepare 依次执行清洗、摘要、裁剪，得到可以发送给模型的历史
func Prepare(msgs []model.UIMessage, opts Options) Prepared {
	sanitized := Sanitize(msgs, SanitizeOptions{MaxPartChars: opts.MaxPartChars})
	toolCalls := CountToolCalls(sanitized)

	summarized, merged := Summarize(sanitized, SummarizeOptions{
		AfterToolCalls: opts.SummarizeAfterToolCalls,
		KeepRecent:     opts.KeepRecentMessages,
	})

	trimmed, dropped := Trim(summarized, opts.MaxContextTokens)

	return Prepared{
		Messages: trimmed,
		Stats: Stats{
			InputMessages:   len(msgs),
			OutputMessages:  len(trimmed),
			ToolCalls:       toolCalls,
			Summarized:      merged,
			Dropped:         dropped,
			EstimatedTokens: EstimateMessagesTokens(trimmed),
		},
	}
}
