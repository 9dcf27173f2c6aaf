package conversation

import (
	"fmt"
	"strings"

	"eco-agent-backend/model"
)

const (
	defaultSummarizeAfterToolCalls = 5
	defaultKeepRecentMessages      = 6

	// 摘要中单条消息的最大长度
	digestLineChars = 600

	DigestMessageID = "conversation-digest"
	digestHeader    = "Summary of the earlier conversation:"
)

type SummarizeOptions struct {
	AfterToolCalls int
	KeepRecent     int
}

// Summarize 工具调用过多时把较早的消息合并成一条 system 摘要，返回被合并的消息数
func Summarize(msgs []model.UIMessage, opts SummarizeOptions) ([]model.UIMessage, int) {
	threshold := opts.AfterToolCalls
	if threshold <= 0 {
		threshold = defaultSummarizeAfterToolCalls
	}
	keep := opts.KeepRecent
	if keep <= 0 {
		keep = defaultKeepRecentMessages
	}

	if len(msgs) <= keep || CountToolCalls(msgs) < threshold {
		return msgs, 0
	}

	start := windowStart(msgs, len(msgs)-keep)
	if start <= 0 {
		return msgs, 0
	}

	out := make([]model.UIMessage, 0, len(msgs)-start+1)
	out = append(out, model.UIMessage{
		ID:   DigestMessageID,
		Role: model.RoleSystem,
		Parts: []model.Part{{
			Type: model.PartText,
			Text: Digest(msgs[:start]),
		}},
	})
	out = append(out, msgs[start:]...)
	return out, start
}

// windowStart 保留窗口必须从用户消息开始，优先向前扩展
func windowStart(msgs []model.UIMessage, start int) int {
	for i := start; i > 0; i-- {
		if msgs[i].Role == model.RoleUser {
			return i
		}
	}
	for i := start + 1; i < len(msgs); i++ {
		if msgs[i].Role == model.RoleUser {
			return i
		}
	}
	return 0
}

// Digest 生成可读的对话摘要，已有消息摘要时优先使用
func Digest(msgs []model.UIMessage) string {
	var b strings.Builder
	b.WriteString(digestHeader)

	for _, m := range msgs {
		text := m.Summary
		if text == "" {
			text = m.Text()
		}
		text = strings.Join(strings.Fields(text), " ")
		text = truncateMiddle(text, digestLineChars)

		var line string
		switch m.Role {
		case model.RoleUser:
			line = "User: " + text
		case model.RoleAssistant:
			line = "Assistant: " + text
			if tools := uniqueNames(m.ToolNames()); len(tools) > 0 {
				line = strings.TrimSpace(line) + fmt.Sprintf(" [tools: %s]", strings.Join(tools, ", "))
			}
		default:
			if text == "" {
				continue
			}
			line = "Note: " + text
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(line))
	}

	return b.String()
}

func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
