package conversation

import (
	"eco-agent-backend/model"
)

const truncatedMessagePlaceholder = "[message truncated]"

// Trim 从最新消息开始保留能放进预算的消息，遇到第一条放不下的即停止。
// budget <= 0 表示不限制。
func Trim(msgs []model.UIMessage, budget int) ([]model.UIMessage, int) {
	if budget <= 0 || len(msgs) == 0 {
		return msgs, 0
	}

	total := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		cost := EstimateMessageTokens(msgs[i])
		if total+cost > budget {
			break
		}
		total += cost
		start = i
	}

	if start < len(msgs) {
		return msgs[start:], start
	}

	// 最新一条单独超出预算
	newest := msgs[len(msgs)-1]
	shrunk, ok := shrinkMessage(newest, budget)
	if !ok {
		return nil, len(msgs)
	}
	return []model.UIMessage{shrunk}, len(msgs) - 1
}

// shrinkMessage 把消息压缩为一段截断后的文本
func shrinkMessage(m model.UIMessage, budget int) (model.UIMessage, bool) {
	allowance := (budget - messageOverheadTokens - partOverheadTokens) * charsPerToken
	if allowance <= 0 {
		return model.UIMessage{}, false
	}

	text := m.Text()
	if text == "" {
		text = truncatedMessagePlaceholder
	}
	text = truncateMiddle(text, allowance)

	out := m
	out.Parts = []model.Part{{Type: model.PartText, Text: text}}
	return out, true
}
