package conversation

import (
	"eco-agent-backend/model"
)

const (
	// 约 4 个字符折算 1 个 token
	charsPerToken = 4

	messageOverheadTokens = 4
	partOverheadTokens    = 2
)

// EstimateTokens 按字符数估算 token，向上取整
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

func EstimatePartTokens(p model.Part) int {
	tokens := partOverheadTokens
	tokens += EstimateTokens(p.Text)
	tokens += EstimateTokens(p.ToolName)
	tokens += EstimateTokens(string(p.Args))
	tokens += EstimateTokens(string(p.Result))
	tokens += EstimateTokens(p.URL)
	tokens += EstimateTokens(p.Data)
	return tokens
}

func EstimateMessageTokens(m model.UIMessage) int {
	tokens := messageOverheadTokens
	for _, p := range m.Parts {
		tokens += EstimatePartTokens(p)
	}
	return tokens
}

func EstimateMessagesTokens(msgs []model.UIMessage) int {
	total := 0
	for _, m := range msgs {
		total += EstimateMessageTokens(m)
	}
	return total
}
