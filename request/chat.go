package request

import "eco-agent-backend/model"

type ChatRequest struct {
	SessionID string            `json:"session_id" binding:"required,max=64"`
	Messages  []model.UIMessage `json:"messages" binding:"required,min=1"`

	// 为空时使用配置中的对话模型
	Model string `json:"model"`
}

// LastUserMessage 请求只贡献最后一条用户消息，其余历史以数据库为准
func (r ChatRequest) LastUserMessage() (model.UIMessage, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == model.RoleUser {
			return r.Messages[i], true
		}
	}
	return model.UIMessage{}, false
}
