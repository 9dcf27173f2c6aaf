package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"eco-agent-backend/dao"
	"eco-agent-backend/model"
	"eco-agent-backend/service/conversation"

	"github.com/google/uuid"
)

// ChatHistory 会话消息的读写，以数据库中的记录为准
type ChatHistory struct {
	SessionID string
}

func NewChatHistory(sessionID string) *ChatHistory {
	return &ChatHistory{SessionID: sessionID}
}

// Messages 读取会话的全部消息
func (h *ChatHistory) Messages(ctx context.Context) ([]model.UIMessage, error) {
	stored, err := dao.GetMessagesBySessionID(ctx, h.SessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	msgs := make([]model.UIMessage, 0, len(stored))
	for _, m := range stored {
		ui, err := model.ToUIMessage(m)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, ui)
	}
	return msgs, nil
}

// AppendUserMessage 把请求中的用户消息并入历史。
// 消息 ID 已存在时从该消息处截断（重放同一请求不会产生重复消息）；
// ID 为空或属于其他会话时分配新 ID。
func (h *ChatHistory) AppendUserMessage(ctx context.Context, history []model.UIMessage, msg model.UIMessage) ([]model.UIMessage, model.UIMessage, error) {
	for i, m := range history {
		if msg.ID != "" && m.ID == msg.ID {
			if !sameParts(m.Parts, msg.Parts) {
				// 内容被编辑，旧摘要失效
				history[i].Parts = msg.Parts
				if m.Summary != "" {
					history[i].Summary = ""
					if err := dao.UpdateMessageSummary(ctx, nil, m.ID, ""); err != nil {
						return nil, model.UIMessage{}, fmt.Errorf("failed to clear summary: %w", err)
					}
				}
			}
			return history[:i+1], history[i], nil
		}
	}

	if msg.ID != "" {
		owner, err := dao.MessageSessionID(ctx, msg.ID)
		if err != nil {
			return nil, model.UIMessage{}, err
		}
		if owner != "" && owner != h.SessionID {
			msg.ID = ""
		}
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Role = model.RoleUser
	msg.Summary = ""
	return append(history, msg), msg, nil
}

func sameParts(a, b []model.Part) bool {
	da, errA := json.Marshal(a)
	db, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(da, db)
}

// SetMessages 重写会话消息。没有结果的工具调用不会被保存。
func (h *ChatHistory) SetMessages(ctx context.Context, msgs []model.UIMessage) error {
	msgs = conversation.StripIncompleteToolCalls(msgs)
	rows := make([]model.Message, 0, len(msgs))
	for i, m := range msgs {
		row, err := model.FromUIMessage(h.SessionID, i, m)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := dao.ReplaceSessionMessages(ctx, h.SessionID, rows); err != nil {
		return fmt.Errorf("failed to save messages: %w", err)
	}
	return nil
}
