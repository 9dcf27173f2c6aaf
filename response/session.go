package response

import (
	"time"

	"eco-agent-backend/model"
)

type SessionResponse struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type GetSessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

type GetSessionMessagesResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []model.UIMessage `json:"messages"`
}
