package model

import (
	"time"

	"gorm.io/datatypes"
)

const DefaultSessionTitle = "New chat"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Session 会话归属登录用户或匿名访客，二者至少有一个
type Session struct {
	ID           string    `gorm:"primarykey;size:64" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	UserID       *string   `gorm:"size:64;index" json:"user_id,omitempty"`
	AnonymousID  *string   `gorm:"size:64;index" json:"anonymous_id,omitempty"`
	Title        string    `json:"title"`
	RAGCallCount int       `gorm:"not null;default:0" json:"rag_call_count"`
}

func (Session) TableName() string {
	return "chat_session"
}

// OwnedBy 判断会话是否属于给定的访问者
func (s *Session) OwnedBy(owner Owner) bool {
	if owner.UserID != "" {
		return s.UserID != nil && *s.UserID == owner.UserID
	}
	return s.UserID == nil && s.AnonymousID != nil && *s.AnonymousID == owner.AnonymousID
}

// Message 建立联合索引 (session_id, position)
// 每轮对话结束后整体重写会话内的消息列表
type Message struct {
	ID               string         `gorm:"primarykey;size:64" json:"id"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	SessionID        string         `gorm:"size:64;not null;index:idx_session_position" json:"session_id"`
	Position         int            `gorm:"not null;index:idx_session_position" json:"position"`
	Role             string         `gorm:"size:16;not null" json:"role"`
	Parts            datatypes.JSON `json:"parts"`
	Summary          string         `gorm:"type:text" json:"summary"`
	ProcessingTimeMs *int64         `json:"processing_time_ms,omitempty"`
}

func (Message) TableName() string {
	return "chat_message"
}

// Owner 请求方身份，登录用户优先于匿名 ID
type Owner struct {
	UserID      string
	AnonymousID string
}

func (o Owner) IsAnonymous() bool {
	return o.UserID == ""
}

func (o Owner) Valid() bool {
	return o.UserID != "" || o.AnonymousID != ""
}

// Columns 返回用于写入归属字段的指针对
func (o Owner) Columns() (userID, anonymousID *string) {
	if o.UserID != "" {
		id := o.UserID
		return &id, nil
	}
	if o.AnonymousID != "" {
		id := o.AnonymousID
		return nil, &id
	}
	return nil, nil
}
