package model

import (
	"time"

	"gorm.io/datatypes"
)

// GeneratedImage 生成后不再修改，仅随所属用户一并删除
type GeneratedImage struct {
	ID            string    `gorm:"primarykey;size:64" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	UserID        *string   `gorm:"size:64;index" json:"-"`
	AnonymousID   *string   `gorm:"size:64;index" json:"-"`
	Prompt        string    `gorm:"type:text;not null" json:"prompt"`
	RevisedPrompt string    `gorm:"type:text" json:"revised_prompt,omitempty"`
	Model         string    `gorm:"size:64" json:"model"`
	Size          string    `gorm:"size:32" json:"size"`
	Quality       string    `gorm:"size:32" json:"quality"`
	MediaType     string    `gorm:"size:32" json:"media_type"`
	ImageBase64   string    `gorm:"type:text;not null" json:"-"`
}

func (GeneratedImage) TableName() string {
	return "generated_image"
}

// ChartSpec 前端按该结构渲染图表
type ChartSpec struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	XLabel   string         `json:"x_label,omitempty"`
	YLabel   string         `json:"y_label,omitempty"`
	Labels   []string       `json:"labels"`
	Datasets []ChartDataset `json:"datasets"`
}

type ChartDataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

type GeneratedChart struct {
	ID          string         `gorm:"primarykey;size:64" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UserID      *string        `gorm:"size:64;index" json:"-"`
	AnonymousID *string        `gorm:"size:64;index" json:"-"`
	Prompt      string         `gorm:"type:text;not null" json:"prompt"`
	Title       string         `json:"title"`
	ChartType   string         `gorm:"size:32" json:"chart_type"`
	Spec        datatypes.JSON `json:"spec"`
}

func (GeneratedChart) TableName() string {
	return "generated_chart"
}

type GeneratedCSV struct {
	ID          string         `gorm:"primarykey;size:64" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UserID      *string        `gorm:"size:64;index" json:"-"`
	AnonymousID *string        `gorm:"size:64;index" json:"-"`
	Prompt      string         `gorm:"type:text;not null" json:"prompt"`
	Filename    string         `json:"filename"`
	Columns     datatypes.JSON `json:"columns"`
	Rows        datatypes.JSON `json:"rows"`
	RowCount    int            `json:"row_count"`
}

func (GeneratedCSV) TableName() string {
	return "generated_csv"
}

// UsageRecord 每轮对话的模型用量，由用量消息消费者写入
type UsageRecord struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
	SessionID        string    `gorm:"size:64;index" json:"session_id"`
	UserID           *string   `gorm:"size:64;index" json:"user_id,omitempty"`
	AnonymousID      *string   `gorm:"size:64" json:"anonymous_id,omitempty"`
	Model            string    `gorm:"size:64" json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	ToolCalls        int       `json:"tool_calls"`
	DurationMs       int64     `json:"duration_ms"`
}

func (UsageRecord) TableName() string {
	return "usage_record"
}
