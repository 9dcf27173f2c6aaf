package request

type RAGQueryRequest struct {
	SessionID string `json:"session_id" binding:"max=64"`
	Query     string `json:"query" binding:"required,max=2000"`
	TopK      int    `json:"top_k" binding:"omitempty,min=1,max=50"`

	// 未指定时使用配置默认值
	Compress *bool `json:"compress"`
}
