package controller

import (
	"context"

	"eco-agent-backend/service/chat"
	"eco-agent-backend/service/rag"
	"eco-agent-backend/service/storage"
)

// DocumentSearcher 检索接口，供 /api/rag/query 使用
type DocumentSearcher interface {
	Search(ctx context.Context, req rag.SearchRequest) (*rag.SearchResult, error)
}

type Deps struct {
	Chat      *chat.Service
	Searcher  DocumentSearcher
	Presigner storage.Presigner

	// 请求未指定 compress 时的默认值
	CompressByDefault bool
}

var deps Deps

// Setup 在注册路由前注入服务实例
func Setup(d Deps) {
	deps = d
}
