package tools

import (
	"eco-agent-backend/config"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
)

// Deps 内置工具依赖的外部服务，为空的依赖对应的工具不注册
type Deps struct {
	Searcher  Searcher
	OpenAI    *goopenai.Client
	Generator llms.Model
	Runner    CodeRunner
	Extra     []Tool
}

// NewDefaultRegistry 按配置注册内置工具和外部 MCP 工具
func NewDefaultRegistry(cfg *config.Config, deps Deps) *Registry {
	r := NewRegistry()
	if deps.Searcher != nil {
		r.Register(NewSearchDocumentsTool(deps.Searcher, cfg.RAG.Compress, cfg.RAG.MaxTopK, cfg.RAG.MaxCallsPerSession))
		r.Register(NewGetFullContextTool(deps.Searcher))
	}
	if deps.OpenAI != nil {
		if cfg.Model.ImageModel != "" {
			r.Register(NewGenerateImageTool(deps.OpenAI, cfg.Model.ImageModel))
		}
		if cfg.Model.SearchModel != "" {
			r.Register(NewWebSearchTool(deps.OpenAI, cfg.Model.SearchModel))
		}
	}
	if deps.Generator != nil {
		r.Register(NewGenerateChartTool(deps.Generator))
		r.Register(NewGenerateCSVTool(deps.Generator))
	}
	if deps.Runner != nil {
		r.Register(NewExecuteCodeTool(deps.Runner, cfg.Sandbox.Language))
	}
	for _, t := range deps.Extra {
		r.Register(t)
	}
	return r
}
