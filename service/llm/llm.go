package llm

import (
	"fmt"
	"net/http"
	"time"

	"eco-agent-backend/config"
	"eco-agent-backend/utils"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	// 配置 300s 超时时间处理 LLM 流式输出
	streamHTTPClient *http.Client = utils.NewHTTPClient(
		utils.WithTimeout(300 * time.Second),
	)

	defaultHTTPClient *http.Client = utils.NewHTTPClient(
		utils.WithTimeout(120 * time.Second),
	)
)

// NewChatModel 创建流式对话使用的模型客户端
func NewChatModel(cfg config.ModelConfig, modelName string) (llms.Model, error) {
	if modelName == "" {
		modelName = cfg.ChatModel
	}
	llm, err := openai.New(
		openai.WithModel(modelName),
		openai.WithToken(cfg.APIKey),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithHTTPClient(streamHTTPClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	return llm, nil
}

// NewSummaryModel 摘要、检索压缩、图表与表格生成使用的轻量模型
func NewSummaryModel(cfg config.ModelConfig) (llms.Model, error) {
	llm, err := openai.New(
		openai.WithModel(cfg.SummaryModel),
		openai.WithToken(cfg.APIKey),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithHTTPClient(defaultHTTPClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create summary llm client: %w", err)
	}
	return llm, nil
}

// NewOpenAIClient 图片生成、联网搜索和向量化直接调用 OpenAI 接口
func NewOpenAIClient(cfg config.ModelConfig) *goopenai.Client {
	clientConfig := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = defaultHTTPClient
	return goopenai.NewClientWithConfig(clientConfig)
}
