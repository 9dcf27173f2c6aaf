package chat

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"eco-agent-backend/config"
	"eco-agent-backend/dao"
	"eco-agent-backend/model"
	"eco-agent-backend/request"
	"eco-agent-backend/service/conversation"
	"eco-agent-backend/service/mq"
	"eco-agent-backend/service/summarization"
	"eco-agent-backend/service/tools"
	"eco-agent-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
)

const maxTitleRunes = 60

var (
	ErrNoUserMessage   = errors.New("request has no user message")
	ErrSessionNotFound = errors.New("session not found")
)

var (
	//go:embed prompts/system.txt
	systemPrompt string

	systemTemplate = template.Must(template.New("system").Parse(systemPrompt))
)

// ModelFactory 按请求指定的模型名创建客户端，为空时使用默认模型
type ModelFactory func(modelName string) (llms.Model, error)

// SummaryQueue 后台摘要队列
type SummaryQueue interface {
	RegisterSummaryTask(task summarization.SummaryTask)
}

// UsagePublisher 用量事件发布
type UsagePublisher interface {
	PublishUsage(ctx context.Context, event mq.UsageEvent) error
}

// Service 处理一轮对话：加载历史、整理上下文、工具循环、持久化
type Service struct {
	cfg          config.ChatConfig
	defaultModel string
	maxSearches  int
	newModel     ModelFactory
	registry     *tools.Registry
	summaries    SummaryQueue
	usage        UsagePublisher
	now          func() time.Time
}

type Options struct {
	Config       config.ChatConfig
	DefaultModel string
	MaxSearches  int
	NewModel     ModelFactory
	Registry     *tools.Registry
	Summaries    SummaryQueue
	Usage        UsagePublisher
}

func NewService(opts Options) *Service {
	return &Service{
		cfg:          opts.Config,
		defaultModel: opts.DefaultModel,
		maxSearches:  opts.MaxSearches,
		newModel:     opts.NewModel,
		registry:     opts.Registry,
		summaries:    opts.Summaries,
		usage:        opts.Usage,
		now:          time.Now,
	}
}

// HandleTurn 执行一轮对话并通过 emitter 推送事件。
// 返回错误时调用方负责用 EmitError 通知客户端。
func (s *Service) HandleTurn(ctx context.Context, owner model.Owner, req request.ChatRequest, emitter Emitter) error {
	start := s.now()

	userMsg, ok := req.LastUserMessage()
	if !ok {
		return ErrNoUserMessage
	}

	session, created, err := dao.GetOrCreateSession(ctx, owner, req.SessionID, titleFrom(userMsg))
	if err != nil {
		if errors.Is(err, dao.ErrSessionOwner) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to load session: %w", err)
	}

	history := NewChatHistory(session.ID)
	stored, err := history.Messages(ctx)
	if err != nil {
		return err
	}
	msgs, userMsg, err := history.AppendUserMessage(ctx, stored, userMsg)
	if err != nil {
		return fmt.Errorf("failed to merge user message: %w", err)
	}

	modelName := req.Model
	if modelName == "" {
		modelName = s.defaultModel
	}
	llm, err := s.newModel(modelName)
	if err != nil {
		return err
	}

	prepared := conversation.Prepare(s.window(msgs), conversation.Options{
		MaxContextTokens:        s.cfg.MaxContextTokens,
		SummarizeAfterToolCalls: s.cfg.SummarizeAfterToolCalls,
		KeepRecentMessages:      s.cfg.KeepRecentMessages,
		MaxPartChars:            s.cfg.MaxPartChars,
	})
	slog.Debug("Prepared conversation context",
		"session_id", session.ID,
		"stats", prepared.Stats,
	)

	system, err := s.systemMessage()
	if err != nil {
		return err
	}
	input := append([]llms.MessageContent{system}, ToMessageContents(prepared.Messages)...)

	assistantID := uuid.NewString()
	if err := emitter.Emit(utils.EventStart, gin.H{
		"session_id":      session.ID,
		"message_id":      assistantID,
		"user_message_id": userMsg.ID,
		"created":         created,
	}); err != nil {
		return err
	}

	agent := NewAgent(llm, s.registry, s.cfg.MaxSteps)
	result, runErr := agent.Run(ctx, input, tools.Env{Owner: owner, SessionID: session.ID}, emitter)

	elapsed := s.now().Sub(start).Milliseconds()
	assistant := model.UIMessage{
		ID:               assistantID,
		Role:             model.RoleAssistant,
		Parts:            result.Parts,
		ProcessingTimeMs: &elapsed,
	}

	// 客户端断开后仍然保存已完成的内容
	persistCtx := context.WithoutCancel(ctx)
	if len(assistant.Parts) > 0 {
		msgs = append(msgs, assistant)
	}
	if err := history.SetMessages(persistCtx, msgs); err != nil {
		return errors.Join(runErr, err)
	}
	if err := dao.TouchSession(persistCtx, session.ID); err != nil {
		slog.Warn("Failed to touch session", "session_id", session.ID, "err", err)
	}

	s.afterTurn(persistCtx, owner, session.ID, modelName, userMsg, assistant, result, elapsed)

	if runErr != nil {
		return runErr
	}

	return emitter.Emit(utils.EventFinish, gin.H{
		"session_id":         session.ID,
		"message_id":         assistantID,
		"processing_time_ms": elapsed,
		"steps":              result.Steps,
		"tool_calls":         result.ToolCalls,
		"usage": gin.H{
			"prompt_tokens":     result.PromptTokens,
			"completion_tokens": result.CompletionTokens,
		},
		"context": prepared.Stats,
	})
}

// afterTurn 摘要与用量属于非关键路径，失败只记录日志
func (s *Service) afterTurn(ctx context.Context, owner model.Owner, sessionID, modelName string,
	userMsg, assistant model.UIMessage, result *RunResult, elapsed int64) {
	if s.summaries != nil {
		var ids []string
		for _, m := range []model.UIMessage{userMsg, assistant} {
			if len(m.Parts) > 0 && summarization.NeedsSummary(m) {
				ids = append(ids, m.ID)
			}
		}
		if len(ids) > 0 {
			s.summaries.RegisterSummaryTask(summarization.SummaryTask{MessageIDs: ids})
		}
	}

	if s.usage != nil {
		event := mq.UsageEvent{
			SessionID:        sessionID,
			UserID:           owner.UserID,
			AnonymousID:      owner.AnonymousID,
			Model:            modelName,
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.CompletionTokens,
			ToolCalls:        result.ToolCalls,
			DurationMs:       elapsed,
			CreatedAt:        s.now(),
		}
		if err := s.usage.PublishUsage(ctx, event); err != nil {
			slog.Error("Failed to publish usage event",
				"session_id", sessionID,
				"err", err,
			)
		}
	}
}

// window 只取最近 HistoryLimit 条消息参与上下文整理，保存时仍使用全部消息
func (s *Service) window(msgs []model.UIMessage) []model.UIMessage {
	if s.cfg.HistoryLimit <= 0 || len(msgs) <= s.cfg.HistoryLimit {
		return msgs
	}
	return msgs[len(msgs)-s.cfg.HistoryLimit:]
}

func (s *Service) systemMessage() (llms.MessageContent, error) {
	var buf bytes.Buffer
	if err := systemTemplate.Execute(&buf, struct {
		Date        string
		MaxSearches int
		Tools       string
	}{
		Date:        s.now().Format("January 2, 2006"),
		MaxSearches: s.maxSearches,
		Tools:       strings.Join(s.registry.Names(), ", "),
	}); err != nil {
		return llms.MessageContent{}, fmt.Errorf("failed to execute system prompt: %w", err)
	}
	return llms.TextParts(llms.ChatMessageTypeSystem, buf.String()), nil
}

// EmitError 按错误类别推送 error 事件，随后推送 finish
func EmitError(emitter Emitter, err error) {
	category := utils.ClassifyError(err)
	message := utils.UserMessage(category)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		message = ErrSessionNotFound.Error()
	case errors.Is(err, ErrNoUserMessage):
		category = utils.CategoryModelCompatibility
		message = ErrNoUserMessage.Error()
	}
	_ = emitter.Emit(utils.EventError, gin.H{
		"category": category,
		"message":  message,
	})
	_ = emitter.Emit(utils.EventFinish, gin.H{"error": true})
}

func titleFrom(msg model.UIMessage) string {
	title := strings.Join(strings.Fields(msg.Text()), " ")
	runes := []rune(title)
	if len(runes) > maxTitleRunes {
		title = string(runes[:maxTitleRunes-1]) + "…"
	}
	return title
}
