package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"eco-agent-backend/config"
	"eco-agent-backend/dao"
	"eco-agent-backend/model"

	"github.com/avast/retry-go/v4"
)

const (
	DriverRocketMQ = "rocketmq"
	DriverRabbitMQ = "rabbitmq"
	DriverNone     = "none"

	defaultUsageTopic = "topic_usage"

	sendMessageAttempts = 3
)

// UsageEvent 每轮对话结束后发布的模型用量
type UsageEvent struct {
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id,omitempty"`
	AnonymousID      string    `json:"anonymous_id,omitempty"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	ToolCalls        int       `json:"tool_calls"`
	DurationMs       int64     `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// Broker 用量消息的发布与消费
type Broker interface {
	Start() error
	PublishUsage(ctx context.Context, event UsageEvent) error
	Shutdown()
}

// NewBroker 按配置创建消息队列
func NewBroker(cfg config.MQConfig) (Broker, error) {
	topic := cfg.UsageTopic
	if topic == "" {
		topic = defaultUsageTopic
	}
	switch cfg.Driver {
	case DriverRocketMQ:
		return NewRocketMQBroker(cfg.NameServer, topic, cfg.ConsumerNum)
	case DriverRabbitMQ:
		return NewRabbitMQBroker(cfg.RabbitURL, topic, cfg.ConsumerNum)
	case DriverNone, "":
		return DirectBroker{}, nil
	default:
		return nil, fmt.Errorf("unsupported mq driver: %s", cfg.Driver)
	}
}

// HandleUsageMessage 消费者写入 usage_record
func HandleUsageMessage(ctx context.Context, body []byte) error {
	var event UsageEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to unmarshal usage event: %w", err)
	}
	return saveUsage(ctx, event)
}

func saveUsage(ctx context.Context, event UsageEvent) error {
	record := &model.UsageRecord{
		SessionID:        event.SessionID,
		Model:            event.Model,
		PromptTokens:     event.PromptTokens,
		CompletionTokens: event.CompletionTokens,
		ToolCalls:        event.ToolCalls,
		DurationMs:       event.DurationMs,
		CreatedAt:        event.CreatedAt,
	}
	if event.UserID != "" {
		record.UserID = &event.UserID
	}
	if event.AnonymousID != "" {
		record.AnonymousID = &event.AnonymousID
	}
	if err := dao.CreateUsageRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to save usage record: %w", err)
	}
	return nil
}

// sendWithRetry 发送失败时按指数退避重试
func sendWithRetry(ctx context.Context, topic string, send func() error) error {
	err := retry.Do(
		send,
		retry.Context(ctx),
		retry.Attempts(sendMessageAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Retrying to send message",
				"attempt", n+1,
				"topic", topic,
				"err", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to send message to topic %s after retries: %w", topic, err)
	}
	return nil
}

// DirectBroker 不使用消息队列，直接写库
type DirectBroker struct{}

var _ Broker = DirectBroker{}

func (DirectBroker) Start() error {
	return nil
}

func (DirectBroker) PublishUsage(ctx context.Context, event UsageEvent) error {
	return saveUsage(ctx, event)
}

func (DirectBroker) Shutdown() {}
