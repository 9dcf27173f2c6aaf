package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/apache/rocketmq-client-go/v2"
	c "github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/apache/rocketmq-client-go/v2/rlog"
)

const (
	TagUsage = "tag_usage"

	consumeGroupUsage = "cg_usage"

	maxReconsumeTimes    = 5
	consumeGoroutineNums = 10
)

type MessageHandler func(context.Context, []byte) error

// RocketMQBroker 用量消息的生产者与消费者
type RocketMQBroker struct {
	topic    string
	producer rocketmq.Producer
	consumer rocketmq.PushConsumer
}

var _ Broker = &RocketMQBroker{}

func NewRocketMQBroker(nameServer, topic string, consumerNum int) (*RocketMQBroker, error) {
	// 设置 RocketMQ 客户端（使用 rlog）的日志级别
	rlog.SetLogLevel("warn")

	if consumerNum <= 0 {
		consumerNum = consumeGoroutineNums
	}

	consumer, err := rocketmq.NewPushConsumer(
		c.WithNameServer([]string{nameServer}),
		c.WithGroupName(consumeGroupUsage),
		c.WithConsumerModel(c.Clustering),
		c.WithConsumeFromWhere(c.ConsumeFromLastOffset),
		c.WithMaxReconsumeTimes(maxReconsumeTimes),
		c.WithConsumeGoroutineNums(consumerNum),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	p, err := rocketmq.NewProducer(
		producer.WithNameServer([]string{nameServer}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return &RocketMQBroker{
		topic:    topic,
		producer: p,
		consumer: consumer,
	}, nil
}

func (b *RocketMQBroker) Start() error {
	if err := b.registerHandler(TagUsage, HandleUsageMessage); err != nil {
		return fmt.Errorf("failed to register handler, topic: %s, tag: %s, err: %w", b.topic, TagUsage, err)
	}

	if err := b.producer.Start(); err != nil {
		return fmt.Errorf("failed to start producer: %w", err)
	}

	if err := b.consumer.Start(); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	return nil
}

// registerHandler 注册消息处理器，处理失败的消息稍后重新投递
func (b *RocketMQBroker) registerHandler(tag string, handler MessageHandler) error {
	selector := c.MessageSelector{}
	if tag != "" {
		selector = c.MessageSelector{
			Type:       c.TAG,
			Expression: tag,
		}
	}

	err := b.consumer.Subscribe(b.topic, selector, func(ctx context.Context, messages ...*primitive.MessageExt) (c.ConsumeResult, error) {
		for _, msg := range messages {
			if err := handler(ctx, msg.Body); err != nil {
				slog.Error("Failed to process message",
					"topic", msg.Topic,
					"msg_id", msg.MsgId,
					"err", err)
				return c.ConsumeRetryLater, err
			}
		}
		return c.ConsumeSuccess, nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", b.topic, err)
	}
	return nil
}

func (b *RocketMQBroker) PublishUsage(ctx context.Context, event UsageEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	msg := primitive.NewMessage(b.topic, payload).WithTag(TagUsage)
	return sendWithRetry(ctx, b.topic, func() error {
		_, err := b.producer.SendSync(ctx, msg)
		return err
	})
}

func (b *RocketMQBroker) Shutdown() {
	if b.producer != nil {
		if err := b.producer.Shutdown(); err != nil {
			slog.Warn("Failed to shutdown producer", "err", err)
		}
	}
	if b.consumer != nil {
		if err := b.consumer.Shutdown(); err != nil {
			slog.Warn("Failed to shutdown consumer", "err", err)
		}
	}
}
