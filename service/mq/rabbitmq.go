package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// RabbitMQBroker 主队列处理失败的消息进入死信队列
type RabbitMQBroker struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	consumerNum int

	// amqp.Channel 不支持并发发布
	publishMu sync.Mutex
	wg        sync.WaitGroup
}

var _ Broker = &RabbitMQBroker{}

func NewRabbitMQBroker(url, queue string, consumerNum int) (*RabbitMQBroker, error) {
	if consumerNum <= 0 {
		consumerNum = 2
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	dlq := queue + ".dlq"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", dlq, err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return &RabbitMQBroker{
		conn:        conn,
		ch:          ch,
		queue:       queue,
		consumerNum: consumerNum,
	}, nil
}

// Start 在独立 channel 上消费用量消息
func (b *RabbitMQBroker) Start() error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	if err := ch.Qos(b.consumerNum, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}
	deliveries, err := ch.Consume(b.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %s: %w", b.queue, err)
	}

	for i := 0; i < b.consumerNum; i++ {
		b.wg.Add(1)
		go func(workerID int) {
			defer b.wg.Done()
			for d := range deliveries {
				if err := HandleUsageMessage(context.Background(), d.Body); err != nil {
					slog.Error("Failed to process message",
						"queue", b.queue,
						"worker_id", workerID,
						"err", err)
					_ = d.Nack(false, false)
					continue
				}
				if err := d.Ack(false); err != nil {
					slog.Warn("Failed to ack message", "queue", b.queue, "err", err)
				}
			}
		}(i)
	}
	return nil
}

func (b *RabbitMQBroker) PublishUsage(ctx context.Context, event UsageEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	return sendWithRetry(ctx, b.queue, func() error {
		cctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		b.publishMu.Lock()
		defer b.publishMu.Unlock()
		return b.ch.PublishWithContext(cctx,
			"",      // 默认 exchange
			b.queue, // routing key 即队列名
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
			},
		)
	})
}

// Shutdown 关闭连接后 deliveries 关闭，等待消费者退出
func (b *RabbitMQBroker) Shutdown() {
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			slog.Warn("Failed to close rabbitmq connection", "err", err)
		}
	}
	b.wg.Wait()
}
