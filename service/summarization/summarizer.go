package summarization

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"text/template"

	"eco-agent-backend/dao"
	"eco-agent-backend/model"

	"github.com/tmc/langchaingo/llms"
	"gorm.io/gorm"
)

const (
	taskChanSize    = 100
	workerNum       = 4
	updateBatchSize = 1

	// 触发生成消息摘要的最小消息长度（字节数）
	MinContentLengthForSummary = 2500
)

var (
	//go:embed prompts/summarization.txt
	summaryPrompt string

	summaryTemplate = template.Must(template.New("prompt").Parse(summaryPrompt))
)

type SummaryTask struct {
	MessageIDs []string
}

// Summarizer 后台为较长的消息生成摘要，上下文摘要优先使用这些结果
type Summarizer struct {
	llm             llms.Model
	taskChan        chan SummaryTask
	workerNum       int
	updateBatchSize int

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
}

func NewSummarizer(llm llms.Model) *Summarizer {
	return &Summarizer{
		llm:             llm,
		taskChan:        make(chan SummaryTask, taskChanSize),
		workerNum:       workerNum,
		updateBatchSize: updateBatchSize,
	}
}

// Run 启动 worker。worker 不随 ctx 取消而退出，由 Shutdown 处理完队列后停止
func (s *Summarizer) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	for i := 1; i <= s.workerNum; i++ {
		s.wg.Add(1)
		go s.executeSummarization(ctx, i)
	}
}

// RegisterSummaryTask 队列已满或已关闭时丢弃任务，不阻塞对话请求
func (s *Summarizer) RegisterSummaryTask(task SummaryTask) {
	if len(task.MessageIDs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		slog.Warn("Summarizer is shut down, dropping task", "message_ids", task.MessageIDs)
		return
	}
	select {
	case s.taskChan <- task:
	default:
		slog.Warn("Summary queue is full, dropping task", "message_ids", task.MessageIDs)
	}
}

// Shutdown 停止接收任务并等待 worker 处理完队列
func (s *Summarizer) Shutdown() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.taskChan)
	}
	cancel := s.cancel
	s.mu.Unlock()

	s.wg.Wait()
	if cancel != nil {
		cancel()
	}
}

func (s *Summarizer) executeSummarization(ctx context.Context, id int) {
	defer s.wg.Done()
	slog.Info("Starting summary worker", "worker_id", id)

	// 暂存等待批量更新的 message
	updates := make([]*model.Message, 0, s.updateBatchSize)

	defer func() {
		if _, err := s.flushBatchUpdates(context.WithoutCancel(ctx), updates); err != nil {
			slog.Error("Failed to flush batch updates", "err", err)
		}
		slog.Info("Summary worker exit", "worker_id", id)
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Summary worker shutting down", "worker_id", id)
			return
		case task, ok := <-s.taskChan:
			if !ok {
				return
			}
			for _, msgID := range task.MessageIDs {
				msg, err := s.SummarizeMessage(ctx, msgID)
				if err != nil {
					slog.Error("Failed to summary message",
						"msg_id", msgID,
						"err", err,
					)
					continue
				}
				if msg == nil {
					continue
				}

				updates = append(updates, msg)
				if len(updates) >= s.updateBatchSize {
					updates, err = s.flushBatchUpdates(ctx, updates)
					if err != nil {
						slog.Error("Failed to flush batch updates", "err", err)
					}
				}
			}
		}
	}
}

// SummarizeMessage 为一条消息生成摘要；消息过短或已有摘要时返回 nil
func (s *Summarizer) SummarizeMessage(ctx context.Context, msgID string) (*model.Message, error) {
	msg, err := dao.GetMessageByID(ctx, msgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if msg.Summary != "" {
		return nil, nil
	}

	ui, err := model.ToUIMessage(*msg)
	if err != nil {
		return nil, err
	}
	content := summaryContent(ui)
	if len(content) < MinContentLengthForSummary {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, struct {
		Role    string
		Content string
	}{
		Role:    msg.Role,
		Content: content,
	}); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}

	res, err := llms.GenerateFromSinglePrompt(ctx, s.llm, buf.String())
	if err != nil {
		return nil, fmt.Errorf("llm call error: %w", err)
	}
	msg.Summary = strings.TrimSpace(res)
	if msg.Summary == "" {
		return nil, nil
	}
	return msg, nil
}

// summaryContent 消息文本加上调用过的工具名
func summaryContent(m model.UIMessage) string {
	content := m.Text()
	if names := m.ToolNames(); len(names) > 0 {
		content += "\n[tools used: " + strings.Join(names, ", ") + "]"
	}
	return content
}

// NeedsSummary 判断消息是否值得生成摘要
func NeedsSummary(m model.UIMessage) bool {
	return len(m.Text()) >= MinContentLengthForSummary
}

func (s *Summarizer) flushBatchUpdates(ctx context.Context, updates []*model.Message) ([]*model.Message, error) {
	if len(updates) == 0 {
		return updates, nil
	}

	err := dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, msg := range updates {
			if err := dao.UpdateMessageSummary(ctx, tx, msg.ID, msg.Summary); err != nil {
				return fmt.Errorf("failed to update message %s: %w", msg.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return updates, fmt.Errorf("failed to update messages batch: %w", err)
	}

	return updates[:0], nil
}
