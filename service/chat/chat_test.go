package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"eco-agent-backend/config"
	"eco-agent-backend/dao"
	"eco-agent-backend/dao/daotest"
	"eco-agent-backend/model"
	"eco-agent-backend/request"
	"eco-agent-backend/service/llm/llmtest"
	"eco-agent-backend/service/mq"
	"eco-agent-backend/service/summarization"
	"eco-agent-backend/service/tools"
	"eco-agent-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type event struct {
	name string
	data any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []event
}

func (e *recordingEmitter) Emit(name string, data any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event{name: name, data: data})
	return nil
}

func (e *recordingEmitter) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.events {
		if len(out) > 0 && out[len(out)-1] == ev.name && ev.name == utils.EventTextDelta {
			continue
		}
		out = append(out, ev.name)
	}
	return out
}

func (e *recordingEmitter) deltas() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var sb strings.Builder
	for _, ev := range e.events {
		if ev.name == utils.EventTextDelta {
			sb.WriteString(ev.data.(gin.H)["delta"].(string))
		}
	}
	return sb.String()
}

type lookupTool struct{}

func (lookupTool) Name() string { return "lookup" }

func (lookupTool) Definition() llms.FunctionDefinition {
	return llms.FunctionDefinition{Name: "lookup", Parameters: map[string]any{"type": "object"}}
}

func (lookupTool) Call(ctx context.Context, env tools.Env, raw json.RawMessage) (any, error) {
	return map[string]string{"answer": "42", "session": env.SessionID}, nil
}

type fakeQueue struct {
	tasks []summarization.SummaryTask
}

func (q *fakeQueue) RegisterSummaryTask(task summarization.SummaryTask) {
	q.tasks = append(q.tasks, task)
}

func newTestService(llm *llmtest.Model, cfg config.ChatConfig, queue SummaryQueue) *Service {
	return NewService(Options{
		Config:       cfg,
		DefaultModel: "test-model",
		MaxSearches:  4,
		NewModel: func(string) (llms.Model, error) {
			return llm, nil
		},
		Registry:  tools.NewRegistry(lookupTool{}),
		Summaries: queue,
		Usage:     mq.DirectBroker{},
	})
}

func userRequest(sessionID, messageID, text string) request.ChatRequest {
	return request.ChatRequest{
		SessionID: sessionID,
		Messages: []model.UIMessage{{
			ID:    messageID,
			Role:  model.RoleUser,
			Parts: []model.Part{{Type: model.PartText, Text: text}},
		}},
	}
}

func storedMessages(t *testing.T, sessionID string) []model.UIMessage {
	t.Helper()
	msgs, err := NewChatHistory(sessionID).Messages(context.Background())
	require.NoError(t, err)
	return msgs
}

func TestHandleTurn_ToolLoop(t *testing.T) {
	daotest.Setup(t)

	llm := llmtest.New(
		llmtest.Response{
			ToolCalls:    []llms.ToolCall{llmtest.ToolCall("call_1", "lookup", map[string]string{"q": "x"})},
			PromptTokens: 100, CompletionTokens: 10,
		},
		llmtest.Response{Text: "The answer is 42.", PromptTokens: 150, CompletionTokens: 8},
	)
	llm.EmitToolChunks = true
	svc := newTestService(llm, config.ChatConfig{MaxSteps: 4}, nil)
	emitter := &recordingEmitter{}
	owner := model.Owner{UserID: "u1"}

	err := svc.HandleTurn(context.Background(), owner, userRequest("s1", "m1", "What is the answer?"), emitter)
	require.NoError(t, err)

	assert.Equal(t, []string{
		utils.EventStart, utils.EventToolCall, utils.EventToolResult, utils.EventTextDelta, utils.EventFinish,
	}, emitter.names())
	assert.Equal(t, "The answer is 42.", emitter.deltas())

	msgs := storedMessages(t, "s1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assistant := msgs[1]
	assert.Equal(t, model.RoleAssistant, assistant.Role)
	require.Len(t, assistant.Parts, 2)
	assert.True(t, assistant.Parts[0].Completed())
	assert.JSONEq(t, `{"answer":"42","session":"s1"}`, string(assistant.Parts[0].Result))
	assert.Equal(t, "The answer is 42.", assistant.Parts[1].Text)
	assert.NotNil(t, assistant.ProcessingTimeMs)

	calls := llm.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, calls[0].Messages[0].Role)
	assert.Len(t, calls[0].Options.Tools, 1)
	second := calls[1].Messages
	assert.Equal(t, llms.ChatMessageTypeTool, second[len(second)-1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, second[len(second)-2].Role)

	var usage model.UsageRecord
	require.NoError(t, dao.DB.First(&usage).Error)
	assert.Equal(t, 250, usage.PromptTokens)
	assert.Equal(t, 18, usage.CompletionTokens)
	assert.Equal(t, 1, usage.ToolCalls)
	assert.Equal(t, "test-model", usage.Model)

	session, err := dao.GetSession(context.Background(), owner, "s1")
	require.NoError(t, err)
	assert.Equal(t, "What is the answer?", session.Title)
}

func TestHandleTurn_ReplayDoesNotDuplicate(t *testing.T) {
	daotest.Setup(t)

	llm := llmtest.New(llmtest.Response{Text: "first"}, llmtest.Response{Text: "second"})
	svc := newTestService(llm, config.ChatConfig{}, nil)
	owner := model.Owner{AnonymousID: "anon-12345"}

	req := userRequest("s1", "m1", "hello")
	require.NoError(t, svc.HandleTurn(context.Background(), owner, req, &recordingEmitter{}))
	require.NoError(t, svc.HandleTurn(context.Background(), owner, req, &recordingEmitter{}))

	msgs := storedMessages(t, "s1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "second", msgs[1].Text())

	// 第二次调用的历史只包含用户消息，不包含上一次的回答
	calls := llm.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[1].Messages, 2)
}

func TestHandleTurn_FailureKeepsOnlyCompletedParts(t *testing.T) {
	daotest.Setup(t)

	llm := llmtest.New(
		llmtest.Response{ToolCalls: []llms.ToolCall{llmtest.ToolCall("call_1", "lookup", map[string]string{})}},
		llmtest.Response{Err: errors.New("status code: 429, rate limit reached")},
	)
	svc := newTestService(llm, config.ChatConfig{}, nil)
	emitter := &recordingEmitter{}

	err := svc.HandleTurn(context.Background(), model.Owner{UserID: "u1"}, userRequest("s1", "", "hi"), emitter)
	require.Error(t, err)
	assert.Equal(t, utils.CategoryRateLimit, utils.ClassifyError(err))

	msgs := storedMessages(t, "s1")
	require.Len(t, msgs, 2)
	assert.NotEmpty(t, msgs[0].ID)
	for _, p := range msgs[1].Parts {
		if p.Type == model.PartToolInvocation {
			assert.True(t, p.Completed())
		}
	}

	EmitError(emitter, err)
	last := emitter.events[len(emitter.events)-2]
	assert.Equal(t, utils.EventError, last.name)
	assert.Equal(t, utils.CategoryRateLimit, last.data.(gin.H)["category"])
}

func TestHandleTurn_MaxStepsForcesAnswer(t *testing.T) {
	daotest.Setup(t)

	call := llmtest.ToolCall("call_1", "lookup", map[string]string{})
	llm := llmtest.New(
		llmtest.Response{ToolCalls: []llms.ToolCall{call}},
		llmtest.Response{Text: "done"},
	)
	svc := newTestService(llm, config.ChatConfig{MaxSteps: 1}, nil)

	require.NoError(t, svc.HandleTurn(context.Background(), model.Owner{UserID: "u1"}, userRequest("s1", "m1", "go"), &recordingEmitter{}))

	calls := llm.Calls()
	require.Len(t, calls, 2)
	assert.NotEmpty(t, calls[0].Options.Tools)
	assert.Empty(t, calls[1].Options.Tools)
}

func TestHandleTurn_ForeignSession(t *testing.T) {
	daotest.Setup(t)
	daotest.CreateSession(t, model.Owner{UserID: "owner"}, "s1")

	svc := newTestService(llmtest.New(), config.ChatConfig{}, nil)
	err := svc.HandleTurn(context.Background(), model.Owner{UserID: "intruder"}, userRequest("s1", "m1", "hi"), &recordingEmitter{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestHandleTurn_QueuesLongMessagesForSummary(t *testing.T) {
	daotest.Setup(t)

	long := strings.Repeat("Olympia housing targets. ", 120)
	queue := &fakeQueue{}
	svc := newTestService(llmtest.New(llmtest.Response{Text: long}), config.ChatConfig{}, queue)

	require.NoError(t, svc.HandleTurn(context.Background(), model.Owner{UserID: "u1"}, userRequest("s1", "m1", "short"), &recordingEmitter{}))

	require.Len(t, queue.tasks, 1)
	require.Len(t, queue.tasks[0].MessageIDs, 1)
	assert.NotEqual(t, "m1", queue.tasks[0].MessageIDs[0])
}

func TestHandleTurn_NoUserMessage(t *testing.T) {
	svc := newTestService(llmtest.New(), config.ChatConfig{}, nil)
	err := svc.HandleTurn(context.Background(), model.Owner{UserID: "u1"}, request.ChatRequest{
		SessionID: "s1",
		Messages:  []model.UIMessage{{Role: model.RoleAssistant}},
	}, &recordingEmitter{})
	assert.ErrorIs(t, err, ErrNoUserMessage)
}

func TestChatHistory_SetMessagesDropsIncompleteToolCalls(t *testing.T) {
	daotest.Setup(t)
	daotest.CreateSession(t, model.Owner{UserID: "u1"}, "s1")

	h := NewChatHistory("s1")
	err := h.SetMessages(context.Background(), []model.UIMessage{
		{ID: "m1", Role: model.RoleUser, Parts: []model.Part{{Type: model.PartText, Text: "hi"}}},
		{ID: "m2", Role: model.RoleAssistant, Parts: []model.Part{
			{Type: model.PartToolInvocation, ToolCallID: "c1", ToolName: "lookup", State: model.ToolStateCall},
		}},
		{ID: "m3", Role: model.RoleAssistant, Parts: []model.Part{
			{Type: model.PartToolInvocation, ToolCallID: "c2", ToolName: "lookup", State: model.ToolStatePartialCall},
			{Type: model.PartText, Text: "answer"},
		}},
	})
	require.NoError(t, err)

	msgs := storedMessages(t, "s1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m3", msgs[1].ID)
	require.Len(t, msgs[1].Parts, 1)
	assert.Equal(t, model.PartText, msgs[1].Parts[0].Type)
}

func TestChatHistory_ForeignMessageIDGetsNewID(t *testing.T) {
	daotest.Setup(t)
	daotest.CreateSession(t, model.Owner{UserID: "u1"}, "other")
	require.NoError(t, NewChatHistory("other").SetMessages(context.Background(), []model.UIMessage{
		{ID: "m1", Role: model.RoleUser, Parts: []model.Part{{Type: model.PartText, Text: "hi"}}},
	}))

	msgs, user, err := NewChatHistory("s1").AppendUserMessage(context.Background(), nil,
		model.UIMessage{ID: "m1", Role: model.RoleUser, Parts: []model.Part{{Type: model.PartText, Text: "hi"}}})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.NotEqual(t, "m1", user.ID)
}

func TestChatHistory_EditedReplayClearsSummary(t *testing.T) {
	daotest.Setup(t)
	daotest.CreateSession(t, model.Owner{UserID: "u1"}, "s1")
	ctx := context.Background()
	h := NewChatHistory("s1")
	require.NoError(t, h.SetMessages(ctx, []model.UIMessage{
		{ID: "m1", Role: model.RoleUser, Parts: []model.Part{{Type: model.PartText, Text: "long question about parks"}}},
		{ID: "m2", Role: model.RoleAssistant, Parts: []model.Part{{Type: model.PartText, Text: "answer"}}},
	}))
	require.NoError(t, dao.UpdateMessageSummary(ctx, nil, "m1", "parks question"))

	// 原样重放保留摘要
	history, err := h.Messages(ctx)
	require.NoError(t, err)
	_, user, err := h.AppendUserMessage(ctx, history,
		model.UIMessage{ID: "m1", Role: model.RoleUser, Parts: []model.Part{{Type: model.PartText, Text: "long question about parks"}}})
	require.NoError(t, err)
	assert.Equal(t, "parks question", user.Summary)

	history, err = h.Messages(ctx)
	require.NoError(t, err)
	msgs, user, err := h.AppendUserMessage(ctx, history,
		model.UIMessage{ID: "m1", Role: model.RoleUser, Parts: []model.Part{{Type: model.PartText, Text: "edited question about housing"}}})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Empty(t, user.Summary)
	assert.Empty(t, msgs[0].Summary)
	assert.Equal(t, "edited question about housing", user.Text())

	stored, err := dao.GetMessageByID(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, stored.Summary)
}

func TestToMessageContents_SplitsAtToolBoundaries(t *testing.T) {
	msgs := []model.UIMessage{
		{Role: model.RoleSystem, Parts: []model.Part{{Type: model.PartText, Text: "digest"}}},
		{Role: model.RoleUser, Parts: []model.Part{{Type: model.PartText, Text: "question"}}},
		{Role: model.RoleAssistant, Parts: []model.Part{
			{Type: model.PartText, Text: "Let me check."},
			{Type: model.PartToolInvocation, ToolCallID: "c1", ToolName: "a", State: model.ToolStateResult, Args: json.RawMessage(`{}`), Result: json.RawMessage(`{"ok":1}`)},
			{Type: model.PartToolInvocation, ToolCallID: "c2", ToolName: "b", State: model.ToolStateResult, Result: json.RawMessage(`{"ok":2}`)},
			{Type: model.PartToolInvocation, ToolCallID: "c3", ToolName: "c", State: model.ToolStateCall},
			{Type: model.PartText, Text: "Done."},
		}},
	}

	out := ToMessageContents(msgs)
	roles := make([]llms.ChatMessageType, 0, len(out))
	for _, mc := range out {
		roles = append(roles, mc.Role)
	}
	assert.Equal(t, []llms.ChatMessageType{
		llms.ChatMessageTypeSystem,
		llms.ChatMessageTypeHuman,
		llms.ChatMessageTypeAI,
		llms.ChatMessageTypeAI,
		llms.ChatMessageTypeTool,
		llms.ChatMessageTypeTool,
		llms.ChatMessageTypeAI,
	}, roles)

	require.Len(t, out[3].Parts, 2)
	call := out[3].Parts[1].(llms.ToolCall)
	assert.Equal(t, "c2", call.ID)
	assert.Equal(t, "{}", call.FunctionCall.Arguments)

	resp := out[4].Parts[0].(llms.ToolCallResponse)
	assert.Equal(t, "c1", resp.ToolCallID)
	assert.Equal(t, `{"ok":1}`, resp.Content)
}

func TestIsToolCallChunk(t *testing.T) {
	assert.True(t, isToolCallChunk([]byte(`[{"id":"c1","type":"function","function":{"name":"a","arguments":"{}"}}]`)))
	assert.False(t, isToolCallChunk([]byte(`[1, 2, 3]`)))
	assert.False(t, isToolCallChunk([]byte(`Hello`)))
	assert.False(t, isToolCallChunk([]byte(`[see page 4]`)))
}

func TestRawArguments(t *testing.T) {
	assert.JSONEq(t, `{"a":1}`, string(rawArguments(`{"a":1}`)))
	assert.Equal(t, `{}`, string(rawArguments("  ")))
	assert.Equal(t, `"{broken"`, string(rawArguments("{broken")))
}

func TestTitleFrom(t *testing.T) {
	msg := model.UIMessage{Parts: []model.Part{{Type: model.PartText, Text: "  How   will\nOlympia grow? "}}}
	assert.Equal(t, "How will Olympia grow?", titleFrom(msg))

	msg.Parts[0].Text = strings.Repeat("é", 100)
	assert.Len(t, []rune(titleFrom(msg)), maxTitleRunes)
}
