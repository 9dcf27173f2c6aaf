package summarization

import (
	"context"
	"strings"
	"testing"

	"eco-agent-backend/dao"
	"eco-agent-backend/dao/daotest"
	"eco-agent-backend/model"
	"eco-agent-backend/service/llm/llmtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func saveMessage(t *testing.T, id, text string) {
	t.Helper()
	msg, err := model.FromUIMessage("s1", 0, model.UIMessage{
		ID:    id,
		Role:  model.RoleAssistant,
		Parts: []model.Part{{Type: model.PartText, Text: text}},
	})
	require.NoError(t, err)
	require.NoError(t, dao.DB.Create(&msg).Error)
}

func TestSummarizeMessage(t *testing.T) {
	daotest.Setup(t)
	saveMessage(t, "long", strings.Repeat("The climate plan targets net zero by 2040. ", 80))
	saveMessage(t, "short", "ok")

	llm := llmtest.New(llmtest.Response{Text: "  Net zero by 2040.  "})
	s := NewSummarizer(llm)

	msg, err := s.SummarizeMessage(context.Background(), "long")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "Net zero by 2040.", msg.Summary)
	assert.Contains(t, llm.Calls()[0].Messages[0].Parts[0].(llms.TextContent).Text, "net zero")

	msg, err = s.SummarizeMessage(context.Background(), "short")
	require.NoError(t, err)
	assert.Nil(t, msg)

	_, err = s.SummarizeMessage(context.Background(), "missing")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func TestSummarizer_WorkersPersistSummaries(t *testing.T) {
	daotest.Setup(t)
	saveMessage(t, "m1", strings.Repeat("Housing element figures. ", 120))

	s := NewSummarizer(llmtest.New(llmtest.Response{Text: "Housing figures."}))
	s.Run(context.Background())
	s.RegisterSummaryTask(SummaryTask{MessageIDs: []string{"m1"}})
	s.Shutdown()

	msg, err := dao.GetMessageByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "Housing figures.", msg.Summary)
}

func TestSummarizer_ShutdownDrainsQueueAfterCancel(t *testing.T) {
	daotest.Setup(t)
	saveMessage(t, "m1", strings.Repeat("Shoreline master program. ", 120))

	ctx, cancel := context.WithCancel(context.Background())
	s := NewSummarizer(llmtest.New(llmtest.Response{Text: "Shoreline program."}))
	s.RegisterSummaryTask(SummaryTask{MessageIDs: []string{"m1"}})
	cancel()
	s.Run(ctx)
	s.Shutdown()

	msg, err := dao.GetMessageByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "Shoreline program.", msg.Summary)
}

func TestSummarizer_RegisterAfterShutdown(t *testing.T) {
	s := NewSummarizer(nil)
	s.Run(context.Background())
	s.Shutdown()

	assert.NotPanics(t, func() {
		s.RegisterSummaryTask(SummaryTask{MessageIDs: []string{"late"}})
	})
	s.Shutdown()
}

func TestNeedsSummary(t *testing.T) {
	assert.False(t, NeedsSummary(model.UIMessage{Parts: []model.Part{{Type: model.PartText, Text: "hi"}}}))
	assert.True(t, NeedsSummary(model.UIMessage{Parts: []model.Part{{Type: model.PartText, Text: strings.Repeat("x", MinContentLengthForSummary)}}}))
}
