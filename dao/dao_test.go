package dao_test

import (
	"context"
	"testing"

	"eco-agent-backend/dao"
	"eco-agent-backend/dao/daotest"
	"eco-agent-backend/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = model.Owner{UserID: "alice"}
	bob   = model.Owner{UserID: "bob"}
	anon  = model.Owner{AnonymousID: "anon-1"}
)

func textMessage(t *testing.T, sessionID string, pos int, id, role, text string) model.Message {
	t.Helper()
	m, err := model.FromUIMessage(sessionID, pos, model.UIMessage{
		ID:    id,
		Role:  role,
		Parts: []model.Part{{Type: model.PartText, Text: text}},
	})
	require.NoError(t, err)
	return m
}

func TestSessionOwnerScoping(t *testing.T) {
	daotest.Setup(t)
	ctx := context.Background()

	daotest.CreateSession(t, alice, "s-alice")
	daotest.CreateSession(t, anon, "s-anon")

	sessions, err := dao.GetSessionsByOwner(ctx, alice)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s-alice", sessions[0].ID)

	_, err = dao.GetSession(ctx, bob, "s-alice")
	assert.ErrorIs(t, err, dao.ErrNotFound)

	// 匿名 ID 与用户 ID 相同也不能越权
	_, err = dao.GetSession(ctx, model.Owner{AnonymousID: "alice"}, "s-alice")
	assert.ErrorIs(t, err, dao.ErrNotFound)

	assert.ErrorIs(t, dao.UpdateSessionTitle(ctx, bob, "s-alice", "x"), dao.ErrNotFound)
	require.NoError(t, dao.UpdateSessionTitle(ctx, alice, "s-alice", "Parks"))
	s, err := dao.GetSession(ctx, alice, "s-alice")
	require.NoError(t, err)
	assert.Equal(t, "Parks", s.Title)

	assert.ErrorIs(t, dao.DeleteSession(ctx, bob, "s-alice"), dao.ErrNotFound)
	require.NoError(t, dao.DeleteSession(ctx, anon, "s-anon"))
	_, err = dao.GetSession(ctx, anon, "s-anon")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func TestGetOrCreateSession(t *testing.T) {
	daotest.Setup(t)
	ctx := context.Background()

	s, created, err := dao.GetOrCreateSession(ctx, alice, "s1", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.DefaultSessionTitle, s.Title)

	_, created, err = dao.GetOrCreateSession(ctx, alice, "s1", "ignored")
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = dao.GetOrCreateSession(ctx, bob, "s1", "")
	assert.ErrorIs(t, err, dao.ErrSessionOwner)
}

func TestReplaceSessionMessages(t *testing.T) {
	daotest.Setup(t)
	ctx := context.Background()
	daotest.CreateSession(t, alice, "s1")

	msgs := []model.Message{
		textMessage(t, "s1", 0, "m1", model.RoleUser, "hello"),
		textMessage(t, "s1", 1, "m2", model.RoleAssistant, "hi"),
	}
	require.NoError(t, dao.ReplaceSessionMessages(ctx, "s1", msgs))
	require.NoError(t, dao.UpdateMessageSummary(ctx, nil, "m2", "greeting"))

	// 重复写入不产生重复消息，已有摘要保留
	again := []model.Message{
		textMessage(t, "s1", 0, "m1", model.RoleUser, "hello"),
		textMessage(t, "s1", 1, "m2", model.RoleAssistant, "hi"),
	}
	require.NoError(t, dao.ReplaceSessionMessages(ctx, "s1", again))

	stored, err := dao.GetMessagesBySessionID(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "m1", stored[0].ID)
	assert.Equal(t, "greeting", stored[1].Summary)

	// 列表外的旧消息被删除
	require.NoError(t, dao.ReplaceSessionMessages(ctx, "s1", []model.Message{
		textMessage(t, "s1", 0, "m1", model.RoleUser, "edited"),
	}))
	stored, err = dao.GetMessagesBySessionID(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	ui, err := model.ToUIMessage(stored[0])
	require.NoError(t, err)
	assert.Equal(t, "edited", ui.Text())

	sessionID, err := dao.MessageSessionID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "s1", sessionID)
	sessionID, err = dao.MessageSessionID(ctx, "m2")
	require.NoError(t, err)
	assert.Empty(t, sessionID)
}

func TestGetMessagesBySessionIDLimitKeepsLatest(t *testing.T) {
	daotest.Setup(t)
	ctx := context.Background()
	daotest.CreateSession(t, alice, "s1")

	var msgs []model.Message
	for i, id := range []string{"a", "b", "c", "d"} {
		msgs = append(msgs, textMessage(t, "s1", i, id, model.RoleUser, id))
	}
	require.NoError(t, dao.ReplaceSessionMessages(ctx, "s1", msgs))

	stored, err := dao.GetMessagesBySessionID(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "c", stored[0].ID)
	assert.Equal(t, "d", stored[1].ID)
}

func TestReserveRAGCallLimit(t *testing.T) {
	daotest.Setup(t)
	ctx := context.Background()
	daotest.CreateSession(t, alice, "s1")

	for i := 1; i <= 4; i++ {
		n, err := dao.ReserveRAGCall(ctx, "s1", 4)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	_, err := dao.ReserveRAGCall(ctx, "s1", 4)
	assert.ErrorIs(t, err, dao.ErrRAGQuotaExceeded)

	require.NoError(t, dao.ReleaseRAGCall(ctx, "s1"))
	count, err := dao.GetRAGCallCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = dao.ReserveRAGCall(ctx, "missing", 4)
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func TestRAGContextScopedToSession(t *testing.T) {
	daotest.Setup(t)
	ctx := context.Background()

	require.NoError(t, dao.CreateRAGContext(ctx, &model.RAGContext{ID: "c1", SessionID: "s1", Query: "parks"}))

	got, err := dao.GetRAGContext(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "parks", got.Query)

	_, err = dao.GetRAGContext(ctx, "s2", "c1")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func TestPurgeOwner(t *testing.T) {
	daotest.Setup(t)
	ctx := context.Background()

	daotest.CreateSession(t, alice, "s-alice")
	daotest.CreateSession(t, bob, "s-bob")
	require.NoError(t, dao.ReplaceSessionMessages(ctx, "s-alice", []model.Message{
		textMessage(t, "s-alice", 0, "m1", model.RoleUser, "hello"),
	}))
	require.NoError(t, dao.ReplaceSessionMessages(ctx, "s-bob", []model.Message{
		textMessage(t, "s-bob", 0, "m2", model.RoleUser, "hello"),
	}))
	userID, _ := alice.Columns()
	require.NoError(t, dao.CreateImage(ctx, &model.GeneratedImage{ID: "img", UserID: userID, Prompt: "p", ImageBase64: "AA=="}))

	require.NoError(t, dao.PurgeOwner(ctx, alice))

	_, err := dao.GetSession(ctx, alice, "s-alice")
	assert.ErrorIs(t, err, dao.ErrNotFound)
	_, err = dao.GetImage(ctx, alice, "img")
	assert.ErrorIs(t, err, dao.ErrNotFound)
	_, err = dao.GetMessageByID(ctx, "m1")
	assert.ErrorIs(t, err, dao.ErrNotFound)

	_, err = dao.GetSession(ctx, bob, "s-bob")
	assert.NoError(t, err)
	_, err = dao.GetMessageByID(ctx, "m2")
	assert.NoError(t, err)
}
