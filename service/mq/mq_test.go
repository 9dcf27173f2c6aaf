package mq

import (
	"context"
	"testing"
	"time"

	"eco-agent-backend/config"
	"eco-agent-backend/dao"
	"eco-agent-backend/dao/daotest"
	"eco-agent-backend/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectBroker_PublishUsage(t *testing.T) {
	daotest.Setup(t)

	broker, err := NewBroker(config.MQConfig{Driver: DriverNone})
	require.NoError(t, err)
	require.NoError(t, broker.Start())
	defer broker.Shutdown()

	err = broker.PublishUsage(context.Background(), UsageEvent{
		SessionID:        "s1",
		AnonymousID:      "anon-12345",
		Model:            "gpt-4.1-mini",
		PromptTokens:     1200,
		CompletionTokens: 80,
		ToolCalls:        2,
		DurationMs:       3400,
		CreatedAt:        time.Now(),
	})
	require.NoError(t, err)

	var record model.UsageRecord
	require.NoError(t, dao.DB.First(&record).Error)
	assert.Equal(t, "s1", record.SessionID)
	assert.Nil(t, record.UserID)
	require.NotNil(t, record.AnonymousID)
	assert.Equal(t, "anon-12345", *record.AnonymousID)
	assert.Equal(t, 2, record.ToolCalls)
}

func TestHandleUsageMessage(t *testing.T) {
	daotest.Setup(t)

	require.NoError(t, HandleUsageMessage(context.Background(), []byte(`{"session_id":"s1","user_id":"u1","model":"m","prompt_tokens":5}`)))
	assert.Error(t, HandleUsageMessage(context.Background(), []byte(`not json`)))

	var count int64
	require.NoError(t, dao.DB.Model(&model.UsageRecord{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestNewBroker_UnknownDriver(t *testing.T) {
	_, err := NewBroker(config.MQConfig{Driver: "kafka"})
	assert.Error(t, err)
}
