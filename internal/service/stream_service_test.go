package service

import (
	"testing"
	"time"

	"graceway-go/internal/config"
	"graceway-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStreamFixture(t *testing.T) (*streamService, *fakeConvRepo) {
	t.Helper()
	convs := newFakeConvRepo()
	svc := NewStreamService(
		&fakeAssistantRepo{byRole: map[string]*model.Assistant{}},
		convs,
		&fakeUserRepo{users: map[uint]*model.User{1: {ID: 1, Username: "ruth"}}},
		&fakePrefRepo{prefs: map[uint]*model.UserPreference{}},
		&fakeLLM{reply: "Peace be with you."},
		config.RelayConfig{DefaultRole: model.RoleCoach, HistoryTurns: 20},
	)
	ss, ok := svc.(*streamService)
	require.True(t, ok)
	return ss, convs
}

func TestNewStreamServiceWiresRelayMachinery(t *testing.T) {
	ss, _ := newStreamFixture(t)
	require.NotNil(t, ss.relay)
	assert.Equal(t, model.RoleCoach, ss.relay.defaultRole)

	// Streaming only runs fallback-mode turns, so no assistants client or
	// event publisher is wired.
	assert.Nil(t, ss.relay.assistants)
	assert.Nil(t, ss.relay.publish)
}

func TestStreamSaveExchangeWritesBothTurns(t *testing.T) {
	ss, convs := newStreamFixture(t)
	conv := &model.Conversation{ID: "conv-1", UserID: 1}
	require.NoError(t, convs.Create(conv))

	userAt := time.Now()
	ss.saveExchange(conv, "How do I forgive?", "Start with small steps.", userAt)

	msgs := convs.messages["conv-1"]
	require.Len(t, msgs, 2)
	assert.Equal(t, model.SenderUser, msgs[0].Sender)
	assert.Equal(t, "How do I forgive?", msgs[0].Content)
	assert.Equal(t, model.SenderAssistant, msgs[1].Sender)
	assert.True(t, msgs[1].Meta.Fallback)
	assert.True(t, msgs[1].CreatedAt.After(msgs[0].CreatedAt))
	assert.Equal(t, msgs[1].CreatedAt, conv.LastMessageAt)
}

func TestStreamSaveExchangeSurvivesStorageFailure(t *testing.T) {
	ss, convs := newStreamFixture(t)
	conv := &model.Conversation{ID: "conv-1", UserID: 1}
	require.NoError(t, convs.Create(conv))
	convs.failCreateMessage = true
	convs.failTouch = true

	ss.saveExchange(conv, "hello", "hi", time.Now())

	assert.Empty(t, convs.messages["conv-1"])
}
