package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"graceway-go/internal/config"
	"graceway-go/internal/model"
	"graceway-go/pkg/events"
	"graceway-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ---- in-memory fakes ----

type fakeUserRepo struct {
	users map[uint]*model.User
}

func (r *fakeUserRepo) Create(user *model.User) error { r.users[user.ID] = user; return nil }
func (r *fakeUserRepo) FindByUsername(username string) (*model.User, error) {
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}
func (r *fakeUserRepo) FindByID(userID uint) (*model.User, error) {
	if u, ok := r.users[userID]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (r *fakeUserRepo) Update(user *model.User) error { r.users[user.ID] = user; return nil }

type fakeAssistantRepo struct {
	byRole map[string]*model.Assistant
}

func (r *fakeAssistantRepo) FindByID(id string) (*model.Assistant, error) {
	for _, a := range r.byRole {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}
func (r *fakeAssistantRepo) FindActiveByRole(role, orgTag string) (*model.Assistant, error) {
	if a, ok := r.byRole[role]; ok {
		return a, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (r *fakeAssistantRepo) FindActiveForOrg(orgTag string) ([]model.Assistant, error) {
	var out []model.Assistant
	for _, a := range r.byRole {
		out = append(out, *a)
	}
	return out, nil
}

type fakePrefRepo struct {
	prefs map[uint]*model.UserPreference
}

func (r *fakePrefRepo) GetOrCreate(userID uint) (*model.UserPreference, error) {
	if p, ok := r.prefs[userID]; ok {
		return p, nil
	}
	p := &model.UserPreference{UserID: userID, IncludeDevotions: true, IncludeJournal: true}
	r.prefs[userID] = p
	return p, nil
}
func (r *fakePrefRepo) Update(pref *model.UserPreference) error {
	r.prefs[pref.UserID] = pref
	return nil
}

type fakeConvRepo struct {
	convs    map[string]*model.Conversation
	messages map[string][]model.Message

	failCreateConv    bool
	failCreateMessage bool
	failTouch         bool
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{
		convs:    make(map[string]*model.Conversation),
		messages: make(map[string][]model.Message),
	}
}

func (r *fakeConvRepo) Create(conv *model.Conversation) error {
	if r.failCreateConv {
		return errors.New("insert failed")
	}
	r.convs[conv.ID] = conv
	return nil
}
func (r *fakeConvRepo) FindByID(id string) (*model.Conversation, error) {
	if c, ok := r.convs[id]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (r *fakeConvRepo) FindMostRecent(userID uint, assistantID string) (*model.Conversation, error) {
	var best *model.Conversation
	for _, c := range r.convs {
		if c.UserID != userID || c.AssistantID == nil || *c.AssistantID != assistantID {
			continue
		}
		if best == nil || c.LastMessageAt.After(best.LastMessageAt) {
			best = c
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return best, nil
}
func (r *fakeConvRepo) FindByUser(userID uint, limit int) ([]model.Conversation, error) {
	var out []model.Conversation
	for _, c := range r.convs {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}
func (r *fakeConvRepo) AttachThread(conversationID, threadID string) error {
	c, ok := r.convs[conversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.ThreadID = &threadID
	return nil
}
func (r *fakeConvRepo) TouchLastMessage(conversationID string, at time.Time) error {
	if r.failTouch {
		return errors.New("update failed")
	}
	if c, ok := r.convs[conversationID]; ok && at.After(c.LastMessageAt) {
		c.LastMessageAt = at
	}
	return nil
}
func (r *fakeConvRepo) CreateMessage(msg *model.Message) error {
	if r.failCreateMessage {
		return errors.New("insert failed")
	}
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], *msg)
	return nil
}
func (r *fakeConvRepo) FindMessages(conversationID string) ([]model.Message, error) {
	return r.messages[conversationID], nil
}

type fakeLLM struct {
	reply    string
	err      error
	received []llm.Message
}

func (c *fakeLLM) Complete(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	c.received = messages
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}
func (c *fakeLLM) StreamChatMessages(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, writer llm.MessageWriter) error {
	return nil
}

type fakeAssistants struct {
	threadID string
	runID    string
	statuses []string
	reply    string

	createdThreads int
	posted         []string
	statusCalls    int
}

func (c *fakeAssistants) CreateThread(ctx context.Context) (string, error) {
	c.createdThreads++
	return c.threadID, nil
}
func (c *fakeAssistants) CreateMessage(ctx context.Context, threadID, content string) error {
	c.posted = append(c.posted, content)
	return nil
}
func (c *fakeAssistants) CreateRun(ctx context.Context, threadID, assistantID string) (string, error) {
	return c.runID, nil
}
func (c *fakeAssistants) GetRunStatus(ctx context.Context, threadID, runID string) (string, error) {
	i := c.statusCalls
	c.statusCalls++
	if i >= len(c.statuses) {
		return c.statuses[len(c.statuses)-1], nil
	}
	return c.statuses[i], nil
}
func (c *fakeAssistants) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	return c.reply, nil
}

// ---- harness ----

type relayFixture struct {
	users      *fakeUserRepo
	assistants *fakeAssistantRepo
	prefs      *fakePrefRepo
	convs      *fakeConvRepo
	llm        *fakeLLM
	api        *fakeAssistants
	events     []events.TranscriptEvent
	svc        RelayService
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	f := &relayFixture{
		users:      &fakeUserRepo{users: map[uint]*model.User{1: {ID: 1, Username: "ruth"}}},
		assistants: &fakeAssistantRepo{byRole: map[string]*model.Assistant{}},
		prefs:      &fakePrefRepo{prefs: map[uint]*model.UserPreference{}},
		convs:      newFakeConvRepo(),
		llm:        &fakeLLM{reply: "Grace and peace to you."},
		api:        &fakeAssistants{threadID: "thread-1", runID: "run-1", statuses: []string{llm.RunStatusCompleted}, reply: "Let us walk through this together."},
	}
	publish := func(e events.TranscriptEvent) error {
		f.events = append(f.events, e)
		return nil
	}
	f.svc = NewRelayService(f.assistants, f.convs, f.users, f.prefs, f.llm, f.api, publish, config.RelayConfig{
		DefaultRole:            model.RoleCoach,
		RunPollAttempts:        3,
		RunPollIntervalSeconds: 1,
		HistoryTurns:           20,
	})
	return f
}

// ---- fallback path ----

func TestRelayFallbackCreatesConversation(t *testing.T) {
	f := newRelayFixture(t)

	res, err := f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "I feel stuck lately."})
	require.NoError(t, err)

	assert.Equal(t, "Grace and peace to you.", res.Message)
	assert.Equal(t, model.RoleCoach, res.AssistantRole)
	assert.Equal(t, ModeFallback, res.Mode)
	require.NotEmpty(t, res.ConversationID)

	msgs := f.convs.messages[res.ConversationID]
	require.Len(t, msgs, 2)
	assert.Equal(t, model.SenderUser, msgs[0].Sender)
	assert.Equal(t, "I feel stuck lately.", msgs[0].Content)
	assert.Equal(t, model.SenderAssistant, msgs[1].Sender)
	assert.True(t, msgs[1].CreatedAt.After(msgs[0].CreatedAt), "assistant turn must sort after the user turn")
	assert.True(t, msgs[1].Meta.Fallback)

	conv := f.convs.convs[res.ConversationID]
	assert.Equal(t, "I feel stuck lately.", conv.Title)
	assert.False(t, conv.LastMessageAt.Before(msgs[1].CreatedAt))
}

func TestRelayFallbackThreadsHistory(t *testing.T) {
	f := newRelayFixture(t)

	first, err := f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "Morning."})
	require.NoError(t, err)

	_, err = f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "Where were we?", ConversationID: first.ConversationID})
	require.NoError(t, err)

	// system + prior user + prior assistant + new user turn
	require.Len(t, f.llm.received, 4)
	assert.Equal(t, "system", f.llm.received[0].Role)
	assert.Equal(t, "Morning.", f.llm.received[1].Content)
	assert.Equal(t, "assistant", f.llm.received[2].Role)
	assert.Equal(t, "Where were we?", f.llm.received[3].Content)
}

func TestRelayFallbackReusesConversation(t *testing.T) {
	f := newRelayFixture(t)

	first, err := f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "Hello"})
	require.NoError(t, err)

	second, err := f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "Again", ConversationID: first.ConversationID})
	require.NoError(t, err)

	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Len(t, f.convs.convs, 1)
	assert.Len(t, f.convs.messages[first.ConversationID], 4)
}

func TestRelayForeignConversationGetsFreshOne(t *testing.T) {
	f := newRelayFixture(t)
	f.convs.convs["other"] = &model.Conversation{ID: "other", UserID: 99}

	res, err := f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "Hi", ConversationID: "other"})
	require.NoError(t, err)

	assert.NotEqual(t, "other", res.ConversationID)
	assert.Empty(t, f.convs.messages["other"])
}

func TestRelayReplySurvivesStorageFailure(t *testing.T) {
	f := newRelayFixture(t)
	f.convs.failCreateMessage = true

	res, err := f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, "Grace and peace to you.", res.Message)
	assert.Empty(t, f.events, "nothing persisted means nothing to index")
}

func TestRelayReplySurvivesConversationCreateFailure(t *testing.T) {
	f := newRelayFixture(t)
	f.convs.failCreateConv = true

	res, err := f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, "Grace and peace to you.", res.Message)
	assert.Empty(t, res.ConversationID)
}

func TestRelayCompletionErrorPropagates(t *testing.T) {
	f := newRelayFixture(t)
	f.llm.err = errors.New("upstream down")

	_, err := f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "Hi"})
	require.Error(t, err)
}

func TestRelayRoleFromPreference(t *testing.T) {
	f := newRelayFixture(t)
	f.prefs.prefs[1] = &model.UserPreference{UserID: 1, PreferredRole: model.RoleMom}

	res, err := f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleMom, res.AssistantRole)
}

func TestRelayPublishesTranscriptEvent(t *testing.T) {
	f := newRelayFixture(t)

	res, err := f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "Hi"})
	require.NoError(t, err)

	require.Len(t, f.events, 1)
	e := f.events[0]
	assert.Equal(t, res.ConversationID, e.ConversationID)
	assert.Equal(t, uint(1), e.UserID)
	require.Len(t, e.Turns, 2)
	assert.NotEmpty(t, e.Turns[0].MessageID)
	assert.NotEmpty(t, e.Turns[1].MessageID)
	assert.Equal(t, model.SenderUser, e.Turns[0].Sender)
	assert.Equal(t, model.SenderAssistant, e.Turns[1].Sender)
}

// ---- assistant path ----

func resourceAssistant(role string) *model.Assistant {
	resID := "asst_abc"
	return &model.Assistant{ID: "a-1", Name: "Coach", Role: role, Active: true, OpenAIAssistantID: &resID}
}

func TestRelayAssistantPathCreatesThread(t *testing.T) {
	f := newRelayFixture(t)
	f.assistants.byRole[model.RoleCoach] = resourceAssistant(model.RoleCoach)

	res, err := f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "Help me plan my week."})
	require.NoError(t, err)

	assert.Equal(t, ModeAssistant, res.Mode)
	assert.Equal(t, "Let us walk through this together.", res.Message)
	assert.Equal(t, 1, f.api.createdThreads)
	assert.Equal(t, []string{"Help me plan my week."}, f.api.posted)

	conv := f.convs.convs[res.ConversationID]
	require.NotNil(t, conv.ThreadID)
	assert.Equal(t, "thread-1", *conv.ThreadID)

	msgs := f.convs.messages[res.ConversationID]
	require.Len(t, msgs, 2)
	assert.False(t, msgs[1].Meta.Fallback)
}

func TestRelayAssistantPathReusesThread(t *testing.T) {
	f := newRelayFixture(t)
	f.assistants.byRole[model.RoleCoach] = resourceAssistant(model.RoleCoach)

	first, err := f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "One"})
	require.NoError(t, err)

	_, err = f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "Two", ConversationID: first.ConversationID})
	require.NoError(t, err)

	assert.Equal(t, 1, f.api.createdThreads, "existing thread must be reused")
}

func TestRelayAssistantPathPollsToCompletion(t *testing.T) {
	f := newRelayFixture(t)
	f.assistants.byRole[model.RoleCoach] = resourceAssistant(model.RoleCoach)
	f.api.statuses = []string{llm.RunStatusInProgress, llm.RunStatusInProgress, llm.RunStatusCompleted}

	_, err := f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, 3, f.api.statusCalls)
}

func TestRelayAssistantRunTimeout(t *testing.T) {
	f := newRelayFixture(t)
	f.assistants.byRole[model.RoleCoach] = resourceAssistant(model.RoleCoach)
	f.api.statuses = []string{llm.RunStatusInProgress}

	_, err := f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "Hi"})
	require.ErrorIs(t, err, ErrRunTimeout)
}

func TestRelayAssistantRunFailure(t *testing.T) {
	f := newRelayFixture(t)
	f.assistants.byRole[model.RoleCoach] = resourceAssistant(model.RoleCoach)
	f.api.statuses = []string{llm.RunStatusFailed}

	_, err := f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "Hi"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrRunTimeout)
}

func TestRelayRoleWithoutResourceFallsBack(t *testing.T) {
	f := newRelayFixture(t)
	// Persona exists but has no provisioned resource id.
	f.assistants.byRole[model.RoleDad] = &model.Assistant{ID: "a-2", Name: "Dad", Role: model.RoleDad, Active: true}

	res, err := f.svc.Relay(context.Background(), RelayRequest{UserID: 1, Message: "Hi", AssistantRole: model.RoleDad})
	require.NoError(t, err)
	assert.Equal(t, ModeFallback, res.Mode)
	assert.Equal(t, model.RoleDad, res.AssistantRole)
}

func TestConversationTitleTruncation(t *testing.T) {
	long := "This is a very long opening message that keeps going well past the title limit for sure"
	title := conversationTitle(long)
	assert.LessOrEqual(t, len([]rune(title)), 61)
	assert.True(t, strings.HasSuffix(title, "…"))

	assert.Equal(t, "Hi", conversationTitle("  Hi  "))
}

func TestConversationTitleMultibyte(t *testing.T) {
	title := conversationTitle("a" + strings.Repeat("信", 80))
	assert.True(t, utf8.ValidString(title), "truncation must not split a rune")
	assert.True(t, strings.HasSuffix(title, "…"))
	assert.Equal(t, 61, len([]rune(title)))

	// Short multibyte input passes through untouched.
	short := strings.Repeat("信", 25)
	assert.Equal(t, short, conversationTitle(short))
}
