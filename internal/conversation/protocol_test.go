package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/mood-bot/internal/domain"
	apperrors "github.com/Proton-105/mood-bot/internal/errors"
	"github.com/Proton-105/mood-bot/internal/i18n"
	"github.com/Proton-105/mood-bot/internal/state"
	"github.com/Proton-105/mood-bot/internal/store"
)

type sentMessage struct {
	id      int
	chatID  int64
	text    string
	choices []Choice
}

type fakeGateway struct {
	mu      sync.Mutex
	nextID  int
	sent    []sentMessage
	deleted []int
	sendErr error
}

func (g *fakeGateway) SendMessage(_ context.Context, chatID int64, text string, choices []Choice) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sendErr != nil {
		return 0, g.sendErr
	}

	g.nextID++
	g.sent = append(g.sent, sentMessage{id: g.nextID, chatID: chatID, text: text, choices: choices})
	return g.nextID, nil
}

func (g *fakeGateway) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.deleted = append(g.deleted, messageID)
	return nil
}

func (g *fakeGateway) last() sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sent[len(g.sent)-1]
}

type fakeJobs struct {
	enabled  []int64
	disabled []int64
}

func (j *fakeJobs) Enable(_ context.Context, userID int64) error {
	j.enabled = append(j.enabled, userID)
	return nil
}

func (j *fakeJobs) Disable(_ context.Context, userID int64) bool {
	j.disabled = append(j.disabled, userID)
	return true
}

type fixture struct {
	protocol *Protocol
	store    *store.Memory
	turns    state.StateMachine
	gateway  *fakeGateway
	jobs     *fakeJobs
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithTurns(t, state.NewStateMachine(state.NewMemoryStorage(), testLogger(), nil))
}

// newRedisFixture keeps turns in miniredis, locked per user with SETNX.
func newRedisFixture(t *testing.T) (*fixture, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	turns := state.NewStateMachine(state.NewRedisStorage(client, testLogger()), testLogger(), client)
	return newFixtureWithTurns(t, turns), client
}

func newFixtureWithTurns(t *testing.T, turns state.StateMachine) *fixture {
	t.Helper()

	catalog, err := i18n.Load("en")
	require.NoError(t, err)

	log := testLogger()
	f := &fixture{
		store:   store.NewMemory(),
		turns:   turns,
		gateway: &fakeGateway{},
		jobs:    &fakeJobs{},
	}

	f.protocol = New(Deps{
		Store:    f.store,
		Turns:    f.turns,
		Gateway:  f.gateway,
		Jobs:     f.jobs,
		Catalog:  catalog,
		FireTime: func() domain.ClockTime { return domain.ClockTime{Hour: 9, Minute: 30} },
		Log:      log,
	})
	return f
}

func alice() Inbound {
	return Inbound{UserID: 1, ChatID: 1, Username: "alice", FirstName: "Alice", Lang: "en"}
}

func TestStartPromptAnswerSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.protocol.OnStart(ctx, alice()))

	user, err := f.store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.True(t, user.NotificationsEnabled)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, []int64{1}, f.jobs.enabled)

	require.Len(t, f.gateway.sent, 2)
	assert.Contains(t, f.gateway.sent[0].text, "09:30")

	prompt := f.gateway.sent[1]
	require.Len(t, prompt.choices, 3)
	assert.Equal(t, "mood_1", prompt.choices[0].Payload)
	assert.Equal(t, "mood_0", prompt.choices[1].Payload)
	assert.Equal(t, "mood_-1", prompt.choices[2].Payload)
	assert.Equal(t, "😊 Good", prompt.choices[0].Text)

	turn, err := f.turns.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, state.StatePromptSent, turn.CurrentState)
	assert.Equal(t, prompt.id, turn.PromptMessageID)

	require.NoError(t, f.protocol.OnMoodReply(ctx, alice(), "mood_1", prompt.id))

	entries, err := f.store.ListMoods(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.MoodGood, entries[0].Value)

	assert.Equal(t, []int{prompt.id}, f.gateway.deleted)

	summary := f.gateway.last()
	assert.Nil(t, summary.choices)
	assert.Contains(t, summary.text, "😊 Good")
	assert.Contains(t, summary.text, "Week: 1.00")
	assert.Contains(t, summary.text, "Month: 1.00")

	turn, err = f.turns.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, state.StateIdle, turn.CurrentState)
	assert.False(t, turn.HasPendingPrompt())
}

func TestOnMoodReply_MalformedPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.protocol.OnStart(ctx, alice()))
	sent := len(f.gateway.sent)

	for _, payload := range []string{"mood_abc", "mood_2", "mood_", "happy"} {
		err := f.protocol.OnMoodReply(ctx, alice(), payload, 2)
		assert.True(t, apperrors.IsKind(err, apperrors.KindMalformedInput), payload)
	}

	entries, err := f.store.ListMoods(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Len(t, f.gateway.sent, sent)
	assert.Empty(t, f.gateway.deleted)

	turn, err := f.turns.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, state.StatePromptSent, turn.CurrentState)
}

func TestOnMoodReply_DuplicateWhileRecording(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.protocol.OnStart(ctx, alice()))

	_, err := f.turns.TransitionTo(ctx, 1, state.StateRecording, nil)
	require.NoError(t, err)

	err = f.protocol.OnMoodReply(ctx, alice(), "mood_0", 2)
	assert.ErrorIs(t, err, ErrAnswerInProgress)

	entries, err := f.store.ListMoods(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOnMoodReply_RecordsWhileTurnLockIsHeld(t *testing.T) {
	f, client := newRedisFixture(t)
	ctx := context.Background()

	require.NoError(t, f.protocol.OnStart(ctx, alice()))
	promptID := f.gateway.last().id

	// a prompt delivery for the same user holds the turn lock for the whole reply
	require.NoError(t, client.Set(ctx, "mood:turn:lock:1", 1, time.Minute).Err())

	require.NoError(t, f.protocol.OnMoodReply(ctx, alice(), "mood_1", promptID))

	entries, err := f.store.ListMoods(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.MoodGood, entries[0].Value)

	assert.Contains(t, f.gateway.last().text, "Week: 1.00")
	assert.Contains(t, f.gateway.deleted, promptID)
}

func TestOnMoodReply_FailedWriteKeepsPrompt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stranger := Inbound{UserID: 7, ChatID: 7, Lang: "en"}

	require.NoError(t, f.protocol.SendPrompt(ctx, 7, 7, "en"))
	promptID := f.gateway.last().id

	err := f.protocol.OnMoodReply(ctx, stranger, "mood_-1", promptID)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindStoreWrite))

	assert.Empty(t, f.gateway.deleted)

	turn, err := f.turns.GetState(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, state.StatePromptSent, turn.CurrentState)
	assert.Equal(t, promptID, turn.PromptMessageID)
}

func TestOnMoodReply_KeepsNewerPrompt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.protocol.OnStart(ctx, alice()))
	first := f.gateway.last().id

	_, err := f.turns.TransitionTo(ctx, 1, state.StateRecording, nil)
	require.NoError(t, err)
	_, err = f.turns.TransitionTo(ctx, 1, state.StatePromptSent, func(s *state.UserState) {
		s.PromptMessageID = 99
	})
	require.NoError(t, err)

	f.protocol.finishTurn(ctx, 1, first)

	turn, err := f.turns.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, state.StatePromptSent, turn.CurrentState)
	assert.Equal(t, 99, turn.PromptMessageID)
}

func TestSendScheduledPrompt_ReplacesStalePrompt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.turns.TransitionTo(ctx, 5, state.StatePromptSent, func(s *state.UserState) {
		s.ChatID = 500
		s.PromptMessageID = 41
		s.Lang = "ru"
	})
	require.NoError(t, err)

	require.NoError(t, f.protocol.SendScheduledPrompt(ctx, 5))

	assert.Equal(t, []int{41}, f.gateway.deleted)

	prompt := f.gateway.last()
	assert.Equal(t, int64(500), prompt.chatID)
	assert.Len(t, prompt.choices, 3)
	assert.NotEqual(t, "How is your mood today?", prompt.text)

	turn, err := f.turns.GetState(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, prompt.id, turn.PromptMessageID)
	assert.Equal(t, "ru", turn.Lang)
}

func TestSendScheduledPrompt_NoTurnUsesUserChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.protocol.SendScheduledPrompt(ctx, 8))

	prompt := f.gateway.last()
	assert.Equal(t, int64(8), prompt.chatID)
	assert.Equal(t, "How is your mood today?", prompt.text)
	assert.Empty(t, f.gateway.deleted)
}

func TestSendPrompt_TransportFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.sendErr = apperrors.NewTransportError("send_message", errors.New("blocked"))

	err := f.protocol.SendScheduledPrompt(ctx, 3)
	assert.True(t, apperrors.IsKind(err, apperrors.KindTransport))

	turn, err := f.turns.GetState(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, state.StateIdle, turn.CurrentState)
}

func TestOnStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.protocol.OnStart(ctx, alice()))

	require.NoError(t, f.protocol.OnStop(ctx, alice()))

	user, err := f.store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.False(t, user.NotificationsEnabled)
	assert.Equal(t, []int64{1}, f.jobs.disabled)
	assert.Contains(t, f.gateway.last().text, "reminders are off")
}

func TestOnStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertUser(ctx, domain.Profile{ID: 1}))
	for _, v := range []domain.MoodValue{domain.MoodGood, domain.MoodGood, domain.MoodBad} {
		require.NoError(t, f.store.RecordMood(ctx, 1, v))
	}

	require.NoError(t, f.protocol.OnStats(ctx, alice()))

	text := f.gateway.last().text
	assert.Contains(t, text, "Week: 0.33")
	assert.Contains(t, text, "Month: 0.33")
}

func TestOnText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.protocol.OnText(ctx, alice()))
	assert.Contains(t, f.gateway.last().text, "09:30")

	require.NoError(t, f.protocol.SendPrompt(ctx, 1, 1, "en"))
	require.NoError(t, f.protocol.OnText(ctx, alice()))
	assert.Contains(t, f.gateway.last().text, "buttons above")
}
