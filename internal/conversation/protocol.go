// Package conversation turns commands and button presses into prompt, record and summary steps.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Proton-105/mood-bot/internal/domain"
	apperrors "github.com/Proton-105/mood-bot/internal/errors"
	"github.com/Proton-105/mood-bot/internal/i18n"
	"github.com/Proton-105/mood-bot/internal/state"
	"github.com/Proton-105/mood-bot/internal/store"
	"github.com/Proton-105/mood-bot/pkg/metrics"
)

const (
	TriggerStart     = "start"
	TriggerScheduled = "scheduled"
)

// ErrAnswerInProgress is returned when another answer for the same user is being recorded.
var ErrAnswerInProgress = errors.New("answer already being recorded")

type Deps struct {
	Store    store.Store
	Turns    state.StateMachine
	Gateway  Gateway
	Jobs     Jobs
	Catalog  *i18n.Manager
	FireTime func() domain.ClockTime
	Log      *slog.Logger
}

type Protocol struct {
	store    store.Store
	turns    state.StateMachine
	gateway  Gateway
	jobs     Jobs
	catalog  *i18n.Manager
	fireTime func() domain.ClockTime
	log      *slog.Logger
}

func New(deps Deps) *Protocol {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	fireTime := deps.FireTime
	if fireTime == nil {
		fireTime = func() domain.ClockTime { return domain.ClockTime{Hour: 10} }
	}

	return &Protocol{
		store:    deps.Store,
		turns:    deps.Turns,
		gateway:  deps.Gateway,
		jobs:     deps.Jobs,
		catalog:  deps.Catalog,
		fireTime: fireTime,
		log:      log.With(slog.String("component", "conversation")),
	}
}

// SetJobs wires the scheduler after construction; the scheduler's dispatcher needs the
// protocol first.
func (p *Protocol) SetJobs(jobs Jobs) {
	p.jobs = jobs
}

// OnStart registers the user, opts them in, installs their job and asks for today's mood.
func (p *Protocol) OnStart(ctx context.Context, in Inbound) error {
	if err := p.store.UpsertUser(ctx, in.Profile()); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	if err := p.store.SetNotificationPreference(ctx, in.UserID, true); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	if p.jobs != nil {
		if err := p.jobs.Enable(ctx, in.UserID); err != nil {
			return fmt.Errorf("start: enable job: %w", err)
		}
	}

	tr := p.catalog.Translator(in.Lang)
	if _, err := p.gateway.SendMessage(ctx, in.ChatID, tr.T("welcome", p.fireTime().String()), nil); err != nil {
		return fmt.Errorf("start: welcome: %w", err)
	}

	return p.sendPrompt(ctx, in.UserID, in.ChatID, tr, TriggerStart)
}

// SendPrompt replaces any outstanding prompt with a fresh one.
func (p *Protocol) SendPrompt(ctx context.Context, userID, chatID int64, lang string) error {
	return p.sendPrompt(ctx, userID, chatID, p.catalog.Translator(lang), TriggerStart)
}

// SendScheduledPrompt is the daily job action. The chat and language of the last turn are
// reused; private chats share the user's id.
func (p *Protocol) SendScheduledPrompt(ctx context.Context, userID int64) error {
	chatID, lang := userID, ""

	turn, err := p.turns.GetState(ctx, userID)
	if err != nil {
		p.log.WarnContext(ctx, "turn unavailable, using defaults", slog.Int64("user_id", userID), slog.Any("error", err))
	} else {
		if turn.ChatID != 0 {
			chatID = turn.ChatID
		}
		lang = turn.Lang
	}

	return p.sendPrompt(ctx, userID, chatID, p.catalog.Translator(lang), TriggerScheduled)
}

func (p *Protocol) sendPrompt(ctx context.Context, userID, chatID int64, tr i18n.Translator, trigger string) error {
	log := p.log.With(slog.Int64("user_id", userID), slog.String("trigger", trigger))

	if turn, err := p.turns.GetState(ctx, userID); err == nil && turn.HasPendingPrompt() {
		if err := p.gateway.DeleteMessage(ctx, turn.ChatID, turn.PromptMessageID); err != nil {
			log.WarnContext(ctx, "stale prompt not removed", slog.Int("message_id", turn.PromptMessageID), slog.Any("error", err))
		}
	}

	messageID, err := p.gateway.SendMessage(ctx, chatID, tr.T("prompt.question"), p.choices(tr))
	if err != nil {
		return fmt.Errorf("send prompt: %w", err)
	}

	metrics.RecordPromptSent(trigger)

	if _, err := p.turns.TransitionTo(ctx, userID, state.StatePromptSent, func(s *state.UserState) {
		s.ChatID = chatID
		s.PromptMessageID = messageID
		s.Lang = tr.Lang()
	}); err != nil {
		log.WarnContext(ctx, "prompt sent but turn not saved", slog.Int("message_id", messageID), slog.Any("error", err))
	}

	log.InfoContext(ctx, "prompt sent", slog.Int("message_id", messageID))
	return nil
}

func (p *Protocol) choices(tr i18n.Translator) []Choice {
	choices := make([]Choice, 0, len(domain.Moods))
	for _, mood := range domain.Moods {
		choices = append(choices, Choice{
			Text:    p.moodLabel(tr, mood),
			Payload: mood.Payload(),
		})
	}
	return choices
}

func (p *Protocol) moodLabel(tr i18n.Translator, mood domain.MoodValue) string {
	return mood.Icon() + " " + tr.T("mood."+mood.Key())
}

// OnMoodReply records the answer carried by payload and replies with the updated averages.
// The mood is stored before the prompt is removed, so a failed write leaves the prompt
// answerable.
func (p *Protocol) OnMoodReply(ctx context.Context, in Inbound, payload string, promptMessageID int) error {
	value, err := domain.ParseMoodPayload(payload)
	if err != nil {
		return apperrors.NewMalformedInputError("mood reply", err)
	}

	log := p.log.With(slog.Int64("user_id", in.UserID), slog.Int("mood", int(value)))

	// Only a turn already in recording rejects the answer. A lock held by a concurrent prompt
	// delivery must not lose it.
	if _, err := p.turns.TransitionTo(ctx, in.UserID, state.StateRecording, nil); err != nil {
		if errors.Is(err, state.ErrInvalidTransition) {
			return ErrAnswerInProgress
		}
		log.WarnContext(ctx, "turn unavailable, recording anyway", slog.Any("error", err))
	}

	if err := p.store.RecordMood(ctx, in.UserID, value); err != nil {
		if _, terr := p.turns.TransitionTo(ctx, in.UserID, state.StatePromptSent, nil); terr != nil {
			log.WarnContext(ctx, "turn not restored", slog.Any("error", terr))
		}
		return fmt.Errorf("mood reply: %w", err)
	}

	metrics.RecordMood(value.Key())

	if promptMessageID != 0 {
		if err := p.gateway.DeleteMessage(ctx, in.ChatID, promptMessageID); err != nil {
			log.WarnContext(ctx, "answered prompt not removed", slog.Int("message_id", promptMessageID), slog.Any("error", err))
		}
	}

	p.finishTurn(ctx, in.UserID, promptMessageID)

	stats := p.store.ComputeStats(ctx, in.UserID)
	tr := p.catalog.Translator(in.Lang)
	summary := tr.T("summary", p.moodLabel(tr, value), stats.Weekly, stats.Monthly)

	if _, err := p.gateway.SendMessage(ctx, in.ChatID, summary, nil); err != nil {
		return fmt.Errorf("mood reply: summary: %w", err)
	}

	log.InfoContext(ctx, "mood recorded")
	return nil
}

// finishTurn returns to idle unless a newer prompt was sent while recording.
func (p *Protocol) finishTurn(ctx context.Context, userID int64, answered int) {
	turn, err := p.turns.GetState(ctx, userID)
	if err != nil {
		p.log.WarnContext(ctx, "turn unavailable", slog.Int64("user_id", userID), slog.Any("error", err))
		return
	}

	if turn.CurrentState == state.StatePromptSent && turn.PromptMessageID != answered {
		return
	}

	if _, err := p.turns.TransitionTo(ctx, userID, state.StateIdle, func(s *state.UserState) {
		s.PromptMessageID = 0
	}); err != nil {
		p.log.WarnContext(ctx, "turn not finished", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

// OnStop opts the user out and cancels future reminders.
func (p *Protocol) OnStop(ctx context.Context, in Inbound) error {
	if err := p.store.SetNotificationPreference(ctx, in.UserID, false); err != nil {
		return fmt.Errorf("stop: %w", err)
	}

	if p.jobs != nil {
		p.jobs.Disable(ctx, in.UserID)
	}

	if _, err := p.gateway.SendMessage(ctx, in.ChatID, p.catalog.Translator(in.Lang).T("stop"), nil); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

func (p *Protocol) OnStats(ctx context.Context, in Inbound) error {
	stats := p.store.ComputeStats(ctx, in.UserID)
	text := p.catalog.Translator(in.Lang).T("stats", stats.Weekly, stats.Monthly)

	if _, err := p.gateway.SendMessage(ctx, in.ChatID, text, nil); err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	return nil
}

func (p *Protocol) OnHelp(ctx context.Context, in Inbound) error {
	text := p.catalog.Translator(in.Lang).T("help", p.fireTime().String())

	if _, err := p.gateway.SendMessage(ctx, in.ChatID, text, nil); err != nil {
		return fmt.Errorf("help: %w", err)
	}
	return nil
}

// OnText answers free text: a reminder to use the buttons while a prompt is pending, help
// otherwise.
func (p *Protocol) OnText(ctx context.Context, in Inbound) error {
	turn, err := p.turns.GetState(ctx, in.UserID)
	if err != nil || !turn.HasPendingPrompt() {
		return p.OnHelp(ctx, in)
	}

	if _, err := p.gateway.SendMessage(ctx, in.ChatID, p.catalog.Translator(in.Lang).T("text.pending"), nil); err != nil {
		return fmt.Errorf("text: %w", err)
	}
	return nil
}
