package chatrunner

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/go-go-golems/threadchat/pkg/events"
	"github.com/go-go-golems/threadchat/pkg/inference"
	"github.com/go-go-golems/threadchat/pkg/persistence/threadstore"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyThreadID = errors.New("chatrunner: thread id is empty")
	ErrEmptyMessage  = errors.New("chatrunner: message text is empty")
)

// Runner executes conversation turns: load history, ask the model, persist.
// Turns on the same thread are serialized; different threads run in parallel.
type Runner struct {
	store        threadstore.ThreadStore
	client       inference.Client
	sink         events.Sink
	systemPrompt string
	observer     StateObserver
	locks        *keyedLocks
}

// RunTurn appends userText to the thread, obtains the model's reply and
// persists both. If the model call fails nothing is persisted, so every stored
// user message has an answer. Errors are returned as-is; there are no retries.
func (r *Runner) RunTurn(ctx context.Context, threadID string, userText string) (conversation.Message, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return conversation.Message{}, ErrEmptyThreadID
	}
	if strings.TrimSpace(userText) == "" {
		return conversation.Message{}, ErrEmptyMessage
	}

	unlock, err := r.locks.Lock(ctx, threadID)
	if err != nil {
		return conversation.Message{}, errors.Wrap(err, "wait for thread")
	}
	defer unlock()

	t := &turn{
		runner:   r,
		threadID: threadID,
		turnID:   uuid.NewString(),
		state:    StateIdle,
		started:  time.Now(),
	}
	t.publish(ctx, events.TurnStarted, userText, nil, nil)

	reply, err := t.run(ctx, userText)
	if err != nil {
		t.transition(StateFailed)
		t.publish(ctx, events.TurnFailed, userText, nil, err)
		log.Warn().
			Err(err).
			Str("component", "chatrunner").
			Str("thread_id", threadID).
			Str("turn_id", t.turnID).
			Msg("turn failed")
		return conversation.Message{}, err
	}

	t.publish(ctx, events.TurnCompleted, userText, &reply, nil)
	log.Info().
		Str("component", "chatrunner").
		Str("thread_id", threadID).
		Str("turn_id", t.turnID).
		Dur("elapsed", time.Since(t.started)).
		Msg("turn persisted")
	return reply, nil
}

// ListThreads returns every thread id with persisted history.
func (r *Runner) ListThreads(ctx context.Context) ([]string, error) {
	return r.store.ListThreadIDs(ctx)
}

// History returns the latest persisted history of a thread.
func (r *Runner) History(ctx context.Context, threadID string) (conversation.History, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, ErrEmptyThreadID
	}
	return r.store.Load(ctx, threadID)
}

// Checkpoints lists the stored snapshots of a thread, newest first.
func (r *Runner) Checkpoints(ctx context.Context, threadID string, limit int) ([]threadstore.Checkpoint, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, ErrEmptyThreadID
	}
	return r.store.Checkpoints(ctx, threadID, limit)
}

type turn struct {
	runner   *Runner
	threadID string
	turnID   string
	state    TurnState
	started  time.Time
}

func (t *turn) run(ctx context.Context, userText string) (conversation.Message, error) {
	history, err := t.runner.store.Load(ctx, t.threadID)
	if err != nil {
		return conversation.Message{}, errors.Wrap(err, "load history")
	}
	t.transition(StateHistoryLoaded)

	history = history.Append(conversation.NewUserMessage(userText))

	t.transition(StateAwaitingReply)
	reply, err := t.runner.client.Complete(ctx, t.runner.promptContext(history))
	if err != nil {
		if !inference.IsInferenceError(err) {
			err = inference.NewPermanentError(err)
		}
		return conversation.Message{}, err
	}
	if reply.Role != conversation.RoleAssistant {
		return conversation.Message{}, inference.NewPermanentError(errors.Errorf("model replied with role %q", reply.Role))
	}

	history = history.Append(reply)
	if err := t.runner.store.Save(ctx, t.threadID, history); err != nil {
		return conversation.Message{}, errors.Wrap(err, "persist history")
	}
	t.transition(StatePersisted)
	return reply, nil
}

func (t *turn) transition(to TurnState) {
	from := t.state
	if !canTransition(from, to) {
		log.Error().
			Str("component", "chatrunner").
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("invalid turn state transition")
		return
	}
	t.state = to
	log.Debug().
		Str("component", "chatrunner").
		Str("thread_id", t.threadID).
		Str("turn_id", t.turnID).
		Str("state", to.String()).
		Msg("turn state changed")
	if t.runner.observer != nil {
		t.runner.observer(t.threadID, t.turnID, from, to)
	}
}

func (t *turn) publish(ctx context.Context, typ events.TurnEventType, userText string, reply *conversation.Message, turnErr error) {
	e := events.TurnEvent{
		Type:      typ,
		ThreadID:  t.threadID,
		TurnID:    t.turnID,
		State:     t.state.String(),
		UserText:  userText,
		Reply:     reply,
		Timestamp: time.Now().UTC(),
	}
	if turnErr != nil {
		e.Error = turnErr.Error()
		e.ErrorKind = errorKind(turnErr)
	}
	if err := t.runner.sink.PublishTurnEvent(ctx, e); err != nil {
		log.Warn().Err(err).Str("component", "chatrunner").Str("thread_id", t.threadID).Msg("could not publish turn event")
	}
}

// promptContext is what the model sees. The system prompt is not part of the
// persisted history.
func (r *Runner) promptContext(history conversation.History) conversation.History {
	if r.systemPrompt == "" {
		return history
	}
	return conversation.History{conversation.NewSystemMessage(r.systemPrompt)}.Append(history...)
}

func errorKind(err error) string {
	switch {
	case inference.IsTransient(err):
		return "inference_transient"
	case inference.IsPermanent(err):
		return "inference_permanent"
	case threadstore.IsStorageError(err):
		return "storage"
	default:
		return "other"
	}
}
