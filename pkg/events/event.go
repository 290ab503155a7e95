package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/pkg/errors"
)

type TurnEventType string

const (
	TurnStarted   TurnEventType = "turn.started"
	TurnCompleted TurnEventType = "turn.completed"
	TurnFailed    TurnEventType = "turn.failed"
)

// TurnEvent describes a lifecycle step of one conversation turn.
type TurnEvent struct {
	Type      TurnEventType         `json:"type"`
	ThreadID  string                `json:"thread_id"`
	TurnID    string                `json:"turn_id"`
	State     string                `json:"state"`
	UserText  string                `json:"user_text,omitempty"`
	Reply     *conversation.Message `json:"reply,omitempty"`
	Error     string                `json:"error,omitempty"`
	ErrorKind string                `json:"error_kind,omitempty"`
	Timestamp time.Time             `json:"ts"`
}

// Sink receives turn events. Publishing must not block the turn for long.
type Sink interface {
	PublishTurnEvent(ctx context.Context, e TurnEvent) error
}

// NullSink drops every event.
type NullSink struct{}

func (NullSink) PublishTurnEvent(context.Context, TurnEvent) error { return nil }

var _ Sink = NullSink{}

func NewTurnEventFromJSON(b []byte) (TurnEvent, error) {
	var e TurnEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return TurnEvent{}, errors.Wrap(err, "decode turn event")
	}
	if e.Type == "" {
		return TurnEvent{}, errors.New("decode turn event: missing type")
	}
	return e, nil
}
