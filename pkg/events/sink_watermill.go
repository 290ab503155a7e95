package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ThreadIDMetadataKey carries the thread id on every published message so
// subscribers can filter without decoding the payload.
const ThreadIDMetadataKey = "thread_id"

// WatermillSink publishes turn events as JSON to a watermill topic.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

var _ Sink = (*WatermillSink)(nil)

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{publisher: publisher, topic: topic}
}

func (w *WatermillSink) PublishTurnEvent(ctx context.Context, e TurnEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encode turn event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(ThreadIDMetadataKey, e.ThreadID)
	msg.SetContext(ctx)

	if err := w.publisher.Publish(w.topic, msg); err != nil {
		log.Error().Err(err).Str("topic", w.topic).Msg("failed to publish turn event")
		return errors.Wrap(err, "publish turn event")
	}
	log.Trace().Str("topic", w.topic).Str("event_type", string(e.Type)).Str("thread_id", e.ThreadID).Msg("published turn event")
	return nil
}
