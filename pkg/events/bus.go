package events

import (
	"context"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	BackendNone      = "none"
	BackendGoChannel = "gochannel"
	BackendRedis     = "redis"

	DefaultTopic = "threadchat.turns"
)

// Settings selects the transport for turn events.
type Settings struct {
	Backend   string `mapstructure:"backend"`
	Topic     string `mapstructure:"topic"`
	RedisAddr string `mapstructure:"redis-addr"`
	// RedisGroup left empty makes every subscriber see every event.
	RedisGroup    string `mapstructure:"redis-group"`
	RedisConsumer string `mapstructure:"redis-consumer"`
}

// Bus owns a watermill publisher/subscriber pair for turn events.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string
	closers    []func() error
}

// NewBus builds the transport named in settings. The "none" backend returns a
// nil bus; callers then use NullSink.
func NewBus(settings Settings) (*Bus, error) {
	topic := strings.TrimSpace(settings.Topic)
	if topic == "" {
		topic = DefaultTopic
	}
	logger := NewWatermillLogger(log.Logger)

	switch strings.ToLower(strings.TrimSpace(settings.Backend)) {
	case "", BackendNone:
		return nil, nil
	case BackendGoChannel:
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
			// deliver in publish order; otherwise every message gets its own goroutine
			BlockPublishUntilSubscriberAck: true,
		}, logger)
		return &Bus{
			publisher:  ch,
			subscriber: ch,
			topic:      topic,
			closers:    []func() error{ch.Close},
		}, nil
	case BackendRedis:
		if strings.TrimSpace(settings.RedisAddr) == "" {
			return nil, errors.New("events: redis backend needs an address")
		}
		client := redis.NewClient(&redis.Options{Addr: settings.RedisAddr})
		if settings.RedisGroup != "" {
			if err := ensureGroupAtTail(client, topic, settings.RedisGroup); err != nil {
				_ = client.Close()
				return nil, err
			}
		}
		marshaler := rstream.DefaultMarshallerUnmarshaller{}
		pub, err := rstream.NewPublisher(rstream.PublisherConfig{
			Client:     client,
			Marshaller: marshaler,
		}, logger)
		if err != nil {
			_ = client.Close()
			return nil, errors.Wrap(err, "events: redis publisher")
		}
		sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
			Client:        client,
			Unmarshaller:  marshaler,
			ConsumerGroup: settings.RedisGroup,
			Consumer:      settings.RedisConsumer,
		}, logger)
		if err != nil {
			_ = pub.Close()
			_ = client.Close()
			return nil, errors.Wrap(err, "events: redis subscriber")
		}
		return &Bus{
			publisher:  pub,
			subscriber: sub,
			topic:      topic,
			closers:    []func() error{sub.Close, pub.Close, client.Close},
		}, nil
	default:
		return nil, errors.Errorf("events: unknown backend %q", settings.Backend)
	}
}

// ensureGroupAtTail creates the consumer group at "$" so a new group does not
// replay the whole stream.
func ensureGroupAtTail(client *redis.Client, stream, group string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// BUSYGROUP: the group already exists
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrap(err, "events: create redis consumer group")
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}

func (b *Bus) Topic() string { return b.topic }

// Sink returns a publisher-side sink, or NullSink for a nil bus.
func (b *Bus) Sink() Sink {
	if b == nil {
		return NullSink{}
	}
	return NewWatermillSink(b.publisher, b.topic)
}

// Subscribe streams decoded turn events until ctx is done. When threadID is
// non-empty, events of other threads are skipped.
func (b *Bus) Subscribe(ctx context.Context, threadID string) (<-chan TurnEvent, error) {
	if b == nil {
		return nil, errors.New("events: no bus configured")
	}
	msgs, err := b.subscriber.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, errors.Wrap(err, "events: subscribe")
	}
	out := make(chan TurnEvent, 16)
	go func() {
		defer close(out)
		for msg := range msgs {
			if threadID != "" && msg.Metadata.Get(ThreadIDMetadataKey) != threadID {
				msg.Ack()
				continue
			}
			e, err := NewTurnEventFromJSON(msg.Payload)
			msg.Ack()
			if err != nil {
				log.Warn().Err(err).Str("component", "events").Msg("dropping undecodable event")
				continue
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
