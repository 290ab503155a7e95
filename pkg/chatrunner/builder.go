package chatrunner

import (
	"strings"

	"github.com/go-go-golems/threadchat/pkg/events"
	"github.com/go-go-golems/threadchat/pkg/inference"
	"github.com/go-go-golems/threadchat/pkg/persistence/threadstore"
	"github.com/pkg/errors"
)

// Builder assembles a Runner. The store and the client are required.
type Builder struct {
	err          error
	store        threadstore.ThreadStore
	client       inference.Client
	sink         events.Sink
	systemPrompt string
	observer     StateObserver
}

func NewBuilder() *Builder {
	return &Builder{sink: events.NullSink{}}
}

// WithStore sets the thread store. (Required)
func (b *Builder) WithStore(store threadstore.ThreadStore) *Builder {
	if b.err != nil {
		return b
	}
	if store == nil {
		b.err = errors.New("store cannot be nil")
		return b
	}
	b.store = store
	return b
}

// WithClient sets the inference client. (Required)
func (b *Builder) WithClient(client inference.Client) *Builder {
	if b.err != nil {
		return b
	}
	if client == nil {
		b.err = errors.New("client cannot be nil")
		return b
	}
	b.client = client
	return b
}

// WithSink publishes turn lifecycle events. A nil sink keeps the default NullSink.
func (b *Builder) WithSink(sink events.Sink) *Builder {
	if b.err != nil || sink == nil {
		return b
	}
	b.sink = sink
	return b
}

// WithSystemPrompt prepends a system message to every model request.
func (b *Builder) WithSystemPrompt(prompt string) *Builder {
	if b.err != nil {
		return b
	}
	b.systemPrompt = strings.TrimSpace(prompt)
	return b
}

func (b *Builder) WithStateObserver(observer StateObserver) *Builder {
	if b.err != nil {
		return b
	}
	b.observer = observer
	return b
}

func (b *Builder) Build() (*Runner, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.store == nil {
		return nil, errors.New("store is required")
	}
	if b.client == nil {
		return nil, errors.New("client is required")
	}
	return &Runner{
		store:        b.store,
		client:       b.client,
		sink:         b.sink,
		systemPrompt: b.systemPrompt,
		observer:     b.observer,
		locks:        newKeyedLocks(),
	}, nil
}
