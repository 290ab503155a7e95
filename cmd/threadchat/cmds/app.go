package cmds

import (
	"context"

	"github.com/go-go-golems/threadchat/pkg/chatrunner"
	"github.com/go-go-golems/threadchat/pkg/config"
	"github.com/go-go-golems/threadchat/pkg/events"
	"github.com/go-go-golems/threadchat/pkg/persistence/threadstore"
	"github.com/go-go-golems/threadchat/pkg/webchat"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// app is what a command needs at runtime. runner is nil for read-only
// commands, which talk to the store directly.
type app struct {
	settings *config.Settings
	store    threadstore.ThreadStore
	bus      *events.Bus
	runner   *chatrunner.Runner
}

func openApp(ctx context.Context, v *viper.Viper, withRunner bool) (*app, error) {
	settings, err := loadSettings(v, withRunner)
	if err != nil {
		return nil, err
	}

	store, err := threadstore.Open(ctx, settings.Store)
	if err != nil {
		return nil, errors.Wrap(err, "open thread store")
	}
	a := &app{settings: settings, store: store}
	log.Debug().Str("backend", settings.Store.Backend).Msg("thread store opened")

	if !withRunner {
		return a, nil
	}

	bus, err := events.NewBus(settings.Events)
	if err != nil {
		_ = a.Close()
		return nil, errors.Wrap(err, "open event bus")
	}
	a.bus = bus

	client, err := settings.NewClient()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	runner, err := chatrunner.NewBuilder().
		WithStore(store).
		WithClient(client).
		WithSink(bus.Sink()).
		WithSystemPrompt(settings.Inference.SystemPrompt).
		Build()
	if err != nil {
		_ = a.Close()
		return nil, errors.Wrap(err, "build conversation runner")
	}
	a.runner = runner
	return a, nil
}

// subscriber returns the bus as an event subscriber, or nil without a bus.
func (a *app) subscriber() webchat.EventSubscriber {
	if a.bus == nil {
		return nil
	}
	return a.bus
}

func (a *app) Close() error {
	var first error
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			first = err
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
