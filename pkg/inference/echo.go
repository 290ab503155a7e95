package inference

import (
	"context"
	"time"

	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/pkg/errors"
)

// EchoClient answers with the text of the last user message. It is the offline
// provider: no credentials, no network.
type EchoClient struct {
	Prefix string
	Delay  time.Duration
}

var _ Client = &EchoClient{}

func NewEchoClient() *EchoClient {
	return &EchoClient{}
}

func (e *EchoClient) Complete(ctx context.Context, history conversation.History) (conversation.Message, error) {
	last, ok := history.LastOfRole(conversation.RoleUser)
	if !ok {
		return conversation.Message{}, NewPermanentError(errors.New("echo: no user message to echo"))
	}
	if e.Delay > 0 {
		select {
		case <-ctx.Done():
			return conversation.Message{}, classifyTransport(ctx.Err())
		case <-time.After(e.Delay):
		}
	}
	return conversation.NewAssistantMessage(e.Prefix + last.Content), nil
}
