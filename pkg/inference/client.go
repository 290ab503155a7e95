package inference

import (
	"context"

	"github.com/go-go-golems/threadchat/pkg/conversation"
)

// Client produces the model's reply to a conversation. Implementations must
// treat history as read-only and always answer with an assistant message.
type Client interface {
	Complete(ctx context.Context, history conversation.History) (conversation.Message, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, history conversation.History) (conversation.Message, error)

func (f ClientFunc) Complete(ctx context.Context, history conversation.History) (conversation.Message, error) {
	return f(ctx, history)
}
