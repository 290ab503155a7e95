package tokens

import (
	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// Chat framing cost, following the OpenAI accounting for chat models: every
// message carries a few wrapper tokens and the reply is primed with three more.
const (
	perMessageOverhead = 3
	replyPriming       = 3
)

// Counter estimates prompt sizes. Llama-family models use a different
// vocabulary, so the numbers are approximations good for budgeting.
type Counter struct {
	codec    tokenizer.Codec
	encoding string
}

// NewCounter returns a counter for model, or for encoding when model is empty
// or unknown to the tokenizer.
func NewCounter(model, encoding string) (*Counter, error) {
	if model != "" {
		if c, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
			return &Counter{codec: c, encoding: c.GetName()}, nil
		}
	}
	if encoding == "" {
		encoding = string(tokenizer.Cl100kBase)
	}
	c, err := tokenizer.Get(tokenizer.Encoding(encoding))
	if err != nil {
		return nil, errors.Wrapf(err, "unknown token encoding %q", encoding)
	}
	return &Counter{codec: c, encoding: encoding}, nil
}

func (c *Counter) Encoding() string { return c.encoding }

func (c *Counter) Count(text string) (int, error) {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, errors.Wrap(err, "error encoding input")
	}
	return len(ids), nil
}

// HistoryCount holds per-message counts plus the framed prompt total.
type HistoryCount struct {
	PerMessage []int `json:"per_message" yaml:"per_message"`
	Content    int   `json:"content" yaml:"content"`
	Prompt     int   `json:"prompt" yaml:"prompt"`
}

func (c *Counter) CountHistory(h conversation.History) (HistoryCount, error) {
	ret := HistoryCount{PerMessage: make([]int, 0, len(h))}
	for _, m := range h {
		n, err := c.Count(m.Content)
		if err != nil {
			return HistoryCount{}, err
		}
		roleTokens, err := c.Count(m.Role.String())
		if err != nil {
			return HistoryCount{}, err
		}
		ret.PerMessage = append(ret.PerMessage, n)
		ret.Content += n
		ret.Prompt += n + roleTokens + perMessageOverhead
	}
	if len(h) > 0 {
		ret.Prompt += replyPriming
	}
	return ret, nil
}
