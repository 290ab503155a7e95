package inference

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultBaseURL points at Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.1-8b-instant"
)

// OpenAISettings configures an OpenAI-compatible chat completion endpoint.
type OpenAISettings struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float32
	MaxTokens   int
}

// OpenAIClient talks to any endpoint that implements the OpenAI chat
// completions API.
type OpenAIClient struct {
	client   *go_openai.Client
	settings OpenAISettings
}

var _ Client = &OpenAIClient{}

func NewOpenAIClient(settings OpenAISettings) (*OpenAIClient, error) {
	if strings.TrimSpace(settings.APIKey) == "" {
		return nil, errors.New("openai client: no API key")
	}
	if strings.TrimSpace(settings.Model) == "" {
		settings.Model = DefaultModel
	}
	if strings.TrimSpace(settings.BaseURL) == "" {
		settings.BaseURL = DefaultBaseURL
	}
	config := go_openai.DefaultConfig(settings.APIKey)
	config.BaseURL = settings.BaseURL
	return &OpenAIClient{
		client:   go_openai.NewClientWithConfig(config),
		settings: settings,
	}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, history conversation.History) (conversation.Message, error) {
	if len(history) == 0 {
		return conversation.Message{}, NewPermanentError(errors.New("empty conversation"))
	}
	req := c.makeRequest(history)

	log.Debug().
		Str("component", "inference").
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Msg("sending chat completion request")

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return conversation.Message{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return conversation.Message{}, NewPermanentError(errors.New("response contained no choices"))
	}

	choice := resp.Choices[0]
	log.Debug().
		Str("component", "inference").
		Str("finish_reason", string(choice.FinishReason)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("chat completion finished")

	return conversation.NewAssistantMessage(choice.Message.Content), nil
}

func (c *OpenAIClient) makeRequest(history conversation.History) go_openai.ChatCompletionRequest {
	msgs := make([]go_openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		role := go_openai.ChatMessageRoleUser
		switch m.Role {
		case conversation.RoleAssistant:
			role = go_openai.ChatMessageRoleAssistant
		case conversation.RoleSystem:
			role = go_openai.ChatMessageRoleSystem
		case conversation.RoleUser:
		}
		msgs = append(msgs, go_openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	req := go_openai.ChatCompletionRequest{
		Model:     c.settings.Model,
		Messages:  msgs,
		MaxTokens: c.settings.MaxTokens,
	}
	if c.settings.Temperature != nil {
		req.Temperature = *c.settings.Temperature
	}
	return req
}

func isTransientStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout,
		code == http.StatusConflict,
		code == http.StatusTooEarly,
		code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	}
	return false
}

func classifyOpenAIError(err error) error {
	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		if isTransientStatus(apiErr.HTTPStatusCode) {
			return NewTransientError(err)
		}
		return NewPermanentError(err)
	}
	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) {
		if isTransientStatus(reqErr.HTTPStatusCode) {
			return NewTransientError(err)
		}
		return NewPermanentError(err)
	}
	return classifyTransport(err)
}
