package tokens

import (
	"testing"

	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_FallsBackToEncoding(t *testing.T) {
	c, err := NewCounter("llama-3.1-8b-instant", "")
	require.NoError(t, err)
	assert.Equal(t, "cl100k_base", c.Encoding())

	n, err := c.Count("hello world")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.Count("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCounter_UnknownEncoding(t *testing.T) {
	_, err := NewCounter("", "no-such-encoding")
	require.Error(t, err)
}

func TestCounter_CountHistory(t *testing.T) {
	c, err := NewCounter("", "")
	require.NoError(t, err)

	h := conversation.History{
		conversation.NewUserMessage("hello world"),
		conversation.NewAssistantMessage("hello world"),
	}
	got, err := c.CountHistory(h)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, got.PerMessage)
	assert.Equal(t, 4, got.Content)
	assert.Greater(t, got.Prompt, got.Content)

	empty, err := c.CountHistory(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Prompt)
	assert.Empty(t, empty.PerMessage)
}
