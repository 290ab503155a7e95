package threadstore

import (
	"testing"

	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/stretchr/testify/require"
)

func TestComputeMessageContentHash_Deterministic(t *testing.T) {
	a, err := ComputeMessageContentHash(conversation.NewUserMessage("hello"))
	require.NoError(t, err)
	b, err := ComputeMessageContentHash(conversation.NewUserMessage("hello"))
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 64)
}

func TestComputeMessageContentHash_RoleAndContentMatter(t *testing.T) {
	user, err := ComputeMessageContentHash(conversation.NewUserMessage("hello"))
	require.NoError(t, err)
	assistant, err := ComputeMessageContentHash(conversation.NewAssistantMessage("hello"))
	require.NoError(t, err)
	other, err := ComputeMessageContentHash(conversation.NewUserMessage("hello!"))
	require.NoError(t, err)

	require.NotEqual(t, user, assistant)
	require.NotEqual(t, user, other)
}

func TestComputeMessageContentHash_InvalidUTF8StaysDistinct(t *testing.T) {
	a, err := ComputeMessageContentHash(conversation.NewUserMessage("caf\xe9"))
	require.NoError(t, err)
	b, err := ComputeMessageContentHash(conversation.NewUserMessage("caf\xe8"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestCanonicalMessageMaterial_FieldBoundaries(t *testing.T) {
	// role "user" + content "x" must not collide with any other split
	a := CanonicalMessageMaterial(conversation.Message{Role: "user", Content: "x"})
	b := CanonicalMessageMaterial(conversation.Message{Role: "use", Content: "rx"})
	require.NotEqual(t, a, b)
}
