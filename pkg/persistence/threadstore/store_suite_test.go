package threadstore

import (
	"context"
	"testing"

	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/stretchr/testify/require"
)

func runThreadStoreSuite(t *testing.T, newStore func(t *testing.T) ThreadStore) {
	t.Run("UnseenThreadLoadsEmpty", func(t *testing.T) {
		s := newStore(t)
		h, err := s.Load(context.Background(), "never-used")
		require.NoError(t, err)
		require.NotNil(t, h)
		require.Empty(t, h)
	})

	t.Run("SaveThenLoadKeepsOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		want := conversation.History{
			conversation.NewUserMessage("hi"),
			conversation.NewAssistantMessage("hello"),
			conversation.NewUserMessage("hi"),
			conversation.NewAssistantMessage("hello again"),
		}
		require.NoError(t, s.Save(ctx, "t1", want))

		got, err := s.Load(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("LatestSnapshotWins", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		first := conversation.History{conversation.NewUserMessage("a"), conversation.NewAssistantMessage("b")}
		second := first.Append(conversation.NewUserMessage("c"), conversation.NewAssistantMessage("d"))
		require.NoError(t, s.Save(ctx, "t1", first))
		require.NoError(t, s.Save(ctx, "t1", second))

		got, err := s.Load(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, second, got)
	})

	t.Run("ListThreadIDsIsAStableSet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		h := conversation.History{conversation.NewUserMessage("x"), conversation.NewAssistantMessage("y")}
		require.NoError(t, s.Save(ctx, "b", h))
		require.NoError(t, s.Save(ctx, "a", h))
		require.NoError(t, s.Save(ctx, "b", h.Append(conversation.NewUserMessage("z"), conversation.NewAssistantMessage("w"))))

		first, err := s.ListThreadIDs(ctx)
		require.NoError(t, err)
		second, err := s.ListThreadIDs(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, first)
		require.Equal(t, first, second)
	})

	t.Run("CheckpointsChainParents", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		h1 := conversation.History{conversation.NewUserMessage("1"), conversation.NewAssistantMessage("2")}
		h2 := h1.Append(conversation.NewUserMessage("3"), conversation.NewAssistantMessage("4"))
		require.NoError(t, s.Save(ctx, "t1", h1))
		require.NoError(t, s.Save(ctx, "t1", h2))

		cps, err := s.Checkpoints(ctx, "t1", 10)
		require.NoError(t, err)
		require.Len(t, cps, 2)
		require.Equal(t, int64(2), cps[0].Seq)
		require.Equal(t, 4, cps[0].MessageCount)
		require.Equal(t, int64(1), cps[1].Seq)
		require.Equal(t, cps[1].CheckpointID, cps[0].ParentID)
		require.Empty(t, cps[1].ParentID)

		limited, err := s.Checkpoints(ctx, "t1", 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)
		require.Equal(t, cps[0].CheckpointID, limited[0].CheckpointID)

		old, err := s.LoadCheckpoint(ctx, "t1", cps[1].CheckpointID)
		require.NoError(t, err)
		require.Equal(t, h1, old)

		_, err = s.LoadCheckpoint(ctx, "t1", "missing")
		require.ErrorIs(t, err, ErrCheckpointNotFound)
	})

	t.Run("KeepsNonUTF8ContentPerThread", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		h1 := conversation.History{conversation.NewUserMessage("caf\xe9"), conversation.NewAssistantMessage("ok")}
		h2 := conversation.History{conversation.NewUserMessage("caf\xe8"), conversation.NewAssistantMessage("ok")}
		require.NoError(t, s.Save(ctx, "t1", h1))
		require.NoError(t, s.Save(ctx, "t2", h2))

		got1, err := s.Load(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, h1, got1)
		got2, err := s.Load(ctx, "t2")
		require.NoError(t, err)
		require.Equal(t, h2, got2)
	})

	t.Run("RejectsBlankThreadID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Load(ctx, "  ")
		require.ErrorIs(t, err, ErrEmptyThreadID)
		require.ErrorIs(t, s.Save(ctx, "", conversation.History{}), ErrEmptyThreadID)
	})

	t.Run("RejectsInvalidRole", func(t *testing.T) {
		s := newStore(t)
		err := s.Save(context.Background(), "t1", conversation.History{{Role: "tool", Content: "x"}})
		require.Error(t, err)

		ids, err := s.ListThreadIDs(context.Background())
		require.NoError(t, err)
		require.Empty(t, ids)
	})
}

func TestMemoryStore(t *testing.T) {
	runThreadStoreSuite(t, func(t *testing.T) ThreadStore {
		return NewMemoryStore()
	})
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "t1", conversation.History{conversation.NewUserMessage("hi")}))

	h, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	h[0] = conversation.NewUserMessage("changed")

	again, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "hi", again[0].Content)
}
