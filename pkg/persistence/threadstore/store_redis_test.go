package threadstore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Set THREADCHAT_TEST_REDIS_ADDR to run against a live server.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("THREADCHAT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("THREADCHAT_TEST_REDIS_ADDR not set")
	}
	runThreadStoreSuite(t, func(t *testing.T) ThreadStore {
		s, err := DialRedisStore(context.Background(), addr, "threadchat-test-"+uuid.NewString())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestDialRedisStore_EmptyAddr(t *testing.T) {
	_, err := DialRedisStore(context.Background(), "", "")
	require.Error(t, err)
}
