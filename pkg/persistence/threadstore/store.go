package threadstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/pkg/errors"
)

var (
	// ErrEmptyThreadID is returned for blank thread identifiers.
	ErrEmptyThreadID = errors.New("threadstore: thread id is empty")
	// ErrCheckpointNotFound is returned by LoadCheckpoint for unknown checkpoint ids.
	ErrCheckpointNotFound = errors.New("threadstore: checkpoint not found")
)

// Checkpoint describes one persisted snapshot of a thread's history.
type Checkpoint struct {
	ThreadID     string    `json:"thread_id" yaml:"thread_id"`
	CheckpointID string    `json:"checkpoint_id" yaml:"checkpoint_id"`
	ParentID     string    `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Seq          int64     `json:"seq" yaml:"seq"`
	MessageCount int       `json:"message_count" yaml:"message_count"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// ThreadStore persists thread histories. The latest snapshot of a thread is the
// authoritative one; older snapshots may be kept as checkpoints.
type ThreadStore interface {
	// Load returns the latest snapshot, or an empty history for an unseen thread.
	Load(ctx context.Context, threadID string) (conversation.History, error)
	// Save atomically records history as the new latest snapshot.
	Save(ctx context.Context, threadID string, history conversation.History) error
	// ListThreadIDs returns each thread with at least one snapshot, sorted.
	ListThreadIDs(ctx context.Context) ([]string, error)
	// Checkpoints lists snapshot metadata for a thread, newest first.
	Checkpoints(ctx context.Context, threadID string, limit int) ([]Checkpoint, error)
	// LoadCheckpoint returns the history stored under a specific checkpoint.
	LoadCheckpoint(ctx context.Context, threadID, checkpointID string) (conversation.History, error)
	Close() error
}

// StorageError reports that the underlying engine failed or holds corrupt data.
type StorageError struct {
	Op       string
	ThreadID string
	Err      error
}

func (e *StorageError) Error() string {
	if e.ThreadID == "" {
		return fmt.Sprintf("threadstore: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("threadstore: %s thread %q: %v", e.Op, e.ThreadID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Cause lets errors.Cause from pkg/errors see through the wrapper.
func (e *StorageError) Cause() error { return e.Err }

func storageError(op, threadID string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, ThreadID: threadID, Err: err}
}

// IsStorageError reports whether err carries a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func normalizeThreadID(threadID string) (string, error) {
	id := strings.TrimSpace(threadID)
	if id == "" {
		return "", ErrEmptyThreadID
	}
	return id, nil
}

func validateHistory(history conversation.History) error {
	for i, m := range history {
		if !m.Role.Valid() {
			return errors.Errorf("message %d has invalid role %q", i, m.Role)
		}
	}
	return nil
}

const defaultCheckpointLimit = 100

func checkpointLimit(limit int) int {
	if limit <= 0 {
		return defaultCheckpointLimit
	}
	return limit
}
