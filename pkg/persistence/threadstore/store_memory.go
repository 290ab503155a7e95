package threadstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type memorySnapshot struct {
	checkpoint Checkpoint
	history    conversation.History
}

// MemoryStore keeps checkpoints in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]memorySnapshot
}

var _ ThreadStore = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: map[string][]memorySnapshot{}}
}

func (s *MemoryStore) Load(_ context.Context, threadID string) (conversation.History, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.threads[id]
	if len(snaps) == 0 {
		return conversation.History{}, nil
	}
	return snaps[len(snaps)-1].history.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, threadID string, history conversation.History) error {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return err
	}
	if err := validateHistory(history); err != nil {
		return errors.Wrap(err, "memory thread store: save")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	snaps := s.threads[id]
	cp := Checkpoint{
		ThreadID:     id,
		CheckpointID: uuid.NewString(),
		Seq:          int64(len(snaps)) + 1,
		MessageCount: len(history),
		CreatedAt:    time.Now(),
	}
	if len(snaps) > 0 {
		cp.ParentID = snaps[len(snaps)-1].checkpoint.CheckpointID
	}
	s.threads[id] = append(snaps, memorySnapshot{checkpoint: cp, history: history.Clone()})
	return nil
}

func (s *MemoryStore) ListThreadIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Checkpoints(_ context.Context, threadID string, limit int) ([]Checkpoint, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}
	limit = checkpointLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.threads[id]
	out := []Checkpoint{}
	for i := len(snaps) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, snaps[i].checkpoint)
	}
	return out, nil
}

func (s *MemoryStore) LoadCheckpoint(_ context.Context, threadID, checkpointID string) (conversation.History, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, snap := range s.threads[id] {
		if snap.checkpoint.CheckpointID == strings.TrimSpace(checkpointID) {
			return snap.history.Clone(), nil
		}
	}
	return nil, ErrCheckpointNotFound
}

func (s *MemoryStore) Close() error { return nil }
