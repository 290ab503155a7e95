package threadstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRedisPrefix = "threadchat"
	redisSaveAttempts  = 5
)

// redisMessage keeps content as bytes so JSON carries it base64-encoded and
// content that is not valid UTF-8 survives the round trip.
type redisMessage struct {
	Role    conversation.Role `json:"role"`
	Content []byte            `json:"content"`
}

type redisCheckpointRecord struct {
	Checkpoint
	Messages []redisMessage `json:"messages"`
}

func newRedisMessages(h conversation.History) []redisMessage {
	ret := make([]redisMessage, 0, len(h))
	for _, m := range h {
		ret = append(ret, redisMessage{Role: m.Role, Content: []byte(m.Content)})
	}
	return ret
}

func (r *redisCheckpointRecord) history() conversation.History {
	ret := make(conversation.History, 0, len(r.Messages))
	for _, m := range r.Messages {
		ret = append(ret, conversation.Message{Role: m.Role, Content: string(m.Content)})
	}
	return ret
}

// RedisStore keeps each thread as a "latest" key plus an append-only list of
// checkpoint records. A save touches all keys in one MULTI/EXEC block, guarded
// by WATCH on the latest key.
type RedisStore struct {
	client *redis.Client
	prefix string
	owned  bool
}

var _ ThreadStore = &RedisStore{}

// NewRedisStore wraps an existing client. Close does not close it.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedisStore connects to addr and checks the server answers.
func DialRedisStore(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis thread store: empty addr")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, storageError("connect", "", errors.Wrapf(err, "ping %s", addr))
	}
	s := NewRedisStore(client, prefix)
	s.owned = true
	return s, nil
}

func (s *RedisStore) threadsKey() string { return s.prefix + ":threads" }
func (s *RedisStore) latestKey(id string) string {
	return s.prefix + ":thread:" + id + ":latest"
}
func (s *RedisStore) checkpointsKey(id string) string {
	return s.prefix + ":thread:" + id + ":checkpoints"
}

func (s *RedisStore) Load(ctx context.Context, threadID string) (conversation.History, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, s.latestKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return conversation.History{}, nil
	}
	if err != nil {
		return nil, storageError("load", id, err)
	}
	rec, err := decodeRedisRecord(raw)
	if err != nil {
		return nil, storageError("load", id, err)
	}
	return rec.history(), nil
}

func (s *RedisStore) Save(ctx context.Context, threadID string, history conversation.History) error {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return err
	}
	if err := validateHistory(history); err != nil {
		return errors.Wrap(err, "redis thread store: save")
	}

	latestKey := s.latestKey(id)
	save := func(tx *redis.Tx) error {
		rec := redisCheckpointRecord{
			Checkpoint: Checkpoint{
				ThreadID:     id,
				CheckpointID: uuid.NewString(),
				Seq:          1,
				MessageCount: len(history),
				CreatedAt:    time.Now().UTC(),
			},
			Messages: newRedisMessages(history),
		}
		prevRaw, err := tx.Get(ctx, latestKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			prev, err := decodeRedisRecord(prevRaw)
			if err != nil {
				return err
			}
			rec.ParentID = prev.CheckpointID
			rec.Seq = prev.Seq + 1
		}

		b, err := json.Marshal(rec)
		if err != nil {
			return errors.Wrap(err, "encode checkpoint")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, latestKey, b, 0)
			pipe.RPush(ctx, s.checkpointsKey(id), b)
			pipe.SAdd(ctx, s.threadsKey(), id)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= redisSaveAttempts; attempt++ {
		err = s.client.Watch(ctx, save, latestKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		log.Debug().Str("component", "threadstore").Str("thread_id", id).Int("attempt", attempt).Msg("redis save raced, retrying")
	}
	return storageError("save", id, err)
}

func (s *RedisStore) ListThreadIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.threadsKey()).Result()
	if err != nil {
		return nil, storageError("list threads", "", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RedisStore) Checkpoints(ctx context.Context, threadID string, limit int) ([]Checkpoint, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}
	raws, err := s.client.LRange(ctx, s.checkpointsKey(id), -int64(checkpointLimit(limit)), -1).Result()
	if err != nil {
		return nil, storageError("list checkpoints", id, err)
	}
	out := make([]Checkpoint, 0, len(raws))
	for i := len(raws) - 1; i >= 0; i-- {
		rec, err := decodeRedisRecord([]byte(raws[i]))
		if err != nil {
			return nil, storageError("list checkpoints", id, err)
		}
		out = append(out, rec.Checkpoint)
	}
	return out, nil
}

func (s *RedisStore) LoadCheckpoint(ctx context.Context, threadID, checkpointID string) (conversation.History, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}
	raws, err := s.client.LRange(ctx, s.checkpointsKey(id), 0, -1).Result()
	if err != nil {
		return nil, storageError("load checkpoint", id, err)
	}
	want := strings.TrimSpace(checkpointID)
	for _, raw := range raws {
		rec, err := decodeRedisRecord([]byte(raw))
		if err != nil {
			return nil, storageError("load checkpoint", id, err)
		}
		if rec.CheckpointID == want {
			return rec.history(), nil
		}
	}
	return nil, ErrCheckpointNotFound
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil || !s.owned {
		return nil
	}
	return s.client.Close()
}

func decodeRedisRecord(raw []byte) (*redisCheckpointRecord, error) {
	rec := &redisCheckpointRecord{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, errors.Wrap(err, "decode checkpoint")
	}
	if err := validateHistory(rec.history()); err != nil {
		return nil, errors.Wrap(err, "corrupt checkpoint")
	}
	return rec, nil
}
