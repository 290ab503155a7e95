package threadstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SQLiteStore keeps every snapshot as a checkpoint row plus ordered membership
// rows pointing at deduplicated messages.
type SQLiteStore struct {
	db *sql.DB

	// beforeCommit runs inside the save transaction right before COMMIT.
	// Tests use it to simulate a crash mid-save.
	beforeCommit func() error
	now          func() time.Time
}

var _ ThreadStore = &SQLiteStore{}

// SQLiteDSNForFile builds the DSN used for file-backed stores. Write
// transactions take the lock up front so concurrent writers queue on the busy
// timeout instead of failing on lock upgrade.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite thread store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate", path), nil
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite thread store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, storageError("open", "", err)
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		// each connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, storageError("migrate", "", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS threads (
			thread_id TEXT PRIMARY KEY,
			latest_seq INTEGER NOT NULL,
			latest_checkpoint_id TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			checkpoint_id TEXT NOT NULL UNIQUE,
			parent_checkpoint_id TEXT NOT NULL DEFAULT '',
			message_count INTEGER NOT NULL,
			created_at_ms INTEGER NOT NULL,
			PRIMARY KEY (thread_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			content_hash TEXT PRIMARY KEY,
			hash_algorithm TEXT NOT NULL DEFAULT 'sha256-length-prefixed-v2',
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			first_seen_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS checkpoint_messages (
			thread_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			ordinal INTEGER NOT NULL,
			content_hash TEXT NOT NULL,
			PRIMARY KEY (thread_id, seq, ordinal),
			FOREIGN KEY (thread_id, seq) REFERENCES checkpoints(thread_id, seq) ON DELETE CASCADE,
			FOREIGN KEY (content_hash) REFERENCES messages(content_hash)
		);`,
		`CREATE INDEX IF NOT EXISTS checkpoints_by_thread_created ON checkpoints(thread_id, created_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS checkpoint_messages_by_hash ON checkpoint_messages(content_hash);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite thread store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, threadID string) (conversation.History, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}
	// One statement, so the latest pointer and the rows it names are read from
	// the same snapshot.
	rows, err := s.db.QueryContext(ctx, `
		SELECT msg.role, msg.content
		FROM checkpoint_messages m
		JOIN messages msg ON msg.content_hash = m.content_hash
		WHERE m.thread_id = ?
			AND m.seq = (SELECT latest_seq FROM threads WHERE thread_id = ?)
		ORDER BY m.ordinal ASC
	`, id, id)
	if err != nil {
		return nil, storageError("load", id, errors.Wrap(err, "query latest snapshot"))
	}
	defer func() { _ = rows.Close() }()

	history, err := scanMessages(rows)
	if err != nil {
		return nil, storageError("load", id, err)
	}
	return history, nil
}

func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, threadID, checkpointID string) (conversation.History, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}
	var seq int64
	err = s.db.QueryRowContext(ctx,
		`SELECT seq FROM checkpoints WHERE thread_id = ? AND checkpoint_id = ?`,
		id, strings.TrimSpace(checkpointID),
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCheckpointNotFound
	}
	if err != nil {
		return nil, storageError("load checkpoint", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT msg.role, msg.content
		FROM checkpoint_messages m
		JOIN messages msg ON msg.content_hash = m.content_hash
		WHERE m.thread_id = ? AND m.seq = ?
		ORDER BY m.ordinal ASC
	`, id, seq)
	if err != nil {
		return nil, storageError("load checkpoint", id, err)
	}
	defer func() { _ = rows.Close() }()

	history, err := scanMessages(rows)
	if err != nil {
		return nil, storageError("load checkpoint", id, err)
	}
	return history, nil
}

func scanMessages(rows *sql.Rows) (conversation.History, error) {
	history := conversation.History{}
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		r, err := conversation.ParseRole(role)
		if err != nil {
			return nil, errors.Wrap(err, "corrupt message row")
		}
		history = append(history, conversation.Message{Role: r, Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate messages")
	}
	return history, nil
}

func (s *SQLiteStore) Save(ctx context.Context, threadID string, history conversation.History) error {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return err
	}
	if err := validateHistory(history); err != nil {
		return errors.Wrap(err, "sqlite thread store: save")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("save", id, errors.Wrap(err, "begin tx"))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var (
		prevSeq int64
		prevID  string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT latest_seq, latest_checkpoint_id FROM threads WHERE thread_id = ?`, id,
	).Scan(&prevSeq, &prevID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return storageError("save", id, errors.Wrap(err, "read latest checkpoint"))
	}

	nowMs := s.now().UnixMilli()
	seq := prevSeq + 1
	checkpointID := uuid.NewString()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO checkpoints(thread_id, seq, checkpoint_id, parent_checkpoint_id, message_count, created_at_ms)
		VALUES(?, ?, ?, ?, ?, ?)
	`, id, seq, checkpointID, prevID, len(history), nowMs); err != nil {
		return storageError("save", id, errors.Wrap(err, "insert checkpoint"))
	}

	for i, m := range history {
		hash, err := ComputeMessageContentHash(m)
		if err != nil {
			return storageError("save", id, errors.Wrap(err, "compute message hash"))
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages(content_hash, hash_algorithm, role, content, first_seen_at_ms)
			VALUES(?, ?, ?, ?, ?)
			ON CONFLICT(content_hash) DO NOTHING
		`, hash, MessageContentHashAlgorithmV2, string(m.Role), m.Content, nowMs); err != nil {
			return storageError("save", id, errors.Wrap(err, "upsert message"))
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO checkpoint_messages(thread_id, seq, ordinal, content_hash)
			VALUES(?, ?, ?, ?)
		`, id, seq, i, hash); err != nil {
			return storageError("save", id, errors.Wrap(err, "insert checkpoint membership"))
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO threads(thread_id, latest_seq, latest_checkpoint_id, created_at_ms, updated_at_ms)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			latest_seq = excluded.latest_seq,
			latest_checkpoint_id = excluded.latest_checkpoint_id,
			updated_at_ms = excluded.updated_at_ms
	`, id, seq, checkpointID, nowMs, nowMs); err != nil {
		return storageError("save", id, errors.Wrap(err, "upsert thread"))
	}

	if s.beforeCommit != nil {
		if err := s.beforeCommit(); err != nil {
			return storageError("save", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageError("save", id, errors.Wrap(err, "commit tx"))
	}
	committed = true

	log.Debug().
		Str("component", "threadstore").
		Str("thread_id", id).
		Int64("seq", seq).
		Int("messages", len(history)).
		Msg("saved checkpoint")
	return nil
}

func (s *SQLiteStore) ListThreadIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT thread_id FROM threads ORDER BY thread_id ASC`)
	if err != nil {
		return nil, storageError("list threads", "", err)
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageError("list threads", "", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list threads", "", err)
	}
	return ids, nil
}

func (s *SQLiteStore) Checkpoints(ctx context.Context, threadID string, limit int) ([]Checkpoint, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT checkpoint_id, parent_checkpoint_id, seq, message_count, created_at_ms
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, id, checkpointLimit(limit))
	if err != nil {
		return nil, storageError("list checkpoints", id, err)
	}
	defer func() { _ = rows.Close() }()

	items := []Checkpoint{}
	for rows.Next() {
		var (
			cp          Checkpoint
			createdAtMs int64
		)
		if err := rows.Scan(&cp.CheckpointID, &cp.ParentID, &cp.Seq, &cp.MessageCount, &createdAtMs); err != nil {
			return nil, storageError("list checkpoints", id, err)
		}
		cp.ThreadID = id
		cp.CreatedAt = time.UnixMilli(createdAtMs)
		items = append(items, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list checkpoints", id, err)
	}
	return items, nil
}
