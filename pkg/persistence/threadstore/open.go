package threadstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"

	DefaultSQLitePath = "chatbot.db"
)

// Settings selects and configures a store backend.
type Settings struct {
	Backend     string `mapstructure:"backend"`
	SQLitePath  string `mapstructure:"sqlite-path"`
	SQLiteDSN   string `mapstructure:"sqlite-dsn"`
	RedisAddr   string `mapstructure:"redis-addr"`
	RedisPrefix string `mapstructure:"redis-prefix"`
}

// Open builds the store named by settings.Backend. SQLite is the default and
// creates the parent directory of its database file when needed.
func Open(ctx context.Context, settings Settings) (ThreadStore, error) {
	switch strings.ToLower(strings.TrimSpace(settings.Backend)) {
	case "", BackendSQLite:
		dsn := strings.TrimSpace(settings.SQLiteDSN)
		if dsn == "" {
			path := strings.TrimSpace(settings.SQLitePath)
			if path == "" {
				path = DefaultSQLitePath
			}
			if dir := filepath.Dir(path); dir != "" && dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, errors.Wrap(err, "create sqlite db dir")
				}
			}
			var err error
			dsn, err = SQLiteDSNForFile(path)
			if err != nil {
				return nil, err
			}
		}
		return NewSQLiteStore(dsn)
	case BackendRedis:
		return DialRedisStore(ctx, settings.RedisAddr, settings.RedisPrefix)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, errors.Errorf("unknown thread store backend %q", settings.Backend)
	}
}
