// Package dbtest opens throwaway stores for tests.
package dbtest

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/techagentng/citizenchat/db"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New returns a migrated store backed by a sqlite file in t's temp dir.
// Writes are serialized over a single connection.
func New(t testing.TB) *db.GormDB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "chat.db") + "?_busy_timeout=5000&_foreign_keys=on"
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store, err := db.NewGormDB(gormDB)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// PostgresDSNEnv names the variable holding a postgres DSN for tests that
// depend on postgres behaviour.
const PostgresDSNEnv = "CITIZENCHAT_TEST_POSTGRES_DSN"

// Postgres returns a migrated store on the database named by
// PostgresDSNEnv, skipping the test when it is unset. Rows are not cleaned
// up; tests scope themselves to conversations they create.
func Postgres(t testing.TB) *db.GormDB {
	t.Helper()
	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skip(PostgresDSNEnv + " not set")
	}
	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	store, err := db.NewGormDB(gormDB)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Clock is a controllable store clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// WithClock installs c as the store clock.
func WithClock(t testing.TB, c *Clock) *db.GormDB {
	t.Helper()
	store := New(t)
	store.Clock = c.Now
	return store
}
