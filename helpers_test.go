package guest

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-guest/store"

	_ "github.com/mattn/go-sqlite3"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	db, err := store.NewSQLite(sqldb, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, store.Migrate(context.Background(), db))
	return db
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SessionSecret = "test-secret"
	cfg.BcryptCost = 4
	return cfg
}

func newTestSessions(t *testing.T, cfg Config, opts ...SessionOption) *CookieSessions {
	t.Helper()

	sessions, err := NewCookieSessions(cfg, opts...)
	require.NoError(t, err)
	return sessions
}

func newTestRegistry(t *testing.T, db *bun.DB, cfg Config, opts ...RegistryOption) *Registry[*Guest] {
	t.Helper()

	base := []RegistryOption{WithRegistryLogger(NopLogger())}
	registry, err := NewRegistry(cfg, NewRepositoryManager(db), DefaultGuestModel(), append(base, opts...)...)
	require.NoError(t, err)
	return registry
}

func constantName(name string) NameGenerator {
	return func(RequestInfo) string { return name }
}

func createRegularUser(t *testing.T, registry *Registry[*Guest], username, password string) *User {
	t.Helper()

	hash := UnusablePassword()
	if password != "" {
		var err error
		hash, err = registry.Hasher().HashPassword(password)
		require.NoError(t, err)
	}

	user, err := registry.Users().Create(context.Background(), &User{
		Username:     username,
		PasswordHash: hash,
	})
	require.NoError(t, err)
	return user
}

func countRows(t *testing.T, db *bun.DB, table string) int {
	t.Helper()

	var n int
	err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n)
	require.NoError(t, err)
	return n
}

type fakeRequest struct {
	cookies map[string]string
	headers map[string]string
}

func (r fakeRequest) Cookies(key string, def ...string) string {
	if v, ok := r.cookies[key]; ok {
		return v
	}
	if len(def) > 0 {
		return def[0]
	}
	return ""
}

func (r fakeRequest) Get(key string, def ...string) string {
	if v, ok := r.headers[key]; ok {
		return v
	}
	if len(def) > 0 {
		return def[0]
	}
	return ""
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func newFileTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "guest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, store.Migrate(context.Background(), db))
	return db
}
