package helpers

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/repository"
	"github.com/nimasrn/support-inbox/pkg/pg"
	"github.com/nimasrn/support-inbox/pkg/redis"
	"github.com/nimasrn/support-inbox/test/fixtures"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var connSeq atomic.Int64

// SetupTestDB opens an in-memory sqlite database with the full schema.
func SetupTestDB(t *testing.T) *pg.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), pg.Options())
	require.NoError(t, err)

	// each sqlite :memory: connection is its own database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.AutoMigrate(db))
	return pg.New(db, db)
}

// SetupTestRedis starts a miniredis server and a uniquely named adapter for it.
func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	t.Helper()

	mr := miniredis.RunT(t)

	connName := fmt.Sprintf("test-%d", connSeq.Add(1))
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redis.Close(connName) })

	return mr, adapter
}

// CreateTestThread creates a contact and its thread.
func CreateTestThread(t *testing.T, db *pg.DB, phone string) (*model.Contact, *model.Thread) {
	t.Helper()
	ctx := context.Background()

	contact, err := repository.NewContactRepository(db).Upsert(ctx, phone)
	require.NoError(t, err)

	thread, err := repository.NewThreadRepository(db).Create(ctx, &model.Thread{
		ContactID: contact.ID,
		// before any fixture clock reading, so the first message always
		// becomes the latest
		LastMessageAt: fixtures.Clock(-24 * time.Hour),
	})
	require.NoError(t, err)
	return contact, thread
}

func CreateTestTemplate(t *testing.T, db *pg.DB, body string) *model.ReplyTemplate {
	t.Helper()
	tpl, err := repository.NewTemplateRepository(db).Create(context.Background(), "tpl", body)
	require.NoError(t, err)
	return tpl
}

func CreateTestTag(t *testing.T, db *pg.DB, name string) *model.Tag {
	t.Helper()
	tag, err := repository.NewTagRepository(db).Create(context.Background(), name, nil)
	require.NoError(t, err)
	return tag
}

func CreateTestRule(t *testing.T, db *pg.DB, rule model.AutomationRule) *model.AutomationRule {
	t.Helper()
	created, err := repository.NewRuleRepository(db).Create(context.Background(), &rule)
	require.NoError(t, err)
	return created
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
