// Package dbtest opens throwaway sqlite databases carrying the full storefront schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
)

// New returns an isolated in-memory database. The pool is pinned to a single connection so
// concurrent transactions queue instead of failing with SQLITE_LOCKED; every read inside a
// unit of work must therefore go through the transaction handle.
func New(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := fmt.Sprintf("file:storefront_%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), db.GormConfig())
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		tb.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// Client wraps New in the transaction-capable client used by services.
func Client(tb testing.TB) *db.Client {
	tb.Helper()
	return db.NewFromConn(New(tb))
}
