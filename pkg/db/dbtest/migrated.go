package dbtest

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/migrate"
)

// sqliteDialect rewrites the few postgres spellings in the migrations that sqlite does not
// parse or would not read back as time.Time.
var sqliteDialect = strings.NewReplacer(
	"now()", "CURRENT_TIMESTAMP",
	"timestamptz", "datetime",
)

// Migrated returns an in-memory database built by running the shipped goose migrations,
// with foreign keys enforced. Use it where the production constraints matter; New builds
// the schema from the models instead.
func Migrated(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := fmt.Sprintf("file:storefront_%s?mode=memory&cache=shared&_busy_timeout=5000&_foreign_keys=1", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), db.GormConfig())
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	tb.Cleanup(func() { _ = sqlDB.Close() })

	fsys, err := sqliteMigrations()
	if err != nil {
		tb.Fatalf("load migrations: %v", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, sqlDB, fsys)
	if err != nil {
		tb.Fatalf("goose provider: %v", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		tb.Fatalf("goose up: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return conn
}

// MigratedClient wraps Migrated in the transaction-capable client used by services.
func MigratedClient(tb testing.TB) *db.Client {
	tb.Helper()
	return db.NewFromConn(Migrated(tb))
}

func sqliteMigrations() (fs.FS, error) {
	src, err := migrate.Files()
	if err != nil {
		return nil, err
	}
	names, err := fs.Glob(src, "*.sql")
	if err != nil {
		return nil, err
	}
	out := fstest.MapFS{}
	for _, name := range names {
		data, err := fs.ReadFile(src, name)
		if err != nil {
			return nil, err
		}
		out[name] = &fstest.MapFile{Data: []byte(sqliteDialect.Replace(string(data)))}
	}
	return out, nil
}
