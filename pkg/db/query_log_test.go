package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

func newBufferedQueryLogger(slow time.Duration) (*bytes.Buffer, gormlogger.Interface) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Format: "json", Output: buf})
	return buf, newQueryLogger(logg, slow)
}

func TestQueryLoggerReportsSlowQueries(t *testing.T) {
	buf, ql := newBufferedQueryLogger(time.Millisecond)
	sql := func() (string, int64) { return "SELECT * FROM orders", 3 }

	ql.Trace(context.Background(), time.Now(), sql, nil)
	if buf.Len() != 0 {
		t.Fatalf("fast query should not be logged: %s", buf.String())
	}

	ql.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	if !strings.Contains(buf.String(), "db.slow_query") || !strings.Contains(buf.String(), "SELECT * FROM orders") {
		t.Fatalf("expected slow query entry, got %s", buf.String())
	}
}

func TestQueryLoggerSkipsRecordNotFound(t *testing.T) {
	buf, ql := newBufferedQueryLogger(0)
	sql := func() (string, int64) { return "SELECT 1", 0 }

	ql.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("not found should be silent: %s", buf.String())
	}

	ql.Trace(context.Background(), time.Now(), sql, errors.New("deadlock detected"))
	if !strings.Contains(buf.String(), "db.query_failed") {
		t.Fatalf("expected failure entry, got %s", buf.String())
	}

	buf.Reset()
	ql.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	if buf.Len() != 0 {
		t.Fatalf("silent mode should drop entries: %s", buf.String())
	}
}
