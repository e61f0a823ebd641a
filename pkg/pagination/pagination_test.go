package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
)

func TestCursorRoundTripIsURLSafe(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 1, 5, 9, 0, 0, 123, time.UTC), ID: uuid.New()}
	token := EncodeCursor(in)
	for _, c := range token {
		if c == '+' || c == '/' || c == '=' {
			t.Fatalf("token %q is not url safe", token)
		}
	}
	out, err := ParseCursor(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) || out.ID != in.ID {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	if c, err := ParseCursor("  "); err != nil || c != nil {
		t.Fatalf("blank cursor should mean first page, got %v %v", c, err)
	}
	_, err := ParseCursor("not-a-cursor!")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPage(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []Cursor{
		{CreatedAt: base.Add(3 * time.Minute), ID: uuid.New()},
		{CreatedAt: base.Add(2 * time.Minute), ID: uuid.New()},
		{CreatedAt: base.Add(time.Minute), ID: uuid.New()},
	}
	key := func(c Cursor) Cursor { return c }

	page, next := Page(rows, 2, key)
	if len(page) != 2 || next != EncodeCursor(rows[1]) {
		t.Fatalf("unexpected page %d next %q", len(page), next)
	}
	page, next = Page(rows, 5, key)
	if len(page) != 3 || next != "" {
		t.Fatalf("expected last page, got %d %q", len(page), next)
	}
	if NormalizeLimit(0) != DefaultLimit || NormalizeLimit(500) != MaxLimit {
		t.Fatalf("limit normalization broken")
	}
}
