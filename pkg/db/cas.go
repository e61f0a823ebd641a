package db

import (
	"fmt"

	"gorm.io/gorm"
)

// CompareAndSwap applies updates to the row identified by id only when its version still
// equals expectedVersion, bumping the version by one. extra adds guard predicates such as
// a status check. A zero row count is reported as ErrStaleWrite.
func CompareAndSwap(tx *gorm.DB, model any, id any, expectedVersion int64, updates map[string]any, extra ...Guard) error {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")

	q := tx.Model(model).Where("id = ? AND version = ?", id, expectedVersion)
	for _, g := range extra {
		q = q.Where(g.Clause, g.Args...)
	}

	res := q.Updates(values)
	if res.Error != nil {
		return fmt.Errorf("cas update: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}

// Guard is an extra WHERE predicate applied to a compare-and-swap.
type Guard struct {
	Clause string
	Args   []any
}

// Where builds a Guard.
func Where(clause string, args ...any) Guard {
	return Guard{Clause: clause, Args: args}
}
