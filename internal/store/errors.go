package store

import (
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
var ErrDuplicate = errors.New("duplicate row")

// RowCountError reports a write that was expected to touch exactly one row.
type RowCountError struct {
	Op       string
	Affected int64
}

func (e *RowCountError) Error() string {
	return fmt.Sprintf("%s: expected exactly one row affected, got %d", e.Op, e.Affected)
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// exactlyOne checks the affected row count of a write.
func exactlyOne(op string, n int64) error {
	if n != 1 {
		return &RowCountError{Op: op, Affected: n}
	}
	return nil
}
