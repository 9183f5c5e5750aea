package store

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/example/stockroom/api-go/internal/model"
)

// isUniqueViolation reports whether err is a primary key or unique index
// violation from either driver.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
		return false
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

// conflictOr maps unique violations to model.ErrConflict and leaves other
// errors untouched.
func conflictOr(err error, what string) error {
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", model.ErrConflict, what)
	}
	return err
}
