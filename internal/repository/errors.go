package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid argument")

	ErrDuplicateKey             = fmt.Errorf("%w: duplicate file id", ErrConflict)
	ErrDuplicateUniqueID        = fmt.Errorf("%w: duplicate unique id", ErrConflict)
	ErrDuplicateGlobalTransitID = fmt.Errorf("%w: duplicate global transit id", ErrConflict)
	ErrDuplicateMember          = fmt.Errorf("%w: duplicate index member", ErrConflict)
)

type violation int

const (
	violationNone violation = iota
	violationUnique
	violationForeignKey
	violationCheck
)

// constraintViolation classifies driver errors from sqlite and postgres.
// detail carries the sqlite message or the postgres constraint name, both
// of which mention the offending columns.
func constraintViolation(err error) (violation, string) {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return violationUnique, sqliteErr.Error()
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return violationForeignKey, sqliteErr.Error()
		case sqlite3.SQLITE_CONSTRAINT_CHECK:
			return violationCheck, sqliteErr.Error()
		}
		return violationNone, ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return violationUnique, pgErr.ConstraintName
		case "23503":
			return violationForeignKey, pgErr.ConstraintName
		case "23514":
			return violationCheck, pgErr.ConstraintName
		}
	}

	return violationNone, ""
}

// mainIndexError maps a write error on main_index to the package sentinels.
// Errors that are not constraint violations are returned unchanged.
func mainIndexError(err error) error {
	if err == nil {
		return nil
	}

	kind, detail := constraintViolation(err)
	switch kind {
	case violationUnique:
		switch {
		case strings.Contains(detail, "global_transit_id"):
			return ErrDuplicateGlobalTransitID
		case strings.Contains(detail, "unique_id"):
			return ErrDuplicateUniqueID
		default:
			return ErrDuplicateKey
		}
	case violationCheck:
		return fmt.Errorf("%w: %s", ErrInvalidArgument, detail)
	}

	return err
}

// secondaryIndexError maps a write error on acl_index / tag_index.
func secondaryIndexError(err error) error {
	if err == nil {
		return nil
	}

	kind, _ := constraintViolation(err)
	switch kind {
	case violationUnique:
		return ErrDuplicateMember
	case violationForeignKey:
		return fmt.Errorf("%w: main index record", ErrNotFound)
	}

	return err
}
