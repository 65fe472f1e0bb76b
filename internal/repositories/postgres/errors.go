package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// repoError implements repositories.RepositoryError.
type repoError struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repoError) Error() string {
	return fmt.Sprintf("postgres: %s: %v", e.op, e.err)
}

func (e *repoError) Unwrap() error       { return e.err }
func (e *repoError) IsNotFound() bool    { return e.notFound }
func (e *repoError) IsConflict() bool    { return e.conflict }
func (e *repoError) IsUnavailable() bool { return e.unavailable }

func notFound(op string) error {
	return &repoError{op: op, err: pgx.ErrNoRows, notFound: true}
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	re := &repoError{op: op, err: err}

	var pgErr *pgconn.PgError
	var netErr net.Error
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		re.notFound = true
	case errors.As(err, &pgErr):
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable, pgCheckViolation:
			re.conflict = true
		case pgForeignKeyViolation:
			re.notFound = true
		default:
			if len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "57") {
				re.unavailable = true
			}
		}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr), pgconn.SafeToRetry(err):
		re.unavailable = true
	}
	return re
}
