package gorm

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDataAccess is wrapped by every error returned from CRM reads.
var ErrDataAccess = errors.New("data access failed")

// wrapQueryError annotates a query failure with the operation and, when the
// server rejected the query, the PostgreSQL error code.
func wrapQueryError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		return fmt.Errorf("%w: %s: %s (SQLSTATE %s)", ErrDataAccess, op, pgErr.Message, pgErr.Code)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: query timed out: %w", ErrDataAccess, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrDataAccess, op, err)
	}
}
