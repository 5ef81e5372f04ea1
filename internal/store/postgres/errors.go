package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/chatrelay/internal/store"
)

const uniqueViolation = "23505"

// wrapErr wraps a storage error with the operation name. Context cancellation
// and deadline expiry are mapped to store.ErrTransient so callers can retry;
// unique violations map to store.ErrConflict.
func wrapErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, store.ErrTransient)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, store.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
