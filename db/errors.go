package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a uniqueness constraint rejects a write.
	ErrConflict = errors.New("already exists")
)

// StorageError wraps any failure reported by the database for one store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// wrap converts driver errors into the store taxonomy.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &StorageError{Op: op, Err: fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)}
	}
	return &StorageError{Op: op, Err: err}
}
