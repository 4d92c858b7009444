package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned by get-by-id reads when no row matches. The store
// never treats an absent row as an internal failure.
var ErrNotFound = errors.New("not found")

func notFoundOr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
