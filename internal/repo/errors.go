package repo

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound — запись не найдена.
var ErrNotFound = errors.New("not found")

// scanErr переводит pgx.ErrNoRows в ErrNotFound, остальное оборачивает.
func scanErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
