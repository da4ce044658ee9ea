package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicate is returned when an insert or update trips a unique index.
var ErrDuplicate = errors.New("duplicate record")

const pqUniqueViolation = "23505"

func translateUnique(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ErrDuplicate
	}
	return err
}
