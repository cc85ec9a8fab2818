package repo

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when the requested row does not exist (or is no longer live)
	ErrNotFound = errors.New("not found")
	// ErrCodeCollision is returned when a live pairing code with the same hash already exists
	ErrCodeCollision = errors.New("pairing code collision")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
