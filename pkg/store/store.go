// Package store persists JSON documents for a single runtime role (sessions,
// errors, closed_loop, ...) behind a narrow put/get/list interface, so the
// on-disk representation can change without touching callers.
package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get and Delete for unknown ids.
var ErrNotFound = errors.New("document not found")

// Store holds the documents of one collection, keyed by id
type Store interface {
	// Put creates or replaces the document stored under id
	Put(ctx context.Context, id string, doc any) error
	// Get decodes the document stored under id into out
	Get(ctx context.Context, id string, out any) error
	// List returns every id in ascending order
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// IsNotFound reports whether err wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ValidateID rejects ids that cannot be used as a file name inside a role
// directory.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("document id must not be empty")
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return errors.Errorf("invalid document id %q", id)
	}
	return nil
}
