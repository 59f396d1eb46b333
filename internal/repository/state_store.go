// Package repository provides persistence for the last observed station state
package repository

import (
	"context"
	"fmt"

	"github.com/abelzeko/river-alert/internal/entities"
)

// StateStore loads and saves the last known state of a station
type StateStore interface {
	// Load returns nil, nil when no state has been saved yet. A state that
	// exists but cannot be decoded is reported as *StateCorruptError.
	Load(ctx context.Context) (*entities.StoredState, error)
	// Save replaces the stored state as a whole.
	Save(ctx context.Context, state entities.StoredState) error
	Close() error
}

// StateCorruptError reports a stored state that could not be decoded
type StateCorruptError struct {
	Path string
	Err  error
}

func (e *StateCorruptError) Error() string {
	return fmt.Sprintf("stored state at %s is corrupt: %v", e.Path, e.Err)
}

func (e *StateCorruptError) Unwrap() error { return e.Err }
