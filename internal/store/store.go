package store

import (
	"context"

	"github.com/vovakirdan/distirc/internal/model"
)

// Record is an archived buffer line.
type Record struct {
	ID   int64
	Key  model.BufKey
	Line model.Line
}

// LineStore keeps scrollback across restarts.
type LineStore interface {
	// SaveLine appends a line to the archive of the buffer identified by key.
	SaveLine(ctx context.Context, key model.BufKey, line model.Line) error

	// ListLines returns up to limit lines of a buffer in chronological order.
	// If beforeID is provided, only lines archived before that record are returned.
	ListLines(ctx context.Context, key model.BufKey, limit int, beforeID *int64) ([]*Record, error)

	// ListBuffers returns the keys of every buffer with archived lines.
	ListBuffers(ctx context.Context) ([]model.BufKey, error)

	// Close closes the underlying database connection.
	Close() error
}
