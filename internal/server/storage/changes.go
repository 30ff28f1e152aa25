package storage

import (
	"context"

	"github.com/iudanet/soundlines/internal/models"
)

// ChangeStorage defines interface for the durable world change log
type ChangeStorage interface {
	// AppendChange stores one change record
	// Returns ErrChangeExists if a record with the same seq is already stored
	AppendChange(ctx context.Context, rec models.ChangeRecord) error

	// TrimChanges deletes records with seq <= upTo and remembers upTo as the log floor
	TrimChanges(ctx context.Context, upTo int64) error

	// LoadChanges returns all retained records ordered by seq
	// together with the floor (highest trimmed seq)
	LoadChanges(ctx context.Context) ([]models.ChangeRecord, int64, error)
}

// CursorStorage defines interface for client cursor persistence
type CursorStorage interface {
	// ListCursors returns all stored cursors
	ListCursors(ctx context.Context) ([]*models.ClientCursor, error)

	// SaveCursor creates or updates cursor of a client
	SaveCursor(ctx context.Context, cursor *models.ClientCursor) error
}
