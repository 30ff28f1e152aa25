package storage

import "context"

// MetadataStorage defines interface for storing client counters
type MetadataStorage interface {
	// SaveStamp saves the last report stamp issued by this phone
	SaveStamp(ctx context.Context, stamp int64) error

	// GetStamp returns the last issued report stamp
	// Returns 0 if no report has been sent yet
	GetStamp(ctx context.Context) (int64, error)
}
