package storage

import (
	"context"

	"github.com/iudanet/soundlines/internal/world"
)

// ReplicaStorage defines interface for the local copy of the world
type ReplicaStorage interface {
	// SaveReplica atomically replaces the replica and the seq it reflects
	SaveReplica(ctx context.Context, state *world.State, seq int64) error

	// LoadReplica returns the replica and its seq
	// Returns ErrReplicaNotFound if the world has never been synced
	LoadReplica(ctx context.Context) (*world.State, int64, error)

	// ClearReplica drops the replica so the next sync requests a snapshot
	ClearReplica(ctx context.Context) error
}
