package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/soundlines/internal/client/storage"
	"github.com/iudanet/soundlines/internal/world"
)

var (
	keyReplicaState = []byte("state")
	keyReplicaSeq   = []byte("seq")
)

// SaveReplica заменяет реплику и её seq в одной транзакции
func (s *Storage) SaveReplica(ctx context.Context, state *world.State, seq int64) error {
	return s.update(bucketWorld, func(b *bbolt.Bucket) error {
		if err := putJSON(b, keyReplicaState, state); err != nil {
			return fmt.Errorf("failed to save replica: %w", err)
		}
		if err := b.Put(keyReplicaSeq, encodeInt(seq)); err != nil {
			return fmt.Errorf("failed to save replica seq: %w", err)
		}
		return nil
	})
}

// LoadReplica возвращает реплику и seq, которому она соответствует.
// storage.ErrReplicaNotFound, если мир ещё не синхронизировался.
func (s *Storage) LoadReplica(ctx context.Context) (*world.State, int64, error) {
	var (
		state = world.NewState()
		seq   int64
	)
	err := s.view(bucketWorld, func(b *bbolt.Bucket) error {
		rawSeq := b.Get(keyReplicaSeq)
		if rawSeq == nil {
			return storage.ErrReplicaNotFound
		}
		found, err := getJSON(b, keyReplicaState, state)
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrReplicaNotFound
		}
		seq = decodeInt(rawSeq)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return state, seq, nil
}

// ClearReplica удаляет реплику, следующий sync начнётся со снимка
func (s *Storage) ClearReplica(ctx context.Context) error {
	return s.update(bucketWorld, func(b *bbolt.Bucket) error {
		if err := b.Delete(keyReplicaState); err != nil {
			return fmt.Errorf("failed to delete replica: %w", err)
		}
		if err := b.Delete(keyReplicaSeq); err != nil {
			return fmt.Errorf("failed to delete replica seq: %w", err)
		}
		return nil
	})
}
