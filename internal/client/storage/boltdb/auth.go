package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/soundlines/internal/client/storage"
)

var keySession = []byte("session")

// SaveAuth сохраняет сессию телефона, заменяя прежнюю
func (s *Storage) SaveAuth(ctx context.Context, auth *storage.AuthData) error {
	return s.update(bucketAuth, func(b *bbolt.Bucket) error {
		if err := putJSON(b, keySession, auth); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		return nil
	})
}

// GetAuth возвращает сохранённую сессию или storage.ErrAuthNotFound
func (s *Storage) GetAuth(ctx context.Context) (*storage.AuthData, error) {
	auth := &storage.AuthData{}
	err := s.view(bucketAuth, func(b *bbolt.Bucket) error {
		found, err := getJSON(b, keySession, auth)
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrAuthNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return auth, nil
}

// DeleteAuth удаляет сессию (logout). Без сессии возвращает storage.ErrAuthNotFound.
func (s *Storage) DeleteAuth(ctx context.Context) error {
	return s.update(bucketAuth, func(b *bbolt.Bucket) error {
		if b.Get(keySession) == nil {
			return storage.ErrAuthNotFound
		}
		return b.Delete(keySession)
	})
}
