package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"
)

var keyStamp = []byte("report_stamp")

// SaveStamp сохраняет последний stamp отчёта телефона
func (s *Storage) SaveStamp(ctx context.Context, stamp int64) error {
	return s.update(bucketMetadata, func(b *bbolt.Bucket) error {
		if err := b.Put(keyStamp, encodeInt(stamp)); err != nil {
			return fmt.Errorf("failed to save report stamp: %w", err)
		}
		return nil
	})
}

// GetStamp возвращает последний stamp, 0 если отчётов ещё не было
func (s *Storage) GetStamp(ctx context.Context) (int64, error) {
	var stamp int64
	err := s.view(bucketMetadata, func(b *bbolt.Bucket) error {
		if raw := b.Get(keyStamp); raw != nil {
			stamp = decodeInt(raw)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get report stamp: %w", err)
	}
	return stamp, nil
}
