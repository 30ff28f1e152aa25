package boltdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/iudanet/soundlines/internal/client/storage"
)

func TestStorage_SaveGetDeleteAuth(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	auth := &storage.AuthData{
		DeviceName:  "pixel-7",
		DeviceID:    "device-id-123",
		AccessToken: "access-token",
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
	}

	_, err := store.GetAuth(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)

	require.NoError(t, store.SaveAuth(ctx, auth))

	got, err := store.GetAuth(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth, got)

	// Новый вход заменяет сессию целиком
	auth.AccessToken = "second-token"
	require.NoError(t, store.SaveAuth(ctx, auth))
	got, err = store.GetAuth(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second-token", got.AccessToken)

	require.NoError(t, store.DeleteAuth(ctx))

	_, err = store.GetAuth(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)

	err = store.DeleteAuth(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)
}

func TestStorage_ClosedStorage(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.GetAuth(ctx)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.ErrorIs(t, store.SaveAuth(ctx, &storage.AuthData{}), storage.ErrStorageClosed)
	_, err = store.GetStamp(ctx)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	_, _, err = store.LoadReplica(ctx)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.ErrorIs(t, store.ClearReplica(ctx), storage.ErrStorageClosed)
}

func TestStorage_Auth_BucketMissing(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	require.NoError(t, store.db.Update(func(tx *bbolt.Tx) error {
		return tx.DeleteBucket(bucketAuth)
	}))

	err := store.SaveAuth(ctx, &storage.AuthData{DeviceName: "test"})
	assert.ErrorContains(t, err, "auth bucket not found")

	_, err = store.GetAuth(ctx)
	assert.ErrorContains(t, err, "auth bucket not found")

	err = store.DeleteAuth(ctx)
	assert.ErrorContains(t, err, "auth bucket not found")
}
