package boltdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/soundlines/internal/client/storage"
	"github.com/iudanet/soundlines/internal/models"
	"github.com/iudanet/soundlines/internal/world"
)

func sampleState() *world.State {
	s := world.NewState()
	s.Trees["T1"] = &models.Tree{ID: "T1", Lat: 1, Lng: 2, Length: 3}
	s.Animals["A1"] = &models.Animal{ID: "A1", Attributes: map[string]any{"kind": "fox"}}
	r := models.NewRegion("R1")
	r.Vegetation = 0.5
	r.Trees["T1"] = struct{}{}
	r.Animals["A1"] = struct{}{}
	s.Regions["R1"] = r
	s.Noise["c1"] = &models.NoiseCell{ID: "c1", Lat: 1, Lng: 2, Level: 0.25, Samples: 4}
	return s
}

func TestReplica_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	_, _, err := store.LoadReplica(ctx)
	assert.ErrorIs(t, err, storage.ErrReplicaNotFound)

	want := sampleState()
	require.NoError(t, store.SaveReplica(ctx, want, 17))

	got, seq, err := store.LoadReplica(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(17), seq)
	assert.Equal(t, want, got)

	require.NoError(t, store.ClearReplica(ctx))
	_, _, err = store.LoadReplica(ctx)
	assert.ErrorIs(t, err, storage.ErrReplicaNotFound)
}

func TestReplica_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "replica.db")

	store, err := New(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.SaveReplica(ctx, sampleState(), 5))
	require.NoError(t, store.SaveStamp(ctx, 9))
	require.NoError(t, store.Close())

	store, err = New(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	got, seq, err := store.LoadReplica(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), seq)
	assert.Len(t, got.Trees, 1)

	stamp, err := store.GetStamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), stamp)
}
