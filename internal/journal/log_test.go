package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/iudanet/soundlines/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError,
	}
	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}

// mockChangeStore реализация ChangeStore в памяти
type mockChangeStore struct {
	appendErr error
	trimErr   error
	records   []models.ChangeRecord
	trimmedTo int64
	mu        sync.Mutex
}

func (m *mockChangeStore) AppendChange(_ context.Context, rec models.ChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *mockChangeStore) TrimChanges(_ context.Context, upTo int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trimErr != nil {
		return m.trimErr
	}
	m.trimmedTo = upTo
	return nil
}

func treeRecord(id string, at time.Time) models.ChangeRecord {
	return models.ChangeRecord{
		Type:        models.EntityTree,
		EntityID:    id,
		Delta:       models.Delta{Length: models.Float(1)},
		CommittedAt: at,
	}
}

func appendN(t *testing.T, l *Log, n int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := l.Append(context.Background(), treeRecord(fmt.Sprintf("t%d", i), at))
		require.NoError(t, err)
	}
}

func TestLog_AppendAssignsSeq(t *testing.T) {
	store := &mockChangeStore{}
	l := NewLog(store, setupTestLogger(), Options{})

	for want := int64(1); want <= 3; want++ {
		rec, err := l.Append(context.Background(), treeRecord("t", time.Time{}))
		require.NoError(t, err)
		assert.Equal(t, want, rec.Seq)
		assert.False(t, rec.CommittedAt.IsZero())
	}

	assert.Equal(t, int64(3), l.Head())
	assert.Equal(t, 3, l.Len())
	require.Len(t, store.records, 3)
	assert.Equal(t, int64(3), store.records[2].Seq)
}

func TestLog_AppendStoreFailure(t *testing.T) {
	store := &mockChangeStore{appendErr: errors.New("disk full")}
	l := NewLog(store, setupTestLogger(), Options{})

	_, err := l.Append(context.Background(), treeRecord("t", time.Time{}))
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, int64(0), l.Head())
	assert.Equal(t, 0, l.Len())

	// После восстановления хранилища seq продолжается без пропуска
	store.appendErr = nil
	rec, err := l.Append(context.Background(), treeRecord("t", time.Time{}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Seq)
}

func TestLog_ChangesSince(t *testing.T) {
	l := NewLog(nil, setupTestLogger(), Options{})
	appendN(t, l, 5, time.Now())

	tests := []struct {
		name    string
		since   int64
		want    []int64
		wantErr error
	}{
		{name: "from zero", since: 0, want: []int64{1, 2, 3, 4, 5}},
		{name: "middle", since: 3, want: []int64{4, 5}},
		{name: "at head", since: 5, want: []int64{}},
		{name: "ahead of head", since: 6, wantErr: ErrTooStale},
		{name: "negative", since: -1, wantErr: ErrTooStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.ChangesSince(tt.since)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			seqs := make([]int64, len(got))
			for i, rec := range got {
				seqs[i] = rec.Seq
			}
			assert.Equal(t, tt.want, seqs)
		})
	}
}

func TestLog_ChangesSinceReturnsCopy(t *testing.T) {
	l := NewLog(nil, setupTestLogger(), Options{})
	appendN(t, l, 2, time.Now())

	got, err := l.ChangesSince(0)
	require.NoError(t, err)
	got[0].EntityID = "mutated"

	again, err := l.ChangesSince(0)
	require.NoError(t, err)
	assert.Equal(t, "t0", again[0].EntityID)
}

func TestLog_Continuity(t *testing.T) {
	l := NewLog(nil, setupTestLogger(), Options{})
	appendN(t, l, 20, time.Now())

	whole, err := l.ChangesSince(4)
	require.NoError(t, err)

	first, err := l.ChangesSince(4)
	require.NoError(t, err)
	first = first[:7]

	second, err := l.ChangesSince(4 + int64(len(first)))
	require.NoError(t, err)

	assert.Equal(t, whole, append(first, second...))
}

func TestLog_ConcurrentReadersSeePrefixes(t *testing.T) {
	l := NewLog(nil, setupTestLogger(), Options{})

	const writers = 4
	const perWriter = 250

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := l.Append(context.Background(), treeRecord("t", time.Now()))
				assert.NoError(t, err)
			}
		}()
	}

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var cursor int64
			for cursor < writers*perWriter {
				recs, err := l.ChangesSince(cursor)
				if !assert.NoError(t, err) {
					return
				}
				for _, rec := range recs {
					if !assert.Equal(t, cursor+1, rec.Seq) {
						return
					}
					cursor = rec.Seq
				}
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int64(writers*perWriter), l.Head())
}

func TestLog_TooStaleAfterCompaction(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	l := NewLog(nil, setupTestLogger(), Options{MaxLen: 6})
	appendN(t, l, 20, now)

	res, err := l.Compact(context.Background(), nil, now)
	require.NoError(t, err)
	assert.Equal(t, int64(14), res.Floor)
	assert.Equal(t, 14, res.Dropped)

	// Самая старая оставшаяся запись имеет seq 15
	recs, err := l.ChangesSince(14)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, int64(15), recs[0].Seq)

	_, err = l.ChangesSince(10)
	require.ErrorIs(t, err, ErrTooStale)
}

func TestLog_Compact(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		opts         Options
		active       []int64
		wantFloor    int64
		wantDeferred bool
	}{
		{
			name:      "retention drops old records",
			opts:      Options{Retention: time.Hour},
			wantFloor: 10,
		},
		{
			name:      "max length",
			opts:      Options{MaxLen: 4},
			wantFloor: 16,
		},
		{
			name:      "active cursor limits cut",
			opts:      Options{MaxLen: 4},
			active:    []int64{7, 12},
			wantFloor: 6,
		},
		{
			name:         "cursor at zero defers",
			opts:         Options{MaxLen: 4},
			active:       []int64{0},
			wantFloor:    0,
			wantDeferred: true,
		},
		{
			name:         "nothing old enough",
			opts:         Options{Retention: 24 * time.Hour},
			wantFloor:    0,
			wantDeferred: true,
		},
		{
			name:         "no limits configured",
			opts:         Options{},
			wantFloor:    0,
			wantDeferred: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockChangeStore{}
			l := NewLog(store, setupTestLogger(), tt.opts)
			// 10 записей двухчасовой давности и 10 свежих
			appendN(t, l, 10, base.Add(-2*time.Hour))
			appendN(t, l, 10, base)

			res, err := l.Compact(context.Background(), tt.active, base)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDeferred, res.Deferred)
			assert.Equal(t, tt.wantFloor, res.Floor)
			assert.Equal(t, tt.wantFloor, l.Floor())
			assert.Equal(t, int64(20), l.Head())
			assert.Equal(t, int(20-tt.wantFloor), l.Len())

			for _, seq := range tt.active {
				_, err := l.ChangesSince(seq)
				assert.NoError(t, err, "active cursor %d lost its path", seq)
			}
			if !tt.wantDeferred {
				assert.Equal(t, tt.wantFloor, store.trimmedTo)
			}
		})
	}
}

func TestLog_CompactKeepsRecordAtActiveCursor(t *testing.T) {
	now := time.Now()
	l := NewLog(nil, setupTestLogger(), Options{MaxLen: 1})
	appendN(t, l, 30, now)

	for _, active := range []int64{5, 9, 17, 29} {
		_, err := l.Compact(context.Background(), []int64{active}, now)
		require.NoError(t, err)

		recs, err := l.ChangesSince(l.Floor())
		require.NoError(t, err)
		require.NotEmpty(t, recs)
		assert.LessOrEqual(t, recs[0].Seq, active)
	}
}

func TestLog_CompactIgnoresCursorsBelowFloor(t *testing.T) {
	now := time.Now()
	l := NewLog(nil, setupTestLogger(), Options{MaxLen: 5})
	appendN(t, l, 10, now)
	_, err := l.Compact(context.Background(), nil, now)
	require.NoError(t, err)
	require.Equal(t, int64(5), l.Floor())

	appendN(t, l, 10, now)
	res, err := l.Compact(context.Background(), []int64{2}, now)
	require.NoError(t, err)
	assert.False(t, res.Deferred)
	assert.Equal(t, int64(15), l.Floor())
}

func TestLog_CompactStoreFailure(t *testing.T) {
	store := &mockChangeStore{}
	l := NewLog(store, setupTestLogger(), Options{MaxLen: 2})
	appendN(t, l, 5, time.Now())

	store.trimErr = errors.New("locked")
	_, err := l.Compact(context.Background(), nil, time.Now())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int64(0), l.Floor())
	assert.Equal(t, 5, l.Len())
}

func TestLog_CompactReallocatesArena(t *testing.T) {
	now := time.Now()
	l := NewLog(nil, setupTestLogger(), Options{MaxLen: 2})

	for round := 0; round < 10; round++ {
		appendN(t, l, 10, now)
		_, err := l.Compact(context.Background(), nil, now)
		require.NoError(t, err)
		assert.LessOrEqual(t, l.dead, l.Len())
	}

	recs, err := l.ChangesSince(l.Floor())
	require.NoError(t, err)
	assert.Equal(t, []int64{99, 100}, []int64{recs[0].Seq, recs[1].Seq})
}

func TestLog_Wait(t *testing.T) {
	l := NewLog(nil, setupTestLogger(), Options{})

	done := make(chan error, 1)
	go func() {
		done <- l.Wait(context.Background(), 0)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before append")
	case <-time.After(20 * time.Millisecond):
	}

	appendN(t, l, 1, time.Now())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after append")
	}

	// Уже есть записи после after
	require.NoError(t, l.Wait(context.Background(), 0))
}

func TestLog_WaitCancelled(t *testing.T) {
	l := NewLog(nil, setupTestLogger(), Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx, 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLog_Load(t *testing.T) {
	l := NewLog(nil, setupTestLogger(), Options{})

	recs := []models.ChangeRecord{
		{Seq: 8, Type: models.EntityTree, EntityID: "a"},
		{Seq: 9, Type: models.EntityTree, EntityID: "b"},
	}
	require.NoError(t, l.Load(recs, 7))
	assert.Equal(t, int64(7), l.Floor())
	assert.Equal(t, int64(9), l.Head())

	rec, err := l.Append(context.Background(), treeRecord("c", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.Seq)

	err = l.Load([]models.ChangeRecord{{Seq: 3}, {Seq: 5}}, 2)
	require.ErrorIs(t, err, ErrGap)
	assert.Equal(t, int64(10), l.Head())
}
