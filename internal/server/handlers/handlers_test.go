package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/soundlines/internal/aggregate"
	"github.com/iudanet/soundlines/internal/geo"
	"github.com/iudanet/soundlines/internal/journal"
	"github.com/iudanet/soundlines/internal/models"
	"github.com/iudanet/soundlines/internal/server/storage"
	"github.com/iudanet/soundlines/internal/session"
	"github.com/iudanet/soundlines/internal/world"
)

func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError,
	}
	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}

// mockDeviceStorage реализация DeviceStorage в памяти
type mockDeviceStorage struct {
	err     error
	devices map[string]*models.Device
	mu      sync.Mutex
}

func newMockDeviceStorage() *mockDeviceStorage {
	return &mockDeviceStorage{devices: make(map[string]*models.Device)}
}

func (m *mockDeviceStorage) CreateDevice(_ context.Context, d *models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.devices[d.Name]; ok {
		return storage.ErrDeviceAlreadyExists
	}
	c := *d
	m.devices[d.Name] = &c
	return nil
}

func (m *mockDeviceStorage) GetDeviceByName(_ context.Context, name string) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	d, ok := m.devices[name]
	if !ok {
		return nil, storage.ErrDeviceNotFound
	}
	c := *d
	return &c, nil
}

func (m *mockDeviceStorage) GetDeviceByID(_ context.Context, id string) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.ID == id {
			c := *d
			return &c, nil
		}
	}
	return nil, storage.ErrDeviceNotFound
}

func (m *mockDeviceStorage) UpdateLastSeen(_ context.Context, id string, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.ID == id {
			d.LastSeenAt = seenAt
			return nil
		}
	}
	return storage.ErrDeviceNotFound
}

// stack собранное в памяти ядро сервера
type stack struct {
	log        *journal.Log
	store      *world.Store
	service    *session.Service
	aggregator *aggregate.Aggregator
}

func newStack(t *testing.T, opts journal.Options) *stack {
	t.Helper()
	logger := setupTestLogger()
	log := journal.NewLog(nil, logger, opts)
	store := world.NewStore(log, logger)
	tracker := session.NewTracker(nil, logger, time.Hour)
	idx := geo.NewIndex(geo.Haversine{}, geo.DefaultCellSize, time.Hour)
	return &stack{
		log:        log,
		store:      store,
		service:    session.NewService(log, store, tracker, logger),
		aggregator: aggregate.New(idx, store, logger, aggregate.Options{K: 5}),
	}
}

// asDevice выполняет запрос от имени аутентифицированного телефона
func asDevice(r *http.Request, id string) *http.Request {
	return r.WithContext(WithDevice(r.Context(), id, id))
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}
