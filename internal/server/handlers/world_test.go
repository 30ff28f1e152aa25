package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/soundlines/internal/journal"
	"github.com/iudanet/soundlines/internal/models"
	"github.com/iudanet/soundlines/internal/world"
	"github.com/iudanet/soundlines/pkg/api"
)

func newWorldHandler(s *stack) *WorldHandler {
	return NewWorldHandler(setupTestLogger(), s.service, s.log, s.store, nil)
}

func addTree(t *testing.T, s *stack, id string, length float64) {
	t.Helper()
	_, err := s.store.ApplyMutation(context.Background(), world.Mutation{
		Type: models.EntityTree,
		ID:   id,
		Delta: models.Delta{
			Lat:    models.Float(1),
			Lng:    models.Float(2),
			Length: models.Float(length),
		},
	})
	require.NoError(t, err)
}

func fetchWorld(t *testing.T, h *WorldHandler, device string) api.WorldResponse {
	t.Helper()
	w := httptest.NewRecorder()
	h.Fetch(w, asDevice(httptest.NewRequest(http.MethodGet, "/api/v1/world", nil), device))
	require.Equal(t, http.StatusOK, w.Code)
	return decode[api.WorldResponse](t, w)
}

func ack(t *testing.T, h *WorldHandler, device string, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/world/ack", strings.NewReader(body))
	h.Ack(w, asDevice(req, device))
	return w
}

func TestWorldHandler_FetchSnapshotThenDiff(t *testing.T) {
	s := newStack(t, journal.Options{})
	h := newWorldHandler(s)
	addTree(t, s, "T1", 1)
	addTree(t, s, "T2", 2)

	resp := fetchWorld(t, h, "phone-1")
	assert.Equal(t, api.ModeSnapshot, resp.Mode)
	assert.Equal(t, int64(2), resp.Seq)
	assert.Len(t, resp.Trees, 2)

	w := ack(t, h, "phone-1", fmt.Sprintf(`{"seq":%d}`, resp.Seq))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[api.StatusResponse](t, w).Status)

	addTree(t, s, "T1", 5)
	resp = fetchWorld(t, h, "phone-1")
	assert.Equal(t, api.ModeDiff, resp.Mode)
	assert.Equal(t, int64(3), resp.Seq)
	require.Len(t, resp.Diff, 1)
	assert.Equal(t, "T1", resp.Diff[0].ID)
	assert.InDelta(t, 5, *resp.Diff[0].Length, 1e-9)
}

func TestWorldHandler_FetchFullSnapshot(t *testing.T) {
	s := newStack(t, journal.Options{})
	h := newWorldHandler(s)
	addTree(t, s, "T1", 1)

	resp := fetchWorld(t, h, "phone-1")
	require.Equal(t, http.StatusOK, ack(t, h, "phone-1", fmt.Sprintf(`{"seq":%d}`, resp.Seq)).Code)
	addTree(t, s, "T2", 2)

	w := httptest.NewRecorder()
	h.Fetch(w, asDevice(httptest.NewRequest(http.MethodGet, "/api/v1/world?full=true", nil), "phone-1"))
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[api.WorldResponse](t, w)
	assert.Equal(t, api.ModeSnapshot, resp.Mode)
	assert.Equal(t, int64(2), resp.Seq)
	assert.Len(t, resp.Trees, 2)

	w = httptest.NewRecorder()
	h.Fetch(w, asDevice(httptest.NewRequest(http.MethodGet, "/api/v1/world?full=maybe", nil), "phone-1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorldHandler_Ack(t *testing.T) {
	s := newStack(t, journal.Options{})
	h := newWorldHandler(s)
	for i := 0; i < 5; i++ {
		addTree(t, s, fmt.Sprintf("T%d", i), 1)
	}

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantState  string
	}{
		{"advance", `{"seq":4}`, http.StatusOK, "ok"},
		{"same value", `{"seq":4}`, http.StatusOK, "ok"},
		{"regressed", `{"seq":2}`, http.StatusOK, "ignored"},
		{"ahead of head", `{"seq":9}`, http.StatusBadRequest, ""},
		{"missing seq", `{}`, http.StatusBadRequest, ""},
		{"negative seq", `{"seq":-1}`, http.StatusBadRequest, ""},
		{"malformed", `seq=4`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ack(t, h, "phone-1", tt.body)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantState != "" {
				assert.Equal(t, tt.wantState, decode[api.StatusResponse](t, w).Status)
			}
		})
	}

	// Откат не меняет курсор
	cursor, ok := s.service.Tracker().Cursor("phone-1")
	require.True(t, ok)
	assert.Equal(t, int64(4), cursor.LastSeq)
}

func TestWorldHandler_Mutations(t *testing.T) {
	s := newStack(t, journal.Options{})
	h := newWorldHandler(s)

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.Mutations(w, httptest.NewRequest(http.MethodPost, "/api/v1/world/mutations", strings.NewReader(body)))
		return w
	}

	w := post(`{"mutations":[
		{"type":"tree","id":"T1","lat":1,"lng":2,"length":3},
		{"type":"region","id":"R1","vegetation":0.5,"trees_added":["T1"]}
	]}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[api.MutationBatchResponse](t, w)
	require.Len(t, resp.Applied, 2)
	assert.Equal(t, int64(2), resp.Seq)
	assert.Equal(t, "region", resp.Applied[1].Type)

	t.Run("relative increment", func(t *testing.T) {
		w := post(`{"mutations":[{"type":"tree","id":"T1","length":2,"relative":true}]}`)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[api.MutationBatchResponse](t, w)
		require.Len(t, resp.Applied, 1)
		assert.InDelta(t, 5, *resp.Applied[0].Length, 1e-9)
	})

	t.Run("dangling reference", func(t *testing.T) {
		w := post(`{"mutations":[{"type":"region","id":"R1","trees_added":["missing"]}]}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("unknown type", func(t *testing.T) {
		w := post(`{"mutations":[{"type":"rock","id":"X"}]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty batch", func(t *testing.T) {
		w := post(`{"mutations":[]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("delete", func(t *testing.T) {
		w := post(`{"mutations":[
			{"type":"region","id":"R1","trees_removed":["T1"]},
			{"type":"tree","id":"T1","op":"delete"}
		]}`)
		require.Equal(t, http.StatusOK, w.Code)
		_, err := s.store.Get(models.EntityTree, "T1")
		assert.ErrorIs(t, err, world.ErrNotFound)
	})
}

func dialStream(t *testing.T, h *WorldHandler, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Stream(w, asDevice(r, "watcher"))
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/world/stream" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) api.StreamFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame api.StreamFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWorldHandler_Stream(t *testing.T) {
	s := newStack(t, journal.Options{})
	h := newWorldHandler(s)
	addTree(t, s, "T1", 1)
	addTree(t, s, "T2", 1)

	conn := dialStream(t, h, "?since=1")

	frame := readFrame(t, conn)
	assert.Equal(t, int64(2), frame.Seq)
	require.Len(t, frame.Diff, 1)
	assert.Equal(t, "T2", frame.Diff[0].ID)

	addTree(t, s, "T3", 1)
	frame = readFrame(t, conn)
	assert.Equal(t, int64(3), frame.Seq)
	require.Len(t, frame.Diff, 1)
	assert.Equal(t, "T3", frame.Diff[0].ID)
}

func TestWorldHandler_StreamTooStale(t *testing.T) {
	s := newStack(t, journal.Options{MaxLen: 2})
	h := newWorldHandler(s)
	for i := 0; i < 6; i++ {
		addTree(t, s, fmt.Sprintf("T%d", i), 1)
	}
	_, err := s.log.Compact(context.Background(), nil, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(4), s.log.Floor())

	conn := dialStream(t, h, "?since=1")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, CloseTooStale))
}

func TestWorldHandler_StreamBadSince(t *testing.T) {
	s := newStack(t, journal.Options{})
	h := newWorldHandler(s)

	w := httptest.NewRecorder()
	h.Stream(w, httptest.NewRequest(http.MethodGet, "/api/v1/world/stream?since=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorldHandler_StreamPingsWhileBusy(t *testing.T) {
	s := newStack(t, journal.Options{})
	h := newWorldHandler(s)
	h.pingInterval = 50 * time.Millisecond
	h.pongTimeout = 200 * time.Millisecond
	addTree(t, s, "T0", 1)

	conn := dialStream(t, h, "?since=1")

	// Журнал растёт чаще, чем ping interval, и дольше pong timeout
	deadline := time.Now().Add(4 * h.pongTimeout)
	for i := 1; time.Now().Before(deadline); i++ {
		addTree(t, s, fmt.Sprintf("T%d", i), 1)
		frame := readFrame(t, conn)
		assert.Equal(t, int64(i+1), frame.Seq)
		time.Sleep(10 * time.Millisecond)
	}
}
