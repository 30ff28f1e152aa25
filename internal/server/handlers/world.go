package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/soundlines/internal/journal"
	"github.com/iudanet/soundlines/internal/metrics"
	"github.com/iudanet/soundlines/internal/models"
	"github.com/iudanet/soundlines/internal/session"
	"github.com/iudanet/soundlines/internal/world"
	"github.com/iudanet/soundlines/pkg/api"
)

const (
	// maxFrameRecords сколько записей журнала помещается в один кадр потока
	maxFrameRecords = 500
	// CloseTooStale код закрытия потока, когда since уже сжат: клиент должен запросить снимок
	CloseTooStale = 4001

	streamWriteTimeout = 5 * time.Second
	streamPongTimeout  = 60 * time.Second
	streamPingInterval = 25 * time.Second
)

// WorldSync выдаёт снимки и диффы и принимает подтверждения (session.Service)
type WorldSync interface {
	Fetch(ctx context.Context, clientID string) (*session.FetchResult, error)
	Snapshot(ctx context.Context, clientID string) (*session.FetchResult, error)
	Ack(ctx context.Context, clientID string, seq int64) error
}

// ChangeFeed журнал изменений для потоковой выдачи (journal.Log)
type ChangeFeed interface {
	ChangesSince(since int64) ([]models.ChangeRecord, error)
	Wait(ctx context.Context, after int64) error
	Head() int64
}

// WorldMutator применяет пакет мутаций (world.Store)
type WorldMutator interface {
	ApplyBatch(ctx context.Context, ms []world.Mutation) ([]models.ChangeRecord, error)
}

// WorldHandler обрабатывает синхронизацию мира
type WorldHandler struct {
	logger   *slog.Logger
	sync     WorldSync
	feed     ChangeFeed
	mutator  WorldMutator
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	// pingInterval и pongTimeout keepalive потока
	pingInterval time.Duration
	pongTimeout  time.Duration
}

// NewWorldHandler создает handler мира. m может быть nil.
func NewWorldHandler(logger *slog.Logger, sync WorldSync, feed ChangeFeed, mutator WorldMutator, m *metrics.Metrics) *WorldHandler {
	return &WorldHandler{
		logger:  logger,
		sync:    sync,
		feed:    feed,
		mutator: mutator,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			// Телефоны подключаются не из браузера
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pingInterval: streamPingInterval,
		pongTimeout:  streamPongTimeout,
	}
}

// Fetch обрабатывает GET /api/v1/world
// Первый запрос и запрос после сжатия журнала получают снимок, остальные дифф.
// Параметр full=true запрашивает снимок независимо от курсора.
func (h *WorldHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deviceID, ok := GetDeviceID(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "device id not found in context")
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	full := false
	if v := r.URL.Query().Get("full"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			sendError(h.logger, w, "invalid full parameter", http.StatusBadRequest)
			return
		}
		full = parsed
	}

	fetch := h.sync.Fetch
	if full {
		fetch = h.sync.Snapshot
	}

	res, err := fetch(ctx, deviceID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to fetch world",
			slog.String("device_id", deviceID),
			slog.Any("error", err))
		sendDomainError(h.logger, w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.WorldFetches.WithLabelValues(string(res.Mode)).Inc()
	}

	var resp api.WorldResponse
	switch res.Mode {
	case session.ModeSnapshot:
		resp = world.SnapshotResponse(res.State, res.Seq)
	default:
		resp = world.DiffResponse(res.Changes, res.Seq)
	}

	h.logger.InfoContext(ctx, "world fetched",
		slog.String("device_id", deviceID),
		slog.String("mode", string(res.Mode)),
		slog.Int64("seq", res.Seq),
		slog.Int("changes", len(res.Changes)))

	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Ack обрабатывает POST /api/v1/world/ack
// Откат курсора не является ошибкой клиента: отвечаем 200 со статусом ignored
func (h *WorldHandler) Ack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deviceID, ok := GetDeviceID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.AckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode ack request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Seq == nil || *req.Seq < 0 {
		sendError(h.logger, w, "seq is required", http.StatusBadRequest)
		return
	}

	err := h.sync.Ack(ctx, deviceID, *req.Seq)
	switch {
	case err == nil:
		h.countAck("ok")
		sendJSON(h.logger, w, api.StatusResponse{Status: "ok", Seq: *req.Seq}, http.StatusOK)
	case errors.Is(err, session.ErrRegressedCursor):
		h.countAck("ignored")
		sendJSON(h.logger, w, api.StatusResponse{Status: "ignored", Seq: *req.Seq}, http.StatusOK)
	default:
		h.countAck("error")
		h.logger.WarnContext(ctx, "ack rejected",
			slog.String("device_id", deviceID),
			slog.Int64("seq", *req.Seq),
			slog.Any("error", err))
		sendDomainError(h.logger, w, err)
	}
}

func (h *WorldHandler) countAck(result string) {
	if h.metrics != nil {
		h.metrics.WorldAcks.WithLabelValues(result).Inc()
	}
}

// Mutations обрабатывает POST /api/v1/world/mutations (только администратор)
// Мутации применяются по порядку, пакет останавливается на первой ошибке
func (h *WorldHandler) Mutations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.MutationBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode mutation batch", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Mutations) == 0 {
		sendError(h.logger, w, "mutations are required", http.StatusBadRequest)
		return
	}

	batch := make([]world.Mutation, 0, len(req.Mutations))
	for _, m := range req.Mutations {
		t, err := models.ParseEntityType(m.Type)
		if err != nil {
			sendError(h.logger, w, err.Error(), http.StatusBadRequest)
			return
		}
		op := world.Op(m.Op)
		if op == "" {
			op = world.OpUpsert
		}
		batch = append(batch, world.Mutation{
			Type:     t,
			ID:       m.ID,
			Op:       op,
			Delta:    m.Delta,
			Relative: m.Relative,
		})
	}

	applied, err := h.mutator.ApplyBatch(ctx, batch)
	if h.metrics != nil {
		for _, rec := range applied {
			h.metrics.Mutations.WithLabelValues(string(rec.Type)).Inc()
		}
	}
	if err != nil {
		h.logger.WarnContext(ctx, "mutation batch stopped",
			slog.Int("applied", len(applied)),
			slog.Int("total", len(batch)),
			slog.Any("error", err))
		sendDomainError(h.logger, w, err)
		return
	}

	resp := api.MutationBatchResponse{Applied: make([]api.DiffEntry, 0, len(applied))}
	for _, rec := range applied {
		resp.Applied = append(resp.Applied, api.NewDiffEntry(rec))
		resp.Seq = rec.Seq
	}

	h.logger.InfoContext(ctx, "world mutations applied",
		slog.Int("count", len(applied)),
		slog.Int64("seq", resp.Seq))

	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Stream обрабатывает GET /api/v1/world/stream?since=
// WebSocket: сервер присылает кадры с новыми записями журнала после since.
// Если since уже сжат, соединение закрывается кодом CloseTooStale.
// Без since поток начинается с текущей головы журнала.
func (h *WorldHandler) Stream(w http.ResponseWriter, r *http.Request) {
	since := h.feed.Head()
	if s := r.URL.Query().Get("since"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			sendError(h.logger, w, "since must be a non-negative integer", http.StatusBadRequest)
			return
		}
		since = v
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.StreamClients.Inc()
		defer h.metrics.StreamClients.Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Читаем входящие кадры только ради pong и закрытия соединения
	go func() {
		defer cancel()
		_ = conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	deviceID, _ := GetDeviceID(ctx)
	h.logger.InfoContext(ctx, "world stream opened",
		slog.String("device_id", deviceID),
		slog.Int64("since", since))

	reason := h.pump(ctx, conn, since)
	h.logger.InfoContext(ctx, "world stream closed",
		slog.String("device_id", deviceID),
		slog.String("reason", reason))
}

// pump отправляет кадры, пока клиент подключён. Возвращает причину завершения.
// Ping уходит по расписанию, даже когда журнал растёт без пауз.
func (h *WorldHandler) pump(ctx context.Context, conn *websocket.Conn, since int64) string {
	closeWith := func(code int, text string) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
	}

	nextPing := time.Now().Add(h.pingInterval)
	for {
		recs, err := h.feed.ChangesSince(since)
		if err != nil {
			if errors.Is(err, journal.ErrTooStale) {
				closeWith(CloseTooStale, "too stale, fetch a snapshot")
				return "too stale"
			}
			closeWith(websocket.CloseInternalServerErr, "internal error")
			return err.Error()
		}

		for len(recs) > 0 {
			n := min(len(recs), maxFrameRecords)
			frame := world.DiffResponse(recs[:n], recs[n-1].Seq)
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(api.StreamFrame{Diff: frame.Diff, Seq: frame.Seq}); err != nil {
				return "write failed"
			}
			since = frame.Seq
			recs = recs[n:]
		}

		if now := time.Now(); !now.Before(nextPing) {
			if err := conn.WriteControl(websocket.PingMessage, nil, now.Add(streamWriteTimeout)); err != nil {
				return "ping failed"
			}
			nextPing = now.Add(h.pingInterval)
		}

		waitCtx, cancel := context.WithDeadline(ctx, nextPing)
		_ = h.feed.Wait(waitCtx, since)
		cancel()
		if ctx.Err() != nil {
			closeWith(websocket.CloseNormalClosure, "bye")
			return "client gone"
		}
	}
}
