package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger проверка доступности хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildInfo информация о сборке (задаётся через ldflags)
type BuildInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger *slog.Logger
	db     Pinger
	head   func() int64
	build  BuildInfo
}

// NewHealthHandler создает новый handler для health check.
// db и head могут быть nil.
func NewHealthHandler(logger *slog.Logger, db Pinger, head func() int64, build BuildInfo) *HealthHandler {
	return &HealthHandler{
		logger: logger,
		db:     db,
		head:   head,
		build:  build,
	}
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
	Database  string `json:"database,omitempty"`
	Seq       int64  `json:"seq"`
}

// Health обрабатывает GET /api/v1/health
// Health check endpoint для мониторинга
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   h.build.Version,
		GitCommit: h.build.GitCommit,
	}
	if h.head != nil {
		resp.Seq = h.head()
	}

	status := http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp.Database = "ok"
		if err := h.db.Ping(ctx); err != nil {
			h.logger.ErrorContext(ctx, "database ping failed", slog.Any("error", err))
			resp.Status = "degraded"
			resp.Database = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	sendJSON(h.logger, w, resp, status)
}
