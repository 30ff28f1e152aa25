package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/iudanet/soundlines/internal/aggregate"
	"github.com/iudanet/soundlines/internal/geo"
	"github.com/iudanet/soundlines/internal/metrics"
	"github.com/iudanet/soundlines/internal/models"
	"github.com/iudanet/soundlines/pkg/api"
)

// maxNearby верхняя граница k для запроса соседей
const maxNearby = 100

// ReportAggregator принимает отчёты и отвечает соседями (aggregate.Aggregator)
type ReportAggregator interface {
	Submit(ctx context.Context, r *models.Report) (*aggregate.Result, error)
	Neighbours(ctx context.Context, p models.Point, k int) ([]geo.Neighbor, error)
	NoiseAt(p models.Point) (*models.NoiseCell, bool, error)
}

// ReportHandler обрабатывает отчёты телефонов
type ReportHandler struct {
	logger     *slog.Logger
	aggregator ReportAggregator
	metrics    *metrics.Metrics
	defaultK   int
}

// NewReportHandler создает handler отчётов. m может быть nil.
func NewReportHandler(logger *slog.Logger, aggregator ReportAggregator, m *metrics.Metrics, defaultK int) *ReportHandler {
	if defaultK <= 0 {
		defaultK = aggregate.DefaultK
	}
	return &ReportHandler{
		logger:     logger,
		aggregator: aggregator,
		metrics:    m,
		defaultK:   defaultK,
	}
}

// Submit обрабатывает POST /api/v1/reports
// Сохраняет отчёт телефона и возвращает агрегат по соседям
func (h *ReportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deviceID, ok := GetDeviceID(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "device id not found in context")
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode report", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	pos, ok := req.Position()
	if !ok {
		sendError(h.logger, w, "lat and lng are required", http.StatusBadRequest)
		return
	}
	if req.SoundLevel == nil {
		sendError(h.logger, w, "soundLevel is required", http.StatusBadRequest)
		return
	}

	report := &models.Report{
		ID:         deviceID,
		Lat:        pos.Lat,
		Lng:        pos.Lng,
		SoundLevel: *req.SoundLevel,
		LightLevel: req.LightLevel,
		Stamp:      req.Stamp,
	}

	start := time.Now()
	res, err := h.aggregator.Submit(ctx, report)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			sendError(h.logger, w, "request timed out", http.StatusServiceUnavailable)
			return
		}
		h.logger.WarnContext(ctx, "report rejected",
			slog.String("device_id", deviceID),
			slog.Any("error", err))
		sendDomainError(h.logger, w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.NearestLatency.Observe(time.Since(start).Seconds())
		h.metrics.ReportsSubmitted.WithLabelValues(res.Outcome.String()).Inc()
	}

	h.logger.DebugContext(ctx, "report accepted",
		slog.String("device_id", deviceID),
		slog.String("outcome", res.Outcome.String()),
		slog.Int("neighbours", len(res.View.Locations)))

	sendJSON(h.logger, w, api.ReportResponse{
		Outcome:    res.Outcome.String(),
		Locations:  res.View.Locations,
		SoundLevel: res.View.SoundLevel,
		Light:      res.View.Light,
		Stamp:      res.Stamp,
	}, http.StatusOK)
}

// Nearby обрабатывает GET /api/v1/reports/nearby?lat=&lng=&k=
// Возвращает ближайшие отчёты без отправки собственного
func (h *ReportHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	p, err := parsePoint(q.Get("lat"), q.Get("lng"))
	if err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	k := h.defaultK
	if s := q.Get("k"); s != "" {
		k, err = strconv.Atoi(s)
		if err != nil || k <= 0 || k > maxNearby {
			sendError(h.logger, w, "k must be an integer within [1,100]", http.StatusBadRequest)
			return
		}
	}

	neighbours, err := h.aggregator.Neighbours(ctx, p, k)
	if err != nil {
		sendDomainError(h.logger, w, err)
		return
	}

	view := aggregate.Summarize(&models.Report{}, neighbours)
	resp := api.NearbyResponse{
		Neighbours: make([]api.Neighbour, 0, len(neighbours)),
		SoundLevel: view.SoundLevel,
		Light:      view.Light,
	}
	for _, n := range neighbours {
		resp.Neighbours = append(resp.Neighbours, api.Neighbour{
			Lat:        n.Report.Lat,
			Lng:        n.Report.Lng,
			SoundLevel: n.Report.SoundLevel,
			LightLevel: n.Report.LightLevel,
			Distance:   n.Distance,
		})
	}

	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Cell обрабатывает GET /api/v1/cells/{lat}/{lng}
// Возвращает средний уровень шума ячейки сетки, содержащей точку
func (h *ReportHandler) Cell(w http.ResponseWriter, r *http.Request) {
	p, err := parsePoint(r.PathValue("lat"), r.PathValue("lng"))
	if err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	cell, ok, err := h.aggregator.NoiseAt(p)
	if err != nil {
		sendDomainError(h.logger, w, err)
		return
	}
	if !ok {
		sendError(h.logger, w, "no readings in this cell", http.StatusNotFound)
		return
	}

	sendJSON(h.logger, w, cell, http.StatusOK)
}

func parsePoint(latStr, lngStr string) (models.Point, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return models.Point{}, errors.New("lat must be a number")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return models.Point{}, errors.New("lng must be a number")
	}
	return models.Point{Lat: lat, Lng: lng}, nil
}
