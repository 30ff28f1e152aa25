package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/iudanet/soundlines/internal/aggregate"
	"github.com/iudanet/soundlines/internal/config"
	"github.com/iudanet/soundlines/internal/geo"
	"github.com/iudanet/soundlines/internal/journal"
	"github.com/iudanet/soundlines/internal/metrics"
	"github.com/iudanet/soundlines/internal/server/checkpoint"
	"github.com/iudanet/soundlines/internal/server/handlers"
	"github.com/iudanet/soundlines/internal/server/jwt"
	"github.com/iudanet/soundlines/internal/server/middleware"
	"github.com/iudanet/soundlines/internal/server/storage/sqlite"
	"github.com/iudanet/soundlines/internal/session"
	"github.com/iudanet/soundlines/internal/world"
)

// app собранный сервер: хранилища, журнал, мир и сервисы поверх них
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	db          *sqlite.Storage
	log         *journal.Log
	world       *world.Store
	checkpoints *checkpoint.Store
	tracker     *session.Tracker
	index       *geo.Index
	aggregator  *aggregate.Aggregator
	sync        *session.Service
	tokens      *jwt.Service
	limiter     *middleware.RateLimiter
	metrics     *metrics.Metrics
	ckptSeq     atomic.Int64 // ckptSeq seq последней контрольной точки
}

// newApp открывает базу и восстанавливает мир: контрольная точка,
// затем хвост журнала. Пустой сервер заполняется из seed файла.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := sqlite.New(ctx, cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	changeLog := journal.NewLog(db, logger, journal.Options{
		Retention: cfg.Journal.Retention,
		MaxLen:    cfg.Journal.MaxLen,
	})

	var metric geo.Metric = geo.Haversine{}
	if cfg.Index.Metric == "planar" {
		metric = geo.Planar{}
	}

	a := &app{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		log:         changeLog,
		world:       world.NewStore(changeLog, logger),
		checkpoints: checkpoint.New(cfg.Storage.CheckpointDir, cfg.Storage.CheckpointKeep, logger),
		tracker:     session.NewTracker(db, logger, cfg.Session.ActiveWindow),
		index:       geo.NewIndex(metric, cfg.Index.CellSize, cfg.Index.TTL),
		tokens:      jwt.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		metrics:     metrics.New(),
	}
	a.aggregator = aggregate.New(a.index, a.world, logger, aggregate.Options{
		K:            cfg.Aggregate.K,
		NoiseEpsilon: cfg.Aggregate.NoiseEpsilon,
	})
	a.sync = session.NewService(changeLog, a.world, a.tracker, logger)

	if err := a.restore(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := a.tracker.Load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if cfg.RateLimit.RPS > 0 {
		a.limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 0, logger)
	}

	a.metrics.Observe(metrics.Sources{
		IndexSize: a.index.Len,
		LogHead:   changeLog.Head,
		LogFloor:  changeLog.Floor,
		LogLen:    changeLog.Len,
		Clients:   a.tracker.Len,
	})

	return a, nil
}

func (a *app) restore(ctx context.Context) error {
	recs, floor, err := a.db.LoadChanges(ctx)
	if err != nil {
		return fmt.Errorf("failed to load change log: %w", err)
	}
	if err := a.log.Load(recs, floor); err != nil {
		return fmt.Errorf("failed to load change log: %w", err)
	}

	state, seq, err := a.checkpoints.LoadLatest(ctx, floor)
	switch {
	case errors.Is(err, checkpoint.ErrNoCheckpoint):
		if floor > 0 {
			return fmt.Errorf("change log is compacted up to seq %d, but %s has no checkpoint",
				floor, a.checkpoints.Dir())
		}
	case err != nil:
		return fmt.Errorf("failed to load checkpoint: %w", err)
	default:
		if seq > a.log.Head() {
			return fmt.Errorf("checkpoint seq %d is ahead of change log head %d", seq, a.log.Head())
		}
		a.world.Restore(state, seq)
		a.ckptSeq.Store(seq)
	}

	if err := a.world.Replay(recs); err != nil {
		return fmt.Errorf("failed to replay change log: %w", err)
	}

	if a.log.Head() == 0 && a.cfg.Storage.SeedPath != "" {
		if err := a.seed(ctx); err != nil {
			return err
		}
	}

	snapshot, head := a.world.Snapshot()
	a.aggregator.RestoreNoise(snapshot.Noise)

	a.logger.InfoContext(ctx, "World restored",
		"seq", head,
		"checkpoint_seq", a.ckptSeq.Load(),
		"log_floor", floor,
		"log_records", len(recs))
	return nil
}

func (a *app) seed(ctx context.Context) error {
	f, err := os.Open(a.cfg.Storage.SeedPath)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if _, err := world.Seed(ctx, a.world, f); err != nil {
		return fmt.Errorf("failed to seed world: %w", err)
	}
	return nil
}

// routes собирает HTTP маршруты сервера
func (a *app) routes() http.Handler {
	logger := a.logger
	auth := middleware.AuthMiddleware(logger, a.tokens)
	admin := middleware.AdminMiddleware(logger, a.cfg.Auth.AdminToken)
	timeout := func(h http.Handler) http.Handler {
		return http.TimeoutHandler(h, a.cfg.Server.RequestTimeout, "request timeout")
	}
	limit := func(h http.Handler) http.Handler {
		if a.limiter == nil {
			return h
		}
		return a.limiter.Middleware(h)
	}

	devices := handlers.NewDeviceHandler(logger, a.db, a.tokens)
	reports := handlers.NewReportHandler(logger, a.aggregator, a.metrics, a.cfg.Aggregate.K)
	worldHandler := handlers.NewWorldHandler(logger, a.sync, a.log, a.world, a.metrics)
	health := handlers.NewHealthHandler(logger, a.db, a.log.Head, handlers.BuildInfo{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
	})

	mux := http.NewServeMux()

	// Public endpoints
	mux.Handle("POST /api/v1/devices/register", limit(timeout(http.HandlerFunc(devices.Register))))
	mux.Handle("POST /api/v1/devices/login", limit(timeout(http.HandlerFunc(devices.Login))))
	mux.Handle("GET /api/v1/cells/{lat}/{lng}", timeout(http.HandlerFunc(reports.Cell)))
	mux.HandleFunc("GET /api/v1/health", health.Health)
	mux.Handle("GET /metrics", a.metrics.Handler())

	// Device endpoints
	mux.Handle("POST /api/v1/reports", auth(limit(timeout(http.HandlerFunc(reports.Submit)))))
	mux.Handle("GET /api/v1/reports/nearby", auth(timeout(http.HandlerFunc(reports.Nearby))))
	mux.Handle("GET /api/v1/world", auth(gzhttp.GzipHandler(timeout(http.HandlerFunc(worldHandler.Fetch)))))
	mux.Handle("POST /api/v1/world/ack", auth(timeout(http.HandlerFunc(worldHandler.Ack))))
	mux.Handle("GET /api/v1/world/stream", auth(http.HandlerFunc(worldHandler.Stream)))

	// Admin endpoints
	mux.Handle("POST /api/v1/world/mutations", admin(timeout(http.HandlerFunc(worldHandler.Mutations))))

	logging := middleware.LoggingWithSkip(logger, a.metrics, []string{"/api/v1/health", "/metrics"})
	return middleware.RecoveryMiddleware(logger)(logging(mux))
}

// sweep удаляет из индекса отчёты старше TTL
func (a *app) sweep(now time.Time) {
	expired := a.aggregator.Expire(now)
	if len(expired) == 0 {
		return
	}
	a.metrics.ExpiredReports.Add(float64(len(expired)))
	a.logger.Debug("Expired reports removed", "count", len(expired))
}

// checkpoint сохраняет снимок мира, если с прошлого раза что-то изменилось
func (a *app) checkpoint(ctx context.Context) error {
	state, seq := a.world.Snapshot()
	if seq == a.ckptSeq.Load() {
		return nil
	}

	if _, err := a.checkpoints.Save(ctx, state, seq); err != nil {
		a.metrics.Checkpoints.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	a.ckptSeq.Store(seq)
	a.metrics.Checkpoints.WithLabelValues("ok").Inc()
	return nil
}

// compact сжимает журнал, оставляя записи после самой старой хранимой
// контрольной точки, чтобы при повреждении нового файла можно было откатиться на старый
func (a *app) compact(ctx context.Context, now time.Time) error {
	pin := a.ckptSeq.Load()
	oldest, ok, err := a.checkpoints.Oldest()
	if err != nil {
		a.metrics.Compactions.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}
	if ok {
		pin = min(pin, oldest)
	}

	res, err := a.sync.Compact(ctx, now, pin+1)
	switch {
	case err != nil:
		a.metrics.Compactions.WithLabelValues("error").Inc()
		return err
	case res.Deferred:
		a.metrics.Compactions.WithLabelValues("deferred").Inc()
	default:
		a.metrics.Compactions.WithLabelValues("ok").Inc()
	}
	return nil
}

// close останавливает фоновые части и закрывает базу
func (a *app) close() error {
	if a.limiter != nil {
		a.limiter.Stop()
	}
	return a.db.Close()
}
