package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	httpClient "github.com/iudanet/soundlines/internal/client/api"
	"github.com/iudanet/soundlines/internal/client/storage"
	"github.com/iudanet/soundlines/internal/models"
	"github.com/iudanet/soundlines/internal/world"
	"github.com/iudanet/soundlines/pkg/api"
)

//go:generate moq -out mocks_test.go . WorldAPI

const (
	// maxResyncs сколько раз подряд Follow переключается на снимок без единого кадра
	maxResyncs = 3
	// maxReconnects сколько раз подряд Follow переподключается без единого кадра
	maxReconnects = 5

	defaultReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
)

// ErrGap дифф не продолжает локальную реплику
var ErrGap = errors.New("diff does not continue the local replica")

// WorldAPI операции сервера, нужные для репликации мира
type WorldAPI interface {
	FetchWorld(ctx context.Context, token string) (*api.WorldResponse, error)
	FetchSnapshot(ctx context.Context, token string) (*api.WorldResponse, error)
	Ack(ctx context.Context, token string, seq int64) (*api.StatusResponse, error)
	Stream(ctx context.Context, token string, since int64, fn func(api.StreamFrame) error) error
}

// Result итог одного шага синхронизации
type Result struct {
	Mode     string // Mode snapshot или diff
	Applied  int    // Applied сущностей в снимке либо применённых записей диффа
	Seq      int64  // Seq seq реплики после шага
	Resynced bool   // Resynced реплика была сброшена и заменена снимком
}

// Service поддерживает локальную реплику мира в актуальном состоянии
type Service struct {
	api     WorldAPI
	replica storage.ReplicaStorage
	logger  *slog.Logger

	reconnectDelay time.Duration // reconnectDelay пауза перед первым переподключением, дальше удваивается
}

// NewService создает сервис синхронизации
func NewService(worldAPI WorldAPI, replica storage.ReplicaStorage, logger *slog.Logger) *Service {
	return &Service{
		api:     worldAPI,
		replica:        replica,
		logger:         logger,
		reconnectDelay: defaultReconnectDelay,
	}
}

// Sync запрашивает мир, применяет снимок или дифф, сохраняет реплику
// и подтверждает seq. Разрыв в диффе сбрасывает реплику и приводит
// к запросу полного снимка.
func (s *Service) Sync(ctx context.Context, accessToken string) (*Result, error) {
	state, seq, err := s.loadReplica(ctx)
	if err != nil {
		return nil, err
	}

	var resp *api.WorldResponse
	if state == nil {
		resp, err = s.api.FetchSnapshot(ctx, accessToken)
	} else {
		resp, err = s.api.FetchWorld(ctx, accessToken)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch world: %w", err)
	}

	res, err := s.apply(ctx, state, seq, resp)
	if errors.Is(err, ErrGap) {
		res, err = s.resync(ctx, accessToken, err)
	}
	if err != nil {
		return nil, err
	}

	if _, err := s.api.Ack(ctx, accessToken, res.Seq); err != nil {
		return nil, fmt.Errorf("failed to acknowledge seq %d: %w", res.Seq, err)
	}

	s.logger.InfoContext(ctx, "World synchronized",
		"mode", res.Mode,
		"applied", res.Applied,
		"seq", res.Seq,
		"resynced", res.Resynced)
	return res, nil
}

// Follow держит поток диффов открытым и применяет каждый кадр.
// Если сервер уже сжал позицию реплики, выполняет Sync и продолжает поток.
// Закрытый сервером или оборванный поток открывается заново с seq реплики.
// onFrame может быть nil. Возвращает nil только при отмене ctx.
func (s *Service) Follow(ctx context.Context, accessToken string, onFrame func(*Result)) error {
	resyncs, drops := 0, 0
	for {
		state, seq, err := s.loadReplica(ctx)
		if err != nil {
			return err
		}
		if state == nil {
			if _, err := s.Sync(ctx, accessToken); err != nil {
				return err
			}
			continue
		}

		err = s.api.Stream(ctx, accessToken, seq, func(frame api.StreamFrame) error {
			res, err := s.applyDiff(ctx, state, seq, frame.Diff, frame.Seq)
			if err != nil {
				return err
			}
			seq = res.Seq
			resyncs, drops = 0, 0
			if _, err := s.api.Ack(ctx, accessToken, res.Seq); err != nil {
				return fmt.Errorf("failed to acknowledge seq %d: %w", res.Seq, err)
			}
			if onFrame != nil {
				onFrame(res)
			}
			return nil
		})

		switch {
		case ctx.Err() != nil:
			return nil
		case err == nil, errors.Is(err, httpClient.ErrStreamLost):
			drops++
			if drops > maxReconnects {
				return fmt.Errorf("stream dropped %d times in a row: %w", maxReconnects, httpClient.ErrStreamLost)
			}
			delay := s.backoff(drops)
			s.logger.WarnContext(ctx, "Stream closed, reconnecting",
				"seq", seq,
				"attempt", drops,
				"delay", delay,
				slog.Any("error", err))
			if !sleep(ctx, delay) {
				return nil
			}
		case errors.Is(err, httpClient.ErrTooStale), errors.Is(err, ErrGap):
			resyncs++
			if resyncs > maxResyncs {
				return fmt.Errorf("stream keeps falling behind after %d resyncs: %w", maxResyncs, err)
			}
			s.logger.WarnContext(ctx, "Stream position lost, resynchronizing",
				"seq", seq,
				slog.Any("error", err))
			if err := s.replica.ClearReplica(ctx); err != nil {
				return fmt.Errorf("failed to clear replica: %w", err)
			}
		default:
			return err
		}
	}
}

// backoff пауза перед attempt-м переподключением подряд
func (s *Service) backoff(attempt int) time.Duration {
	delay := s.reconnectDelay
	for i := 1; i < attempt && delay < maxReconnectDelay; i++ {
		delay *= 2
	}
	return min(delay, maxReconnectDelay)
}

// sleep ждёт d и возвращает false, если ctx отменён раньше
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Status возвращает seq и размер локальной реплики
func (s *Service) Status(ctx context.Context) (seq int64, counts map[models.EntityType]int, err error) {
	state, seq, err := s.loadReplica(ctx)
	if err != nil || state == nil {
		return 0, nil, err
	}
	return seq, map[models.EntityType]int{
		models.EntityTree:   len(state.Trees),
		models.EntityAnimal: len(state.Animals),
		models.EntityRegion: len(state.Regions),
		models.EntityNoise:  len(state.Noise),
	}, nil
}

// loadReplica возвращает nil состояние, если мир ещё не синхронизирован
func (s *Service) loadReplica(ctx context.Context) (*world.State, int64, error) {
	state, seq, err := s.replica.LoadReplica(ctx)
	if errors.Is(err, storage.ErrReplicaNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load replica: %w", err)
	}
	return state, seq, nil
}

func (s *Service) resync(ctx context.Context, accessToken string, cause error) (*Result, error) {
	s.logger.WarnContext(ctx, "Replica diverged from server, requesting snapshot",
		slog.Any("error", cause))

	if err := s.replica.ClearReplica(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear replica: %w", err)
	}

	resp, err := s.api.FetchSnapshot(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	res, err := s.apply(ctx, nil, 0, resp)
	if err != nil {
		return nil, err
	}
	res.Resynced = true
	return res, nil
}

func (s *Service) apply(ctx context.Context, state *world.State, seq int64, resp *api.WorldResponse) (*Result, error) {
	switch resp.Mode {
	case api.ModeSnapshot:
		next, err := world.StateFromSnapshot(*resp)
		if err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		if err := s.replica.SaveReplica(ctx, next, resp.Seq); err != nil {
			return nil, fmt.Errorf("failed to save replica: %w", err)
		}
		return &Result{
			Mode:    api.ModeSnapshot,
			Applied: len(next.Trees) + len(next.Animals) + len(next.Regions) + len(next.Noise),
			Seq:     resp.Seq,
		}, nil
	case api.ModeDiff:
		if state == nil {
			return nil, fmt.Errorf("%w: diff received without a replica", ErrGap)
		}
		return s.applyDiff(ctx, state, seq, resp.Diff, resp.Seq)
	default:
		return nil, fmt.Errorf("unknown world mode %q", resp.Mode)
	}
}

// applyDiff применяет записи после seq к state и сохраняет реплику.
// Уже применённые записи пропускаются, первая новая должна иметь seq+1.
func (s *Service) applyDiff(ctx context.Context, state *world.State, seq int64, diff []api.DiffEntry, respSeq int64) (*Result, error) {
	applied := 0
	for _, entry := range diff {
		if entry.Seq <= seq {
			continue
		}
		if entry.Seq != seq+1 {
			return nil, fmt.Errorf("%w: expected seq %d, got %d", ErrGap, seq+1, entry.Seq)
		}
		rec, err := entry.Record()
		if err != nil {
			return nil, fmt.Errorf("failed to decode diff entry %d: %w", entry.Seq, err)
		}
		if err := state.Apply(rec); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGap, err)
		}
		seq = rec.Seq
		applied++
	}

	if respSeq > seq {
		return nil, fmt.Errorf("%w: server is at %d, replica reached %d", ErrGap, respSeq, seq)
	}

	if applied > 0 {
		if err := s.replica.SaveReplica(ctx, state, seq); err != nil {
			return nil, fmt.Errorf("failed to save replica: %w", err)
		}
	}
	return &Result{Mode: api.ModeDiff, Applied: applied, Seq: seq}, nil
}
