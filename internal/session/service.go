package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/soundlines/internal/journal"
	"github.com/iudanet/soundlines/internal/models"
	"github.com/iudanet/soundlines/internal/world"
)

// Mode способ доставки мира клиенту
type Mode string

// Mode константы
const (
	ModeSnapshot Mode = "snapshot"
	ModeDiff     Mode = "diff"
)

// ChangeLog журнал изменений, из которого читаются диффы
type ChangeLog interface {
	ChangesSince(since int64) ([]models.ChangeRecord, error)
	Head() int64
	Compact(ctx context.Context, active []int64, now time.Time) (journal.CompactResult, error)
}

// Snapshotter источник полного состояния мира
type Snapshotter interface {
	Snapshot() (*world.State, int64)
}

// FetchResult ответ на запрос мира: снимок либо дифф
type FetchResult struct {
	State   *world.State          // State заполнен для ModeSnapshot
	Mode    Mode                  // Mode способ доставки
	Changes []models.ChangeRecord // Changes заполнен для ModeDiff
	Seq     int64                 // Seq значение, которое клиент подтверждает после применения
}

// Service выбирает между снимком и диффом для каждого клиента
type Service struct {
	log     ChangeLog
	world   Snapshotter
	tracker *Tracker
	logger  *slog.Logger
}

// NewService создает сервис синхронизации мира
func NewService(log ChangeLog, w Snapshotter, tracker *Tracker, logger *slog.Logger) *Service {
	return &Service{
		log:     log,
		world:   w,
		tracker: tracker,
		logger:  logger,
	}
}

// Fetch возвращает дифф от курсора клиента, а если курсора нет
// или журнал уже сжат дальше него, полный снимок и его seq.
func (s *Service) Fetch(ctx context.Context, clientID string) (*FetchResult, error) {
	lastSeq, ok, err := s.tracker.GetOrInitCursor(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if ok {
		changes, err := s.log.ChangesSince(lastSeq)
		switch {
		case err == nil:
			seq := lastSeq
			if len(changes) > 0 {
				seq = changes[len(changes)-1].Seq
			}
			return &FetchResult{Mode: ModeDiff, Seq: seq, Changes: changes}, nil
		case errors.Is(err, journal.ErrTooStale):
			s.logger.InfoContext(ctx, "Client cursor is too stale, sending snapshot",
				"client_id", clientID,
				"last_seq", lastSeq,
				"reason", err.Error())
		default:
			return nil, fmt.Errorf("failed to read changes: %w", err)
		}
	}

	state, seq := s.world.Snapshot()
	return &FetchResult{Mode: ModeSnapshot, Seq: seq, State: state}, nil
}

// Snapshot отдаёт полный снимок независимо от курсора.
// Используется клиентом, который потерял или отбросил свою реплику.
func (s *Service) Snapshot(ctx context.Context, clientID string) (*FetchResult, error) {
	if _, _, err := s.tracker.GetOrInitCursor(ctx, clientID); err != nil {
		return nil, err
	}
	state, seq := s.world.Snapshot()
	s.logger.InfoContext(ctx, "Full snapshot requested by client",
		"client_id", clientID,
		"seq", seq)
	return &FetchResult{Mode: ModeSnapshot, Seq: seq, State: state}, nil
}

// Ack подтверждает, что клиент применил всё до seq включительно.
// seq впереди журнала отклоняется, откат курсора возвращает ErrRegressedCursor.
func (s *Service) Ack(ctx context.Context, clientID string, seq int64) error {
	if head := s.log.Head(); seq > head {
		return fmt.Errorf("%w: seq %d is ahead of log head %d", ErrInvalidArgument, seq, head)
	}

	err := s.tracker.Acknowledge(ctx, clientID, seq)
	if errors.Is(err, ErrRegressedCursor) {
		s.logger.WarnContext(ctx, "Ignoring regressed acknowledgment",
			"client_id", clientID,
			"seq", seq,
			slog.Any("error", err))
	}
	return err
}

// Compact сжимает журнал с учётом курсоров активных клиентов.
// pins удерживают записи так же, как курсоры (например, хвост после контрольной точки).
func (s *Service) Compact(ctx context.Context, now time.Time, pins ...int64) (journal.CompactResult, error) {
	active := append(s.tracker.ActiveCursors(now), pins...)
	res, err := s.log.Compact(ctx, active, now)
	if err != nil {
		return res, fmt.Errorf("failed to compact change log: %w", err)
	}
	if res.Deferred {
		s.logger.DebugContext(ctx, "Change log compaction deferred",
			"active_clients", len(active),
			"floor", res.Floor)
	}
	return res, nil
}

// Tracker возвращает трекер курсоров
func (s *Service) Tracker() *Tracker {
	return s.tracker
}
