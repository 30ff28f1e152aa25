package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/soundlines/internal/models"
)

// ChangeStore сохраняет записи журнала вне памяти.
// Реализуется хранилищем сервера (SQLite).
type ChangeStore interface {
	// AppendChange сохраняет одну запись
	AppendChange(ctx context.Context, rec models.ChangeRecord) error
	// TrimChanges удаляет записи с seq <= upTo
	TrimChanges(ctx context.Context, upTo int64) error
}

// Options параметры журнала
type Options struct {
	Retention time.Duration // Retention записи старше этого окна можно сжать, 0 = без ограничения
	MaxLen    int           // MaxLen максимальная длина журнала, 0 = без ограничения
}

// CompactResult итог одного прохода сжатия
type CompactResult struct {
	Dropped  int   // Dropped сколько записей удалено
	Floor    int64 // Floor нижняя граница после сжатия
	Deferred bool  // Deferred сжатие отложено: активные курсоры не позволяют отрезать
}

// Log append-only журнал изменений мира.
// Записи лежат в срезе-арене, records[0] имеет seq = floor+1.
// Сжатие сдвигает начало среза, не трогая порядок оставшихся записей.
type Log struct {
	store   ChangeStore
	logger  *slog.Logger
	notify  chan struct{}
	records []models.ChangeRecord
	opts    Options
	floor   int64
	head    int64
	dead    int // dead сколько ячеек в начале массива уже отрезано
	mu      sync.RWMutex
}

// NewLog создает пустой журнал. store может быть nil (только память).
func NewLog(store ChangeStore, logger *slog.Logger, opts Options) *Log {
	return &Log{
		store:  store,
		logger: logger,
		opts:   opts,
		notify: make(chan struct{}),
	}
}

// Append присваивает записи следующий seq, сохраняет её и публикует.
// При ошибке хранилища журнал не меняется.
func (l *Log) Append(ctx context.Context, rec models.ChangeRecord) (models.ChangeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec.Seq = l.head + 1
	if rec.CommittedAt.IsZero() {
		rec.CommittedAt = time.Now().UTC()
	}

	if l.store != nil {
		if err := l.store.AppendChange(ctx, rec); err != nil {
			l.logger.ErrorContext(ctx, "Failed to persist change record",
				"seq", rec.Seq,
				"type", rec.Type,
				"entity_id", rec.EntityID,
				slog.Any("error", err))
			return models.ChangeRecord{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	l.records = append(l.records, rec)
	l.head = rec.Seq
	close(l.notify)
	l.notify = make(chan struct{})

	return rec, nil
}

// ChangesSince возвращает все записи с seq > since по возрастанию seq.
// Если since ниже границы сжатия или впереди журнала, возвращает ErrTooStale.
// Результат копия: последующие добавления и сжатия его не меняют.
func (l *Log) ChangesSince(since int64) ([]models.ChangeRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if since < l.floor {
		return nil, fmt.Errorf("%w: seq %d is below floor %d", ErrTooStale, since, l.floor)
	}
	if since > l.head {
		return nil, fmt.Errorf("%w: seq %d is ahead of head %d", ErrTooStale, since, l.head)
	}

	tail := l.records[since-l.floor:]
	out := make([]models.ChangeRecord, len(tail))
	copy(out, tail)
	return out, nil
}

// Head последний присвоенный seq (0 для пустого журнала)
func (l *Log) Head() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.head
}

// Floor старший удалённый сжатием seq
func (l *Log) Floor() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.floor
}

// Len количество записей в памяти
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Compact удаляет старые записи. Желаемая граница определяется окном хранения
// и максимальной длиной, затем ограничивается активными курсорами:
// запись с seq равным наименьшему активному курсору всегда остаётся,
// а курсор на самой границе не даёт её сдвинуть.
// Если сдвигать нечего, сжатие откладывается.
func (l *Log) Compact(ctx context.Context, active []int64, now time.Time) (CompactResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cut := l.floor
	if l.opts.Retention > 0 {
		cutoff := now.Add(-l.opts.Retention)
		for _, rec := range l.records {
			if !rec.CommittedAt.Before(cutoff) {
				break
			}
			cut = rec.Seq
		}
	}
	if l.opts.MaxLen > 0 && l.head-cut > int64(l.opts.MaxLen) {
		cut = l.head - int64(l.opts.MaxLen)
	}
	for _, seq := range active {
		// Курсор ниже границы уже получит снимок и сжатие не держит
		if seq < l.floor {
			continue
		}
		if seq-1 < cut {
			cut = seq - 1
		}
	}

	if cut <= l.floor {
		return CompactResult{Floor: l.floor, Deferred: true}, nil
	}

	if l.store != nil {
		if err := l.store.TrimChanges(ctx, cut); err != nil {
			return CompactResult{Floor: l.floor}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	drop := int(cut - l.floor)
	for n := range l.records[:drop] {
		l.records[n] = models.ChangeRecord{}
	}
	l.records = l.records[drop:]
	l.dead += drop
	if l.dead > len(l.records) {
		// Мёртвый префикс больше живых данных: переносим хвост в новый массив
		fresh := make([]models.ChangeRecord, len(l.records), len(l.records)+len(l.records)/2+1)
		copy(fresh, l.records)
		l.records = fresh
		l.dead = 0
	}
	l.floor = cut

	l.logger.InfoContext(ctx, "Change log compacted",
		"dropped", drop,
		"floor", l.floor,
		"head", l.head)

	return CompactResult{Dropped: drop, Floor: l.floor}, nil
}

// Wait блокируется, пока в журнале не появится запись с seq > after
// или не будет отменён контекст.
func (l *Log) Wait(ctx context.Context, after int64) error {
	for {
		l.mu.RLock()
		if l.head > after {
			l.mu.RUnlock()
			return nil
		}
		ch := l.notify
		l.mu.RUnlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Load заменяет содержимое журнала сохранёнными записями.
// records должны идти подряд начиная с floor+1.
func (l *Log) Load(records []models.ChangeRecord, floor int64) error {
	for n, rec := range records {
		if want := floor + int64(n) + 1; rec.Seq != want {
			return fmt.Errorf("%w: expected seq %d, got %d", ErrGap, want, rec.Seq)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = make([]models.ChangeRecord, len(records))
	copy(l.records, records)
	l.floor = floor
	l.head = floor + int64(len(records))
	l.dead = 0
	close(l.notify)
	l.notify = make(chan struct{})

	return nil
}
