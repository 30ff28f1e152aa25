package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/iudanet/soundlines/internal/models"
)

// CursorStore сохраняет подтверждённые курсоры клиентов
type CursorStore interface {
	// ListCursors возвращает все сохранённые курсоры
	ListCursors(ctx context.Context) ([]*models.ClientCursor, error)
	// SaveCursor создает или обновляет курсор клиента
	SaveCursor(ctx context.Context, cursor *models.ClientCursor) error
}

type clientState struct {
	cursor models.ClientCursor
	acked  bool // acked клиент хотя бы раз подтвердил seq
}

// Tracker хранит позицию каждого клиента в журнале изменений.
// Курсор двигается только вперёд и только после подтверждения доставки.
type Tracker struct {
	store        CursorStore
	logger       *slog.Logger
	clients      map[string]*clientState
	now          func() time.Time
	activeWindow time.Duration
	mu           sync.RWMutex
}

// NewTracker создает трекер. store может быть nil (курсоры только в памяти).
// Клиент считается активным, если обращался не позднее activeWindow назад;
// activeWindow <= 0 делает активными всех клиентов с курсором.
func NewTracker(store CursorStore, logger *slog.Logger, activeWindow time.Duration) *Tracker {
	return &Tracker{
		store:        store,
		logger:       logger,
		activeWindow: activeWindow,
		clients:      make(map[string]*clientState),
		now:          time.Now,
	}
}

// Load загружает сохранённые курсоры
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	cursors, err := t.store.ListCursors(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cursors: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range cursors {
		t.clients[c.ClientID] = &clientState{cursor: *c, acked: true}
	}

	t.logger.InfoContext(ctx, "Client cursors loaded", "count", len(cursors))
	return nil
}

// GetOrInitCursor возвращает последний подтверждённый seq клиента.
// ok == false означает, что курсора ещё нет и клиенту нужен снимок.
// Каждый вызов отмечает клиента как активного.
func (t *Tracker) GetOrInitCursor(_ context.Context, clientID string) (int64, bool, error) {
	if clientID == "" {
		return 0, false, fmt.Errorf("%w: empty client id", ErrInvalidArgument)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	c, ok := t.clients[clientID]
	if !ok {
		c = &clientState{cursor: models.ClientCursor{ClientID: clientID}}
		t.clients[clientID] = c
	}
	c.cursor.SeenAt = now

	if !c.acked {
		return 0, false, nil
	}
	return c.cursor.LastSeq, true, nil
}

// Acknowledge сдвигает курсор клиента на seq.
// seq меньше текущего возвращает ErrRegressedCursor и ничего не меняет.
func (t *Tracker) Acknowledge(ctx context.Context, clientID string, seq int64) error {
	if clientID == "" {
		return fmt.Errorf("%w: empty client id", ErrInvalidArgument)
	}
	if seq < 0 {
		return fmt.Errorf("%w: negative seq %d", ErrInvalidArgument, seq)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	c, ok := t.clients[clientID]
	if ok && c.acked && seq < c.cursor.LastSeq {
		return fmt.Errorf("%w: ack %d is below cursor %d", ErrRegressedCursor, seq, c.cursor.LastSeq)
	}

	next := models.ClientCursor{
		ClientID:  clientID,
		LastSeq:   seq,
		UpdatedAt: now,
		SeenAt:    now,
	}
	if t.store != nil {
		if err := t.store.SaveCursor(ctx, &next); err != nil {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	t.clients[clientID] = &clientState{cursor: next, acked: true}
	return nil
}

// Cursor возвращает копию курсора клиента
func (t *Tracker) Cursor(clientID string) (models.ClientCursor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c, ok := t.clients[clientID]
	if !ok || !c.acked {
		return models.ClientCursor{}, false
	}
	return c.cursor, true
}

// ActiveCursors возвращает отсортированные seq активных клиентов с курсором
func (t *Tracker) ActiveCursors(now time.Time) []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []int64
	for _, c := range t.clients {
		if !c.acked {
			continue
		}
		if t.activeWindow > 0 && now.Sub(c.cursor.SeenAt) > t.activeWindow {
			continue
		}
		out = append(out, c.cursor.LastSeq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len количество известных клиентов
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.clients)
}
