package world

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/iudanet/soundlines/internal/geo"
	"github.com/iudanet/soundlines/internal/models"
)

// Op вид мутации
type Op string

// Op константы
const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Mutation запрошенное изменение одной сущности мира
type Mutation struct {
	Type     models.EntityType `json:"type"`
	ID       string            `json:"id"`
	Op       Op                `json:"op,omitempty"` // Op по умолчанию upsert
	Delta    models.Delta      `json:"delta"`
	Relative bool              `json:"relative,omitempty"` // Relative числовые поля дельты прибавляются к текущим значениям
}

// Appender журнал, в который Store записывает изменения
type Appender interface {
	Append(ctx context.Context, rec models.ChangeRecord) (models.ChangeRecord, error)
}

// Store хранилище состояния мира.
// Проверка, запись в журнал и применение мутации выполняются под одной
// блокировкой, поэтому читатели никогда не видят частично применённых изменений.
type Store struct {
	log        Appender
	logger     *slog.Logger
	state      *State
	treeRefs   map[string]int // treeRefs сколько регионов ссылается на дерево
	animalRefs map[string]int // animalRefs сколько регионов ссылается на животное
	seq        int64          // seq последняя применённая запись журнала
	mu         sync.RWMutex
}

// NewStore создает пустое хранилище поверх журнала
func NewStore(log Appender, logger *slog.Logger) *Store {
	s := &Store{
		log:    log,
		logger: logger,
		state:  NewState(),
	}
	s.rebuildRefs()
	return s
}

// ApplyMutation проверяет мутацию, записывает её в журнал и применяет.
// Ошибка означает, что ни журнал, ни состояние не изменились.
func (s *Store) ApplyMutation(ctx context.Context, m Mutation) (models.ChangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyLocked(ctx, m)
}

// ApplyBatch применяет мутации по очереди, каждая становится отдельной записью.
// Останавливается на первой ошибке и возвращает уже применённые записи.
func (s *Store) ApplyBatch(ctx context.Context, ms []Mutation) ([]models.ChangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := make([]models.ChangeRecord, 0, len(ms))
	for i, m := range ms {
		if err := ctx.Err(); err != nil {
			return recs, err
		}
		rec, err := s.applyLocked(ctx, m)
		if err != nil {
			return recs, fmt.Errorf("mutation %d (%s %s): %w", i, m.Type, m.ID, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *Store) applyLocked(ctx context.Context, m Mutation) (models.ChangeRecord, error) {
	delta, err := s.resolve(m)
	if err != nil {
		return models.ChangeRecord{}, err
	}

	rec, err := s.log.Append(ctx, models.ChangeRecord{
		Type:     m.Type,
		EntityID: m.ID,
		Delta:    delta,
	})
	if err != nil {
		return models.ChangeRecord{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.commit(rec)
	return rec, nil
}

// commit применяет проверенную запись и обновляет счётчики ссылок
func (s *Store) commit(rec models.ChangeRecord) {
	if rec.Type == models.EntityRegion {
		if rec.Delta.Deleted {
			if r, ok := s.state.Regions[rec.EntityID]; ok {
				for id := range r.Trees {
					s.treeRefs[id]--
				}
				for id := range r.Animals {
					s.animalRefs[id]--
				}
			}
		} else {
			for _, id := range rec.Delta.TreesAdded {
				s.treeRefs[id]++
			}
			for _, id := range rec.Delta.TreesRemoved {
				s.treeRefs[id]--
			}
			for _, id := range rec.Delta.AnimalsAdded {
				s.animalRefs[id]++
			}
			for _, id := range rec.Delta.AnimalsRemoved {
				s.animalRefs[id]--
			}
		}
	}

	// resolve уже проверил тип сущности
	_ = s.state.Apply(rec)
	s.seq = rec.Seq
}

// resolve проверяет мутацию и строит дельту с абсолютными значениями
func (s *Store) resolve(m Mutation) (models.Delta, error) {
	if m.ID == "" {
		return models.Delta{}, fmt.Errorf("%w: empty entity id", ErrInvalidArgument)
	}
	if _, err := models.ParseEntityType(string(m.Type)); err != nil {
		return models.Delta{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	switch m.Op {
	case OpDelete:
		return s.resolveDelete(m)
	case OpUpsert, "":
	default:
		return models.Delta{}, fmt.Errorf("%w: unknown op %q", ErrInvalidArgument, m.Op)
	}

	if m.Delta.Deleted {
		return models.Delta{}, fmt.Errorf("%w: use op %q to delete", ErrInvalidArgument, OpDelete)
	}

	switch m.Type {
	case models.EntityTree:
		return s.resolveTree(m)
	case models.EntityAnimal:
		return s.resolveAnimal(m)
	case models.EntityRegion:
		return s.resolveRegion(m)
	default:
		return s.resolveNoise(m)
	}
}

func (s *Store) resolveDelete(m Mutation) (models.Delta, error) {
	if !s.state.Has(m.Type, m.ID) {
		return models.Delta{}, fmt.Errorf("%w: %s %q", ErrNotFound, m.Type, m.ID)
	}
	switch m.Type {
	case models.EntityTree:
		if n := s.treeRefs[m.ID]; n > 0 {
			return models.Delta{}, fmt.Errorf("%w: tree %q is referenced by %d region(s)", ErrDanglingReference, m.ID, n)
		}
	case models.EntityAnimal:
		if n := s.animalRefs[m.ID]; n > 0 {
			return models.Delta{}, fmt.Errorf("%w: animal %q is referenced by %d region(s)", ErrDanglingReference, m.ID, n)
		}
	}
	return models.Delta{Deleted: true}, nil
}

func (s *Store) resolveTree(m Mutation) (models.Delta, error) {
	d := m.Delta
	if err := onlyFields(d, "lat", "lng", "length"); err != nil {
		return models.Delta{}, err
	}

	cur, exists := s.state.Trees[m.ID]
	if !exists {
		if d.Lat == nil || d.Lng == nil {
			return models.Delta{}, fmt.Errorf("%w: new tree %q needs lat and lng", ErrInvalidArgument, m.ID)
		}
		cur = &models.Tree{ID: m.ID}
	}

	out := models.Delta{
		Lat:    combine(cur.Lat, d.Lat, m.Relative),
		Lng:    combine(cur.Lng, d.Lng, m.Relative),
		Length: combine(cur.Length, d.Length, m.Relative),
	}

	lat, lng := cur.Lat, cur.Lng
	setFloat(&lat, out.Lat)
	setFloat(&lng, out.Lng)
	if err := geo.ValidatePoint(models.Point{Lat: lat, Lng: lng}); err != nil {
		return models.Delta{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if out.Length != nil && (*out.Length < 0 || math.IsNaN(*out.Length)) {
		return models.Delta{}, fmt.Errorf("%w: tree length %v must be >= 0", ErrInvalidArgument, *out.Length)
	}

	return out, nil
}

func (s *Store) resolveAnimal(m Mutation) (models.Delta, error) {
	d := m.Delta
	if err := onlyFields(d, "attributes"); err != nil {
		return models.Delta{}, err
	}

	var attrs map[string]any
	if len(d.Attributes) > 0 {
		attrs = make(map[string]any, len(d.Attributes))
		for k, v := range d.Attributes {
			if k == "" {
				return models.Delta{}, fmt.Errorf("%w: empty attribute name", ErrInvalidArgument)
			}
			attrs[k] = v
		}
	}
	return models.Delta{Attributes: attrs}, nil
}

func (s *Store) resolveRegion(m Mutation) (models.Delta, error) {
	d := m.Delta
	if err := onlyFields(d, "vegetation", "trees_added", "trees_removed", "animals_added", "animals_removed"); err != nil {
		return models.Delta{}, err
	}

	cur, exists := s.state.Regions[m.ID]
	if !exists {
		cur = models.NewRegion(m.ID)
	}

	out := models.Delta{Vegetation: combine(cur.Vegetation, d.Vegetation, m.Relative)}
	if v := out.Vegetation; v != nil && (*v < 0 || *v > 1 || math.IsNaN(*v)) {
		return models.Delta{}, fmt.Errorf("%w: vegetation %v out of [0,1]", ErrInvalidArgument, *v)
	}

	var err error
	out.TreesAdded, out.TreesRemoved, err = resolveRefs("tree", cur.Trees, d.TreesAdded, d.TreesRemoved, s.state.Trees)
	if err != nil {
		return models.Delta{}, err
	}
	out.AnimalsAdded, out.AnimalsRemoved, err = resolveRefs("animal", cur.Animals, d.AnimalsAdded, d.AnimalsRemoved, s.state.Animals)
	if err != nil {
		return models.Delta{}, err
	}

	return out, nil
}

func (s *Store) resolveNoise(m Mutation) (models.Delta, error) {
	d := m.Delta
	if err := onlyFields(d, "lat", "lng", "level", "samples"); err != nil {
		return models.Delta{}, err
	}

	cur, exists := s.state.Noise[m.ID]
	if !exists {
		cur = &models.NoiseCell{ID: m.ID}
	}

	out := models.Delta{
		Lat:   combine(cur.Lat, d.Lat, m.Relative),
		Lng:   combine(cur.Lng, d.Lng, m.Relative),
		Level: combine(cur.Level, d.Level, m.Relative),
	}
	if d.Samples != nil {
		samples := *d.Samples
		if m.Relative {
			samples += cur.Samples
		}
		if samples < 0 {
			return models.Delta{}, fmt.Errorf("%w: negative samples", ErrInvalidArgument)
		}
		out.Samples = &samples
	}

	lat, lng := cur.Lat, cur.Lng
	setFloat(&lat, out.Lat)
	setFloat(&lng, out.Lng)
	if err := geo.ValidatePoint(models.Point{Lat: lat, Lng: lng}); err != nil {
		return models.Delta{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if v := out.Level; v != nil && (*v < 0 || *v > 1 || math.IsNaN(*v)) {
		return models.Delta{}, fmt.Errorf("%w: noise level %v out of [0,1]", ErrInvalidArgument, *v)
	}

	return out, nil
}

// resolveRefs проверяет изменения набора ссылок региона.
// Добавлять можно только существующие сущности; уже присутствующие
// добавления и отсутствующие удаления отбрасываются.
func resolveRefs[V any](kind string, current map[string]struct{}, added, removed []string, existing map[string]V) ([]string, []string, error) {
	removing := make(map[string]struct{}, len(removed))
	for _, id := range removed {
		removing[id] = struct{}{}
	}

	var outAdded []string
	seen := make(map[string]struct{}, len(added))
	for _, id := range added {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := removing[id]; ok {
			return nil, nil, fmt.Errorf("%w: %s %q both added and removed", ErrInvalidArgument, kind, id)
		}
		if _, ok := existing[id]; !ok {
			return nil, nil, fmt.Errorf("%w: %s %q does not exist", ErrDanglingReference, kind, id)
		}
		if _, ok := current[id]; !ok {
			outAdded = append(outAdded, id)
		}
	}

	var outRemoved []string
	for id := range removing {
		if _, ok := current[id]; ok {
			outRemoved = append(outRemoved, id)
		}
	}

	sort.Strings(outAdded)
	sort.Strings(outRemoved)
	return outAdded, outRemoved, nil
}

// onlyFields возвращает ошибку, если в дельте заданы поля вне allowed
func onlyFields(d models.Delta, allowed ...string) error {
	set := map[string]bool{
		"lat":             d.Lat != nil,
		"lng":             d.Lng != nil,
		"length":          d.Length != nil,
		"vegetation":      d.Vegetation != nil,
		"level":           d.Level != nil,
		"samples":         d.Samples != nil,
		"attributes":      len(d.Attributes) > 0,
		"trees_added":     len(d.TreesAdded) > 0,
		"trees_removed":   len(d.TreesRemoved) > 0,
		"animals_added":   len(d.AnimalsAdded) > 0,
		"animals_removed": len(d.AnimalsRemoved) > 0,
	}
	for _, name := range allowed {
		delete(set, name)
	}

	var extra []string
	for name, present := range set {
		if present {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("%w: fields %v are not applicable", ErrInvalidArgument, extra)
	}
	return nil
}

// combine возвращает итоговое значение поля или nil, если поле не меняется
func combine(cur float64, v *float64, relative bool) *float64 {
	if v == nil {
		return nil
	}
	if relative {
		return models.Float(cur + *v)
	}
	return models.Float(*v)
}

// Get возвращает копию сущности
func (s *Store) Get(t models.EntityType, id string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		out any
		ok  bool
	)
	switch t {
	case models.EntityTree:
		var tree *models.Tree
		if tree, ok = s.state.Trees[id]; ok {
			c := *tree
			out = &c
		}
	case models.EntityAnimal:
		var a *models.Animal
		if a, ok = s.state.Animals[id]; ok {
			out = a.Clone()
		}
	case models.EntityRegion:
		var r *models.Region
		if r, ok = s.state.Regions[id]; ok {
			out = r.Clone()
		}
	case models.EntityNoise:
		var n *models.NoiseCell
		if n, ok = s.state.Noise[id]; ok {
			c := *n
			out = &c
		}
	default:
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrInvalidArgument, t)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrNotFound, t, id)
	}
	return out, nil
}

// Snapshot возвращает копию всего мира и seq, которому она соответствует
func (s *Store) Snapshot() (*State, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), s.seq
}

// Seq последняя применённая запись журнала
func (s *Store) Seq() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Restore заменяет состояние восстановленным из контрольной точки
func (s *Store) Restore(state *State, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state.Clone()
	s.seq = seq
	s.rebuildRefs()
}

// Replay применяет уже записанные в журнал записи после контрольной точки.
// Записи с seq не выше текущего пропускаются, пропуск в нумерации это ошибка.
func (s *Store) Replay(recs []models.ChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		if rec.Seq <= s.seq {
			continue
		}
		if rec.Seq != s.seq+1 {
			return fmt.Errorf("replay: expected seq %d, got %d", s.seq+1, rec.Seq)
		}
		if err := s.state.Apply(rec); err != nil {
			return fmt.Errorf("replay seq %d: %w", rec.Seq, err)
		}
		s.seq = rec.Seq
	}
	s.rebuildRefs()
	return nil
}

// Counts количество сущностей каждого типа
func (s *Store) Counts() map[models.EntityType]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[models.EntityType]int{
		models.EntityTree:   len(s.state.Trees),
		models.EntityAnimal: len(s.state.Animals),
		models.EntityRegion: len(s.state.Regions),
		models.EntityNoise:  len(s.state.Noise),
	}
}

func (s *Store) rebuildRefs() {
	s.treeRefs = make(map[string]int)
	s.animalRefs = make(map[string]int)
	for _, r := range s.state.Regions {
		for id := range r.Trees {
			s.treeRefs[id]++
		}
		for id := range r.Animals {
			s.animalRefs[id]++
		}
	}
}
