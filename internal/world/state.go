package world

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/iudanet/soundlines/internal/models"
)

// State материализованное состояние мира.
// Используется сервером (под защитой Store) и клиентской репликой.
type State struct {
	Trees   map[string]*models.Tree
	Animals map[string]*models.Animal
	Regions map[string]*models.Region
	Noise   map[string]*models.NoiseCell
}

// flatRegion регион со списками идентификаторов для сериализации
type flatRegion struct {
	ID         string   `json:"id"`
	Trees      []string `json:"trees,omitempty"`
	Animals    []string `json:"animals,omitempty"`
	Vegetation float64  `json:"vegetation"`
}

// flatState плоское детерминированное представление State
type flatState struct {
	Trees   []*models.Tree      `json:"trees,omitempty"`
	Animals []*models.Animal    `json:"animals,omitempty"`
	Regions []flatRegion        `json:"regions,omitempty"`
	Noise   []*models.NoiseCell `json:"noise,omitempty"`
}

// NewState создает пустое состояние
func NewState() *State {
	return &State{
		Trees:   make(map[string]*models.Tree),
		Animals: make(map[string]*models.Animal),
		Regions: make(map[string]*models.Region),
		Noise:   make(map[string]*models.NoiseCell),
	}
}

// Clone создает глубокую копию состояния
func (s *State) Clone() *State {
	c := &State{
		Trees:   make(map[string]*models.Tree, len(s.Trees)),
		Animals: make(map[string]*models.Animal, len(s.Animals)),
		Regions: make(map[string]*models.Region, len(s.Regions)),
		Noise:   make(map[string]*models.NoiseCell, len(s.Noise)),
	}
	for id, t := range s.Trees {
		tree := *t
		c.Trees[id] = &tree
	}
	for id, a := range s.Animals {
		c.Animals[id] = a.Clone()
	}
	for id, r := range s.Regions {
		c.Regions[id] = r.Clone()
	}
	for id, n := range s.Noise {
		cell := *n
		c.Noise[id] = &cell
	}
	return c
}

// Has сообщает, существует ли сущность
func (s *State) Has(t models.EntityType, id string) bool {
	var ok bool
	switch t {
	case models.EntityTree:
		_, ok = s.Trees[id]
	case models.EntityAnimal:
		_, ok = s.Animals[id]
	case models.EntityRegion:
		_, ok = s.Regions[id]
	case models.EntityNoise:
		_, ok = s.Noise[id]
	}
	return ok
}

// Apply применяет запись журнала. Дельты содержат абсолютные значения,
// поэтому повторное применение той же записи ничего не меняет.
// Ссылочная целостность здесь не проверяется: записи в журнал
// попадают только после проверки в Store.
func (s *State) Apply(rec models.ChangeRecord) error {
	d := rec.Delta
	id := rec.EntityID

	switch rec.Type {
	case models.EntityTree:
		if d.Deleted {
			delete(s.Trees, id)
			return nil
		}
		t, ok := s.Trees[id]
		if !ok {
			t = &models.Tree{ID: id}
			s.Trees[id] = t
		}
		setFloat(&t.Lat, d.Lat)
		setFloat(&t.Lng, d.Lng)
		setFloat(&t.Length, d.Length)

	case models.EntityAnimal:
		if d.Deleted {
			delete(s.Animals, id)
			return nil
		}
		a, ok := s.Animals[id]
		if !ok {
			a = &models.Animal{ID: id, Attributes: make(map[string]any)}
			s.Animals[id] = a
		}
		if a.Attributes == nil {
			a.Attributes = make(map[string]any)
		}
		for k, v := range d.Attributes {
			if v == nil {
				delete(a.Attributes, k)
				continue
			}
			a.Attributes[k] = v
		}

	case models.EntityRegion:
		if d.Deleted {
			delete(s.Regions, id)
			return nil
		}
		r, ok := s.Regions[id]
		if !ok {
			r = models.NewRegion(id)
			s.Regions[id] = r
		}
		setFloat(&r.Vegetation, d.Vegetation)
		for _, tid := range d.TreesAdded {
			r.Trees[tid] = struct{}{}
		}
		for _, tid := range d.TreesRemoved {
			delete(r.Trees, tid)
		}
		for _, aid := range d.AnimalsAdded {
			r.Animals[aid] = struct{}{}
		}
		for _, aid := range d.AnimalsRemoved {
			delete(r.Animals, aid)
		}

	case models.EntityNoise:
		if d.Deleted {
			delete(s.Noise, id)
			return nil
		}
		n, ok := s.Noise[id]
		if !ok {
			n = &models.NoiseCell{ID: id}
			s.Noise[id] = n
		}
		setFloat(&n.Lat, d.Lat)
		setFloat(&n.Lng, d.Lng)
		setFloat(&n.Level, d.Level)
		if d.Samples != nil {
			n.Samples = *d.Samples
		}

	default:
		return fmt.Errorf("%w: unknown entity type %q", ErrInvalidArgument, rec.Type)
	}

	return nil
}

// ApplyAll применяет записи по порядку
func (s *State) ApplyAll(recs []models.ChangeRecord) error {
	for _, rec := range recs {
		if err := s.Apply(rec); err != nil {
			return fmt.Errorf("apply seq %d: %w", rec.Seq, err)
		}
	}
	return nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// MarshalJSON кодирует состояние списками, отсортированными по id
func (s *State) MarshalJSON() ([]byte, error) {
	var flat flatState
	for _, id := range sortedKeys(s.Trees) {
		flat.Trees = append(flat.Trees, s.Trees[id])
	}
	for _, id := range sortedKeys(s.Animals) {
		flat.Animals = append(flat.Animals, s.Animals[id])
	}
	for _, id := range sortedKeys(s.Regions) {
		r := s.Regions[id]
		flat.Regions = append(flat.Regions, flatRegion{
			ID:         r.ID,
			Vegetation: r.Vegetation,
			Trees:      sortedKeys(r.Trees),
			Animals:    sortedKeys(r.Animals),
		})
	}
	for _, id := range sortedKeys(s.Noise) {
		flat.Noise = append(flat.Noise, s.Noise[id])
	}
	return json.Marshal(flat)
}

// UnmarshalJSON восстанавливает состояние из формата MarshalJSON
func (s *State) UnmarshalJSON(data []byte) error {
	var flat flatState
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	*s = *NewState()
	for _, t := range flat.Trees {
		s.Trees[t.ID] = t
	}
	for _, a := range flat.Animals {
		if a.Attributes == nil {
			a.Attributes = make(map[string]any)
		}
		s.Animals[a.ID] = a
	}
	for _, fr := range flat.Regions {
		r := models.NewRegion(fr.ID)
		r.Vegetation = fr.Vegetation
		for _, id := range fr.Trees {
			r.Trees[id] = struct{}{}
		}
		for _, id := range fr.Animals {
			r.Animals[id] = struct{}{}
		}
		s.Regions[r.ID] = r
	}
	for _, n := range flat.Noise {
		s.Noise[n.ID] = n
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
