package models

import (
	"fmt"
	"time"
)

// EntityType тип сущности мира
type EntityType string

// EntityType константы
const (
	EntityTree   EntityType = "tree"
	EntityAnimal EntityType = "animal"
	EntityRegion EntityType = "region"
	EntityNoise  EntityType = "noise"
)

// ParseEntityType проверяет строку и возвращает тип сущности
func ParseEntityType(s string) (EntityType, error) {
	switch t := EntityType(s); t {
	case EntityTree, EntityAnimal, EntityRegion, EntityNoise:
		return t, nil
	default:
		return "", fmt.Errorf("unknown entity type %q", s)
	}
}

// Tree представляет дерево в лесу
type Tree struct {
	ID     string  `json:"id"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Length float64 `json:"length"` // Length всегда >= 0
}

// Animal представляет животное. Атрибуты для ядра непрозрачны.
type Animal struct {
	Attributes map[string]any `json:"attributes,omitempty"`
	ID         string         `json:"id"`
}

// Clone создает глубокую копию животного (верхний уровень атрибутов)
func (a *Animal) Clone() *Animal {
	attrs := make(map[string]any, len(a.Attributes))
	for k, v := range a.Attributes {
		attrs[k] = v
	}
	return &Animal{ID: a.ID, Attributes: attrs}
}

// Region представляет участок леса со ссылками на деревья и животных
type Region struct {
	Trees      map[string]struct{} `json:"-"`
	Animals    map[string]struct{} `json:"-"`
	ID         string              `json:"id"`
	Vegetation float64             `json:"vegetation"` // Vegetation доля растительности [0,1]
}

// NewRegion создает пустой регион
func NewRegion(id string) *Region {
	return &Region{
		ID:      id,
		Trees:   make(map[string]struct{}),
		Animals: make(map[string]struct{}),
	}
}

// Clone создает глубокую копию региона
func (r *Region) Clone() *Region {
	c := NewRegion(r.ID)
	c.Vegetation = r.Vegetation
	for id := range r.Trees {
		c.Trees[id] = struct{}{}
	}
	for id := range r.Animals {
		c.Animals[id] = struct{}{}
	}
	return c
}

// NoiseCell средний уровень шума в одной ячейке сетки
type NoiseCell struct {
	ID      string  `json:"id"`
	Lat     float64 `json:"lat"`     // Lat центр ячейки
	Lng     float64 `json:"lng"`     // Lng центр ячейки
	Level   float64 `json:"level"`   // Level среднее значение [0,1]
	Samples int64   `json:"samples"` // Samples количество измерений в среднем
}

// Delta описывает изменение полей одной сущности.
// В ChangeRecord числовые поля содержат итоговые (абсолютные) значения,
// поэтому повторное применение записи идемпотентно.
type Delta struct {
	Lat            *float64       `json:"lat,omitempty"`
	Lng            *float64       `json:"lng,omitempty"`
	Length         *float64       `json:"length,omitempty"`
	Vegetation     *float64       `json:"vegetation,omitempty"`
	Level          *float64       `json:"level,omitempty"`
	Samples        *int64         `json:"samples,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"` // nil значение удаляет атрибут
	TreesAdded     []string       `json:"trees_added,omitempty"`
	TreesRemoved   []string       `json:"trees_removed,omitempty"`
	AnimalsAdded   []string       `json:"animals_added,omitempty"`
	AnimalsRemoved []string       `json:"animals_removed,omitempty"`
	Deleted        bool           `json:"deleted,omitempty"`
}

// ChangeRecord одна атомарная зафиксированная мутация мира.
// Неизменяема после добавления в журнал.
type ChangeRecord struct {
	CommittedAt time.Time  `json:"committed_at"`
	Type        EntityType `json:"type"`
	EntityID    string     `json:"id"`
	Delta       Delta      `json:"delta"`
	Seq         int64      `json:"seq"` // Seq монотонно растущий номер в журнале
}

// Float возвращает указатель на копию значения (удобно для Delta)
func Float(v float64) *float64 {
	return &v
}
