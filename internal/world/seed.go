package world

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/iudanet/soundlines/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/world.schema.json
var worldSchema string

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func seedSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled, compileErr = jsonschema.CompileString("world.schema.json", worldSchema)
	})
	return compiled, compileErr
}

// seedID идентификатор, записанный строкой или числом
type seedID string

func (id *seedID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = seedID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("id %s is not an integer", n)
	}
	*id = seedID(n.String())
	return nil
}

type seedTree struct {
	Length *float64 `json:"length"`
	ID     seedID   `json:"id"`
	Lat    float64  `json:"lat"`
	Lng    float64  `json:"lng"`
}

type seedRegion struct {
	Vegetation *float64                     `json:"vegetation"`
	ID         seedID                       `json:"id"`
	Trees      []seedTree                   `json:"trees"`
	Animals    []map[string]json.RawMessage `json:"animals"`
}

// SeedDocument сгенерированный внешним генератором мир
type SeedDocument struct {
	Regions []seedRegion                 `json:"regions"`
	Trees   []seedTree                   `json:"trees"`
	Animals []map[string]json.RawMessage `json:"animals"`
}

// ParseSeed проверяет документ по JSON Schema и разбирает его
func ParseSeed(r io.Reader) (*SeedDocument, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}

	schema, err := seedSchema()
	if err != nil {
		return nil, fmt.Errorf("compile seed schema: %w", err)
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}

	var doc SeedDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	return &doc, nil
}

// Mutations превращает документ в последовательность мутаций:
// сначала деревья и животные, затем регионы, которые на них ссылаются.
func (d *SeedDocument) Mutations() ([]Mutation, error) {
	var (
		trees   []Mutation
		animals []Mutation
		regions []Mutation
	)
	seenTrees := make(map[string]seedTree)
	seenAnimals := make(map[string]string)

	addTree := func(t seedTree) (string, error) {
		id := string(t.ID)
		if prev, ok := seenTrees[id]; ok {
			if !sameTree(prev, t) {
				return "", fmt.Errorf("%w: tree %q declared twice with different fields", ErrInvalidSeed, id)
			}
			return id, nil
		}
		seenTrees[id] = t
		delta := models.Delta{Lat: models.Float(t.Lat), Lng: models.Float(t.Lng)}
		if t.Length != nil {
			delta.Length = models.Float(*t.Length)
		}
		trees = append(trees, Mutation{Type: models.EntityTree, ID: id, Op: OpUpsert, Delta: delta})
		return id, nil
	}

	addAnimal := func(fields map[string]json.RawMessage) (string, error) {
		var id seedID
		if err := json.Unmarshal(fields["id"], &id); err != nil {
			return "", fmt.Errorf("%w: animal id: %w", ErrInvalidSeed, err)
		}
		attrs := make(map[string]any, len(fields))
		for k, v := range fields {
			if k == "id" {
				continue
			}
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return "", fmt.Errorf("%w: animal %q attribute %q: %w", ErrInvalidSeed, id, k, err)
			}
			attrs[k] = val
		}
		canonical, err := json.Marshal(attrs)
		if err != nil {
			return "", err
		}
		if prev, ok := seenAnimals[string(id)]; ok {
			if prev != string(canonical) {
				return "", fmt.Errorf("%w: animal %q declared twice with different attributes", ErrInvalidSeed, id)
			}
			return string(id), nil
		}
		seenAnimals[string(id)] = string(canonical)
		animals = append(animals, Mutation{Type: models.EntityAnimal, ID: string(id), Op: OpUpsert, Delta: models.Delta{Attributes: attrs}})
		return string(id), nil
	}

	for _, t := range d.Trees {
		if _, err := addTree(t); err != nil {
			return nil, err
		}
	}
	for _, a := range d.Animals {
		if _, err := addAnimal(a); err != nil {
			return nil, err
		}
	}

	seenRegions := make(map[string]struct{})
	for _, r := range d.Regions {
		id := string(r.ID)
		if _, ok := seenRegions[id]; ok {
			return nil, fmt.Errorf("%w: region %q declared twice", ErrInvalidSeed, id)
		}
		seenRegions[id] = struct{}{}

		delta := models.Delta{}
		if r.Vegetation != nil {
			delta.Vegetation = models.Float(*r.Vegetation)
		}
		for _, t := range r.Trees {
			tid, err := addTree(t)
			if err != nil {
				return nil, err
			}
			delta.TreesAdded = append(delta.TreesAdded, tid)
		}
		for _, a := range r.Animals {
			aid, err := addAnimal(a)
			if err != nil {
				return nil, err
			}
			delta.AnimalsAdded = append(delta.AnimalsAdded, aid)
		}
		regions = append(regions, Mutation{Type: models.EntityRegion, ID: id, Op: OpUpsert, Delta: delta})
	}

	out := make([]Mutation, 0, len(trees)+len(animals)+len(regions))
	out = append(out, trees...)
	out = append(out, animals...)
	out = append(out, regions...)
	return out, nil
}

func sameTree(a, b seedTree) bool {
	if a.Lat != b.Lat || a.Lng != b.Lng {
		return false
	}
	if (a.Length == nil) != (b.Length == nil) {
		return false
	}
	return a.Length == nil || *a.Length == *b.Length
}

// Seed загружает сгенерированный мир в хранилище.
// Возвращает количество записей, добавленных в журнал.
func Seed(ctx context.Context, store *Store, r io.Reader) (int, error) {
	doc, err := ParseSeed(r)
	if err != nil {
		return 0, err
	}
	ms, err := doc.Mutations()
	if err != nil {
		return 0, err
	}

	recs, err := store.ApplyBatch(ctx, ms)
	if err != nil {
		return len(recs), fmt.Errorf("apply seed: %w", err)
	}

	store.logger.InfoContext(ctx, "World seeded",
		"records", len(recs),
		"seq", store.Seq())

	return len(recs), nil
}
