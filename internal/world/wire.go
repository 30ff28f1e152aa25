package world

import (
	"fmt"

	"github.com/iudanet/soundlines/internal/models"
	"github.com/iudanet/soundlines/pkg/api"
)

// SnapshotResponse переводит состояние в ответ mode=snapshot.
// Регионы содержат свои деревья и животных целиком, остальные сущности
// перечислены на верхнем уровне. Порядок детерминирован.
func SnapshotResponse(s *State, seq int64) api.WorldResponse {
	resp := api.WorldResponse{
		Mode:    api.ModeSnapshot,
		Seq:     seq,
		Regions: make([]api.WorldRegion, 0, len(s.Regions)),
	}

	usedTrees := make(map[string]struct{})
	usedAnimals := make(map[string]struct{})
	for _, id := range sortedKeys(s.Regions) {
		r := s.Regions[id]
		wr := api.WorldRegion{
			ID:         r.ID,
			Vegetation: r.Vegetation,
			Trees:      make([]models.Tree, 0, len(r.Trees)),
			Animals:    make([]models.Animal, 0, len(r.Animals)),
		}
		for _, tid := range sortedKeys(r.Trees) {
			if t, ok := s.Trees[tid]; ok {
				wr.Trees = append(wr.Trees, *t)
				usedTrees[tid] = struct{}{}
			}
		}
		for _, aid := range sortedKeys(r.Animals) {
			if a, ok := s.Animals[aid]; ok {
				wr.Animals = append(wr.Animals, *a.Clone())
				usedAnimals[aid] = struct{}{}
			}
		}
		resp.Regions = append(resp.Regions, wr)
	}

	for _, id := range sortedKeys(s.Trees) {
		if _, ok := usedTrees[id]; !ok {
			resp.Trees = append(resp.Trees, *s.Trees[id])
		}
	}
	for _, id := range sortedKeys(s.Animals) {
		if _, ok := usedAnimals[id]; !ok {
			resp.Animals = append(resp.Animals, *s.Animals[id].Clone())
		}
	}
	for _, id := range sortedKeys(s.Noise) {
		resp.Noise = append(resp.Noise, *s.Noise[id])
	}
	return resp
}

// DiffResponse переводит записи журнала в ответ mode=diff
func DiffResponse(recs []models.ChangeRecord, seq int64) api.WorldResponse {
	resp := api.WorldResponse{
		Mode: api.ModeDiff,
		Seq:  seq,
		Diff: make([]api.DiffEntry, 0, len(recs)),
	}
	for _, rec := range recs {
		resp.Diff = append(resp.Diff, api.NewDiffEntry(rec))
	}
	return resp
}

// StateFromSnapshot восстанавливает состояние из ответа mode=snapshot
func StateFromSnapshot(resp api.WorldResponse) (*State, error) {
	if resp.Mode != api.ModeSnapshot {
		return nil, fmt.Errorf("%w: expected snapshot, got %q", ErrInvalidArgument, resp.Mode)
	}

	s := NewState()
	addTree := func(t models.Tree) {
		tree := t
		s.Trees[t.ID] = &tree
	}
	addAnimal := func(a models.Animal) {
		animal := a.Clone()
		s.Animals[a.ID] = animal
	}

	for _, wr := range resp.Regions {
		r := models.NewRegion(wr.ID)
		r.Vegetation = wr.Vegetation
		for _, t := range wr.Trees {
			addTree(t)
			r.Trees[t.ID] = struct{}{}
		}
		for _, a := range wr.Animals {
			addAnimal(a)
			r.Animals[a.ID] = struct{}{}
		}
		s.Regions[r.ID] = r
	}
	for _, t := range resp.Trees {
		addTree(t)
	}
	for _, a := range resp.Animals {
		addAnimal(a)
	}
	for _, n := range resp.Noise {
		cell := n
		s.Noise[n.ID] = &cell
	}
	return s, nil
}
