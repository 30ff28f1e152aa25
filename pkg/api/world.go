package api

import (
	"encoding/json"
	"time"

	"github.com/iudanet/soundlines/internal/models"
)

// Mode значения поля mode ответа мира
const (
	ModeSnapshot = "snapshot"
	ModeDiff     = "diff"
)

// WorldRegion регион в снимке вместе с его деревьями и животными
type WorldRegion struct {
	ID         string          `json:"id"`
	Trees      []models.Tree   `json:"trees"`
	Animals    []models.Animal `json:"animals"`
	Vegetation float64         `json:"vegetation"`
}

// DiffEntry одна запись журнала в ответе: тип, id, seq и поля дельты
type DiffEntry struct {
	CommittedAt time.Time `json:"committed_at"`
	Type        string    `json:"type"`
	ID          string    `json:"id"`
	models.Delta
	Seq int64 `json:"seq"`
}

// NewDiffEntry переводит запись журнала в формат ответа
func NewDiffEntry(rec models.ChangeRecord) DiffEntry {
	return DiffEntry{
		Type:        string(rec.Type),
		ID:          rec.EntityID,
		Seq:         rec.Seq,
		CommittedAt: rec.CommittedAt,
		Delta:       rec.Delta,
	}
}

// Record переводит запись ответа обратно в запись журнала
func (e DiffEntry) Record() (models.ChangeRecord, error) {
	t, err := models.ParseEntityType(e.Type)
	if err != nil {
		return models.ChangeRecord{}, err
	}
	return models.ChangeRecord{
		Seq:         e.Seq,
		Type:        t,
		EntityID:    e.ID,
		Delta:       e.Delta,
		CommittedAt: e.CommittedAt,
	}, nil
}

// WorldResponse снимок (mode=snapshot) либо дифф (mode=diff) мира.
// В снимке деревья и животные, не входящие ни в один регион, перечислены отдельно.
type WorldResponse struct {
	Mode    string             `json:"mode"`
	Regions []WorldRegion      `json:"regions,omitempty"`
	Trees   []models.Tree      `json:"trees,omitempty"`
	Animals []models.Animal    `json:"animals,omitempty"`
	Noise   []models.NoiseCell `json:"noise,omitempty"`
	Diff    []DiffEntry        `json:"diff,omitempty"`
	Seq     int64              `json:"seq"`
}

// MarshalJSON всегда пишет regions в снимке и diff в диффе, даже пустыми
func (r WorldResponse) MarshalJSON() ([]byte, error) {
	switch r.Mode {
	case ModeSnapshot:
		regions := r.Regions
		if regions == nil {
			regions = []WorldRegion{}
		}
		return json.Marshal(struct {
			Mode    string             `json:"mode"`
			Regions []WorldRegion      `json:"regions"`
			Trees   []models.Tree      `json:"trees,omitempty"`
			Animals []models.Animal    `json:"animals,omitempty"`
			Noise   []models.NoiseCell `json:"noise,omitempty"`
			Seq     int64              `json:"seq"`
		}{r.Mode, regions, r.Trees, r.Animals, r.Noise, r.Seq})
	case ModeDiff:
		diff := r.Diff
		if diff == nil {
			diff = []DiffEntry{}
		}
		return json.Marshal(struct {
			Mode string      `json:"mode"`
			Diff []DiffEntry `json:"diff"`
			Seq  int64       `json:"seq"`
		}{r.Mode, diff, r.Seq})
	default:
		type plain WorldResponse
		return json.Marshal(plain(r))
	}
}

// AckRequest подтверждение применённого seq
type AckRequest struct {
	Seq *int64 `json:"seq"`
}

// MutationRequest одна мутация мира от администратора
type MutationRequest struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Op       string `json:"op,omitempty"` // Op upsert (по умолчанию) или delete
	models.Delta
	Relative bool `json:"relative,omitempty"` // Relative числовые поля являются приращениями
}

// MutationBatchRequest пакет мутаций
type MutationBatchRequest struct {
	Mutations []MutationRequest `json:"mutations"`
}

// MutationBatchResponse итог пакета: записи, попавшие в журнал
type MutationBatchResponse struct {
	Applied []DiffEntry `json:"applied"`
	Seq     int64       `json:"seq"`
}

// StreamFrame кадр WebSocket потока диффов
type StreamFrame struct {
	Diff []DiffEntry `json:"diff"`
	Seq  int64       `json:"seq"`
}
