package api

import "github.com/iudanet/soundlines/internal/models"

// Location позиция телефона во вложенном виде
type Location struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// ReportRequest отчёт телефона. Позиция передаётся либо полями lat/lng,
// либо вложенным объектом location (так отправляют старые клиенты).
type ReportRequest struct {
	Location   *Location `json:"location,omitempty"`
	Lat        *float64  `json:"lat,omitempty"`
	Lng        *float64  `json:"lng,omitempty"`
	SoundLevel *float64  `json:"soundLevel"`
	LightLevel *float64  `json:"lightLevel,omitempty"`
	Stamp      int64     `json:"stamp,omitempty"` // Stamp счётчик телефона, 0 = назначит сервер
}

// Position возвращает позицию отчёта. Плоские поля важнее вложенных.
func (r *ReportRequest) Position() (models.Point, bool) {
	lat, lng := r.Lat, r.Lng
	if r.Location != nil {
		if lat == nil {
			lat = r.Location.Lat
		}
		if lng == nil {
			lng = r.Location.Lng
		}
	}
	if lat == nil || lng == nil {
		return models.Point{}, false
	}
	return models.Point{Lat: *lat, Lng: *lng}, true
}

// ReportResponse агрегированный ответ на отчёт
type ReportResponse struct {
	Outcome    string         `json:"outcome"` // Outcome inserted, replaced, duplicate или stale
	Locations  []models.Point `json:"locations"`
	SoundLevel float64        `json:"soundLevel"`
	Light      float64        `json:"light"`
	Stamp      int64          `json:"stamp"` // Stamp принятый сервером stamp отчёта
}

// Neighbour один соседний отчёт
type Neighbour struct {
	LightLevel *float64 `json:"lightLevel,omitempty"`
	Lat        float64  `json:"lat"`
	Lng        float64  `json:"lng"`
	SoundLevel float64  `json:"soundLevel"`
	Distance   float64  `json:"distance"`
}

// NearbyResponse ответ на запрос соседних отчётов
type NearbyResponse struct {
	Neighbours []Neighbour `json:"neighbours"`
	SoundLevel float64     `json:"soundLevel"`
	Light      float64     `json:"light"`
}
