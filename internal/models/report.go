package models

import "time"

// Report представляет одно измерение, присланное телефоном.
// Новый отчёт того же телефона заменяет предыдущий (не сливается с ним).
type Report struct {
	ReceivedAt time.Time `json:"received_at"`           // ReceivedAt время получения сервером, по нему считается TTL
	LightLevel *float64  `json:"light_level,omitempty"` // LightLevel освещённость [0,1], опционально
	ID         string    `json:"id"`                    // ID идентификатор телефона (device id)
	Lat        float64   `json:"lat"`                   // Lat широта в градусах
	Lng        float64   `json:"lng"`                   // Lng долгота в градусах
	SoundLevel float64   `json:"sound_level"`           // SoundLevel уровень шума [0,1]
	Stamp      int64     `json:"stamp"`                 // Stamp монотонный счётчик телефона (Lamport), 0 = не задан
}

// Point возвращает позицию отчёта.
func (r *Report) Point() Point {
	return Point{Lat: r.Lat, Lng: r.Lng}
}

// Light возвращает уровень освещённости или 0, если он не передан.
func (r *Report) Light() float64 {
	if r.LightLevel == nil {
		return 0
	}
	return *r.LightLevel
}

// SameReading сообщает, совпадают ли все поля измерения (кроме времени получения).
// Используется для распознавания повторной отправки того же отчёта.
func (r *Report) SameReading(other *Report) bool {
	if r.ID != other.ID || r.Stamp != other.Stamp {
		return false
	}
	if r.Lat != other.Lat || r.Lng != other.Lng || r.SoundLevel != other.SoundLevel {
		return false
	}
	if (r.LightLevel == nil) != (other.LightLevel == nil) {
		return false
	}
	return r.LightLevel == nil || *r.LightLevel == *other.LightLevel
}

// Clone создает копию отчёта, не разделяющую указатель LightLevel.
func (r *Report) Clone() *Report {
	c := *r
	if r.LightLevel != nil {
		light := *r.LightLevel
		c.LightLevel = &light
	}
	return &c
}

// Point точка на поверхности Земли в градусах.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AggregateView агрегированный ответ телефону: ближайшие соседи и средние значения.
// Вычисляется на каждый запрос и нигде не хранится.
type AggregateView struct {
	Locations  []Point `json:"locations"`  // Locations позиции ближайших отчётов, по возрастанию расстояния
	SoundLevel float64 `json:"soundLevel"` // SoundLevel средний уровень шума соседей
	Light      float64 `json:"light"`      // Light средняя освещённость соседей
}
