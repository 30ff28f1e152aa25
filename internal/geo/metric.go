package geo

import (
	"math"

	"github.com/iudanet/soundlines/internal/models"
)

// EarthRadius средний радиус Земли в метрах
const EarthRadius = 6371008.8

// Metric задает функцию расстояния для индекса.
// Кроме самого расстояния метрика обязана давать нижние оценки,
// по которым поиск соседей решает, что непросмотренные ячейки уже не нужны.
type Metric interface {
	// Distance возвращает расстояние между двумя точками
	Distance(a, b models.Point) float64

	// LatBound возвращает минимальное расстояние между точками,
	// широты которых отличаются как минимум на dLat градусов
	LatBound(dLat float64) float64

	// LngBound возвращает минимальное расстояние от p до любой точки,
	// долгота которой отличается от p как минимум на dLng градусов
	LngBound(p models.Point, dLng float64) float64
}

// Haversine расстояние по большому кругу в метрах
type Haversine struct{}

// Distance реализует формулу гаверсинусов
func (Haversine) Distance(a, b models.Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := lat2 - lat1
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}

// LatBound дуга меридиана длиной dLat
func (Haversine) LatBound(dLat float64) float64 {
	return EarthRadius * radians(dLat)
}

// LngBound расстояние от p до ближайшего полумеридиана на угловом удалении dLng.
// При dLng >= 90° ближайшая точка такого полумеридиана это полюс.
func (Haversine) LngBound(p models.Point, dLng float64) float64 {
	if dLng >= 90 {
		return EarthRadius * radians(90-math.Abs(p.Lat))
	}
	x := math.Sin(radians(dLng)) * math.Cos(radians(p.Lat))
	if x > 1 {
		x = 1
	}
	return EarthRadius * math.Asin(x)
}

// Planar евклидово расстояние в градусах с переходом через антимеридиан.
// Удобна для тестов и небольших площадок.
type Planar struct{}

// Distance евклидово расстояние в градусах
func (Planar) Distance(a, b models.Point) float64 {
	dLat := a.Lat - b.Lat
	dLng := math.Abs(a.Lng - b.Lng)
	if dLng > 180 {
		dLng = 360 - dLng
	}
	return math.Hypot(dLat, dLng)
}

// LatBound равна самой разнице широт
func (Planar) LatBound(dLat float64) float64 {
	return dLat
}

// LngBound равна самой разнице долгот
func (Planar) LngBound(_ models.Point, dLng float64) float64 {
	return dLng
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
