package geo

import (
	"fmt"
	"math"

	"github.com/iudanet/soundlines/internal/models"
)

// DefaultCellSize размер ячейки сетки в градусах (~110 м по широте)
const DefaultCellSize = 0.001

// Cell координаты ячейки сетки
type Cell struct {
	X int32 // X индекс по долготе, с переходом через антимеридиан
	Y int32 // Y индекс по широте
}

// ID возвращает стабильный строковый идентификатор ячейки
func (c Cell) ID() string {
	return fmt.Sprintf("%d:%d", c.X, c.Y)
}

// Grid квантует координаты в ячейки фиксированного размера.
// Шаги по осям подогнаны так, чтобы ячейки точно покрывали сферу.
type Grid struct {
	size     float64
	latStep  float64
	lngStep  float64
	latCells int32
	lngCells int32
}

// NewGrid создает сетку с размером ячейки size градусов.
// Некорректный размер заменяется на DefaultCellSize.
func NewGrid(size float64) Grid {
	if size <= 0 || size > 90 || math.IsNaN(size) {
		size = DefaultCellSize
	}
	latCells := int32(math.Ceil(180 / size))
	lngCells := int32(math.Ceil(360 / size))
	return Grid{
		size:     size,
		latStep:  180 / float64(latCells),
		lngStep:  360 / float64(lngCells),
		latCells: latCells,
		lngCells: lngCells,
	}
}

// Size возвращает размер ячейки в градусах
func (g Grid) Size() float64 {
	return g.size
}

// CellOf возвращает ячейку, содержащую точку
func (g Grid) CellOf(p models.Point) Cell {
	y := int32(math.Floor((p.Lat + 90) / g.latStep))
	if y >= g.latCells {
		y = g.latCells - 1
	}
	if y < 0 {
		y = 0
	}
	return Cell{X: g.wrapX(int32(math.Floor((normalizeLng(p.Lng) + 180) / g.lngStep))), Y: y}
}

// Center возвращает центр ячейки
func (g Grid) Center(c Cell) models.Point {
	lat := (float64(c.Y)+0.5)*g.latStep - 90
	if lat > 90 {
		lat = 90
	}
	lng := (float64(c.X)+0.5)*g.lngStep - 180
	if lng >= 180 {
		lng -= 360
	}
	return models.Point{Lat: lat, Lng: lng}
}

func (g Grid) wrapX(x int32) int32 {
	x %= g.lngCells
	if x < 0 {
		x += g.lngCells
	}
	return x
}

// normalizeLng переводит 180 в -180, чтобы у антимеридиана была одна ячейка
func normalizeLng(lng float64) float64 {
	if lng >= 180 {
		return lng - 360
	}
	return lng
}

// ValidatePoint проверяет диапазоны широты и долготы
func ValidatePoint(p models.Point) error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return fmt.Errorf("%w: NaN coordinate", ErrInvalidLocation)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of [-90,90]", ErrInvalidLocation, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of [-180,180]", ErrInvalidLocation, p.Lng)
	}
	return nil
}
