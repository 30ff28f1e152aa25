package geo

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/iudanet/soundlines/internal/models"
	"github.com/iudanet/soundlines/internal/validation"
)

// UpsertResult результат вставки отчёта в индекс
type UpsertResult int

// UpsertResult константы
const (
	Inserted  UpsertResult = iota // Inserted первый отчёт телефона
	Replaced                      // Replaced отчёт заменил предыдущий
	Duplicate                     // Duplicate повторная отправка того же отчёта
	Stale                         // Stale отчёт старее сохранённого и отброшен
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	case Duplicate:
		return "duplicate"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("UpsertResult(%d)", int(r))
	}
}

// Neighbor найденный отчёт и расстояние до него
type Neighbor struct {
	Report   *models.Report
	Distance float64
}

type entry struct {
	report *models.Report
	cell   Cell
}

// Index хранит последний отчёт каждого телефона и отвечает на запросы
// k ближайших соседей. Отчёты разложены по ячейкам равномерной сетки,
// поиск обходит кольца ячеек вокруг точки запроса.
type Index struct {
	metric  Metric
	reports map[string]*entry
	cells   map[Cell]map[string]*models.Report
	grid    Grid
	ttl     time.Duration
	version uint64
	mu      sync.RWMutex
}

// NewIndex создает пустой индекс.
// ttl <= 0 отключает истечение отчётов.
func NewIndex(metric Metric, cellSize float64, ttl time.Duration) *Index {
	if metric == nil {
		metric = Haversine{}
	}
	return &Index{
		metric:  metric,
		grid:    NewGrid(cellSize),
		ttl:     ttl,
		reports: make(map[string]*entry),
		cells:   make(map[Cell]map[string]*models.Report),
	}
}

// Grid возвращает сетку индекса
func (i *Index) Grid() Grid {
	return i.grid
}

// Metric возвращает метрику индекса
func (i *Index) Metric() Metric {
	return i.metric
}

// ValidateReport проверяет поля отчёта без обращения к индексу
func ValidateReport(r *models.Report) error {
	if r == nil {
		return fmt.Errorf("%w: nil report", ErrInvalidArgument)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: empty phone id", ErrInvalidArgument)
	}
	if err := ValidatePoint(r.Point()); err != nil {
		return err
	}
	if err := validation.ValidateLevel("sound level", r.SoundLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if r.LightLevel != nil {
		if err := validation.ValidateLevel("light level", *r.LightLevel); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
	}
	if r.Stamp < 0 {
		return fmt.Errorf("%w: negative stamp", ErrInvalidArgument)
	}
	return nil
}

// Upsert сохраняет отчёт, заменяя предыдущий отчёт того же телефона.
// Отчёт с меньшим Stamp, чем сохранённый, отбрасывается (Stale).
// Stamp == 0 означает "следующий": индекс присваивает сохранённый Stamp + 1.
// Повторная отправка того же отчёта возвращает Duplicate и лишь продлевает TTL.
// Сохраняется копия r, в результат записывается итоговый Stamp.
func (i *Index) Upsert(r *models.Report) (UpsertResult, error) {
	if err := ValidateReport(r); err != nil {
		return 0, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	stored := r.Clone()
	if stored.ReceivedAt.IsZero() {
		stored.ReceivedAt = time.Now()
	}

	result := Inserted
	if cur, ok := i.reports[stored.ID]; ok {
		old := cur.report
		if stored.Stamp != 0 && stored.Stamp < old.Stamp {
			return Stale, nil
		}

		incoming := *stored
		if incoming.Stamp == 0 {
			incoming.Stamp = old.Stamp
		}
		if incoming.SameReading(old) {
			old.ReceivedAt = stored.ReceivedAt
			r.Stamp = old.Stamp
			return Duplicate, nil
		}

		if stored.Stamp == 0 {
			stored.Stamp = old.Stamp + 1
		}
		i.removeLocked(stored.ID, cur)
		result = Replaced
	} else if stored.Stamp == 0 {
		stored.Stamp = 1
	}

	cell := i.grid.CellOf(stored.Point())
	i.reports[stored.ID] = &entry{report: stored, cell: cell}
	bucket, ok := i.cells[cell]
	if !ok {
		bucket = make(map[string]*models.Report)
		i.cells[cell] = bucket
	}
	bucket[stored.ID] = stored
	i.version++
	r.Stamp = stored.Stamp

	return result, nil
}

// Remove удаляет отчёт телефона. Возвращает false, если отчёта не было.
func (i *Index) Remove(id string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	cur, ok := i.reports[id]
	if !ok {
		return false
	}
	i.removeLocked(id, cur)
	i.version++
	return true
}

func (i *Index) removeLocked(id string, e *entry) {
	delete(i.reports, id)
	if bucket, ok := i.cells[e.cell]; ok {
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(i.cells, e.cell)
		}
	}
}

// Expire удаляет отчёты, полученные раньше now - ttl.
// Возвращает отсортированный список удалённых телефонов.
func (i *Index) Expire(now time.Time) []string {
	if i.ttl <= 0 {
		return nil
	}
	cutoff := now.Add(-i.ttl)

	i.mu.Lock()
	defer i.mu.Unlock()

	var expired []string
	for id, e := range i.reports {
		if e.report.ReceivedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		i.removeLocked(id, i.reports[id])
	}
	if len(expired) > 0 {
		i.version++
	}
	sort.Strings(expired)
	return expired
}

// Get возвращает копию отчёта телефона
func (i *Index) Get(id string) (*models.Report, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	e, ok := i.reports[id]
	if !ok {
		return nil, false
	}
	return e.report.Clone(), true
}

// Len количество телефонов в индексе
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.reports)
}

// Version увеличивается при каждом изменении содержимого индекса
func (i *Index) Version() uint64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.version
}

// Nearest возвращает до k ближайших к p отчётов по возрастанию расстояния.
// При равных расстояниях порядок определяется идентификатором телефона.
func (i *Index) Nearest(p models.Point, k int) ([]Neighbor, error) {
	return i.NearestExcluding(p, k, "")
}

// NearestExcluding как Nearest, но пропускает отчёт телефона exclude.
// Результат содержит копии отчётов и отражает одно согласованное состояние индекса.
func (i *Index) NearestExcluding(p models.Point, k int, exclude string) ([]Neighbor, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	if err := ValidatePoint(p); err != nil {
		return nil, err
	}
	p.Lng = normalizeLng(p.Lng)

	i.mu.RLock()
	defer i.mu.RUnlock()

	total := len(i.reports)
	if _, ok := i.reports[exclude]; ok {
		total--
	}
	if total <= 0 {
		return []Neighbor{}, nil
	}

	var found []Neighbor
	if !i.searchRings(p, k, exclude, total, &found) {
		found = i.scanAll(p, exclude)
	}

	sortNeighbors(found)
	if len(found) > k {
		found = found[:k]
	}
	for n := range found {
		found[n].Report = found[n].Report.Clone()
	}
	return found, nil
}

// searchRings обходит кольца ячеек вокруг точки. Возвращает false, если
// очередное кольцо больше числа занятых ячеек и выгоднее полный просмотр.
func (i *Index) searchRings(p models.Point, k int, exclude string, total int, found *[]Neighbor) bool {
	center := i.grid.CellOf(p)
	latStep, lngStep := i.grid.latStep, i.grid.lngStep

	for r := int32(0); ; r++ {
		if 2*r+1 >= i.grid.lngCells {
			return false
		}
		if r > 0 && int(8*r) > len(i.cells) {
			return false
		}

		i.visitRing(center, r, func(bucket map[string]*models.Report) {
			for id, rep := range bucket {
				if id == exclude {
					continue
				}
				*found = append(*found, Neighbor{Report: rep, Distance: i.metric.Distance(p, rep.Point())})
			}
		})

		if len(*found) >= total {
			return true
		}
		if len(*found) < k {
			continue
		}

		// Минимальное расстояние до любой точки вне уже просмотренного квадрата
		latLow := float64(center.Y-r)*latStep - 90
		latHigh := float64(center.Y+r+1)*latStep - 90
		bound := math.Inf(1)
		if latLow > -90 {
			bound = math.Min(bound, i.metric.LatBound(p.Lat-latLow))
		}
		if latHigh < 90 {
			bound = math.Min(bound, i.metric.LatBound(latHigh-p.Lat))
		}
		lngLow := float64(center.X-r)*lngStep - 180
		lngHigh := float64(center.X+r+1)*lngStep - 180
		dLng := math.Min(p.Lng-lngLow, lngHigh-p.Lng)
		bound = math.Min(bound, i.metric.LngBound(p, dLng))

		sortNeighbors(*found)
		if (*found)[k-1].Distance < bound {
			return true
		}
	}
}

// visitRing вызывает fn для каждой занятой ячейки на расстоянии ровно r колец от center
func (i *Index) visitRing(center Cell, r int32, fn func(map[string]*models.Report)) {
	visit := func(dx, dy int32) {
		y := center.Y + dy
		if y < 0 || y >= i.grid.latCells {
			return
		}
		c := Cell{X: i.grid.wrapX(center.X + dx), Y: y}
		if bucket, ok := i.cells[c]; ok {
			fn(bucket)
		}
	}

	if r == 0 {
		visit(0, 0)
		return
	}
	for dx := -r; dx <= r; dx++ {
		visit(dx, -r)
		visit(dx, r)
	}
	for dy := -r + 1; dy <= r-1; dy++ {
		visit(-r, dy)
		visit(r, dy)
	}
}

func (i *Index) scanAll(p models.Point, exclude string) []Neighbor {
	found := make([]Neighbor, 0, len(i.reports))
	for id, e := range i.reports {
		if id == exclude {
			continue
		}
		found = append(found, Neighbor{Report: e.report, Distance: i.metric.Distance(p, e.report.Point())})
	}
	return found
}

func sortNeighbors(ns []Neighbor) {
	sort.Slice(ns, func(a, b int) bool {
		if ns[a].Distance != ns[b].Distance {
			return ns[a].Distance < ns[b].Distance
		}
		return ns[a].Report.ID < ns[b].Report.ID
	})
}
