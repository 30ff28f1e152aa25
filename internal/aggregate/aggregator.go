package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/iudanet/soundlines/internal/geo"
	"github.com/iudanet/soundlines/internal/models"
	"github.com/iudanet/soundlines/internal/world"
)

// DefaultK количество соседей по умолчанию
const DefaultK = 5

// Mutator принимает мутации мира (world.Store)
type Mutator interface {
	ApplyMutation(ctx context.Context, m world.Mutation) (models.ChangeRecord, error)
}

// Options параметры агрегатора
type Options struct {
	K            int     // K сколько соседей усредняется
	NoiseEpsilon float64 // NoiseEpsilon минимальное изменение среднего шума ячейки для публикации
}

// Result итог приёма одного отчёта
type Result struct {
	View    models.AggregateView
	Outcome geo.UpsertResult
	Stamp   int64 // Stamp итоговый stamp отчёта в индексе
}

type noiseAcc struct {
	total     float64
	count     int64
	published float64
	seen      bool // seen значение уже публиковалось
}

// Aggregator принимает отчёты телефонов и отвечает средними по соседям.
// Дополнительно копит средний уровень шума по ячейкам сетки и
// публикует его в мир как сущности типа noise.
type Aggregator struct {
	index   *geo.Index
	world   Mutator
	logger  *slog.Logger
	noise   map[string]*noiseAcc
	now     func() time.Time
	opts    Options
	noiseMu sync.Mutex
}

// New создает агрегатор. world может быть nil, тогда ячейки шума не ведутся.
func New(index *geo.Index, w Mutator, logger *slog.Logger, opts Options) *Aggregator {
	if opts.K <= 0 {
		opts.K = DefaultK
	}
	if opts.NoiseEpsilon < 0 {
		opts.NoiseEpsilon = 0
	}
	return &Aggregator{
		index:  index,
		world:  w,
		logger: logger,
		opts:   opts,
		noise:  make(map[string]*noiseAcc),
		now:    time.Now,
	}
}

// Submit сохраняет отчёт и возвращает агрегат по K ближайшим чужим отчётам.
// Повторная отправка того же отчёта не меняет ни индекс, ни ответ.
func (a *Aggregator) Submit(ctx context.Context, r *models.Report) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := r.Clone()
	report.ReceivedAt = a.now()

	outcome, err := a.index.Upsert(report)
	if err != nil {
		return nil, err
	}

	neighbors, err := a.index.NearestExcluding(report.Point(), a.opts.K, report.ID)
	if err != nil {
		return nil, fmt.Errorf("nearest query: %w", err)
	}

	if outcome == geo.Inserted || outcome == geo.Replaced {
		a.foldNoise(ctx, report)
	}

	return &Result{
		View:    Summarize(report, neighbors),
		Outcome: outcome,
		Stamp:   report.Stamp,
	}, nil
}

// Summarize считает средние по соседям.
// Свет усредняется только по соседям, передавшим его; без таких соседей
// и для пустого набора берутся значения самого отправителя.
func Summarize(self *models.Report, neighbors []geo.Neighbor) models.AggregateView {
	view := models.AggregateView{
		Locations:  make([]models.Point, 0, len(neighbors)),
		SoundLevel: self.SoundLevel,
		Light:      self.Light(),
	}
	if len(neighbors) == 0 {
		return view
	}

	var (
		sound      float64
		light      float64
		lightCount int
	)
	for _, n := range neighbors {
		view.Locations = append(view.Locations, n.Report.Point())
		sound += n.Report.SoundLevel
		if n.Report.LightLevel != nil {
			light += *n.Report.LightLevel
			lightCount++
		}
	}
	view.SoundLevel = sound / float64(len(neighbors))
	if lightCount > 0 {
		view.Light = light / float64(lightCount)
	}
	return view
}

// Neighbours возвращает k ближайших отчётов к точке без изменения индекса
func (a *Aggregator) Neighbours(ctx context.Context, p models.Point, k int) ([]geo.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.index.Nearest(p, k)
}

// Expire удаляет отчёты с истёкшим TTL
func (a *Aggregator) Expire(now time.Time) []string {
	return a.index.Expire(now)
}

// RestoreNoise подхватывает накопленные ячейки шума из мира после перезапуска
func (a *Aggregator) RestoreNoise(cells map[string]*models.NoiseCell) {
	a.noiseMu.Lock()
	defer a.noiseMu.Unlock()

	for id, c := range cells {
		a.noise[id] = &noiseAcc{
			total:     c.Level * float64(c.Samples),
			count:     c.Samples,
			published: c.Level,
			seen:      true,
		}
	}
}

// NoiseAt возвращает текущее среднее шума в ячейке сетки, содержащей точку.
// ok == false, если в ячейке ещё не было измерений.
func (a *Aggregator) NoiseAt(p models.Point) (*models.NoiseCell, bool, error) {
	if err := geo.ValidatePoint(p); err != nil {
		return nil, false, err
	}

	grid := a.index.Grid()
	cell := grid.CellOf(p)
	id := cell.ID()

	a.noiseMu.Lock()
	defer a.noiseMu.Unlock()

	acc, ok := a.noise[id]
	if !ok || acc.count == 0 {
		return nil, false, nil
	}
	center := grid.Center(cell)
	return &models.NoiseCell{
		ID:      id,
		Lat:     center.Lat,
		Lng:     center.Lng,
		Level:   clamp01(acc.total / float64(acc.count)),
		Samples: acc.count,
	}, true, nil
}

// foldNoise добавляет измерение в ячейку и публикует новое среднее,
// если оно сдвинулось не меньше чем на NoiseEpsilon.
// Ошибки публикации только логируются.
func (a *Aggregator) foldNoise(ctx context.Context, r *models.Report) {
	if a.world == nil {
		return
	}

	grid := a.index.Grid()
	cell := grid.CellOf(r.Point())
	id := cell.ID()

	a.noiseMu.Lock()
	defer a.noiseMu.Unlock()

	acc, ok := a.noise[id]
	if !ok {
		acc = &noiseAcc{}
		a.noise[id] = acc
	}
	acc.total += r.SoundLevel
	acc.count++

	mean := acc.total / float64(acc.count)
	if acc.seen && math.Abs(mean-acc.published) < a.opts.NoiseEpsilon {
		return
	}

	center := grid.Center(cell)
	samples := acc.count
	_, err := a.world.ApplyMutation(ctx, world.Mutation{
		Type: models.EntityNoise,
		ID:   id,
		Op:   world.OpUpsert,
		Delta: models.Delta{
			Lat:     models.Float(center.Lat),
			Lng:     models.Float(center.Lng),
			Level:   models.Float(clamp01(mean)),
			Samples: &samples,
		},
	})
	if err != nil {
		a.logger.WarnContext(ctx, "Failed to publish noise cell",
			"cell", id,
			"level", mean,
			slog.Any("error", err))
		return
	}

	acc.published = mean
	acc.seen = true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
