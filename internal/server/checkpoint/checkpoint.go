package checkpoint

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/iudanet/soundlines/internal/world"
)

var (
	// ErrNoCheckpoint возвращается, когда в каталоге нет ни одной читаемой контрольной точки
	ErrNoCheckpoint = errors.New("no checkpoint found")

	// ErrBelowFloor читаемые контрольные точки есть, но журнал после них уже сжат
	ErrBelowFloor = errors.New("checkpoint is below change log floor")
)

const (
	formatVersion = 1
	filePrefix    = "world-"
	fileSuffix    = ".ckpt.zst"
)

// Header первая строка файла контрольной точки
type Header struct {
	CreatedAt time.Time `json:"created_at"`
	Version   int       `json:"version"`
	Seq       int64     `json:"seq"`
}

// Store хранит сжатые снимки мира в каталоге, по одному файлу на seq
type Store struct {
	logger *slog.Logger
	dir    string
	keep   int
}

// New создает хранилище контрольных точек. keep сколько последних файлов оставлять (минимум 1).
func New(dir string, keep int, logger *slog.Logger) *Store {
	if keep < 1 {
		keep = 1
	}
	return &Store{dir: dir, keep: keep, logger: logger}
}

// Dir возвращает каталог контрольных точек
func (s *Store) Dir() string {
	return s.dir
}

// Save записывает снимок мира на seq и удаляет лишние старые файлы.
// Файл сначала пишется во временный и переименовывается целиком.
func (s *Store) Save(ctx context.Context, state *world.State, seq int64) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create checkpoint dir: %w", err)
	}

	path := filepath.Join(s.dir, fileName(seq))
	tmp, err := os.CreateTemp(s.dir, "ckpt-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := write(tmp, Header{Version: formatVersion, Seq: seq, CreatedAt: time.Now().UTC()}, state); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to rename checkpoint: %w", err)
	}

	s.logger.InfoContext(ctx, "Checkpoint written", "path", path, "seq", seq)

	if err := s.prune(ctx); err != nil {
		s.logger.WarnContext(ctx, "Failed to prune old checkpoints", slog.Any("error", err))
	}
	return path, nil
}

func write(f *os.File, h Header, state *world.State) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}

	bw := bufio.NewWriterSize(enc, 256*1024)
	hb, err := json.Marshal(h)
	if err != nil {
		enc.Close()
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		enc.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := json.NewEncoder(bw).Encode(state); err != nil {
		enc.Close()
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("failed to flush checkpoint: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finish zstd stream: %w", err)
	}
	return nil
}

// Read читает один файл контрольной точки
func Read(path string) (*world.State, Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return nil, h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, h, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, h, fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, h, fmt.Errorf("failed to decode header: %w", err)
	}
	if h.Version != formatVersion {
		return nil, h, fmt.Errorf("unsupported checkpoint version %d", h.Version)
	}

	state := world.NewState()
	if err := json.NewDecoder(br).Decode(state); err != nil {
		return nil, h, fmt.Errorf("failed to decode state: %w", err)
	}
	return state, h, nil
}

// LoadLatest возвращает самый свежий читаемый снимок и его seq.
// Повреждённые файлы пропускаются с предупреждением. Снимок старше floor
// не годится: записей журнала между ним и floor уже нет.
func (s *Store) LoadLatest(ctx context.Context, floor int64) (*world.State, int64, error) {
	seqs, err := s.list()
	if err != nil {
		return nil, 0, err
	}

	for i := len(seqs) - 1; i >= 0; i-- {
		path := filepath.Join(s.dir, fileName(seqs[i]))
		state, h, err := Read(path)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping unreadable checkpoint",
				"path", path,
				slog.Any("error", err))
			continue
		}
		if h.Seq < floor {
			return nil, 0, fmt.Errorf("%w: newest readable checkpoint %s has seq %d, log floor is %d",
				ErrBelowFloor, path, h.Seq, floor)
		}
		s.logger.InfoContext(ctx, "Checkpoint loaded", "path", path, "seq", h.Seq)
		return state, h.Seq, nil
	}

	return nil, 0, ErrNoCheckpoint
}

// Oldest возвращает seq самого старого хранимого файла; false, если файлов нет
func (s *Store) Oldest() (int64, bool, error) {
	seqs, err := s.list()
	if err != nil || len(seqs) == 0 {
		return 0, false, err
	}
	return seqs[0], true, nil
}

// list возвращает seq всех файлов по возрастанию
func (s *Store) list() ([]int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint dir: %w", err)
	}

	seqs := make([]int64, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		seq, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), 10, 64)
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

func (s *Store) prune(ctx context.Context) error {
	seqs, err := s.list()
	if err != nil {
		return err
	}
	if len(seqs) <= s.keep {
		return nil
	}
	for _, seq := range seqs[:len(seqs)-s.keep] {
		path := filepath.Join(s.dir, fileName(seq))
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		s.logger.DebugContext(ctx, "Old checkpoint removed", "path", path)
	}
	return nil
}

func fileName(seq int64) string {
	return fmt.Sprintf("%s%020d%s", filePrefix, seq, fileSuffix)
}
