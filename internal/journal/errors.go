package journal

import "errors"

var (
	// ErrTooStale запрошенная позиция вне сохранённого диапазона журнала,
	// клиенту нужен полный снимок
	ErrTooStale = errors.New("cursor is too stale")

	// ErrUnavailable не удалось сохранить запись в хранилище
	ErrUnavailable = errors.New("change log unavailable")

	// ErrGap загружаемые записи идут не подряд
	ErrGap = errors.New("change log gap")
)
