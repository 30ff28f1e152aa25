package session

import "errors"

var (
	// ErrRegressedCursor подтверждение меньше текущего курсора, курсор не изменён
	ErrRegressedCursor = errors.New("regressed cursor")

	// ErrInvalidArgument некорректный клиент или seq
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnavailable не удалось сохранить курсор
	ErrUnavailable = errors.New("cursor store unavailable")
)
