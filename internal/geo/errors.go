package geo

import "errors"

var (
	// ErrInvalidLocation координаты вне допустимого диапазона
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidArgument некорректный параметр запроса или отчёта
	ErrInvalidArgument = errors.New("invalid argument")
)
