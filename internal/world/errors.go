package world

import "errors"

var (
	// ErrDanglingReference мутация нарушает ссылочную целостность
	ErrDanglingReference = errors.New("dangling reference")

	// ErrInvalidArgument некорректная мутация
	ErrInvalidArgument = errors.New("invalid mutation")

	// ErrNotFound сущность не найдена
	ErrNotFound = errors.New("entity not found")

	// ErrUnavailable журнал изменений недоступен, мутация отклонена
	ErrUnavailable = errors.New("world store unavailable")

	// ErrInvalidSeed документ начального мира не прошёл проверку
	ErrInvalidSeed = errors.New("invalid world seed")
)
