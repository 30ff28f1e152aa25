package auth

import (
	"context"

	"github.com/iudanet/soundlines/internal/client/storage"
)

//go:generate moq -out service_mock.go . Service

// Service defines the main interface for device authentication.
// It registers the phone, keeps its session in local storage
// and hands out the access token to other client services.
type Service interface {
	// Register регистрирует телефон на сервере под именем name
	Register(ctx context.Context, name, secret string) (*RegisterResult, error)

	// Login получает токен доступа и сохраняет сессию локально
	Login(ctx context.Context, name, secret string) (*storage.AuthData, error)

	// Token возвращает действующий токен сохранённой сессии.
	// ErrNotAuthenticated если входа не было, ErrSessionExpired если токен истёк.
	Token(ctx context.Context) (string, error)

	// Session возвращает сохранённую сессию без проверки срока действия
	Session(ctx context.Context) (*storage.AuthData, error)

	// Logout удаляет локальную сессию
	Logout(ctx context.Context) error
}
