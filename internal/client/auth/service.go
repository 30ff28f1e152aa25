package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/soundlines/internal/client/storage"
	"github.com/iudanet/soundlines/internal/validation"
	pkgapi "github.com/iudanet/soundlines/pkg/api"
)

var (
	// ErrNotAuthenticated на телефоне нет сохранённой сессии
	ErrNotAuthenticated = errors.New("not authenticated, run 'soundlines login' first")

	// ErrSessionExpired токен сохранённой сессии истёк
	ErrSessionExpired = errors.New("access token has expired, please login again")
)

// DeviceAPI серверные операции регистрации и входа
type DeviceAPI interface {
	Register(ctx context.Context, req pkgapi.RegisterRequest) (*pkgapi.RegisterResponse, error)
	Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error)
}

// RegisterResult содержит результат регистрации
type RegisterResult struct {
	DeviceID   string // UUID устройства
	DeviceName string
}

// AuthService реализует Service поверх API клиента и локального хранилища
type AuthService struct {
	apiClient DeviceAPI
	storage   storage.AuthStorage
	now       func() time.Time
}

var _ Service = (*AuthService)(nil)

// NewAuthService создает сервис авторизации
func NewAuthService(apiClient DeviceAPI, authStorage storage.AuthStorage) *AuthService {
	return &AuthService{
		apiClient: apiClient,
		storage:   authStorage,
		now:       time.Now,
	}
}

// Register регистрирует телефон. Сессия не сохраняется: нужен Login.
func (s *AuthService) Register(ctx context.Context, name, secret string) (*RegisterResult, error) {
	if err := validation.ValidateDeviceName(name); err != nil {
		return nil, fmt.Errorf("invalid device name: %w", err)
	}
	if err := validation.ValidateSecret(secret); err != nil {
		return nil, fmt.Errorf("invalid secret: %w", err)
	}

	resp, err := s.apiClient.Register(ctx, pkgapi.RegisterRequest{Name: name, Secret: secret})
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}

	return &RegisterResult{
		DeviceID:   resp.DeviceID,
		DeviceName: name,
	}, nil
}

// Login получает токен и сохраняет сессию
func (s *AuthService) Login(ctx context.Context, name, secret string) (*storage.AuthData, error) {
	if name == "" || secret == "" {
		return nil, fmt.Errorf("device name and secret are required")
	}

	resp, err := s.apiClient.Login(ctx, pkgapi.LoginRequest{Name: name, Secret: secret})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	authData := &storage.AuthData{
		DeviceName:  name,
		DeviceID:    resp.DeviceID,
		AccessToken: resp.AccessToken,
		ExpiresAt:   s.now().Unix() + resp.ExpiresIn,
	}
	if err := s.storage.SaveAuth(ctx, authData); err != nil {
		return nil, fmt.Errorf("failed to save auth data: %w", err)
	}

	return authData, nil
}

// Token возвращает действующий access token
func (s *AuthService) Token(ctx context.Context) (string, error) {
	authData, err := s.Session(ctx)
	if err != nil {
		return "", err
	}
	if s.now().Unix() >= authData.ExpiresAt {
		return "", ErrSessionExpired
	}
	return authData.AccessToken, nil
}

// Session возвращает сохранённую сессию
func (s *AuthService) Session(ctx context.Context) (*storage.AuthData, error) {
	authData, err := s.storage.GetAuth(ctx)
	if errors.Is(err, storage.ErrAuthNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auth data: %w", err)
	}
	return authData, nil
}

// Logout удаляет локальную сессию
func (s *AuthService) Logout(ctx context.Context) error {
	if err := s.storage.DeleteAuth(ctx); err != nil {
		return fmt.Errorf("failed to delete auth data: %w", err)
	}
	return nil
}
