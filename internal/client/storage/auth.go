package storage

import (
	"context"
)

// AuthStorage defines interface for storing device session on client
type AuthStorage interface {
	// SaveAuth stores session of the registered device
	SaveAuth(ctx context.Context, auth *AuthData) error

	// GetAuth retrieves stored session
	// Returns ErrAuthNotFound if no auth data exists
	GetAuth(ctx context.Context) (*AuthData, error)

	// DeleteAuth removes stored session (logout)
	DeleteAuth(ctx context.Context) error
}

// AuthData represents device session in storage
type AuthData struct {
	DeviceName  string `json:"device_name"`
	DeviceID    string `json:"device_id"`
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // ExpiresAt unix seconds
}
