package storage

import (
	"context"
	"time"

	"github.com/iudanet/soundlines/internal/models"
)

// DeviceStorage defines interface for registered device persistence
type DeviceStorage interface {
	// CreateDevice creates a new device in the storage
	// Returns ErrDeviceAlreadyExists if name is taken
	CreateDevice(ctx context.Context, device *models.Device) error

	// GetDeviceByName retrieves device by its unique name
	// Returns ErrDeviceNotFound if device doesn't exist
	GetDeviceByName(ctx context.Context, name string) (*models.Device, error)

	// GetDeviceByID retrieves device by ID
	// Returns ErrDeviceNotFound if device doesn't exist
	GetDeviceByID(ctx context.Context, id string) (*models.Device, error)

	// UpdateLastSeen updates the last login timestamp
	UpdateLastSeen(ctx context.Context, id string, seenAt time.Time) error
}
