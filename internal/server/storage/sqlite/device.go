package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/soundlines/internal/models"
	"github.com/iudanet/soundlines/internal/server/storage"
)

// CreateDevice creates a new device in the storage
func (s *Storage) CreateDevice(ctx context.Context, device *models.Device) error {
	query := `
		INSERT INTO devices (id, name, secret_hash, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
	`

	var lastSeen sql.NullTime
	if !device.LastSeenAt.IsZero() {
		lastSeen = sql.NullTime{Time: device.LastSeenAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		device.SecretHash,
		device.CreatedAt,
		lastSeen,
	)

	if err != nil {
		// Проверяем на duplicate name
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return storage.ErrDeviceAlreadyExists
		}
		return fmt.Errorf("failed to insert device: %w", err)
	}

	return nil
}

// GetDeviceByName retrieves device by name
func (s *Storage) GetDeviceByName(ctx context.Context, name string) (*models.Device, error) {
	query := `
		SELECT id, name, secret_hash, created_at, last_seen_at
		FROM devices
		WHERE name = ?
	`
	return s.scanDevice(s.db.QueryRowContext(ctx, query, name))
}

// GetDeviceByID retrieves device by ID
func (s *Storage) GetDeviceByID(ctx context.Context, id string) (*models.Device, error) {
	query := `
		SELECT id, name, secret_hash, created_at, last_seen_at
		FROM devices
		WHERE id = ?
	`
	return s.scanDevice(s.db.QueryRowContext(ctx, query, id))
}

func (s *Storage) scanDevice(row *sql.Row) (*models.Device, error) {
	device := &models.Device{}
	var lastSeen sql.NullTime

	err := row.Scan(
		&device.ID,
		&device.Name,
		&device.SecretHash,
		&device.CreatedAt,
		&lastSeen,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	if lastSeen.Valid {
		device.LastSeenAt = lastSeen.Time
	}

	return device, nil
}

// UpdateLastSeen updates the last login timestamp
func (s *Storage) UpdateLastSeen(ctx context.Context, id string, seenAt time.Time) error {
	query := `UPDATE devices SET last_seen_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, seenAt, id)
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrDeviceNotFound
	}

	return nil
}
