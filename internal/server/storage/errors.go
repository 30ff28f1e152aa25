package storage

import "errors"

// Common storage errors
var (
	// ErrDeviceNotFound indicates that device was not found in storage
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceAlreadyExists indicates that device with this name already exists
	ErrDeviceAlreadyExists = errors.New("device already exists")

	// ErrChangeExists indicates that change record with this seq is already stored
	ErrChangeExists = errors.New("change record already exists")
)
