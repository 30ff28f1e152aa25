package validation

import (
	"fmt"
	"math"
	"regexp"
)

// DeviceNamePattern определяет допустимый формат имени устройства
// Латинские буквы, цифры, нижнее подчеркивание и дефис. Длина: 3-32 символа
var DeviceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,32}$`)

const (
	// MinDeviceNameLen минимальная длина имени устройства
	MinDeviceNameLen = 3
	// MaxDeviceNameLen максимальная длина имени устройства
	MaxDeviceNameLen = 32
	// MinSecretLen минимальная длина секрета устройства
	MinSecretLen = 16
	// MaxSecretLen bcrypt учитывает только первые 72 байта
	MaxSecretLen = 72
)

// ValidateDeviceName проверяет, что имя устройства соответствует требованиям
func ValidateDeviceName(name string) error {
	if name == "" {
		return fmt.Errorf("device name cannot be empty")
	}

	if len(name) < MinDeviceNameLen {
		return fmt.Errorf("device name must be at least %d characters long", MinDeviceNameLen)
	}

	if len(name) > MaxDeviceNameLen {
		return fmt.Errorf("device name must not exceed %d characters", MaxDeviceNameLen)
	}

	if !DeviceNamePattern.MatchString(name) {
		return fmt.Errorf("device name can only contain letters, numbers, underscores and dashes")
	}

	return nil
}

// ValidateSecret проверяет длину секрета устройства
func ValidateSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("secret cannot be empty")
	}
	if len(secret) < MinSecretLen {
		return fmt.Errorf("secret must be at least %d characters long", MinSecretLen)
	}
	if len(secret) > MaxSecretLen {
		return fmt.Errorf("secret must not exceed %d bytes", MaxSecretLen)
	}
	return nil
}

// ValidateLevel проверяет, что показание датчика лежит в [0,1]
func ValidateLevel(field string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%s must be within [0,1], got %v", field, v)
	}
	return nil
}
