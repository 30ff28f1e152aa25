package handlers

import "context"

// contextKey тип для ключей контекста
type contextKey string

const (
	// DeviceIDKey ключ для хранения device_id в контексте
	DeviceIDKey contextKey = "device_id"
	// DeviceNameKey ключ для хранения имени устройства в контексте
	DeviceNameKey contextKey = "device_name"
)

// GetDeviceID извлекает device_id из контекста запроса
func GetDeviceID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(DeviceIDKey).(string)
	return id, ok && id != ""
}

// GetDeviceName извлекает имя устройства из контекста запроса
func GetDeviceName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(DeviceNameKey).(string)
	return name, ok
}

// WithDevice кладёт устройство в контекст (используется AuthMiddleware)
func WithDevice(ctx context.Context, id, name string) context.Context {
	ctx = context.WithValue(ctx, DeviceIDKey, id)
	return context.WithValue(ctx, DeviceNameKey, name)
}
