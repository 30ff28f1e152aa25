package api

// RegisterRequest запрос на регистрацию телефона
type RegisterRequest struct {
	Name   string `json:"name"`   // уникальное имя устройства
	Secret string `json:"secret"` // секрет устройства, на сервере хранится только bcrypt хеш
}

// RegisterResponse ответ на успешную регистрацию
type RegisterResponse struct {
	DeviceID string `json:"device_id"` // UUID устройства
	Message  string `json:"message"`
}

// LoginRequest запрос на получение токена
type LoginRequest struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// TokenResponse ответ с токеном доступа
type TokenResponse struct {
	AccessToken string `json:"access_token"` // JWT access token
	DeviceID    string `json:"device_id"`
	ExpiresIn   int64  `json:"expires_in"` // время жизни токена в секундах
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}

// StatusResponse короткий ответ без данных
type StatusResponse struct {
	Status string `json:"status"`
	Seq    int64  `json:"seq,omitempty"`
}
