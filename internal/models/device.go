package models

import "time"

// Device представляет зарегистрированный телефон
type Device struct {
	CreatedAt  time.Time `json:"created_at"`   // время регистрации
	LastSeenAt time.Time `json:"last_seen_at"` // время последнего входа
	ID         string    `json:"id"`           // UUID устройства, он же client id для курсора
	Name       string    `json:"name"`         // уникальное имя устройства
	SecretHash string    `json:"-"`            // bcrypt хеш секрета устройства
}

// ClientCursor позиция клиента в журнале изменений
type ClientCursor struct {
	UpdatedAt time.Time `json:"updated_at"` // UpdatedAt время последнего подтверждения
	SeenAt    time.Time `json:"seen_at"`    // SeenAt время последнего обращения клиента
	ClientID  string    `json:"client_id"`
	LastSeq   int64     `json:"last_seq"` // LastSeq последний подтверждённый seq
}
