package repository

import (
	"context"
	"time"
)

// ExchangeSession respalda un exchange token emitido.
type ExchangeSession struct {
	ID              string
	ExternalID      string
	AppUserID       string
	AppCredentialID string
	IV              []byte
	ExpiredAt       time.Time
	RequestID       string
	CreatedAt       time.Time
}

// ExchangeRepository persiste sesiones de exchange.
type ExchangeRepository interface {
	// CreateExchangeSession inserta la sesión. ErrConflict si external_id ya existe.
	CreateExchangeSession(ctx context.Context, s *ExchangeSession) error

	// GetExchangeSessionByExternalID busca por la mitad pública del token. ErrNotFound si no existe.
	GetExchangeSessionByExternalID(ctx context.Context, externalID string) (*ExchangeSession, error)

	// DeleteExchangeSession borra la sesión. deleted=false si ya no existía.
	DeleteExchangeSession(ctx context.Context, id string) (deleted bool, err error)

	// DeleteExpiredExchangeSessions borra las sesiones con expired_at <= now.
	DeleteExpiredExchangeSessions(ctx context.Context, now time.Time) (int64, error)
}
