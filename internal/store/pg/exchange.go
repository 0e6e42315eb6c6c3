package pg

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/phonepass/internal/domain/repository"
)

func (s *Store) CreateExchangeSession(ctx context.Context, e *repository.ExchangeSession) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO exchange_session (id, external_id, app_user_id, app_credential_id, iv, expired_at, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.Exec(ctx, q, e.ID, e.ExternalID, e.AppUserID, e.AppCredentialID, e.IV, e.ExpiredAt, e.RequestID, e.CreatedAt)
	return mapErr(err)
}

func (s *Store) GetExchangeSessionByExternalID(ctx context.Context, externalID string) (*repository.ExchangeSession, error) {
	const q = `
		SELECT id, external_id, app_user_id, app_credential_id, iv, expired_at, request_id, created_at
		FROM exchange_session WHERE external_id = $1`
	var e repository.ExchangeSession
	err := s.db.QueryRow(ctx, q, externalID).Scan(
		&e.ID, &e.ExternalID, &e.AppUserID, &e.AppCredentialID, &e.IV, &e.ExpiredAt, &e.RequestID, &e.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &e, nil
}

func (s *Store) DeleteExchangeSession(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM exchange_session WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) DeleteExpiredExchangeSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM exchange_session WHERE expired_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
