package pg

import (
	"context"

	"github.com/google/uuid"

	"github.com/dropDatabas3/phonepass/internal/domain/repository"
)

func (s *Store) RecordSmsTransaction(ctx context.Context, t repository.SmsTransaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO sms_transaction (id, request_id, fingerprint, provider, status, provider_message_id, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.Exec(ctx, q, t.ID, t.RequestID, t.Fingerprint, t.Provider, string(t.Status), t.ProviderMessageID, t.Error, t.CreatedAt)
	return err
}
