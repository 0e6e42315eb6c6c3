package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/phonepass/internal/domain/repository"
	"github.com/dropDatabas3/phonepass/internal/domain/types"
)

func (s *Store) GetApp(ctx context.Context, id string) (*repository.App, error) {
	const q = `SELECT id, external_id, owner_id, status, config, created_at FROM app WHERE id = $1`
	var a repository.App
	var status string
	var cfg []byte
	if err := s.db.QueryRow(ctx, q, id).Scan(&a.ID, &a.ExternalID, &a.OwnerID, &status, &cfg, &a.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	a.Status = types.AppStatus(status)
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &a.Config); err != nil {
			return nil, fmt.Errorf("app %s: config: %w", a.ID, err)
		}
	}
	return &a, nil
}

const credentialCols = `id, app_id, type, client_id, client_secret, status, created_at`

func scanCredential(row pgx.Row) (*repository.AppCredential, error) {
	var c repository.AppCredential
	var typ, status string
	if err := row.Scan(&c.ID, &c.AppID, &typ, &c.ClientID, &c.ClientSecret, &status, &c.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	c.Type = types.CredentialType(typ)
	c.Status = types.CredentialStatus(status)
	return &c, nil
}

func (s *Store) GetCredential(ctx context.Context, id string) (*repository.AppCredential, error) {
	return scanCredential(s.db.QueryRow(ctx, `SELECT `+credentialCols+` FROM app_credential WHERE id = $1`, id))
}

func (s *Store) GetCredentialByClientID(ctx context.Context, clientID string) (*repository.AppCredential, error) {
	return scanCredential(s.db.QueryRow(ctx, `SELECT `+credentialCols+` FROM app_credential WHERE client_id = $1`, clientID))
}

func (s *Store) RotateCredentialSecret(ctx context.Context, clientID, newSecret string) error {
	tag, err := s.db.Exec(ctx, `UPDATE app_credential SET client_secret = $2 WHERE client_id = $1`, clientID, newSecret)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) SetCredentialStatus(ctx context.Context, clientID string, status types.CredentialStatus) error {
	if !status.IsValid() {
		return repository.ErrInvalidInput
	}
	tag, err := s.db.Exec(ctx, `UPDATE app_credential SET status = $2 WHERE client_id = $1`, clientID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
