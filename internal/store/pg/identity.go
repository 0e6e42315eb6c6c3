package pg

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/phonepass/internal/domain/repository"
	"github.com/dropDatabas3/phonepass/internal/domain/types"
)

const identityCols = `id, fingerprint, fingerprint_version, country_code, status, last_verified_at, created_at`

func scanIdentity(row pgx.Row) (*repository.Identity, error) {
	var i repository.Identity
	var status string
	if err := row.Scan(&i.ID, &i.Fingerprint, &i.FingerprintVersion, &i.CountryCode, &status, &i.LastVerifiedAt, &i.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	i.Status = types.IdentityStatus(status)
	return &i, nil
}

func (s *Store) GetIdentity(ctx context.Context, id string) (*repository.Identity, error) {
	return scanIdentity(s.db.QueryRow(ctx, `SELECT `+identityCols+` FROM identity WHERE id = $1`, id))
}

func (s *Store) GetIdentityByFingerprint(ctx context.Context, fp string) (*repository.Identity, error) {
	return scanIdentity(s.db.QueryRow(ctx, `SELECT `+identityCols+` FROM identity WHERE fingerprint = $1`, fp))
}

func (s *Store) UpsertVerifiedIdentity(ctx context.Context, in repository.VerifiedIdentityInput) (*repository.Identity, error) {
	const q = `
		INSERT INTO identity (id, fingerprint, fingerprint_version, country_code, status, last_verified_at, created_at)
		VALUES ($1, $2, $3, $4, 'verified', $5, $5)
		ON CONFLICT (fingerprint) DO UPDATE SET
			last_verified_at = EXCLUDED.last_verified_at,
			country_code = COALESCE(NULLIF(EXCLUDED.country_code, ''), identity.country_code),
			status = CASE WHEN identity.status = 'suspended' THEN identity.status ELSE 'verified' END
		RETURNING ` + identityCols
	return scanIdentity(s.db.QueryRow(ctx, q,
		uuid.NewString(), in.Fingerprint, in.FingerprintVersion, in.CountryCode, in.VerifiedAt))
}

func (s *Store) SetIdentityStatus(ctx context.Context, id string, status types.IdentityStatus) error {
	tag, err := s.db.Exec(ctx, `UPDATE identity SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
