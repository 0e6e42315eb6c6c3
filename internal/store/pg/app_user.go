package pg

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/phonepass/internal/domain/repository"
	"github.com/dropDatabas3/phonepass/internal/domain/types"
)

const appUserCols = `id, app_id, identity_id, external_id, access_status, mark_reset, created_at, updated_at`

func scanAppUser(row pgx.Row) (*repository.AppUser, error) {
	var u repository.AppUser
	var access string
	if err := row.Scan(&u.ID, &u.AppID, &u.IdentityID, &u.ExternalID, &access, &u.MarkReset, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	u.AccessStatus = types.AccessStatus(access)
	return &u, nil
}

func (s *Store) GetAppUser(ctx context.Context, id string) (*repository.AppUser, error) {
	return scanAppUser(s.db.QueryRow(ctx, `SELECT `+appUserCols+` FROM app_user WHERE id = $1`, id))
}

func (s *Store) FindOrCreateAppUser(ctx context.Context, in repository.FindOrCreateAppUserInput) (*repository.AppUser, bool, error) {
	const insert = `
		INSERT INTO app_user (id, app_id, identity_id, external_id, access_status, mark_reset, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'granted', false, $5, $5)
		ON CONFLICT (app_id, identity_id) DO NOTHING
		RETURNING ` + appUserCols
	u, err := scanAppUser(s.db.QueryRow(ctx, insert, uuid.NewString(), in.AppID, in.IdentityID, in.ExternalID, in.Now))
	if err == nil {
		return u, true, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}
	// ya existía: DO NOTHING no devuelve filas
	u, err = scanAppUser(s.db.QueryRow(ctx,
		`SELECT `+appUserCols+` FROM app_user WHERE app_id = $1 AND identity_id = $2`, in.AppID, in.IdentityID))
	if err != nil {
		return nil, false, err
	}
	return u, false, nil
}

func (s *Store) MarkAppUserReset(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `UPDATE app_user SET mark_reset = true, updated_at = $2 WHERE id = $1`, id, s.now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) SetAppUserAccess(ctx context.Context, id string, status types.AccessStatus) error {
	tag, err := s.db.Exec(ctx, `UPDATE app_user SET access_status = $2, updated_at = $3 WHERE id = $1`, id, string(status), s.now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) RotateAppUserExternalID(ctx context.Context, in repository.RotateExternalIDInput) (*repository.AppUser, error) {
	var out *repository.AppUser
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		const rotate = `
			UPDATE app_user SET external_id = $3, mark_reset = false, updated_at = $4
			WHERE id = $1 AND external_id = $2 AND mark_reset
			RETURNING ` + appUserCols
		u, err := scanAppUser(tx.QueryRow(ctx, rotate, in.AppUserID, in.OldExternalID, in.NewExternalID, in.Now))
		if errors.Is(err, repository.ErrNotFound) {
			return repository.ErrConflict
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE identity SET last_verified_at = $2 WHERE id = $1`, u.IdentityID, in.Now); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
