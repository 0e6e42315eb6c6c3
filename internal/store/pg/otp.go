package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/phonepass/internal/domain/repository"
)

const otpSessionCols = `id, fingerprint, request_id, rule, otp_count, fail_attempt_count, next_resend_at, expired_at, version, created_at`

func scanOtpSession(row pgx.Row) (*repository.OtpSession, error) {
	var s repository.OtpSession
	var rule []byte
	if err := row.Scan(&s.ID, &s.Fingerprint, &s.RequestID, &rule, &s.OtpCount, &s.FailAttemptCount,
		&s.NextResendAt, &s.ExpiredAt, &s.Version, &s.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	if err := json.Unmarshal(rule, &s.Rule); err != nil {
		return nil, fmt.Errorf("otp_session %s: rule: %w", s.ID, err)
	}
	return &s, nil
}

func insertOtpSession(ctx context.Context, q pgx.Tx, in repository.NewOtpSessionInput) error {
	rule, err := json.Marshal(in.Rule)
	if err != nil {
		return err
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	const insert = `
		INSERT INTO otp_session (id, fingerprint, request_id, rule, otp_count, fail_attempt_count, expired_at, version, created_at)
		VALUES ($1, $2, $3, $4, 0, 0, $5, 0, $6)
		ON CONFLICT (fingerprint) DO NOTHING`
	_, err = q.Exec(ctx, insert, id, in.Fingerprint, in.RequestID, rule, in.ExpiredAt, in.Now)
	return err
}

func (s *Store) FindOrCreateOtpSession(ctx context.Context, in repository.NewOtpSessionInput) (*repository.OtpSession, error) {
	var out *repository.OtpSession
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := insertOtpSession(ctx, tx, in); err != nil {
			return err
		}
		sess, err := scanOtpSession(tx.QueryRow(ctx, `SELECT `+otpSessionCols+` FROM otp_session WHERE fingerprint = $1`, in.Fingerprint))
		if err != nil {
			return err
		}
		out = sess
		return nil
	})
	return out, err
}

func (s *Store) ReplaceOtpSession(ctx context.Context, oldID string, in repository.NewOtpSessionInput) (*repository.OtpSession, error) {
	var out *repository.OtpSession
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM otp WHERE session_id = $1`, oldID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM otp_session WHERE id = $1`, oldID); err != nil {
			return err
		}
		if err := insertOtpSession(ctx, tx, in); err != nil {
			return err
		}
		sess, err := scanOtpSession(tx.QueryRow(ctx, `SELECT `+otpSessionCols+` FROM otp_session WHERE fingerprint = $1`, in.Fingerprint))
		if err != nil {
			return err
		}
		out = sess
		return nil
	})
	return out, err
}

func (s *Store) GetOtpSession(ctx context.Context, fp string) (*repository.OtpSession, []repository.Otp, error) {
	sess, err := scanOtpSession(s.db.QueryRow(ctx, `SELECT `+otpSessionCols+` FROM otp_session WHERE fingerprint = $1`, fp))
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, sequence_no, signature, created_at
		FROM otp WHERE session_id = $1 ORDER BY sequence_no DESC`, sess.ID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var otps []repository.Otp
	for rows.Next() {
		var o repository.Otp
		if err := rows.Scan(&o.ID, &o.SessionID, &o.SequenceNo, &o.Signature, &o.CreatedAt); err != nil {
			return nil, nil, err
		}
		otps = append(otps, o)
	}
	return sess, otps, rows.Err()
}

func (s *Store) IssueOtp(ctx context.Context, in repository.IssueOtpInput) (*repository.OtpSession, error) {
	var out *repository.OtpSession
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		const bump = `
			UPDATE otp_session
			SET otp_count = otp_count + 1, next_resend_at = $3, version = version + 1
			WHERE id = $1 AND version = $2
			RETURNING ` + otpSessionCols
		sess, err := scanOtpSession(tx.QueryRow(ctx, bump, in.SessionID, in.ExpectedVersion, in.NextResendAt))
		if errors.Is(err, repository.ErrNotFound) {
			return repository.ErrStaleVersion
		}
		if err != nil {
			return err
		}
		id := in.Otp.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO otp (id, session_id, sequence_no, signature, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			id, in.SessionID, in.Otp.SequenceNo, in.Otp.Signature, in.Otp.CreatedAt); err != nil {
			return mapErr(err)
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) RecordOtpFailure(ctx context.Context, sessionID string, expectedVersion int) (*repository.OtpSession, error) {
	const q = `
		UPDATE otp_session
		SET fail_attempt_count = fail_attempt_count + 1, version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING ` + otpSessionCols
	sess, err := scanOtpSession(s.db.QueryRow(ctx, q, sessionID, expectedVersion))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, repository.ErrStaleVersion
	}
	return sess, err
}

func (s *Store) DeleteOtpSession(ctx context.Context, sessionID string) (bool, error) {
	deleted := false
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM otp WHERE session_id = $1`, sessionID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM otp_session WHERE id = $1`, sessionID)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected() == 1
		return nil
	})
	return deleted, err
}
