// Package otp implementa la máquina de estados del challenge OTP por
// fingerprint: emisión, reenvío, verificación, límites y expiración.
//
// No hay timers: expiredAt y nextResendAt se comparan contra el reloj
// inyectado en cada llamada. La emisión es una única transacción con fence
// de versión; un update perdido falla la llamada en vez de reintentar.
package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/phonepass/internal/apperr"
	"github.com/dropDatabas3/phonepass/internal/domain/repository"
	"github.com/dropDatabas3/phonepass/internal/domain/types"
	"github.com/dropDatabas3/phonepass/internal/metrics"
	"github.com/dropDatabas3/phonepass/internal/observability/logger"
	"github.com/dropDatabas3/phonepass/internal/phone"
	"github.com/dropDatabas3/phonepass/internal/rate"
	"github.com/dropDatabas3/phonepass/internal/security/fingerprint"
	"github.com/dropDatabas3/phonepass/internal/security/otphash"
	tokens "github.com/dropDatabas3/phonepass/internal/security/token"
	"github.com/dropDatabas3/phonepass/internal/sms"
)

// Store es lo que el motor necesita del CredentialStore.
type Store interface {
	repository.OtpRepository
	repository.IdentityRepository
	repository.SmsTransactionRepository
}

// Deps son los colaboradores del motor. Limiter y Metrics son opcionales.
type Deps struct {
	Store        Store
	Fingerprints *fingerprint.Hasher
	Codes        *otphash.Hasher
	Sender       sms.Sender
	Limiter      rate.Limiter
	Metrics      *metrics.Metrics
	Rules        Rules

	DefaultRegion   string
	MessageTemplate string
	// SandboxEchoCode devuelve el código en Challenge.SandboxCode (nunca en prod).
	SandboxEchoCode bool
	Now             func() time.Time
}

// Engine es seguro para uso concurrente.
type Engine struct {
	d Deps
}

// Challenge es el estado visible tras emitir un código.
type Challenge struct {
	RequestID        string
	OtpCount         int
	FailAttemptCount int
	NextResendAt     time.Time
	ExpiredAt        time.Time
	SandboxCode      string
}

// Verification es el resultado de un código correcto.
type Verification struct {
	Identity  *repository.Identity
	RequestID string
	Phone     phone.Number
}

func New(d Deps) (*Engine, error) {
	if d.Store == nil || d.Fingerprints == nil || d.Codes == nil || d.Sender == nil {
		return nil, errors.New("otp: store, fingerprints, codes y sender son requeridos")
	}
	if d.Rules == (Rules{}) {
		d.Rules = DefaultRules()
	}
	if err := d.Rules.Validate(); err != nil {
		return nil, err
	}
	if d.Limiter == nil {
		d.Limiter = rate.Noop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Engine{d: d}, nil
}

func (e *Engine) now() time.Time { return e.d.Now().UTC() }

func (e *Engine) newSessionInput(fp string, now time.Time) repository.NewOtpSessionInput {
	return repository.NewOtpSessionInput{
		ID:          uuid.NewString(),
		Fingerprint: fp,
		RequestID:   uuid.NewString(),
		Rule:        e.d.Rules.snapshot(),
		ExpiredAt:   now.Add(e.d.Rules.SessionLifetime),
		Now:         now,
	}
}

// RequestChallenge emite (o reenvía) un código para el teléfono.
func (e *Engine) RequestChallenge(ctx context.Context, rawPhone string) (*Challenge, error) {
	const op = "otp.request_challenge"

	num, err := phone.Normalize(rawPhone, e.d.DefaultRegion)
	if err != nil {
		e.d.Metrics.OtpChallenge(metrics.ResultInvalid)
		return nil, err
	}
	fp := e.d.Fingerprints.Fingerprint(num.E164).Value
	log := logger.From(ctx).With(logger.Component("otp"), logger.Op(op), logger.Fingerprint(fp))
	now := e.now()

	if res, err := e.d.Limiter.Allow(ctx, "otp:"+fp); err != nil {
		log.Warn("throttle no disponible, se continúa sin límite", logger.Err(err))
	} else if !res.Allowed {
		e.d.Metrics.OtpChallenge(metrics.ResultRateLimited)
		return nil, apperr.RateLimited(op, apperr.ReasonRequestThrottled, now.Add(res.RetryAfter))
	}

	sess, err := e.d.Store.FindOrCreateOtpSession(ctx, e.newSessionInput(fp, now))
	if err != nil {
		e.d.Metrics.OtpChallenge(metrics.ResultError)
		return nil, apperr.Internal(op, err)
	}
	if !now.Before(sess.ExpiredAt) {
		log.Debug("sesión vencida, se recrea", logger.SessionID(sess.ID))
		sess, err = e.d.Store.ReplaceOtpSession(ctx, sess.ID, e.newSessionInput(fp, now))
		if err != nil {
			e.d.Metrics.OtpChallenge(metrics.ResultError)
			return nil, apperr.Internal(op, err)
		}
	}

	rule := e.d.Rules.effective(sess.Rule)
	switch {
	case sess.OtpCount >= rule.OtpCountLimit:
		e.d.Metrics.OtpChallenge(metrics.ResultRateLimited)
		return nil, apperr.RateLimited(op, apperr.ReasonOtpCountExceeded, sess.ExpiredAt)
	case sess.FailAttemptCount >= rule.FailAttemptLimit:
		e.d.Metrics.OtpChallenge(metrics.ResultRateLimited)
		return nil, apperr.RateLimited(op, apperr.ReasonFailAttemptsExceeded, sess.ExpiredAt)
	case sess.OtpCount > 0 && sess.NextResendAt != nil && now.Before(*sess.NextResendAt):
		e.d.Metrics.OtpChallenge(metrics.ResultRateLimited)
		return nil, apperr.RateLimited(op, apperr.ReasonResendTooSoon, *sess.NextResendAt)
	}

	code, err := tokens.GenerateNumericCode(rule.CodeLength)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	sig, err := e.d.Codes.Hash(code)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	updated, err := e.d.Store.IssueOtp(ctx, repository.IssueOtpInput{
		SessionID:       sess.ID,
		ExpectedVersion: sess.Version,
		NextResendAt:    now.Add(rule.ResendDelay()),
		Otp: repository.Otp{
			ID:         uuid.NewString(),
			SessionID:  sess.ID,
			SequenceNo: sess.OtpCount + 1,
			Signature:  sig,
			CreatedAt:  now,
		},
	})
	if err != nil {
		// Update perdido contra otro request concurrente: se devuelve tal cual.
		e.d.Metrics.OtpChallenge(metrics.ResultError)
		log.Warn("emisión de otp abortada", logger.SessionID(sess.ID), logger.Err(err))
		return nil, err
	}

	e.deliver(ctx, num, fp, updated.RequestID, code)
	e.d.Metrics.OtpChallenge(metrics.ResultOK)

	out := &Challenge{
		RequestID:        updated.RequestID,
		OtpCount:         updated.OtpCount,
		FailAttemptCount: updated.FailAttemptCount,
		ExpiredAt:        updated.ExpiredAt,
	}
	if updated.NextResendAt != nil {
		out.NextResendAt = *updated.NextResendAt
	}
	if e.d.SandboxEchoCode {
		out.SandboxCode = code
	}
	return out, nil
}

// deliver envía el código. Una falla se registra pero no revierte la emisión.
func (e *Engine) deliver(ctx context.Context, num phone.Number, fp, requestID, code string) {
	log := logger.From(ctx).With(logger.Component("otp"), logger.RequestID(requestID), logger.MaskedPhone(num.E164))

	res, err := e.d.Sender.Send(ctx, num.E164, sms.Render(e.d.MessageTemplate, code), sms.Metadata{RequestID: requestID, Purpose: "otp"})
	tx := repository.SmsTransaction{
		ID:                uuid.NewString(),
		RequestID:         requestID,
		Fingerprint:       fp,
		Provider:          res.Provider,
		Status:            types.SmsSent,
		ProviderMessageID: res.MessageID,
		CreatedAt:         e.now(),
	}
	if err != nil {
		log.Error("fallo el envío del sms", logger.Provider(res.Provider), logger.Err(err))
		tx.Status = types.SmsFailed
		tx.Error = err.Error()
	}
	if err := e.d.Store.RecordSmsTransaction(ctx, tx); err != nil {
		log.Warn("no se pudo registrar la transacción sms", logger.Err(err))
	}
}

// VerifyChallenge valida code contra los códigos vivos de la sesión,
// del más nuevo al más viejo. Un acierto consume la sesión.
func (e *Engine) VerifyChallenge(ctx context.Context, rawPhone, code string) (*Verification, error) {
	const op = "otp.verify_challenge"

	num, err := phone.Normalize(rawPhone, e.d.DefaultRegion)
	if err != nil {
		e.d.Metrics.OtpVerification(metrics.ResultInvalid)
		return nil, err
	}
	fp := e.d.Fingerprints.Fingerprint(num.E164).Value
	log := logger.From(ctx).With(logger.Component("otp"), logger.Op(op), logger.Fingerprint(fp))
	now := e.now()

	sess, otps, err := e.d.Store.GetOtpSession(ctx, fp)
	if err != nil {
		if repository.IsNotFound(err) {
			e.d.Metrics.OtpVerification(metrics.ResultNotFound)
			return nil, apperr.New(apperr.KindSessionNotFound, op, "no active otp session")
		}
		e.d.Metrics.OtpVerification(metrics.ResultError)
		return nil, apperr.Internal(op, err)
	}
	rule := e.d.Rules.effective(sess.Rule)
	if !now.Before(sess.ExpiredAt) {
		e.d.Metrics.OtpVerification(metrics.ResultExpired)
		return nil, apperr.New(apperr.KindSessionExpired, op, "otp session expired")
	}
	if sess.FailAttemptCount >= rule.FailAttemptLimit {
		e.d.Metrics.OtpVerification(metrics.ResultLocked)
		return nil, apperr.RateLimited(op, apperr.ReasonFailAttemptsExceeded, sess.ExpiredAt)
	}

	matched := false
	if code != "" {
		for _, o := range otps {
			if e.d.Codes.Verify(code, o.Signature) {
				matched = true
				break
			}
		}
	}
	if !matched {
		return nil, e.recordFailure(ctx, op, fp, sess)
	}

	deleted, err := e.d.Store.DeleteOtpSession(ctx, sess.ID)
	if err != nil {
		e.d.Metrics.OtpVerification(metrics.ResultError)
		return nil, apperr.Internal(op, err)
	}
	if !deleted {
		// Otro request con el mismo código ganó la carrera.
		e.d.Metrics.OtpVerification(metrics.ResultNotFound)
		return nil, apperr.New(apperr.KindSessionNotFound, op, "otp session already consumed")
	}

	ident, err := e.upsertIdentity(ctx, num, now)
	if err != nil {
		e.d.Metrics.OtpVerification(metrics.ResultError)
		return nil, apperr.Internal(op, err)
	}
	if ident.Status == types.IdentitySuspended {
		e.d.Metrics.OtpVerification(metrics.ResultForbidden)
		log.Info("identidad suspendida", logger.String("identity_id", ident.ID))
		return nil, apperr.New(apperr.KindForbidden, op, "identity is suspended")
	}

	e.d.Metrics.OtpVerification(metrics.ResultOK)
	return &Verification{Identity: ident, RequestID: sess.RequestID, Phone: num}, nil
}

const maxFailureRetries = 3

// recordFailure persiste el intento fallido. Ante un update concurrente relee
// la sesión y reintenta: un intento fallido nunca se pierde.
func (e *Engine) recordFailure(ctx context.Context, op, fp string, sess *repository.OtpSession) error {
	for i := 0; ; i++ {
		_, err := e.d.Store.RecordOtpFailure(ctx, sess.ID, sess.Version)
		if err == nil {
			e.d.Metrics.OtpVerification(metrics.ResultInvalid)
			return apperr.New(apperr.KindInvalidCode, op, "code does not match")
		}
		if !repository.IsStaleVersion(err) || i >= maxFailureRetries {
			e.d.Metrics.OtpVerification(metrics.ResultError)
			return apperr.Internal(op, err)
		}
		fresh, _, gerr := e.d.Store.GetOtpSession(ctx, fp)
		if gerr != nil || fresh.ID != sess.ID {
			e.d.Metrics.OtpVerification(metrics.ResultNotFound)
			return apperr.New(apperr.KindSessionNotFound, op, "otp session replaced")
		}
		if fresh.FailAttemptCount >= e.d.Rules.effective(fresh.Rule).FailAttemptLimit {
			e.d.Metrics.OtpVerification(metrics.ResultLocked)
			return apperr.RateLimited(op, apperr.ReasonFailAttemptsExceeded, fresh.ExpiredAt)
		}
		sess = fresh
	}
}

// upsertIdentity reutiliza la identidad guardada bajo cualquier versión de
// fingerprint configurada; si no hay ninguna la crea con la versión actual.
func (e *Engine) upsertIdentity(ctx context.Context, num phone.Number, now time.Time) (*repository.Identity, error) {
	cands := e.d.Fingerprints.Candidates(num.E164)
	target := cands[0]
	for _, c := range cands {
		_, err := e.d.Store.GetIdentityByFingerprint(ctx, c.Value)
		if err == nil {
			target = c
			break
		}
		if !repository.IsNotFound(err) {
			return nil, fmt.Errorf("lookup identity v%d: %w", c.Version, err)
		}
	}
	return e.d.Store.UpsertVerifiedIdentity(ctx, repository.VerifiedIdentityInput{
		Fingerprint:        target.Value,
		FingerprintVersion: target.Version,
		CountryCode:        num.Region,
		VerifiedAt:         now,
	})
}
