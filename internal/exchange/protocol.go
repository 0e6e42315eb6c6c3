// Package exchange implementa el exchange token: credencial de un solo uso
// que prueba "esta identidad fue verificada para este AppUser".
//
// Formato: <externalId de 24 alfanuméricos>/<base64(ciphertext)>. El
// externalId es la clave de búsqueda sin descifrar; el ciphertext es
// AES-256-GCM con el IV de la sesión y el externalId como dato asociado.
package exchange

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/phonepass/internal/apperr"
	"github.com/dropDatabas3/phonepass/internal/domain/repository"
	"github.com/dropDatabas3/phonepass/internal/domain/types"
	"github.com/dropDatabas3/phonepass/internal/metrics"
	"github.com/dropDatabas3/phonepass/internal/observability/logger"
	"github.com/dropDatabas3/phonepass/internal/security/secretbox"
	tokens "github.com/dropDatabas3/phonepass/internal/security/token"
)

const (
	ExternalIDLength = 24
	DefaultLifetime  = 5 * time.Minute
	mintAttempts     = 3
)

// Store es lo que el protocolo necesita del CredentialStore.
type Store interface {
	repository.ExchangeRepository
	repository.AppUserRepository
	repository.IdentityRepository
}

type Deps struct {
	Store    Store
	Box      *secretbox.Box
	Lifetime time.Duration
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Protocol emite y canjea exchange tokens.
type Protocol struct {
	d Deps
}

func New(d Deps) (*Protocol, error) {
	if d.Store == nil || d.Box == nil {
		return nil, errors.New("exchange: store y box son requeridos")
	}
	if d.Lifetime <= 0 {
		d.Lifetime = DefaultLifetime
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Protocol{d: d}, nil
}

func (p *Protocol) now() time.Time { return p.d.Now().UTC() }

// payload es lo que viaja cifrado.
type payload struct {
	ExternalID        string `json:"externalId"`
	AppID             string `json:"appId"`
	AppUserExternalID string `json:"appUserExternalId"`
	ExpiredAt         int64  `json:"expiredAt"`
}

type MintInput struct {
	AppUser         *repository.AppUser
	AppCredentialID string
	RequestID       string
}

type Minted struct {
	Token     string
	ExpiredAt time.Time
	SessionID string
}

// Mint persiste una ExchangeSession y devuelve su token.
func (p *Protocol) Mint(ctx context.Context, in MintInput) (*Minted, error) {
	const op = "exchange.mint"
	if in.AppUser == nil || in.AppCredentialID == "" {
		return nil, apperr.New(apperr.KindValidationFailed, op, "app user and credential are required")
	}
	now := p.now()
	expiredAt := now.Add(p.d.Lifetime).Truncate(time.Second)

	var sess *repository.ExchangeSession
	for attempt := 1; ; attempt++ {
		extID, err := tokens.GenerateAlphanumeric(ExternalIDLength)
		if err != nil {
			return nil, apperr.Internal(op, err)
		}
		iv, err := secretbox.NewIV()
		if err != nil {
			return nil, apperr.Internal(op, err)
		}
		sess = &repository.ExchangeSession{
			ID:              uuid.NewString(),
			ExternalID:      extID,
			AppUserID:       in.AppUser.ID,
			AppCredentialID: in.AppCredentialID,
			IV:              iv,
			ExpiredAt:       expiredAt,
			RequestID:       in.RequestID,
			CreatedAt:       now,
		}
		err = p.d.Store.CreateExchangeSession(ctx, sess)
		if err == nil {
			break
		}
		if !repository.IsConflict(err) || attempt >= mintAttempts {
			return nil, apperr.Internal(op, err)
		}
	}

	pt, err := json.Marshal(payload{
		ExternalID:        sess.ExternalID,
		AppID:             in.AppUser.AppID,
		AppUserExternalID: in.AppUser.ExternalID,
		ExpiredAt:         expiredAt.Unix(),
	})
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	ct, err := p.d.Box.Seal(sess.IV, pt, []byte(sess.ExternalID))
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	logger.From(ctx).Debug("exchange token emitido",
		logger.Component("exchange"), logger.SessionID(sess.ID), logger.AppUserID(in.AppUser.ID))
	return &Minted{
		Token:     sess.ExternalID + "/" + base64.StdEncoding.EncodeToString(ct),
		ExpiredAt: expiredAt,
		SessionID: sess.ID,
	}, nil
}

// Redemption es el resultado de un canje válido.
type Redemption struct {
	SessionID         string
	AppID             string
	AppCredentialID   string
	AppUserID         string
	AppUserExternalID string
	CountryCode       string
	RequestID         string
	// Rotated indica que el canje rotó el external id por un reset pendiente.
	Rotated bool
}

// parse separa externalId y ciphertext. Acepta tokens percent-encoded.
func parse(token string) (string, []byte, bool) {
	token = strings.TrimSpace(token)
	if strings.Contains(token, "%") {
		if dec, err := url.PathUnescape(token); err == nil {
			token = dec
		}
	}
	extID, ctB64, ok := strings.Cut(token, "/")
	if !ok || !tokens.IsAlphanumeric(extID, ExternalIDLength) || ctB64 == "" {
		return "", nil, false
	}
	ct, err := base64.StdEncoding.DecodeString(ctB64)
	if err != nil {
		return "", nil, false
	}
	return extID, ct, true
}

// Redeem valida el token sin consumirlo. El llamador debe invocar Clear.
func (p *Protocol) Redeem(ctx context.Context, token string) (*Redemption, error) {
	const op = "exchange.redeem"
	red, result, err := p.redeem(ctx, op, token, "")
	p.d.Metrics.ExchangeRedemption(result)
	return red, err
}

// RedeemForApp es Redeem restringido a tokens de appID. Un token de otra app
// devuelve Forbidden sin rotar el external id ni tocar la sesión.
func (p *Protocol) RedeemForApp(ctx context.Context, token, appID string) (*Redemption, error) {
	const op = "exchange.redeem"
	if appID == "" {
		return nil, apperr.New(apperr.KindValidationFailed, op, "app id is required")
	}
	red, result, err := p.redeem(ctx, op, token, appID)
	p.d.Metrics.ExchangeRedemption(result)
	return red, err
}

func (p *Protocol) redeem(ctx context.Context, op, token, appID string) (*Redemption, string, error) {
	invalid := func(msg string) (*Redemption, string, error) {
		return nil, metrics.ResultInvalid, apperr.New(apperr.KindInvalidToken, op, msg)
	}

	extID, ct, ok := parse(token)
	if !ok {
		return invalid("malformed token")
	}
	sess, err := p.d.Store.GetExchangeSessionByExternalID(ctx, extID)
	if err != nil {
		if repository.IsNotFound(err) {
			return invalid("unknown token")
		}
		return nil, metrics.ResultError, apperr.Internal(op, err)
	}
	log := logger.From(ctx).With(logger.Component("exchange"), logger.SessionID(sess.ID))

	now := p.now()
	if !now.Before(sess.ExpiredAt) {
		return nil, metrics.ResultExpired, apperr.New(apperr.KindTokenExpired, op, "token expired")
	}

	pt, err := p.d.Box.Open(sess.IV, ct, []byte(sess.ExternalID))
	if err != nil {
		log.Info("exchange token no descifra")
		return invalid("token does not decrypt")
	}
	var pl payload
	if err := json.Unmarshal(pt, &pl); err != nil {
		return invalid("token payload is malformed")
	}

	au, err := p.d.Store.GetAppUser(ctx, sess.AppUserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return invalid("bound app user not found")
		}
		return nil, metrics.ResultError, apperr.Internal(op, err)
	}
	if pl.ExternalID != sess.ExternalID ||
		pl.AppID != au.AppID ||
		pl.AppUserExternalID != au.ExternalID ||
		pl.ExpiredAt != sess.ExpiredAt.Unix() {
		log.Info("exchange token no coincide con la sesión", logger.AppUserID(au.ID))
		return invalid("token does not match its session")
	}
	if appID != "" && au.AppID != appID {
		log.Warn("canje de token de otra app", logger.AppID(appID))
		return nil, metrics.ResultForbidden, apperr.New(apperr.KindForbidden, op, "token belongs to another app")
	}
	if au.AccessStatus != types.AccessGranted {
		return nil, metrics.ResultForbidden, apperr.New(apperr.KindForbidden, op, "access denied for app user")
	}

	rotated := false
	if au.MarkReset {
		au, err = p.d.Store.RotateAppUserExternalID(ctx, repository.RotateExternalIDInput{
			AppUserID:     au.ID,
			OldExternalID: au.ExternalID,
			NewExternalID: uuid.NewString(),
			Now:           now,
		})
		if err != nil {
			if repository.IsConflict(err) {
				// otro canje rotó primero: este token ya quedó viejo
				return invalid("app user external id was rotated concurrently")
			}
			return nil, metrics.ResultError, apperr.Internal(op, err)
		}
		rotated = true
		log.Info("external id rotado por reset", logger.AppUserID(au.ID))
	}

	ident, err := p.d.Store.GetIdentity(ctx, au.IdentityID)
	if err != nil {
		return nil, metrics.ResultError, apperr.Internal(op, err)
	}

	return &Redemption{
		SessionID:         sess.ID,
		AppID:             au.AppID,
		AppCredentialID:   sess.AppCredentialID,
		AppUserID:         au.ID,
		AppUserExternalID: au.ExternalID,
		CountryCode:       ident.CountryCode,
		RequestID:         sess.RequestID,
		Rotated:           rotated,
	}, metrics.ResultOK, nil
}

// Clear consume la sesión y barre las vencidas. Ante canjes concurrentes
// solo uno borra la fila; el resto recibe InvalidToken.
func (p *Protocol) Clear(ctx context.Context, sessionID string) error {
	const op = "exchange.clear"
	deleted, err := p.d.Store.DeleteExchangeSession(ctx, sessionID)
	if err != nil {
		return apperr.Internal(op, err)
	}
	if !deleted {
		return apperr.New(apperr.KindInvalidToken, op, "token already used")
	}
	p.Sweep(ctx)
	return nil
}

// Sweep borra las sesiones vencidas. Los errores solo se loguean.
func (p *Protocol) Sweep(ctx context.Context) int64 {
	n, err := p.d.Store.DeleteExpiredExchangeSessions(ctx, p.now())
	if err != nil {
		logger.From(ctx).Warn("barrido de exchange sessions falló", logger.Component("exchange"), logger.Err(err))
		return 0
	}
	if n > 0 {
		logger.From(ctx).Debug("exchange sessions vencidas borradas", logger.Component("exchange"), logger.Int64("count", n))
	}
	return n
}

// Exchange es el canje de un solo uso que se expone al partner: Redeem + Clear.
func (p *Protocol) Exchange(ctx context.Context, token string) (*Redemption, error) {
	red, err := p.Redeem(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := p.Clear(ctx, red.SessionID); err != nil {
		return nil, err
	}
	return red, nil
}
