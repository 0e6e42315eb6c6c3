// Package weblogin firma los tokens que encadenan el login web
// (request-otp → login → redirect) sin guardar sesión en el servidor.
//
// Cada token tiene dos firmas: el JWT HS256 con el secreto del servidor
// (lo emitimos nosotros) y un HMAC interno con el secreto de la credencial
// del partner (sigue siendo válida). Rotar o desactivar la credencial
// invalida los tokens en vuelo aunque el JWT siga vigente.
package weblogin

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/phonepass/internal/apperr"
	"github.com/dropDatabas3/phonepass/internal/domain/repository"
	"github.com/dropDatabas3/phonepass/internal/domain/types"
	"github.com/dropDatabas3/phonepass/internal/metrics"
	"github.com/dropDatabas3/phonepass/internal/observability/logger"
)

// Purpose es el paso del flujo al que está atado un token.
type Purpose string

const (
	PurposeRequestOtp         Purpose = "request-otp"
	PurposeLogin              Purpose = "login"
	PurposeRecoveryRequestOtp Purpose = "recovery-request-otp"
	PurposeRecovery           Purpose = "recovery"
)

func (p Purpose) IsValid() bool {
	switch p {
	case PurposeRequestOtp, PurposeLogin, PurposeRecoveryRequestOtp, PurposeRecovery:
		return true
	}
	return false
}

// Source elige la URL de redirect configurada en la app.
type Source string

const (
	SourceWeb    Source = "web"
	SourceMobile Source = "mobile"
)

const DefaultLifetime = 10 * time.Minute

// CredentialSource busca credenciales sin cache: la revocación tiene que verse al instante.
type CredentialSource interface {
	GetCredentialByClientID(ctx context.Context, clientID string) (*repository.AppCredential, error)
}

// AppSource resuelve apps (normalmente cacheadas).
type AppSource interface {
	GetApp(ctx context.Context, id string) (*repository.App, error)
}

type Deps struct {
	Credentials   CredentialSource
	Apps          AppSource
	SigningSecret []byte
	ServerSalt    string
	Lifetime      time.Duration
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

type Signer struct {
	d Deps
}

func New(d Deps) (*Signer, error) {
	if d.Credentials == nil || d.Apps == nil {
		return nil, errors.New("weblogin: credentials y apps son requeridos")
	}
	if len(d.SigningSecret) < 32 {
		return nil, errors.New("weblogin: signing secret debe tener al menos 32 bytes")
	}
	if d.Lifetime <= 0 {
		d.Lifetime = DefaultLifetime
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Signer{d: d}, nil
}

type claims struct {
	Purpose   string `json:"purpose"`
	Signature string `json:"signature"`
	jwtv5.RegisteredClaims
}

func (s *Signer) innerSignature(clientSecret string, purpose Purpose, sessionID, clientID string) string {
	m := hmac.New(sha256.New, []byte(clientSecret))
	m.Write([]byte(string(purpose) + sessionID + clientID + s.d.ServerSalt))
	return hex.EncodeToString(m.Sum(nil))
}

type IssueInput struct {
	ClientID     string
	ClientSecret string
	Purpose      Purpose
	// SessionID se genera si viene vacío; los pasos siguientes lo reutilizan.
	SessionID string
	Lifetime  time.Duration
}

type Issued struct {
	Token     string
	ExpiredAt time.Time
	SessionID string
}

// Issue firma un token para un paso del flujo.
func (s *Signer) Issue(_ context.Context, in IssueInput) (*Issued, error) {
	const op = "weblogin.issue"
	if in.ClientID == "" || in.ClientSecret == "" {
		return nil, apperr.New(apperr.KindValidationFailed, op, "client credentials are required")
	}
	if !in.Purpose.IsValid() {
		return nil, apperr.New(apperr.KindValidationFailed, op, "unknown purpose "+string(in.Purpose))
	}
	if in.SessionID == "" {
		in.SessionID = uuid.NewString()
	}
	ttl := in.Lifetime
	if ttl <= 0 {
		ttl = s.d.Lifetime
	}
	now := s.d.Now().UTC().Truncate(time.Second)
	exp := now.Add(ttl)

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims{
		Purpose:   string(in.Purpose),
		Signature: s.innerSignature(in.ClientSecret, in.Purpose, in.SessionID, in.ClientID),
		RegisteredClaims: jwtv5.RegisteredClaims{
			Subject:   in.ClientID,
			ID:        in.SessionID,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(exp),
		},
	})
	signed, err := tk.SignedString(s.d.SigningSecret)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return &Issued{Token: signed, ExpiredAt: exp, SessionID: in.SessionID}, nil
}

type ValidateInput struct {
	Token   string
	Purpose Purpose
	Source  Source
}

// Session es lo que un token válido habilita para el siguiente paso.
type Session struct {
	ClientID        string
	ClientSecret    string
	AppCredentialID string
	AppID           string
	EnvironmentID   string
	SessionID       string
	RedirectURL     string
	ExpiredAt       time.Time
}

// Validate verifica ambas firmas para el propósito pedido y resuelve el redirect.
func (s *Signer) Validate(ctx context.Context, in ValidateInput) (*Session, error) {
	const op = "weblogin.validate"
	sess, result, err := s.validate(ctx, op, in)
	s.d.Metrics.WebLoginValidation(string(in.Purpose), result)
	return sess, err
}

func (s *Signer) validate(ctx context.Context, op string, in ValidateInput) (*Session, string, error) {
	var c claims
	_, err := jwtv5.ParseWithClaims(in.Token, &c,
		func(*jwtv5.Token) (any, error) { return s.d.SigningSecret, nil },
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithTimeFunc(s.d.Now),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, metrics.ResultExpired, apperr.Wrap(err, apperr.KindTokenExpired, op, "web login token expired")
		}
		return nil, metrics.ResultInvalid, apperr.Wrap(err, apperr.KindInvalidToken, op, "web login token is not valid")
	}
	if c.Subject == "" || c.ID == "" || c.Signature == "" {
		return nil, metrics.ResultInvalid, apperr.New(apperr.KindInvalidToken, op, "web login token is incomplete")
	}
	log := logger.From(ctx).With(logger.Component("weblogin"), logger.ClientID(c.Subject), logger.SessionID(c.ID))

	badCred := func(msg string) (*Session, string, error) {
		log.Info("token web-login rechazado", logger.String("reason", msg))
		return nil, metrics.ResultInvalid, apperr.New(apperr.KindInvalidCredential, op, msg)
	}
	cred, err := s.d.Credentials.GetCredentialByClientID(ctx, c.Subject)
	if err != nil {
		if repository.IsNotFound(err) {
			return badCred("credential not found")
		}
		return nil, metrics.ResultError, apperr.Internal(op, err)
	}
	if !cred.IsActive() || cred.Type != types.CredentialWebLogin {
		return badCred("credential is not an active web login credential")
	}
	expected := s.innerSignature(cred.ClientSecret, in.Purpose, c.ID, c.Subject)
	if !hmac.Equal([]byte(expected), []byte(c.Signature)) {
		return badCred("signature mismatch")
	}

	app, err := s.d.Apps.GetApp(ctx, cred.AppID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, metrics.ResultNotFound, apperr.New(apperr.KindNotFound, op, "app not found")
		}
		return nil, metrics.ResultError, apperr.Internal(op, err)
	}
	var redirect string
	switch in.Source {
	case SourceWeb:
		redirect = app.Config.WebRedirectURL
	case SourceMobile:
		redirect = app.Config.MobileRedirectURL
	default:
		return nil, metrics.ResultInvalid, apperr.New(apperr.KindValidationFailed, op, "unknown source "+string(in.Source))
	}
	if redirect == "" {
		return nil, metrics.ResultNotFound, apperr.New(apperr.KindNotFound, op, "redirect url not configured for "+string(in.Source))
	}

	out := &Session{
		ClientID:        cred.ClientID,
		ClientSecret:    cred.ClientSecret,
		AppCredentialID: cred.ID,
		AppID:           app.ID,
		EnvironmentID:   app.Config.EnvironmentID,
		SessionID:       c.ID,
		RedirectURL:     redirect,
	}
	if c.ExpiresAt != nil {
		out.ExpiredAt = c.ExpiresAt.Time
	}
	return out, metrics.ResultOK, nil
}
