// Package authflow orquesta los componentes del core como los usan los
// endpoints del partner: SDK móvil, canje server-to-server y el flujo web
// sin estado encadenado con tokens web-login.
package authflow

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/url"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/phonepass/internal/apperr"
	"github.com/dropDatabas3/phonepass/internal/domain/repository"
	"github.com/dropDatabas3/phonepass/internal/domain/types"
	"github.com/dropDatabas3/phonepass/internal/exchange"
	"github.com/dropDatabas3/phonepass/internal/observability/logger"
	"github.com/dropDatabas3/phonepass/internal/otp"
	"github.com/dropDatabas3/phonepass/internal/weblogin"
)

// Store es lo que el flujo lee y escribe directamente.
type Store interface {
	GetCredentialByClientID(ctx context.Context, clientID string) (*repository.AppCredential, error)
	repository.AppUserRepository
}

type Deps struct {
	Store    Store
	OTP      *otp.Engine
	Exchange *exchange.Protocol
	WebLogin *weblogin.Signer
	Now      func() time.Time
}

type Service struct {
	d Deps
}

func New(d Deps) (*Service, error) {
	if d.Store == nil || d.OTP == nil || d.Exchange == nil || d.WebLogin == nil {
		return nil, errors.New("authflow: todas las dependencias son requeridas")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{d: d}, nil
}

// AuthenticateCredential valida client_id/secret contra una credencial activa
// de alguno de los tipos permitidos.
func (s *Service) AuthenticateCredential(ctx context.Context, clientID, secret string, allowed ...types.CredentialType) (*repository.AppCredential, error) {
	const op = "authflow.authenticate_credential"
	if clientID == "" || secret == "" {
		return nil, apperr.New(apperr.KindInvalidCredential, op, "missing client credentials")
	}
	cred, err := s.d.Store.GetCredentialByClientID(ctx, clientID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperr.New(apperr.KindInvalidCredential, op, "unknown client")
		}
		return nil, apperr.Internal(op, err)
	}
	if subtle.ConstantTimeCompare([]byte(cred.ClientSecret), []byte(secret)) != 1 {
		return nil, apperr.New(apperr.KindInvalidCredential, op, "secret mismatch")
	}
	if !cred.IsActive() || (len(allowed) > 0 && !slices.Contains(allowed, cred.Type)) {
		return nil, apperr.New(apperr.KindInvalidCredential, op, "credential not allowed for this flow")
	}
	return cred, nil
}

type LoginInput struct {
	AppID           string
	AppCredentialID string
	Identity        *repository.Identity
	RequestID       string
	// Reset marca el binding para rotar su external id en el próximo canje (recovery).
	Reset bool
}

type LoginResult struct {
	AppUser   *repository.AppUser
	Created   bool
	Token     string
	ExpiredAt time.Time
}

// CompleteLogin vincula la identidad verificada a la app y emite un exchange token.
func (s *Service) CompleteLogin(ctx context.Context, in LoginInput) (*LoginResult, error) {
	const op = "authflow.complete_login"
	if in.Identity == nil {
		return nil, apperr.New(apperr.KindValidationFailed, op, "identity is required")
	}
	var (
		au      *repository.AppUser
		created bool
		err     error
	)
	for attempt := 0; attempt < 2; attempt++ {
		au, created, err = s.d.Store.FindOrCreateAppUser(ctx, repository.FindOrCreateAppUserInput{
			AppID:      in.AppID,
			IdentityID: in.Identity.ID,
			ExternalID: uuid.NewString(),
			Now:        s.d.Now().UTC(),
		})
		if !repository.IsConflict(err) {
			break
		}
	}
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	if au.AccessStatus != types.AccessGranted {
		return nil, apperr.New(apperr.KindForbidden, op, "access denied for app user")
	}
	if in.Reset {
		if err := s.d.Store.MarkAppUserReset(ctx, au.ID); err != nil {
			return nil, apperr.Internal(op, err)
		}
		au.MarkReset = true
	}

	minted, err := s.d.Exchange.Mint(ctx, exchange.MintInput{AppUser: au, AppCredentialID: in.AppCredentialID, RequestID: in.RequestID})
	if err != nil {
		return nil, err
	}
	logger.From(ctx).Info("login completo",
		logger.Component("authflow"), logger.AppID(in.AppID), logger.AppUserID(au.ID),
		logger.Bool("created", created), logger.Bool("reset", in.Reset))
	return &LoginResult{AppUser: au, Created: created, Token: minted.Token, ExpiredAt: minted.ExpiredAt}, nil
}

// ─── SDK móvil ───

// RequestOtp emite un challenge para una credencial mobile_sdk.
func (s *Service) RequestOtp(ctx context.Context, clientID, secret, phone string) (*otp.Challenge, error) {
	if _, err := s.AuthenticateCredential(ctx, clientID, secret, types.CredentialMobileSDK); err != nil {
		return nil, err
	}
	return s.d.OTP.RequestChallenge(ctx, phone)
}

// SubmitOtp verifica el código y devuelve el exchange token para el backend del partner.
func (s *Service) SubmitOtp(ctx context.Context, clientID, secret, phone, code string) (*LoginResult, error) {
	cred, err := s.AuthenticateCredential(ctx, clientID, secret, types.CredentialMobileSDK)
	if err != nil {
		return nil, err
	}
	v, err := s.d.OTP.VerifyChallenge(ctx, phone, code)
	if err != nil {
		return nil, err
	}
	return s.CompleteLogin(ctx, LoginInput{AppID: cred.AppID, AppCredentialID: cred.ID, Identity: v.Identity, RequestID: v.RequestID})
}

// ─── Server ───

// Redeem canjea un exchange token desde el backend del partner. Consume el token.
func (s *Service) Redeem(ctx context.Context, clientID, secret, token string) (*exchange.Redemption, error) {
	const op = "authflow.redeem"
	cred, err := s.AuthenticateCredential(ctx, clientID, secret, types.CredentialServer)
	if err != nil {
		return nil, err
	}
	red, err := s.d.Exchange.RedeemForApp(ctx, token, cred.AppID)
	if err != nil {
		if errors.Is(err, apperr.ErrForbidden) {
			logger.From(ctx).Warn("canje rechazado", logger.Component("authflow"), logger.Op(op), logger.ClientID(clientID))
		}
		return nil, err
	}
	if err := s.d.Exchange.Clear(ctx, red.SessionID); err != nil {
		return nil, err
	}
	return red, nil
}

// ─── Web ───

func requestPurpose(recovery bool) weblogin.Purpose {
	if recovery {
		return weblogin.PurposeRecoveryRequestOtp
	}
	return weblogin.PurposeRequestOtp
}

func loginPurpose(recovery bool) weblogin.Purpose {
	if recovery {
		return weblogin.PurposeRecovery
	}
	return weblogin.PurposeLogin
}

// StartWeb abre el flujo web: devuelve el token para pedir el OTP.
func (s *Service) StartWeb(ctx context.Context, clientID, secret string, recovery bool) (*weblogin.Issued, error) {
	cred, err := s.AuthenticateCredential(ctx, clientID, secret, types.CredentialWebLogin)
	if err != nil {
		return nil, err
	}
	return s.d.WebLogin.Issue(ctx, weblogin.IssueInput{ClientID: cred.ClientID, ClientSecret: cred.ClientSecret, Purpose: requestPurpose(recovery)})
}

type WebChallenge struct {
	Challenge *otp.Challenge
	// Next es el token para enviar el código; mantiene el session id.
	Next *weblogin.Issued
}

// WebRequestOtp valida el token de request-otp, emite el challenge y firma el paso siguiente.
func (s *Service) WebRequestOtp(ctx context.Context, token, phone string, source weblogin.Source, recovery bool) (*WebChallenge, error) {
	sess, err := s.d.WebLogin.Validate(ctx, weblogin.ValidateInput{Token: token, Purpose: requestPurpose(recovery), Source: source})
	if err != nil {
		return nil, err
	}
	ch, err := s.d.OTP.RequestChallenge(ctx, phone)
	if err != nil {
		return nil, err
	}
	next, err := s.d.WebLogin.Issue(ctx, weblogin.IssueInput{
		ClientID:     sess.ClientID,
		ClientSecret: sess.ClientSecret,
		Purpose:      loginPurpose(recovery),
		SessionID:    sess.SessionID,
	})
	if err != nil {
		return nil, err
	}
	return &WebChallenge{Challenge: ch, Next: next}, nil
}

type WebLogin struct {
	*LoginResult
	// RedirectURL lleva el exchange token en el query param "token".
	RedirectURL string
}

// WebSubmitOtp verifica el código, completa el login y arma el redirect al partner.
func (s *Service) WebSubmitOtp(ctx context.Context, token, phone, code string, source weblogin.Source, recovery bool) (*WebLogin, error) {
	const op = "authflow.web_submit_otp"
	sess, err := s.d.WebLogin.Validate(ctx, weblogin.ValidateInput{Token: token, Purpose: loginPurpose(recovery), Source: source})
	if err != nil {
		return nil, err
	}
	v, err := s.d.OTP.VerifyChallenge(ctx, phone, code)
	if err != nil {
		return nil, err
	}
	res, err := s.CompleteLogin(ctx, LoginInput{
		AppID:           sess.AppID,
		AppCredentialID: sess.AppCredentialID,
		Identity:        v.Identity,
		RequestID:       v.RequestID,
		Reset:           recovery,
	})
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(sess.RedirectURL)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindValidationFailed, op, "redirect url is not valid")
	}
	q := u.Query()
	q.Set("token", res.Token)
	u.RawQuery = q.Encode()
	return &WebLogin{LoginResult: res, RedirectURL: u.String()}, nil
}
