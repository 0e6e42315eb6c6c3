package authflow

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/phonepass/internal/apperr"
	"github.com/dropDatabas3/phonepass/internal/domain/repository"
	"github.com/dropDatabas3/phonepass/internal/domain/types"
	"github.com/dropDatabas3/phonepass/internal/exchange"
	"github.com/dropDatabas3/phonepass/internal/otp"
	"github.com/dropDatabas3/phonepass/internal/security/fingerprint"
	"github.com/dropDatabas3/phonepass/internal/security/otphash"
	"github.com/dropDatabas3/phonepass/internal/security/secretbox"
	"github.com/dropDatabas3/phonepass/internal/sms"
	"github.com/dropDatabas3/phonepass/internal/store/memory"
	"github.com/dropDatabas3/phonepass/internal/weblogin"
)

const testPhone = "+16502530000"

type fixture struct {
	svc    *Service
	store  *memory.Store
	sender *sms.Recorder
	now    time.Time
	app    *repository.App
	other  *repository.App
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), sender: &sms.Recorder{}, now: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)}
	now := func() time.Time { return f.now }

	f.app = f.store.PutApp(repository.App{ExternalID: "acme", Config: repository.AppConfig{
		EnvironmentID: "env", WebRedirectURL: "https://acme.test/cb?state=1", MobileRedirectURL: "acme://cb",
	}})
	f.other = f.store.PutApp(repository.App{ExternalID: "globex"})
	for _, c := range []repository.AppCredential{
		{AppID: f.app.ID, Type: types.CredentialMobileSDK, ClientID: "sdk", ClientSecret: "sdk-secret"},
		{AppID: f.app.ID, Type: types.CredentialServer, ClientID: "srv", ClientSecret: "srv-secret"},
		{AppID: f.app.ID, Type: types.CredentialWebLogin, ClientID: "web", ClientSecret: "web-secret"},
		{AppID: f.other.ID, Type: types.CredentialServer, ClientID: "srv-other", ClientSecret: "other-secret"},
	} {
		_, err := f.store.PutCredential(c)
		require.NoError(t, err)
	}

	fps, err := fingerprint.New(fingerprint.Scheme{Version: 1, Secret: []byte("secret"), Salt1: []byte("a"), Salt2: []byte("b"), Repeat: 2})
	require.NoError(t, err)
	codes, err := otphash.New(otphash.Params{Memory: 64, Time: 1, Parallelism: 1, KeyLen: 32}, []byte("pepper"))
	require.NoError(t, err)
	engine, err := otp.New(otp.Deps{
		Store: f.store, Fingerprints: fps, Codes: codes, Sender: f.sender,
		MessageTemplate: "{{code}}", Now: now,
	})
	require.NoError(t, err)
	box, err := secretbox.New([]byte(strings.Repeat("k", secretbox.KeySize)))
	require.NoError(t, err)
	ex, err := exchange.New(exchange.Deps{Store: f.store, Box: box, Now: now})
	require.NoError(t, err)
	wl, err := weblogin.New(weblogin.Deps{
		Credentials: f.store, Apps: f.store, SigningSecret: []byte(strings.Repeat("w", 32)), ServerSalt: "salt", Now: now,
	})
	require.NoError(t, err)

	f.svc, err = New(Deps{Store: f.store, OTP: engine, Exchange: ex, WebLogin: wl, Now: now})
	require.NoError(t, err)
	return f
}

func (f *fixture) code(t *testing.T) string {
	t.Helper()
	msg, ok := f.sender.Last()
	require.True(t, ok)
	return msg.Text
}

func TestSDKFlow_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch, err := f.svc.RequestOtp(ctx, "sdk", "sdk-secret", testPhone)
	require.NoError(t, err)
	assert.Equal(t, 1, ch.OtpCount)

	login, err := f.svc.SubmitOtp(ctx, "sdk", "sdk-secret", testPhone, f.code(t))
	require.NoError(t, err)
	assert.True(t, login.Created)
	assert.Equal(t, f.app.ID, login.AppUser.AppID)

	red, err := f.svc.Redeem(ctx, "srv", "srv-secret", login.Token)
	require.NoError(t, err)
	assert.Equal(t, login.AppUser.ExternalID, red.AppUserExternalID)
	assert.Equal(t, "US", red.CountryCode)
	assert.Equal(t, ch.RequestID, red.RequestID)

	_, err = f.svc.Redeem(ctx, "srv", "srv-secret", login.Token)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestSDKFlow_SameAppUserOnRelogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestOtp(ctx, "sdk", "sdk-secret", testPhone)
	require.NoError(t, err)
	first, err := f.svc.SubmitOtp(ctx, "sdk", "sdk-secret", testPhone, f.code(t))
	require.NoError(t, err)

	f.now = f.now.Add(10 * time.Minute)
	_, err = f.svc.RequestOtp(ctx, "sdk", "sdk-secret", testPhone)
	require.NoError(t, err)
	second, err := f.svc.SubmitOtp(ctx, "sdk", "sdk-secret", testPhone, f.code(t))
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.AppUser.ID, second.AppUser.ID)
	assert.Equal(t, first.AppUser.ExternalID, second.AppUser.ExternalID)
}

func TestAuthenticateCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestOtp(ctx, "sdk", "wrong", testPhone)
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
	_, err = f.svc.RequestOtp(ctx, "srv", "srv-secret", testPhone)
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
	_, err = f.svc.RequestOtp(ctx, "ghost", "x", testPhone)
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)

	require.NoError(t, f.store.SetCredentialStatus(ctx, "sdk", types.CredentialInactive))
	_, err = f.svc.RequestOtp(ctx, "sdk", "sdk-secret", testPhone)
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
	assert.Empty(t, f.sender.Messages())
}

func TestRedeem_OtherAppForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestOtp(ctx, "sdk", "sdk-secret", testPhone)
	require.NoError(t, err)
	login, err := f.svc.SubmitOtp(ctx, "sdk", "sdk-secret", testPhone, f.code(t))
	require.NoError(t, err)

	_, err = f.svc.Redeem(ctx, "srv-other", "other-secret", login.Token)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	// el intento ajeno no consume el token
	_, err = f.svc.Redeem(ctx, "srv", "srv-secret", login.Token)
	assert.NoError(t, err)
}

func TestSubmitOtp_DeniedAppUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestOtp(ctx, "sdk", "sdk-secret", testPhone)
	require.NoError(t, err)
	login, err := f.svc.SubmitOtp(ctx, "sdk", "sdk-secret", testPhone, f.code(t))
	require.NoError(t, err)
	require.NoError(t, f.store.SetAppUserAccess(ctx, login.AppUser.ID, types.AccessDenied))

	f.now = f.now.Add(10 * time.Minute)
	_, err = f.svc.RequestOtp(ctx, "sdk", "sdk-secret", testPhone)
	require.NoError(t, err)
	_, err = f.svc.SubmitOtp(ctx, "sdk", "sdk-secret", testPhone, f.code(t))
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func tokenFromRedirect(t *testing.T, raw string) (*url.URL, string) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok)
	return u, tok
}

func sessionIDOf(t *testing.T, tok string) string {
	t.Helper()
	var c jwtv5.RegisteredClaims
	_, _, err := jwtv5.NewParser().ParseUnverified(tok, &c)
	require.NoError(t, err)
	return c.ID
}

func TestWebFlow_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.svc.StartWeb(ctx, "web", "web-secret", false)
	require.NoError(t, err)

	wc, err := f.svc.WebRequestOtp(ctx, start.Token, testPhone, weblogin.SourceWeb, false)
	require.NoError(t, err)
	assert.Equal(t, start.SessionID, wc.Next.SessionID)
	assert.Equal(t, start.SessionID, sessionIDOf(t, wc.Next.Token))

	// el token de request-otp no sirve para enviar el código
	_, err = f.svc.WebSubmitOtp(ctx, start.Token, testPhone, f.code(t), weblogin.SourceWeb, false)
	require.ErrorIs(t, err, apperr.ErrInvalidCredential)

	done, err := f.svc.WebSubmitOtp(ctx, wc.Next.Token, testPhone, f.code(t), weblogin.SourceWeb, false)
	require.NoError(t, err)
	u, tok := tokenFromRedirect(t, done.RedirectURL)
	assert.Equal(t, "acme.test", u.Host)
	assert.Equal(t, "1", u.Query().Get("state"))

	red, err := f.svc.Redeem(ctx, "srv", "srv-secret", tok)
	require.NoError(t, err)
	assert.Equal(t, done.AppUser.ExternalID, red.AppUserExternalID)
}

func TestWebFlow_RecoveryRotatesExternalID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestOtp(ctx, "sdk", "sdk-secret", testPhone)
	require.NoError(t, err)
	login, err := f.svc.SubmitOtp(ctx, "sdk", "sdk-secret", testPhone, f.code(t))
	require.NoError(t, err)
	oldExt := login.AppUser.ExternalID

	start, err := f.svc.StartWeb(ctx, "web", "web-secret", true)
	require.NoError(t, err)
	_, err = f.svc.WebRequestOtp(ctx, start.Token, testPhone, weblogin.SourceMobile, false)
	require.ErrorIs(t, err, apperr.ErrInvalidCredential)

	wc, err := f.svc.WebRequestOtp(ctx, start.Token, testPhone, weblogin.SourceMobile, true)
	require.NoError(t, err)
	done, err := f.svc.WebSubmitOtp(ctx, wc.Next.Token, testPhone, f.code(t), weblogin.SourceMobile, true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(done.RedirectURL, "acme://cb?token="))

	_, tok := tokenFromRedirect(t, done.RedirectURL)
	red, err := f.svc.Redeem(ctx, "srv", "srv-secret", tok)
	require.NoError(t, err)
	assert.True(t, red.Rotated)
	assert.NotEqual(t, oldExt, red.AppUserExternalID)

	// el token del login previo al recovery ya no canjea
	_, err = f.svc.Redeem(ctx, "srv", "srv-secret", login.Token)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestRedeem_OtherAppKeepsPendingReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestOtp(ctx, "sdk", "sdk-secret", testPhone)
	require.NoError(t, err)
	login, err := f.svc.SubmitOtp(ctx, "sdk", "sdk-secret", testPhone, f.code(t))
	require.NoError(t, err)
	oldExt := login.AppUser.ExternalID

	start, err := f.svc.StartWeb(ctx, "web", "web-secret", true)
	require.NoError(t, err)
	wc, err := f.svc.WebRequestOtp(ctx, start.Token, testPhone, weblogin.SourceMobile, true)
	require.NoError(t, err)
	done, err := f.svc.WebSubmitOtp(ctx, wc.Next.Token, testPhone, f.code(t), weblogin.SourceMobile, true)
	require.NoError(t, err)
	_, tok := tokenFromRedirect(t, done.RedirectURL)

	_, err = f.svc.Redeem(ctx, "srv-other", "other-secret", tok)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	au, err := f.store.GetAppUser(ctx, login.AppUser.ID)
	require.NoError(t, err)
	assert.True(t, au.MarkReset)
	assert.Equal(t, oldExt, au.ExternalID)

	red, err := f.svc.Redeem(ctx, "srv", "srv-secret", tok)
	require.NoError(t, err)
	assert.True(t, red.Rotated)
	assert.NotEqual(t, oldExt, red.AppUserExternalID)
}

func TestStartWeb_RequiresWebCredential(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StartWeb(context.Background(), "sdk", "sdk-secret", false)
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
}
