package weblogin

import (
	"context"
	"strings"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/phonepass/internal/appcache"
	"github.com/dropDatabas3/phonepass/internal/apperr"
	"github.com/dropDatabas3/phonepass/internal/cache"
	"github.com/dropDatabas3/phonepass/internal/domain/repository"
	"github.com/dropDatabas3/phonepass/internal/domain/types"
	"github.com/dropDatabas3/phonepass/internal/store/memory"
)

type fixture struct {
	signer *Signer
	store  *memory.Store
	now    time.Time
	app    *repository.App
	cred   *repository.AppCredential
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), now: time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)}
	f.app = f.store.PutApp(repository.App{
		ExternalID: "acme",
		Config: repository.AppConfig{
			EnvironmentID:     "env-prod",
			WebRedirectURL:    "https://acme.test/callback",
			MobileRedirectURL: "acme://callback",
		},
	})
	var err error
	f.cred, err = f.store.PutCredential(repository.AppCredential{
		AppID: f.app.ID, Type: types.CredentialWebLogin, ClientID: "web-1", ClientSecret: "partner-secret",
	})
	require.NoError(t, err)

	f.signer, err = New(Deps{
		Credentials:   f.store,
		Apps:          appcache.New(f.store, cache.NewMemory("", time.Minute), time.Minute),
		SigningSecret: []byte(strings.Repeat("s", 32)),
		ServerSalt:    "server-salt",
		Now:           func() time.Time { return f.now },
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) issue(t *testing.T, p Purpose, sessionID string) *Issued {
	t.Helper()
	out, err := f.signer.Issue(context.Background(), IssueInput{
		ClientID: f.cred.ClientID, ClientSecret: f.cred.ClientSecret, Purpose: p, SessionID: sessionID,
	})
	require.NoError(t, err)
	return out
}

func TestIssueValidate_RoundTrip(t *testing.T) {
	f := newFixture(t)
	iss := f.issue(t, PurposeRequestOtp, "")
	assert.NotEmpty(t, iss.SessionID)
	assert.Equal(t, f.now.Add(DefaultLifetime), iss.ExpiredAt)

	sess, err := f.signer.Validate(context.Background(), ValidateInput{Token: iss.Token, Purpose: PurposeRequestOtp, Source: SourceWeb})
	require.NoError(t, err)
	assert.Equal(t, "web-1", sess.ClientID)
	assert.Equal(t, "partner-secret", sess.ClientSecret)
	assert.Equal(t, f.cred.ID, sess.AppCredentialID)
	assert.Equal(t, f.app.ID, sess.AppID)
	assert.Equal(t, "env-prod", sess.EnvironmentID)
	assert.Equal(t, iss.SessionID, sess.SessionID)
	assert.Equal(t, "https://acme.test/callback", sess.RedirectURL)

	sess, err = f.signer.Validate(context.Background(), ValidateInput{Token: iss.Token, Purpose: PurposeRequestOtp, Source: SourceMobile})
	require.NoError(t, err)
	assert.Equal(t, "acme://callback", sess.RedirectURL)
}

func TestIssue_ClaimsShape(t *testing.T) {
	f := newFixture(t)
	iss := f.issue(t, PurposeLogin, "sess-42")

	var c claims
	_, _, err := jwtv5.NewParser().ParseUnverified(iss.Token, &c)
	require.NoError(t, err)
	assert.Equal(t, "login", c.Purpose)
	assert.Equal(t, "web-1", c.Subject)
	assert.Equal(t, "sess-42", c.ID)
	assert.Len(t, c.Signature, 64)
	assert.Equal(t, f.now.Unix(), c.IssuedAt.Unix())
}

func TestValidate_WrongPurpose(t *testing.T) {
	f := newFixture(t)
	iss := f.issue(t, PurposeRequestOtp, "")

	_, err := f.signer.Validate(context.Background(), ValidateInput{Token: iss.Token, Purpose: PurposeLogin, Source: SourceWeb})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
}

func TestValidate_Expired(t *testing.T) {
	f := newFixture(t)
	iss := f.issue(t, PurposeLogin, "")
	f.now = f.now.Add(DefaultLifetime + time.Second)

	_, err := f.signer.Validate(context.Background(), ValidateInput{Token: iss.Token, Purpose: PurposeLogin, Source: SourceWeb})
	assert.ErrorIs(t, err, apperr.ErrTokenExpired)
}

func TestValidate_TamperedOrForeign(t *testing.T) {
	f := newFixture(t)
	iss := f.issue(t, PurposeLogin, "")

	_, err := f.signer.Validate(context.Background(), ValidateInput{Token: iss.Token + "x", Purpose: PurposeLogin, Source: SourceWeb})
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	other, err := New(Deps{Credentials: f.store, Apps: f.store, SigningSecret: []byte(strings.Repeat("o", 32)), ServerSalt: "server-salt"})
	require.NoError(t, err)
	_, err = other.Validate(context.Background(), ValidateInput{Token: iss.Token, Purpose: PurposeLogin, Source: SourceWeb})
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	_, err = f.signer.Validate(context.Background(), ValidateInput{Token: "not.a.jwt", Purpose: PurposeLogin, Source: SourceWeb})
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestValidate_SecretRotationRevokes(t *testing.T) {
	f := newFixture(t)
	iss := f.issue(t, PurposeLogin, "")
	require.NoError(t, f.store.RotateCredentialSecret(context.Background(), "web-1", "rotated-secret"))

	_, err := f.signer.Validate(context.Background(), ValidateInput{Token: iss.Token, Purpose: PurposeLogin, Source: SourceWeb})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
}

func TestValidate_InactiveCredential(t *testing.T) {
	f := newFixture(t)
	iss := f.issue(t, PurposeLogin, "")
	require.NoError(t, f.store.SetCredentialStatus(context.Background(), "web-1", types.CredentialInactive))

	_, err := f.signer.Validate(context.Background(), ValidateInput{Token: iss.Token, Purpose: PurposeLogin, Source: SourceWeb})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
}

func TestValidate_WrongCredentialType(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.PutCredential(repository.AppCredential{
		AppID: f.app.ID, Type: types.CredentialServer, ClientID: "srv-1", ClientSecret: "s",
	})
	require.NoError(t, err)
	iss, err := f.signer.Issue(context.Background(), IssueInput{ClientID: "srv-1", ClientSecret: "s", Purpose: PurposeLogin})
	require.NoError(t, err)

	_, err = f.signer.Validate(context.Background(), ValidateInput{Token: iss.Token, Purpose: PurposeLogin, Source: SourceWeb})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
}

func TestValidate_UnknownCredential(t *testing.T) {
	f := newFixture(t)
	iss, err := f.signer.Issue(context.Background(), IssueInput{ClientID: "ghost", ClientSecret: "s", Purpose: PurposeLogin})
	require.NoError(t, err)

	_, err = f.signer.Validate(context.Background(), ValidateInput{Token: iss.Token, Purpose: PurposeLogin, Source: SourceWeb})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
}

func TestValidate_Source(t *testing.T) {
	f := newFixture(t)
	iss := f.issue(t, PurposeLogin, "")

	_, err := f.signer.Validate(context.Background(), ValidateInput{Token: iss.Token, Purpose: PurposeLogin, Source: "desktop"})
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)

	f.store.PutApp(repository.App{ID: f.app.ID, ExternalID: "acme", Config: repository.AppConfig{EnvironmentID: "env"}})
	bare := f.signer
	bare.d.Apps = f.store
	_, err = bare.Validate(context.Background(), ValidateInput{Token: iss.Token, Purpose: PurposeLogin, Source: SourceMobile})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestIssue_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.signer.Issue(context.Background(), IssueInput{ClientID: "web-1", ClientSecret: "x", Purpose: "bogus"})
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
	_, err = f.signer.Issue(context.Background(), IssueInput{Purpose: PurposeLogin})
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
}

func TestNew_ShortSecret(t *testing.T) {
	_, err := New(Deps{Credentials: memory.New(), Apps: memory.New(), SigningSecret: []byte("short")})
	assert.Error(t, err)
}
