package exchange

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/phonepass/internal/apperr"
	"github.com/dropDatabas3/phonepass/internal/domain/repository"
	"github.com/dropDatabas3/phonepass/internal/domain/types"
	"github.com/dropDatabas3/phonepass/internal/metrics"
	"github.com/dropDatabas3/phonepass/internal/security/secretbox"
	"github.com/dropDatabas3/phonepass/internal/store/memory"
)

type fixture struct {
	p       *Protocol
	store   *memory.Store
	now     time.Time
	user    *repository.AppUser
	credID  string
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: memory.New(), now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}

	box, err := secretbox.New([]byte(strings.Repeat("k", secretbox.KeySize)))
	require.NoError(t, err)
	f.metrics, err = metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	f.p, err = New(Deps{Store: f.store, Box: box, Metrics: f.metrics, Now: func() time.Time { return f.now }})
	require.NoError(t, err)

	app := f.store.PutApp(repository.App{ExternalID: "acme"})
	cred, err := f.store.PutCredential(repository.AppCredential{AppID: app.ID, Type: types.CredentialServer, ClientID: "srv", ClientSecret: "x"})
	require.NoError(t, err)
	f.credID = cred.ID
	ident, err := f.store.UpsertVerifiedIdentity(ctx, repository.VerifiedIdentityInput{
		Fingerprint: "fp-1", FingerprintVersion: 1, CountryCode: "AR", VerifiedAt: f.now,
	})
	require.NoError(t, err)
	f.user, _, err = f.store.FindOrCreateAppUser(ctx, repository.FindOrCreateAppUserInput{
		AppID: app.ID, IdentityID: ident.ID, ExternalID: "ext-user-1", Now: f.now,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) mint(t *testing.T) *Minted {
	t.Helper()
	m, err := f.p.Mint(context.Background(), MintInput{AppUser: f.user, AppCredentialID: f.credID, RequestID: "req-1"})
	require.NoError(t, err)
	return m
}

func TestMint_TokenFormat(t *testing.T) {
	f := newFixture(t)
	m := f.mint(t)

	extID, ct, ok := strings.Cut(m.Token, "/")
	require.True(t, ok)
	assert.Len(t, extID, ExternalIDLength)
	_, err := base64.StdEncoding.DecodeString(ct)
	assert.NoError(t, err)
	assert.Equal(t, f.now.Add(DefaultLifetime), m.ExpiredAt)
	assert.Equal(t, 1, f.store.ExchangeSessionCount())
}

func TestRedeem_ReturnsBinding(t *testing.T) {
	f := newFixture(t)
	m := f.mint(t)

	red, err := f.p.Redeem(context.Background(), m.Token)
	require.NoError(t, err)
	assert.Equal(t, "ext-user-1", red.AppUserExternalID)
	assert.Equal(t, "AR", red.CountryCode)
	assert.Equal(t, "req-1", red.RequestID)
	assert.Equal(t, f.user.AppID, red.AppID)
	assert.Equal(t, m.SessionID, red.SessionID)
	assert.False(t, red.Rotated)

	// Redeem no consume
	_, err = f.p.Redeem(context.Background(), m.Token)
	assert.NoError(t, err)
}

func TestExchange_SingleUse(t *testing.T) {
	f := newFixture(t)
	m := f.mint(t)
	ctx := context.Background()

	red, err := f.p.Redeem(ctx, m.Token)
	require.NoError(t, err)
	require.NoError(t, f.p.Clear(ctx, red.SessionID))

	_, err = f.p.Redeem(ctx, m.Token)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	assert.ErrorIs(t, f.p.Clear(ctx, red.SessionID), apperr.ErrInvalidToken)

	m2 := f.mint(t)
	_, err = f.p.Exchange(ctx, m2.Token)
	require.NoError(t, err)
	_, err = f.p.Exchange(ctx, m2.Token)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestExchange_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	m := f.mint(t)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.p.Exchange(context.Background(), m.Token); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, apperr.ErrInvalidToken)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRedeem_Tamper(t *testing.T) {
	f := newFixture(t)
	m := f.mint(t)
	extID, ctB64, _ := strings.Cut(m.Token, "/")
	ct, err := base64.StdEncoding.DecodeString(ctB64)
	require.NoError(t, err)

	for i := range ct {
		bad := append([]byte(nil), ct...)
		bad[i] ^= 0x01
		_, err := f.p.Redeem(context.Background(), extID+"/"+base64.StdEncoding.EncodeToString(bad))
		require.ErrorIs(t, err, apperr.ErrInvalidToken, "byte %d", i)
	}
}

func TestRedeem_CiphertextSwappedOntoOtherSession(t *testing.T) {
	f := newFixture(t)
	a := f.mint(t)
	b := f.mint(t)

	extA, _, _ := strings.Cut(a.Token, "/")
	_, ctB, _ := strings.Cut(b.Token, "/")
	_, err := f.p.Redeem(context.Background(), extA+"/"+ctB)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestRedeem_Malformed(t *testing.T) {
	f := newFixture(t)
	for _, tok := range []string{"", "abc", "short/AAAA", strings.Repeat("a", 24) + "/", strings.Repeat("a", 24) + "/!!!", strings.Repeat("a", 24) + "/AAAA"} {
		_, err := f.p.Redeem(context.Background(), tok)
		assert.ErrorIs(t, err, apperr.ErrInvalidToken, "token %q", tok)
	}
	assert.Equal(t, 6.0, testutil.ToFloat64(f.metrics.ExchangeRedemptions.WithLabelValues(metrics.ResultInvalid)))
}

func TestRedeem_PercentEncoded(t *testing.T) {
	f := newFixture(t)
	m := f.mint(t)

	_, err := f.p.Redeem(context.Background(), url.QueryEscape(m.Token))
	assert.NoError(t, err)
}

func TestRedeem_Expired(t *testing.T) {
	f := newFixture(t)
	m := f.mint(t)
	f.now = f.now.Add(DefaultLifetime)

	_, err := f.p.Redeem(context.Background(), m.Token)
	assert.ErrorIs(t, err, apperr.ErrTokenExpired)
}

func TestRedeem_AccessDenied(t *testing.T) {
	f := newFixture(t)
	m := f.mint(t)
	require.NoError(t, f.store.SetAppUserAccess(context.Background(), f.user.ID, types.AccessDenied))

	_, err := f.p.Redeem(context.Background(), m.Token)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestRedeem_ResetPropagation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.mint(t)
	second := f.mint(t)

	f.now = f.now.Add(time.Minute)
	require.NoError(t, f.store.MarkAppUserReset(ctx, f.user.ID))

	red, err := f.p.Redeem(ctx, first.Token)
	require.NoError(t, err)
	assert.True(t, red.Rotated)
	assert.NotEqual(t, "ext-user-1", red.AppUserExternalID)

	u, err := f.store.GetAppUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, red.AppUserExternalID, u.ExternalID)
	assert.False(t, u.MarkReset)
	ident, err := f.store.GetIdentity(ctx, u.IdentityID)
	require.NoError(t, err)
	assert.Equal(t, f.now, *ident.LastVerifiedAt)

	// minted antes del reset: lleva el external id viejo
	_, err = f.p.Redeem(ctx, second.Token)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestRedeemForApp_OtherAppBeforeRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.mint(t)
	require.NoError(t, f.store.MarkAppUserReset(ctx, f.user.ID))

	_, err := f.p.RedeemForApp(ctx, m.Token, "other-app")
	require.ErrorIs(t, err, apperr.ErrForbidden)
	u, err := f.store.GetAppUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, u.MarkReset)
	assert.Equal(t, "ext-user-1", u.ExternalID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ExchangeRedemptions.WithLabelValues(metrics.ResultForbidden)))

	red, err := f.p.RedeemForApp(ctx, m.Token, f.user.AppID)
	require.NoError(t, err)
	assert.True(t, red.Rotated)

	_, err = f.p.RedeemForApp(ctx, m.Token, "")
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
}

func TestClear_SweepsExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mint(t)
	f.mint(t)
	f.now = f.now.Add(DefaultLifetime + time.Second)
	live := f.mint(t)
	red, err := f.p.Redeem(ctx, live.Token)
	require.NoError(t, err)

	require.NoError(t, f.p.Clear(ctx, red.SessionID))
	assert.Equal(t, 0, f.store.ExchangeSessionCount())
}

func TestMint_RequiresBinding(t *testing.T) {
	f := newFixture(t)
	_, err := f.p.Mint(context.Background(), MintInput{})
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
}
